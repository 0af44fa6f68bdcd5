// Package entitystore keeps the dispatch collections of one browser profile.
//
// The whole snapshot lives under a single key of the profile container and is
// rewritten on every mutation. Subscribers are told about each successful
// mutation after the write, outside the store lock.
package entitystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/metrics"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/seed"
)

const defaultSeedTimeout = 5 * time.Second

// Store is the entity store of one profile. Safe for concurrent use.
type Store struct {
	kv          kvstore.Store
	seed        seed.Source
	schemas     model.Schemas
	log         zerolog.Logger
	seedTimeout time.Duration
	bus         *events.Bus[events.StoreEvent]

	mu sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

func WithSchemas(sc model.Schemas) Option { return func(s *Store) { s.schemas = sc } }

func WithSeedTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.seedTimeout = d
		}
	}
}

// New returns a store over kv, a container already scoped to one profile.
func New(kv kvstore.Store, src seed.Source, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		seed:        src,
		schemas:     model.DefaultSchemas(),
		log:         zerolog.Nop(),
		seedTimeout: defaultSeedTimeout,
		bus:         events.NewBus[events.StoreEvent](),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schemas returns the schemas records are validated against.
func (s *Store) Schemas() model.Schemas { return s.schemas }

// Subscribe registers fn for change notifications.
func (s *Store) Subscribe(fn func(events.StoreEvent)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Load returns the current snapshot, seeding the profile on first use.
// A failed seed fetch is logged and yields an empty snapshot that is not persisted.
func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap.Clone(), nil
}

// Export is Load without seeding side effects beyond the first load.
func (s *Store) Export(ctx context.Context) (model.Snapshot, error) { return s.Load(ctx) }

func (s *Store) load(ctx context.Context) (model.Snapshot, error) {
	raw, err := s.kv.Get(ctx, kvstore.KeySnapshot)
	switch {
	case err == nil:
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return model.Snapshot{}, fmt.Errorf("decode %s: %w", kvstore.KeySnapshot, err)
		}
		snap.Ensure(s.schemas.Names()...)
		return snap, nil
	case errors.Is(err, kvstore.ErrKeyNotFound):
	default:
		return model.Snapshot{}, fmt.Errorf("read %s: %w", kvstore.KeySnapshot, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.seedTimeout)
	defer cancel()
	snap, err := s.seed.Fetch(fetchCtx)
	if err != nil {
		metrics.SeedFallbacks.Inc()
		s.log.Warn().Err(err).Str("source", s.seed.String()).Msg("seed fetch failed; starting from an empty dataset")
		return model.NewSnapshot(s.schemas.Names()...), nil
	}
	snap.Ensure(s.schemas.Names()...)
	if err := s.save(ctx, snap); err != nil {
		return model.Snapshot{}, err
	}
	s.log.Info().Str("source", s.seed.String()).Msg("profile seeded")
	return snap, nil
}

func (s *Store) save(ctx context.Context, snap model.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Put(ctx, kvstore.KeySnapshot, raw); err != nil {
		return fmt.Errorf("write %s: %w", kvstore.KeySnapshot, err)
	}
	return nil
}

func (s *Store) publish(evt events.StoreEvent) {
	op := string(evt.Kind)
	metrics.StoreMutations.WithLabelValues(evt.Collection, op).Inc()
	n := s.bus.Publish(evt)
	metrics.StoreNotifications.Add(float64(n))
}

// Create validates fields, assigns the next id and appends the record.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (model.Record, error) {
	sc, err := s.schemas.Lookup(collection)
	if err != nil {
		return model.Record{}, err
	}
	clean, err := sc.Validate(fields, false)
	if err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	snap, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return model.Record{}, err
	}
	rec := model.Record{ID: snap.NextID(collection), Fields: clean}
	snap.Collections[collection] = append(snap.Collections[collection], rec)
	snap.Sequences[collection] = rec.ID
	if err := s.save(ctx, snap); err != nil {
		s.mu.Unlock()
		return model.Record{}, err
	}
	s.mu.Unlock()

	s.log.Debug().Str("collection", collection).Int("id", rec.ID).Msg("record created")
	s.publish(events.StoreEvent{Kind: events.Created, Collection: collection, ID: rec.ID})
	return rec.Clone(), nil
}

// ReadAll returns the records of collection matching filter, in insertion order.
func (s *Store) ReadAll(ctx context.Context, collection string, filter model.Filter) ([]model.Record, error) {
	if _, err := s.schemas.Lookup(collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(snap.Collections[collection]))
	for _, r := range snap.Collections[collection] {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// ReadOne returns the record with id or model.ErrNotFound.
func (s *Store) ReadOne(ctx context.Context, collection string, id int) (model.Record, error) {
	if _, err := s.schemas.Lookup(collection); err != nil {
		return model.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load(ctx)
	if err != nil {
		return model.Record{}, err
	}
	c := snap.Collections[collection]
	i := c.Index(id)
	if i < 0 {
		return model.Record{}, fmt.Errorf("%s/%d: %w", collection, id, model.ErrNotFound)
	}
	return c[i].Clone(), nil
}

// Update shallow-merges partial into the record. Fields set to an empty value
// are removed when optional.
func (s *Store) Update(ctx context.Context, collection string, id int, partial map[string]any) (model.Record, error) {
	sc, err := s.schemas.Lookup(collection)
	if err != nil {
		return model.Record{}, err
	}
	clean, err := sc.Validate(partial, true)
	if err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	snap, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return model.Record{}, err
	}
	c := snap.Collections[collection]
	i := c.Index(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Record{}, fmt.Errorf("%s/%d: %w", collection, id, model.ErrNotFound)
	}
	if c[i].Fields == nil {
		c[i].Fields = map[string]any{}
	}
	for k, v := range clean {
		if v == nil {
			delete(c[i].Fields, k)
			continue
		}
		c[i].Fields[k] = v
	}
	rec := c[i].Clone()
	if err := s.save(ctx, snap); err != nil {
		s.mu.Unlock()
		return model.Record{}, err
	}
	s.mu.Unlock()

	s.publish(events.StoreEvent{Kind: events.Updated, Collection: collection, ID: id})
	return rec, nil
}

// Delete removes the record. It returns model.ErrNotFound, without writing
// or notifying, when no record has id.
func (s *Store) Delete(ctx context.Context, collection string, id int) error {
	if _, err := s.schemas.Lookup(collection); err != nil {
		return err
	}
	s.mu.Lock()
	snap, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	c := snap.Collections[collection]
	i := c.Index(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s/%d: %w", collection, id, model.ErrNotFound)
	}
	if id > snap.Sequences[collection] {
		snap.Sequences[collection] = id
	}
	snap.Collections[collection] = append(c[:i:i], c[i+1:]...)
	if err := s.save(ctx, snap); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(events.StoreEvent{Kind: events.Deleted, Collection: collection, ID: id})
	return nil
}

// Import replaces the whole snapshot. Id high-water marks never move backwards.
func (s *Store) Import(ctx context.Context, snap model.Snapshot) error {
	snap = snap.Clone()
	snap.Ensure(s.schemas.Names()...)
	for name, c := range snap.Collections {
		sc, err := s.schemas.Lookup(name)
		if err != nil {
			return err
		}
		seen := make(map[int]bool, len(c))
		for i, r := range c {
			if r.ID < 1 || seen[r.ID] {
				return fmt.Errorf("%s: bad or duplicate id %d: %w", name, r.ID, model.ErrConflict)
			}
			seen[r.ID] = true
			clean, err := sc.Validate(r.Fields, false)
			if err != nil {
				return fmt.Errorf("%s/%d: %w", name, r.ID, err)
			}
			c[i].Fields = clean
		}
	}

	s.mu.Lock()
	if raw, err := s.kv.Get(ctx, kvstore.KeySnapshot); err == nil {
		var prev model.Snapshot
		if json.Unmarshal(raw, &prev) == nil {
			for name, c := range prev.Collections {
				if hw := max(prev.Sequences[name], c.MaxID()); hw > snap.Sequences[name] {
					snap.Sequences[name] = hw
				}
			}
		}
	} else if !errors.Is(err, kvstore.ErrKeyNotFound) {
		s.mu.Unlock()
		return fmt.Errorf("read %s: %w", kvstore.KeySnapshot, err)
	}
	if err := s.save(ctx, snap); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.publish(events.StoreEvent{Kind: events.Reset})
	return nil
}

// Reset drops the persisted snapshot; the next Load seeds again.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	err := s.kv.Delete(ctx, kvstore.KeySnapshot)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kvstore.KeySnapshot, err)
	}
	s.publish(events.StoreEvent{Kind: events.Reset})
	return nil
}
