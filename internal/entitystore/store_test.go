package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/logger"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/seed"
)

type staticSource struct {
	snap  model.Snapshot
	err   error
	calls int
}

func (s *staticSource) Fetch(context.Context) (model.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return model.Snapshot{}, s.err
	}
	return s.snap.Clone(), nil
}

func (s *staticSource) String() string { return "static" }

type slowSource struct{}

func (slowSource) Fetch(ctx context.Context) (model.Snapshot, error) {
	<-ctx.Done()
	return model.Snapshot{}, ctx.Err()
}

func (slowSource) String() string { return "slow" }

func emptySource() *staticSource {
	return &staticSource{snap: model.NewSnapshot()}
}

func newStore(t *testing.T, src seed.Source) (*Store, kvstore.Store) {
	t.Helper()
	kv := kvstore.Scope(kvstore.NewMemory(), "profile-1")
	return New(kv, src), kv
}

func ambulance(matricule string) map[string]any {
	return map[string]any{"matricule": matricule, "modele": "Sprinter", "statut": "Disponible"}
}

func recorder(s *Store) *[]events.StoreEvent {
	var got []events.StoreEvent
	s.Subscribe(func(e events.StoreEvent) { got = append(got, e) })
	return &got
}

func TestCreate_AssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())

	first, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "Disponible", first.Fields["statut"])

	second, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	all, err := s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0])
}

func TestCreate_IDIsOnePlusMax(t *testing.T) {
	ctx := context.Background()
	src := emptySource()
	src.snap.Collections[model.Patients] = model.Collection{
		{ID: 3, Fields: map[string]any{"nom": "A", "prenom": "B"}},
		{ID: 9, Fields: map[string]any{"nom": "C", "prenom": "D"}},
	}
	s, _ := newStore(t, src)

	rec, err := s.Create(ctx, model.Patients, map[string]any{"nom": "E", "prenom": "F"})
	require.NoError(t, err)
	assert.Equal(t, 10, rec.ID)
}

func TestCreate_NeverReusesDeletedMaxID(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())

	_, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	two, err := s.Create(ctx, model.Ambulances, ambulance("A-2"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, model.Ambulances, two.ID))

	three, err := s.Create(ctx, model.Ambulances, ambulance("A-3"))
	require.NoError(t, err)
	assert.Equal(t, 3, three.ID)
}

func TestCreate_ValidationBlocksWrite(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t, emptySource())
	got := recorder(s)

	_, err := s.Create(ctx, model.Ambulances, map[string]any{"matricule": " ", "modele": "X", "statut": "Disponible"})
	require.ErrorIs(t, err, model.ErrValidation)
	var fe model.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, model.MsgRequired, fe["matricule"])

	_, err = s.Create(ctx, model.Ambulances, map[string]any{"matricule": "A", "modele": "X", "statut": "Disponible", "couleur": "rouge"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = s.Create(ctx, "vehicules", ambulance("A"))
	require.ErrorIs(t, err, model.ErrUnknownCollection)
	require.ErrorIs(t, err, model.ErrValidation)

	assert.Empty(t, *got)
	_, err = kv.Get(ctx, kvstore.KeySnapshot)
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestUpdate_ChangesOnlyGivenField(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	created, err := s.Create(ctx, model.Ambulances, map[string]any{
		"matricule": "A-1", "modele": "Sprinter", "statut": "Disponible", "localisation": "Rabat",
	})
	require.NoError(t, err)

	updated, err := s.Update(ctx, model.Ambulances, created.ID, map[string]any{"statut": "Hors Service"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	want := created.Clone()
	want.Fields["statut"] = "Hors Service"
	assert.Empty(t, cmp.Diff(want, updated))

	back, err := s.ReadOne(ctx, model.Ambulances, created.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, back))
}

func TestUpdate_KeepsOrderAndClearsOptional(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	for _, m := range []string{"A-1", "A-2", "A-3"} {
		f := ambulance(m)
		f["localisation"] = "Casablanca"
		_, err := s.Create(ctx, model.Ambulances, f)
		require.NoError(t, err)
	}

	_, err := s.Update(ctx, model.Ambulances, 1, map[string]any{"localisation": ""})
	require.NoError(t, err)

	all, err := s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].ID, all[1].ID, all[2].ID})
	_, has := all[0].Fields["localisation"]
	assert.False(t, has)

	_, err = s.Update(ctx, model.Ambulances, 1, map[string]any{"modele": ""})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = s.Update(ctx, model.Ambulances, 1, map[string]any{"id": 7})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdate_MissingIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	for _, m := range []string{"A-1", "A-2"} {
		_, err := s.Create(ctx, model.Ambulances, ambulance(m))
		require.NoError(t, err)
	}
	before, err := s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	got := recorder(s)

	_, err = s.Update(ctx, model.Ambulances, 999, map[string]any{"statut": "Hors Service"})
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrValidation)

	after, err := s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))
	assert.Empty(t, *got)
}

func TestDelete_OnceThenNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	for _, m := range []string{"A-1", "A-2", "A-3"} {
		_, err := s.Create(ctx, model.Ambulances, ambulance(m))
		require.NoError(t, err)
	}
	got := recorder(s)

	require.NoError(t, s.Delete(ctx, model.Ambulances, 2))
	all, err := s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = s.Delete(ctx, model.Ambulances, 2)
	require.ErrorIs(t, err, model.ErrNotFound)
	all, err = s.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, []events.StoreEvent{{Kind: events.Deleted, Collection: model.Ambulances, ID: 2}}, *got)

	_, err = s.ReadOne(ctx, model.Ambulances, 2)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMutations_NotifyExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	got := recorder(s)
	var second int
	s.Subscribe(func(events.StoreEvent) { second++ })

	rec, err := s.Create(ctx, model.Hopitaux, map[string]any{"nom": "CHU", "ville": "Fès", "capacite": "300"})
	require.NoError(t, err)
	assert.Equal(t, int64(300), rec.Fields["capacite"])
	_, err = s.Update(ctx, model.Hopitaux, rec.ID, map[string]any{"ville": "Meknès"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, model.Hopitaux, rec.ID))

	assert.Equal(t, []events.StoreEvent{
		{Kind: events.Created, Collection: model.Hopitaux, ID: 1},
		{Kind: events.Updated, Collection: model.Hopitaux, ID: 1},
		{Kind: events.Deleted, Collection: model.Hopitaux, ID: 1},
	}, *got)
	assert.Equal(t, 3, second)
}

func TestSubscriber_CanReadStoreDuringNotification(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	var seen int
	s.Subscribe(func(e events.StoreEvent) {
		all, err := s.ReadAll(ctx, e.Collection, nil)
		require.NoError(t, err)
		seen = len(all)
	})

	_, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestReadAll_Filter(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	_, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	f := ambulance("A-2")
	f["statut"] = "Hors Service"
	_, err = s.Create(ctx, model.Ambulances, f)
	require.NoError(t, err)

	got, err := s.ReadAll(ctx, model.Ambulances, model.Filter{"statut": "Hors Service"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A-2", got[0].Fields["matricule"])

	got, err = s.ReadAll(ctx, model.Ambulances, model.Filter{"id": "1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReadResults_AreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, emptySource())
	rec, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	rec.Fields["statut"] = "Hors Service"

	back, err := s.ReadOne(ctx, model.Ambulances, 1)
	require.NoError(t, err)
	assert.Equal(t, "Disponible", back.Fields["statut"])
}

func TestLoad_SeedsOnceAndPersists(t *testing.T) {
	ctx := context.Background()
	src := emptySource()
	src.snap.Collections[model.Ambulances] = model.Collection{
		{ID: 1, Fields: map[string]any{"matricule": "AMB-001", "modele": "Sprinter", "statut": "Disponible"}},
	}
	s, kv := newStore(t, src)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Collections[model.Ambulances], 1)
	for _, name := range model.DefaultSchemas().Names() {
		assert.Contains(t, snap.Collections, name)
	}
	_, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	_, err = kv.Get(ctx, kvstore.KeySnapshot)
	require.NoError(t, err)
}

func TestLoad_SeedFailureIsSoftAndRetried(t *testing.T) {
	ctx := context.Background()
	src := &staticSource{err: errors.New("connection refused")}
	var logs bytes.Buffer
	kv := kvstore.Scope(kvstore.NewMemory(), "profile-1")
	s := New(kv, src, WithLogger(logger.NewWithWriter(&logs, "test", "debug")))

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	var entry struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Source  string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(bytes.SplitN(logs.Bytes(), []byte("\n"), 2)[0], &entry), logs.String())
	assert.Equal(t, "warn", entry.Level)
	assert.Contains(t, entry.Message, "seed fetch failed")
	assert.Equal(t, "connection refused", entry.Error)
	assert.Equal(t, "static", entry.Source)

	for _, name := range model.DefaultSchemas().Names() {
		c, ok := snap.Collections[name]
		assert.True(t, ok, name)
		assert.Empty(t, c, name)
	}
	_, err = kv.Get(ctx, kvstore.KeySnapshot)
	require.ErrorIs(t, err, kvstore.ErrKeyNotFound)

	src.err = nil
	src.snap = model.NewSnapshot(model.Ambulances)
	_, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestLoad_SeedTimeout(t *testing.T) {
	kv := kvstore.Scope(kvstore.NewMemory(), "p")
	s := New(kv, slowSource{}, WithSeedTimeout(20*time.Millisecond))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Collections[model.Ambulances])
}

func TestRoundTrip_ReloadFromSameContainer(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.Scope(kvstore.NewMemory(), "p")
	s := New(kv, seed.Embedded{})
	_, err := s.Create(ctx, model.Interventions, map[string]any{
		"type": "Accident", "statut": "Ouverte", "lieu": "Route de Rabat", "ambulanceId": 1, "date": "2024-06-01",
	})
	require.NoError(t, err)
	before, err := s.Load(ctx)
	require.NoError(t, err)

	reloaded := New(kv, &staticSource{err: errors.New("must not be called")})
	after, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after))
}

func TestImportAndReset(t *testing.T) {
	ctx := context.Background()
	src := emptySource()
	s, kv := newStore(t, src)
	got := recorder(s)
	_, err := s.Create(ctx, model.Ambulances, ambulance("A-1"))
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Ambulances, ambulance("A-2"))
	require.NoError(t, err)

	imp := model.NewSnapshot(model.Ambulances)
	imp.Collections[model.Ambulances] = model.Collection{{ID: 1, Fields: ambulance("IMP-1")}}
	require.NoError(t, s.Import(ctx, imp))

	rec, err := s.Create(ctx, model.Ambulances, ambulance("A-3"))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ID, "ids used before the import stay retired")

	bad := model.NewSnapshot(model.Ambulances)
	bad.Collections[model.Ambulances] = model.Collection{{ID: 1, Fields: ambulance("X")}, {ID: 1, Fields: ambulance("Y")}}
	require.ErrorIs(t, s.Import(ctx, bad), model.ErrConflict)

	require.NoError(t, s.Reset(ctx))
	_, err = kv.Get(ctx, kvstore.KeySnapshot)
	require.ErrorIs(t, err, kvstore.ErrKeyNotFound)
	assert.Equal(t, events.Reset, (*got)[len(*got)-1].Kind)
}

func TestLoad_CorruptSnapshotIsAnError(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t, emptySource())
	require.NoError(t, kv.Put(ctx, kvstore.KeySnapshot, []byte("{not json")))

	_, err := s.Load(ctx)
	require.Error(t, err)
	var syntax *json.SyntaxError
	assert.True(t, errors.As(err, &syntax))
}
