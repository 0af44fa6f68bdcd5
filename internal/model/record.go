package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Record is one item of a collection. Fields never contains "id".
type Record struct {
	ID     int            `json:"-"`
	Fields map[string]any `json:"-"`
}

// Get returns the named field; "id" resolves to the record identifier.
func (r Record) Get(field string) (any, bool) {
	if field == "id" {
		return int64(r.ID), true
	}
	v, ok := r.Fields[field]
	return v, ok
}

// String returns a field formatted for display, or "" when absent.
func (r Record) String(field string) string {
	v, ok := r.Get(field)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: cloneMap(r.Fields)}
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	id, err := toID(raw["id"])
	if err != nil {
		return err
	}
	delete(raw, "id")
	r.ID = id
	r.Fields = NormalizeFields(raw)
	return nil
}

func toID(v any) (int, error) {
	switch n := Normalize(v).(type) {
	case int64:
		if n < 1 {
			return 0, fmt.Errorf("record id must be positive, got %d", n)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("record without id")
	default:
		return 0, fmt.Errorf("record id must be an integer, got %T", v)
	}
}

// Collection is an ordered sequence of records of one entity kind.
type Collection []Record

// Index returns the position of id, or -1.
func (c Collection) Index(id int) int {
	for i, r := range c {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// MaxID returns the largest identifier in the collection, 0 when empty.
func (c Collection) MaxID() int {
	max := 0
	for _, r := range c {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, r := range c {
		out[i] = r.Clone()
	}
	return out
}

// sequencesKey holds per-collection id high-water marks inside the serialized snapshot.
const sequencesKey = "_sequences"

// Snapshot is the full persisted state of all collections of one profile.
type Snapshot struct {
	Collections map[string]Collection
	Sequences   map[string]int
}

// NewSnapshot returns a snapshot with every named collection present and empty.
func NewSnapshot(collections ...string) Snapshot {
	s := Snapshot{Collections: make(map[string]Collection, len(collections)), Sequences: map[string]int{}}
	for _, c := range collections {
		s.Collections[c] = Collection{}
	}
	return s
}

// Ensure adds empty collections for any missing names.
func (s *Snapshot) Ensure(collections ...string) {
	if s.Collections == nil {
		s.Collections = map[string]Collection{}
	}
	if s.Sequences == nil {
		s.Sequences = map[string]int{}
	}
	for _, c := range collections {
		if _, ok := s.Collections[c]; !ok {
			s.Collections[c] = Collection{}
		}
	}
}

// NextID returns the identifier the next created record of collection receives.
// Ids of deleted records are never handed out again.
func (s Snapshot) NextID(collection string) int {
	next := s.Collections[collection].MaxID()
	if seq := s.Sequences[collection]; seq > next {
		next = seq
	}
	return next + 1
}

// Names returns the collection names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Collections))
	for n := range s.Collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Collections: make(map[string]Collection, len(s.Collections)),
		Sequences:   make(map[string]int, len(s.Sequences)),
	}
	for k, c := range s.Collections {
		out.Collections[k] = c.Clone()
	}
	for k, v := range s.Sequences {
		out.Sequences[k] = v
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Collections)+1)
	for k, c := range s.Collections {
		if c == nil {
			c = Collection{}
		}
		out[k] = c
	}
	if len(s.Sequences) > 0 {
		out[sequencesKey] = s.Sequences
	}
	return json.Marshal(out)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Collections = make(map[string]Collection, len(raw))
	s.Sequences = map[string]int{}
	for k, v := range raw {
		if k == sequencesKey {
			if err := json.Unmarshal(v, &s.Sequences); err != nil {
				return fmt.Errorf("snapshot sequences: %w", err)
			}
			continue
		}
		var c Collection
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("snapshot collection %q: %w", k, err)
		}
		if c == nil {
			c = Collection{}
		}
		if err := checkUniqueIDs(k, c); err != nil {
			return err
		}
		s.Collections[k] = c
	}
	return nil
}

func checkUniqueIDs(name string, c Collection) error {
	seen := make(map[int]struct{}, len(c))
	for _, r := range c {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("snapshot collection %q: duplicate id %d: %w", name, r.ID, ErrConflict)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// Filter narrows a collection by field equality. Values are compared after Normalize.
type Filter map[string]any

// Match reports whether r satisfies every condition of f.
func (f Filter) Match(r Record) bool {
	for field, want := range f {
		got, ok := r.Get(field)
		if !ok {
			return false
		}
		if !equalValues(Normalize(got), Normalize(want)) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	// Form and query values arrive as strings; compare loosely against scalars.
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
		return as == fmt.Sprint(b)
	}
	if bs, ok := b.(string); ok {
		return fmt.Sprint(a) == bs
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Normalize maps decoded JSON and Go numeric values onto a small canonical set:
// int64 for integral numbers, float64 otherwise, recursively for maps and slices.
func Normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return Normalize(f)
		}
		return n.String()
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return Normalize(float64(n))
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case map[string]any:
		return NormalizeFields(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

// NormalizeFields applies Normalize to every value of m, returning a new map.
func NormalizeFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
