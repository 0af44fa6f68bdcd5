package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Session mirrors the admin session of the profile.
type Session struct {
	LoggedIn bool   `json:"loggedIn"`
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Record is one entity; the service sends id next to the other fields.
type Record struct {
	ID     int
	Fields map[string]any
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
	n, ok := raw["id"].(json.Number)
	if !ok {
		return fmt.Errorf("record without numeric id")
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	delete(raw, "id")
	r.ID = int(id)
	r.Fields = raw
	return nil
}

// String returns a field as text, or "" when absent.
func (r Record) String(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Snapshot is every collection of a profile plus the id high-water marks.
type Snapshot struct {
	Collections map[string][]Record
	Sequences   map[string]int
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Collections = make(map[string][]Record, len(raw))
	s.Sequences = map[string]int{}
	for k, v := range raw {
		if k == "_sequences" {
			if err := json.Unmarshal(v, &s.Sequences); err != nil {
				return fmt.Errorf("snapshot sequences: %w", err)
			}
			continue
		}
		var c []Record
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("snapshot collection %q: %w", k, err)
		}
		s.Collections[k] = c
	}
	return nil
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

type listResponse struct {
	Records []Record `json:"records"`
	Count   int      `json:"count"`
}
