// Package kvtest is a compliance suite shared by every kvstore backend.
package kvtest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/model"
)

// Run exercises a kvstore.Store implementation.
// makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) kvstore.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	profile := "p-" + uuid.New().String()
	other := "p-" + uuid.New().String()
	a := kvstore.Scope(s, profile)
	b := kvstore.Scope(s, other)

	// Missing key
	if _, err := a.Get(ctx, kvstore.KeyTheme); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Fatalf("Get missing: want ErrKeyNotFound, got %v", err)
	}

	// Put / Get / overwrite
	if err := a.Put(ctx, kvstore.KeyTheme, []byte("dark")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := a.Put(ctx, kvstore.KeyTheme, []byte("light")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if v, err := a.Get(ctx, kvstore.KeyTheme); err != nil || string(v) != "light" {
		t.Fatalf("Get: got=%q err=%v", v, err)
	}

	// Profiles are isolated
	if _, err := b.Get(ctx, kvstore.KeyTheme); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Fatalf("profile leak: %v", err)
	}
	if err := b.Put(ctx, kvstore.KeyLanguage, []byte("ar")); err != nil {
		t.Fatalf("Put other profile: %v", err)
	}

	// List is scoped and sorted
	if err := a.Put(ctx, kvstore.KeyAdminEmail, []byte("admin@app.com")); err != nil {
		t.Fatalf("Put email: %v", err)
	}
	keys, err := a.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{kvstore.KeyTheme, kvstore.KeyAdminEmail}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List: got %v want %v", keys, want)
	}
	profiles, err := kvstore.Profiles(ctx, s)
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if !contains(profiles, profile) || !contains(profiles, other) {
		t.Fatalf("Profiles: %v missing %s or %s", profiles, profile, other)
	}

	// Delete is idempotent
	if err := a.Delete(ctx, kvstore.KeyTheme); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Delete(ctx, kvstore.KeyTheme); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if _, err := a.Get(ctx, kvstore.KeyTheme); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}

	// A snapshot survives a byte round trip unchanged
	snap := model.NewSnapshot(model.Ambulances, model.Patients)
	snap.Collections[model.Ambulances] = model.Collection{
		{ID: 1, Fields: map[string]any{"matricule": "AMB-001", "modele": "Mercedes Sprinter", "statut": "Disponible"}},
		{ID: 4, Fields: map[string]any{"matricule": "AMB-004", "modele": "Renault Master", "statut": "Hors Service"}},
	}
	snap.Sequences[model.Ambulances] = 5
	raw, err := snap.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := a.Put(ctx, kvstore.KeySnapshot, raw); err != nil {
		t.Fatalf("Put snapshot: %v", err)
	}
	got, err := a.Get(ctx, kvstore.KeySnapshot)
	if err != nil {
		t.Fatalf("Get snapshot: %v", err)
	}
	var back model.Snapshot
	if err := back.UnmarshalJSON(got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if !reflect.DeepEqual(back, snap) {
		t.Fatalf("snapshot round trip mismatch:\n got %#v\nwant %#v", back, snap)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
