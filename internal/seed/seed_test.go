package seed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Axmae/ambulance-management/internal/model"
)

func TestEmbedded_HasEveryCollection(t *testing.T) {
	snap, err := Embedded{}.Fetch(context.Background())
	require.NoError(t, err)
	for _, name := range model.DefaultSchemas().Names() {
		assert.NotEmpty(t, snap.Collections[name], name)
	}
}

func TestEmbedded_RecordsMatchSchemas(t *testing.T) {
	snap, err := Embedded{}.Fetch(context.Background())
	require.NoError(t, err)
	schemas := model.DefaultSchemas()
	for name, c := range snap.Collections {
		sc, err := schemas.Lookup(name)
		require.NoError(t, err)
		for _, r := range c {
			_, err := sc.Validate(r.Fields, false)
			assert.NoError(t, err, "%s/%d", name, r.ID)
		}
	}
}

func TestFile_JSONCAndYAML(t *testing.T) {
	ctx := context.Background()

	snap, err := File{Path: "testdata/seed.jsonc"}.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Collections[model.Ambulances], 1)
	assert.Equal(t, 7, snap.Collections[model.Ambulances][0].ID)
	assert.Empty(t, snap.Collections[model.Patients])

	snap, err = File{Path: "testdata/seed.yaml"}.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Collections[model.Hopitaux], 1)
	assert.Equal(t, int64(350), snap.Collections[model.Hopitaux][0].Fields["capacite"])
}

func TestFile_Missing(t *testing.T) {
	_, err := File{Path: "testdata/nope.json"}.Fetch(context.Background())
	require.Error(t, err)
}

func TestHTTP_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/initial-data.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"patients":[{"id":2,"nom":"Idrissi","prenom":"Omar"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	snap, err := NewHTTP(srv.URL+"/initial-data.json", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Collections[model.Patients], 1)

	_, err = NewHTTP(srv.URL+"/missing.json", time.Second).Fetch(context.Background())
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, Embedded{}, FromConfig("", time.Second))
	assert.IsType(t, Embedded{}, FromConfig("embedded", time.Second))
	assert.IsType(t, &HTTP{}, FromConfig("https://example.test/seed.json", time.Second))
	assert.Equal(t, File{Path: "/etc/seed.yaml"}, FromConfig("/etc/seed.yaml", time.Second))
}
