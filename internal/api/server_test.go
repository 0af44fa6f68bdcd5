package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Axmae/ambulance-management/internal/appstate"
	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/live"
	"github.com/Axmae/ambulance-management/internal/prefs"
	"github.com/Axmae/ambulance-management/internal/seed"
	"github.com/Axmae/ambulance-management/internal/site"
	"github.com/Axmae/ambulance-management/internal/ui"
)

type fakeHealth struct{ up bool }

func (f fakeHealth) IsHealthy() bool             { return f.up }
func (f fakeHealth) Components() map[string]bool { return map[string]bool{"kvstore": f.up} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog := i18n.MustLoad("fr")
	rnd := ui.MustRenderer()
	reg, err := appstate.NewRegistry(appstate.Deps{
		Backend:      kvstore.NewMemory(),
		Seed:         seed.Embedded{},
		Catalog:      catalog,
		Renderer:     rnd,
		AdminAuth:    auth.NewAllowlist(auth.DefaultCredentials...),
		DefaultTheme: prefs.ThemeLight,
		BcryptCost:   bcrypt.MinCost,
		Log:          zerolog.Nop(),
	}, 8)
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	pages, err := site.Load("fr")
	require.NoError(t, err)

	srv := httptest.NewServer(New(Options{
		Registry:    reg,
		Renderer:    rnd,
		Catalog:     catalog,
		Site:        pages,
		Hub:         live.NewHub(zerolog.Nop()),
		Health:      fakeHealth{up: true},
		LiveUpdates: true,
		Log:         zerolog.Nop(),
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// browser keeps cookies and never follows redirects.
type browser struct {
	t    *testing.T
	base string
	c    *http.Client
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: srv.URL, c: &http.Client{
		Jar:           jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.c.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) json(method, path, body string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(method, b.base+path, strings.NewReader(body))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

func TestHealthz(t *testing.T) {
	b := newBrowser(t, newTestServer(t))
	resp, body := b.get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "healthy", got.Status)
	assert.True(t, got.Components["kvstore"])
	assert.Empty(t, resp.Header.Values("Set-Cookie"), "health checks get no profile")
}

func TestMetricsEndpoint(t *testing.T) {
	b := newBrowser(t, newTestServer(t))
	b.get("/healthz")
	resp, body := b.get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `ambulance_admin_http_requests_total{code="200",route="/healthz"}`)
}

func TestSite_IssuesProfileCookie(t *testing.T) {
	b := newBrowser(t, newTestServer(t))
	resp, body := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Ambulances 24h/24")
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, "ambulance_profile", resp.Cookies()[0].Name)

	resp, _ = b.get("/pages/services")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies(), "the cookie is issued once")

	resp, _ = b.get("/pages/careers")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_LoginAndCrud(t *testing.T) {
	b := newBrowser(t, newTestServer(t))

	resp, body := b.get("/admin/views/ambulances")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/admin/login"`)

	resp, body = b.post("/admin/login", url.Values{"email": {"admin@app.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Email ou mot de passe incorrect.")

	resp, _ = b.post("/admin/login", url.Values{"email": {"admin@app.com"}, "password": {"admin123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/views/ambulances", resp.Header.Get("Location"))

	_, body = b.get("/admin/views/ambulances")
	assert.Contains(t, body, "AMB-001")

	resp, body = b.post("/admin/views/ambulances", url.Values{"matricule": {""}, "modele": {"Iveco"}, "statut": {"Disponible"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Ce champ est obligatoire.")

	resp, _ = b.post("/admin/views/ambulances", url.Values{"matricule": {"AMB-555"}, "modele": {"Iveco"}, "statut": {"Disponible"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/admin/views/ambulances")
	assert.Contains(t, body, "AMB-555")
	assert.Contains(t, body, "Ajouté avec succès !")

	resp, body = b.get("/admin/views/ambulances/export.csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "AMB-555")

	resp, body = b.get("/admin/views/ambulances/1/edit")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/admin/views/ambulances/1"`)

	resp, _ = b.get("/admin/views/ambulances/99/edit")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.post("/admin/views/ambulances/1/delete", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = b.get("/admin/views/garages")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page introuvable")

	resp, _ = b.post("/admin/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = b.get("/admin/views/ambulances/export.csv")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAdmin_Prefs(t *testing.T) {
	b := newBrowser(t, newTestServer(t))
	resp, _ := b.post("/admin/prefs/language", url.Values{"lang": {"en"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := b.get("/admin")
	assert.Contains(t, body, "Administrator login")

	resp, _ = b.post("/admin/prefs/language", url.Values{"lang": {"de"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = b.post("/admin/prefs/theme", url.Values{"theme": {"dark"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/admin")
	assert.Contains(t, body, `data-theme="dark"`)
}

func TestAdmin_ProfilesAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	a, other := newBrowser(t, srv), newBrowser(t, srv)
	resp, _ := a.post("/admin/login", url.Values{"email": {"admin@app.com"}, "password": {"admin123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := other.get("/admin/views/ambulances")
	assert.Contains(t, body, `action="/admin/login"`)
	assert.NotContains(t, body, "AMB-001")
}

func TestJSONAPI(t *testing.T) {
	b := newBrowser(t, newTestServer(t))

	resp, _ := b.get("/api/collections/ambulances")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := b.json(http.MethodPost, "/api/session", `{"email":"admin@app.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, body = b.json(http.MethodPost, "/api/session", `{"email":"admin@app.com","password":"admin123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"loggedIn":true`)

	var list struct {
		Count int `json:"count"`
	}
	_, body = b.get("/api/collections/ambulances")
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	assert.Equal(t, 4, list.Count)
	_, body = b.get("/api/collections/ambulances?statut=Disponible")
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	assert.Equal(t, 2, list.Count)

	resp, body = b.json(http.MethodPost, "/api/collections/hopitaux", `{"nom":"Hôpital Cheikh Khalifa","ville":"Casablanca","capacite":300}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.EqualValues(t, 3, created["id"])

	resp, body = b.json(http.MethodPost, "/api/collections/hopitaux", `{"nom":"Sans ville"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `"ville":"required_field"`)

	resp, body = b.json(http.MethodPatch, "/api/collections/hopitaux/3", `{"capacite":"350"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"capacite":350`)

	resp, _ = b.json(http.MethodDelete, "/api/collections/hopitaux/3", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = b.get("/api/collections/hopitaux/3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = b.get("/api/collections/garages")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = b.get("/api/snapshot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"_sequences"`)

	resp, _ = b.json(http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = b.get("/api/session")
	assert.Contains(t, body, `"loggedIn":false`)
}

func TestPortal_Flow(t *testing.T) {
	b := newBrowser(t, newTestServer(t))

	resp, _ := b.get("/portal")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/portal/login", resp.Header.Get("Location"))

	resp, body := b.post("/portal/signup", url.Values{
		"name": {"Yo"}, "email": {"youssef@example.ma"}, "phone": {"0612345678"},
		"password": {"motdepasse"}, "confirm": {"motdepasse"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `value="youssef@example.ma"`)

	resp, _ = b.post("/portal/signup", url.Values{
		"name": {"Youssef Alami"}, "email": {"youssef@example.ma"}, "phone": {"06 12 34 56 78"},
		"password": {"motdepasse"}, "confirm": {"motdepasse"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/portal/login")
	assert.Contains(t, body, "Inscription réussie !")
	_, body = b.get("/portal/login")
	assert.NotContains(t, body, "Inscription réussie !", "flash shows once")

	resp, _ = b.post("/portal/login", url.Values{"email": {"youssef@example.ma"}, "password": {"mauvais"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = b.post("/portal/login", url.Values{"email": {"youssef@example.ma"}, "password": {"motdepasse"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.post("/portal/requests", url.Values{"type": {"urgent"}, "address": {" "}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = b.post("/portal/requests", url.Values{"type": {"urgent"}, "address": {"12 rue Allal Ben Abdellah, Casablanca"},
		"phone": {"0612345678"}, "problemType": {"accident"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = b.get("/portal")
	assert.Contains(t, body, "Demande envoyée avec succès !")
	assert.Contains(t, body, "10-15 minutes")
	assert.Contains(t, body, "/cancel")

	_, body = b.get("/portal/history?filter=completed")
	assert.NotContains(t, body, "12 rue Allal")
	_, body = b.get("/portal/history?filter=pending")
	assert.Contains(t, body, "12 rue Allal")

	// the admin incidents view lists the request
	resp, _ = b.post("/admin/login", url.Values{"email": {"admin@app.com"}, "password": {"admin123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/admin/views/interventions")
	assert.Contains(t, body, "youssef@example.ma")

	resp, _ = b.post("/portal/requests/delete-all", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/portal/history")
	assert.NotContains(t, body, "12 rue Allal")

	resp, _ = b.post("/portal/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = b.get("/portal/history")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

var requestLink = regexp.MustCompile(`href="/portal/requests/([0-9a-f-]{36})"`)

func TestPortal_RequestDetailsPage(t *testing.T) {
	b := newBrowser(t, newTestServer(t))
	resp, _ := b.post("/portal/signup", url.Values{
		"name": {"Salma Idrissi"}, "email": {"salma@example.ma"}, "phone": {"0661234567"},
		"password": {"motdepasse"}, "confirm": {"motdepasse"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	resp, _ = b.post("/portal/login", url.Values{"email": {"salma@example.ma"}, "password": {"motdepasse"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// the failed form comes back open with its own errors
	resp, body := b.post("/portal/requests", url.Values{"type": {"doctor"}, "address": {"Hay Riad, Rabat"}, "consultationType": {"pediatric"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `class="request-form request-doctor" open`)
	assert.Contains(t, body, "Ce champ est obligatoire.")
	assert.Contains(t, body, `value="Hay Riad, Rabat"`)

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly)
	resp, _ = b.post("/portal/requests", url.Values{
		"type":             {"doctor"},
		"address":          {"Hay Riad, Rabat"},
		"date":             {tomorrow},
		"time":             {"17:30"},
		"consultationType": {"pediatric"},
		"symptoms":         {"fever", "cough"},
		"patientCount":     {"2"},
		"description":      {"Fievre depuis deux jours"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = b.get("/portal")
	m := requestLink.FindStringSubmatch(body)
	require.NotNil(t, m, "dashboard links to the request")

	resp, body = b.get("/portal/requests/" + m[1])
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Détails de la demande")
	assert.Contains(t, body, m[1])
	assert.Contains(t, body, "Hay Riad, Rabat")
	assert.Contains(t, body, tomorrow)
	assert.Contains(t, body, "17:30")
	assert.Contains(t, body, "Pédiatrique")
	assert.Contains(t, body, "Fièvre, Toux")
	assert.Contains(t, body, "Fievre depuis deux jours")
	assert.Contains(t, body, "Non spécifié", "medication was left empty")
	assert.Contains(t, body, `<li class="current">Demande reçue</li>`)

	resp, _ = b.get("/portal/requests/00000000-0000-0000-0000-000000000000")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/portal/history", resp.Header.Get("Location"))
}
