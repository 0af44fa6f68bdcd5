package ui

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/entitystore"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
	"github.com/Axmae/ambulance-management/internal/prefs"
	"github.com/Axmae/ambulance-management/internal/seed"
	"github.com/Axmae/ambulance-management/internal/session"
)

type harness struct {
	router  *Router
	store   *entitystore.Store
	session *session.Manager
	prefs   *prefs.Prefs
	dir     *portal.Directory
	updates *[]Update
}

func newHarness(t *testing.T) harness {
	t.Helper()
	kv := kvstore.Scope(kvstore.NewMemory(), "profile")
	catalog := i18n.MustLoad("fr")
	store := entitystore.New(kv, seed.Embedded{})
	sess := session.New(kv, session.AdminKeys, auth.NewAllowlist(auth.DefaultCredentials...), zerolog.Nop())
	p := prefs.New(kv, catalog, prefs.ThemeLight)
	dir := portal.New(kv, portal.WithBcryptCost(bcrypt.MinCost))
	rnd := MustRenderer()

	r := NewRouter(rnd, catalog, sess, p, zerolog.Nop())
	r.Register(NewDashboardView(store, dir, rnd))
	for _, c := range []string{model.Ambulances, model.Chauffeurs, model.Interventions, model.Hopitaux, model.Patients} {
		var opts []EntityOption
		if c == model.Interventions {
			opts = append(opts, WithRequests(dir))
		}
		v, err := NewEntityView(store, rnd, c, opts...)
		require.NoError(t, err)
		r.Register(v)
	}
	t.Cleanup(r.Bind(store, dir))

	var updates []Update
	r.Content().Subscribe(func(u Update) { updates = append(updates, u) })
	return harness{router: r, store: store, session: sess, prefs: p, dir: dir, updates: &updates}
}

func (h harness) login(t *testing.T) {
	t.Helper()
	_, err := h.session.Authenticate(context.Background(), "admin@app.com", "admin123")
	require.NoError(t, err)
}

func content(h harness) string { return string(h.router.Content().HTML()) }

func TestNavigate_LoggedOutShowsLogin(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Navigate(context.Background(), model.Ambulances))
	assert.Contains(t, content(h), `action="/admin/login"`)
	assert.Equal(t, model.Ambulances, h.router.Current())

	// loading indicator first, then the login form
	require.Len(t, *h.updates, 2)
	assert.Contains(t, string((*h.updates)[0].HTML), "Chargement...")
}

func TestLogin_RerendersRequestedView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.router.Navigate(ctx, model.Ambulances))
	h.login(t)

	last := (*h.updates)[len(*h.updates)-1]
	assert.True(t, last.Reload)
	assert.Contains(t, string(last.HTML), "AMB-001")

	require.NoError(t, h.session.Logout(ctx))
	assert.Contains(t, content(h), `action="/admin/login"`)
}

func TestNavigate_UnknownView(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.NoError(t, h.router.Navigate(context.Background(), "garages"))
	assert.Contains(t, content(h), "Page introuvable")
	assert.Equal(t, "garages", h.router.Current())
}

func TestNavigate_DefaultIsDashboard(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.NoError(t, h.router.Navigate(context.Background(), ""))
	assert.Equal(t, DefaultView, h.router.Current())
	assert.Contains(t, content(h), "Total Ambulances")
}

func TestStoreChange_RerendersWatchingView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	require.NoError(t, h.router.Navigate(ctx, model.Ambulances))
	before := h.router.Content().Version()

	_, err := h.store.Create(ctx, model.Patients, map[string]any{"nom": "Kabbaj", "prenom": "Leila"})
	require.NoError(t, err)
	assert.Equal(t, before, h.router.Content().Version(), "patients do not concern the ambulances view")

	_, err = h.store.Create(ctx, model.Ambulances, map[string]any{"matricule": "AMB-777", "modele": "Iveco Daily", "statut": "Disponible"})
	require.NoError(t, err)
	assert.Equal(t, before+1, h.router.Content().Version())
	assert.Contains(t, content(h), "AMB-777")
}

func TestSubmit_MissingRequiredFieldNeverReachesStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	require.NoError(t, h.router.ShowForm(ctx, model.Ambulances, 0))

	err := h.router.Submit(ctx, model.Ambulances, 0, url.Values{"matricule": {" "}, "modele": {"Iveco"}, "statut": {"Disponible"}})
	var fe model.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.FieldErrors{"matricule": model.MsgRequired}, fe)
	assert.Contains(t, content(h), "Ce champ est obligatoire.")
	assert.Contains(t, content(h), `value="Iveco"`)

	recs, err := h.store.ReadAll(ctx, model.Ambulances, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestSubmit_RacingRendersLeaveLatestPublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	require.NoError(t, h.router.Navigate(ctx, model.Ambulances))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.router.Submit(ctx, model.Ambulances, 0, url.Values{"modele": {"Iveco"}})
		}()
		go func() {
			defer wg.Done()
			_ = h.router.Navigate(ctx, model.Ambulances)
		}()
	}
	wg.Wait()

	last := (*h.updates)[len(*h.updates)-1]
	assert.Equal(t, h.router.Content().Version(), last.Version)
	assert.Equal(t, h.router.Content().HTML(), last.HTML)
}

func TestSubmit_CreateAndUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.router.Submit(ctx, model.Ambulances, 0, url.Values{
		"matricule": {"AMB-005"}, "modele": {"Iveco Daily"}, "statut": {"Disponible"}, "localisation": {""},
	}))
	assert.Contains(t, content(h), "Ajouté avec succès !")
	assert.Contains(t, content(h), "AMB-005")

	rec, err := h.store.ReadOne(ctx, model.Ambulances, 5)
	require.NoError(t, err)
	_, has := rec.Get("localisation")
	assert.False(t, has)

	require.NoError(t, h.router.Submit(ctx, model.Ambulances, 5, url.Values{
		"matricule": {"AMB-005"}, "modele": {"Iveco Daily"}, "statut": {"Hors Service"}, "localisation": {"Fès"},
	}))
	assert.Contains(t, content(h), "Modifications enregistrées.")
	rec, err = h.store.ReadOne(ctx, model.Ambulances, 5)
	require.NoError(t, err)
	assert.Equal(t, "Hors Service", rec.String("statut"))

	err = h.router.Submit(ctx, model.Ambulances, 99, url.Values{"matricule": {"X"}, "modele": {"Y"}, "statut": {"Disponible"}})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, content(h), "Cet élément n&#39;existe plus.")
}

func TestSubmit_StoreValidationShowsInline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	err := h.router.Submit(ctx, model.Ambulances, 0, url.Values{"matricule": {"A"}, "modele": {"B"}, "statut": {"Volante"}})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, content(h), "Valeur non autorisée.")
}

func TestShowForm_Edit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.router.ShowForm(ctx, model.Interventions, 1))
	html := content(h)
	assert.Contains(t, html, `value="Boulevard Zerktouni"`)
	assert.Contains(t, html, `<option value="2" selected>AMB-002</option>`)

	err := h.router.ShowForm(ctx, model.Interventions, 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, content(h), "Cet élément n&#39;existe plus.")
}

func TestDelete_Flashes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.router.Delete(ctx, model.Patients, 3))
	assert.Contains(t, content(h), "Élément supprimé.")
	assert.NotContains(t, content(h), "Berrada")

	assert.ErrorIs(t, h.router.Delete(ctx, model.Patients, 3), model.ErrNotFound)
	assert.Contains(t, content(h), "Cet élément n&#39;existe plus.")
}

func TestMutations_RequireSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.ErrorIs(t, h.router.Delete(ctx, model.Patients, 1), ErrLoggedOut)
	assert.ErrorIs(t, h.router.Submit(ctx, model.Patients, 0, url.Values{}), ErrLoggedOut)

	_, err := h.store.ReadOne(ctx, model.Patients, 1)
	assert.NoError(t, err)
}

func TestLanguageChange_Rerenders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	require.NoError(t, h.router.Navigate(ctx, model.Hopitaux))
	assert.Contains(t, content(h), "Hôpitaux")

	require.NoError(t, h.prefs.SetLanguage(ctx, "en"))
	assert.Contains(t, content(h), "Hospitals")
	assert.True(t, (*h.updates)[len(*h.updates)-1].Reload)
}

func TestListQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	v, ok := h.router.Entity(model.Ambulances)
	require.True(t, ok)
	v.SetQuery(ListQuery{Statut: "Disponible"})
	require.NoError(t, h.router.Navigate(ctx, model.Ambulances))
	html := content(h)
	assert.Contains(t, html, "AMB-001")
	assert.Contains(t, html, "AMB-003")
	assert.NotContains(t, html, "AMB-002")

	v.SetQuery(ListQuery{Search: "rabat"})
	require.NoError(t, h.router.Navigate(ctx, model.Ambulances))
	html = content(h)
	assert.Contains(t, html, "AMB-003")
	assert.NotContains(t, html, "AMB-001")

	var buf bytes.Buffer
	require.NoError(t, v.WriteCSV(ctx, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,matricule,modele,statut,localisation", lines[0])
	assert.Equal(t, "3,AMB-003,Volkswagen Crafter,Disponible,Rabat - Agdal", lines[1])
}

func TestInterventions_ShowPortalRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	_, err := h.dir.Signup(ctx, portal.SignupForm{Name: "Karim", Email: "karim@example.ma", Phone: "0612345678", Password: "secret123", Confirm: "secret123"})
	require.NoError(t, err)
	require.NoError(t, h.router.Navigate(ctx, model.Interventions))
	assert.NotContains(t, content(h), "karim@example.ma")

	_, err = h.dir.SubmitRequest(ctx, "karim@example.ma", portal.RequestForm{
		Type:    model.RequestUrgent,
		Address: "Derb Sultan",
		Details: map[string]string{"phone": "0612345678", "problemType": "accident"},
	})
	require.NoError(t, err)
	html := content(h)
	assert.Contains(t, html, "karim@example.ma")
	assert.Contains(t, html, "Urgence Vitale")
	// foreign keys are shown by label
	assert.Contains(t, html, "AMB-002")
}

func TestWriteShell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	require.NoError(t, h.prefs.SetTheme(ctx, prefs.ThemeDark))
	require.NoError(t, h.router.Navigate(ctx, model.Chauffeurs))

	var buf bytes.Buffer
	require.NoError(t, h.router.WriteShell(ctx, &buf, true))
	page := buf.String()
	assert.Contains(t, page, `data-theme="dark"`)
	assert.Contains(t, page, `href="/admin/views/chauffeurs" class="active"`)
	assert.Contains(t, page, "Benali")
	assert.Contains(t, page, "/admin/live")
	assert.Contains(t, page, "admin@app.com")
}

func TestWriteShell_RightToLeft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.prefs.SetLanguage(ctx, "ar"))
	require.NoError(t, h.router.Navigate(ctx, ""))

	var buf bytes.Buffer
	require.NoError(t, h.router.WriteShell(ctx, &buf, false))
	assert.Contains(t, buf.String(), `dir="rtl"`)
	assert.NotContains(t, buf.String(), "<nav>")
}

func TestLanguageHint(t *testing.T) {
	h := newHarness(t)
	ctx := WithLanguageHint(context.Background(), "en-GB,en;q=0.8")
	require.NoError(t, h.router.Navigate(ctx, ""))
	assert.Contains(t, content(h), "Administrator login")
}
