// Package ui renders the admin dashboard on the server. A Router owns the
// content region of one profile and re-renders it whenever the session, the
// preferences or a watched collection change.
package ui

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/events"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/prefs"
	"github.com/Axmae/ambulance-management/internal/session"
)

// DefaultView is shown when no view is named.
const DefaultView = "dashboard"

// ErrLoggedOut is returned by operations that need an admin session.
var ErrLoggedOut = errors.New("not logged in")

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot message shown above the content. Key is an i18n key.
type Flash struct {
	Kind string
	Key  string
}

// Input is what every view receives when it renders.
type Input struct {
	I     i18n.Translator
	Flash *Flash
}

// View renders one navigable page into the content region.
type View interface {
	Name() string
	// Watches reports whether changes to collection affect the view.
	Watches(collection string) bool
	Render(ctx context.Context, in Input) (template.HTML, error)
}

// Watchable is anything publishing collection changes.
type Watchable interface {
	Subscribe(fn func(events.StoreEvent)) (unsubscribe func())
}

type mode int

const (
	modeList mode = iota
	modeForm
)

type langHintKey struct{}

// WithLanguageHint attaches the request's Accept-Language header to ctx.
func WithLanguageHint(ctx context.Context, acceptLanguage string) context.Context {
	return context.WithValue(ctx, langHintKey{}, acceptLanguage)
}

// Router tracks the current view of one profile and keeps its content
// region up to date.
type Router struct {
	rnd     *Renderer
	catalog *i18n.Catalog
	session *session.Manager
	prefs   *prefs.Prefs
	log     zerolog.Logger
	content *Region
	views   map[string]View
	nav     []string

	mu      sync.Mutex
	current string
	mode    mode
	formID  int
	flash   *Flash
	hint    string

	// serializes renders so the region always holds the latest one
	renderMu sync.Mutex
}

// NewRouter returns a router showing DefaultView.
func NewRouter(rnd *Renderer, catalog *i18n.Catalog, sess *session.Manager, p *prefs.Prefs, log zerolog.Logger) *Router {
	return &Router{
		rnd:     rnd,
		catalog: catalog,
		session: sess,
		prefs:   p,
		log:     log,
		content: NewRegion(),
		views:   make(map[string]View),
		current: DefaultView,
	}
}

// Register adds v to the navigation, in call order.
func (r *Router) Register(v View) {
	if _, dup := r.views[v.Name()]; !dup {
		r.nav = append(r.nav, v.Name())
	}
	r.views[v.Name()] = v
}

// Content is the region views render into.
func (r *Router) Content() *Region { return r.content }

// Current returns the name of the current view.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Entity returns the entity view registered under name.
func (r *Router) Entity(name string) (*EntityView, bool) {
	ev, ok := r.views[name].(*EntityView)
	return ev, ok
}

// Bind subscribes the router to the session, the preferences and every
// watched source. The returned func undoes all subscriptions.
func (r *Router) Bind(sources ...Watchable) (unbind func()) {
	var unsubs []func()
	unsubs = append(unsubs, r.session.Subscribe(func(events.SessionEvent) {
		r.refresh(context.Background(), true)
	}))
	unsubs = append(unsubs, r.prefs.Subscribe(func(events.PrefsEvent) {
		r.refresh(context.Background(), true)
	}))
	for _, src := range sources {
		unsubs = append(unsubs, src.Subscribe(r.onStore))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Router) onStore(e events.StoreEvent) {
	r.mu.Lock()
	name, m := r.current, r.mode
	r.mu.Unlock()
	if m != modeList {
		return
	}
	v, ok := r.views[name]
	if !ok || !v.Watches(e.Collection) && e.Kind != events.Reset {
		return
	}
	r.refresh(context.Background(), false)
}

func (r *Router) refresh(ctx context.Context, reload bool) {
	if err := r.render(ctx, reload, false); err != nil {
		r.log.Error().Err(err).Str("view", r.Current()).Msg("re-render failed")
	}
}

// Flash queues a message for the next render.
func (r *Router) Flash(kind, key string) {
	r.mu.Lock()
	r.flash = &Flash{Kind: kind, Key: key}
	r.mu.Unlock()
}

func (r *Router) translator(ctx context.Context) (i18n.Translator, error) {
	r.mu.Lock()
	if h, ok := ctx.Value(langHintKey{}).(string); ok {
		r.hint = h
	}
	hint := r.hint
	r.mu.Unlock()
	lang, err := r.prefs.Language(ctx, hint)
	if err != nil {
		return i18n.Translator{}, err
	}
	return r.catalog.For(lang), nil
}

// Navigate makes name the current view: the region first shows the loading
// indicator, then the view. Unknown names show the not-found placeholder and
// a logged-out profile gets the login form.
func (r *Router) Navigate(ctx context.Context, name string) error {
	if name == "" {
		name = DefaultView
	}
	r.mu.Lock()
	r.current = name
	r.mode = modeList
	r.formID = 0
	r.mu.Unlock()

	t, err := r.translator(ctx)
	if err != nil {
		return err
	}
	loading, err := r.rnd.Fragment("loading", Input{I: t})
	if err != nil {
		return err
	}
	r.content.Set(loading, false)
	return r.render(ctx, false, true)
}

func (r *Router) render(ctx context.Context, reload, consumeFlash bool) error {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	t, err := r.translator(ctx)
	if err != nil {
		return err
	}
	sess, err := r.session.Current(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	name, m, id, flash := r.current, r.mode, r.formID, r.flash
	if consumeFlash {
		r.flash = nil
	}
	r.mu.Unlock()
	in := Input{I: t, Flash: flash}

	var html template.HTML
	v, known := r.views[name]
	switch {
	case !sess.LoggedIn:
		html, err = r.rnd.Fragment("login", in)
	case !known:
		html, err = r.rnd.Fragment("not_found", in)
	case m == modeForm:
		ev := v.(*EntityView)
		html, err = ev.editForm(ctx, in, id)
		if errors.Is(err, model.ErrNotFound) {
			r.mu.Lock()
			r.mode = modeList
			r.mu.Unlock()
			in.Flash = &Flash{Kind: FlashError, Key: "record_not_found"}
			html, err = v.Render(ctx, in)
		}
	default:
		html, err = v.Render(ctx, in)
	}
	if err != nil {
		return err
	}
	r.content.Set(html, reload)
	return nil
}

// loggedIn renders the login form and returns ErrLoggedOut when the profile
// has no admin session.
func (r *Router) loggedIn(ctx context.Context) error {
	sess, err := r.session.Current(ctx)
	if err != nil {
		return err
	}
	if sess.LoggedIn {
		return nil
	}
	if err := r.render(ctx, false, true); err != nil {
		return err
	}
	return ErrLoggedOut
}

func (r *Router) entity(ctx context.Context, name string) (*EntityView, error) {
	if err := r.loggedIn(ctx); err != nil {
		return nil, err
	}
	ev, ok := r.Entity(name)
	if !ok {
		r.mu.Lock()
		r.current = name
		r.mode = modeList
		r.mu.Unlock()
		if err := r.render(ctx, false, true); err != nil {
			return nil, err
		}
		return nil, model.ErrNotFound
	}
	return ev, nil
}

func (r *Router) show(ctx context.Context, name string, m mode, id int) error {
	r.mu.Lock()
	r.current = name
	r.mode = m
	r.formID = id
	r.mu.Unlock()
	return r.render(ctx, false, false)
}

// ShowForm renders the create form (id 0) or the edit form of a record.
// A missing record flashes a message and returns to the list.
func (r *Router) ShowForm(ctx context.Context, name string, id int) error {
	ev, err := r.entity(ctx, name)
	if err != nil {
		return err
	}
	if id != 0 {
		if _, err := ev.store.ReadOne(ctx, name, id); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				r.Flash(FlashError, "record_not_found")
				if lerr := r.show(ctx, name, modeList, 0); lerr != nil {
					return lerr
				}
			}
			return err
		}
	}
	return r.show(ctx, name, modeForm, id)
}

// Submit saves a create (id 0) or edit form. Validation failures re-render the
// form with inline errors and are returned as model.FieldErrors.
func (r *Router) Submit(ctx context.Context, name string, id int, form url.Values) error {
	ev, err := r.entity(ctx, name)
	if err != nil {
		return err
	}
	_, err = ev.Submit(ctx, id, form)
	var fe model.FieldErrors
	switch {
	case errors.As(err, &fe):
		r.renderMu.Lock()
		defer r.renderMu.Unlock()
		r.mu.Lock()
		r.current, r.mode, r.formID = name, modeForm, id
		r.mu.Unlock()
		t, terr := r.translator(ctx)
		if terr != nil {
			return terr
		}
		html, rerr := ev.RenderForm(ctx, Input{I: t}, id, formValues(form), fe)
		if rerr != nil {
			return rerr
		}
		r.content.Set(html, false)
		return err
	case errors.Is(err, model.ErrNotFound):
		r.Flash(FlashError, "record_not_found")
	case err != nil:
		r.log.Error().Err(err).Str("view", name).Int("id", id).Msg("save failed")
		r.Flash(FlashError, "save_failed")
	case id == 0:
		r.Flash(FlashSuccess, "created_ok")
	default:
		r.Flash(FlashSuccess, "updated_ok")
	}
	if lerr := r.show(ctx, name, modeList, 0); lerr != nil {
		return lerr
	}
	return err
}

// Delete removes a record and flashes the outcome.
func (r *Router) Delete(ctx context.Context, name string, id int) error {
	ev, err := r.entity(ctx, name)
	if err != nil {
		return err
	}
	err = ev.Delete(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		r.Flash(FlashError, "record_not_found")
	case err != nil:
		r.log.Error().Err(err).Str("view", name).Int("id", id).Msg("delete failed")
		r.Flash(FlashError, "save_failed")
	default:
		r.Flash(FlashSuccess, "deleted_ok")
	}
	if lerr := r.show(ctx, name, modeList, 0); lerr != nil {
		return lerr
	}
	return err
}

// LoginFailed shows the login form with the generic error message.
func (r *Router) LoginFailed(ctx context.Context) error {
	r.Flash(FlashError, "login_error")
	return r.render(ctx, false, true)
}

// NavItem is one entry of the sidebar.
type NavItem struct {
	Name   string
	Active bool
}

// Shell is the data of the full admin page.
type Shell struct {
	I       i18n.Translator
	Theme   string
	Session model.Session
	Nav     []NavItem
	Current string
	Content template.HTML
	Live    bool
}

// WriteShell renders the whole page around the current content region.
func (r *Router) WriteShell(ctx context.Context, w io.Writer, live bool) error {
	t, err := r.translator(ctx)
	if err != nil {
		return err
	}
	theme, err := r.prefs.Theme(ctx)
	if err != nil {
		return err
	}
	sess, err := r.session.Current(ctx)
	if err != nil {
		return err
	}
	current := r.Current()
	s := Shell{I: t, Theme: theme, Session: sess, Current: current, Content: r.content.HTML(), Live: live}
	if sess.LoggedIn {
		for _, n := range r.nav {
			s.Nav = append(s.Nav, NavItem{Name: n, Active: n == current})
		}
	}
	return r.rnd.Page(w, "admin_shell", s)
}

func formValues(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k := range form {
		out[k] = form.Get(k)
	}
	return out
}
