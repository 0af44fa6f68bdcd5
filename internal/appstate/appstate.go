// Package appstate owns the live state of each browser profile: the entity
// store, both sessions, preferences, the portal directory and the admin
// router, wired together. States are cached in a bounded LRU; an evicted
// state drops its subscriptions while its data stays in the backend.
package appstate

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/entitystore"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/kvstore"
	"github.com/Axmae/ambulance-management/internal/metrics"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
	"github.com/Axmae/ambulance-management/internal/prefs"
	"github.com/Axmae/ambulance-management/internal/seed"
	"github.com/Axmae/ambulance-management/internal/session"
	"github.com/Axmae/ambulance-management/internal/ui"
)

// State is everything one profile needs to serve requests.
type State struct {
	Profile   string
	KV        kvstore.Store
	Store     *entitystore.Store
	Admin     *session.Manager
	Portal    *session.Manager
	Prefs     *prefs.Prefs
	Directory *portal.Directory
	Router    *ui.Router

	closeOnce sync.Once
	unbind    func()
}

// Close detaches the router from every source and sends browsers still
// following its content a reload, so they reconnect to a fresh state. The
// state must not be used for rendering afterwards.
func (s *State) Close() {
	s.closeOnce.Do(func() {
		s.unbind()
		s.Router.Content().Reload()
	})
}

// Deps are shared by every profile.
type Deps struct {
	Backend      kvstore.Store
	Seed         seed.Source
	SeedTimeout  time.Duration
	Catalog      *i18n.Catalog
	Renderer     *ui.Renderer
	AdminAuth    auth.Provider
	DefaultTheme string
	BcryptCost   int
	Log          zerolog.Logger
}

// Build assembles a fresh state for profile.
func Build(deps Deps, profile string) (*State, error) {
	kv := kvstore.Scope(deps.Backend, profile)
	log := deps.Log.With().Str("profile", profile).Logger()

	storeOpts := []entitystore.Option{entitystore.WithLogger(log)}
	if deps.SeedTimeout > 0 {
		storeOpts = append(storeOpts, entitystore.WithSeedTimeout(deps.SeedTimeout))
	}
	store := entitystore.New(kv, deps.Seed, storeOpts...)

	dirOpts := []portal.Option{portal.WithLogger(log)}
	if deps.BcryptCost > 0 {
		dirOpts = append(dirOpts, portal.WithBcryptCost(deps.BcryptCost))
	}
	dir := portal.New(kv, dirOpts...)

	st := &State{
		Profile:   profile,
		KV:        kv,
		Store:     store,
		Admin:     session.New(kv, session.AdminKeys, deps.AdminAuth, log),
		Portal:    session.New(kv, session.PortalKeys, dir, log),
		Prefs:     prefs.New(kv, deps.Catalog, deps.DefaultTheme),
		Directory: dir,
	}

	r := ui.NewRouter(deps.Renderer, deps.Catalog, st.Admin, st.Prefs, log)
	r.Register(ui.NewDashboardView(store, dir, deps.Renderer))
	for _, c := range model.Collections {
		var opts []ui.EntityOption
		if c == model.Interventions {
			opts = append(opts, ui.WithRequests(dir))
		}
		v, err := ui.NewEntityView(store, deps.Renderer, c, opts...)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", c, err)
		}
		r.Register(v)
	}
	st.Router = r
	st.unbind = r.Bind(store, dir)
	return st, nil
}

// Registry hands out the state of a profile, building it on first use.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	cache *lru.Cache[string, *State]
}

// NewRegistry keeps at most size profiles live.
func NewRegistry(deps Deps, size int) (*Registry, error) {
	cache, err := lru.NewWithEvict(size, func(profile string, st *State) {
		st.Close()
		deps.Log.Debug().Str("profile", profile).Msg("profile state evicted")
	})
	if err != nil {
		return nil, err
	}
	return &Registry{deps: deps, cache: cache}, nil
}

// Get returns the state of profile.
func (r *Registry) Get(profile string) (*State, error) {
	if st, ok := r.cache.Get(profile); ok {
		return st, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.cache.Get(profile); ok {
		return st, nil
	}
	st, err := Build(r.deps, profile)
	if err != nil {
		return nil, err
	}
	r.cache.Add(profile, st)
	metrics.CachedProfiles.Set(float64(r.cache.Len()))
	return st, nil
}

// Len returns the number of live profiles.
func (r *Registry) Len() int { return r.cache.Len() }

// Close drops every live state.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
	metrics.CachedProfiles.Set(0)
}
