// Package api is the HTTP surface of the admin service: the server-rendered
// admin dashboard and client portal, the public site, and a JSON API over the
// same per-profile state.
package api

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Axmae/ambulance-management/internal/api/recovery"
	"github.com/Axmae/ambulance-management/internal/api/respond"
	"github.com/Axmae/ambulance-management/internal/appstate"
	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/live"
	"github.com/Axmae/ambulance-management/internal/metrics"
	"github.com/Axmae/ambulance-management/internal/site"
	"github.com/Axmae/ambulance-management/internal/ui"
)

const profileMaxAge = 365 * 24 * time.Hour

// HealthReporter exposes the cached service health.
type HealthReporter interface {
	IsHealthy() bool
	Components() map[string]bool
}

// Options configures a Server.
type Options struct {
	Registry      *appstate.Registry
	Renderer      *ui.Renderer
	Catalog       *i18n.Catalog
	Site          *site.Site
	Hub           *live.Hub
	Health        HealthReporter
	ProfileCookie string
	LiveUpdates   bool
	SecureCookies bool
	Log           zerolog.Logger
}

// Server routes requests to the state of the calling profile.
type Server struct {
	opt Options
}

func New(opt Options) *Server {
	if opt.ProfileCookie == "" {
		opt.ProfileCookie = "ambulance_profile"
	}
	return &Server{opt: opt}
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(observe)

	r.HandleFunc("/healthz", s.checkHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	app := r.PathPrefix("/").Subrouter()
	app.Use(s.withProfile)
	s.registerSite(app)
	s.registerAdmin(app)
	s.registerPortal(app)
	s.registerJSON(app)

	var h http.Handler = r
	h = recovery.Middleware(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(s.opt.Log)(h)
	return h
}

// observe logs each request and records it under its route template.
func observe(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(next)
}

type stateKey struct{}

// withProfile resolves the profile cookie, issuing a fresh id when it is
// missing or malformed, and attaches the profile state to the request.
func (s *Server) withProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(s.opt.ProfileCookie); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     s.opt.ProfileCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(profileMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   s.opt.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		st, err := s.opt.Registry.Get(id)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("profile", id).Msg("build profile state")
			respond.WriteInternalError(w, "profile unavailable")
			return
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("profile", id)
		})
		ctx := context.WithValue(r.Context(), stateKey{}, st)
		ctx = ui.WithLanguageHint(ctx, r.Header.Get("Accept-Language"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stateOf(r *http.Request) *appstate.State {
	return r.Context().Value(stateKey{}).(*appstate.State)
}

// translator picks the language of the profile, negotiated from the request
// when none was chosen.
func translator(r *http.Request, st *appstate.State, catalog *i18n.Catalog) (i18n.Translator, string, error) {
	lang, err := st.Prefs.Language(r.Context(), r.Header.Get("Accept-Language"))
	if err != nil {
		return i18n.Translator{}, "", err
	}
	theme, err := st.Prefs.Theme(r.Context())
	if err != nil {
		return i18n.Translator{}, "", err
	}
	return catalog.For(lang), theme, nil
}

// writePage renders a full page into a buffer so a template error still
// yields a clean 500.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.opt.Renderer.Page(&buf, name, data); err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, status, &buf)
}

func writeHTML(w http.ResponseWriter, status int, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("url", r.URL.Path).Msg("handler failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// backTo returns the same-host page the form was posted from, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || ref.Host != r.Host {
		return fallback
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
