package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/Axmae/ambulance-management/internal/api/respond"
	"github.com/Axmae/ambulance-management/internal/appstate"
	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/prefs"
	"github.com/Axmae/ambulance-management/internal/ui"
)

func (s *Server) registerAdmin(r *mux.Router) {
	r.HandleFunc("/admin", s.adminHome).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", s.adminLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", s.adminLogout).Methods(http.MethodPost)
	r.HandleFunc("/admin/live", s.adminLive).Methods(http.MethodGet)
	r.HandleFunc("/admin/prefs/{pref:language|theme}", s.setPref("/admin")).Methods(http.MethodPost)

	r.HandleFunc("/admin/views/{view}", s.adminView).Methods(http.MethodGet)
	r.HandleFunc("/admin/views/{view}", s.adminSubmit).Methods(http.MethodPost)
	r.HandleFunc("/admin/views/{view}/new", s.adminForm).Methods(http.MethodGet)
	r.HandleFunc("/admin/views/{view}/export.csv", s.adminExport).Methods(http.MethodGet)
	r.HandleFunc("/admin/views/{view}/{id:[0-9]+}/edit", s.adminForm).Methods(http.MethodGet)
	r.HandleFunc("/admin/views/{view}/{id:[0-9]+}", s.adminSubmit).Methods(http.MethodPost)
	r.HandleFunc("/admin/views/{view}/{id:[0-9]+}/delete", s.adminDelete).Methods(http.MethodPost)
}

func viewPath(name string) string { return "/admin/views/" + name }

// recordID is 0 when the route carries no id.
func recordID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func (s *Server) writeShell(w http.ResponseWriter, r *http.Request, st *appstate.State, status int) {
	var buf bytes.Buffer
	if err := st.Router.WriteShell(r.Context(), &buf, s.opt.LiveUpdates); err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, status, &buf)
}

func knownView(st *appstate.State, name string) bool {
	if name == ui.DefaultView {
		return true
	}
	_, ok := st.Router.Entity(name)
	return ok
}

// settle answers a router mutation: success redirects to the list so the
// flash shows on the next page, anything else renders the content region as
// the router left it.
func (s *Server) settle(w http.ResponseWriter, r *http.Request, st *appstate.State, view string, err error) {
	var fe model.FieldErrors
	switch {
	case err == nil:
		redirect(w, r, viewPath(view))
	case errors.Is(err, ui.ErrLoggedOut):
		s.writeShell(w, r, st, http.StatusUnauthorized)
	case errors.As(err, &fe):
		s.writeShell(w, r, st, http.StatusUnprocessableEntity)
	case errors.Is(err, model.ErrNotFound) && knownView(st, view):
		redirect(w, r, viewPath(view))
	case errors.Is(err, model.ErrNotFound):
		s.writeShell(w, r, st, http.StatusNotFound)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("view", view).Msg("admin action failed")
		s.writeShell(w, r, st, http.StatusInternalServerError)
	}
}

// adminHome handles GET /admin by showing the current view again.
func (s *Server) adminHome(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	if err := st.Router.Navigate(r.Context(), st.Router.Current()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeShell(w, r, st, http.StatusOK)
}

// adminView handles GET /admin/views/{view}; q and statut filter entity lists.
func (s *Server) adminView(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	name := mux.Vars(r)["view"]
	if ev, ok := st.Router.Entity(name); ok {
		q := r.URL.Query()
		ev.SetQuery(ui.ListQuery{Search: q.Get("q"), Statut: q.Get("statut")})
	}
	if err := st.Router.Navigate(r.Context(), name); err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !knownView(st, name) {
		status = http.StatusNotFound
	}
	s.writeShell(w, r, st, status)
}

func (s *Server) adminForm(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	name := mux.Vars(r)["view"]
	if err := st.Router.ShowForm(r.Context(), name, recordID(r)); err != nil {
		s.settle(w, r, st, name, err)
		return
	}
	s.writeShell(w, r, st, http.StatusOK)
}

func (s *Server) adminSubmit(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	name := mux.Vars(r)["view"]
	if err := r.ParseForm(); err != nil {
		respond.WriteBadRequest(w, "invalid form")
		return
	}
	s.settle(w, r, st, name, st.Router.Submit(r.Context(), name, recordID(r), r.PostForm))
}

func (s *Server) adminDelete(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	name := mux.Vars(r)["view"]
	s.settle(w, r, st, name, st.Router.Delete(r.Context(), name, recordID(r)))
}

// adminExport streams the filtered list as CSV.
func (s *Server) adminExport(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	name := mux.Vars(r)["view"]
	sess, err := st.Admin.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !sess.LoggedIn {
		redirect(w, r, "/admin")
		return
	}
	ev, ok := st.Router.Entity(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := ev.WriteCSV(r.Context(), &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.csv"`)
	_, _ = buf.WriteTo(w)
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	_, err := st.Admin.Authenticate(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		if err := st.Router.LoginFailed(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeShell(w, r, st, http.StatusUnauthorized)
	case err != nil:
		s.fail(w, r, err)
	default:
		redirect(w, r, viewPath(st.Router.Current()))
	}
}

func (s *Server) adminLogout(w http.ResponseWriter, r *http.Request) {
	if err := stateOf(r).Admin.Logout(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/admin")
}

// adminLive streams the content region over a websocket.
func (s *Server) adminLive(w http.ResponseWriter, r *http.Request) {
	if !s.opt.LiveUpdates || s.opt.Hub == nil {
		http.NotFound(w, r)
		return
	}
	s.opt.Hub.Serve(w, r, stateOf(r).Router.Content())
}

// setPref stores the language or theme posted from the page at fallback.
func (s *Server) setPref(fallback string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := stateOf(r)
		var err error
		switch mux.Vars(r)["pref"] {
		case "language":
			err = st.Prefs.SetLanguage(r.Context(), r.PostFormValue("lang"))
		case "theme":
			err = st.Prefs.SetTheme(r.Context(), r.PostFormValue("theme"))
		}
		switch {
		case errors.Is(err, prefs.ErrUnsupported):
			respond.WriteBadRequest(w, err.Error())
		case err != nil:
			s.fail(w, r, err)
		default:
			redirect(w, r, backTo(r, fallback))
		}
	}
}
