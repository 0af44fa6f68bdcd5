package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Axmae/ambulance-management/internal/appstate"
	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
	"github.com/Axmae/ambulance-management/internal/ui"
)

const flashCookie = "portal_flash"

// portalFlashes are the messages a redirect may carry.
var portalFlashes = map[string]string{
	"signup_ok":           ui.FlashSuccess,
	"request_sent":        ui.FlashSuccess,
	"review_ok":           ui.FlashSuccess,
	"request_cancelled":   ui.FlashSuccess,
	"profile_saved":       ui.FlashSuccess,
	"requests_deleted":    ui.FlashSuccess,
	"deleted_ok":          ui.FlashSuccess,
	"updated_ok":          ui.FlashSuccess,
	"record_not_found":    ui.FlashError,
	"err_not_reviewable":  ui.FlashError,
	"err_not_cancellable": ui.FlashError,
	"invalid_value":       ui.FlashError,
}

func (s *Server) registerPortal(r *mux.Router) {
	r.HandleFunc("/portal", s.portalHome).Methods(http.MethodGet)
	r.HandleFunc("/portal/login", s.portalLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/portal/login", s.portalLogin).Methods(http.MethodPost)
	r.HandleFunc("/portal/signup", s.portalSignupPage).Methods(http.MethodGet)
	r.HandleFunc("/portal/signup", s.portalSignup).Methods(http.MethodPost)
	r.HandleFunc("/portal/logout", s.portalLogout).Methods(http.MethodPost)
	r.HandleFunc("/portal/prefs/{pref:language|theme}", s.setPref("/portal")).Methods(http.MethodPost)
	r.HandleFunc("/portal/profile", s.portalProfile).Methods(http.MethodPost)
	r.HandleFunc("/portal/history", s.portalHistory).Methods(http.MethodGet)
	r.HandleFunc("/portal/requests", s.portalSubmit).Methods(http.MethodPost)
	r.HandleFunc("/portal/requests/delete-all", s.portalDeleteAll).Methods(http.MethodPost)
	r.HandleFunc("/portal/requests/delete-completed", s.portalDeleteCompleted).Methods(http.MethodPost)
	r.HandleFunc("/portal/requests/{id}", s.portalRequest).Methods(http.MethodGet)
	r.HandleFunc("/portal/requests/{id}/delete", s.portalDelete).Methods(http.MethodPost)
	r.HandleFunc("/portal/requests/{id}/review", s.portalReview).Methods(http.MethodPost)
	r.HandleFunc("/portal/requests/{id}/cancel", s.portalCancel).Methods(http.MethodPost)

	// dispatchers move portal requests from the admin incidents view
	r.HandleFunc("/admin/requests/{id}/status", s.adminRequestStatus).Methods(http.MethodPost)
}

func setFlash(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: key, Path: "/portal", HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// takeFlash reads and clears the pending portal message.
func takeFlash(w http.ResponseWriter, r *http.Request) *ui.Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/portal", MaxAge: -1})
	kind, ok := portalFlashes[c.Value]
	if !ok {
		return nil
	}
	return &ui.Flash{Kind: kind, Key: c.Value}
}

func (s *Server) portalPage(w http.ResponseWriter, r *http.Request, st *appstate.State) (ui.PortalPage, error) {
	t, theme, err := translator(r, st, s.opt.Catalog)
	if err != nil {
		return ui.PortalPage{}, err
	}
	page := ui.NewPortalPage(t, theme)
	page.Flash = takeFlash(w, r)
	return page, nil
}

// portalUser returns the signed-in client, redirecting to the login page
// when there is none.
func (s *Server) portalUser(w http.ResponseWriter, r *http.Request, st *appstate.State) (model.PortalUser, bool) {
	sess, err := st.Portal.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return model.PortalUser{}, false
	}
	if !sess.LoggedIn {
		redirect(w, r, "/portal/login")
		return model.PortalUser{}, false
	}
	u, err := st.Directory.Get(r.Context(), sess.Identity)
	if errors.Is(err, model.ErrNotFound) {
		_ = st.Portal.Logout(r.Context())
		redirect(w, r, "/portal/login")
		return model.PortalUser{}, false
	}
	if err != nil {
		s.fail(w, r, err)
		return model.PortalUser{}, false
	}
	return u, true
}

func profileValues(u model.PortalUser) map[string]string {
	return map[string]string{"name": u.Name, "phone": u.Phone, "address": u.Address}
}

// renderHome renders the portal dashboard with the given form state.
func (s *Server) renderHome(w http.ResponseWriter, r *http.Request, st *appstate.State, u model.PortalUser, status int, edit func(*ui.PortalPage)) {
	page, err := s.portalPage(w, r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page.User = &u
	page.Stats = portal.Summarize(u.Requests)
	page.Requests = u.Requests
	if len(page.Requests) > 5 {
		page.Requests = page.Requests[:5]
	}
	page.Profile = profileValues(u)
	page.Forms = ui.RequestForms(page.I, nil, nil, u.Address)
	if edit != nil {
		edit(&page)
	}
	s.writePage(w, r, status, "portal_home", page)
}

func (s *Server) portalHome(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	s.renderHome(w, r, st, u, http.StatusOK, nil)
}

func (s *Server) portalLoginPage(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	page, err := s.portalPage(w, r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writePage(w, r, http.StatusOK, "portal_login", page)
}

func (s *Server) portalLogin(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	email := strings.TrimSpace(r.PostFormValue("email"))
	_, err := st.Portal.Authenticate(r.Context(), email, r.PostFormValue("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		page, perr := s.portalPage(w, r, st)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		page.Flash = &ui.Flash{Kind: ui.FlashError, Key: "login_error"}
		page.Values["email"] = email
		s.writePage(w, r, http.StatusUnauthorized, "portal_login", page)
	case err != nil:
		s.fail(w, r, err)
	default:
		redirect(w, r, "/portal")
	}
}

func (s *Server) portalSignupPage(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	page, err := s.portalPage(w, r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writePage(w, r, http.StatusOK, "portal_signup", page)
}

func (s *Server) portalSignup(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	form := portal.SignupForm{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Phone:    r.PostFormValue("phone"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	_, err := st.Directory.Signup(r.Context(), form)
	var fe model.FieldErrors
	switch {
	case errors.As(err, &fe):
		page, perr := s.portalPage(w, r, st)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		page.Values = map[string]string{"name": form.Name, "email": form.Email, "phone": form.Phone}
		page.Errors = fe
		s.writePage(w, r, http.StatusUnprocessableEntity, "portal_signup", page)
	case err != nil:
		s.fail(w, r, err)
	default:
		setFlash(w, "signup_ok")
		redirect(w, r, "/portal/login")
	}
}

func (s *Server) portalLogout(w http.ResponseWriter, r *http.Request) {
	if err := stateOf(r).Portal.Logout(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/portal/login")
}

func (s *Server) portalProfile(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	form := portal.ProfileForm{
		Name:    r.PostFormValue("name"),
		Phone:   r.PostFormValue("phone"),
		Address: r.PostFormValue("address"),
	}
	_, err := st.Directory.UpdateProfile(r.Context(), u.Email, form)
	var fe model.FieldErrors
	switch {
	case errors.As(err, &fe):
		s.renderHome(w, r, st, u, http.StatusUnprocessableEntity, func(p *ui.PortalPage) {
			p.Profile = map[string]string{"name": form.Name, "phone": form.Phone, "address": form.Address}
			p.Errors = fe
		})
	case err != nil:
		s.fail(w, r, err)
	default:
		setFlash(w, "profile_saved")
		redirect(w, r, "/portal")
	}
}

func (s *Server) portalSubmit(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	form := requestForm(r)
	_, err := st.Directory.SubmitRequest(r.Context(), u.Email, form)
	var fe model.FieldErrors
	switch {
	case errors.As(err, &fe):
		s.renderHome(w, r, st, u, http.StatusUnprocessableEntity, func(p *ui.PortalPage) {
			values := map[string]string{"type": form.Type, "address": form.Address}
			for k, v := range form.Details {
				values[k] = v
			}
			p.Forms = ui.RequestForms(p.I, values, fe, u.Address)
		})
	case err != nil:
		s.fail(w, r, err)
	default:
		setFlash(w, "request_sent")
		redirect(w, r, "/portal")
	}
}

// requestForm reads the inputs of the submitted request type. Checkbox
// groups are joined with commas.
func requestForm(r *http.Request) portal.RequestForm {
	_ = r.ParseForm()
	form := portal.RequestForm{
		Type:    r.PostFormValue("type"),
		Address: r.PostFormValue("address"),
		Details: map[string]string{},
	}
	for _, f := range portal.RequestFields[form.Type] {
		if f.Kind == portal.InputChecks {
			form.Details[f.Name] = strings.Join(r.PostForm[f.Name], ",")
			continue
		}
		form.Details[f.Name] = r.PostFormValue(f.Name)
	}
	return form
}

// portalRequest shows one request with its details and tracking.
func (s *Server) portalRequest(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	req, err := st.Directory.Request(r.Context(), u.Email, mux.Vars(r)["id"])
	if errors.Is(err, model.ErrNotFound) {
		redirect(w, r, "/portal/history")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.portalPage(w, r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page.User = &u
	page.Request = &req
	page.Details = ui.RequestDetails(page.I, req)
	page.Steps = portal.Track(req)
	s.writePage(w, r, http.StatusOK, "portal_request", page)
}

func (s *Server) portalHistory(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = "all"
	}
	page, err := s.portalPage(w, r, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page.User = &u
	page.Filter = filter
	page.Stats = portal.Summarize(u.Requests)
	page.Requests = portal.FilterRequests(u.Requests, filter)
	s.writePage(w, r, http.StatusOK, "portal_history", page)
}

// requestAction runs a change to one of the client's requests and redirects
// back with a flash naming the outcome.
func (s *Server) requestAction(w http.ResponseWriter, r *http.Request, okKey string, fn func(st *appstate.State, email string) error) {
	st := stateOf(r)
	u, ok := s.portalUser(w, r, st)
	if !ok {
		return
	}
	err := fn(st, u.Email)
	switch {
	case err == nil:
		setFlash(w, okKey)
	case errors.Is(err, model.ErrNotFound):
		setFlash(w, "record_not_found")
	case errors.Is(err, portal.ErrNotReviewable):
		setFlash(w, "err_not_reviewable")
	case errors.Is(err, portal.ErrNotCancellable):
		setFlash(w, "err_not_cancellable")
	case errors.Is(err, model.ErrValidation):
		setFlash(w, "invalid_value")
	default:
		s.fail(w, r, err)
		return
	}
	redirect(w, r, backTo(r, "/portal/history"))
}

func (s *Server) portalDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.requestAction(w, r, "deleted_ok", func(st *appstate.State, email string) error {
		return st.Directory.DeleteRequest(r.Context(), email, id)
	})
}

func (s *Server) portalDeleteAll(w http.ResponseWriter, r *http.Request) {
	s.requestAction(w, r, "requests_deleted", func(st *appstate.State, email string) error {
		_, err := st.Directory.DeleteAll(r.Context(), email)
		return err
	})
}

func (s *Server) portalDeleteCompleted(w http.ResponseWriter, r *http.Request) {
	s.requestAction(w, r, "requests_deleted", func(st *appstate.State, email string) error {
		_, err := st.Directory.DeleteCompleted(r.Context(), email)
		return err
	})
}

func (s *Server) portalReview(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rating, _ := strconv.Atoi(r.PostFormValue("rating"))
	s.requestAction(w, r, "review_ok", func(st *appstate.State, email string) error {
		return st.Directory.Review(r.Context(), email, id, rating, r.PostFormValue("review"))
	})
}

func (s *Server) portalCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.requestAction(w, r, "request_cancelled", func(st *appstate.State, email string) error {
		return st.Directory.Cancel(r.Context(), email, id)
	})
}

// adminRequestStatus handles POST /admin/requests/{id}/status.
func (s *Server) adminRequestStatus(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	sess, err := st.Admin.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !sess.LoggedIn {
		redirect(w, r, "/admin")
		return
	}
	err = st.Directory.SetStatus(r.Context(), r.PostFormValue("owner"), mux.Vars(r)["id"], r.PostFormValue("status"))
	switch {
	case err == nil:
		st.Router.Flash(ui.FlashSuccess, "updated_ok")
	case errors.Is(err, model.ErrNotFound):
		st.Router.Flash(ui.FlashError, "record_not_found")
	case errors.Is(err, model.ErrValidation):
		st.Router.Flash(ui.FlashError, "save_failed")
	default:
		s.fail(w, r, err)
		return
	}
	redirect(w, r, viewPath(model.Interventions))
}
