package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Axmae/ambulance-management/internal/api/respond"
	"github.com/Axmae/ambulance-management/internal/auth"
	"github.com/Axmae/ambulance-management/internal/model"
)

func (s *Server) registerJSON(r *mux.Router) {
	r.HandleFunc("/api/session", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/session", s.deleteSession).Methods(http.MethodDelete)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireAdmin)
	api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/collections/{name}", s.listRecords).Methods(http.MethodGet)
	api.HandleFunc("/collections/{name}", s.createRecord).Methods(http.MethodPost)
	api.HandleFunc("/collections/{name}/{id:[0-9]+}", s.getRecord).Methods(http.MethodGet)
	api.HandleFunc("/collections/{name}/{id:[0-9]+}", s.updateRecord).Methods(http.MethodPatch)
	api.HandleFunc("/collections/{name}/{id:[0-9]+}", s.deleteRecord).Methods(http.MethodDelete)
}

// requireAdmin rejects JSON calls from profiles without an admin session.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := stateOf(r).Admin.Current(r.Context())
		if err != nil {
			respond.WriteDomainError(w, err)
			return
		}
		if !sess.LoggedIn {
			respond.WriteError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeFields(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// GET /api/collections/{name}; every query parameter is an equality filter.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	var filter model.Filter
	for k, v := range r.URL.Query() {
		if filter == nil {
			filter = model.Filter{}
		}
		filter[k] = v[0]
	}
	recs, err := stateOf(r).Store.ReadAll(r.Context(), mux.Vars(r)["name"], filter)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"records": recs, "count": len(recs)})
}

// POST /api/collections/{name}
func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	rec, err := stateOf(r).Store.Create(r.Context(), mux.Vars(r)["name"], fields)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, rec)
}

func pathID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

// GET /api/collections/{name}/{id}
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := stateOf(r).Store.ReadOne(r.Context(), mux.Vars(r)["name"], pathID(r))
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rec)
}

// PATCH /api/collections/{name}/{id}
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	rec, err := stateOf(r).Store.Update(r.Context(), mux.Vars(r)["name"], pathID(r), fields)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rec)
}

// DELETE /api/collections/{name}/{id}
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := stateOf(r).Store.Delete(r.Context(), mux.Vars(r)["name"], pathID(r)); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/snapshot
func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := stateOf(r).Store.Export(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, snap)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GET /api/session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := stateOf(r).Admin.Current(r.Context())
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sess)
}

// POST /api/session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	sess, err := stateOf(r).Admin.Authenticate(r.Context(), c.Email, c.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respond.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sess)
}

// DELETE /api/session
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := stateOf(r).Admin.Logout(r.Context()); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
