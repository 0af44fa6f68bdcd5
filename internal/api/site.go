package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/ui"
)

func (s *Server) registerSite(r *mux.Router) {
	r.HandleFunc("/", s.sitePage).Methods(http.MethodGet)
	r.HandleFunc("/pages/{slug}", s.sitePage).Methods(http.MethodGet)
}

// sitePage renders a marketing page in the profile language.
func (s *Server) sitePage(w http.ResponseWriter, r *http.Request) {
	st := stateOf(r)
	slug := mux.Vars(r)["slug"]
	if slug == "" {
		slug = "index"
	}
	t, theme, err := translator(r, st, s.opt.Catalog)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.opt.Site.Page(t.Lang, slug)
	if errors.Is(err, model.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := ui.SitePage{I: t, Theme: theme, Title: p.Title, Body: p.HTML}
	for _, m := range s.opt.Site.Menu(t.Lang) {
		page.Links = append(page.Links, ui.SiteLink{Slug: m.Slug, Title: m.Title, Active: m.Slug == slug})
	}
	s.writePage(w, r, http.StatusOK, "site_page", page)
}
