// Package site serves the public marketing pages, written in markdown and
// embedded in the binary. Each language has its own directory; a page missing
// from one language falls back to the default one.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/Axmae/ambulance-management/internal/model"
)

//go:embed pages
var pagesFS embed.FS

// Order is the menu order of the pages.
var Order = []string{"index", "services", "contact"}

// Page is one rendered page.
type Page struct {
	Slug  string
	Title string
	HTML  template.HTML
}

// Site holds every page, pre-rendered.
type Site struct {
	fallback string
	pages    map[string]map[string]Page // lang -> slug -> page
}

// Load renders the embedded pages. fallback must have every page of Order.
func Load(fallback string) (*Site, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	s := &Site{fallback: fallback, pages: map[string]map[string]Page{}}

	err := fs.WalkDir(pagesFS, "pages", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".md" {
			return err
		}
		src, err := pagesFS.ReadFile(p)
		if err != nil {
			return err
		}
		lang := path.Base(path.Dir(p))
		slug := strings.TrimSuffix(path.Base(p), ".md")
		page, err := render(md, slug, src)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if s.pages[lang] == nil {
			s.pages[lang] = map[string]Page{}
		}
		s.pages[lang][slug] = page
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, slug := range Order {
		if _, ok := s.pages[fallback][slug]; !ok {
			return nil, fmt.Errorf("page %s/%s missing", fallback, slug)
		}
	}
	return s, nil
}

func render(md goldmark.Markdown, slug string, src []byte) (Page, error) {
	doc := md.Parser().Parse(text.NewReader(src))
	page := Page{Slug: slug, Title: title(doc, src)}
	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, src, doc); err != nil {
		return Page{}, err
	}
	page.HTML = template.HTML(buf.String())
	return page, nil
}

// title is the text of the first level-1 heading.
func title(doc ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering || h.Level != 1 {
			return ast.WalkContinue, nil
		}
		_ = ast.Walk(h, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if t, ok := c.(*ast.Text); ok && entering {
				b.Write(t.Segment.Value(src))
			}
			return ast.WalkContinue, nil
		})
		return ast.WalkStop, nil
	})
	return b.String()
}

// Page returns slug in lang, or in the fallback language.
func (s *Site) Page(lang, slug string) (Page, error) {
	if p, ok := s.pages[lang][slug]; ok {
		return p, nil
	}
	if p, ok := s.pages[s.fallback][slug]; ok {
		return p, nil
	}
	return Page{}, fmt.Errorf("page %q: %w", slug, model.ErrNotFound)
}

// Menu lists the pages in Order, titled in lang.
func (s *Site) Menu(lang string) []Page {
	out := make([]Page, 0, len(Order))
	for _, slug := range Order {
		p, err := s.Page(lang, slug)
		if err != nil {
			continue
		}
		out = append(out, Page{Slug: p.Slug, Title: p.Title})
	}
	return out
}
