package ui

import (
	"html/template"
	"slices"
	"sort"
	"strings"

	"github.com/Axmae/ambulance-management/internal/i18n"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
)

// PortalPage is the data of every client portal page.
type PortalPage struct {
	I        i18n.Translator
	Theme    string
	Flash    *Flash
	User     *model.PortalUser
	Stats    portal.Stats
	Requests []model.ServiceRequest
	Types    []string
	Filter   string
	Filters  []string
	Values   map[string]string
	Profile  map[string]string
	Errors   model.FieldErrors
	Forms    []RequestForm

	// request details page
	Request *model.ServiceRequest
	Details []DetailRow
	Steps   []portal.Step
}

// NewPortalPage fills the parts shared by all portal pages.
func NewPortalPage(t i18n.Translator, theme string) PortalPage {
	filters := append([]string{"all"}, portal.StatusFilters...)
	return PortalPage{
		I:       t,
		Theme:   theme,
		Types:   portal.RequestTypes,
		Filters: append(filters, portal.RequestTypes...),
		Values:  map[string]string{},
		Profile: map[string]string{},
	}
}

// RequestForm is the dashboard form of one request type.
type RequestForm struct {
	Type         string
	AddressLabel string
	Address      string
	AddressError string
	Fields       []FormField
	Open         bool
}

// FormField is one type-specific input, translated and filled in.
type FormField struct {
	ID       string
	Name     string
	Label    string
	Kind     string
	Required bool
	Min, Max int
	Value    string
	Error    string
	Options  []FormOption
}

// FormOption is a choice of a select, radio or checkbox input.
type FormOption struct {
	Value   string
	Label   string
	Checked bool
}

// RequestForms builds one form per request type. values and errs belong to
// the submission being redisplayed, whose form is opened; address prefills
// the other forms.
func RequestForms(t i18n.Translator, values map[string]string, errs model.FieldErrors, address string) []RequestForm {
	submitted := values["type"]
	forms := make([]RequestForm, 0, len(portal.RequestTypes))
	for _, typ := range portal.RequestTypes {
		f := RequestForm{
			Type:         typ,
			AddressLabel: t.T("rf_address_" + typ),
			Address:      address,
			Open:         typ == submitted,
		}
		current := map[string]string{}
		if f.Open {
			current = values
			f.Address = values["address"]
			if msg := errs["address"]; msg != "" {
				f.AddressError = t.T(msg)
			}
		}
		for _, d := range portal.RequestFields[typ] {
			v := current[d.Name]
			if v == "" {
				v = d.Default
			}
			ff := FormField{
				ID:       typ + "-" + d.Name,
				Name:     d.Name,
				Label:    t.T("rf_" + d.Name),
				Kind:     d.Kind,
				Required: d.Required,
				Min:      d.Min,
				Max:      d.Max,
				Value:    v,
			}
			if f.Open {
				if msg := errs[d.Name]; msg != "" {
					ff.Error = t.T(msg)
				}
			}
			picked := strings.Split(v, ",")
			for _, o := range d.Options {
				ff.Options = append(ff.Options, FormOption{
					Value:   o,
					Label:   t.T("opt_" + d.Name + "_" + o),
					Checked: slices.Contains(picked, o),
				})
			}
			f.Fields = append(f.Fields, ff)
		}
		forms = append(forms, f)
	}
	return forms
}

// DetailRow is a translated line of a request's details.
type DetailRow struct {
	Label string
	Value string
}

// RequestDetails lists the type-specific details of a request in form
// order, translating choices. Keys the form does not know come last.
func RequestDetails(t i18n.Translator, r model.ServiceRequest) []DetailRow {
	var rows []DetailRow
	known := map[string]bool{}
	for _, d := range portal.RequestFields[r.Type] {
		known[d.Name] = true
		v := r.Details[d.Name]
		switch {
		case v == "":
			v = t.T("not_specified")
		case len(d.Options) > 0:
			parts := strings.Split(v, ",")
			for i, p := range parts {
				parts[i] = t.T("opt_" + d.Name + "_" + p)
			}
			v = strings.Join(parts, ", ")
		}
		rows = append(rows, DetailRow{Label: t.T("rf_" + d.Name), Value: v})
	}
	var extra []string
	for k := range r.Details {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		rows = append(rows, DetailRow{Label: k, Value: r.Details[k]})
	}
	return rows
}

// SiteLink is an entry of the public site menu.
type SiteLink struct {
	Slug   string
	Title  string
	Active bool
}

// SitePage is a public marketing page.
type SitePage struct {
	I     i18n.Translator
	Theme string
	Title string
	Body  template.HTML
	Links []SiteLink
}
