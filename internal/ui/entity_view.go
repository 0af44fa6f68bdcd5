package ui

import (
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Axmae/ambulance-management/internal/entitystore"
	"github.com/Axmae/ambulance-management/internal/model"
	"github.com/Axmae/ambulance-management/internal/portal"
)

// RequestSource lists the portal service requests of the profile.
type RequestSource interface {
	AllRequests(ctx context.Context) ([]portal.OwnedRequest, error)
}

// ListQuery narrows a list view. Both parts are optional.
type ListQuery struct {
	Statut string
	Search string
}

// references maps foreign key fields to the collection they point at.
var references = map[string]string{
	"ambulanceId": model.Ambulances,
	"chauffeurId": model.Chauffeurs,
	"patientId":   model.Patients,
	"hopitalId":   model.Hopitaux,
}

// EntityView lists, creates, edits and deletes the records of one collection.
type EntityView struct {
	store    *entitystore.Store
	schema   model.Schema
	rnd      *Renderer
	columns  []string
	requests RequestSource

	mu    sync.Mutex
	query ListQuery
}

// EntityOption customizes an EntityView.
type EntityOption func(*EntityView)

// WithColumns sets the fields shown in the table. Defaults to every field.
func WithColumns(cols ...string) EntityOption {
	return func(v *EntityView) { v.columns = cols }
}

// WithRequests lists portal service requests below the table.
func WithRequests(src RequestSource) EntityOption {
	return func(v *EntityView) { v.requests = src }
}

// NewEntityView returns the view of collection.
func NewEntityView(store *entitystore.Store, rnd *Renderer, collection string, opts ...EntityOption) (*EntityView, error) {
	sc, err := store.Schemas().Lookup(collection)
	if err != nil {
		return nil, err
	}
	v := &EntityView{store: store, schema: sc, rnd: rnd}
	for _, f := range sc.Fields {
		v.columns = append(v.columns, f.Name)
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

func (v *EntityView) Name() string { return v.schema.Collection }

func (v *EntityView) Watches(collection string) bool {
	if collection == v.schema.Collection {
		return true
	}
	if v.requests != nil && collection == portal.Collection {
		return true
	}
	// labels of referenced records appear in the table
	for _, f := range v.columns {
		if references[f] == collection {
			return true
		}
	}
	return false
}

// SetQuery changes the filter kept across re-renders.
func (v *EntityView) SetQuery(q ListQuery) {
	v.mu.Lock()
	v.query = ListQuery{Statut: strings.TrimSpace(q.Statut), Search: strings.TrimSpace(q.Search)}
	v.mu.Unlock()
}

// Query returns the current filter.
func (v *EntityView) Query() ListQuery {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

func (v *EntityView) Render(ctx context.Context, in Input) (template.HTML, error) {
	return v.RenderList(ctx, in)
}

type listData struct {
	Input
	View     string
	Columns  []string
	Rows     []row
	Statuses []string
	Query    ListQuery
	Requests []portal.OwnedRequest
	// statuses a dispatcher can move a portal request to
	RequestStatuses []string
}

type row struct {
	ID    int
	Cells []string
}

// RenderList renders the table of the collection, narrowed by the current query.
func (v *EntityView) RenderList(ctx context.Context, in Input) (template.HTML, error) {
	q := v.Query()
	var filter model.Filter
	statuses := v.statuses()
	if q.Statut != "" && statuses != nil {
		filter = model.Filter{"statut": q.Statut}
	}
	recs, err := v.store.ReadAll(ctx, v.schema.Collection, filter)
	if err != nil {
		return "", err
	}
	labels, err := v.referenceLabels(ctx)
	if err != nil {
		return "", err
	}
	data := listData{Input: in, View: v.schema.Collection, Columns: v.columns, Statuses: statuses, Query: q}
	for _, r := range Search(recs, q.Search) {
		cells := make([]string, len(v.columns))
		for i, c := range v.columns {
			cells[i] = r.String(c)
			if ref, ok := references[c]; ok {
				if l, ok := labels[ref][cells[i]]; ok {
					cells[i] = l
				}
			}
		}
		data.Rows = append(data.Rows, row{ID: r.ID, Cells: cells})
	}
	if v.requests != nil {
		if data.Requests, err = v.requests.AllRequests(ctx); err != nil {
			return "", err
		}
		data.RequestStatuses = model.RequestStatuses
	}
	return v.rnd.Fragment("entity_list", data)
}

// WriteCSV writes the records matching the current query as CSV.
func (v *EntityView) WriteCSV(ctx context.Context, w io.Writer) error {
	q := v.Query()
	var filter model.Filter
	if q.Statut != "" && v.statuses() != nil {
		filter = model.Filter{"statut": q.Statut}
	}
	recs, err := v.store.ReadAll(ctx, v.schema.Collection, filter)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"id"}, v.columns...)); err != nil {
		return err
	}
	for _, r := range Search(recs, q.Search) {
		line := []string{strconv.Itoa(r.ID)}
		for _, c := range v.columns {
			line = append(line, r.String(c))
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (v *EntityView) statuses() []string {
	if f, ok := v.schema.Field("statut"); ok && f.Kind == model.KindEnum {
		return f.Values
	}
	return nil
}

// Search keeps the records where any field contains term, ignoring case.
func Search(recs []model.Record, term string) []model.Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if strconv.Itoa(r.ID) == term {
			out = append(out, r)
			continue
		}
		for name := range r.Fields {
			if strings.Contains(strings.ToLower(r.String(name)), term) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// recordLabel is how a referenced record is named in tables and selects.
func recordLabel(collection string, r model.Record) string {
	switch collection {
	case model.Ambulances:
		return r.String("matricule")
	case model.Hopitaux:
		return r.String("nom")
	default:
		return strings.TrimSpace(r.String("prenom") + " " + r.String("nom"))
	}
}

// referenceLabels returns, per referenced collection, id to label.
func (v *EntityView) referenceLabels(ctx context.Context) (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	for _, f := range v.schema.Fields {
		ref, ok := references[f.Name]
		if !ok {
			continue
		}
		recs, err := v.store.ReadAll(ctx, ref, nil)
		if err != nil {
			return nil, err
		}
		m := make(map[string]string, len(recs))
		for _, r := range recs {
			m[strconv.Itoa(r.ID)] = recordLabel(ref, r)
		}
		out[ref] = m
	}
	return out, nil
}

type option struct {
	Value string
	Label string
}

type formField struct {
	Name     string
	Kind     string
	Required bool
	Value    string
	Options  []option
	Error    string
}

type formData struct {
	Input
	View   string
	ID     int
	Fields []formField
}

func kindName(k model.Kind) string {
	switch k {
	case model.KindInt:
		return "number"
	case model.KindDate:
		return "date"
	case model.KindEnum:
		return "select"
	default:
		return "text"
	}
}

// RenderForm renders the create (id 0) or edit form with the given values and
// inline errors.
func (v *EntityView) RenderForm(ctx context.Context, in Input, id int, values map[string]string, errs model.FieldErrors) (template.HTML, error) {
	labels, err := v.referenceLabels(ctx)
	if err != nil {
		return "", err
	}
	data := formData{Input: in, View: v.schema.Collection, ID: id}
	for _, f := range v.schema.Fields {
		ff := formField{Name: f.Name, Kind: kindName(f.Kind), Required: f.Required, Value: values[f.Name], Error: errs[f.Name]}
		for _, val := range f.Values {
			ff.Options = append(ff.Options, option{Value: val, Label: val})
		}
		if ref, ok := references[f.Name]; ok {
			ff.Kind = "select"
			ids := make([]int, 0, len(labels[ref]))
			for k := range labels[ref] {
				n, _ := strconv.Atoi(k)
				ids = append(ids, n)
			}
			sort.Ints(ids)
			for _, n := range ids {
				k := strconv.Itoa(n)
				ff.Options = append(ff.Options, option{Value: k, Label: labels[ref][k]})
			}
		}
		data.Fields = append(data.Fields, ff)
	}
	return v.rnd.Fragment("entity_form", data)
}

func (v *EntityView) editForm(ctx context.Context, in Input, id int) (template.HTML, error) {
	values := map[string]string{}
	if id != 0 {
		rec, err := v.store.ReadOne(ctx, v.schema.Collection, id)
		if err != nil {
			return "", err
		}
		for name := range rec.Fields {
			values[name] = rec.String(name)
		}
	}
	return v.RenderForm(ctx, in, id, values, nil)
}

// Submit checks that required fields are filled, then creates (id 0) or
// updates the record. A failed local check returns model.FieldErrors without
// touching the store.
func (v *EntityView) Submit(ctx context.Context, id int, form url.Values) (model.Record, error) {
	fields := make(map[string]any, len(v.schema.Fields))
	errs := model.FieldErrors{}
	for _, f := range v.schema.Fields {
		_, present := form[f.Name]
		val := strings.TrimSpace(form.Get(f.Name))
		switch {
		case f.Required && val == "":
			errs[f.Name] = model.MsgRequired
		case val == "" && (id == 0 || !present):
			// nothing to set
		default:
			fields[f.Name] = val
		}
	}
	if len(errs) > 0 {
		return model.Record{}, errs
	}
	if id == 0 {
		return v.store.Create(ctx, v.schema.Collection, fields)
	}
	return v.store.Update(ctx, v.schema.Collection, id, fields)
}

// Delete removes the record; model.ErrNotFound when it is already gone.
func (v *EntityView) Delete(ctx context.Context, id int) error {
	if err := v.store.Delete(ctx, v.schema.Collection, id); err != nil {
		return fmt.Errorf("delete %s %d: %w", v.schema.Collection, id, err)
	}
	return nil
}
