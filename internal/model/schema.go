package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the value type a schema field accepts.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindEnum
	KindDate
)

// Field describes one attribute of an entity.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Values   []string // allowed values for KindEnum
}

// Schema is the closed field set of one collection.
type Schema struct {
	Collection string
	Fields     []Field
}

// Field returns the named field definition.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required lists the names of mandatory fields.
func (s Schema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// FieldErrors maps a field name to a user-facing message key.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	names := make([]string, 0, len(fe))
	for n := range fe {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+fe[n])
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

func (fe FieldErrors) Unwrap() error { return ErrValidation }

// Message keys carried by FieldErrors; the UI translates them.
const (
	MsgRequired     = "required_field"
	MsgUnknownField = "unknown_field"
	MsgInvalidValue = "invalid_value"
	MsgNotInteger   = "not_integer"
	MsgInvalidDate  = "invalid_date"
	MsgImmutable    = "immutable_field"
)

// Validate checks fields against the schema and returns the normalized values.
// With partial set only the fields present are checked (update semantics);
// otherwise every required field must be present and non-empty.
func (s Schema) Validate(fields map[string]any, partial bool) (map[string]any, error) {
	errs := FieldErrors{}
	out := make(map[string]any, len(fields))
	for name, raw := range fields {
		if name == "id" {
			errs[name] = MsgImmutable
			continue
		}
		f, ok := s.Field(name)
		if !ok {
			errs[name] = MsgUnknownField
			continue
		}
		v, msg := f.coerce(Normalize(raw))
		if msg != "" {
			errs[name] = msg
			continue
		}
		if v == nil {
			if f.Required {
				errs[name] = MsgRequired
			} else if partial {
				// an emptied optional field is removed by the merge
				out[name] = nil
			}
			continue
		}
		out[name] = v
	}
	if !partial {
		for _, name := range s.Required() {
			if _, bad := errs[name]; bad {
				continue
			}
			if _, ok := out[name]; !ok {
				errs[name] = MsgRequired
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// coerce converts v into the field's canonical type. A nil result with an empty
// message means "empty value".
func (f Field) coerce(v any) (any, string) {
	if v == nil {
		return nil, ""
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, ""
		}
		v = s
	}
	switch f.Kind {
	case KindInt:
		switch n := v.(type) {
		case int64:
			return n, ""
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, MsgNotInteger
			}
			return i, ""
		default:
			return nil, MsgNotInteger
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, MsgInvalidValue
		}
		for _, allowed := range f.Values {
			if s == allowed {
				return s, ""
			}
		}
		return nil, MsgInvalidValue
	case KindDate:
		s, ok := v.(string)
		if !ok || !validDate(s) {
			return nil, MsgInvalidDate
		}
		return s, ""
	default:
		switch t := v.(type) {
		case string:
			return t, ""
		case int64, float64, bool:
			return fmt.Sprint(t), ""
		default:
			return nil, MsgInvalidValue
		}
	}
}

// validDate accepts YYYY-MM-DD, optionally followed by a time part.
func validDate(s string) bool {
	if len(s) < 10 {
		return false
	}
	for i, c := range s[:10] {
		switch i {
		case 4, 7:
			if c != '-' {
				return false
			}
		default:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return len(s) == 10 || s[10] == 'T' || s[10] == ' '
}

// Schemas indexes schemas by collection name.
type Schemas map[string]Schema

// NewSchemas builds an index from a list of schemas.
func NewSchemas(list ...Schema) Schemas {
	out := make(Schemas, len(list))
	for _, s := range list {
		out[s.Collection] = s
	}
	return out
}

// Names returns collection names in lexical order.
func (s Schemas) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the schema for collection or ErrUnknownCollection.
func (s Schemas) Lookup(collection string) (Schema, error) {
	sc, ok := s[collection]
	if !ok {
		return Schema{}, fmt.Errorf("%q: %w", collection, ErrUnknownCollection)
	}
	return sc, nil
}
