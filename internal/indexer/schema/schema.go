// Package schema defines the record model and the per-field indexing
// configuration shared by the index writer, the parser and the searcher.
package schema

import (
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
)

// Record is an entity with a unique identifier and named text fields.
type Record struct {
	ID     int64             `json:"id" yaml:"id"`
	Fields map[string]string `json:"fields" yaml:"fields"`
}

// Get returns the text of a field, or the decimal identifier for the key
// field.
func (r Record) Get(s *Schema, field string) string {
	if field == s.KeyField {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Fields[field]
}

// FieldOptions controls what the writer does with a field.
type FieldOptions struct {
	Stored  bool
	Indexed bool
}

// Field is a named field with its options.
type Field struct {
	Name string
	FieldOptions
}

// Schema is the ordered field list plus the name of the key field.
type Schema struct {
	KeyField string
	fields   []Field
	byName   map[string]FieldOptions
}

// New builds a Schema. The key field must be listed among fields.
func New(keyField string, fields []Field) (*Schema, error) {
	s := &Schema{
		KeyField: keyField,
		fields:   make([]Field, 0, len(fields)),
		byName:   make(map[string]FieldOptions, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "field name must not be empty")
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "duplicate field %q", f.Name)
		}
		s.fields = append(s.fields, f)
		s.byName[f.Name] = f.FieldOptions
	}
	if _, ok := s.byName[keyField]; !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "key field %q is not declared", keyField)
	}
	return s, nil
}

// FromConfig builds a Schema from the schema block of the configuration.
func FromConfig(cfg config.SchemaConfig) (*Schema, error) {
	fields := make([]Field, 0, len(cfg.Fields))
	for _, fc := range cfg.Fields {
		fields = append(fields, Field{
			Name:         fc.Name,
			FieldOptions: FieldOptions{Stored: fc.Stored, Indexed: fc.Indexed},
		})
	}
	s, err := New(cfg.KeyField, fields)
	if err != nil {
		return nil, fmt.Errorf("building schema: %w", err)
	}
	return s, nil
}

// Flights is the schema of the flight records the console program indexes.
func Flights() *Schema {
	s, err := New("id", []Field{
		{Name: "id", FieldOptions: FieldOptions{Stored: true, Indexed: true}},
		{Name: "name", FieldOptions: FieldOptions{Stored: true, Indexed: true}},
		{Name: "destination", FieldOptions: FieldOptions{Stored: true, Indexed: true}},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Options returns the options for a field and whether it is declared.
func (s *Schema) Options(name string) (FieldOptions, bool) {
	opts, ok := s.byName[name]
	return opts, ok
}

// IsIndexed reports whether name is a declared, indexed field.
func (s *Schema) IsIndexed(name string) bool {
	opts, ok := s.Options(name)
	return ok && opts.Indexed
}

// DefaultFields is the fixed list of indexed fields an unscoped query spans.
func (s *Schema) DefaultFields() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Indexed {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks a record against the schema: unknown fields are rejected so
// that a typo never silently produces an unsearchable document.
func (s *Schema) Validate(r Record) error {
	for name := range r.Fields {
		if name == s.KeyField {
			return apperrors.Newf(apperrors.ErrInvalidInput, "record %d: key field %q is derived from the id", r.ID, name)
		}
		if _, ok := s.Options(name); !ok {
			return apperrors.Newf(apperrors.ErrInvalidInput, "record %d: unknown field %q", r.ID, name)
		}
	}
	return nil
}
