package source

import (
	"context"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File reads records from a YAML (or JSON) document of the form
//
//	records:
//	  - id: 1
//	    name: Air India
//	    destination: Serbia
type File struct {
	path   string
	schema *schema.Schema
}

func NewFile(path string, s *schema.Schema) *File {
	return &File{path: path, schema: s}
}

func (f *File) Name() string {
	return "file:" + f.path
}

func (f *File) Path() string {
	return f.path
}

type fileDocument struct {
	Records []map[string]any `yaml:"records"`
}

func (f *File) Load(ctx context.Context) ([]schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "reading %s: %v", f.path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "parsing %s: %v", f.path, err)
	}
	records := make([]schema.Record, 0, len(doc.Records))
	seen := make(map[int64]int, len(doc.Records))
	for i, row := range doc.Records {
		rec, err := toRecord(f.schema, row)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s: record %d: %v", f.path, i+1, err)
		}
		if prev, dup := seen[rec.ID]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s: records %d and %d share id %d", f.path, prev, i+1, rec.ID)
		}
		seen[rec.ID] = i + 1
		records = append(records, rec)
	}
	return records, nil
}

// WriteFile writes records in the format File reads.
func WriteFile(path string, s *schema.Schema, records []schema.Record) error {
	doc := fileDocument{Records: make([]map[string]any, 0, len(records))}
	for _, r := range records {
		row := map[string]any{s.KeyField: r.ID}
		for k, v := range r.Fields {
			row[k] = v
		}
		doc.Records = append(doc.Records, row)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
