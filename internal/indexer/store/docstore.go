// Package store holds the stored field values of every indexed document so
// that search hits can be turned back into records without re-tokenizing.
package store

import "sort"

// Document is the stored projection of a record: only fields configured as
// stored are kept.
type Document struct {
	ID     int64             `json:"id"`
	Fields map[string]string `json:"fields"`
}

// DocStore is keyed by document id; last write wins. Like the inverted index
// it relies on the Engine for synchronisation.
type DocStore struct {
	docs map[int64]Document
}

func NewDocStore() *DocStore {
	return &DocStore{docs: make(map[int64]Document)}
}

func (s *DocStore) Put(doc Document) {
	fields := make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	s.docs[doc.ID] = Document{ID: doc.ID, Fields: fields}
}

func (s *DocStore) Get(id int64) (Document, bool) {
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, false
	}
	return clone(doc), true
}

func (s *DocStore) Delete(id int64) bool {
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok
}

// GetMany resolves ids in the order given, skipping ids that are not stored.
func (s *DocStore) GetMany(ids []int64) []Document {
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, clone(doc))
		}
	}
	return out
}

func (s *DocStore) Len() int {
	return len(s.docs)
}

// All returns every stored document ordered by id.
func (s *DocStore) All() []Document {
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, clone(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *DocStore) Reset() {
	s.docs = make(map[int64]Document)
}

func clone(doc Document) Document {
	fields := make(map[string]string, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return Document{ID: doc.ID, Fields: fields}
}
