// Package index implements the in-memory inverted index: (field, term) to
// postings, plus the per-document field lengths used for scoring.
//
// MemoryIndex is not safe for concurrent use on its own. The indexer Engine
// guards it together with the document store so that both change under one
// lock.
package index

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
)

type MemoryIndex struct {
	// field -> term -> doc -> posting
	postings map[string]map[string]map[int64]*Posting
	// doc -> field -> distinct terms, so Remove does not scan the dictionary
	docTerms     map[int64]map[string][]string
	fieldLengths map[int64]map[string]int
	fieldTotals  map[string]int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings:     make(map[string]map[string]map[int64]*Posting),
		docTerms:     make(map[int64]map[string][]string),
		fieldLengths: make(map[int64]map[string]int),
		fieldTotals:  make(map[string]int64),
	}
}

// Add records the postings of one field of a document. Callers replacing a
// document must Remove it first. An empty token slice still registers the
// document, so it is counted and can be removed later.
func (m *MemoryIndex) Add(docID int64, field string, tokens []tokenizer.Token) {
	termData := make(map[string]*Posting)
	order := make([]string, 0, len(tokens))
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 2),
			}
			termData[token.Term] = p
			order = append(order, token.Term)
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	if _, ok := m.docTerms[docID]; !ok {
		m.docTerms[docID] = make(map[string][]string)
		m.fieldLengths[docID] = make(map[string]int)
	}
	fieldIndex, ok := m.postings[field]
	if !ok {
		fieldIndex = make(map[string]map[int64]*Posting)
		m.postings[field] = fieldIndex
	}
	for _, term := range order {
		if _, exists := fieldIndex[term]; !exists {
			fieldIndex[term] = make(map[int64]*Posting)
		}
		fieldIndex[term][docID] = termData[term]
	}
	m.docTerms[docID][field] = append(m.docTerms[docID][field], order...)
	m.fieldTotals[field] += int64(len(tokens)) - int64(m.fieldLengths[docID][field])
	m.fieldLengths[docID][field] = len(tokens)
}

// Remove deletes every posting of docID across all fields. It reports whether
// the document was present.
func (m *MemoryIndex) Remove(docID int64) bool {
	fields, ok := m.docTerms[docID]
	if !ok {
		return false
	}
	for field, terms := range fields {
		fieldIndex := m.postings[field]
		for _, term := range terms {
			docs := fieldIndex[term]
			delete(docs, docID)
			if len(docs) == 0 {
				delete(fieldIndex, term)
			}
		}
		if len(fieldIndex) == 0 {
			delete(m.postings, field)
		}
	}
	for field, n := range m.fieldLengths[docID] {
		m.fieldTotals[field] -= int64(n)
		if m.fieldTotals[field] == 0 {
			delete(m.fieldTotals, field)
		}
	}
	delete(m.docTerms, docID)
	delete(m.fieldLengths, docID)
	return true
}

// Lookup returns the postings of term in field ordered by document id. An
// absent term yields an empty list.
func (m *MemoryIndex) Lookup(field string, term string) PostingList {
	docs, exists := m.postings[field][term]
	if !exists {
		return PostingList{}
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		p := *posting
		p.Positions = append([]int(nil), posting.Positions...)
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Terms returns, in sorted order, the terms of field that start with prefix.
func (m *MemoryIndex) Terms(field string, prefix string) []string {
	fieldIndex := m.postings[field]
	terms := make([]string, 0)
	for term := range fieldIndex {
		if strings.HasPrefix(term, prefix) {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)
	return terms
}

// contains reports whether docID has been added and not removed.
func (m *MemoryIndex) contains(docID int64) bool {
	_, ok := m.docTerms[docID]
	return ok
}

func (m *MemoryIndex) DocCount() int {
	return len(m.docTerms)
}

// FieldLength is the token count of field in docID.
func (m *MemoryIndex) FieldLength(docID int64, field string) int {
	return m.fieldLengths[docID][field]
}

// AvgFieldLength is the mean token count of field over all documents.
func (m *MemoryIndex) AvgFieldLength(field string) float64 {
	if len(m.docTerms) == 0 {
		return 0
	}
	return float64(m.fieldTotals[field]) / float64(len(m.docTerms))
}

// TermCount is the number of distinct (field, term) keys.
func (m *MemoryIndex) TermCount() int {
	n := 0
	for _, terms := range m.postings {
		n += len(terms)
	}
	return n
}

// Snapshot copies the index into a form the segment writer can persist. Term
// entries are sorted by field then term, postings by document id.
func (m *MemoryIndex) Snapshot() Snapshot {
	entries := make([]TermEntry, 0, m.TermCount())
	for field := range m.postings {
		for term := range m.postings[field] {
			entries = append(entries, TermEntry{
				Field:    field,
				Term:     term,
				Postings: m.Lookup(field, term),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})

	lengths := make([]DocLengths, 0, len(m.fieldLengths))
	for docID, fields := range m.fieldLengths {
		copied := make(map[string]int, len(fields))
		for f, n := range fields {
			copied[f] = n
		}
		lengths = append(lengths, DocLengths{DocID: docID, Fields: copied})
	}
	sort.Slice(lengths, func(i, j int) bool {
		return lengths[i].DocID < lengths[j].DocID
	})
	return Snapshot{Terms: entries, Lengths: lengths}
}

// Restore replaces the contents of the index with a snapshot.
func (m *MemoryIndex) Restore(s Snapshot) {
	m.Reset()
	for _, dl := range s.Lengths {
		m.docTerms[dl.DocID] = make(map[string][]string)
		m.fieldLengths[dl.DocID] = make(map[string]int, len(dl.Fields))
		for field, n := range dl.Fields {
			m.fieldLengths[dl.DocID][field] = n
			m.fieldTotals[field] += int64(n)
		}
	}
	for _, entry := range s.Terms {
		fieldIndex, ok := m.postings[entry.Field]
		if !ok {
			fieldIndex = make(map[string]map[int64]*Posting)
			m.postings[entry.Field] = fieldIndex
		}
		docs := make(map[int64]*Posting, len(entry.Postings))
		for i := range entry.Postings {
			p := entry.Postings[i]
			docs[p.DocID] = &p
			if _, ok := m.docTerms[p.DocID]; !ok {
				m.docTerms[p.DocID] = make(map[string][]string)
				m.fieldLengths[p.DocID] = make(map[string]int)
			}
			m.docTerms[p.DocID][entry.Field] = append(m.docTerms[p.DocID][entry.Field], entry.Term)
		}
		fieldIndex[entry.Term] = docs
	}
}

func (m *MemoryIndex) Reset() {
	m.postings = make(map[string]map[string]map[int64]*Posting)
	m.docTerms = make(map[int64]map[string][]string)
	m.fieldLengths = make(map[int64]map[string]int)
	m.fieldTotals = make(map[string]int64)
}
