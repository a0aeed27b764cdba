package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
)

// View is the read-only surface a search sees while it holds the read lock.
type View interface {
	Lookup(field, term string) index.PostingList
	Terms(field, prefix string) []string
	FieldLength(docID int64, field string) int
	AvgFieldLength(field string) float64
	DocCount() int
	Documents(ids []int64) []store.Document
}

type view struct {
	e *Engine
}

func (v view) Lookup(field, term string) index.PostingList {
	return v.e.idx.Lookup(field, term)
}

func (v view) Terms(field, prefix string) []string {
	return v.e.idx.Terms(field, prefix)
}

func (v view) FieldLength(docID int64, field string) int {
	return v.e.idx.FieldLength(docID, field)
}

func (v view) AvgFieldLength(field string) float64 {
	return v.e.idx.AvgFieldLength(field)
}

func (v view) DocCount() int {
	return v.e.idx.DocCount()
}

func (v view) Documents(ids []int64) []store.Document {
	return v.e.docs.GetMany(ids)
}
