// Package ranker scores matches and orders the candidates of a search.
package ranker

import (
	"fmt"
	"math"
	"sort"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Scoring selects how a single (field, term) match contributes to a
// document's score.
type Scoring int

const (
	// ScoringTF adds the raw number of occurrences.
	ScoringTF Scoring = iota
	// ScoringBM25 adds the Okapi BM25 weight, normalised by field length.
	ScoringBM25
)

// ParseScoring maps the configuration value to a Scoring.
func ParseScoring(s string) (Scoring, error) {
	switch s {
	case "", "tf":
		return ScoringTF, nil
	case "bm25":
		return ScoringBM25, nil
	default:
		return ScoringTF, fmt.Errorf("unknown scoring %q", s)
	}
}

// Order selects how results are sorted.
type Order int

const (
	// OrderRelevance sorts by descending score, then ascending id.
	OrderRelevance Order = iota
	// OrderNatural sorts by ascending id and ignores scores.
	OrderNatural
)

func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "relevance":
		return OrderRelevance, nil
	case "natural":
		return OrderNatural, nil
	default:
		return OrderRelevance, fmt.Errorf("unknown order %q", s)
	}
}

func (o Order) String() string {
	if o == OrderNatural {
		return "natural"
	}
	return "relevance"
}

type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// FieldStats describes one field across the whole index.
type FieldStats struct {
	TotalDocs      int
	AvgFieldLength float64
}

// Match is one document's occurrences of a (field, term) or phrase.
type Match struct {
	DocID       int64
	Frequency   int
	FieldLength int
}

// Accumulator sums per-document scores over every match of a query.
type Accumulator struct {
	scoring Scoring
	scores  map[int64]float64
}

func NewAccumulator(scoring Scoring) *Accumulator {
	return &Accumulator{
		scoring: scoring,
		scores:  make(map[int64]float64),
	}
}

// Add scores the matches of one (field, term) or phrase. All matches must
// come from the same field; len(matches) is the document frequency.
func (a *Accumulator) Add(matches []Match, stats FieldStats) {
	if len(matches) == 0 {
		return
	}
	var idf float64
	if a.scoring == ScoringBM25 {
		idf = computeIDF(int64(stats.TotalDocs), int64(len(matches)))
	}
	for _, m := range matches {
		if m.Frequency <= 0 {
			continue
		}
		switch a.scoring {
		case ScoringBM25:
			a.scores[m.DocID] += idf * computeTFNorm(
				float64(m.Frequency),
				float64(m.FieldLength),
				stats.AvgFieldLength,
			)
		default:
			a.scores[m.DocID] += float64(m.Frequency)
		}
	}
}

func (a *Accumulator) Len() int {
	return len(a.scores)
}

// Rank sorts the accumulated documents by order and truncates to limit. A
// non-positive limit keeps everything.
func (a *Accumulator) Rank(order Order, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(a.scores))
	for docID, score := range a.scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	Sort(result, order)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Sort orders docs in place.
func Sort(docs []ScoredDoc, order Order) {
	sort.Slice(docs, func(i, j int) bool {
		if order == OrderRelevance && docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, fieldLength float64, avgFieldLength float64) float64 {
	if avgFieldLength == 0 {
		return 0
	}
	lengthRatio := fieldLength / avgFieldLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
