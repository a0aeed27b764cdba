package executor

import (
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
)

// phraseMatches returns the documents in which terms occur at consecutive
// positions of field. Frequency is the number of occurrences of the whole
// phrase.
func phraseMatches(v indexer.View, field string, terms []string) []ranker.Match {
	if len(terms) == 0 {
		return nil
	}
	// doc -> positions of each term, in phrase order
	positions := make(map[int64][]map[int]struct{})
	for i, term := range terms {
		postings := v.Lookup(field, term)
		if len(postings) == 0 {
			return nil
		}
		seen := make(map[int64]struct{}, len(postings))
		for _, p := range postings {
			if i > 0 {
				if _, ok := positions[p.DocID]; !ok {
					continue
				}
			} else {
				positions[p.DocID] = make([]map[int]struct{}, len(terms))
			}
			set := make(map[int]struct{}, len(p.Positions))
			for _, pos := range p.Positions {
				set[pos] = struct{}{}
			}
			positions[p.DocID][i] = set
			seen[p.DocID] = struct{}{}
		}
		for docID := range positions {
			if _, ok := seen[docID]; !ok {
				delete(positions, docID)
			}
		}
		if len(positions) == 0 {
			return nil
		}
	}

	matches := make([]ranker.Match, 0, len(positions))
	for docID, sets := range positions {
		freq := 0
		for start := range sets[0] {
			found := true
			for i := 1; i < len(sets); i++ {
				if _, ok := sets[i][start+i]; !ok {
					found = false
					break
				}
			}
			if found {
				freq++
			}
		}
		if freq > 0 {
			matches = append(matches, ranker.Match{
				DocID:       docID,
				Frequency:   freq,
				FieldLength: v.FieldLength(docID, field),
			})
		}
	}
	return matches
}
