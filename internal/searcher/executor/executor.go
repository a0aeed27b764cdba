package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/logger"
	"github.com/gobwas/glob"
)

// Source gives the executor a consistent view of the index for the duration
// of one query. *indexer.Engine implements it.
type Source interface {
	Read(ctx context.Context, fn func(indexer.View) error) error
}

type Options struct {
	// Limit caps the number of hits. Non-positive means the configured
	// default; values above the configured maximum are clamped.
	Limit int
	Order ranker.Order
}

type Hit struct {
	Document store.Document `json:"document"`
	Score    float64        `json:"score"`
}

type SearchResult struct {
	Query     string         `json:"query"`
	TotalHits int            `json:"total_hits"`
	Hits      []Hit          `json:"hits"`
	TermStats map[string]int `json:"term_stats"`
	Literal   bool           `json:"literal"`
}

type Executor struct {
	source       Source
	scoring      ranker.Scoring
	defaultLimit int
	maxResults   int
}

func New(source Source, cfg config.SearchConfig) (*Executor, error) {
	scoring, err := ranker.ParseScoring(cfg.Scoring)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, err.Error())
	}
	return &Executor{
		source:       source,
		scoring:      scoring,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
	}, nil
}

// Limit resolves a requested limit against the configured default and cap.
func (e *Executor) Limit(requested int) int {
	if requested <= 0 {
		return e.defaultLimit
	}
	if requested > e.maxResults {
		return e.maxResults
	}
	return requested
}

func (e *Executor) Execute(ctx context.Context, q *parser.Query, opts Options) (*SearchResult, error) {
	result := &SearchResult{
		Query:     q.Raw,
		Hits:      []Hit{},
		TermStats: make(map[string]int),
		Literal:   q.Literal,
	}
	if len(q.Clauses) == 0 {
		return result, nil
	}
	start := time.Now()
	limit := e.Limit(opts.Limit)

	patterns := make(map[int]glob.Glob)
	for i, c := range q.Clauses {
		if c.Kind != parser.ClauseWildcard {
			continue
		}
		g, err := glob.Compile(c.Pattern)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrMalformedQuery, "wildcard %q: %v", c.Pattern, err)
		}
		patterns[i] = g
	}

	err := e.source.Read(ctx, func(v indexer.View) error {
		acc := ranker.NewAccumulator(e.scoring)
		for i, c := range q.Clauses {
			for _, field := range q.FieldsOf(c) {
				stats := ranker.FieldStats{
					TotalDocs:      v.DocCount(),
					AvgFieldLength: v.AvgFieldLength(field),
				}
				switch c.Kind {
				case parser.ClauseTerm:
					e.addTerm(v, acc, result, field, c.Terms[0], stats)
				case parser.ClauseWildcard:
					for _, term := range v.Terms(field, c.Prefix) {
						if patterns[i].Match(term) {
							e.addTerm(v, acc, result, field, term, stats)
						}
					}
				case parser.ClausePhrase:
					matches := phraseMatches(v, field, c.Terms)
					if len(matches) > 0 {
						result.TermStats[fmt.Sprintf("%s:%q", field, c.Terms)] = len(matches)
					}
					acc.Add(matches, stats)
				}
			}
		}

		result.TotalHits = acc.Len()
		ranked := acc.Rank(opts.Order, limit)
		ids := make([]int64, len(ranked))
		for i, r := range ranked {
			ids[i] = r.DocID
		}
		docs := v.Documents(ids)
		byID := make(map[int64]store.Document, len(docs))
		for _, d := range docs {
			byID[d.ID] = d
		}
		for _, r := range ranked {
			doc, ok := byID[r.DocID]
			if !ok {
				return apperrors.Newf(apperrors.ErrStorageUnavailable, "document %d has postings but is not stored", r.DocID)
			}
			result.Hits = append(result.Hits, Hit{Document: doc, Score: r.Score})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("executing query %q: %w", q.Raw, err)
	}

	logger.FromContext(ctx).Debug("query executed",
		"component", "query-executor",
		"query", q.Raw,
		"clauses", len(q.Clauses),
		"literal", q.Literal,
		"candidates", result.TotalHits,
		"results", len(result.Hits),
		"order", opts.Order.String(),
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Executor) addTerm(v indexer.View, acc *ranker.Accumulator, result *SearchResult, field, term string, stats ranker.FieldStats) {
	postings := v.Lookup(field, term)
	if len(postings) == 0 {
		return
	}
	result.TermStats[field+":"+term] = len(postings)
	acc.Add(toMatches(v, field, postings), stats)
}

func toMatches(v indexer.View, field string, postings index.PostingList) []ranker.Match {
	matches := make([]ranker.Match, len(postings))
	for i, p := range postings {
		matches[i] = ranker.Match{
			DocID:       p.DocID,
			Frequency:   p.Frequency,
			FieldLength: v.FieldLength(p.DocID, field),
		}
	}
	return matches
}
