// Package tokenizer provides text analysis for the search engine. It
// lower-cases input, splits on non-alphanumeric boundaries and optionally
// removes English stop-words. The same Analyzer must be used on the write
// path and the query path so that terms line up.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
)

// MaxTermLength is the longest term, in bytes, that is kept. Longer runs of
// letters and digits are dropped.
const MaxTermLength = 255

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "will": {}, "with": {},
}

// Token represents a single normalised term and its position in the
// original text. Positions count kept tokens and are contiguous, so a phrase
// matches on consecutive positions.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns text into Tokens. It has no mutable state and is safe for
// concurrent use.
type Analyzer struct {
	stopWords bool
}

func New(useStopWords bool) *Analyzer {
	return &Analyzer{stopWords: useStopWords}
}

// Analyze breaks text into lowercased Tokens. Empty or all-punctuation input
// yields an empty slice. Text that is not valid UTF-8 is rejected with
// ErrTokenizeFailed.
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	if !utf8.ValidString(text) {
		return nil, apperrors.New(apperrors.ErrTokenizeFailed, "text is not valid UTF-8")
	}
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if len(word) > MaxTermLength {
			continue
		}
		if a.isStopWord(word) {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens, nil
}

// Terms is Analyze without positions.
func (a *Analyzer) Terms(text string) ([]string, error) {
	tokens, err := a.Analyze(text)
	if err != nil {
		return nil, err
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms, nil
}

func (a *Analyzer) isStopWord(term string) bool {
	if !a.stopWords {
		return false
	}
	_, ok := stopWords[term]
	return ok
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
