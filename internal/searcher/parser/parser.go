// Package parser turns a raw query string into clauses the executor can
// evaluate. Clauses combine with OR. Anything the grammar rejects is retried
// once as a literal phrase, so users never see a syntax error.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
)

// reserved are the characters with meaning in the query grammar. Escape
// prefixes each of them with a backslash.
const reserved = `+-&|!(){}[]^"~*?:\/`

type ClauseKind int

const (
	ClauseTerm ClauseKind = iota
	ClausePhrase
	ClauseWildcard
)

func (k ClauseKind) String() string {
	switch k {
	case ClauseTerm:
		return "term"
	case ClausePhrase:
		return "phrase"
	case ClauseWildcard:
		return "wildcard"
	default:
		return "unknown"
	}
}

// Clause is one leaf of a query. Field is empty when the clause spans the
// query's default fields.
type Clause struct {
	Kind  ClauseKind
	Field string
	// Terms holds one analyzed term for ClauseTerm and the ordered terms of
	// a ClausePhrase.
	Terms []string
	// Pattern is the lowercased glob of a ClauseWildcard and Prefix its
	// literal characters before the first wildcard.
	Pattern string
	Prefix  string
}

type Query struct {
	Raw           string
	Clauses       []Clause
	DefaultFields []string
	// Literal is set when the raw string did not parse and was retried as an
	// escaped phrase.
	Literal bool
}

// FieldsOf returns the fields a clause is evaluated against.
func (q *Query) FieldsOf(c Clause) []string {
	if c.Field != "" {
		return []string{c.Field}
	}
	return q.DefaultFields
}

// SyntaxError reports where the grammar rejected a query.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

type Parser struct {
	analyzer *tokenizer.Analyzer
	schema   *schema.Schema
}

// New returns a Parser. The analyzer must be the one the index was built
// with.
func New(analyzer *tokenizer.Analyzer, s *schema.Schema) *Parser {
	return &Parser{analyzer: analyzer, schema: s}
}

// IsBlank reports whether raw is empty once wildcard markers are removed.
// Such queries would match everything and are answered without parsing.
func IsBlank(raw string) bool {
	stripped := strings.NewReplacer("*", "", "?", "").Replace(raw)
	return strings.TrimSpace(stripped) == ""
}

// Escape backslash-escapes every reserved character in s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Parse parses raw. scope, when non-empty, restricts unscoped clauses to that
// field; otherwise they span every indexed field. A raw string the grammar
// rejects is parsed again as a literal phrase.
func (p *Parser) Parse(raw string, scope string) (*Query, error) {
	if !utf8.ValidString(raw) {
		return nil, apperrors.New(apperrors.ErrTokenizeFailed, "query is not valid UTF-8")
	}
	defaults := p.schema.DefaultFields()
	if scope != "" {
		if !p.schema.IsIndexed(scope) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "field %q is not searchable", scope)
		}
		defaults = []string{scope}
	}

	clauses, err := p.ParseStrict(raw)
	if err == nil {
		return &Query{Raw: raw, Clauses: clauses, DefaultFields: defaults}, nil
	}
	if _, ok := err.(*SyntaxError); !ok {
		return nil, err
	}

	clauses, retryErr := p.ParseStrict(`"` + Escape(raw) + `"`)
	if retryErr != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedQuery, "escaped retry of %q failed: %v (first attempt: %v)", raw, retryErr, err)
	}
	return &Query{Raw: raw, Clauses: clauses, DefaultFields: defaults, Literal: true}, nil
}

// ParseStrict parses raw under the grammar only. Grammar violations are
// returned as *SyntaxError.
func (p *Parser) ParseStrict(raw string) ([]Clause, error) {
	l := &lexer{src: []rune(raw)}
	clauses := make([]Clause, 0)
	for {
		l.skipSpace()
		if l.eof() {
			return clauses, nil
		}
		field, err := p.fieldPrefix(l)
		if err != nil {
			return nil, err
		}
		var next []Clause
		if l.peek() == '"' {
			next, err = p.phrase(l, field)
		} else {
			next, err = p.word(l, field)
		}
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next...)
	}
}

// fieldPrefix consumes "name:" when the next word starts with one.
func (p *Parser) fieldPrefix(l *lexer) (string, error) {
	start := l.pos
	end := start
	for end < len(l.src) && isFieldRune(l.src[end]) {
		end++
	}
	if end == start || end >= len(l.src) || l.src[end] != ':' {
		return "", nil
	}
	name := string(l.src[start:end])
	if !p.schema.IsIndexed(name) {
		return "", &SyntaxError{Pos: start, Msg: fmt.Sprintf("unknown field %q", name)}
	}
	l.pos = end + 1
	if l.eof() || unicode.IsSpace(l.peek()) {
		return "", &SyntaxError{Pos: l.pos, Msg: fmt.Sprintf("empty value for field %q", name)}
	}
	return name, nil
}

func (p *Parser) phrase(l *lexer, field string) ([]Clause, error) {
	start := l.pos
	l.pos++
	var text strings.Builder
	for {
		if l.eof() {
			return nil, &SyntaxError{Pos: start, Msg: "unterminated phrase"}
		}
		r := l.src[l.pos]
		l.pos++
		switch r {
		case '"':
			return p.termClauses(field, text.String(), true)
		case '\\':
			if l.eof() {
				return nil, &SyntaxError{Pos: l.pos - 1, Msg: "dangling escape"}
			}
			text.WriteRune(l.src[l.pos])
			l.pos++
		default:
			text.WriteRune(r)
		}
	}
}

func (p *Parser) word(l *lexer, field string) ([]Clause, error) {
	start := l.pos
	var text, pattern, prefix strings.Builder
	wildcard := false
	literals := 0
	for !l.eof() && !unicode.IsSpace(l.peek()) {
		r := l.src[l.pos]
		switch {
		case r == '\\':
			if l.pos+1 >= len(l.src) {
				return nil, &SyntaxError{Pos: l.pos, Msg: "dangling escape"}
			}
			esc := l.src[l.pos+1]
			l.pos += 2
			text.WriteRune(esc)
			if strings.ContainsRune(`*?[]{}\`, esc) {
				pattern.WriteByte('\\')
			}
			pattern.WriteRune(unicode.ToLower(esc))
			if !wildcard {
				prefix.WriteRune(unicode.ToLower(esc))
			}
			literals++
			continue
		case r == '*' || r == '?':
			wildcard = true
			pattern.WriteRune(r)
		case (r == '-' || r == '+') && l.pos > start:
			text.WriteRune(r)
			pattern.WriteRune(r)
			if !wildcard {
				prefix.WriteRune(r)
			}
			literals++
		case strings.ContainsRune(reserved, r):
			return nil, &SyntaxError{Pos: l.pos, Msg: fmt.Sprintf("unexpected %q", r)}
		default:
			text.WriteRune(r)
			lower := unicode.ToLower(r)
			pattern.WriteRune(lower)
			if !wildcard {
				prefix.WriteRune(lower)
			}
			literals++
		}
		l.pos++
	}

	if !wildcard {
		return p.termClauses(field, text.String(), false)
	}
	if literals == 0 {
		return nil, nil
	}
	return []Clause{{
		Kind:    ClauseWildcard,
		Field:   field,
		Pattern: pattern.String(),
		Prefix:  prefix.String(),
	}}, nil
}

// termClauses analyzes text. A quoted text with several terms becomes one
// phrase; an unquoted word that splits into several terms becomes one term
// clause per term.
func (p *Parser) termClauses(field, text string, quoted bool) ([]Clause, error) {
	terms, err := p.analyzer.Terms(text)
	if err != nil {
		return nil, fmt.Errorf("analyzing query text: %w", err)
	}
	if quoted && len(terms) > 1 {
		return []Clause{{Kind: ClausePhrase, Field: field, Terms: terms}}, nil
	}
	clauses := make([]Clause, 0, len(terms))
	for _, t := range terms {
		clauses = append(clauses, Clause{Kind: ClauseTerm, Field: field, Terms: []string{t}})
	}
	return clauses, nil
}

type lexer struct {
	src []rune
	pos int
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.src)
}

func (l *lexer) peek() rune {
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for !l.eof() && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

func isFieldRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}
