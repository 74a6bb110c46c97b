// Package query turns raw user text into a sanitized, tokenized and
// expanded Query with an optional category hint.
package query

import (
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
)

// DefaultMaxLength is the query length beyond which text is truncated.
const DefaultMaxLength = 2000

// Query is a processed user query.
type Query struct {
	// Raw is the text as received.
	Raw string
	// Text is the sanitized text.
	Text string
	// Tokens are the query terms in order, duplicates removed.
	Tokens []string
	// Expanded is Tokens followed by the expansion terms, lower-cased and deduplicated.
	Expanded []string
	// Category is the hinted category, CategoryNone when nothing matched.
	Category chunk.Category
}

// ExpansionOnly returns the expanded terms that are not original tokens.
func (q *Query) ExpansionOnly() []string {
	return q.Expanded[len(q.Tokens):]
}

// ExpandedText joins the expanded terms with spaces.
func (q *Query) ExpandedText() string {
	return strings.Join(q.Expanded, " ")
}

// Simplified keeps only the tokens longer than three characters.
// It returns "" when none are left.
func (q *Query) Simplified() string {
	var kept []string
	for _, t := range Tokenize(q.Text) {
		if utf8.RuneCountInString(t) > 3 {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// Processor validates and analyses raw queries. It is safe for concurrent use.
type Processor struct {
	maxLength int
}

// NewProcessor creates a processor truncating queries to maxLength
// characters. A non-positive maxLength selects DefaultMaxLength.
func NewProcessor(maxLength int) *Processor {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Processor{maxLength: maxLength}
}

// Process sanitizes raw and builds its Query.
func (p *Processor) Process(raw string) (*Query, error) {
	text, err := Sanitize(raw, p.maxLength)
	if err != nil {
		return nil, err
	}

	q := &Query{Raw: raw, Text: text}
	q.Tokens = dedupe(Tokenize(text))
	q.Expanded = Expand(text, q.Tokens)
	q.Category = CategoryHint(text)
	return q, nil
}

// Expand returns tokens followed by the terms of every expansion whose key
// occurs in text, lower-cased and without duplicates.
func Expand(text string, tokens []string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]struct{}, len(tokens)*2)
	out := make([]string, 0, len(tokens)*2)
	add := func(t string) {
		t = strings.ToLower(t)
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, t := range tokens {
		add(t)
	}
	for _, e := range expansions {
		if strings.Contains(lower, e.Key) {
			for _, t := range e.Terms {
				add(t)
			}
		}
	}
	return out
}

// CategoryHint returns the category of the first hint whose key occurs in text.
func CategoryHint(text string) chunk.Category {
	lower := strings.ToLower(text)
	for _, h := range categoryHints {
		if strings.Contains(lower, h.Key) {
			return h.Category
		}
	}
	return chunk.CategoryNone
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
