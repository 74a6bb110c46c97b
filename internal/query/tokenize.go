package query

import (
	"regexp"
	"strings"
)

// tokenPattern matches terms such as "http-request", "1.8" or "x".
// Underscores split terms.
var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9\-.]*[a-z0-9]|[a-z0-9]`)

var stopwords = toSet(
	"le", "la", "les", "de", "du", "des", "un", "une", "et", "ou",
	"en", "au", "aux", "the", "a", "an", "is", "are", "was", "were",
	"for", "in", "on", "at", "to", "of", "with", "by", "from", "this", "that",
)

// indexOnlyStopwords are also dropped when indexing chunk text.
var indexOnlyStopwords = toSet(
	"can", "will", "may", "must", "should", "if", "then", "else",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// IsStopword reports whether t is dropped from queries.
func IsStopword(t string) bool {
	_, ok := stopwords[t]
	return ok
}

// IsIndexStopword reports whether t is dropped from indexed text.
func IsIndexStopword(t string) bool {
	if IsStopword(t) {
		return true
	}
	_, ok := indexOnlyStopwords[t]
	return ok
}

// Span is a token and its byte offsets in the lower-cased text.
type Span struct {
	Term       string
	Start, End int
}

// Spans lower-cases text and returns every token match, stopwords included.
func Spans(text string) []Span {
	lower := strings.ToLower(text)
	locs := tokenPattern.FindAllStringIndex(lower, -1)
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{Term: lower[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
	}
	return spans
}

// Tokenize returns the query terms of text in order, without stopwords
// and single-character tokens. Duplicates are kept.
func Tokenize(text string) []string {
	var tokens []string
	for _, s := range Spans(text) {
		if len(s.Term) > 1 && !IsStopword(s.Term) {
			tokens = append(tokens, s.Term)
		}
	}
	return tokens
}
