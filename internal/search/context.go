package search

import (
	"fmt"
	"math"
	"strings"
)

// contextSeparator separates chunks in an LLM context string.
const contextSeparator = "\n\n---\n\n"

// BuildContext renders results as an LLM context string, each chunk under a
// "[Source i: title - url]" header, and returns their citations in order.
func BuildContext(results []ScoredChunk) (string, []SourceRef) {
	if len(results) == 0 {
		return "", []SourceRef{}
	}

	parts := make([]string, 0, len(results))
	sources := make([]SourceRef, 0, len(results))
	for i, r := range results {
		c := r.Chunk
		parts = append(parts, fmt.Sprintf("[Source %d: %s - %s]\n\n%s", i+1, c.Title, c.URL, c.Content))

		keywords := c.IAKeywords
		if keywords == nil {
			keywords = []string{}
		}
		sources = append(sources, SourceRef{
			Title:      c.Title,
			URL:        c.URL,
			Source:     c.Source,
			Score:      math.Round(r.Score*1000) / 1000,
			HasCode:    c.HasCode,
			IACategory: c.IACategory,
			IAKeywords: keywords,
		})
	}
	return strings.Join(parts, contextSeparator), sources
}
