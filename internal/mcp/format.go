package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/search"
)

// lowConfidenceNote warns clients not to answer from weak matches.
const lowConfidenceNote = "> Low confidence: these results may not answer the question. " +
	"Say so rather than guessing."

// FormatResults formats a retrieval result as markdown.
func FormatResults(query string, result *search.RetrievalResult) string {
	valid := make([]search.ScoredChunk, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Chunk != nil {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		msg := fmt.Sprintf("No documentation found for \"%s\"", query)
		if len(result.Degraded) > 0 {
			msg += fmt.Sprintf(" (unavailable: %s)", strings.Join(result.Degraded, ", "))
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Documentation Results for \"%s\"\n\n", query)
	if result.FallbackUsed {
		fmt.Fprintf(&sb, "Simplified query: `%s`\n\n", result.Query)
	}
	if result.LowConfidence {
		sb.WriteString(lowConfidenceNote)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range valid {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// formatResult formats a single result with its section path and URL.
func formatResult(sb *strings.Builder, num int, r search.ScoredChunk) {
	fmt.Fprintf(sb, "### %d. %s (score: %.3f)\n", num, r.Chunk.Title, r.Score)
	if r.Chunk.URL != "" {
		fmt.Fprintf(sb, "%s\n", r.Chunk.URL)
	}
	if len(r.Chunk.SectionPath) > 0 {
		fmt.Fprintf(sb, "**Section:** %s\n", strings.Join(r.Chunk.SectionPath, " > "))
	}
	sb.WriteString("\n")

	if r.Chunk.HasCode {
		fmt.Fprintf(sb, "```haproxy\n%s\n```\n\n", r.Chunk.Content)
		return
	}
	sb.WriteString(r.Chunk.Content)
	sb.WriteString("\n\n---\n\n")
}
