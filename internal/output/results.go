package output

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/search"
)

// snippetLen bounds the content preview of a result in text mode.
const snippetLen = 300

// Results prints a ranked result set.
func (w *Writer) Results(result *search.RetrievalResult) {
	if result == nil || len(result.Results) == 0 {
		query := ""
		if result != nil {
			query = result.Query
		}
		w.Warningf("No documentation found for %q", query)
		if result != nil && len(result.Degraded) > 0 {
			w.Status("", w.styles.Dim.Render("unavailable: "+strings.Join(result.Degraded, ", ")))
		}
		return
	}

	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(fmt.Sprintf("Results for %q", result.Query)))
	if result.FallbackUsed {
		w.Status("", w.styles.Dim.Render("retried with simplified query"))
	}
	if len(result.Degraded) > 0 {
		w.Warningf("Degraded: %s unavailable", strings.Join(result.Degraded, ", "))
	}
	if result.LowConfidence {
		w.Warningf("Low confidence (best score %.3f)", result.BestScore)
	}
	w.Newline()

	for i, r := range result.Results {
		w.result(i+1, r)
	}

	if d := result.Diagnostics; d != nil {
		w.diagnostics(d)
	}
}

func (w *Writer) result(rank int, r search.ScoredChunk) {
	c := r.Chunk
	_, _ = fmt.Fprintf(w.out, "%d. %s %s\n",
		rank,
		w.styles.Title.Render(c.Title),
		w.styles.Score.Render(fmt.Sprintf("(%.3f)", r.Score)))
	if c.URL != "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.URL.Render(c.URL))
	}

	var meta []string
	if c.Source != "" {
		meta = append(meta, "source="+c.Source)
	}
	if c.IACategory != "" {
		meta = append(meta, "category="+string(c.IACategory))
	}
	if len(c.SectionPath) > 0 {
		meta = append(meta, "section="+strings.Join(c.SectionPath, " > "))
	}
	if len(meta) > 0 {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Label.Render(strings.Join(meta, "  ")))
	}

	_, _ = fmt.Fprintf(w.out, "   %s\n\n", w.styles.Dim.Render(snippet(c.Content)))
}

func (w *Writer) diagnostics(d *search.Diagnostics) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Diagnostics"))
	if len(d.ExpandedTerms) > 0 {
		w.Status("", "expanded: "+strings.Join(d.ExpandedTerms, ", "))
	}
	if d.Category != "" {
		w.Status("", "category: "+string(d.Category))
	}
	w.Statusf("", "dense: %d  lexical: %d  fused: %d  reranked: %t",
		len(d.Dense), len(d.Lexical), len(d.Fused), d.Reranked)
}

// Context prints a context block followed by its citations.
func (w *Writer) Context(text string, sources []search.SourceRef, lowConfidence bool) {
	if text == "" {
		w.Warning("No documentation found")
		return
	}
	if lowConfidence {
		w.Warning("Low confidence: the context may not answer the question")
	}
	_, _ = fmt.Fprintln(w.out, text)
	w.Newline()
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Sources"))
	for i, s := range sources {
		_, _ = fmt.Fprintf(w.out, "[%d] %s %s\n", i+1, s.Title, w.styles.URL.Render(s.URL))
	}
}

// snippet collapses whitespace and truncates content for previews.
func snippet(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
