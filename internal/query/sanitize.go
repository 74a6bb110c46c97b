package query

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// dangerousPatterns are stripped from queries, in order.
var dangerousPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`), "script tags"},
	{regexp.MustCompile(`(?i)javascript:`), "javascript protocol"},
	{regexp.MustCompile(`(?s)\{\{.*\}\}`), "template injection"},
	{regexp.MustCompile(`<[^>]*>`), "HTML tags"},
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// safeSource is the shape of a legitimate source filter value.
var safeSource = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _.\-/]*$`)

// MaxSourceLength bounds a source filter value.
const MaxSourceLength = 128

// Sanitize trims raw, truncates it to maxLength characters and strips
// dangerous patterns and control characters.
// It fails when nothing usable is left.
func Sanitize(raw string, maxLength int) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil).
			WithSuggestion("provide a question or a few keywords")
	}

	if maxLength > 0 && utf8.RuneCountInString(q) > maxLength {
		slog.Warn("query_truncated",
			slog.Int("length", utf8.RuneCountInString(q)),
			slog.Int("max_length", maxLength))
		q = string([]rune(q)[:maxLength])
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(q) {
			slog.Warn("query_pattern_removed", slog.String("pattern", p.name))
			q = p.re.ReplaceAllString(q, "")
		}
	}
	q = controlChars.ReplaceAllString(q, "")

	if strings.TrimSpace(q) == "" {
		return "", errors.ValidationError("query contains no valid content after sanitization", nil)
	}
	return q, nil
}

// ValidateSource checks a source filter value and returns it trimmed.
// Values that could be interpreted by a backend as an operator or markup
// (for example "$where") are rejected with a validation error.
func ValidateSource(source string) (string, error) {
	s := strings.TrimSpace(source)
	if s == "" {
		return "", errors.New(errors.ErrCodeInvalidFilter, "source filter is empty", nil)
	}
	if utf8.RuneCountInString(s) > MaxSourceLength {
		return "", errors.New(errors.ErrCodeInvalidFilter, "source filter is too long", nil).
			WithDetail("max_length", "128")
	}
	if !safeSource.MatchString(s) {
		return "", errors.New(errors.ErrCodeInvalidFilter, "source filter contains forbidden characters", nil).
			WithDetail("source", s).
			WithSuggestion("use one of the source names listed by the stats output")
	}
	return s, nil
}
