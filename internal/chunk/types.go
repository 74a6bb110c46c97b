// Package chunk defines the indexed unit of corpus text and its
// load-time validation.
package chunk

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IDPrefix is the dense index key prefix: chunk 12 is stored as "chunk_12".
const IDPrefix = "chunk_"

// Category is the closed set of enrichment categories.
type Category string

const (
	CategoryNone          Category = ""
	CategoryBackend       Category = "backend"
	CategoryFrontend      Category = "frontend"
	CategoryACL           Category = "acl"
	CategorySSL           Category = "ssl"
	CategoryTimeout       Category = "timeout"
	CategoryHealthcheck   Category = "healthcheck"
	CategoryStickTable    Category = "stick-table"
	CategoryLogs          Category = "logs"
	CategoryStats         Category = "stats"
	CategoryGeneral       Category = "general"
	CategoryLoadBalancing Category = "loadbalancing"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryBackend, CategoryFrontend, CategoryACL, CategorySSL, CategoryTimeout,
	CategoryHealthcheck, CategoryStickTable, CategoryLogs, CategoryStats,
	CategoryGeneral, CategoryLoadBalancing,
}

// ParseCategory normalizes s and checks it against Categories.
// An empty string yields CategoryNone.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == CategoryNone {
		return CategoryNone, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("unknown category %q", s)
}

// Chunk is an immutable, indexed unit of corpus text with its enrichment metadata.
type Chunk struct {
	ID            int      `json:"id"`
	Content       string   `json:"content"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Source        string   `json:"source"`
	SectionPath   []string `json:"section_path,omitempty"`
	ParentSection string   `json:"parent_section,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	IAKeywords    []string `json:"ia_keywords,omitempty"`
	IASynonyms    []string `json:"ia_synonyms,omitempty"`
	IACategory    Category `json:"ia_category,omitempty"`
	IASummary     string   `json:"ia_summary,omitempty"`
	HasCode       bool     `json:"has_code"`
	CharLen       int      `json:"char_len"`
}

// Key returns the dense index key of the chunk.
func (c *Chunk) Key() string {
	return FormatID(c.ID)
}

// FormatID returns the dense index key for id.
func FormatID(id int) string {
	return IDPrefix + strconv.Itoa(id)
}

// ParseID parses a dense index key of the form "chunk_<int>".
func ParseID(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, IDPrefix)
	if !ok {
		return 0, fmt.Errorf("chunk id %q: missing %q prefix", key, IDPrefix)
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("chunk id %q: not a non-negative integer", key)
	}
	return id, nil
}

// UnmarshalJSON accepts ids written as integers or as "chunk_<int>" strings.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	type plain Chunk
	aux := struct {
		*plain
		ID         json.RawMessage `json:"id"`
		IACategory string          `json:"ia_category"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var n int
	if err := json.Unmarshal(aux.ID, &n); err != nil {
		var s string
		if serr := json.Unmarshal(aux.ID, &s); serr != nil {
			return fmt.Errorf("chunk id: %s is neither an integer nor a string", string(aux.ID))
		}
		if n, err = ParseID(s); err != nil {
			if n, err = strconv.Atoi(s); err != nil {
				return fmt.Errorf("chunk id: %w", err)
			}
		}
	}
	c.ID = n
	c.IACategory = Category(aux.IACategory)
	return nil
}
