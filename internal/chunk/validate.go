package chunk

import (
	"fmt"
	"strings"
)

// Limits bounds the enrichment metadata carried by each chunk.
type Limits struct {
	MaxItems      int
	MaxItemLength int
}

// DefaultLimits keeps 20 items of at most 100 characters per list.
func DefaultLimits() Limits {
	return Limits{MaxItems: 20, MaxItemLength: 100}
}

// Normalize validates c and canonicalizes its optional fields in place:
// the category is lower-cased and checked, metadata lists are trimmed,
// deduplicated and truncated, and CharLen defaults to the content length.
func (c *Chunk) Normalize(limits Limits) error {
	if c.ID < 0 {
		return fmt.Errorf("chunk %d: negative id", c.ID)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk %d: empty content", c.ID)
	}
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("chunk %d: empty source", c.ID)
	}

	cat, err := ParseCategory(string(c.IACategory))
	if err != nil {
		return fmt.Errorf("chunk %d: %w", c.ID, err)
	}
	c.IACategory = cat

	c.Tags = clampList(c.Tags, limits)
	c.Keywords = clampList(c.Keywords, limits)
	c.IAKeywords = clampList(c.IAKeywords, limits)
	c.IASynonyms = clampList(c.IASynonyms, limits)

	if c.CharLen <= 0 {
		c.CharLen = len([]rune(c.Content))
	}
	if len(c.SectionPath) == 0 && c.ParentSection != "" {
		c.SectionPath = []string{c.ParentSection}
	}
	return nil
}

func clampList(items []string, limits Limits) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if r := []rune(item); limits.MaxItemLength > 0 && len(r) > limits.MaxItemLength {
			item = string(r[:limits.MaxItemLength])
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if limits.MaxItems > 0 && len(out) == limits.MaxItems {
			break
		}
	}
	return out
}

// MetadataLine serializes the enrichment metadata as
// "Keywords: a, b| Synonyms: c| Category: d". Empty parts are omitted.
func (c *Chunk) MetadataLine() string {
	var parts []string
	if len(c.IAKeywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(c.IAKeywords, ", "))
	}
	if len(c.IASynonyms) > 0 {
		parts = append(parts, "Synonyms: "+strings.Join(c.IASynonyms, ", "))
	}
	if c.IACategory != CategoryNone {
		parts = append(parts, "Category: "+string(c.IACategory))
	}
	return strings.Join(parts, "| ")
}
