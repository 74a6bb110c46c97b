package search

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/config"
	"github.com/Aman-CERP/hybridrag/internal/query"
)

// Signal weights of the boost multiplier.
const (
	keywordWeight = 0.5
	iaWeight      = 0.3
	synonymWeight = 0.2

	// strongTitleBoost is added once per strong keyword found in a title.
	strongTitleBoost = 0.3
)

// strongKeywords mark chunks whose title names a high-value directive.
var strongKeywords = []string{
	"stick-table", "track-sc", "http_req_rate", "conn_rate", "deny", "acl",
	"path_beg", "path_end", "hdr",
}

// Booster adjusts candidate scores with chunk enrichment metadata.
//
//	final = max(rerank, 0) * (1 + 0.5*keyword + 0.3*ia + 0.2*synonym + category + title)
//
// Every term of the multiplier is non-negative, so final >= rerank.
type Booster struct {
	exact   float64
	related float64
	table   map[chunk.Category]map[chunk.Category]struct{}
}

// NewBooster builds a booster from the category tiers in cfg. A nil
// related table selects config.DefaultRelatedCategories.
func NewBooster(cfg config.BoostConfig) *Booster {
	rel := cfg.RelatedCategories
	if rel == nil {
		rel = config.DefaultRelatedCategories()
	}
	table := make(map[chunk.Category]map[chunk.Category]struct{}, len(rel))
	for from, tos := range rel {
		set := make(map[chunk.Category]struct{}, len(tos))
		for _, to := range tos {
			set[chunk.Category(strings.ToLower(to))] = struct{}{}
		}
		table[chunk.Category(strings.ToLower(from))] = set
	}
	return &Booster{
		exact:   max(cfg.ExactCategory, 0),
		related: max(cfg.RelatedCategory, 0),
		table:   table,
	}
}

// Boost computes the metadata signals of c for q and sets c.FinalScore.
func (b *Booster) Boost(q *query.Query, c *Candidate) {
	content := strings.ToLower(c.Chunk.Content)
	title := strings.ToLower(c.Chunk.Title)

	expanded := make(map[string]struct{}, len(q.Expanded))
	for _, t := range q.Expanded {
		expanded[t] = struct{}{}
	}

	c.KeywordMatchRatio = keywordMatchRatio(q, content, title)
	c.IAMatchRatio = listMatchRatio(c.Chunk.IAKeywords, expanded, content, title)
	c.SynonymMatchRatio = listMatchRatio(c.Chunk.IASynonyms, expanded, content, title)
	c.CategoryBoost = b.categoryBoost(q.Category, c.Chunk.IACategory)
	c.TitleBoost = titleBoost(title)

	multiplier := 1 +
		keywordWeight*c.KeywordMatchRatio +
		iaWeight*c.IAMatchRatio +
		synonymWeight*c.SynonymMatchRatio +
		c.CategoryBoost +
		c.TitleBoost
	c.FinalScore = max(c.RerankScore, 0) * multiplier
}

// Apply boosts every candidate and sorts them by final score descending.
// Equal scores keep their incoming order.
func (b *Booster) Apply(q *query.Query, candidates []*Candidate) {
	for _, c := range candidates {
		b.Boost(q, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}

// keywordMatchRatio counts query terms found in content or title. The
// better of the original tokens and the expanded set is divided by the
// size of the expanded set.
func keywordMatchRatio(q *query.Query, content, title string) float64 {
	if len(q.Expanded) == 0 {
		return 0
	}
	count := func(terms []string) int {
		n := 0
		for _, t := range terms {
			if strings.Contains(content, t) || strings.Contains(title, t) {
				n++
			}
		}
		return n
	}
	matches := max(count(q.Tokens), count(q.Expanded))
	return float64(matches) / float64(len(q.Expanded))
}

// listMatchRatio is the fraction of items that are expanded query terms
// or occur in the chunk content or title.
func listMatchRatio(items []string, expanded map[string]struct{}, content, title string) float64 {
	if len(items) == 0 {
		return 0
	}
	matches := 0
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if _, ok := expanded[item]; ok || strings.Contains(content, item) || strings.Contains(title, item) {
			matches++
		}
	}
	return float64(matches) / float64(len(items))
}

func (b *Booster) categoryBoost(hint, category chunk.Category) float64 {
	if hint == chunk.CategoryNone || category == chunk.CategoryNone {
		return 0
	}
	if hint == category {
		return b.exact
	}
	if _, ok := b.table[hint][category]; ok {
		return b.related
	}
	return 0
}

func titleBoost(title string) float64 {
	boost := 0.0
	for _, kw := range strongKeywords {
		if strings.Contains(title, kw) {
			boost += strongTitleBoost
		}
	}
	return boost
}
