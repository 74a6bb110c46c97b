package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
	"github.com/Aman-CERP/hybridrag/internal/query"
)

const (
	// DocTokenizerName is the registered tokenizer sharing the query term pattern.
	DocTokenizerName = "haproxy_tokenizer"

	// DocStopFilterName drops stopwords and single-character terms.
	DocStopFilterName = "haproxy_stop"

	// DocAnalyzerName is the analyzer applied to chunk content.
	DocAnalyzerName = "haproxy_analyzer"

	fieldContent = "content"
	fieldSource  = "source"

	indexBatchSize = 500
)

func init() {
	_ = registry.RegisterTokenizer(DocTokenizerName, docTokenizerConstructor)
	_ = registry.RegisterTokenFilter(DocStopFilterName, docStopFilterConstructor)
}

// lexicalDocument is the indexed form of a chunk.
type lexicalDocument struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// BleveLexicalIndex is a BM25 index over chunk content backed by bleve.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewLexicalIndex indexes chunks. An empty path keeps the index in memory;
// otherwise it is written to path, which must not exist yet.
func NewLexicalIndex(ctx context.Context, path string, chunks []*chunk.Chunk) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory: %w", mkErr)
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	l := &BleveLexicalIndex{index: idx, path: path}
	if err := l.indexChunks(ctx, chunks); err != nil {
		_ = idx.Close()
		return nil, err
	}

	slog.Info("lexical_index_built",
		slog.String("path", path),
		slog.Int("chunks", len(chunks)))
	return l, nil
}

// OpenLexicalIndex opens an index previously written by NewLexicalIndex
// in read-only mode.
func OpenLexicalIndex(path string) (*BleveLexicalIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.IndexNotLoaded("lexical index", path, err)
	}
	idx, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		return nil, errors.IndexNotLoaded("lexical index", path, err)
	}
	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// createIndexMapping analyzes content with the query tokenizer and scores with BM25.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(DocAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": DocTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			DocStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = DocAnalyzerName
	indexMapping.ScoringModel = "bm25"

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = DocAnalyzerName
	contentField.Store = false
	contentField.IncludeTermVectors = false

	sourceField := bleve.NewKeywordFieldMapping()
	sourceField.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldContent, contentField)
	docMapping.AddFieldMappingsAt(fieldSource, sourceField)
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

func (l *BleveLexicalIndex) indexChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	batch := l.index.NewBatch()
	for i, c := range chunks {
		if err := batch.Index(strconv.Itoa(c.ID), lexicalDocument{Content: c.Content, Source: c.Source}); err != nil {
			return fmt.Errorf("failed to add chunk %d to batch: %w", c.ID, err)
		}
		if batch.Size() >= indexBatchSize || i == len(chunks)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = l.index.NewBatch()
		}
	}
	return nil
}

// Search scores chunk content against terms. Terms are OR-ed; each term's
// weight boosts its contribution.
func (l *BleveLexicalIndex) Search(ctx context.Context, terms []WeightedTerm, topN int, source string) ([]Scored, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if len(terms) == 0 || topN <= 0 {
		return []Scored{}, nil
	}

	clauses := make([]blevequery.Query, 0, len(terms))
	for _, t := range terms {
		tq := bleve.NewTermQuery(t.Term)
		tq.SetField(fieldContent)
		tq.SetBoost(t.Weight)
		clauses = append(clauses, tq)
	}
	var q blevequery.Query = bleve.NewDisjunctionQuery(clauses...)
	if source != "" {
		sq := bleve.NewTermQuery(source)
		sq.SetField(fieldSource)
		q = bleve.NewConjunctionQuery(q, sq)
	}

	req := bleve.NewSearchRequestOptions(q, topN, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]Scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score <= 0 {
			continue
		}
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			slog.Warn("lexical_hit_bad_id", slog.String("id", hit.ID))
			continue
		}
		results = append(results, Scored{ChunkID: id, Score: hit.Score})
	}
	return results, nil
}

// DocCount returns the number of indexed chunks.
func (l *BleveLexicalIndex) DocCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0
	}
	n, err := l.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close closes the index.
func (l *BleveLexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// QueryTerms builds the weighted lexical terms for a query: original tokens
// weigh 2, expansion-only terms weigh 1. Multi-word expansions are split
// with the query tokenizer. A term keeps the highest weight it is given.
func QueryTerms(tokens, expansion []string) []WeightedTerm {
	terms := make([]WeightedTerm, 0, len(tokens)+len(expansion))
	index := make(map[string]int, cap(terms))
	push := func(text string, w float64) {
		for _, t := range query.Tokenize(text) {
			if query.IsIndexStopword(t) {
				continue
			}
			if i, ok := index[t]; ok {
				if w > terms[i].Weight {
					terms[i].Weight = w
				}
				continue
			}
			index[t] = len(terms)
			terms = append(terms, WeightedTerm{Term: t, Weight: w})
		}
	}
	for _, t := range tokens {
		push(t, 2)
	}
	for _, t := range expansion {
		push(t, 1)
	}
	return terms
}

// docTokenizer splits text with the query term pattern so indexed terms and
// query terms agree.
type docTokenizer struct{}

func docTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &docTokenizer{}, nil
}

// Tokenize implements analysis.Tokenizer.
func (t *docTokenizer) Tokenize(input []byte) analysis.TokenStream {
	spans := query.Spans(string(input))
	result := make(analysis.TokenStream, 0, len(spans))
	for i, s := range spans {
		result = append(result, &analysis.Token{
			Term:     []byte(s.Term),
			Start:    s.Start,
			End:      s.End,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}

type docStopFilter struct{}

func docStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &docStopFilter{}, nil
}

// Filter implements analysis.TokenFilter.
func (f *docStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if len(token.Term) < 2 || query.IsIndexStopword(string(token.Term)) {
			continue
		}
		result = append(result, token)
	}
	return result
}
