package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

func newTestLexical(t *testing.T) *BleveLexicalIndex {
	t.Helper()
	s, err := NewChunkStore(testChunks(), chunk.DefaultLimits())
	require.NoError(t, err)
	idx, err := NewLexicalIndex(context.Background(), "", s.All())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestLexicalIndex_SearchRanksMatchingChunks(t *testing.T) {
	// Given: an in-memory index over the test chunks
	idx := newTestLexical(t)
	assert.Equal(t, 4, idx.DocCount())

	// When: searching for httpchk
	results, err := idx.Search(context.Background(), QueryTerms([]string{"httpchk"}, nil), 10, "")
	require.NoError(t, err)

	// Then: only the chunk containing the term is returned, with a positive score
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestLexicalIndex_SearchOrdersByScore(t *testing.T) {
	idx := newTestLexical(t)

	// "health" occurs in chunks 0 and 2, "backend" in 0 and 1
	results, err := idx.Search(context.Background(), QueryTerms([]string{"health", "backend"}, nil), 10, "")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].ChunkID, "chunk matching both terms ranks first")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestLexicalIndex_NoMatchReturnsEmpty(t *testing.T) {
	idx := newTestLexical(t)

	results, err := idx.Search(context.Background(), QueryTerms([]string{"quic"}, nil), 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), nil, 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLexicalIndex_SourceFilter(t *testing.T) {
	// Given: "health" in a configuration chunk and a management chunk
	idx := newTestLexical(t)

	// When: restricting to management
	results, err := idx.Search(context.Background(), QueryTerms([]string{"health"}, nil), 10, "management")
	require.NoError(t, err)

	// Then: only the management chunk is returned
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].ChunkID)
}

func TestLexicalIndex_TopN(t *testing.T) {
	idx := newTestLexical(t)

	results, err := idx.Search(context.Background(), QueryTerms([]string{"backend", "health", "timeout"}, nil), 2, "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLexicalIndex_OriginalTermsOutweighExpansion(t *testing.T) {
	idx := newTestLexical(t)

	// When: "roundrobin" is typed and "httpchk" only comes from expansion
	results, err := idx.Search(context.Background(), QueryTerms([]string{"roundrobin"}, []string{"httpchk"}), 10, "")
	require.NoError(t, err)

	// Then: the literal match ranks first
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ChunkID)
	assert.Equal(t, 0, results[1].ChunkID)
}

func TestLexicalIndex_PersistAndReopen(t *testing.T) {
	// Given: an index written to disk
	s, err := NewChunkStore(testChunks(), chunk.DefaultLimits())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "lexical.bleve")
	built, err := NewLexicalIndex(context.Background(), path, s.All())
	require.NoError(t, err)
	require.NoError(t, built.Close())

	// When: reopening read-only
	idx, err := OpenLexicalIndex(path)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: search still works
	results, err := idx.Search(context.Background(), QueryTerms([]string{"stats"}, nil), 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].ChunkID)
}

func TestOpenLexicalIndex_Missing(t *testing.T) {
	_, err := OpenLexicalIndex(filepath.Join(t.TempDir(), "missing.bleve"))

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexNotLoaded, errors.GetCode(err))
}

func TestLexicalIndex_Closed(t *testing.T) {
	idx := newTestLexical(t)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), QueryTerms([]string{"stats"}, nil), 10, "")
	assert.Error(t, err)
	assert.Equal(t, 0, idx.DocCount())
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name      string
		tokens    []string
		expansion []string
		want      []WeightedTerm
	}{
		{
			name:   "original tokens weigh 2",
			tokens: []string{"httpchk", "backend"},
			want:   []WeightedTerm{{"httpchk", 2}, {"backend", 2}},
		},
		{
			name:      "multi-word expansion is split",
			tokens:    []string{"health"},
			expansion: []string{"health check", "option httpchk"},
			want:      []WeightedTerm{{"health", 2}, {"check", 1}, {"option", 1}, {"httpchk", 1}},
		},
		{
			name:      "expansion does not lower an original weight",
			tokens:    []string{"timeout"},
			expansion: []string{"timeout server"},
			want:      []WeightedTerm{{"timeout", 2}, {"server", 1}},
		},
		{
			name:      "index stopwords are dropped",
			tokens:    []string{"can"},
			expansion: []string{"the acl"},
			want:      []WeightedTerm{{"acl", 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryTerms(tt.tokens, tt.expansion))
		})
	}
}

func TestDocTokenizer_MatchesQueryTokenizer(t *testing.T) {
	tok := &docTokenizer{}
	stream := (&docStopFilter{}).Filter(tok.Tokenize([]byte("The http-request deny IF path_beg /api v1.8")))

	var terms []string
	for _, tk := range stream {
		terms = append(terms, string(tk.Term))
	}
	assert.Equal(t, []string{"http-request", "deny", "path", "beg", "api", "v1.8"}, terms)
}
