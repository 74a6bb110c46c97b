package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

func testChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{ID: 0, Source: "configuration", Title: "option httpchk",
			Content: "option httpchk enables HTTP health checks on a backend server"},
		{ID: 1, Source: "configuration", Title: "balance",
			Content: "balance roundrobin selects the load balancing algorithm of a backend"},
		{ID: 2, Source: "management", Title: "stats socket",
			Content: "the stats socket exposes runtime statistics and health state"},
		{ID: 3, Source: "intro", Title: "timeouts",
			Content: "timeout connect and timeout server bound connection setup"},
	}
}

func writeJSONL(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestNewChunkStore_IndexesByID(t *testing.T) {
	// Given: chunks out of order
	chunks := testChunks()
	chunks[0], chunks[3] = chunks[3], chunks[0]

	// When: building the store
	s, err := NewChunkStore(chunks, chunk.DefaultLimits())
	require.NoError(t, err)

	// Then: chunk i is at id i
	assert.Equal(t, 4, s.Len())
	for i := 0; i < s.Len(); i++ {
		c, ok := s.Get(i)
		require.True(t, ok)
		assert.Equal(t, i, c.ID)
	}
	_, ok := s.Get(4)
	assert.False(t, ok)
	_, ok = s.Get(-1)
	assert.False(t, ok)
}

func TestNewChunkStore_RejectsGaps(t *testing.T) {
	// Given: ids 0 and 2 only
	chunks := testChunks()[:2]
	chunks[1].ID = 2

	// When: building the store
	_, err := NewChunkStore(chunks, chunk.DefaultLimits())

	// Then: the store is invalid
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkStoreInvalid, errors.GetCode(err))
}

func TestNewChunkStore_RejectsDuplicates(t *testing.T) {
	chunks := testChunks()[:2]
	chunks[1].ID = 0

	_, err := NewChunkStore(chunks, chunk.DefaultLimits())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkStoreInvalid, errors.GetCode(err))
}

func TestNewChunkStore_RejectsInvalidChunk(t *testing.T) {
	// Given: a chunk with an unknown category
	chunks := testChunks()
	chunks[2].IACategory = "networking"

	// When: building the store
	_, err := NewChunkStore(chunks, chunk.DefaultLimits())

	// Then: validation fails
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkStoreInvalid, errors.GetCode(err))
}

func TestChunkStore_Sources(t *testing.T) {
	s, err := NewChunkStore(testChunks(), chunk.DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"configuration", "intro", "management"}, s.Sources())
	assert.True(t, s.HasSource("configuration"))
	assert.False(t, s.HasSource("nonexistent"))
	assert.Equal(t, 2, s.SourceCounts()["configuration"])

	src, ok := s.SourceOf(2)
	assert.True(t, ok)
	assert.Equal(t, "management", src)
}

func TestLoadChunks_JSONL(t *testing.T) {
	// Given: a JSONL file with string and integer ids and a blank line
	path := writeJSONL(t,
		`{"id": "chunk_1", "content": "balance roundrobin", "source": "configuration", "ia_category": "LoadBalancing"}`,
		``,
		`{"id": 0, "content": "option httpchk", "source": "configuration", "ia_keywords": ["httpchk", "httpchk", " "]}`,
	)

	// When: loading
	s, err := LoadChunks(path, chunk.DefaultLimits())
	require.NoError(t, err)

	// Then: both chunks are normalized
	require.Equal(t, 2, s.Len())
	c0, _ := s.Get(0)
	assert.Equal(t, []string{"httpchk"}, c0.IAKeywords)
	assert.Equal(t, len("option httpchk"), c0.CharLen)
	c1, _ := s.Get(1)
	assert.Equal(t, chunk.CategoryLoadBalancing, c1.IACategory)
}

func TestLoadChunks_MissingFile(t *testing.T) {
	_, err := LoadChunks(filepath.Join(t.TempDir(), "missing.jsonl"), chunk.DefaultLimits())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexNotLoaded, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))
}

func TestLoadChunks_MalformedLine(t *testing.T) {
	path := writeJSONL(t,
		`{"id": 0, "content": "option httpchk", "source": "configuration"}`,
		`{"id": 1, "content": `,
	)

	_, err := LoadChunks(path, chunk.DefaultLimits())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkStoreInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadChunks_SQLiteRoundTrip(t *testing.T) {
	// Given: a store written to SQLite
	s, err := NewChunkStore(testChunks(), chunk.DefaultLimits())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "index", "chunks.db")
	require.NoError(t, s.WriteSQLite(context.Background(), path))

	// When: loading it back
	loaded, err := LoadChunks(path, chunk.DefaultLimits())
	require.NoError(t, err)

	// Then: the chunks are identical
	require.Equal(t, s.Len(), loaded.Len())
	for i := 0; i < s.Len(); i++ {
		want, _ := s.Get(i)
		got, _ := loaded.Get(i)
		assert.Equal(t, want, got)
	}
}
