package chunk

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"healthcheck", CategoryHealthcheck, false},
		{" SSL ", CategorySSL, false},
		{"stick-table", CategoryStickTable, false},
		{"", CategoryNone, false},
		{"database", CategoryNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("chunk_42")
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.Equal(t, "chunk_42", FormatID(42))

	for _, bad := range []string{"42", "chunk_", "chunk_x", "chunk_-1", "doc_3"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestChunk_UnmarshalJSON_AcceptsBothIDForms(t *testing.T) {
	// Given: records written with integer and string ids
	var a, b Chunk
	require.NoError(t, json.Unmarshal([]byte(`{"id": 3, "content": "x", "ia_category": "ssl"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id": "chunk_7", "content": "y", "has_code": true}`), &b))

	// Then: both decode to integer ids
	assert.Equal(t, 3, a.ID)
	assert.Equal(t, CategorySSL, a.IACategory)
	assert.Equal(t, 7, b.ID)
	assert.True(t, b.HasCode)

	var bad Chunk
	assert.Error(t, json.Unmarshal([]byte(`{"id": true}`), &bad))
}

func TestNormalize_ValidChunk(t *testing.T) {
	// Given: a chunk with messy metadata
	c := Chunk{
		ID:            1,
		Content:       "option httpchk GET /health",
		Source:        "configuration",
		ParentSection: "5.2. Server and default-server options",
		IACategory:    "HealthCheck",
		IAKeywords:    []string{" check ", "inter", "check", ""},
	}

	// When: normalizing
	require.NoError(t, c.Normalize(DefaultLimits()))

	// Then: fields are canonical
	assert.Equal(t, CategoryHealthcheck, c.IACategory)
	assert.Equal(t, []string{"check", "inter"}, c.IAKeywords)
	assert.Equal(t, len("option httpchk GET /health"), c.CharLen)
	assert.Equal(t, []string{"5.2. Server and default-server options"}, c.SectionPath)
}

func TestNormalize_TruncatesMetadata(t *testing.T) {
	var many []string
	for i := 0; i < 30; i++ {
		many = append(many, strings.Repeat("k", 150)+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	c := Chunk{ID: 0, Content: "c", Source: "s", IASynonyms: many}

	require.NoError(t, c.Normalize(Limits{MaxItems: 20, MaxItemLength: 100}))

	assert.Len(t, c.IASynonyms, 1, "items identical after truncation collapse")
	assert.Len(t, []rune(c.IASynonyms[0]), 100)
}

func TestNormalize_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		c    Chunk
		want string
	}{
		{"negative id", Chunk{ID: -1, Content: "x", Source: "s"}, "negative id"},
		{"empty content", Chunk{ID: 1, Content: "  ", Source: "s"}, "empty content"},
		{"empty source", Chunk{ID: 1, Content: "x"}, "empty source"},
		{"bad category", Chunk{ID: 1, Content: "x", Source: "s", IACategory: "misc"}, "unknown category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Normalize(DefaultLimits())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMetadataLine(t *testing.T) {
	c := Chunk{
		IAKeywords: []string{"check", "inter"},
		IASynonyms: []string{"health probe"},
		IACategory: CategoryHealthcheck,
	}

	assert.Equal(t, "Keywords: check, inter| Synonyms: health probe| Category: healthcheck", c.MetadataLine())
	assert.Equal(t, "", (&Chunk{}).MetadataLine())
}
