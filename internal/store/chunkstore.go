package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 * 1024 * 1024

// ChunkStore holds every chunk of the corpus snapshot, addressed by id.
// Ids are dense: chunk i sits at position i. It is read-only and safe for
// concurrent use.
type ChunkStore struct {
	chunks  []*chunk.Chunk
	sources map[string]int
}

// NewChunkStore validates chunks and indexes them by id.
func NewChunkStore(chunks []chunk.Chunk, limits chunk.Limits) (*ChunkStore, error) {
	sorted := make([]*chunk.Chunk, len(chunks))
	for i := range chunks {
		c := chunks[i]
		if err := c.Normalize(limits); err != nil {
			return nil, errors.New(errors.ErrCodeChunkStoreInvalid, "invalid chunk", err)
		}
		sorted[i] = &c
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	s := &ChunkStore{chunks: sorted, sources: make(map[string]int)}
	for i, c := range sorted {
		if c.ID != i {
			return nil, errors.New(errors.ErrCodeChunkStoreInvalid,
				fmt.Sprintf("chunk ids must be 0..%d without gaps or duplicates, found %d at position %d", len(sorted)-1, c.ID, i), nil)
		}
		s.sources[c.Source]++
	}
	return s, nil
}

// LoadChunks reads the chunk store at path. Files ending in .db, .sqlite or
// .sqlite3 are read as SQLite databases, anything else as JSON lines.
func LoadChunks(path string, limits chunk.Limits) (*ChunkStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.IndexNotLoaded("chunk store", path, err)
	}

	var (
		chunks []chunk.Chunk
		err    error
	)
	if isSQLitePath(path) {
		chunks, err = readSQLite(path)
	} else {
		chunks, err = readJSONL(path)
	}
	if err != nil {
		return nil, err
	}

	s, err := NewChunkStore(chunks, limits)
	if err != nil {
		return nil, err
	}
	slog.Info("chunk_store_loaded",
		slog.String("path", path),
		slog.Int("chunks", s.Len()),
		slog.Int("sources", len(s.sources)))
	return s, nil
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func readJSONL(path string) ([]chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IndexNotLoaded("chunk store", path, err)
	}
	defer f.Close()
	return decodeJSONL(f)
}

func decodeJSONL(r io.Reader) ([]chunk.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var chunks []chunk.Chunk
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var c chunk.Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, errors.New(errors.ErrCodeChunkStoreInvalid,
				fmt.Sprintf("chunk store line %d is not a valid chunk", line), err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeChunkStoreInvalid, "failed to read chunk store", err)
	}
	return chunks, nil
}

// chunksTable stores one JSON document per chunk.
const chunksTable = `CREATE TABLE IF NOT EXISTS chunks (
	id  INTEGER PRIMARY KEY,
	doc TEXT NOT NULL
)`

func readSQLite(path string) ([]chunk.Chunk, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.IndexNotLoaded("chunk store", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA query_only = ON`); err != nil {
		return nil, errors.IndexNotLoaded("chunk store", path, err)
	}

	rows, err := db.Query(`SELECT id, doc FROM chunks ORDER BY id`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeChunkStoreInvalid, "cannot query chunks table", err)
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var (
			id  int
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, errors.New(errors.ErrCodeChunkStoreInvalid, "cannot scan chunk row", err)
		}
		var c chunk.Chunk
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, errors.New(errors.ErrCodeChunkStoreInvalid,
				fmt.Sprintf("chunk row %d is not a valid chunk", id), err)
		}
		c.ID = id
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeChunkStoreInvalid, "failed to read chunks table", err)
	}
	return chunks, nil
}

// WriteSQLite persists the store to a SQLite database at path, replacing
// any existing chunks table. It is used to convert JSONL snapshots.
func (s *ChunkStore) WriteSQLite(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS chunks`); err != nil {
		return fmt.Errorf("drop chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, chunksTable); err != nil {
		return fmt.Errorf("create chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, doc) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range s.chunks {
		doc, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, string(doc)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the chunk with the given id.
func (s *ChunkStore) Get(id int) (*chunk.Chunk, bool) {
	if id < 0 || id >= len(s.chunks) {
		return nil, false
	}
	return s.chunks[id], true
}

// Len returns the number of chunks.
func (s *ChunkStore) Len() int {
	return len(s.chunks)
}

// All returns every chunk in id order. Callers must not modify them.
func (s *ChunkStore) All() []*chunk.Chunk {
	return s.chunks
}

// HasSource reports whether any chunk belongs to source.
func (s *ChunkStore) HasSource(source string) bool {
	_, ok := s.sources[source]
	return ok
}

// SourceOf returns the source of chunk id.
func (s *ChunkStore) SourceOf(id int) (string, bool) {
	c, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return c.Source, true
}

// Sources returns the known source values, sorted.
func (s *ChunkStore) Sources() []string {
	out := make([]string, 0, len(s.sources))
	for src := range s.sources {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// SourceCounts returns the number of chunks per source.
func (s *ChunkStore) SourceCounts() map[string]int {
	out := make(map[string]int, len(s.sources))
	for k, v := range s.sources {
		out[k] = v
	}
	return out
}
