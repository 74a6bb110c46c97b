//go:build ignore

// Package main generates a synthetic HAProxy chunk store and a matching
// HNSW graph for load testing the engine without the real indexing job.
//
// Vectors are feature-hashed bags of words, so dense search only works
// with an embedding stub that hashes queries the same way.
//
// Usage: go run scripts/generate-test-corpus.go -chunks 5000 -output testdata/bench
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/chunk"
	"github.com/Aman-CERP/hybridrag/internal/store"
)

var (
	numChunks = flag.Int("chunks", 1000, "Number of chunks to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	dims      = flag.Int("dims", 64, "Vector dimensions")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	withDB    = flag.Bool("sqlite", false, "Also write chunks.db")
)

var sources = []string{"configuration", "management", "intro"}

var directives = map[chunk.Category][]string{
	chunk.CategoryBackend:       {"backend", "server", "default-server", "http-reuse"},
	chunk.CategoryFrontend:      {"frontend", "bind", "http-request", "default_backend"},
	chunk.CategoryACL:           {"acl", "path_beg", "hdr", "use_backend"},
	chunk.CategorySSL:           {"ssl", "crt", "ciphers", "alpn"},
	chunk.CategoryTimeout:       {"timeout connect", "timeout client", "timeout server", "timeout queue"},
	chunk.CategoryHealthcheck:   {"option httpchk", "http-check expect", "check inter", "fall"},
	chunk.CategoryStickTable:    {"stick-table", "track-sc0", "conn_rate", "http_req_rate"},
	chunk.CategoryLogs:          {"log", "log-format", "option httplog", "capture"},
	chunk.CategoryStats:         {"stats enable", "stats uri", "stats socket", "stats auth"},
	chunk.CategoryLoadBalancing: {"balance roundrobin", "balance leastconn", "hash-type", "weight"},
}

var fillers = []string{
	"the", "directive", "applies", "to", "each", "section", "where", "it", "is",
	"declared", "and", "overrides", "the", "defaults", "value", "when", "set",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	chunks := make([]chunk.Chunk, *numChunks)
	for i := range chunks {
		chunks[i] = generateChunk(rng, i)
	}

	if err := writeJSONL(filepath.Join(*outputDir, "chunks.jsonl"), chunks); err != nil {
		fmt.Fprintf(os.Stderr, "write chunks: %v\n", err)
		os.Exit(1)
	}

	cs, err := store.NewChunkStore(chunks, chunk.DefaultLimits())
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate chunks: %v\n", err)
		os.Exit(1)
	}

	h := store.NewHNSWIndex(*dims, "synthetic-hash", cs.SourceOf)
	for _, c := range cs.All() {
		if err := h.Add(c.ID, hashVector(c.Title+" "+c.Content, *dims)); err != nil {
			fmt.Fprintf(os.Stderr, "add vector %d: %v\n", c.ID, err)
			os.Exit(1)
		}
	}
	if err := h.Save(filepath.Join(*outputDir, "dense.hnsw")); err != nil {
		fmt.Fprintf(os.Stderr, "save graph: %v\n", err)
		os.Exit(1)
	}

	if *withDB {
		if err := cs.WriteSQLite(context.Background(), filepath.Join(*outputDir, "chunks.db")); err != nil {
			fmt.Fprintf(os.Stderr, "write sqlite: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d chunks (%d dims) in %s\n", len(chunks), *dims, *outputDir)
}

func generateChunk(rng *rand.Rand, id int) chunk.Chunk {
	cat := chunk.Categories[rng.Intn(len(chunk.Categories))]
	words := directives[cat]
	if len(words) == 0 {
		words = []string{"global", "defaults"}
	}
	directive := words[rng.Intn(len(words))]

	var b strings.Builder
	b.WriteString(directive)
	for range 40 + rng.Intn(80) {
		b.WriteByte(' ')
		if rng.Intn(5) == 0 {
			b.WriteString(words[rng.Intn(len(words))])
		} else {
			b.WriteString(fillers[rng.Intn(len(fillers))])
		}
	}
	hasCode := rng.Intn(3) == 0
	if hasCode {
		b.WriteString("\n\n    " + directive + " example\n")
	}

	source := sources[rng.Intn(len(sources))]
	return chunk.Chunk{
		ID:          id,
		Content:     b.String(),
		Title:       directive,
		URL:         fmt.Sprintf("https://docs.haproxy.org/3.2/%s.html#%d", source, id),
		Source:      source,
		SectionPath: []string{fmt.Sprintf("%d", 1+rng.Intn(12)), directive},
		Keywords:    []string{directive},
		IACategory:  cat,
		HasCode:     hasCode,
	}
}

func writeJSONL(path string, chunks []chunk.Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range chunks {
		if err := enc.Encode(&chunks[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// hashVector folds lower-cased tokens into dims buckets and normalizes.
func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(dims)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
