package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// MemoryBackend is a thread-safe in-memory MemoryStore used by tests and by
// deployments small enough to skip a real vector/graph backend. Search
// scores chunks by query-term overlap only; chunk embeddings are not
// consulted.
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks map[string]memory.Chunk
}

// NewMemoryBackend constructs an empty in-memory store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{chunks: make(map[string]memory.Chunk)}
}

// Seed inserts chunks directly, bypassing AddMemory, for test fixtures.
func (m *MemoryBackend) Seed(chunks ...memory.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
}

func (m *MemoryBackend) AddMemory(_ context.Context, c memory.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.ID] = c
	return nil
}

func (m *MemoryBackend) GetAllChunks(_ context.Context) ([]memory.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]memory.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchMemories ranks chunks by the fraction of query terms their content
// contains, scaled into [-1,1] so callers can treat the result uniformly.
// It does not compute embedding similarity.
func (m *MemoryBackend) SearchMemories(_ context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	terms := strings.Fields(strings.ToLower(query))

	hits := make([]SearchHit, 0, len(m.chunks))
	for _, c := range m.chunks {
		sim := termOverlapScore(terms, c.Content)
		if sim < opts.Threshold {
			continue
		}
		hits = append(hits, SearchHit{Chunk: c, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// termOverlapScore maps fractional term overlap into [-1,1] the way a
// cosine score would land, so the scorer downstream needn't special-case
// this backend.
func termOverlapScore(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lc := strings.ToLower(content)
	matched := 0
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(lc, t) {
			matched++
		}
	}
	frac := float64(matched) / float64(len(terms))
	return 2*frac - 1
}

// CosineVector returns cosine similarity in [-1,1] between two vectors,
// for callers composing embedding scores outside this package.
func CosineVector(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
