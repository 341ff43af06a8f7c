// Package store defines the external memory-store collaborator the
// retrieval core consumes, plus an in-memory double for tests.
package store

import (
	"context"
	"errors"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// ErrUnavailable signals the store could not be reached; callers degrade
// to an empty envelope rather than retrying inside the core.
var ErrUnavailable = errors.New("memory store unavailable")

// SearchOptions configures a SearchMemories call.
type SearchOptions struct {
	Limit     int
	Threshold float64
}

// SearchHit is one result from the memory store, carrying the raw
// similarity score the salience scorer will normalize.
type SearchHit struct {
	Chunk      memory.Chunk
	Similarity float64
}

// MemoryStore is the external collaborator the candidate retriever calls.
// Implementations must be safe for concurrent reads.
type MemoryStore interface {
	// SearchMemories performs similarity search over the memory graph.
	SearchMemories(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error)
	// GetAllChunks returns every chunk, used only by the conversation-recall
	// fast path.
	GetAllChunks(ctx context.Context) ([]memory.Chunk, error)
	// AddMemory is not invoked by the retrieval core; it exists so the
	// interface describes the store's full write surface.
	AddMemory(ctx context.Context, c memory.Chunk) error
}
