package retrieve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrellabs/ctxfusion/internal/embed"
	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/provenance"
	"github.com/kestrellabs/ctxfusion/internal/store"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newTestRetriever(backend store.MemoryStore, now time.Time) *Retriever {
	enf := provenance.NewEnforcer(fixedClock{now})
	return NewRetriever(backend, enf, func() time.Time { return now })
}

func TestConversationRecall_FiltersBySessionWhenNotGlobal(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := store.NewMemoryBackend()
	b.Seed(
		memory.Chunk{ID: "m1", Content: "hello", Metadata: memory.Metadata{SessionID: "s1", SourceKind: memory.SourceConversation, Timestamp: now.Add(-1 * time.Hour)}},
		memory.Chunk{ID: "m2", Content: "hi", Metadata: memory.Metadata{SessionID: "s2", SourceKind: memory.SourceConversation, Timestamp: now.Add(-2 * time.Hour)}},
	)
	r := newTestRetriever(b, now)

	cands, diag, err := r.ConversationRecall(context.Background(), "s1", false, 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "m1", cands[0].Chunk.ID)
	assert.Equal(t, 1, diag.SessionsRepresented)
}

func TestConversationRecall_GlobalIgnoresSession(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := store.NewMemoryBackend()
	b.Seed(
		memory.Chunk{ID: "m1", Content: "hello", Metadata: memory.Metadata{SessionID: "s1", SourceKind: memory.SourceConversation, Timestamp: now.Add(-3 * time.Hour)}},
		memory.Chunk{ID: "m2", Content: "hi", Metadata: memory.Metadata{SessionID: "s2", SourceKind: memory.SourceConversation, Timestamp: now.Add(-1 * time.Hour)}},
	)
	r := newTestRetriever(b, now)

	cands, diag, err := r.ConversationRecall(context.Background(), "s1", true, 10)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "m2", cands[0].Chunk.ID, "sorted newest first")
	assert.Equal(t, 2, diag.SessionsRepresented)
}

func TestConversationRecall_ExcludesNonConversationChunks(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := store.NewMemoryBackend()
	b.Seed(
		memory.Chunk{ID: "doc1", Content: "readme", Metadata: memory.Metadata{Path: "README.md"}},
	)
	r := newTestRetriever(b, now)

	cands, _, err := r.ConversationRecall(context.Background(), "s1", true, 10)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestKnowledgeQuery_ReturnsUnscoredCandidates(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := store.NewMemoryBackend()
	b.Seed(memory.Chunk{ID: "d1", Content: "the diversity enforcer picks sources across the pipeline"})
	r := newTestRetriever(b, now)

	cands, embedFailed, err := r.KnowledgeQuery(context.Background(), "diversity enforcer sources pipeline", 20, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.False(t, embedFailed)
	assert.NotEmpty(t, cands[0].Chunk.Metadata.SourceID, "provenance enforced")
}

type erroringStore struct{}

func (erroringStore) SearchMemories(ctx context.Context, query string, opts store.SearchOptions) ([]store.SearchHit, error) {
	return nil, store.ErrUnavailable
}
func (erroringStore) GetAllChunks(ctx context.Context) ([]memory.Chunk, error) {
	return nil, store.ErrUnavailable
}
func (erroringStore) AddMemory(ctx context.Context, c memory.Chunk) error { return nil }

func TestKnowledgeQuery_StoreErrorPropagates(t *testing.T) {
	r := newTestRetriever(erroringStore{}, time.Now())
	_, _, err := r.KnowledgeQuery(context.Background(), "q", 10, 0)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestConversationRecall_StoreErrorPropagates(t *testing.T) {
	r := newTestRetriever(erroringStore{}, time.Now())
	_, _, err := r.ConversationRecall(context.Background(), "s1", false, 10)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestKnowledgeQuery_RefinesSimilarityWithEmbedderWhenChunksCarryVectors(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	d := embed.NewDeterministic(32, true, 1)
	chunkVec, err := d.Generate(context.Background(), "diversity enforcer picks sources")
	require.NoError(t, err)

	b := store.NewMemoryBackend()
	b.Seed(memory.Chunk{ID: "d1", Content: "diversity enforcer picks sources", Embedding: chunkVec})
	r := newTestRetriever(b, now)
	r.Embedder = d

	cands, embedFailed, err := r.KnowledgeQuery(context.Background(), "diversity enforcer picks sources", 20, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.False(t, embedFailed)
	assert.InDelta(t, 1.0, cands[0].Similarity, 1e-6)
}

func TestKnowledgeQuery_ReportsEmbedFailureButStillReturnsCandidates(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	b := store.NewMemoryBackend()
	b.Seed(memory.Chunk{ID: "d1", Content: "diversity enforcer picks sources"})
	r := newTestRetriever(b, now)
	r.Embedder = failingBackend{}

	cands, embedFailed, err := r.KnowledgeQuery(context.Background(), "diversity enforcer picks sources", 20, 0)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.True(t, embedFailed)
}

type failingBackend struct{}

func (failingBackend) Generate(ctx context.Context, text string) ([]float32, error) {
	return nil, errEmbedBackendDown
}
func (failingBackend) Similarity(a, b []float32) float64 { return 0 }
func (failingBackend) Normalize(v []float32) []float32   { return v }

var errEmbedBackendDown = errors.New("embedding backend unavailable")

func TestEmbedQuery_CollapsesDuplicateCalls(t *testing.T) {
	calls := 0
	r := newTestRetriever(store.NewMemoryBackend(), time.Now())
	r.Embedder = countingBackend{d: embed.NewDeterministic(8, true, 1), calls: &calls}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.embedQuery(context.Background(), "same query text")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls, 5)
}

type countingBackend struct {
	d     embed.Backend
	calls *int
}

func (c countingBackend) Generate(ctx context.Context, text string) ([]float32, error) {
	*c.calls++
	return c.d.Generate(ctx, text)
}
func (c countingBackend) Similarity(a, b []float32) float64 { return c.d.Similarity(a, b) }
func (c countingBackend) Normalize(v []float32) []float32   { return c.d.Normalize(v) }
