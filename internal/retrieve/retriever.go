// Package retrieve implements the candidate retriever, salience scorer,
// diversity enforcer, and semantic re-query expansion stages of the
// retrieval core (C6-C8 plus the expansion stage described in the design
// notes).
package retrieve

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kestrellabs/ctxfusion/internal/embed"
	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/provenance"
	"github.com/kestrellabs/ctxfusion/internal/store"
)

// Diagnostics carries the candidate-retrieval stage's contribution to the
// pipeline's overall diagnostics record.
type Diagnostics struct {
	HadCandidates       bool
	SessionsRepresented int
	TimelineSpanMinutes float64
}

// Retriever owns the external collaborators needed to turn a query into a
// scored, diversified candidate set.
type Retriever struct {
	Store     store.MemoryStore
	Enforcer  *provenance.Enforcer
	Embedder  embed.Backend
	Now       func() time.Time
	embedOnce singleflight.Group
}

// NewRetriever constructs a Retriever. A nil Now defaults to time.Now. The
// embedder is optional; set it via the Embedder field to enable the
// vector-similarity refinement in KnowledgeQuery.
func NewRetriever(s store.MemoryStore, enf *provenance.Enforcer, now func() time.Time) *Retriever {
	if now == nil {
		now = time.Now
	}
	return &Retriever{Store: s, Enforcer: enf, Now: now}
}

// embedQuery generates the query embedding, collapsing duplicate in-flight
// calls for the same query text into one call to the backend.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	v, err, _ := r.embedOnce.Do(query, func() (interface{}, error) {
		return r.Embedder.Generate(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// ConversationRecall implements the §4.6 conversation-recall shortcut:
// enumerate conversation chunks, optionally filter by session, and assign
// uniform high salience without running C7/C8 gating.
func (r *Retriever) ConversationRecall(ctx context.Context, sessionID string, global bool, finalCoreCount int) ([]memory.Candidate, Diagnostics, error) {
	chunks, err := r.Store.GetAllChunks(ctx)
	if err != nil {
		return nil, Diagnostics{}, store.ErrUnavailable
	}

	var matched []memory.Chunk
	for _, c := range chunks {
		c = r.Enforcer.Enforce(c)
		isConversation := c.Metadata.SourceKind == memory.SourceConversation ||
			c.Metadata.ChunkType == memory.ChunkConversationTurn ||
			c.Metadata.ChunkType == memory.ChunkConversationEvent
		if !isConversation {
			continue
		}
		if !global && sessionID != "" && c.Metadata.SessionID != sessionID {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.Timestamp.After(matched[j].Metadata.Timestamp)
	})
	if finalCoreCount > 0 && len(matched) > finalCoreCount {
		matched = matched[:finalCoreCount]
	}

	sessions := map[string]struct{}{}
	var minTs, maxTs time.Time
	cands := make([]memory.Candidate, 0, len(matched))
	for _, c := range matched {
		if c.Metadata.SessionID != "" {
			sessions[c.Metadata.SessionID] = struct{}{}
		}
		ts := c.Metadata.Timestamp
		if !ts.IsZero() {
			if minTs.IsZero() || ts.Before(minTs) {
				minTs = ts
			}
			if ts.After(maxTs) {
				maxTs = ts
			}
		}
		cands = append(cands, memory.Candidate{
			Chunk:              c,
			Similarity:         1.0,
			Cos01:              1.0,
			BaseSalience:       0.9,
			ProvenancePenalty:  1.0,
			TemporalMultiplier: 1.0,
			Salience:           0.9,
		})
	}

	span := 0.0
	if !minTs.IsZero() && !maxTs.IsZero() {
		span = maxTs.Sub(minTs).Minutes()
	}

	return cands, Diagnostics{
		HadCandidates:       len(cands) > 0,
		SessionsRepresented: len(sessions),
		TimelineSpanMinutes: span,
	}, nil
}

// KnowledgeQuery implements the §4.6 knowledge-query path: call the
// external store and convert its hits into unscored candidates with
// provenance enforced. The second return value reports whether an attached
// embedder failed to generate a query vector; callers still get the store's
// own similarity scores in that case, so the failure degrades ranking
// quality rather than the request.
func (r *Retriever) KnowledgeQuery(ctx context.Context, query string, requested int, threshold float64) ([]memory.Candidate, bool, error) {
	limit := requested
	if limit < 500 {
		limit = 500
	}
	hits, err := r.Store.SearchMemories(ctx, query, store.SearchOptions{Limit: limit, Threshold: threshold})
	if err != nil {
		return nil, false, store.ErrUnavailable
	}

	var queryVec []float32
	embedFailed := false
	if r.Embedder != nil {
		v, err := r.embedQuery(ctx, query)
		if err != nil {
			embedFailed = true
		} else {
			queryVec = v
		}
	}

	cands := make([]memory.Candidate, 0, len(hits))
	for _, h := range hits {
		c := r.Enforcer.Enforce(h.Chunk)
		similarity := h.Similarity
		if queryVec != nil && len(c.Embedding) > 0 {
			similarity = r.Embedder.Similarity(queryVec, c.Embedding)
		}
		cands = append(cands, memory.Candidate{Chunk: c, Similarity: similarity})
	}
	return cands, embedFailed, nil
}
