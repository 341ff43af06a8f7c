package retrieve

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

func makeCandidate(id, sourceID string, salience float64) memory.Candidate {
	return memory.Candidate{
		Chunk:    memory.Chunk{ID: id, Metadata: memory.Metadata{SourceID: sourceID}},
		Salience: salience,
	}
}

func TestDiversify_PerSourceCapRespectedInFirstPass(t *testing.T) {
	var cands []memory.Candidate
	for i := 0; i < 12; i++ {
		cands = append(cands, makeCandidate(fmt.Sprintf("a%d", i), "source-A", 1.0-float64(i)*0.01))
	}
	for i, src := range []string{"B", "C", "D", "E", "F"} {
		cands = append(cands, makeCandidate("x"+src, "source-"+src, 0.5-float64(i)*0.01))
	}

	selected, diag := Diversify(cands, 10, Quotas{MaxPerSource: 2, MinUniqueSources: 6})
	assert.LessOrEqual(t, len(selected), 10)
	assert.GreaterOrEqual(t, diag.UniqueSources, 6)
}

func TestDiversify_SwapEnforcesMinUniqueSources(t *testing.T) {
	var cands []memory.Candidate
	for i := 0; i < 8; i++ {
		cands = append(cands, makeCandidate(fmt.Sprintf("a%d", i), "source-A", 0.9-float64(i)*0.01))
	}
	cands = append(cands, makeCandidate("low1", "source-B", 0.1))
	cands = append(cands, makeCandidate("low2", "source-C", 0.05))

	selected, diag := Diversify(cands, 5, Quotas{MaxPerSource: 5, MinUniqueSources: 3})
	assert.GreaterOrEqual(t, diag.UniqueSources, 3)
	assert.Greater(t, diag.Swaps, 0)
	assert.LessOrEqual(t, len(selected), 5)
}

func TestDiversify_FewerCandidatesThanQuotaMarksBelowMin(t *testing.T) {
	cands := []memory.Candidate{
		makeCandidate("a", "source-A", 0.9),
		makeCandidate("b", "source-A", 0.8),
	}
	_, diag := Diversify(cands, 5, Quotas{MaxPerSource: 2, MinUniqueSources: 4})
	assert.True(t, diag.BelowMinUniqueSources)
}

func TestStableKey_PrefersSourceIDThenID(t *testing.T) {
	withSource := memory.Candidate{Chunk: memory.Chunk{ID: "x", Metadata: memory.Metadata{SourceID: "source-1"}}}
	assert.Equal(t, "source-1", StableKey(withSource))

	idOnly := memory.Candidate{Chunk: memory.Chunk{ID: "x"}}
	assert.Equal(t, "x", StableKey(idOnly))
}

func TestStableKey_FallsBackToContentHashDeterministically(t *testing.T) {
	c := memory.Candidate{Chunk: memory.Chunk{Content: "same content here"}}
	assert.Equal(t, StableKey(c), StableKey(c))
	assert.Len(t, StableKey(c), 16)
}

func TestDiversify_OutputSortedBySalience(t *testing.T) {
	cands := []memory.Candidate{
		makeCandidate("a", "source-A", 0.3),
		makeCandidate("b", "source-B", 0.9),
		makeCandidate("c", "source-C", 0.6),
	}
	selected, _ := Diversify(cands, 3, Quotas{MaxPerSource: 2})
	for i := 1; i < len(selected); i++ {
		assert.GreaterOrEqual(t, selected[i-1].Salience, selected[i].Salience)
	}
}
