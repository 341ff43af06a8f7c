package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_ConstraintNeedsTwoHits(t *testing.T) {
	r := Classify("this invariant must not be violated, never skip validation")
	assert.Equal(t, TypeConstraint, r.ArtifactType)
	assert.Equal(t, []string{"constraint"}, r.Tags)
}

func TestClassify_SingleHitFallsBackToDiscussion(t *testing.T) {
	r := Classify("we think this invariant holds")
	assert.Equal(t, TypeDiscussion, r.ArtifactType)
}

func TestClassify_DecisionRequiresCommitment(t *testing.T) {
	r := Classify("we decided to ship v2, this is the final decision")
	assert.Equal(t, TypeDecision, r.ArtifactType)
}

func TestClassify_WeakCommitmentExcludesDecision(t *testing.T) {
	r := Classify("we decided to ship v2, but we're leaning towards delaying it, final decision pending")
	assert.NotEqual(t, TypeDecision, r.ArtifactType)
}

func TestClassify_HypothesisRequiresTwoHits(t *testing.T) {
	r := Classify("we think the cache might be stale; this is our hypothesis")
	assert.Equal(t, TypeHypothesis, r.ArtifactType)
}

func TestClassify_ExtractedIsBounded(t *testing.T) {
	summary := "line one\nline two\nline three\nline four\nline five"
	r := Classify(summary)
	assert.LessOrEqual(t, len(r.Extracted), 3)
}
