package fusion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

func TestCompose_EmptyCandidatesReturnsGeneralFirstDefault(t *testing.T) {
	r := Compose(nil)
	assert.Equal(t, 0.2, r.MemoryWeight)
	assert.Equal(t, 0.8, r.GeneralWeight)
	assert.Equal(t, 3, r.GKAllowance)
	assert.Equal(t, memory.RoutingGeneralFirst, r.RoutingHint)
}

func TestCompose_WeightsSumToOne(t *testing.T) {
	cards := []memory.MemoryCard{
		{Content: "Widgets API notes", Salience: 0.9, SourceID: "s1"},
		{Content: "Decision log entry", Salience: 0.5, SourceID: "s2"},
	}
	r := Compose(cards)
	assert.InDelta(t, 1.0, r.MemoryWeight+r.GeneralWeight, 1e-9)
}

func TestCompose_GKAllowanceMonotonicInCoverage(t *testing.T) {
	lowCoverage := Compose([]memory.MemoryCard{{Content: "x", Salience: 0.9, SourceID: "only"}})
	var manyCards []memory.MemoryCard
	for i := 0; i < 8; i++ {
		manyCards = append(manyCards, memory.MemoryCard{
			Content:  strings.Repeat("Widgets Pipeline Documentation content filler text. ", 20),
			Salience: 0.9,
			SourceID: "source-" + string(rune('a'+i)),
		})
	}
	highCoverage := Compose(manyCards)

	assert.Contains(t, []int{0, 1, 3}, lowCoverage.GKAllowance)
	assert.Contains(t, []int{0, 1, 3}, highCoverage.GKAllowance)
	assert.LessOrEqual(t, highCoverage.GKAllowance, lowCoverage.GKAllowance)
}

func TestCompose_HighLowConfidenceShareCapsMemoryWeight(t *testing.T) {
	var cards []memory.MemoryCard
	for i := 0; i < 4; i++ {
		cards = append(cards, memory.MemoryCard{Content: "content", Salience: 0.9, SourceID: "s", LowConfidence: true})
	}
	r := Compose(cards)
	assert.LessOrEqual(t, r.MemoryWeight, lowConfWeightCap)
}

func TestCompose_RoutingHintTracksMemoryWeight(t *testing.T) {
	memoryFirst := Compose([]memory.MemoryCard{
		{Content: "a", Salience: 0.9, SourceID: "s1"},
		{Content: "b", Salience: 0.9, SourceID: "s2"},
	})
	if memoryFirst.MemoryWeight > 0.6 {
		assert.Equal(t, memory.RoutingMemoryFirst, memoryFirst.RoutingHint)
	}

	generalFirst := Compose([]memory.MemoryCard{{Content: "a", Salience: 0.01, SourceID: "s1"}})
	if generalFirst.MemoryWeight < 0.3 {
		assert.Equal(t, memory.RoutingGeneralFirst, generalFirst.RoutingHint)
	}
}

func TestTopicOf_FallsBackToMisc(t *testing.T) {
	assert.Equal(t, "misc", topicOf(memory.MemoryCard{Content: "lowercase only, no caps"}))
}

func TestTopicOf_ExtractsProperCaseSequence(t *testing.T) {
	assert.Equal(t, "Acme Widgets", topicOf(memory.MemoryCard{Content: "refer to Acme Widgets for details"}))
}
