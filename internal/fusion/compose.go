// Package fusion derives the memory-vs-general-knowledge weighting and
// general-knowledge allowance from the final selected memory cards.
package fusion

import (
	"regexp"
	"strings"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

const (
	avgSaliencePoolSize = 8
	salienceFloor       = 0.06
	salienceCeiling     = 0.22
	lowConfCapShare     = 0.5
	lowConfWeightCap    = 0.35
	maxCharsPerCard     = 600
	sizeScoreFloor      = 600.0
	sizeScoreCeiling    = 4000.0
)

// Result is the C9 output merged into the final FusionEnvelope.
type Result struct {
	AvgSalience        float64
	MemoryWeight       float64
	GeneralWeight      float64
	GKAllowance        int
	RoutingHint        memory.RoutingHint
	Coverage           float64
	Homogeneity        float64
	UniqueSources      int
	UniqueTopics       int
	LowConfidenceCount int
}

var properCaseRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*\b`)

// Compose implements §4.9 in full: salience blending, coverage and
// homogeneity, GK allowance, and routing hint.
func Compose(cards []memory.MemoryCard) Result {
	if len(cards) == 0 {
		return Result{
			MemoryWeight:  0.2,
			GeneralWeight: 0.8,
			GKAllowance:   3,
			RoutingHint:   memory.RoutingGeneralFirst,
		}
	}

	avgSalience := meanTopSalience(cards, avgSaliencePoolSize)
	memoryWeight := lerp(0.15, 0.85, clamp((avgSalience-salienceFloor)/(salienceCeiling-salienceFloor), 0, 1))

	lowConfCount := 0
	for _, c := range cards {
		if c.LowConfidence {
			lowConfCount++
		}
	}
	lowConfShare := float64(lowConfCount) / float64(len(cards))
	if lowConfShare > lowConfCapShare && memoryWeight > lowConfWeightCap {
		memoryWeight = lowConfWeightCap
	}
	generalWeight := 1 - memoryWeight

	totalChars := 0
	sources := map[string]bool{}
	topics := map[string]bool{}
	sourceCounts := map[string]int{}
	for _, c := range cards {
		n := len(c.Content)
		if n > maxCharsPerCard {
			n = maxCharsPerCard
		}
		totalChars += n
		sources[c.SourceID] = true
		sourceCounts[c.SourceID]++
		topics[topicOf(c)] = true
	}

	sizeScore := normalize(float64(totalChars), sizeScoreFloor, sizeScoreCeiling)
	diversityScore := 0.6*normalize(float64(len(sources)), 1, 6) + 0.4*normalize(float64(len(topics)), 1, 6)

	maxSourceCount := 0
	for _, n := range sourceCounts {
		if n > maxSourceCount {
			maxSourceCount = n
		}
	}
	homogeneity := float64(maxSourceCount) / float64(len(cards))
	homoPenalty := clamp((homogeneity-0.7)/0.3, 0, 1e9)
	if homoPenalty < 0 {
		homoPenalty = 0
	}

	coverage := clamp((0.6*sizeScore+0.4*diversityScore)*(1-0.6*homoPenalty), 0, 1)

	gkAllowance := 0
	switch {
	case coverage < 0.35:
		gkAllowance = 3
	case coverage < 0.70:
		gkAllowance = 1
	}

	routing := memory.RoutingBlend
	switch {
	case memoryWeight > 0.6:
		routing = memory.RoutingMemoryFirst
	case memoryWeight < 0.3:
		routing = memory.RoutingGeneralFirst
	}

	return Result{
		AvgSalience:        avgSalience,
		MemoryWeight:       memoryWeight,
		GeneralWeight:      generalWeight,
		GKAllowance:        gkAllowance,
		RoutingHint:        routing,
		Coverage:           coverage,
		Homogeneity:        homogeneity,
		UniqueSources:      len(sources),
		UniqueTopics:       len(topics),
		LowConfidenceCount: lowConfCount,
	}
}

func meanTopSalience(cards []memory.MemoryCard, poolSize int) float64 {
	n := poolSize
	if n > len(cards) {
		n = len(cards)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += cards[i].Salience
	}
	return sum / float64(n)
}

// topicOf extracts the first ProperCase sequence in a card, or "misc".
func topicOf(c memory.MemoryCard) string {
	m := properCaseRe.FindString(c.Content)
	if m == "" {
		return "misc"
	}
	return strings.TrimSpace(m)
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clamp((v-lo)/(hi-lo), 0, 1)
}
