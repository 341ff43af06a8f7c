package retrieve

import (
	"sort"
	"time"

	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/temporal"
)

const (
	provenancePenaltyMissing = 0.8
	provenancePenaltyStale   = 0.9
	provenancePenaltyNone    = 1.0

	boundsLow  = 0.65
	boundsHigh = 1.15
)

// BoundsViolation is recorded (not returned as an error) when a temporal
// multiplier strays outside [0.65, 1.15]; C7 clamps and the orchestrator
// logs it as a critical diagnostic.
type BoundsViolation struct {
	CandidateID string
	Value       float64
}

// Score computes §4.7's composite salience for every candidate in place
// and returns any bounds violations observed before clamping.
func Score(cands []memory.Candidate, now time.Time, hints temporal.Hints, tuning temporal.Tuning, penaltyMissing, penaltyStale float64) ([]memory.Candidate, []BoundsViolation) {
	if penaltyMissing <= 0 {
		penaltyMissing = provenancePenaltyMissing
	}
	if penaltyStale <= 0 {
		penaltyStale = provenancePenaltyStale
	}

	var violations []BoundsViolation
	for i := range cands {
		c := &cands[i]
		c.Cos01 = (c.Similarity + 1) / 2

		ageDays := 0.0
		if !c.Chunk.Metadata.Timestamp.IsZero() {
			ageDays = now.Sub(c.Chunk.Metadata.Timestamp).Hours() / 24
		}
		recencyBoost := 0.0
		switch {
		case ageDays < 7:
			recencyBoost = 0.08
		case ageDays < 30:
			recencyBoost = 0.04
		}

		authorityBoost := 0.0
		imp := c.Chunk.Metadata.Importance
		if imp == memory.ImportanceHigh || imp == memory.ImportanceCritical {
			authorityBoost = 0.06
		}

		c.BaseSalience = clamp01(c.Cos01*0.8 + recencyBoost + authorityBoost)

		switch {
		case c.Chunk.Metadata.ProvenanceVersion == "":
			c.ProvenancePenalty = penaltyMissing
		case c.Chunk.Metadata.ProvenanceVersion < memory.CurrentProvenanceVersion:
			c.ProvenancePenalty = penaltyStale
		default:
			c.ProvenancePenalty = provenancePenaltyNone
		}

		tm := temporal.WeightWithTuning(c.Chunk.Metadata.Timestamp, now, hints, tuning)
		if tm < boundsLow || tm > boundsHigh {
			violations = append(violations, BoundsViolation{CandidateID: c.Chunk.ID, Value: tm})
			if tm < boundsLow {
				tm = boundsLow
			} else {
				tm = boundsHigh
			}
		}
		c.TemporalMultiplier = tm

		c.Salience = c.BaseSalience * c.ProvenancePenalty * c.TemporalMultiplier
		c.Explanation = map[string]float64{
			"cos01":              c.Cos01,
			"recencyBoost":       recencyBoost,
			"authorityBoost":     authorityBoost,
			"provenancePenalty":  c.ProvenancePenalty,
			"temporalMultiplier": c.TemporalMultiplier,
		}
	}
	return cands, violations
}

// DynamicGate is the legacy gate described in §4.7. The orchestrator runs
// it on every knowledge-query candidate set; nothing checks whether the
// store already ranked its results. It discards candidates below a
// percentile-derived gate and, if fewer than 6 survive, returns the top 6
// by salience instead, marking as low-confidence those that did not clear
// the gate.
func DynamicGate(cands []memory.Candidate) []memory.Candidate {
	if len(cands) == 0 {
		return cands
	}
	cos := make([]float64, len(cands))
	for i, c := range cands {
		cos[i] = c.Cos01
	}
	sort.Float64s(cos)
	p60 := percentile(cos, 0.60)
	gate := clamp(p60, 0.08, 0.22)

	kept := make([]memory.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Cos01 >= gate {
			kept = append(kept, c)
		}
	}
	if len(kept) >= 6 {
		return kept
	}

	keptKeys := make(map[string]bool, len(kept))
	for _, c := range kept {
		keptKeys[StableKey(c)] = true
	}

	bySalience := make([]memory.Candidate, len(cands))
	copy(bySalience, cands)
	sort.Slice(bySalience, func(i, j int) bool { return bySalience[i].Salience > bySalience[j].Salience })
	top := bySalience
	if len(top) > 6 {
		top = top[:6]
	}
	for i := range top {
		if !keptKeys[StableKey(top[i])] {
			top[i].LowConfidence = true
		}
	}
	return top
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
