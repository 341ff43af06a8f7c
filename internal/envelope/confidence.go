package envelope

// Breakdown exposes the sub-scores behind a confidence bracket for
// observability, mirroring a weighted-subscore confidence calibration
// pattern: report each contributing factor rather than just the final
// bracket.
type Breakdown struct {
	Coverage          float64
	UniqueSources     int
	TimestampCoverage float64
	IsTemporalQuery   bool
	Final             Confidence
}

// Explain computes the same bracket as CalibrateConfidence while also
// returning the inputs that drove it.
func Explain(coverage float64, uniqueSources int, isTemporalQuery bool, timestampCoverage float64) Breakdown {
	return Breakdown{
		Coverage:          coverage,
		UniqueSources:     uniqueSources,
		TimestampCoverage: timestampCoverage,
		IsTemporalQuery:   isTemporalQuery,
		Final:             CalibrateConfidence(coverage, uniqueSources, isTemporalQuery, timestampCoverage),
	}
}
