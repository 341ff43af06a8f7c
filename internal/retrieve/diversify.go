package retrieve

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// Quotas configures the diversity enforcement pass.
type Quotas struct {
	MaxPerSource     int
	MinUniqueTypes   int
	MinUniqueSources int
}

// DiversityDiagnostics reports how many swaps the enforcement pass made and
// whether the post-enforcement set still falls short of the quotas.
type DiversityDiagnostics struct {
	Swaps                  int
	BelowMinUniqueSources  bool
	BelowMinUniqueTypes    bool
	UniqueSources          int
	UniqueTypes            int
}

// StableKey returns the dedup key used throughout C8: source_id, else id,
// else a 16-hex content hash. It never collapses distinct chunks into a
// shared "unknown" bucket.
func StableKey(c memory.Candidate) string {
	if c.Chunk.Metadata.SourceID != "" {
		return c.Chunk.Metadata.SourceID
	}
	if c.Chunk.ID != "" {
		return c.Chunk.ID
	}
	content := c.Chunk.Content
	if len(content) > 100 {
		content = content[:100]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s", content, c.Chunk.Metadata.ChunkType, c.Chunk.Metadata.Timestamp)))
	return hex.EncodeToString(sum[:8])
}

// Diversify implements the three-pass algorithm of §4.8. Input candidates
// are assumed sorted desc by salience.
func Diversify(sorted []memory.Candidate, n int, q Quotas) ([]memory.Candidate, DiversityDiagnostics) {
	if q.MaxPerSource <= 0 {
		q.MaxPerSource = 2
	}
	if n <= 0 {
		n = len(sorted)
	}

	sourceOf := func(c memory.Candidate) string { return StableKey(c) }

	var selected []memory.Candidate
	selectedKeys := map[string]bool{}
	sourceCount := map[string]int{}
	typeSet := map[memory.ChunkType]bool{}

	admit := func(c memory.Candidate) {
		selected = append(selected, c)
		selectedKeys[StableKey(c)] = true
		sourceCount[sourceOf(c)]++
		typeSet[c.Chunk.Metadata.ChunkType] = true
	}

	// Pass 1: greedy under the per-source cap.
	for _, c := range sorted {
		if len(selected) >= n {
			break
		}
		src := sourceOf(c)
		if sourceCount[src] < q.MaxPerSource {
			admit(c)
		}
	}

	// Pass 2: fill to N regardless of source quota, deduped by stable key.
	if len(selected) < n {
		for _, c := range sorted {
			if len(selected) >= n {
				break
			}
			if selectedKeys[StableKey(c)] {
				continue
			}
			admit(c)
		}
	}

	diag := DiversityDiagnostics{}

	// Pass 3: swap-based enforcement to reach minUniqueSources.
	for q.MinUniqueSources > 0 && len(sourceCount) < q.MinUniqueSources {
		candIdx, candSrc, ok := findUnrepresented(sorted, sourceCount, selectedKeys)
		if !ok {
			break
		}
		newCandidate := sorted[candIdx]

		overIdx, overSrc, hasOver := mostOverrepresented(selected, sourceCount)
		if hasOver {
			removed := selected[overIdx]
			selected[overIdx] = newCandidate
			delete(selectedKeys, StableKey(removed))
			selectedKeys[StableKey(newCandidate)] = true
			sourceCount[overSrc]--
			if sourceCount[overSrc] == 0 {
				delete(sourceCount, overSrc)
			}
			sourceCount[candSrc]++
			diag.Swaps++
		} else if len(selected) < n {
			admit(newCandidate)
		} else {
			break
		}
	}

	diag.UniqueSources = len(sourceCount)
	diag.UniqueTypes = len(typeSet)
	diag.BelowMinUniqueSources = q.MinUniqueSources > 0 && diag.UniqueSources < q.MinUniqueSources
	diag.BelowMinUniqueTypes = q.MinUniqueTypes > 0 && diag.UniqueTypes < q.MinUniqueTypes

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Salience > selected[j].Salience })
	return selected, diag
}

// findUnrepresented returns the highest-salience candidate (by input
// order, already salience-sorted) whose source isn't yet selected.
func findUnrepresented(sorted []memory.Candidate, sourceCount map[string]int, selectedKeys map[string]bool) (int, string, bool) {
	for i, c := range sorted {
		if selectedKeys[StableKey(c)] {
			continue
		}
		src := StableKey(c)
		if _, ok := sourceCount[src]; !ok {
			return i, src, true
		}
	}
	return 0, "", false
}

// mostOverrepresented finds the lowest-salience admission belonging to the
// source with the most admissions (>1), the swap target of Pass 3.
func mostOverrepresented(selected []memory.Candidate, sourceCount map[string]int) (int, string, bool) {
	bestSrc := ""
	bestCount := 1
	for src, n := range sourceCount {
		if n > bestCount {
			bestCount = n
			bestSrc = src
		}
	}
	if bestSrc == "" {
		return 0, "", false
	}
	worstIdx := -1
	worstSalience := 0.0
	for i, c := range selected {
		if StableKey(c) != bestSrc {
			continue
		}
		if worstIdx == -1 || c.Salience < worstSalience {
			worstIdx = i
			worstSalience = c.Salience
		}
	}
	if worstIdx == -1 {
		return 0, "", false
	}
	return worstIdx, bestSrc, true
}
