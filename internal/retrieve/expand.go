package retrieve

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/store"
)

// ExpandSemantic implements the design-notes redesign of "graph
// expansion": it never follows edges. It re-queries the store with each of
// the top-K selected candidates' key-term summaries, running the re-queries
// concurrently, and unions any new candidates into a capped pool. Results
// already present in selected (by stable key) are dropped.
func ExpandSemantic(ctx context.Context, s store.MemoryStore, selected []memory.Candidate, topK, perSeedCap, totalCap int) ([]memory.Candidate, error) {
	if topK <= 0 || len(selected) == 0 || s == nil {
		return nil, nil
	}
	seeds := selected
	if len(seeds) > topK {
		seeds = seeds[:topK]
	}

	seen := make(map[string]bool, len(selected))
	for _, c := range selected {
		seen[StableKey(c)] = true
	}

	results := make([][]memory.Candidate, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			summary := keyTermSummary(seed.Chunk.Content)
			if summary == "" {
				return nil
			}
			hits, err := s.SearchMemories(gctx, summary, store.SearchOptions{Limit: perSeedCap, Threshold: 0})
			if err != nil {
				// expansion is best-effort; a single seed failing never
				// fails the pipeline.
				return nil
			}
			out := make([]memory.Candidate, 0, len(hits))
			for _, h := range hits {
				out = append(out, memory.Candidate{Chunk: h.Chunk, Similarity: h.Similarity})
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	union := make([]memory.Candidate, 0, totalCap)
	seenNew := map[string]bool{}
	for _, bucket := range results {
		for _, c := range bucket {
			key := StableKey(c)
			if seen[key] || seenNew[key] {
				continue
			}
			seenNew[key] = true
			union = append(union, c)
			if len(union) >= totalCap {
				break
			}
		}
		if len(union) >= totalCap {
			break
		}
	}
	return union, nil
}

// keyTermSummary extracts a short, capitalization-agnostic key-term digest
// from a candidate's content to drive the re-query: the six longest words
// of at least five letters, skipping a small stopword list.
func keyTermSummary(content string) string {
	fields := strings.Fields(content)
	type scored struct {
		word  string
		score int
	}
	var cands []scored
	for _, w := range fields {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) < 5 || stopwords[strings.ToLower(w)] {
			continue
		}
		cands = append(cands, scored{word: w, score: len(w)})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > 6 {
		cands = cands[:6]
	}
	words := make([]string, 0, len(cands))
	for _, c := range cands {
		words = append(words, c.word)
	}
	return strings.Join(words, " ")
}

var stopwords = map[string]bool{
	"about": true, "which": true, "there": true, "their": true,
	"would": true, "should": true, "could": true, "because": true,
}
