// Package envelope post-processes raw generator output: stripping hedging
// language and enforcing the CONFIDENCE/NEXT_RETRIEVALS footer contract.
package envelope

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

// hedgePatterns is the centralized, idempotent pattern list owned by C10,
// per the design notes' call to stop spreading hedge-removal regexes
// across the codebase.
var hedgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*(i'm |i am )?sorry[,.].*$`),
	regexp.MustCompile(`(?im)^.*\bunfortunately\b.*$`),
	regexp.MustCompile(`(?im)^.*\bi don't have\b.*$`),
	regexp.MustCompile(`(?im)^.*\bi do not have\b.*$`),
	regexp.MustCompile(`(?im)^\s*\d+\.\s.*\?\s*$`),
	regexp.MustCompile(`(?im)^\s*confidence bracket.*$`),
}

// DeHedge strips lines and sentences matching the configured hedge
// patterns and normalizes whitespace. It is safe to run more than once.
func DeHedge(text string) string {
	out := text
	for _, p := range hedgePatterns {
		out = p.ReplaceAllString(out, "")
	}
	lines := strings.Split(out, "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, "\n")
}

// Confidence is the CONFIDENCE footer bracket.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

const (
	confidenceFooterRe      = `(?m)^CONFIDENCE:\s*(low|medium|high)\s*$`
	nextRetrievalsFooterRe  = `(?m)^NEXT_RETRIEVALS:.*$`
)

var (
	hasConfidenceRe      = regexp.MustCompile(confidenceFooterRe)
	hasNextRetrievalsRe  = regexp.MustCompile(nextRetrievalsFooterRe)
)

// CalibrateConfidence implements §4.10's bracket derivation: a coverage
// base, capped down by diversity and by stale temporal coverage.
func CalibrateConfidence(coverage float64, uniqueSources int, isTemporalQuery bool, timestampCoverage float64) Confidence {
	base := ConfidenceLow
	switch {
	case coverage >= 0.70:
		base = ConfidenceHigh
	case coverage >= 0.35:
		base = ConfidenceMedium
	}

	if uniqueSources < 2 {
		return ConfidenceLow
	}
	if uniqueSources < 3 && base == ConfidenceHigh {
		base = ConfidenceMedium
	}
	if isTemporalQuery && timestampCoverage < 0.3 {
		return ConfidenceLow
	}
	return base
}

// NextRetrievals derives the follow-up hint line from top source-path
// suffixes and key query terms.
func NextRetrievals(cards []memory.MemoryCard, query string) string {
	suffixes := topPathSuffixes(cards, 2)
	terms := keyQueryTerms(query, 2)

	hints := make([]string, 0, 4)
	for _, s := range suffixes {
		hints = append(hints, s)
	}
	for _, t := range terms {
		hints = append(hints, t)
	}
	if len(hints) == 0 {
		hints = []string{"related documentation"}
	}

	letters := "abcdefgh"
	var b strings.Builder
	b.WriteString("NEXT_RETRIEVALS: ")
	for i, h := range hints {
		if i >= len(letters) {
			break
		}
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("(%c) %s", letters[i], h))
	}
	return b.String()
}

func topPathSuffixes(cards []memory.MemoryCard, n int) []string {
	counts := map[string]int{}
	for _, c := range cards {
		if c.SourceID == "" {
			continue
		}
		base := path.Base(c.SourceID)
		if base == "." || base == "/" {
			continue
		}
		counts[base]++
	}
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].v != kvs[j].v {
			return kvs[i].v > kvs[j].v
		}
		return kvs[i].k < kvs[j].k
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, 0, len(kvs))
	for _, e := range kvs {
		out = append(out, e.k)
	}
	return out
}

func keyQueryTerms(query string, n int) []string {
	fields := strings.Fields(query)
	sort.SliceStable(fields, func(i, j int) bool { return len(fields[i]) > len(fields[j]) })
	seen := map[string]bool{}
	out := make([]string, 0, n)
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		lf := strings.ToLower(f)
		if len(f) < 4 || seen[lf] {
			continue
		}
		seen[lf] = true
		out = append(out, f)
		if len(out) == n {
			break
		}
	}
	return out
}

// EnforceFooter appends CONFIDENCE and NEXT_RETRIEVALS lines if either is
// missing. Text that already has both is returned unchanged (P11).
func EnforceFooter(text string, coverage float64, uniqueSources int, isTemporalQuery bool, timestampCoverage float64, cards []memory.MemoryCard, query string) string {
	hasConf := hasConfidenceRe.MatchString(text)
	hasNext := hasNextRetrievalsRe.MatchString(text)
	if hasConf && hasNext {
		return text
	}

	out := strings.TrimRight(text, "\n")
	if !hasConf {
		conf := CalibrateConfidence(coverage, uniqueSources, isTemporalQuery, timestampCoverage)
		out += fmt.Sprintf("\nCONFIDENCE: %s", conf)
	}
	if !hasNext {
		out += "\n" + NextRetrievals(cards, query)
	}
	return out
}
