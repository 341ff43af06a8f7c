// Package provenance normalizes chunk metadata on first read and
// classifies chunks into the semantic type vocabulary the rest of the
// pipeline relies on.
package provenance

import (
	"strings"
	"time"

	"github.com/kestrellabs/ctxfusion/internal/memory"
)

const overrideWindow = 60 * time.Minute

// defaultSkewTolerance bounds how far into the future a chunk's timestamp
// may sit relative to the enforcer's clock before it's treated as
// corrupted input (§3 invariant 2: timestamp <= now + clock_skew_tolerance
// and timestamp >= 0).
const defaultSkewTolerance = 5 * time.Minute

// Clock abstracts time so Enforce is deterministically testable.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Enforcer applies the provenance rule cascade (§4.1) to chunks before
// they enter the retrieval pipeline.
type Enforcer struct {
	clock Clock
	// SkewTolerance bounds how far a timestamp may sit in the future of
	// clock.Now() before it's clamped. Zero is treated as
	// defaultSkewTolerance, not "no tolerance" — callers that want zero
	// tolerance should use a tiny nonzero duration.
	SkewTolerance time.Duration
}

// NewEnforcer constructs an Enforcer. A nil clock defaults to SystemClock.
func NewEnforcer(clock Clock) *Enforcer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Enforcer{clock: clock, SkewTolerance: defaultSkewTolerance}
}

// Enforce normalizes a chunk's metadata in place (on a copy) so the §3
// invariants hold, never erroring on inference ambiguity.
func (e *Enforcer) Enforce(c memory.Chunk) memory.Chunk {
	md := c.Metadata
	if md.Extra == nil {
		md.Extra = map[string]string{}
	}

	if md.SourceKind == "" {
		md.SourceKind = inferSourceKind(md)
	}

	if md.SourceID == "" {
		c.Metadata = md
		md.SourceID = deriveSourceID(c)
	}

	now := e.clock.Now()
	if md.IngestedAt.IsZero() {
		md.IngestedAt = now
	}

	inferred, hasInferred := inferEventTimestamp(md)
	md = applyOverridePolicy(md, inferred, hasInferred, now)
	md = e.clampSkew(md, now)

	if md.ChunkType == "" {
		md.ChunkType = Classify(md.SourceKind, md.Path, c.Content)
	}

	if md.ProvenanceVersion == "" || md.ProvenanceVersion < memory.CurrentProvenanceVersion {
		if md.ProvenanceVersion != "" {
			md.ProvenanceUpgradedFrom = md.ProvenanceVersion
		}
		md.ProvenanceVersion = memory.CurrentProvenanceVersion
	}

	c.Metadata = md
	return c
}

func inferSourceKind(md memory.Metadata) memory.SourceKind {
	switch {
	case md.ConversationID != "" || md.SessionID != "":
		return memory.SourceConversation
	case md.URL != "":
		return memory.SourceWeb
	case strings.HasSuffix(strings.ToLower(md.Path), ".pdf"):
		return memory.SourcePDF
	case md.Repository != "" || md.Path != "":
		return memory.SourceRepoFile
	default:
		return memory.SourceUnknown
	}
}

// inferEventTimestamp walks the hint precedence order in §4.1 rule 5.
func inferEventTimestamp(md memory.Metadata) (time.Time, bool) {
	for _, key := range []string{"event_time", "created_at", "commit_time", "file_created_at", "message_timestamp", "updated_at"} {
		if v, ok := md.Extra[key]; ok && v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
		}
	}
	if !md.Timestamp.IsZero() {
		return md.Timestamp, true
	}
	return time.Time{}, false
}

// applyOverridePolicy implements §4.1 rule 6: replace the event timestamp
// with an inferred one only when the existing value looks like an
// ingest-time placeholder, or when hints clearly disagree with it.
func applyOverridePolicy(md memory.Metadata, inferred time.Time, hasInferred bool, now time.Time) memory.Metadata {
	if md.TimestampSource == memory.TimestampConversationEvent {
		return md
	}
	if md.SourceKind == memory.SourceConversation && md.Extra["message_timestamp"] != "" {
		md.TimestampSource = memory.TimestampConversationEvent
		return md
	}

	if md.Timestamp.IsZero() {
		if hasInferred {
			md.Timestamp = inferred
			md.TimestampSource = memory.TimestampInferredEvent
			return md
		}
		md.Timestamp = now
		md.TimestampFallback = true
		md.TimestampSource = memory.TimestampFallbackNow
		return md
	}

	looksLikePlaceholder := absDuration(md.Timestamp.Sub(md.IngestedAt)) <= overrideWindow
	if hasInferred {
		differs := absDuration(md.Timestamp.Sub(inferred)) > overrideWindow
		if (looksLikePlaceholder && differs) || differs {
			md.Timestamp = inferred
			md.TimestampSource = memory.TimestampInferredEvent
			return md
		}
	}
	if md.TimestampSource == "" {
		md.TimestampSource = memory.TimestampExisting
	}
	return md
}

// clampSkew enforces §3 invariant 2: timestamp <= now + clock_skew_tolerance
// and timestamp >= 0 (not before the Unix epoch). A chunk that violates
// either bound has its timestamp clamped to the bound it crossed and is
// flagged via ClockSkewClamped.
func (e *Enforcer) clampSkew(md memory.Metadata, now time.Time) memory.Metadata {
	tolerance := e.SkewTolerance
	if tolerance <= 0 {
		tolerance = defaultSkewTolerance
	}
	ceiling := now.Add(tolerance)
	epoch := time.Unix(0, 0).UTC()

	switch {
	case md.Timestamp.After(ceiling):
		md.Timestamp = ceiling
		md.ClockSkewClamped = true
	case md.Timestamp.Before(epoch):
		md.Timestamp = epoch
		md.ClockSkewClamped = true
	}
	return md
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
