package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeight_AlwaysWithinBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ages := []float64{0, 1, 2, 14, 30, 90, 365, 3650}
	for _, days := range ages {
		eventTs := now.Add(-time.Duration(days*24) * time.Hour)
		for _, h := range []Hints{{}, {IsTemporalQuery: true}, {WantsRecent: true}} {
			w := Weight(eventTs, now, h)
			assert.GreaterOrEqual(t, w, floorLow)
			assert.LessOrEqual(t, w, ceiling)
		}
	}
}

func TestWeight_FreshTemporalQueryIsAtLeastOne(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Weight(now, now, Hints{IsTemporalQuery: true})
	assert.GreaterOrEqual(t, w, 1.0)
}

func TestWeight_AbsentTimestampIsNeutral(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, Weight(time.Time{}, now, Hints{}))
}

func TestWeight_RecentDecaysSlowerThanOld(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := Weight(now.Add(-24*time.Hour), now, Hints{})
	old := Weight(now.Add(-365*24*time.Hour), now, Hints{})
	assert.Greater(t, recent, old)
}

func TestDeriveHints(t *testing.T) {
	cases := []struct {
		query    string
		temporal bool
		recent   bool
	}{
		{"what did we decide last week", true, false},
		{"what's the latest on the migration", false, true},
		{"how does the retriever work", false, false},
	}
	for _, c := range cases {
		h := DeriveHints(c.query)
		assert.Equal(t, c.temporal, h.IsTemporalQuery, c.query)
		assert.Equal(t, c.recent, h.WantsRecent, c.query)
	}
}
