package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic_GenerateIsStable(t *testing.T) {
	d := NewDeterministic(64, true, 7)
	a, err := d.Generate(context.Background(), "the diversity enforcer picks sources")
	require.NoError(t, err)
	b, err := d.Generate(context.Background(), "the diversity enforcer picks sources")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDeterministic_NormalizeProducesUnitVector(t *testing.T) {
	d := NewDeterministic(8, true, 1)
	v, err := d.Generate(context.Background(), "some text with several terms in it")
	require.NoError(t, err)
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-3)
}

func TestDeterministic_SimilarityIdenticalIsOne(t *testing.T) {
	d := NewDeterministic(32, true, 3)
	v, _ := d.Generate(context.Background(), "salience scoring and diversification")
	assert.InDelta(t, 1.0, d.Similarity(v, v), 1e-6)
}

func TestDeterministic_DifferentSeedsDiverge(t *testing.T) {
	d1 := NewDeterministic(32, true, 1)
	d2 := NewDeterministic(32, true, 2)
	v1, _ := d1.Generate(context.Background(), "retrieval pipeline fusion")
	v2, _ := d2.Generate(context.Background(), "retrieval pipeline fusion")
	assert.NotEqual(t, v1, v2)
}

func TestSelfTest_HealthyBackendPasses(t *testing.T) {
	err := SelfTest(context.Background(), NewDeterministic(16, true, 1), true)
	assert.NoError(t, err)
}
