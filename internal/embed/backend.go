// Package embed defines the external embeddings-backend collaborator and
// a deterministic test double, since generating real embeddings is
// explicitly out of scope for the retrieval core.
package embed

import (
	"context"
	"errors"
)

// ErrSanityFailure is fatal: the embeddings backend returned an all-zero
// vector for a known-nonzero probe text, which in pilot mode must not be
// silently tolerated.
var ErrSanityFailure = errors.New("embeddings backend failed sanity check")

// Backend is the external collaborator the core consumes to turn query
// text into vectors comparable against stored chunk embeddings.
type Backend interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Similarity(a, b []float32) float64
	Normalize(v []float32) []float32
}

// SelfTest runs the init-time sanity contract: a probe embedding must have
// nonzero norm. In pilot mode, a failure is returned as an error;
// otherwise SelfTest returns nil whatever the probe produced.
func SelfTest(ctx context.Context, b Backend, pilotMode bool) error {
	v, err := b.Generate(ctx, "sanity-check-probe")
	if err != nil {
		if pilotMode {
			return err
		}
		return nil
	}
	norm := b.Similarity(v, v)
	if norm == 0 {
		if pilotMode {
			return ErrSanityFailure
		}
	}
	return nil
}
