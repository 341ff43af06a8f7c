package pipeline

import "errors"

// Sentinel errors implementing the §7 error taxonomy. ErrSanity is returned
// only by SelfTest. Retrieve returns ErrCancelled and ErrStoreUnavailable
// (wrapping the cause) together with a minimal envelope, and joins
// ErrEmbeddingFailure and ErrOverloaded onto a fully built envelope.
var (
	ErrStoreUnavailable = errors.New("pipeline: memory store unavailable")
	ErrEmbeddingFailure = errors.New("pipeline: embedding generation failed")
	ErrSanity           = errors.New("pipeline: embeddings backend failed sanity check")
	ErrCancelled        = errors.New("pipeline: cancelled")
	ErrOverloaded       = errors.New("pipeline: overloaded")
)
