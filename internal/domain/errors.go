package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the scoring pipeline. Per-user conditions
// (ErrFeatureIncomplete, ErrEmbeddingUnavailable) are isolated and collected
// into the epoch exceptions report; ErrModelSchemaMismatch and
// ErrSnapshotInconsistency abort the epoch and leave previously published
// scores untouched.
var (
	ErrNotFound              = errors.New("record not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrMalformedInput        = errors.New("malformed input")
	ErrFeatureIncomplete     = errors.New("feature vector incomplete")
	ErrEmbeddingUnavailable  = errors.New("no embedding available")
	ErrModelSchemaMismatch   = errors.New("model schema mismatch")
	ErrSnapshotInconsistency = errors.New("snapshot inconsistency")
)

func wrapMalformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}
