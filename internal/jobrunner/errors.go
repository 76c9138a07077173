package jobrunner

import (
	"context"
	"errors"

	"ragcore/internal/embedder"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/parser"
	"ragcore/internal/vectorindex"
)

// classify decides whether a stage failure is retryable (4.7): transient
// I/O and the backends' own *Unavailable sentinels requeue with backoff;
// ParseFailed, PayloadTooLarge, and dimension/config mismatches are
// terminal and fail the job immediately.
func classify(err error) bool {
	switch {
	case errors.Is(err, parser.ErrParseFailed),
		errors.Is(err, parser.ErrUnsupportedMimeType),
		errors.Is(err, objectstore.ErrPayloadTooLarge),
		errors.Is(err, objectstore.ErrNotFound),
		errors.Is(err, objectstore.ErrInvalidKey),
		errors.Is(err, embedder.ErrDimensionMismatch),
		errors.Is(err, metadata.ErrNotFound),
		errors.Is(err, metadata.ErrConflict):
		return false
	case errors.Is(err, objectstore.ErrUnavailable),
		errors.Is(err, embedder.ErrUnavailable),
		errors.Is(err, vectorindex.ErrUnavailable),
		errors.Is(err, metadata.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return true
	default:
		// Unclassified errors are treated as transient infrastructure
		// trouble rather than a parse/validation defect, since every known
		// terminal condition above has its own sentinel.
		return true
	}
}
