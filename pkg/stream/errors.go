package stream

import (
	"context"
	"errors"
	"fmt"
)

// ErrMetadataUnavailable indicates a dataset cannot be described: no
// bounds or dimension information could be derived and none was supplied.
//
// This is fatal at initialization; the layer setup should be rejected.
type ErrMetadataUnavailable struct {
	Source string
	Reason string
}

func (e *ErrMetadataUnavailable) Error() string {
	return fmt.Sprintf("metadata unavailable for %s: %s", e.Source, e.Reason)
}

// ErrFetchFailed indicates a per-tile chunk fetch failed.
//
// Recoverable: the tile's loading flag is cleared, and a later update
// cycle retries. Other tiles are unaffected.
type ErrFetchFailed struct {
	Key Key
	Err error
}

func (e *ErrFetchFailed) Error() string {
	return fmt.Sprintf("fetch tile %s: %v", e.Key, e.Err)
}

func (e *ErrFetchFailed) Unwrap() error { return e.Err }

// ErrSelectorResolution indicates a value-typed selector entry was not
// found in its dimension's coordinate array.
//
// Surfaced to the caller rather than silently defaulting, so wrong data
// is never rendered in place of the requested selection.
type ErrSelectorResolution struct {
	Dimension string
	Value     float64
}

func (e *ErrSelectorResolution) Error() string {
	return fmt.Sprintf("selector value %v not found in coordinate array for dimension %q",
		e.Value, e.Dimension)
}

// ErrUnknownDimension indicates a selector names a dimension the dataset
// does not have.
type ErrUnknownDimension struct {
	Dimension string
}

func (e *ErrUnknownDimension) Error() string {
	return fmt.Sprintf("unknown dimension %q", e.Dimension)
}

// IsCancelled reports whether err is a cancellation.
//
// Cancellations are expected during panning, zooming and selector
// scrubbing and are never surfaced as failures.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsMetadataUnavailable reports whether err is a fatal metadata failure.
func IsMetadataUnavailable(err error) bool {
	var e *ErrMetadataUnavailable
	return errors.As(err, &e)
}

// IsFetchFailed reports whether err is a recoverable per-tile fetch failure.
func IsFetchFailed(err error) bool {
	var e *ErrFetchFailed
	return errors.As(err, &e)
}
