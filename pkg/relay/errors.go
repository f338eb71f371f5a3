package relay

import (
	"errors"
	"fmt"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// UpstreamError classifies a generation-source failure. Transient
// failures (network/timeout class) are retryable; everything else is
// terminal for the run.
type UpstreamError struct {
	// Transient marks the failure as retryable.
	Transient bool

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.Cause != nil {
		return fmt.Sprintf("upstream %s failure: %s: %v", kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream %s failure: %s", kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *UpstreamError) Unwrap() error { return e.Cause }

// Transient wraps err as a retryable upstream failure.
func Transient(message string, err error) error {
	return &UpstreamError{Transient: true, Message: message, Cause: err}
}

// Fatal wraps err as a non-retryable upstream failure.
func Fatal(message string, err error) error {
	return &UpstreamError{Message: message, Cause: err}
}

// errorDetail maps a run failure onto the wire error taxonomy for the
// caller-facing error emission.
func errorDetail(err error) *wire.ErrorDetail {
	var detail *wire.ErrorDetail
	if errors.As(err, &detail) {
		return detail
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		kind := wire.KindUpstreamFatal
		if upstream.Transient {
			kind = wire.KindUpstreamTransient
		}
		return &wire.ErrorDetail{Kind: kind, Message: upstream.Error()}
	}

	return &wire.ErrorDetail{Kind: wire.KindUpstreamFatal, Message: err.Error()}
}
