package relay

import (
	"github.com/bmcalindin/toolwire/pkg/wire"
)

// Mode selects how text is forwarded to the caller.
type Mode string

const (
	// ModeIncremental forwards only the newly appended substring per
	// emission. Emissions are not idempotent: the caller must
	// concatenate them in order to reconstruct the turn.
	ModeIncremental Mode = "incremental"

	// ModeCumulative forwards the full accumulated text on every
	// emission, so re-rendering the latest emission is always correct.
	ModeCumulative Mode = "cumulative"
)

// EmissionType discriminates emission records.
type EmissionType string

const (
	// EmissionText is a text emission.
	EmissionText EmissionType = "text"

	// EmissionDone marks successful completion. It is sent only after
	// the transcript has been updated.
	EmissionDone EmissionType = "done"

	// EmissionError marks terminal failure. It is always
	// distinguishable from text so the caller never mistakes truncated
	// output for a complete response.
	EmissionError EmissionType = "error"
)

// Emission is one record on the caller-facing output stream.
type Emission struct {
	// Type discriminates the variant.
	Type EmissionType `json:"type"`

	// Text is the fragment (incremental mode) or accumulated text
	// (cumulative mode). Set for EmissionText only.
	Text string `json:"text,omitempty"`

	// Err describes the failure. Set for EmissionError only.
	Err *wire.ErrorDetail `json:"error,omitempty"`
}

// Sink receives emissions in order as the relay advances. A non-nil
// return value cancels the run: the relay stops forwarding and discards
// the in-progress turn.
type Sink func(Emission) error
