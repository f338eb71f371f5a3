// Package wire defines the message types and line codec for the tool
// host channel: one JSON value per line, correlated by a caller-assigned
// identifier. This package is shared by the host and the relay and is
// designed to be embeddable in other Go applications.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ProtocolVersion is reported in the initialize response.
	ProtocolVersion = "1.0"

	// OpInitialize is the reserved initialization operation. It must be
	// the first request on a channel and returns the tool catalog.
	OpInitialize = "initialize"
)

var (
	// ErrInvalidMessage is returned when a message cannot be parsed.
	ErrInvalidMessage = errors.New("wire: invalid message format")

	// ErrMissingOp is returned when a request lacks an operation name.
	ErrMissingOp = errors.New("wire: missing operation name")
)

// ErrorKind is a machine-readable error classification. The set is
// closed; unknown kinds are treated as terminal.
type ErrorKind string

const (
	// KindProtocolViolation indicates a malformed message on the channel.
	KindProtocolViolation ErrorKind = "protocol_violation"

	// KindNotInitialized indicates an operation was requested before
	// the initialize handshake completed.
	KindNotInitialized ErrorKind = "not_initialized"

	// KindUnknownOperation indicates the operation name is not in the
	// host's catalog.
	KindUnknownOperation ErrorKind = "unknown_operation"

	// KindInvalidParameters indicates parameters failed schema
	// validation. The message names the offending field.
	KindInvalidParameters ErrorKind = "invalid_parameters"

	// KindExecutionFailed indicates the operation's handler failed.
	KindExecutionFailed ErrorKind = "execution_failed"

	// KindChannelClosed indicates the remote end closed the channel
	// mid-request.
	KindChannelClosed ErrorKind = "channel_closed"

	// KindUpstreamTransient indicates a retryable generation-source
	// failure (network or timeout class).
	KindUpstreamTransient ErrorKind = "upstream_transient"

	// KindUpstreamFatal indicates a non-retryable generation-source
	// failure.
	KindUpstreamFatal ErrorKind = "upstream_fatal"
)

// Retryable reports whether the kind may be retried. Everything except
// upstream_transient is terminal for the current run.
func (k ErrorKind) Retryable() bool {
	return k == KindUpstreamTransient
}

// Request is one inbound line on a host channel.
type Request struct {
	// Op is the operation name to invoke.
	Op string `json:"op"`

	// ID is the caller-assigned correlation identifier. It must be
	// unique per outstanding request on a channel.
	ID RequestID `json:"id,omitzero"`

	// Params contains the operation parameters.
	Params map[string]any `json:"params,omitempty"`
}

// Message is one outbound line on a host channel. Exactly one of Result
// and Error is set for a given correlation identifier, never both.
type Message struct {
	// ID echoes the triggering request's correlation identifier.
	ID RequestID `json:"id,omitzero"`

	// Result contains the operation-specific result payload.
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains structured error information.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a structured error over the channel.
type ErrorDetail struct {
	// Kind is the machine-readable error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error description.
	Message string `json:"message"`
}

// Error implements the error interface so channel errors can be
// propagated through ordinary error returns.
func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewResponse creates a response message for the given request ID.
func NewResponse(id RequestID, result any) (*Message, error) {
	var resultJSON json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = data
	}

	return &Message{ID: id, Result: resultJSON}, nil
}

// NewError creates an error message for the given request ID. Pass the
// zero RequestID when the identifier could not be recovered from the
// triggering input; the id field is then omitted entirely.
func NewError(id RequestID, kind ErrorKind, message string) *Message {
	return &Message{
		ID:    id,
		Error: &ErrorDetail{Kind: kind, Message: message},
	}
}

// ParseRequest parses a single line as a request and validates it.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &req, nil
}

// Validate checks that the request is well-formed.
func (r *Request) Validate() error {
	if r.Op == "" {
		return ErrMissingOp
	}
	return nil
}

// UnmarshalResult unmarshals the result field into the given value.
func (m *Message) UnmarshalResult(v any) error {
	if m.Result == nil {
		return nil
	}
	return json.Unmarshal(m.Result, v)
}

// InitializeResult is the payload returned by the initialize operation.
type InitializeResult struct {
	// ProtocolVersion is the channel protocol version string.
	ProtocolVersion string `json:"protocol_version"`

	// Tools is the host's full, fixed tool catalog.
	Tools []ToolDescriptor `json:"tools"`
}
