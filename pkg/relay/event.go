// Package relay drives a generation source's event stream, forwards
// tool invocations to a tool host, relays text to a caller and
// reconstructs a complete transcript. The loop it implements exists to
// protect one property above all others: text produced after a tool
// call completes is never dropped, because consumption continues until
// the stream's explicit end marker rather than stopping at the first
// tool call.
package relay

import (
	"context"
	"encoding/json"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// EventType identifies one unit of the generation source's output.
type EventType string

const (
	// EventText carries an incremental text fragment.
	EventText EventType = "text"

	// EventToolCall signals that generation wants a tool invoked.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries a tool outcome recorded in the stream
	// itself. Emitted by replay sources; live sources leave invocation
	// to the relay.
	EventToolResult EventType = "tool_result"

	// EventEnd is the explicit terminal marker. Consumption must
	// continue until it is observed.
	EventEnd EventType = "end"
)

// ToolCall is a tool invocation requested by the generation source.
type ToolCall struct {
	// Name is the tool to invoke.
	Name string `json:"name"`

	// Args are the invocation arguments.
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one tool invocation: a result payload or
// a structured error, never both.
type ToolResult struct {
	// Name is the tool that produced this result.
	Name string `json:"name"`

	// Result is the operation-specific payload.
	Result json.RawMessage `json:"result,omitempty"`

	// Err is set when the tool returned a structured error. The
	// generation source still sees it as a result; only transport
	// failures abort the run.
	Err *wire.ErrorDetail `json:"error,omitempty"`
}

// Event is one unit consumed by the relay, in arrival order.
type Event struct {
	// Type discriminates the variant.
	Type EventType

	// Text is set for EventText.
	Text string

	// Call is set for EventToolCall.
	Call *ToolCall

	// Result is set for EventToolResult.
	Result *ToolResult

	// Err reports a stream-level failure. When set, the event is
	// terminal and the stream will close without an end marker.
	Err error
}

// Request is the input to one generation run.
type Request struct {
	// UserMessage is the new user input for this run.
	UserMessage string

	// History is the prior transcript, oldest first.
	History []Turn

	// Tools is the catalog the generation source may call.
	Tools []wire.ToolDescriptor

	// ToolResults delivers invocation outcomes back to sources whose
	// generation blocks on them. Populated by the relay; replay sources
	// may ignore it.
	ToolResults <-chan ToolResult
}

// Generator produces a lazy, finite, non-restartable event stream for a
// request. The relay consumes every event until EventEnd; errors during
// streaming are delivered as a final Event with Err set, after which
// the channel closes.
type Generator interface {
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Invoker dispatches one tool invocation to a tool host and blocks
// until its correlated reply arrives. A structured tool error is
// returned as a *wire.ErrorDetail error value.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// CatalogProvider is an optional interface an Invoker can implement to
// advertise its tool catalog to the generation source.
type CatalogProvider interface {
	Tools() []wire.ToolDescriptor
}
