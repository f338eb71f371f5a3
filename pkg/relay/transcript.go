package relay

import (
	"fmt"
)

// Role tags a transcript turn.
type Role string

const (
	// RoleSystem is context or instructions for the generation source.
	RoleSystem Role = "system"

	// RoleUser is input from the user.
	RoleUser Role = "user"

	// RoleAssistant is output from the generation source, including
	// tool calls it makes.
	RoleAssistant Role = "assistant"

	// RoleTool is a tool execution result.
	RoleTool Role = "tool"
)

// Turn is one entry in a transcript.
type Turn struct {
	// Role tags who produced the turn.
	Role Role `json:"role"`

	// Content is the turn's text. For an assistant turn that carries a
	// tool call, Content is empty; the complete assistant text for the
	// run lives in the final assistant turn.
	Content string `json:"content,omitempty"`

	// ToolCall is set on an assistant turn that requests an invocation.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult is set on a tool turn.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Transcript is an ordered, turn-tagged conversation history. It is an
// explicitly owned value: the caller passes it into Run by pointer and
// may snapshot it between runs. It is not safe for concurrent use; a
// run owns it exclusively until the run completes.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript, optionally seeded with a system
// turn when systemPrompt is non-empty.
func NewTranscript(systemPrompt string) *Transcript {
	t := &Transcript{}
	if systemPrompt != "" {
		t.turns = append(t.turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	return t
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Turns returns a copy of the turns, oldest first.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Clone returns an independent snapshot of the transcript.
func (t *Transcript) Clone() *Transcript {
	return &Transcript{turns: t.Turns()}
}

// AppendUser appends a user turn.
func (t *Transcript) AppendUser(content string) {
	t.turns = append(t.turns, Turn{Role: RoleUser, Content: content})
}

// AppendAssistant appends an assistant text turn.
func (t *Transcript) AppendAssistant(content string) {
	t.turns = append(t.turns, Turn{Role: RoleAssistant, Content: content})
}

// AppendToolCall appends an assistant turn carrying a tool call.
func (t *Transcript) AppendToolCall(call ToolCall) {
	c := call
	t.turns = append(t.turns, Turn{Role: RoleAssistant, ToolCall: &c})
}

// AppendToolResult appends a tool turn. It enforces the pairing
// invariant: a tool result must immediately follow the assistant turn
// carrying the corresponding call, even when assistant text is appended
// after the result returns.
func (t *Transcript) AppendToolResult(result ToolResult) error {
	if len(t.turns) == 0 {
		return fmt.Errorf("relay: tool result %q without a preceding tool call", result.Name)
	}

	last := t.turns[len(t.turns)-1]
	if last.Role != RoleAssistant || last.ToolCall == nil || last.ToolCall.Name != result.Name {
		return fmt.Errorf("relay: tool result %q does not follow its tool call", result.Name)
	}

	r := result
	t.turns = append(t.turns, Turn{Role: RoleTool, ToolResult: &r})
	return nil
}

// append adds pre-validated turns from a completed run.
func (t *Transcript) append(turns []Turn) {
	t.turns = append(t.turns, turns...)
}

// LastAssistantText returns the content of the most recent assistant
// text turn, or "" if there is none.
func (t *Transcript) LastAssistantText() string {
	for i := len(t.turns) - 1; i >= 0; i-- {
		turn := t.turns[i]
		if turn.Role == RoleAssistant && turn.ToolCall == nil {
			return turn.Content
		}
	}
	return ""
}
