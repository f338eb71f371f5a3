package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// ScriptSource replays a recorded event sequence as a generation
// source. It backs the harness's replay mode and deterministic tests:
// the script stands in for a model, while tool calls can still be
// dispatched to a live host (when the relay has an invoker) or answered
// from recorded results (when it does not).
type ScriptSource struct {
	events []Event
}

// NewScriptSource creates a source replaying the given events verbatim.
func NewScriptSource(events []Event) *ScriptSource {
	return &ScriptSource{events: events}
}

// Stream implements Generator. Events are delivered in recorded order;
// the sequence ends exactly as recorded, so a script without an end
// marker reproduces a premature termination.
func (s *ScriptSource) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	out := make(chan Event)

	go func() {
		defer close(out)
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Events returns a copy of the recorded sequence.
func (s *ScriptSource) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// LoadScript reads a YAML event script from path.
func LoadScript(path string) (*ScriptSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a YAML event script. The format is a list of
// single-variant entries:
//
//	events:
//	  - text: "Hello "
//	  - tool_call: {name: list_files, args: {directory: "."}}
//	  - tool_result: {name: list_files, result: {files: [a.txt]}}
//	  - text: "Found 1 file."
//	  - end: true
func ParseScript(data []byte) (*ScriptSource, error) {
	var file scriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("relay: parse script: %w", err)
	}

	events := make([]Event, 0, len(file.Events))
	for i, entry := range file.Events {
		ev, err := entry.toEvent()
		if err != nil {
			return nil, fmt.Errorf("relay: script event %d: %w", i, err)
		}
		events = append(events, ev)
	}

	return NewScriptSource(events), nil
}

type scriptFile struct {
	Events []scriptEvent `yaml:"events"`
}

type scriptEvent struct {
	Text       *string           `yaml:"text"`
	ToolCall   *scriptToolCall   `yaml:"tool_call"`
	ToolResult *scriptToolResult `yaml:"tool_result"`
	End        bool              `yaml:"end"`
}

type scriptToolCall struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args"`
}

type scriptToolResult struct {
	Name   string       `yaml:"name"`
	Result any          `yaml:"result"`
	Error  *scriptError `yaml:"error"`
}

type scriptError struct {
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
}

// toEvent converts one script entry, rejecting entries that set more
// than one variant or none at all.
func (e scriptEvent) toEvent() (Event, error) {
	variants := 0
	if e.Text != nil {
		variants++
	}
	if e.ToolCall != nil {
		variants++
	}
	if e.ToolResult != nil {
		variants++
	}
	if e.End {
		variants++
	}
	if variants != 1 {
		return Event{}, fmt.Errorf("exactly one of text, tool_call, tool_result, end is required")
	}

	switch {
	case e.Text != nil:
		return Event{Type: EventText, Text: *e.Text}, nil

	case e.ToolCall != nil:
		if e.ToolCall.Name == "" {
			return Event{}, fmt.Errorf("tool_call requires a name")
		}
		return Event{Type: EventToolCall, Call: &ToolCall{
			Name: e.ToolCall.Name,
			Args: e.ToolCall.Args,
		}}, nil

	case e.ToolResult != nil:
		if e.ToolResult.Name == "" {
			return Event{}, fmt.Errorf("tool_result requires a name")
		}
		result := ToolResult{Name: e.ToolResult.Name}
		if e.ToolResult.Error != nil {
			result.Err = &wire.ErrorDetail{
				Kind:    wire.ErrorKind(e.ToolResult.Error.Kind),
				Message: e.ToolResult.Error.Message,
			}
		} else if e.ToolResult.Result != nil {
			raw, err := json.Marshal(e.ToolResult.Result)
			if err != nil {
				return Event{}, fmt.Errorf("tool_result payload: %w", err)
			}
			result.Result = raw
		}
		return Event{Type: EventToolResult, Result: &result}, nil

	default:
		return Event{Type: EventEnd}, nil
	}
}
