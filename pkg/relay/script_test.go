package relay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

const sampleScript = `
events:
  - text: "Hello "
  - tool_call:
      name: list_files
      args:
        directory: "."
  - tool_result:
      name: list_files
      result:
        files: [a.txt, b.txt]
  - text: "two files."
  - end: true
`

func TestParseScript(t *testing.T) {
	source, err := ParseScript([]byte(sampleScript))
	require.NoError(t, err)

	events := source.Events()
	require.Len(t, events, 5)

	assert.Equal(t, EventText, events[0].Type)
	assert.Equal(t, "Hello ", events[0].Text)

	require.Equal(t, EventToolCall, events[1].Type)
	assert.Equal(t, "list_files", events[1].Call.Name)
	assert.Equal(t, ".", events[1].Call.Args["directory"])

	require.Equal(t, EventToolResult, events[2].Type)
	assert.JSONEq(t, `{"files":["a.txt","b.txt"]}`, string(events[2].Result.Result))

	assert.Equal(t, EventEnd, events[4].Type)
}

func TestParseScriptToolError(t *testing.T) {
	source, err := ParseScript([]byte(`
events:
  - tool_result:
      name: read_file
      error:
        kind: invalid_parameters
        message: "path escapes root"
  - end: true
`))
	require.NoError(t, err)

	events := source.Events()
	require.NotNil(t, events[0].Result.Err)
	assert.Equal(t, wire.KindInvalidParameters, events[0].Result.Err.Kind)
}

func TestParseScriptRejectsAmbiguousEntries(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{
			name: "two variants",
			script: `
events:
  - text: "a"
    end: true
`,
		},
		{
			name: "no variant",
			script: `
events:
  - {}
`,
		},
		{
			name: "tool call without name",
			script: `
events:
  - tool_call:
      args: {x: 1}
`,
		},
		{
			name: "tool result without name",
			script: `
events:
  - tool_result:
      result: {}
`,
		},
		{
			name:   "not yaml",
			script: `{{{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.script))
			assert.Error(t, err)
		})
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleScript), 0o644))

	source, err := LoadScript(path)
	require.NoError(t, err)
	assert.Len(t, source.Events(), 5)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestScriptSourceStreamsInOrder(t *testing.T) {
	source, err := ParseScript([]byte(sampleScript))
	require.NoError(t, err)

	events, err := source.Stream(context.Background(), Request{})
	require.NoError(t, err)

	var types []EventType
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventText, EventToolCall, EventToolResult, EventText, EventEnd}, types)
}

func TestScriptSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	source := NewScriptSource([]Event{
		{Type: EventText, Text: "a"},
		{Type: EventText, Text: "b"},
		{Type: EventEnd},
	})

	events, err := source.Stream(ctx, Request{})
	require.NoError(t, err)

	<-events
	cancel()

	// The channel closes without draining the remaining events.
	for range events {
	}
}
