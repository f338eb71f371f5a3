package toolhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmcalindin/toolwire/internal/log"
	"github.com/bmcalindin/toolwire/pkg/wire"
)

// serveLines feeds newline-delimited requests to a host and returns the
// reply lines it wrote. The input stream ends after the last line, so
// Serve returns once everything is answered.
func serveLines(t *testing.T, registry *Registry, cfg *Config, lines ...string) []string {
	t.Helper()

	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(&log.Config{Level: "error", Output: &bytes.Buffer{}})
	}

	host := New(registry, in, &out, cfg)
	require.NoError(t, host.Serve(context.Background()))

	replies := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, replies, len(lines), "one reply per request")
	return replies
}

func listFilesRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	reg.MustRegister(Tool{
		Descriptor: wire.ToolDescriptor{
			Name: "list_files",
			Params: map[string]wire.ParamSpec{
				"directory": {Type: wire.TypeString, Default: "."},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"files": []string{"a.txt", "b.txt"}}, nil
		},
	})
	return reg
}

func TestHostScenario(t *testing.T) {
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "initialize", "id": 1}`,
		`{"op": "list_files", "id": 7, "params": {"directory": "."}}`,
	)

	var catalog wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[0]), &catalog))
	require.Nil(t, catalog.Error)

	var init wire.InitializeResult
	require.NoError(t, catalog.UnmarshalResult(&init))
	assert.Equal(t, wire.ProtocolVersion, init.ProtocolVersion)
	require.Len(t, init.Tools, 1)
	assert.Equal(t, "list_files", init.Tools[0].Name)

	assert.JSONEq(t, `{"id": 7, "result": {"files": ["a.txt", "b.txt"]}}`, replies[1])
}

func TestHostRejectsBeforeInitialize(t *testing.T) {
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "list_files", "id": 1}`,
	)

	var msg wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[0]), &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, wire.KindNotInitialized, msg.Error.Kind)
	assert.True(t, msg.ID.Equal(wire.IntID(1)))
}

func TestHostIdempotentInitialize(t *testing.T) {
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "initialize", "id": 1}`,
		`{"op": "initialize", "id": 2}`,
	)

	var first, second wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(replies[1]), &second))

	require.Nil(t, first.Error)
	require.Nil(t, second.Error)
	assert.JSONEq(t, string(first.Result), string(second.Result))
	assert.True(t, second.ID.Equal(wire.IntID(2)))
}

func TestHostUnknownOperation(t *testing.T) {
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "initialize", "id": 1}`,
		`{"op": "frobnicate", "id": 2}`,
	)

	var msg wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[1]), &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, wire.KindUnknownOperation, msg.Error.Kind)
	assert.Contains(t, msg.Error.Message, "frobnicate")
}

func TestHostInvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		request string
	}{
		{"unknown param", `{"op": "list_files", "id": 2, "params": {"bogus": 1}}`},
		{"type mismatch", `{"op": "list_files", "id": 2, "params": {"directory": 42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := serveLines(t, listFilesRegistry(t), nil,
				`{"op": "initialize", "id": 1}`,
				tt.request,
			)

			var msg wire.Message
			require.NoError(t, json.Unmarshal([]byte(replies[1]), &msg))
			require.NotNil(t, msg.Error)
			assert.Equal(t, wire.KindInvalidParameters, msg.Error.Kind)
		})
	}
}

func TestHostSurvivesBadRequest(t *testing.T) {
	// A malformed line gets a protocol_violation reply and the loop
	// keeps serving; the identifier is recovered when the line is
	// parseable JSON.
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "initialize", "id": 1}`,
		`this is not json`,
		`{"id": 5, "params": {}}`,
		`{"op": "list_files", "id": 6}`,
	)

	var bad wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[1]), &bad))
	require.NotNil(t, bad.Error)
	assert.Equal(t, wire.KindProtocolViolation, bad.Error.Kind)
	assert.False(t, bad.ID.Valid())

	var noOp wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[2]), &noOp))
	require.NotNil(t, noOp.Error)
	assert.Equal(t, wire.KindProtocolViolation, noOp.Error.Kind)
	assert.True(t, noOp.ID.Equal(wire.IntID(5)), "id recovered from malformed request")

	var ok wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[3]), &ok))
	assert.Nil(t, ok.Error)
}

func TestHostExecutionFailed(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Tool{
		Descriptor: wire.ToolDescriptor{Name: "fail"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	})
	reg.MustRegister(Tool{
		Descriptor: wire.ToolDescriptor{Name: "explode"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			panic("boom")
		},
	})

	replies := serveLines(t, reg, nil,
		`{"op": "initialize", "id": 1}`,
		`{"op": "fail", "id": 2}`,
		`{"op": "explode", "id": 3}`,
		`{"op": "fail", "id": 4}`,
	)

	for _, i := range []int{1, 2, 3} {
		var msg wire.Message
		require.NoError(t, json.Unmarshal([]byte(replies[i]), &msg))
		require.NotNil(t, msg.Error, "reply %d", i)
		assert.Equal(t, wire.KindExecutionFailed, msg.Error.Kind)
	}
}

func TestHostFieldErrorFromHandler(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Tool{
		Descriptor: wire.ToolDescriptor{
			Name: "read_file",
			Params: map[string]wire.ParamSpec{
				"file_path": {Type: wire.TypeString, Required: true},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, &FieldError{Field: "file_path", Reason: "path escapes the root directory"}
		},
	})

	replies := serveLines(t, reg, nil,
		`{"op": "initialize", "id": 1}`,
		`{"op": "read_file", "id": 2, "params": {"file_path": "../../etc/passwd"}}`,
	)

	var msg wire.Message
	require.NoError(t, json.Unmarshal([]byte(replies[1]), &msg))
	require.NotNil(t, msg.Error)
	assert.Equal(t, wire.KindInvalidParameters, msg.Error.Kind)
	assert.Contains(t, msg.Error.Message, "file_path")
}

func TestHostStringIDEchoedVerbatim(t *testing.T) {
	replies := serveLines(t, listFilesRegistry(t), nil,
		`{"op": "initialize", "id": "init-1"}`,
		`{"op": "list_files", "id": "7"}`,
	)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(replies[1]), &fields))
	assert.Equal(t, `"7"`, string(fields["id"]), "string id stays a string")
}

func TestHostRateLimit(t *testing.T) {
	requests := []string{`{"op": "initialize", "id": 1}`}
	for i := 2; i <= 6; i++ {
		requests = append(requests, fmt.Sprintf(`{"op": "list_files", "id": %d}`, i))
	}

	replies := serveLines(t, listFilesRegistry(t),
		&Config{RequestsPerSecond: 1, Burst: 1}, requests...)

	limited := 0
	for _, line := range replies[1:] {
		var msg wire.Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		if msg.Error != nil {
			assert.Equal(t, wire.KindExecutionFailed, msg.Error.Kind)
			limited++
		}
	}
	assert.Greater(t, limited, 0, "burst of requests should trip the limiter")
}

func TestHostStopsOnEOF(t *testing.T) {
	host := New(listFilesRegistry(t), strings.NewReader(""), &bytes.Buffer{}, &Config{
		Logger: log.New(&log.Config{Level: "error", Output: &bytes.Buffer{}}),
	})
	require.NoError(t, host.Serve(context.Background()))
}

func TestHostStopsOnContextCancel(t *testing.T) {
	// The input stream stays open and idle; cancellation alone must
	// bring Serve back, since signal-driven shutdown depends on it.
	in, _ := io.Pipe()
	host := New(listFilesRegistry(t), in, &bytes.Buffer{}, &Config{
		Logger: log.New(&log.Config{Level: "error", Output: &bytes.Buffer{}}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
