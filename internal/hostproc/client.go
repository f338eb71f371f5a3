// Copyright 2025 Ben McAlindin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostproc manages tool host subprocesses: launch, the
// initialize handshake, request dispatch over the stdio channel, and
// shutdown. Hosts run with an explicit environment allowlist and talk
// newline-delimited JSON on stdin/stdout; stderr is forwarded to the
// log and never parsed.
package hostproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bmcalindin/toolwire/internal/log"
	"github.com/bmcalindin/toolwire/pkg/wire"
)

// shutdownGrace bounds how long Close waits for the host to exit after
// its stdin closes before killing it.
const shutdownGrace = 5 * time.Second

// Client is a connection to one running tool host subprocess. It
// satisfies the relay's invoker contract: Invoke dispatches a request
// and blocks until the correlated reply arrives.
//
// Requests are serialized. The channel supports pipelining, but a relay
// dispatches at most one tool call at a time, so the client keeps the
// simpler one-outstanding-request discipline.
type Client struct {
	cfg    *Config
	logger *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	session *session

	mu              sync.Mutex
	tools           []wire.ToolDescriptor
	protocolVersion string

	closeOnce sync.Once
	closeErr  error
}

// Start launches the configured host and performs the initialize
// handshake. On return the client is ready for Invoke.
func Start(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(log.HostKey, cfg.name())

	for _, entry := range cfg.Env {
		key, value, _ := strings.Cut(entry, "=")
		logger.Debug("forwarding env var", "key", key, "value", log.SanitizeSecret(value))
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("hostproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("hostproc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("hostproc: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("hostproc: start %s: %w", cfg.Command, err)
	}
	logger.Debug("host process started", "pid", cmd.Process.Pid)

	go forwardStderr(stderr, logger)

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		cmd:     cmd,
		stdin:   stdin,
		session: newSession(stdout, stdin, logger),
	}

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// forwardStderr relays the host's diagnostic stream line-by-line into
// the structured log.
func forwardStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("host stderr", "line", scanner.Text())
	}
}

// initialize performs the mandatory handshake and caches the catalog.
func (c *Client) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	msg, err := c.session.roundTrip(ctx, &wire.Request{
		Op: wire.OpInitialize,
		ID: wire.StringID(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("hostproc: initialize %s: %w", c.cfg.name(), err)
	}
	if msg.Error != nil {
		return fmt.Errorf("hostproc: initialize %s: %w", c.cfg.name(), msg.Error)
	}

	var result wire.InitializeResult
	if err := msg.UnmarshalResult(&result); err != nil {
		return fmt.Errorf("hostproc: initialize %s: parse result: %w", c.cfg.name(), err)
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.protocolVersion = result.ProtocolVersion
	c.mu.Unlock()

	c.logger.Info("host initialized",
		"protocol_version", result.ProtocolVersion,
		"tools", len(result.Tools))
	return nil
}

// Invoke dispatches one operation to the host and returns its raw
// result payload. A structured host error comes back as a
// *wire.ErrorDetail so callers can inspect the kind.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	id := wire.StringID(uuid.NewString())
	c.logger.Debug("invoking operation", log.OpKey, name)

	msg, err := c.session.roundTrip(ctx, &wire.Request{
		Op:     name,
		ID:     id,
		Params: args,
	})
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	return msg.Result, nil
}

// Tools returns the catalog cached during initialize.
func (c *Client) Tools() []wire.ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]wire.ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out
}

// ProtocolVersion returns the version the host reported at initialize.
func (c *Client) ProtocolVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// Close shuts the host down: closing stdin signals it to exit, then the
// client waits briefly before killing the process. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.session.close()

		if err := c.stdin.Close(); err != nil {
			c.logger.Debug("stdin close", "error", err)
		}

		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Debug("host exited", "error", err)
			}
		case <-time.After(shutdownGrace):
			c.logger.Warn("host did not exit, killing", "pid", c.cmd.Process.Pid)
			if err := c.cmd.Process.Kill(); err != nil {
				c.closeErr = fmt.Errorf("hostproc: kill %s: %w", c.cfg.name(), err)
			}
			<-done
		}
	})
	return c.closeErr
}
