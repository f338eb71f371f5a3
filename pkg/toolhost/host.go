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

// Package toolhost implements the server side of the tool channel: a
// read-eval-respond loop over line-delimited JSON with an initialize
// handshake, schema-validated dispatch and structured errors.
//
// Only protocol messages are written to the channel's output stream.
// Diagnostics must go elsewhere (stderr via internal/log); one stray
// non-JSON line on the channel breaks the peer's parser.
package toolhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// Config holds optional host settings.
type Config struct {
	// Logger receives host diagnostics. If nil, slog.Default is used.
	// It must never write to the channel's output stream.
	Logger *slog.Logger

	// RequestsPerSecond rate-limits incoming operations. Zero disables
	// limiting. Initialize is never limited.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Defaults to 1 when a rate
	// is configured.
	Burst int
}

// Host serves a tool registry over one message channel. A Host owns its
// channel exclusively for the lifetime of the process; create one Host
// per input/output stream pair.
type Host struct {
	registry *Registry
	dec      *wire.Decoder
	enc      *wire.Encoder
	logger   *slog.Logger
	limiter  *rate.Limiter

	initialized bool
	catalog     wire.InitializeResult
}

// New creates a host reading requests from in and writing replies to out.
func New(registry *Registry, in io.Reader, out io.Writer, cfg *Config) *Host {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Host{
		registry: registry,
		dec:      wire.NewDecoder(in),
		enc:      wire.NewEncoder(out),
		logger:   logger,
		limiter:  limiter,
	}
}

// Serve runs the read-eval-respond loop until the input stream closes
// or ctx is cancelled. A bad request never terminates the loop; the
// host answers it with a structured error and keeps reading. Buffered
// output is flushed on every exit path.
func (h *Host) Serve(ctx context.Context) error {
	defer func() {
		if err := h.enc.Flush(); err != nil {
			h.logger.Warn("failed to flush channel on shutdown", "error", err)
		}
	}()

	h.logger.Info("tool host serving", "tools", len(h.registry.Descriptors()))

	type readResult struct {
		line []byte
		err  error
	}

	// The read itself cannot be interrupted, so it runs in its own
	// goroutine; on cancellation the loop returns immediately and
	// process shutdown reclaims the blocked reader.
	lines := make(chan readResult)
	go func() {
		for {
			line, err := h.dec.Next()
			if err != nil {
				select {
				case lines <- readResult{err: err}:
				case <-ctx.Done():
				}
				return
			}

			// The decoder reuses its buffer on the next read.
			buf := make([]byte, len(line))
			copy(buf, line)
			select {
			case lines <- readResult{line: buf}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("tool host stopping", "reason", ctx.Err())
			return ctx.Err()

		case in := <-lines:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					h.logger.Info("input stream closed, shutting down")
					return nil
				}
				if errors.Is(in.err, wire.ErrLineTooLong) {
					// The oversized line was consumed as far as the scanner
					// could take it; the stream position is unrecoverable.
					h.respond(wire.NewError(wire.RequestID{}, wire.KindProtocolViolation, in.err.Error()))
				}
				return in.err
			}
			h.respond(h.handleLine(ctx, in.line))
		}
	}
}

// handleLine processes one inbound line and returns the reply to write.
func (h *Host) handleLine(ctx context.Context, line []byte) *wire.Message {
	req, err := wire.ParseRequest(line)
	if err != nil {
		// Recover the correlation identifier when the line is valid
		// JSON with a usable id, so the caller can fail the right
		// pending request.
		id := recoverID(line)
		h.logger.Warn("malformed request", "error", err, "id", id)
		return wire.NewError(id, wire.KindProtocolViolation, err.Error())
	}

	logger := h.logger.With(slog.String("op", req.Op), slog.String("id", req.ID.String()))

	if h.limiter != nil && req.Op != wire.OpInitialize && !h.limiter.Allow() {
		logger.Warn("request rate limit exceeded")
		return wire.NewError(req.ID, wire.KindExecutionFailed, "request rate limit exceeded, retry later")
	}

	if req.Op == wire.OpInitialize {
		return h.handleInitialize(req, logger)
	}

	if !h.initialized {
		logger.Warn("operation requested before initialization")
		return wire.NewError(req.ID, wire.KindNotInitialized,
			fmt.Sprintf("operation %q requested before initialize", req.Op))
	}

	tool, ok := h.registry.Lookup(req.Op)
	if !ok {
		logger.Warn("unknown operation")
		return wire.NewError(req.ID, wire.KindUnknownOperation,
			fmt.Sprintf("unknown operation %q", req.Op))
	}

	args, err := ValidateArgs(tool.Descriptor, req.Params)
	if err != nil {
		logger.Warn("parameter validation failed", "error", err)
		return wire.NewError(req.ID, wire.KindInvalidParameters, err.Error())
	}

	result, err := h.execute(ctx, tool, args)
	if err != nil {
		var fieldErr *FieldError
		if errors.As(err, &fieldErr) {
			logger.Warn("operation rejected parameter", "error", err)
			return wire.NewError(req.ID, wire.KindInvalidParameters, err.Error())
		}
		logger.Error("operation failed", "error", err)
		return wire.NewError(req.ID, wire.KindExecutionFailed, err.Error())
	}

	resp, err := wire.NewResponse(req.ID, result)
	if err != nil {
		logger.Error("failed to encode result", "error", err)
		return wire.NewError(req.ID, wire.KindExecutionFailed, err.Error())
	}

	logger.Debug("operation completed")
	return resp
}

// handleInitialize builds the catalog on the first call and re-returns
// the identical catalog on repeats rather than erroring, so a client
// retrying a lost handshake does not wedge the channel.
func (h *Host) handleInitialize(req *wire.Request, logger *slog.Logger) *wire.Message {
	if !h.initialized {
		h.catalog = wire.InitializeResult{
			ProtocolVersion: wire.ProtocolVersion,
			Tools:           h.registry.Descriptors(),
		}
		h.initialized = true
		logger.Info("initialized", "protocol_version", h.catalog.ProtocolVersion,
			"tools", len(h.catalog.Tools))
	} else {
		logger.Debug("repeated initialize, re-returning catalog")
	}

	resp, err := wire.NewResponse(req.ID, h.catalog)
	if err != nil {
		return wire.NewError(req.ID, wire.KindExecutionFailed, err.Error())
	}
	return resp
}

// execute runs a handler, converting panics into ordinary errors so a
// single bad operation cannot take the host down.
func (h *Host) execute(ctx context.Context, tool Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return tool.Handler(ctx, args)
}

// respond writes one reply line. Write failures are terminal for the
// channel but are surfaced on the next read, which will hit EOF.
func (h *Host) respond(msg *wire.Message) {
	if msg == nil {
		return
	}
	if err := h.enc.Encode(msg); err != nil {
		h.logger.Error("failed to write reply", "error", err)
	}
}

// recoverID extracts the correlation identifier from a malformed line
// when possible. Returns the zero (absent) identifier otherwise.
func recoverID(line []byte) wire.RequestID {
	var partial struct {
		ID wire.RequestID `json:"id"`
	}
	if err := json.Unmarshal(line, &partial); err != nil {
		return wire.RequestID{}
	}
	return partial.ID
}
