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

package hostproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bmcalindin/toolwire/internal/log"
	"github.com/bmcalindin/toolwire/pkg/wire"
)

// session is the channel half of a host client: request/reply
// correlation over a reader/writer pair, independent of how the peer
// process is launched. Splitting it from the process management keeps
// the protocol logic testable against in-process pipes.
type session struct {
	enc     *wire.Encoder
	replies chan sessionReply
	done    chan struct{}
	logger  *slog.Logger
}

type sessionReply struct {
	msg *wire.Message
	err error
}

// newSession starts reading replies from r; requests are written to w.
func newSession(r io.Reader, w io.Writer, logger *slog.Logger) *session {
	s := &session{
		enc:     wire.NewEncoder(w),
		replies: make(chan sessionReply, 8),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go s.readLoop(wire.NewDecoder(r))
	return s
}

// readLoop parses reply lines until the stream closes or becomes
// unparseable. One stray non-JSON line is fatal for the channel: the
// framing is gone and every later line is suspect.
func (s *session) readLoop(dec *wire.Decoder) {
	for {
		line, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.deliver(sessionReply{err: io.EOF})
			} else {
				s.deliver(sessionReply{err: err})
			}
			return
		}

		log.Trace(s.logger, "reply line", slog.String("line", string(line)))

		var msg wire.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Error("unparseable line on reply channel", "error", err)
			s.deliver(sessionReply{err: &wire.ErrorDetail{
				Kind:    wire.KindProtocolViolation,
				Message: fmt.Sprintf("unparseable reply line: %v", err),
			}})
			return
		}

		if !s.deliver(sessionReply{msg: &msg}) {
			return
		}
	}
}

func (s *session) deliver(reply sessionReply) bool {
	select {
	case s.replies <- reply:
		return true
	case <-s.done:
		return false
	}
}

// roundTrip sends one request and blocks until its correlated reply
// arrives. Replies carrying an unknown correlation identifier are
// logged and skipped, never applied to the pending request.
func (s *session) roundTrip(ctx context.Context, req *wire.Request) (*wire.Message, error) {
	logger := log.WithCorrelationID(s.logger, req.ID.String())

	if err := s.enc.Encode(req); err != nil {
		return nil, &wire.ErrorDetail{
			Kind:    wire.KindChannelClosed,
			Message: fmt.Sprintf("failed to send request: %v", err),
		}
	}
	logger.Debug("request sent", log.OpKey, req.Op)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case reply := <-s.replies:
			if reply.err != nil {
				if errors.Is(reply.err, io.EOF) {
					return nil, &wire.ErrorDetail{
						Kind:    wire.KindChannelClosed,
						Message: "host closed the channel mid-request",
					}
				}
				return nil, reply.err
			}

			if !reply.msg.ID.Equal(req.ID) {
				logger.Warn("ignoring reply with unknown correlation id",
					"got", reply.msg.ID.String())
				continue
			}
			return reply.msg, nil
		}
	}
}

// close stops the read loop. Safe to call more than once.
func (s *session) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
