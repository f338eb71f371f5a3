package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// Config holds optional relay settings.
type Config struct {
	// Mode selects incremental or cumulative text forwarding.
	// Default: incremental.
	Mode Mode

	// Policy enables bounded retry of transient upstream failures.
	// Nil disables retries.
	Policy *Policy

	// Logger receives relay diagnostics. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Relay owns the consumption loop for one conversation at a time. It
// processes events strictly in arrival order and needs no internal
// locking: the accumulator and transcript are exclusively owned for the
// duration of one run.
type Relay struct {
	gen     Generator
	invoker Invoker
	mode    Mode
	policy  *Policy
	logger  *slog.Logger
}

// New creates a relay over the given generation source. invoker may be
// nil for replay runs whose scripts carry recorded tool results.
func New(gen Generator, invoker Invoker, cfg *Config) *Relay {
	if cfg == nil {
		cfg = &Config{}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeIncremental
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		gen:     gen,
		invoker: invoker,
		mode:    mode,
		policy:  cfg.Policy,
		logger:  logger,
	}
}

// Run drives one generation run: it consumes the event stream until the
// end marker, forwards text emissions to sink, dispatches tool calls,
// and on success appends every turn produced by the run to transcript
// before emitting the done marker.
//
// On failure the transcript is left in its last-known-good state:
// nothing from the failed run is committed. Transient upstream failures
// are retried within the configured policy, but never once any text has
// been forwarded, since partial output cannot be deduplicated against a
// retried generation; in that case the caller receives an explicit
// error emission instead.
func (r *Relay) Run(ctx context.Context, userMessage string, transcript *Transcript, sink Sink) error {
	if transcript == nil {
		return fmt.Errorf("relay: transcript is required")
	}
	if sink == nil {
		return fmt.Errorf("relay: sink is required")
	}

	var forwarded bool
	attempt := 0

	for {
		turns, err := r.runOnce(ctx, userMessage, transcript, sink, &forwarded)
		if err == nil {
			transcript.append(turns)
			if err := sink(Emission{Type: EmissionDone}); err != nil {
				return fmt.Errorf("relay: sink rejected done marker: %w", err)
			}
			return nil
		}

		if r.policy != nil && !forwarded && attempt < r.policy.MaxRetries && r.policy.retryable(err) {
			attempt++
			r.logger.Warn("retrying generation run",
				"attempt", attempt,
				"max_retries", r.policy.MaxRetries,
				"error", err)
			if sleepErr := r.policy.sleep(ctx, attempt); sleepErr != nil {
				err = sleepErr
			} else {
				continue
			}
		}

		// Cancellation stops forwarding entirely; everything else gets
		// an explicit error marker so truncated output is never
		// mistaken for a complete response.
		if ctx.Err() != nil {
			return err
		}
		if detail := errorDetail(err); detail != nil {
			if sinkErr := sink(Emission{Type: EmissionError, Err: detail}); sinkErr != nil {
				r.logger.Warn("sink rejected error marker", "error", sinkErr)
			}
		}
		return err
	}
}

// runOnce executes a single attempt and returns the turns it produced.
// Turns are staged locally and only committed by Run on success, so a
// failed or cancelled attempt leaves the caller's transcript untouched.
func (r *Relay) runOnce(ctx context.Context, userMessage string, transcript *Transcript, sink Sink, forwarded *bool) ([]Turn, error) {
	// The stream gets its own context so that every exit path, not just
	// caller cancellation, releases the producer: a generator blocked on
	// its next send observes the cancel and returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan ToolResult, 4)
	req := Request{
		UserMessage: userMessage,
		History:     transcript.Turns(),
		Tools:       r.catalog(),
		ToolResults: results,
	}

	events, err := r.gen.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	staged := &Transcript{}
	staged.AppendUser(userMessage)

	var acc strings.Builder
	var pending *ToolCall
	var suspended []string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// The stream must end with an explicit end marker;
				// silent closure is the premature-termination defect
				// class and is treated as transient.
				return nil, Transient("stream closed without end marker", nil)
			}
			if ev.Err != nil {
				return nil, ev.Err
			}

			switch ev.Type {
			case EventText:
				if pending != nil {
					// Forwarding is suspended while a tool call is
					// outstanding; fragments resume, in order, once
					// the result is observed.
					suspended = append(suspended, ev.Text)
					continue
				}
				if err := r.forward(sink, &acc, ev.Text, forwarded); err != nil {
					return nil, err
				}

			case EventToolCall:
				if ev.Call == nil {
					return nil, Fatal("tool call event without call payload", nil)
				}
				if pending != nil {
					return nil, Fatal(fmt.Sprintf("tool call %q while %q is outstanding", ev.Call.Name, pending.Name), nil)
				}

				staged.AppendToolCall(*ev.Call)

				if r.invoker == nil {
					// Replay mode: the script carries the recorded
					// result as the next tool_result event.
					pending = ev.Call
					continue
				}

				result, err := r.invoke(ctx, *ev.Call)
				if err != nil {
					return nil, err
				}
				if err := staged.AppendToolResult(result); err != nil {
					return nil, Fatal("tool result ordering", err)
				}
				// Deliver the outcome to sources whose generation
				// blocks on it; replay-style sources never read it.
				select {
				case results <- result:
				default:
				}

			case EventToolResult:
				if ev.Result == nil {
					return nil, Fatal("tool result event without result payload", nil)
				}
				if pending == nil {
					r.logger.Debug("ignoring redundant tool result", "tool", ev.Result.Name)
					continue
				}
				if ev.Result.Name != pending.Name {
					return nil, Fatal(fmt.Sprintf("tool result %q does not match outstanding call %q", ev.Result.Name, pending.Name), nil)
				}
				if err := staged.AppendToolResult(*ev.Result); err != nil {
					return nil, Fatal("tool result ordering", err)
				}
				pending = nil

				for _, frag := range suspended {
					if err := r.forward(sink, &acc, frag, forwarded); err != nil {
						return nil, err
					}
				}
				suspended = nil

			case EventEnd:
				if pending != nil {
					return nil, Fatal(fmt.Sprintf("stream ended with tool call %q outstanding", pending.Name), nil)
				}
				// The transcript's assistant text is rebuilt from the
				// accumulator, never from the last emission, so it is
				// complete even if the caller missed emissions.
				if acc.Len() > 0 {
					staged.AppendAssistant(acc.String())
				}
				return staged.turns, nil

			default:
				return nil, Fatal(fmt.Sprintf("unknown event type %q", ev.Type), nil)
			}
		}
	}
}

// forward appends a fragment to the accumulator and emits it to the
// caller in the configured mode.
func (r *Relay) forward(sink Sink, acc *strings.Builder, fragment string, forwarded *bool) error {
	acc.WriteString(fragment)

	out := fragment
	if r.mode == ModeCumulative {
		out = acc.String()
	}

	*forwarded = true
	if err := sink(Emission{Type: EmissionText, Text: out}); err != nil {
		return fmt.Errorf("relay: sink rejected emission: %w", err)
	}
	return nil
}

// invoke dispatches one tool call. A structured tool error is a normal
// outcome the generation source gets to see; only transport failures
// (channel closed, cancellation) abort the run.
func (r *Relay) invoke(ctx context.Context, call ToolCall) (ToolResult, error) {
	r.logger.Debug("dispatching tool call", "tool", call.Name)

	raw, err := r.invoker.Invoke(ctx, call.Name, call.Args)
	if err != nil {
		var detail *wire.ErrorDetail
		if errors.As(err, &detail) && detail.Kind != wire.KindChannelClosed {
			return ToolResult{Name: call.Name, Err: detail}, nil
		}
		return ToolResult{}, err
	}

	return ToolResult{Name: call.Name, Result: raw}, nil
}

// catalog returns the invoker's tool catalog when it advertises one.
func (r *Relay) catalog() []wire.ToolDescriptor {
	if provider, ok := r.invoker.(CatalogProvider); ok {
		return provider.Tools()
	}
	return nil
}
