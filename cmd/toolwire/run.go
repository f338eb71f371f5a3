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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bmcalindin/toolwire/pkg/relay"
)

func newRunCommand(flags *rootFlags) *cobra.Command {
	var (
		script         string
		mode           string
		message        string
		noHost         bool
		retries        int
		showTranscript bool
	)

	cmd := &cobra.Command{
		Use:   "run --script <file>",
		Short: "Relay a scripted generation stream, dispatching tool calls to the host",
		Long: `Replay a recorded event script through the stream relay. Tool calls in
the script are dispatched to a live tool host unless --no-host is set,
in which case the script must carry its own recorded tool results.

Text is forwarded to stdout as it streams; text after a tool call is
held until the call's result arrives, then forwarded in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if script == "" {
				return fmt.Errorf("--script is required")
			}

			source, err := relay.LoadScript(script)
			if err != nil {
				return err
			}

			relayMode := relay.ModeIncremental
			switch mode {
			case "", "incremental":
			case "cumulative":
				relayMode = relay.ModeCumulative
			default:
				return fmt.Errorf("unknown mode %q (want incremental or cumulative)", mode)
			}

			logger := flags.logger()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var invoker relay.Invoker
			if !noHost {
				client, err := flags.startHost(ctx, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				invoker = client
			}

			var policy *relay.Policy
			if retries > 0 {
				p := relay.DefaultPolicy()
				p.MaxRetries = retries
				policy = &p
			}

			r := relay.New(source, invoker, &relay.Config{
				Mode:   relayMode,
				Policy: policy,
				Logger: logger,
			})

			out := cmd.OutOrStdout()
			transcript := &relay.Transcript{}
			if err := r.Run(ctx, message, transcript, printSink(out, relayMode)); err != nil {
				return err
			}

			if showTranscript {
				return printTranscript(out, transcript)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "Path to the YAML event script")
	cmd.Flags().StringVar(&mode, "mode", "incremental", "Text forwarding mode: incremental or cumulative")
	cmd.Flags().StringVar(&message, "message", "", "User message recorded at the head of the run")
	cmd.Flags().BoolVar(&noHost, "no-host", false, "Do not spawn a tool host; use recorded tool results")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry transient stream failures up to this many times")
	cmd.Flags().BoolVar(&showTranscript, "show-transcript", false, "Print the committed transcript after the run")

	return cmd
}

// printSink writes emissions to out. Incremental fragments are printed
// as they arrive; cumulative snapshots each go on their own line.
func printSink(out io.Writer, mode relay.Mode) relay.Sink {
	return func(em relay.Emission) error {
		switch em.Type {
		case relay.EmissionText:
			if mode == relay.ModeCumulative {
				fmt.Fprintln(out, em.Text)
			} else {
				fmt.Fprint(out, em.Text)
			}
		case relay.EmissionDone:
			if mode == relay.ModeIncremental {
				fmt.Fprintln(out)
			}
		case relay.EmissionError:
			fmt.Fprintf(out, "\n[error: %s]\n", em.Err)
		}
		return nil
	}
}

// printTranscript dumps the committed conversation turns.
func printTranscript(out io.Writer, transcript *relay.Transcript) error {
	fmt.Fprintln(out, "--- transcript ---")
	for _, turn := range transcript.Turns() {
		switch {
		case turn.ToolCall != nil:
			args, err := json.Marshal(turn.ToolCall.Args)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: call %s %s\n", turn.Role, turn.ToolCall.Name, args)
		case turn.ToolResult != nil:
			if turn.ToolResult.Err != nil {
				fmt.Fprintf(out, "%s: %s error %s\n", turn.Role, turn.ToolResult.Name, turn.ToolResult.Err)
			} else {
				fmt.Fprintf(out, "%s: %s %s\n", turn.Role, turn.ToolResult.Name, turn.ToolResult.Result)
			}
		default:
			fmt.Fprintf(out, "%s: %s\n", turn.Role, turn.Content)
		}
	}
	return nil
}
