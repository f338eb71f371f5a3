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

// toolwire is the agent-side harness: it spawns a tool host, relays
// scripted generation streams through the stream relay, and exposes the
// host's tools for direct invocation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmcalindin/toolwire/internal/hostproc"
	"github.com/bmcalindin/toolwire/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	manifest  string
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "toolwire: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "toolwire",
		Short: "Tool host harness and stream relay",
		Long: `toolwire drives tool host subprocesses over a line-delimited JSON
channel and relays generation event streams, dispatching tool calls to
the host and forwarding text to the terminal.

By default it spawns the bundled filesystem host (toolhostd) rooted at
the current directory. Use --manifest to launch a different host.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.manifest, "manifest", "", "Path to a host manifest (YAML); default spawns toolhostd")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text, json")

	cmd.AddCommand(newToolsCommand(flags))
	cmd.AddCommand(newCallCommand(flags))
	cmd.AddCommand(newRunCommand(flags))
	cmd.AddCommand(newChatCommand(flags))

	return cmd
}

// logger builds the CLI logger from flags and environment.
func (f *rootFlags) logger() *slog.Logger {
	cfg := log.FromEnv()
	if f.logLevel != "" {
		cfg.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Format = log.Format(f.logFormat)
	}
	return log.WithComponent(log.New(cfg), "toolwire")
}

// hostConfig loads the manifest, or falls back to the bundled
// filesystem host in the current directory.
func (f *rootFlags) hostConfig() (*hostproc.Config, error) {
	if f.manifest != "" {
		return hostproc.LoadConfig(f.manifest)
	}
	return &hostproc.Config{
		Name:    "fs",
		Command: "toolhostd",
		Args:    []string{"--root", "."},
	}, nil
}

// startHost spawns the configured host and completes its handshake.
func (f *rootFlags) startHost(ctx context.Context, logger *slog.Logger) (*hostproc.Client, error) {
	cfg, err := f.hostConfig()
	if err != nil {
		return nil, err
	}
	return hostproc.Start(ctx, cfg, logger)
}
