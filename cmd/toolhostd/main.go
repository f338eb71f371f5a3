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

// toolhostd serves the filesystem tool set over stdin/stdout. It is the
// reference tool host: an agent process spawns it, sends the initialize
// handshake, and then invokes tools as newline-delimited JSON requests.
//
// stdout carries protocol messages only; all logging goes to stderr.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bmcalindin/toolwire/internal/log"
	"github.com/bmcalindin/toolwire/pkg/toolhost"
	"github.com/bmcalindin/toolwire/pkg/toolhost/fstool"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "toolhostd: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		rootDir   string
		logLevel  string
		logFormat string
		rateLimit float64
		burst     int
	)

	cmd := &cobra.Command{
		Use:   "toolhostd",
		Short: "Serve filesystem tools over a stdio message channel",
		Long: `toolhostd serves a filesystem tool set (list_files, read_file,
write_file, get_file_info, glob) over stdin/stdout as newline-delimited
JSON. All operations are confined to the configured root directory.

The process exits when its input stream closes.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := log.FromEnv()
			if logLevel != "" {
				cfg.Level = logLevel
			}
			if logFormat != "" {
				cfg.Format = log.Format(logFormat)
			}
			logger := log.WithComponent(log.New(cfg), "toolhostd")

			root, err := fstool.NewRoot(rootDir)
			if err != nil {
				return err
			}
			logger.Info("serving filesystem tools", "root", root.Base())

			registry := toolhost.NewRegistry()
			if err := root.Register(registry); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			host := toolhost.New(registry, os.Stdin, os.Stdout, &toolhost.Config{
				Logger:            logger,
				RequestsPerSecond: rateLimit,
				Burst:             burst,
			})
			return host.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&rootDir, "root", defaultRoot(), "Root directory for filesystem tools (env: TOOLWIRE_ROOT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Maximum requests per second (0 = unlimited)")
	cmd.Flags().IntVar(&burst, "burst", 0, "Rate limiter burst size")

	return cmd
}

func defaultRoot() string {
	if dir := os.Getenv("TOOLWIRE_ROOT"); dir != "" {
		return dir
	}
	return "."
}
