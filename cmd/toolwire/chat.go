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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bmcalindin/toolwire/internal/hostproc"
	"github.com/bmcalindin/toolwire/pkg/relay"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleBold  = lipgloss.NewStyle().Bold(true)
)

type chatAction string

const (
	actionListTools    chatAction = "tools"
	actionCallTool     chatAction = "call"
	actionReplayScript chatAction = "replay"
	actionQuit         chatAction = "quit"
)

func newChatCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session against a tool host",
		Long: `Start the tool host and drive it interactively: browse the catalog,
invoke tools with prompted parameters, or replay an event script
through the stream relay. Requires a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("chat requires an interactive terminal")
			}

			logger := flags.logger()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := flags.startHost(ctx, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Println(styleOK.Render("✓") + " host ready, " +
				styleBold.Render(fmt.Sprintf("%d tools", len(client.Tools()))) +
				styleMuted.Render(" (protocol "+client.ProtocolVersion()+")"))

			for {
				var action chatAction
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewSelect[chatAction]().
							Title("What next?").
							Options(
								huh.NewOption("List tools", actionListTools),
								huh.NewOption("Call a tool", actionCallTool),
								huh.NewOption("Replay a script", actionReplayScript),
								huh.NewOption("Quit", actionQuit),
							).
							Value(&action),
					),
				)
				if err := form.Run(); err != nil {
					return err
				}

				switch action {
				case actionListTools:
					listTools(client)
				case actionCallTool:
					if err := callTool(ctx, client); err != nil {
						fmt.Println(styleError.Render("✗ ") + err.Error())
					}
				case actionReplayScript:
					if err := replayScript(ctx, flags, client); err != nil {
						fmt.Println(styleError.Render("✗ ") + err.Error())
					}
				case actionQuit:
					return nil
				}
			}
		},
	}
	return cmd
}

func listTools(client *hostproc.Client) {
	for _, tool := range client.Tools() {
		fmt.Println(styleBold.Render(tool.Name) + styleMuted.Render("  "+tool.Description))
	}
	fmt.Println()
}

// callTool prompts for an operation and its parameters, then invokes it.
func callTool(ctx context.Context, client *hostproc.Client) error {
	tools := client.Tools()
	if len(tools) == 0 {
		return fmt.Errorf("the host advertises no tools")
	}

	options := make([]huh.Option[string], 0, len(tools))
	for _, tool := range tools {
		options = append(options, huh.NewOption(tool.Name, tool.Name))
	}

	var name string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Tool").Options(options...).Value(&name),
	)).Run(); err != nil {
		return err
	}

	var selected int
	for i, tool := range tools {
		if tool.Name == name {
			selected = i
			break
		}
	}

	params := map[string]any{}
	for _, pname := range sortedParams(tools[selected].Params) {
		spec := tools[selected].Params[pname]

		var value string
		input := huh.NewInput().
			Title(pname).
			Description(spec.Description).
			Value(&value)
		if spec.Required {
			input = input.Validate(func(s string) error {
				if s == "" {
					return fmt.Errorf("%s is required", pname)
				}
				return nil
			})
		}
		if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
			return err
		}
		if value == "" {
			continue
		}

		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		params[pname] = parsed
	}

	result, err := client.Invoke(ctx, name, params)
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(result, &pretty); err == nil {
		indented, _ := json.MarshalIndent(pretty, "", "  ")
		result = indented
	}
	fmt.Println(string(result))
	return nil
}

// replayScript prompts for a script path and relays it against the
// live host.
func replayScript(ctx context.Context, flags *rootFlags, client *hostproc.Client) error {
	var path string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Script path").
			Description("YAML event script to replay").
			Value(&path),
	)).Run(); err != nil {
		return err
	}

	source, err := relay.LoadScript(path)
	if err != nil {
		return err
	}

	r := relay.New(source, client, &relay.Config{Logger: flags.logger()})
	transcript := &relay.Transcript{}

	err = r.Run(ctx, "", transcript, printSink(os.Stdout, relay.ModeIncremental))
	if err != nil {
		return err
	}
	fmt.Println(styleMuted.Render(fmt.Sprintf("(%d transcript turns)", transcript.Len())))
	return nil
}
