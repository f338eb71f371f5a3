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
	"strings"

	"github.com/spf13/cobra"

	"github.com/bmcalindin/toolwire/internal/log"
)

func newCallCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <operation> [key=value ...]",
		Short: "Invoke one tool on the host and print its result",
		Long: `Invoke a single operation on the tool host. Parameters are given as
key=value pairs; values parse as JSON first, then fall back to plain
strings, so both count=3 and file_path=a.txt work.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			logger := flags.logger()
			client, err := flags.startHost(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer client.Close()

			logger.Debug("calling tool", log.ToolKey, args[0])
			result, err := client.Invoke(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}

			var pretty any
			if err := json.Unmarshal(result, &pretty); err != nil {
				// Not an object; print the raw payload as-is.
				fmt.Fprintln(cmd.OutOrStdout(), string(result))
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		},
	}
	return cmd
}

// parseParams converts key=value arguments into an operation parameter
// map. Values are parsed as JSON when possible so numbers, booleans,
// arrays and objects keep their types.
func parseParams(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", arg)
		}

		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		params[key] = parsed
	}
	return params, nil
}
