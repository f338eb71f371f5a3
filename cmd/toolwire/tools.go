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
	"sort"

	"github.com/spf13/cobra"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

func newToolsCommand(flags *rootFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools advertised by the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.logger()

			client, err := flags.startHost(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer client.Close()

			tools := client.Tools()
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tools)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Protocol version: %s\n\n", client.ProtocolVersion())
			for _, tool := range tools {
				fmt.Fprintf(out, "%s\n    %s\n", tool.Name, tool.Description)
				for _, name := range sortedParams(tool.Params) {
					spec := tool.Params[name]
					required := ""
					if spec.Required {
						required = " (required)"
					}
					fmt.Fprintf(out, "      %s: %s%s  %s\n", name, spec.Type, required, spec.Description)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the catalog as JSON")
	return cmd
}

func sortedParams(params map[string]wire.ParamSpec) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
