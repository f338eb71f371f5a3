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
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultTimeout = 30 * time.Second

// Config describes how to launch one tool host subprocess.
//
// The environment is an explicit allowlist: only the enumerated
// KEY=VALUE entries (plus PATH) reach the child. Secrets the host needs
// must be named here; the parent's environment is never inherited
// wholesale.
type Config struct {
	// Name identifies the host in logs. Defaults to the command name.
	Name string `yaml:"name,omitempty"`

	// Command is the executable to run.
	Command string `yaml:"command"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variables in KEY=VALUE format. Values
	// support ${VAR} substitution from the parent environment, so a
	// secret can be forwarded by naming it without inlining it.
	Env []string `yaml:"env,omitempty"`

	// Dir is the working directory for the host process.
	Dir string `yaml:"dir,omitempty"`

	// TimeoutSeconds bounds each request, including initialize.
	// Defaults to 30 seconds.
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// LoadConfig reads a host manifest from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hostproc: read manifest: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("hostproc: parse manifest: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for launch.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("hostproc: command is required")
	}
	for _, entry := range c.Env {
		if !strings.Contains(entry, "=") {
			return fmt.Errorf("hostproc: env entry %q is not KEY=VALUE", entry)
		}
	}
	return nil
}

// name returns the log identifier for the host.
func (c *Config) name() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Command
}

// timeout returns the per-request timeout.
func (c *Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// environ builds the child environment: PATH plus the configured
// allowlist with ${VAR} values expanded from the parent environment.
func (c *Config) environ() []string {
	env := []string{"PATH=" + os.Getenv("PATH")}
	for _, entry := range c.Env {
		key, value, _ := strings.Cut(entry, "=")
		env = append(env, key+"="+os.Expand(value, os.Getenv))
	}
	return env
}
