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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fs
command: toolhostd
args: ["--root", "/srv/data"]
env:
  - "API_TOKEN=${HOME}"
timeout: 10
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Name)
	assert.Equal(t, "toolhostd", cfg.Command)
	assert.Equal(t, []string{"--root", "/srv/data"}, cfg.Args)
	assert.Equal(t, 10*time.Second, cfg.timeout())
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("missing command", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nocmd.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: x"), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Command: "x", Env: []string{"NOEQUALS"}}).Validate())
	assert.NoError(t, (&Config{Command: "x", Env: []string{"K=v"}}).Validate())
}

func TestEnvironIsAnAllowlist(t *testing.T) {
	t.Setenv("HOSTPROC_TEST_SECRET", "s3cret")
	t.Setenv("HOSTPROC_TEST_LEAK", "should-not-appear")

	cfg := &Config{
		Command: "x",
		Env: []string{
			"TOKEN=${HOSTPROC_TEST_SECRET}",
			"STATIC=plain",
		},
	}

	env := cfg.environ()
	assert.Contains(t, env, "TOKEN=s3cret")
	assert.Contains(t, env, "STATIC=plain")
	assert.Contains(t, env, "PATH="+os.Getenv("PATH"))

	for _, entry := range env {
		assert.NotContains(t, entry, "should-not-appear",
			"parent environment must not leak into the child")
	}
	assert.Len(t, env, 3)
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{Command: "toolhostd"}
	assert.Equal(t, "toolhostd", cfg.name())
	assert.Equal(t, defaultTimeout, cfg.timeout())

	named := &Config{Name: "fs", Command: "toolhostd"}
	assert.Equal(t, "fs", named.name())
}
