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

package fstool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmcalindin/toolwire/pkg/toolhost"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)
	return root
}

func TestResolveConfinesToRoot(t *testing.T) {
	root := newTestRoot(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative inside root", "a.txt", false},
		{"nested relative", "sub/dir/a.txt", false},
		{"dot", ".", false},
		{"absolute inside root", filepath.Join(root.Base(), "a.txt"), false},
		{"empty", "", true},
		{"parent traversal", "../escape.txt", true},
		{"embedded traversal", "sub/../../escape.txt", true},
		{"classic attack", "../../etc/passwd", true},
		{"absolute outside root", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := root.resolve("file_path", tt.path)
			if tt.wantErr {
				var fieldErr *toolhost.FieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, "file_path", fieldErr.Field)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(abs))
		})
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))

	root := newTestRoot(t)
	link := filepath.Join(root.Base(), "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err := root.resolve("file_path", "escape/secret.txt")
	var fieldErr *toolhost.FieldError
	require.ErrorAs(t, err, &fieldErr)
}

func TestResolveAllowsSymlinkWithinRoot(t *testing.T) {
	root := newTestRoot(t)
	target := filepath.Join(root.Base(), "real")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(root.Base(), "alias")))

	_, err := root.resolve("file_path", "alias/file.txt")
	assert.NoError(t, err)
}

func TestResolveNonexistentPathForWrite(t *testing.T) {
	// Writes target paths that don't exist yet; containment is checked
	// against the nearest existing ancestor.
	root := newTestRoot(t)

	abs, err := root.resolve("file_path", "new/deep/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root.Base(), "new/deep/file.txt"), abs)
}

func TestNewRootValidation(t *testing.T) {
	_, err := NewRoot("")
	assert.Error(t, err)

	_, err = NewRoot(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewRoot(file)
	assert.Error(t, err)
}
