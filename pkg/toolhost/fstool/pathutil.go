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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolve validates a path parameter and resolves it against the root.
// The returned path is absolute and confined to the root; traversal
// sequences, absolute paths outside the root and symlink escapes are
// rejected. This is a security boundary, not just a correctness check,
// so violations surface as parameter errors and no filesystem access
// happens outside the root.
func (r *Root) resolve(field, path string) (string, error) {
	if path == "" {
		return "", paramErr(field, "path is empty")
	}

	// Reject traversal sequences outright rather than relying on Clean
	// to neutralize them.
	if strings.Contains(path, "..") {
		return "", paramErr(field, "path contains directory traversal sequence (..)")
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(r.base, path)
	}

	// Resolve symlinks so a link inside the root cannot point out of
	// it. If the target doesn't exist yet (a write), resolve the
	// closest existing ancestor instead.
	resolved, err := resolveSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !isPathWithinDir(resolved, r.base) {
		return "", paramErr(field, "path is outside the allowed root directory")
	}

	return abs, nil
}

// resolveSymlinks is EvalSymlinks with fallback to the nearest existing
// ancestor for not-yet-created paths.
func resolveSymlinks(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(filepath.Clean(abs))
	dir = filepath.Clean(dir)
	if dir == abs {
		// Reached the filesystem root without finding an existing
		// ancestor.
		return abs, nil
	}

	parent, err := resolveSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

// isPathWithinDir checks if path is within or equal to dir.
func isPathWithinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	// Add separator to avoid false matches like /foo matching /foobar.
	dirWithSep := dir + string(filepath.Separator)
	pathWithSep := path + string(filepath.Separator)

	return path == dir || strings.HasPrefix(pathWithSep, dirWithSep)
}
