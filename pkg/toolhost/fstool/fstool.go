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

// Package fstool provides the filesystem tool set served by toolhostd:
// list_files, read_file, write_file, get_file_info and glob, all
// confined to a configured root directory.
package fstool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bmcalindin/toolwire/pkg/toolhost"
	"github.com/bmcalindin/toolwire/pkg/wire"
)

// Root is a filesystem subtree that the tool set may read and write.
type Root struct {
	base string
}

// NewRoot validates the root directory and returns the tool set bound
// to it. The directory must exist; failing to bind it is an
// unrecoverable startup error for the host.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("fstool: root directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fstool: resolve root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("fstool: resolve root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("fstool: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fstool: root %q is not a directory", dir)
	}

	return &Root{base: resolved}, nil
}

// Base returns the resolved root directory.
func (r *Root) Base() string { return r.base }

// Register adds the filesystem tool set to a registry.
func (r *Root) Register(reg *toolhost.Registry) error {
	tools := []toolhost.Tool{
		{
			Descriptor: wire.ToolDescriptor{
				Name:        "list_files",
				Description: "List files and directories in the specified directory",
				Params: map[string]wire.ParamSpec{
					"directory": {
						Type:        wire.TypeString,
						Description: "Directory path to list (default: the root directory)",
						Default:     ".",
					},
				},
			},
			Handler: r.listFiles,
		},
		{
			Descriptor: wire.ToolDescriptor{
				Name:        "read_file",
				Description: "Read the contents of a file",
				Params: map[string]wire.ParamSpec{
					"file_path": {
						Type:        wire.TypeString,
						Description: "Path to the file to read",
						Required:    true,
					},
				},
			},
			Handler: r.readFile,
		},
		{
			Descriptor: wire.ToolDescriptor{
				Name:        "write_file",
				Description: "Write content to a file, creating parent directories as needed",
				Params: map[string]wire.ParamSpec{
					"file_path": {
						Type:        wire.TypeString,
						Description: "Path to the file to write",
						Required:    true,
					},
					"content": {
						Type:        wire.TypeString,
						Description: "Content to write to the file",
						Required:    true,
					},
				},
			},
			Handler: r.writeFile,
		},
		{
			Descriptor: wire.ToolDescriptor{
				Name:        "get_file_info",
				Description: "Get information about a file or directory",
				Params: map[string]wire.ParamSpec{
					"file_path": {
						Type:        wire.TypeString,
						Description: "Path to the file or directory",
						Required:    true,
					},
				},
			},
			Handler: r.getFileInfo,
		},
		{
			Descriptor: wire.ToolDescriptor{
				Name:        "glob",
				Description: "Find files matching a glob pattern (supports ** for recursion)",
				Params: map[string]wire.ParamSpec{
					"pattern": {
						Type:        wire.TypeString,
						Description: "Glob pattern relative to the root directory",
						Required:    true,
					},
				},
			},
			Handler: r.glob,
		},
	}

	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Root) listFiles(ctx context.Context, args map[string]any) (any, error) {
	dir, _ := args["directory"].(string)
	abs, err := r.resolve("directory", dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}

	files := []string{}
	directories := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			directories = append(directories, entry.Name())
		} else {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	sort.Strings(directories)

	return map[string]any{
		"files":       files,
		"directories": directories,
		"path":        abs,
	}, nil
}

func (r *Root) readFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["file_path"].(string)
	abs, err := r.resolve("file_path", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, paramErr("file_path", fmt.Sprintf("%q is not a file", path))
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	return map[string]any{
		"content": string(content),
		"size":    info.Size(),
		"path":    abs,
	}, nil
}

func (r *Root) writeFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["file_path"].(string)
	content, _ := args["content"].(string)

	abs, err := r.resolve("file_path", path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("write %q: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %q: %w", path, err)
	}

	return map[string]any{
		"written": len(content),
		"path":    abs,
	}, nil
}

func (r *Root) getFileInfo(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["file_path"].(string)
	abs, err := r.resolve("file_path", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	return map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"modified": info.ModTime().Unix(),
		"is_file":  info.Mode().IsRegular(),
		"is_dir":   info.IsDir(),
		"path":     abs,
	}, nil
}

func (r *Root) glob(ctx context.Context, args map[string]any) (any, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return nil, paramErr("pattern", "pattern is empty")
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, paramErr("pattern", "invalid glob pattern")
	}
	if filepath.IsAbs(pattern) {
		return nil, paramErr("pattern", "pattern must be relative to the root directory")
	}

	matches, err := doublestar.Glob(os.DirFS(r.base), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	return map[string]any{"matches": matches}, nil
}

// paramErr reports an invalid path or pattern parameter so the host
// answers with invalid_parameters.
func paramErr(field, reason string) error {
	return &toolhost.FieldError{Field: field, Reason: reason}
}
