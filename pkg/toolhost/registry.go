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

package toolhost

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bmcalindin/toolwire/pkg/wire"
)

// Handler executes a tool with validated, default-applied arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor wire.ToolDescriptor
	Handler    Handler
}

// Registry maps operation names to statically-typed handlers. The set
// is fixed before the host starts serving; registration after that is
// a programming error the host does not guard against.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique within a host, and the
// reserved initialize operation cannot be registered as a tool.
func (r *Registry) Register(t Tool) error {
	name := t.Descriptor.Name
	if name == "" {
		return fmt.Errorf("toolhost: tool name is required")
	}
	if name == wire.OpInitialize {
		return fmt.Errorf("toolhost: %q is a reserved operation", name)
	}
	if t.Handler == nil {
		return fmt.Errorf("toolhost: tool %q has no handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("toolhost: tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// MustRegister registers a tool and panics on error. Intended for
// static tool sets assembled at startup.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns the full catalog sorted by name.
func (r *Registry) Descriptors() []wire.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]wire.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		descs = append(descs, t.Descriptor)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}
