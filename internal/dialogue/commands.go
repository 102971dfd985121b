/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"strings"
	"sync"
)

// CommandHandler receives the tokenized arguments of a script command.
type CommandHandler func(args []string)

// Registry maps command names to host callbacks. Names are normalized to
// lowercase on register, unregister and lookup, matching the parser's
// case-insensitive command names.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewRegistry returns an empty command registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]CommandHandler)}
}

// Register installs a handler for name, replacing any previous one.
// A nil handler is ignored.
func (r *Registry) Register(name string, h CommandHandler) {
	if h == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	r.mu.Lock()
	r.handlers[key] = h
	r.mu.Unlock()
}

// Unregister removes the handler for name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.handlers, strings.ToLower(strings.TrimSpace(name)))
	r.mu.Unlock()
}

// Execute invokes the handler for name and reports whether one was
// registered.
func (r *Registry) Execute(name string, args []string) bool {
	r.mu.RLock()
	h := r.handlers[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if h == nil {
		return false
	}
	h(args)
	return true
}
