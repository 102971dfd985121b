/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"sort"
	"strings"
	"sync"
)

// Store is the typed key-value state read and written by conditions and the
// set command. Values are one of float64, bool or string. Variable names are
// stored without the leading $ sigil; every accessor strips it, so
// GetNumber("$gold", 0) and GetNumber("gold", 0) are the same lookup.
//
// A run is single-threaded, but the mutex lets authoring tools (transcript
// recorder, save writer) read the store while a run is paused.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewStore returns an empty variable store.
func NewStore() *Store {
	return &Store{vars: make(map[string]any)}
}

func normalizeName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "$")
}

// GetValue returns the raw stored value, or def when absent.
func (s *Store) GetValue(name string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vars[normalizeName(name)]; ok {
		return v
	}
	return def
}

// SetValue stores a value. Integers are widened to float64 so the store
// holds exactly the three script types; unsupported types are dropped.
func (s *Store) SetValue(name string, v any) {
	key := normalizeName(name)
	if key == "" {
		return
	}
	switch tv := v.(type) {
	case float64:
	case bool:
	case string:
	case int:
		v = float64(tv)
	case int64:
		v = float64(tv)
	case float32:
		v = float64(tv)
	default:
		return
	}
	s.mu.Lock()
	s.vars[key] = v
	s.mu.Unlock()
}

// GetNumber returns the variable as a number, or def on absence or type
// mismatch.
func (s *Store) GetNumber(name string, def float64) float64 {
	if v, ok := s.GetValue(name, nil).(float64); ok {
		return v
	}
	return def
}

// GetInt is GetNumber truncated to int.
func (s *Store) GetInt(name string, def int) int {
	if v, ok := s.GetValue(name, nil).(float64); ok {
		return int(v)
	}
	return def
}

// GetBool returns the variable as a bool, or def on absence or type mismatch.
func (s *Store) GetBool(name string, def bool) bool {
	if v, ok := s.GetValue(name, nil).(bool); ok {
		return v
	}
	return def
}

// GetString returns the variable as a string, or def on absence or type
// mismatch.
func (s *Store) GetString(name string, def string) string {
	if v, ok := s.GetValue(name, nil).(string); ok {
		return v
	}
	return def
}

func (s *Store) SetNumber(name string, v float64) { s.SetValue(name, v) }
func (s *Store) SetBool(name string, v bool)      { s.SetValue(name, v) }
func (s *Store) SetString(name string, v string)  { s.SetValue(name, v) }

// Has reports whether the variable exists.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[normalizeName(name)]
	return ok
}

// Remove deletes a variable.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	delete(s.vars, normalizeName(name))
	s.mu.Unlock()
}

// Clear drops every variable.
func (s *Store) Clear() {
	s.mu.Lock()
	s.vars = make(map[string]any)
	s.mu.Unlock()
}

// Names returns all variable names (without sigils) in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vars))
	for k := range s.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ToJSON returns a copy of the raw name→value mapping, suitable for
// embedding in external save storage.
func (s *Store) ToJSON() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// LoadFromJSON replaces the store contents with the given mapping. Values
// that are not number, bool or string are dropped; json.Unmarshal already
// decodes numbers as float64, so a decoded save round-trips losslessly.
func (s *Store) LoadFromJSON(m map[string]any) {
	s.mu.Lock()
	s.vars = make(map[string]any, len(m))
	s.mu.Unlock()
	for k, v := range m {
		s.SetValue(k, v)
	}
}
