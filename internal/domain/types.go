/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the story project data model: the manifest that ties a
// set of dialogue script files together. It serializes to a human-readable
// JSON manifest (story.json) at the project root.

// Story represents a narrative project and its metadata.
type Story struct {
	Name      string   `json:"name"`
	Metadata  Metadata `json:"metadata,omitempty"`
	StartNode string   `json:"startNode,omitempty"`
	Locale    string   `json:"locale,omitempty"`
	// Scripts lists dialogue script files relative to the project's
	// scripts/ folder, in load order. Later files overwrite same-titled
	// nodes from earlier ones.
	Scripts []string `json:"scripts"`
	// Defaults seeds the variable store before a fresh run. Values are
	// numbers, booleans or strings; anything else is dropped on load.
	Defaults map[string]any `json:"defaults,omitempty"`
}

// Metadata contains optional descriptive metadata for a story.
type Metadata struct {
	Author   string `json:"author,omitempty"`
	Synopsis string `json:"synopsis,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// HasScript reports whether the manifest lists the given script file.
func (s Story) HasScript(name string) bool {
	for _, f := range s.Scripts {
		if f == name {
			return true
		}
	}
	return false
}
