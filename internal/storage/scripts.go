/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"talekit/internal/dialogue"
)

// ScriptDiagnostic ties a parser diagnostic to the script file it came from.
type ScriptDiagnostic struct {
	Script  string
	Line    int
	Message string
}

func (d ScriptDiagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.Script, d.Line, d.Message)
}

// LoadScripts parses every script listed in the manifest into a single
// dialogue.Project. Scripts are loaded in manifest order so a node defined
// in a later script replaces an earlier one. Missing files are reported as
// diagnostics, not errors; the project still loads.
func LoadScripts(ph *StoryHandle) (*dialogue.Project, []ScriptDiagnostic, error) {
	if ph == nil {
		return nil, nil, fmt.Errorf("nil StoryHandle")
	}
	proj := dialogue.NewProject()
	var diags []ScriptDiagnostic

	names := ph.Story.Scripts
	if len(names) == 0 {
		names = discoverScripts(ph.Root)
	}
	for _, name := range names {
		b, err := os.ReadFile(ph.ScriptPath(name))
		if err != nil {
			diags = append(diags, ScriptDiagnostic{Script: name, Message: fmt.Sprintf("read script: %v", err)})
			continue
		}
		nodes, pdiags := dialogue.Parse(string(b))
		proj.AddNodes(nodes)
		for _, pd := range pdiags {
			diags = append(diags, ScriptDiagnostic{Script: name, Line: pd.Line, Message: pd.Message})
		}
	}
	return proj, diags, nil
}

// discoverScripts lists script files in scripts/ when the manifest does not
// enumerate any, sorted by name for deterministic load order.
func discoverScripts(root string) []string {
	ents, err := os.ReadDir(filepath.Join(root, ScriptsDirName))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yarn") || strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
