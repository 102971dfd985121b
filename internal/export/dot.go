/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"talekit/internal/dialogue"
	"talekit/internal/storage"
)

// DOTOptions controls the Graphviz jump graph export.
type DOTOptions struct {
	// GraphName is the DOT graph identifier; default "story".
	GraphName string
	// Start highlights the given node as the entry point.
	Start string
}

// WriteDOT renders the node jump graph in Graphviz DOT format. Nodes that
// are jumped to but never defined are drawn dashed so broken links stand
// out in the rendered graph.
func WriteDOT(w io.Writer, proj *dialogue.Project, opt DOTOptions) error {
	if proj == nil {
		return fmt.Errorf("project is nil")
	}
	name := opt.GraphName
	if name == "" {
		name = "story"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotID(name))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")

	missing := map[string]bool{}
	for _, title := range proj.Titles() {
		attrs := ""
		if title == opt.Start {
			attrs = " [peripheries=2]"
		}
		fmt.Fprintf(&b, "  %s%s;\n", dotID(title), attrs)
		for _, target := range proj.JumpTargets(title) {
			if !proj.HasNode(target) {
				missing[target] = true
			}
		}
	}
	for _, title := range proj.Titles() {
		for _, target := range proj.JumpTargets(title) {
			fmt.Fprintf(&b, "  %s -> %s;\n", dotID(title), dotID(target))
		}
	}
	for target := range missing {
		fmt.Fprintf(&b, "  %s [style=dashed, color=red];\n", dotID(target))
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// ExportGraphDOT writes the jump graph DOT file at outPath. A relative
// outPath lands in the story's exports folder.
func ExportGraphDOT(ph *storage.StoryHandle, proj *dialogue.Project, outPath string, opt DOTOptions) error {
	if ph == nil {
		return fmt.Errorf("story handle is nil")
	}
	if opt.GraphName == "" {
		opt.GraphName = ph.Story.Name
	}
	if opt.Start == "" {
		opt.Start = ph.Story.StartNode
	}
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(ph.Root, "exports", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create dot file: %w", err)
	}
	if err := WriteDOT(f, proj, opt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// dotID quotes a node title as a DOT identifier.
func dotID(s string) string {
	return fmt.Sprintf("%q", s)
}
