/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import "sort"

// Project is the registry of parsed nodes, keyed by title. It is built
// incrementally: later AddNodes calls overwrite same-titled nodes
// (last-parsed-wins). A Jump to a title missing from the Project is legal;
// no cross-node validation happens here.
type Project struct {
	nodes map[string]*Node
}

// NewProject returns an empty registry.
func NewProject() *Project {
	return &Project{nodes: make(map[string]*Node)}
}

// AddScript parses text and registers every resulting node, overwriting
// nodes with colliding titles. Diagnostics are passed through from Parse.
func (p *Project) AddScript(text string) []Diagnostic {
	nodes, diags := Parse(text)
	p.AddNodes(nodes)
	return diags
}

// AddNodes registers parsed nodes, last one wins per title.
func (p *Project) AddNodes(nodes []Node) {
	for i := range nodes {
		n := nodes[i]
		p.nodes[n.Title] = &n
	}
}

// Node returns the node for title, or nil when absent.
func (p *Project) Node(title string) *Node {
	return p.nodes[title]
}

// HasNode reports whether title is registered.
func (p *Project) HasNode(title string) bool {
	_, ok := p.nodes[title]
	return ok
}

// Remove deletes a single node by title.
func (p *Project) Remove(title string) {
	delete(p.nodes, title)
}

// Clear drops every node.
func (p *Project) Clear() {
	p.nodes = make(map[string]*Node)
}

// Len returns the number of registered nodes.
func (p *Project) Len() int { return len(p.nodes) }

// Titles returns all node titles in sorted order.
func (p *Project) Titles() []string {
	out := make([]string, 0, len(p.nodes))
	for t := range p.nodes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// UnresolvedJumps walks every node body and reports jump targets that are
// not registered in the project, keyed by the originating node title. The
// runner stays silent about these at run time; authoring tools (lint, graph
// export) use this for visibility.
func (p *Project) UnresolvedJumps() map[string][]string {
	out := make(map[string][]string)
	for title, n := range p.nodes {
		var missing []string
		seen := make(map[string]bool)
		walkLines(n.Body, func(ln Line) {
			j, ok := ln.(*JumpLine)
			if !ok || j.Target == "" || seen[j.Target] {
				return
			}
			seen[j.Target] = true
			if !p.HasNode(j.Target) {
				missing = append(missing, j.Target)
			}
		})
		if len(missing) > 0 {
			sort.Strings(missing)
			out[title] = missing
		}
	}
	return out
}

// JumpTargets returns all jump targets per node title, resolved or not,
// in first-seen order. Used by the DOT exporter.
func (p *Project) JumpTargets(title string) []string {
	n := p.nodes[title]
	if n == nil {
		return nil
	}
	var targets []string
	seen := make(map[string]bool)
	walkLines(n.Body, func(ln Line) {
		if j, ok := ln.(*JumpLine); ok && j.Target != "" && !seen[j.Target] {
			seen[j.Target] = true
			targets = append(targets, j.Target)
		}
	})
	return targets
}

// walkLines visits every line in a body tree, including choice bodies and
// both conditional branches, in document order.
func walkLines(lines []Line, fn func(Line)) {
	for _, ln := range lines {
		fn(ln)
		switch l := ln.(type) {
		case *ChoiceSet:
			for i := range l.Choices {
				walkLines(l.Choices[i].Body, fn)
			}
		case *ConditionalLine:
			walkLines(l.Then, fn)
			walkLines(l.Else, fn)
		}
	}
}
