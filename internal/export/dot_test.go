/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"talekit/internal/dialogue"
)

func TestWriteDOTEdgesAndMissingTargets(t *testing.T) {
	nodes, diags := dialogue.Parse(`title: Start
---
<<jump Market>>
<<jump Nowhere>>
===
title: Market
---
Vendor: Hi.
===
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	proj := dialogue.NewProject()
	proj.AddNodes(nodes)

	var sb strings.Builder
	if err := WriteDOT(&sb, proj, DOTOptions{GraphName: "g", Start: "Start"}); err != nil {
		t.Fatalf("WriteDOT error: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		`digraph "g" {`,
		`"Start" -> "Market";`,
		`"Start" -> "Nowhere";`,
		`"Nowhere" [style=dashed, color=red];`,
		`"Start" [peripheries=2];`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("DOT output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `"Market" [style=dashed`) {
		t.Fatalf("resolved node drawn as missing:\n%s", out)
	}
}

func TestExportGraphDOTWritesFile(t *testing.T) {
	ph, proj := exportFixture(t)
	if err := ExportGraphDOT(ph, proj, "graph.dot", DOTOptions{}); err != nil {
		t.Fatalf("ExportGraphDOT error: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(ph.Root, "exports", "graph.dot"))
	if err != nil {
		t.Fatalf("read dot file: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `digraph "Export Test" {`) {
		t.Fatalf("graph name not taken from story: %s", s)
	}
	if !strings.Contains(s, `"Start" -> "Market";`) {
		t.Fatalf("jump edge missing: %s", s)
	}
}
