/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"testing"

	"talekit/internal/dialogue"
)

const indexTestScript = `title: Start
---
Sara: Hello there, stranger!
-> Ask about the weather
    Sara: It never rains here. #lie
-> Leave
<<jump Market>>
===
title: Market
---
Vendor: Fresh apples!
<<jump Nowhere>>
===
`

func parsedTestProject(t *testing.T) *dialogue.Project {
	t.Helper()
	nodes, diags := dialogue.Parse(indexTestScript)
	if len(diags) != 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	proj := dialogue.NewProject()
	proj.AddNodes(nodes)
	return proj
}

func TestInitOrOpenIndexCreatesDatabase(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex error: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(IndexPath(root)); err != nil {
		t.Fatalf("index file not created: %v", err)
	}
	// meta and version tables must exist
	var schema int
	if err := db.QueryRow(`SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("fresh DB schema = %d, want %d", schema, schemaVersion)
	}
}

func TestRebuildIndexPopulatesDocumentsAndJumps(t *testing.T) {
	root := t.TempDir()
	proj := parsedTestProject(t)
	ctx := context.Background()
	if err := RebuildIndex(ctx, root, proj); err != nil {
		t.Fatalf("RebuildIndex error: %v", err)
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer db.Close()

	var lines int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents WHERE type='line'`).Scan(&lines); err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lines != 3 {
		t.Fatalf("indexed lines = %d, want 3", lines)
	}
	var choices int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents WHERE type='choice'`).Scan(&choices); err != nil {
		t.Fatalf("count choices: %v", err)
	}
	if choices != 2 {
		t.Fatalf("indexed choices = %d, want 2", choices)
	}
	var unresolved int
	if err := db.QueryRow(`SELECT COUNT(*) FROM jumps WHERE resolved=0`).Scan(&unresolved); err != nil {
		t.Fatalf("count unresolved jumps: %v", err)
	}
	if unresolved != 1 {
		t.Fatalf("unresolved jumps = %d, want 1 (Market -> Nowhere)", unresolved)
	}
}

func TestBuildIndexIfEmptyIsIdempotent(t *testing.T) {
	root := t.TempDir()
	proj := parsedTestProject(t)
	ctx := context.Background()
	if err := BuildIndexIfEmpty(ctx, root, proj); err != nil {
		t.Fatalf("first build: %v", err)
	}
	// Second call must be a no-op even with a different project
	empty := dialogue.NewProject()
	if err := BuildIndexIfEmpty(ctx, root, empty); err != nil {
		t.Fatalf("second build: %v", err)
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&cnt); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if cnt == 0 {
		t.Fatalf("documents were wiped by second BuildIndexIfEmpty")
	}
}

func TestDetectAndRebuildIndexOnCorruption(t *testing.T) {
	root := t.TempDir()
	proj := parsedTestProject(t)
	ctx := context.Background()
	if err := RebuildIndex(ctx, root, proj); err != nil {
		t.Fatalf("initial build: %v", err)
	}
	// Clobber the database file
	if err := os.WriteFile(IndexPath(root), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root, proj)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex error: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild after corruption")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&cnt); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if cnt == 0 {
		t.Fatalf("rebuilt index is empty")
	}
}
