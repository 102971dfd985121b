/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"talekit/internal/domain"
)

func minimalStory() domain.Story {
	return domain.Story{
		Name:      "Test Story",
		StartNode: "Start",
		Scripts:   []string{"main.yarn"},
	}
}

func TestInitStoryCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "story")
	ph, err := InitStory(root, minimalStory())
	if err != nil {
		t.Fatalf("InitStory error: %v", err)
	}
	if ph.ManifestPath != filepath.Join(root, ManifestFileName) {
		t.Fatalf("unexpected manifest path: %s", ph.ManifestPath)
	}
	for _, d := range []string{ScriptsDirName, "saves", "exports", BackupsDirName} {
		if st, err := os.Stat(filepath.Join(root, d)); err != nil || !st.IsDir() {
			t.Fatalf("expected subdir %s to exist", d)
		}
	}
	if _, err := os.Stat(ph.ManifestPath); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := minimalStory()
	s.Metadata.Author = "R. Author"
	if _, err := InitStory(root, s); err != nil {
		t.Fatalf("InitStory error: %v", err)
	}
	ph, warns, err := Open(root)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected validation warnings: %v", warns)
	}
	if ph.Story.Name != "Test Story" || ph.Story.Metadata.Author != "R. Author" {
		t.Fatalf("round trip mismatch: %+v", ph.Story)
	}
	if !ph.Story.HasScript("main.yarn") {
		t.Fatalf("expected main.yarn in manifest scripts")
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	ph, err := InitStory(root, minimalStory())
	if err != nil {
		t.Fatalf("InitStory error: %v", err)
	}
	ph.Story.Name = "Renamed"
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(root, BackupsDirName))
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	found := false
	for _, e := range ents {
		if strings.HasPrefix(e.Name(), ManifestFileName+".") && strings.HasSuffix(e.Name(), ".bak") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a timestamped manifest backup, got %v", ents)
	}
}

func TestOpenFallsBackToLatestBackup(t *testing.T) {
	root := t.TempDir()
	ph, err := InitStory(root, minimalStory())
	if err != nil {
		t.Fatalf("InitStory error: %v", err)
	}
	// Second save produces a backup of the valid manifest
	if err := Save(ph); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	// Corrupt the current manifest
	if err := os.WriteFile(ph.ManifestPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}
	got, _, err := Open(root)
	if err != nil {
		t.Fatalf("Open with backup fallback error: %v", err)
	}
	if got.Story.Name != "Test Story" {
		t.Fatalf("expected story restored from backup, got %+v", got.Story)
	}
}

func TestAutosaveCrashSnapshot(t *testing.T) {
	root := t.TempDir()
	ph, err := InitStory(root, minimalStory())
	if err != nil {
		t.Fatalf("InitStory error: %v", err)
	}
	path, err := AutosaveCrashSnapshot(ph)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot error: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "crash-") {
		t.Fatalf("expected crash-stamped file name, got %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !strings.Contains(string(b), "Test Story") {
		t.Fatalf("snapshot does not contain manifest content")
	}
}
