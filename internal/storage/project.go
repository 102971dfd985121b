/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"talekit/internal/domain"
)

const (
	ManifestFileName = "story.json"
	ScriptsDirName   = "scripts"
	BackupsDirName   = "backups"
)

// Standard subfolders of a story project.
var standardSubDirs = []string{
	ScriptsDirName,
	"saves",
	"exports",
	BackupsDirName,
}

// StoryHandle keeps track of the story project state loaded/saved from disk.
// Root is the project directory containing story.json and subfolders.
// Story holds the in-memory representation of the manifest.
type StoryHandle struct {
	Root         string
	ManifestPath string
	Story        domain.Story
}

// ScriptPath returns the absolute path of a script file listed in the
// manifest.
func (ph *StoryHandle) ScriptPath(name string) string {
	return filepath.Join(ph.Root, ScriptsDirName, name)
}

// InitStory creates a new project directory at root (creating it if it
// doesn't exist), scaffolds the standard subfolders, and writes the given
// manifest transactionally.
func InitStory(root string, story domain.Story) (*StoryHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create project root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}

	ph := &StoryHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Story:        story,
	}
	if err := Save(ph); err != nil {
		return nil, err
	}
	return ph, nil
}

// Open loads an existing story from the given root directory. If the
// current manifest cannot be read or parsed, it falls back to the latest
// backup. A manifest that reads fine but fails schema validation still
// opens; validation problems are returned as warnings.
func Open(root string) (*StoryHandle, []string, error) {
	mpath := filepath.Join(root, ManifestFileName)
	b, err := os.ReadFile(mpath)
	if err != nil {
		story, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		return &StoryHandle{Root: root, ManifestPath: mpath, Story: *story}, nil, nil
	}
	warnings := ValidateManifest(b)
	var s domain.Story
	if uerr := json.Unmarshal(b, &s); uerr != nil {
		story, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, nil, fmt.Errorf("parse manifest: %w; backup attempt: %v", uerr, berr)
		}
		return &StoryHandle{Root: root, ManifestPath: mpath, Story: *story}, nil, nil
	}
	return &StoryHandle{Root: root, ManifestPath: mpath, Story: s}, warnings, nil
}

// Save writes the current StoryHandle.Story to disk with transactional
// semantics and a timestamped backup of the previous manifest (if present).
func Save(ph *StoryHandle) error {
	if ph == nil {
		return errors.New("nil StoryHandle")
	}
	if ph.Root == "" || ph.ManifestPath == "" {
		return errors.New("invalid StoryHandle: missing paths")
	}
	data, err := json.MarshalIndent(ph.Story, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}

	// If a current manifest exists, copy it to a timestamped backup before replacing
	if _, statErr := os.Stat(ph.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bname := fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp)
		bpath := filepath.Join(bdir, bname)
		if cerr := copyFile(ph.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	// Transactional write: to temp file in same directory, then rename over target
	dir := filepath.Dir(ph.ManifestPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(ph.ManifestPath); err == nil {
		_ = os.Remove(ph.ManifestPath)
	}
	if rerr := os.Rename(temp, ph.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// AutosaveCrashSnapshot writes the in-memory manifest to a crash-stamped
// file in the backups folder. Used by the crash handler; it must not touch
// the canonical manifest.
func AutosaveCrashSnapshot(ph *StoryHandle) (string, error) {
	if ph == nil {
		return "", errors.New("nil StoryHandle")
	}
	data, err := json.MarshalIndent(ph.Story, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(bdir, fmt.Sprintf("crash-%s-%s", stamp, ManifestFileName))
	if err := writeFileSync(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// writeFileSync writes data to a file and ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	if err := df.Sync(); err != nil {
		return err
	}
	return nil
}

// openFromLatestBackup tries to open the latest timestamped backup.
func openFromLatestBackup(root string) (*domain.Story, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	var s domain.Story
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return &s, nil
}
