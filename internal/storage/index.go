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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"talekit/internal/dialogue"
	applog "talekit/internal/log"
	"talekit/internal/version"

	"log/slog"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-story ephemeral/index data under the story root.
	IndexDirName  = ".talekit"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the story's embedded index database file.
func IndexPath(storyRoot string) string {
	return filepath.Join(storyRoot, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the per-story SQLite index exists at
// .talekit/index.sqlite, opens the database, enables WAL mode, and ensures
// the meta/version tables exist. The returned *sql.DB is ready for use.
// Callers may close it when no longer needed.
func InitOrOpenIndex(storyRoot string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", storyRoot),
	)
	if strings.TrimSpace(storyRoot) == "" {
		return nil, errors.New("story root is required")
	}
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Join(storyRoot, IndexDirName), 0o755); err != nil {
		l.Error("create .talekit dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .talekit dir: %w", err)
	}

	path := IndexPath(storyRoot)
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	uriPath := filepath.ToSlash(path)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Set reasonable connection pool limits for embedded usage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Ensure WAL mode is active.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enforce foreign keys just in case future schema uses them.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}

	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	// Ensure core index schema exists (documents, FTS, jump graph, saves)
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	// Run migrations to bring DB schema up to date
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Info("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	// Create tables if not exist
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	// Seed or update single-row version info
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Insert new row with current schemaVersion for a fresh DB
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade; just continue
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Add lookup indexes for the jump graph
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_jumps_to ON jumps(to_node);`,
				`CREATE INDEX IF NOT EXISTS idx_jumps_from ON jumps(from_node);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// Best-effort FTS optimize (outside the tx)
			if _, err := db.ExecContext(ctx, `INSERT INTO fts_documents(fts_documents) VALUES('optimize')`); err != nil {
				// best-effort optimize; ignore errors
			}
		default:
			// Unknown future step; break
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates core index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// Core documents table: one row per indexed dialogue line, choice,
		// command or node title.
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id  INTEGER PRIMARY KEY,
			type    TEXT    NOT NULL,
			node    TEXT    NOT NULL,
			speaker TEXT,
			line_id TEXT,
			tags    TEXT,
			text    TEXT
		);`,
		// Helpful indices for lookup
		`CREATE INDEX IF NOT EXISTS idx_documents_node ON documents(node);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_line_id ON documents(line_id);`,

		// Contentless FTS5 index fed from documents via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
			text,
			content='',
			tokenize = 'unicode61'
		);`,

		// Jump graph edges between nodes. Unresolved targets keep their
		// name; resolved is 0 when the target node does not exist.
		`CREATE TABLE IF NOT EXISTS jumps (
			from_node TEXT NOT NULL,
			to_node   TEXT NOT NULL,
			resolved  INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY(from_node, to_node)
		);`,

		// Save slots (runner checkpoints)
		`CREATE TABLE IF NOT EXISTS saves (
			slot       TEXT PRIMARY KEY,
			node       TEXT NOT NULL,
			blob       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	// Triggers for contentless FTS synchronization with documents.text
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF text ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds
// the index if needed. It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, storyRoot string, proj *dialogue.Project) (bool, error) {
	path := IndexPath(storyRoot)
	// Try to open DB; if that fails, attempt backup+delete+rebuild
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, storyRoot, proj); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	defer db.Close()
	needs := false
	// quick_check for corruption
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	// Probe core table
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM documents LIMIT 1;`); err != nil {
			needs = true
		}
	}
	if !needs {
		return false, nil
	}
	// Backup and remove existing DB file
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, storyRoot, proj); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .talekit/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// BuildIndexIfEmpty ensures the DB exists and, if the documents table is
// empty, populates it from the given parsed project.
func BuildIndexIfEmpty(ctx context.Context, storyRoot string, proj *dialogue.Project) error {
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents;").Scan(&cnt); err != nil {
		return fmt.Errorf("check documents count: %w", err)
	}
	if cnt > 0 {
		return nil // already built
	}
	return rebuildDocumentsFromProject(ctx, db, proj)
}

// UpdateIndex updates the embedded index with changes from the parsed
// project. Minimal safe implementation: replace the indexed content.
func UpdateIndex(ctx context.Context, storyRoot string, proj *dialogue.Project) error {
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	return rebuildDocumentsFromProject(ctx, db, proj)
}

// RebuildIndex drops and recreates core index tables and rebuilds content
// from the parsed project. It preserves meta/version and saves tables. This
// is a safe operation; the index is derived from the script files.
func RebuildIndex(ctx context.Context, storyRoot string, proj *dialogue.Project) error {
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	// Drop derived tables inside a transaction and recreate schema
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TABLE IF EXISTS jumps;",
		"DROP TRIGGER IF EXISTS documents_ai;",
		"DROP TRIGGER IF EXISTS documents_ad;",
		"DROP TRIGGER IF EXISTS documents_au;",
		"DROP TABLE IF EXISTS documents;",
		"DROP TABLE IF EXISTS fts_documents;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	// Recreate schema and populate
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return rebuildDocumentsFromProject(ctx, db, proj)
}

type docRow struct {
	typeStr string
	node    string
	speaker sql.NullString
	lineID  sql.NullString
	tags    sql.NullString
	text    string
}

func nullable(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// rebuildDocumentsFromProject replaces the documents and jumps content from
// the parsed project.
func rebuildDocumentsFromProject(ctx context.Context, db *sql.DB, proj *dialogue.Project) error {
	rows := make([]docRow, 0, 256)
	type edge struct {
		from, to string
		resolved bool
	}
	var edges []edge

	for _, title := range proj.Titles() {
		node := proj.Node(title)
		rows = append(rows, docRow{typeStr: "node_title", node: title, tags: nullable(strings.Join(node.Tags, " ")), text: title})
		collectDocRows(title, node.Body, &rows)
		for _, target := range proj.JumpTargets(title) {
			edges = append(edges, edge{from: title, to: target, resolved: proj.HasNode(target)})
		}
	}

	// Write in a transaction: clear derived tables and insert new rows.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM jumps;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear jumps: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO documents(type, node, speaker, line_id, tags, text) VALUES(?,?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, r.typeStr, r.node, r.speaker, r.lineID, r.tags, r.text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert document: %w", err)
		}
	}
	insJump, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO jumps(from_node, to_node, resolved) VALUES(?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare jump insert: %w", err)
	}
	defer insJump.Close()
	for _, e := range edges {
		resolved := 0
		if e.resolved {
			resolved = 1
		}
		if _, err := insJump.ExecContext(ctx, e.from, e.to, resolved); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert jump: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// collectDocRows walks a node body recursively and flattens the searchable
// content into document rows.
func collectDocRows(node string, lines []dialogue.Line, rows *[]docRow) {
	for _, ln := range lines {
		switch v := ln.(type) {
		case *dialogue.DialogueLine:
			if strings.TrimSpace(v.Text) == "" {
				continue
			}
			*rows = append(*rows, docRow{
				typeStr: "line",
				node:    node,
				speaker: nullable(v.Speaker),
				lineID:  nullable(v.ID),
				tags:    nullable(strings.Join(v.Tags, " ")),
				text:    v.Text,
			})
		case *dialogue.ChoiceSet:
			for i := range v.Choices {
				c := &v.Choices[i]
				if strings.TrimSpace(c.Text) != "" {
					*rows = append(*rows, docRow{
						typeStr: "choice",
						node:    node,
						tags:    nullable(strings.Join(c.Tags, " ")),
						text:    c.Text,
					})
				}
				collectDocRows(node, c.Body, rows)
			}
		case *dialogue.ConditionalLine:
			collectDocRows(node, v.Then, rows)
			collectDocRows(node, v.Else, rows)
		case *dialogue.CommandLine:
			text := strings.TrimSpace(v.Name + " " + strings.Join(v.Args, " "))
			*rows = append(*rows, docRow{typeStr: "command", node: node, text: text})
		case *dialogue.JumpLine:
			// jumps are indexed as graph edges, not documents
		}
	}
}
