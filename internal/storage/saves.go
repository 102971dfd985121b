/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// language=SQL
// dialect=SQLite
const upsertSaveSQL = `INSERT INTO saves(slot, node, blob, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(slot) DO UPDATE SET node=excluded.node, blob=excluded.blob, updated_at=excluded.updated_at`

// language=SQL
// dialect=SQLite
const selectSaveSQL = `SELECT node, blob, updated_at FROM saves WHERE slot = ?`

// language=SQL
// dialect=SQLite
const listSavesSQL = `SELECT slot, node, updated_at FROM saves ORDER BY updated_at DESC`

// language=SQL
// dialect=SQLite
const deleteSaveSQL = `DELETE FROM saves WHERE slot = ?`

// language=SQL
// dialect=SQLite
const pruneSavesSQL = `DELETE FROM saves WHERE slot NOT IN (
	SELECT slot FROM saves ORDER BY updated_at DESC LIMIT ?
)`

// SaveInfo summarizes a save slot without loading its checkpoint blob.
type SaveInfo struct {
	Slot    string
	Node    string
	Updated time.Time
}

// WriteSave persists a runner checkpoint blob into the named slot,
// replacing any previous save there. The blob is the JSON produced by the
// runner's Checkpoint method; node is recorded for listing.
func WriteSave(ctx context.Context, ph *StoryHandle, slot, node string, blob []byte) error {
	if ph == nil {
		return errors.New("nil StoryHandle")
	}
	if strings.TrimSpace(slot) == "" {
		return errors.New("slot name is required")
	}
	if warns := ValidateSave(blob); len(warns) > 0 {
		return fmt.Errorf("invalid save payload: %s", strings.Join(warns, "; "))
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, upsertSaveSQL, slot, node, blob, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ReadSave loads the checkpoint blob stored in the named slot. It returns
// nil without error when the slot does not exist.
func ReadSave(ctx context.Context, ph *StoryHandle, slot string) ([]byte, *SaveInfo, error) {
	if ph == nil {
		return nil, nil, errors.New("nil StoryHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = db.Close() }()
	var node, tsStr string
	var blob []byte
	err = db.QueryRowContext(ctx, selectSaveSQL, slot).Scan(&node, &blob, &tsStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	ts, _ := time.Parse(time.RFC3339Nano, tsStr)
	return blob, &SaveInfo{Slot: slot, Node: node, Updated: ts}, nil
}

// ListSaves returns all save slots, most recently written first.
func ListSaves(ctx context.Context, ph *StoryHandle) ([]SaveInfo, error) {
	if ph == nil {
		return nil, errors.New("nil StoryHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSavesSQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []SaveInfo
	for rows.Next() {
		var si SaveInfo
		var tsStr string
		if err := rows.Scan(&si.Slot, &si.Node, &tsStr); err != nil {
			return nil, err
		}
		si.Updated, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, si)
	}
	return out, rows.Err()
}

// DeleteSave removes a save slot. Deleting a missing slot is not an error.
func DeleteSave(ctx context.Context, ph *StoryHandle, slot string) error {
	if ph == nil {
		return errors.New("nil StoryHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, deleteSaveSQL, slot)
	return err
}

// PruneSaves keeps at most keepLast most recent saves and deletes older ones.
func PruneSaves(ctx context.Context, ph *StoryHandle, keepLast int) (int64, error) {
	if ph == nil {
		return 0, errors.New("nil StoryHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneSavesSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
