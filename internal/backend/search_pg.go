/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// LineQuery mirrors the local search filters for the shared Postgres copy.
type LineQuery struct {
	Text    string
	Speaker string
	Node    string
	Limit   int
	Offset  int
}

// LineResult is one matching pushed line.
type LineResult struct {
	ID      int64  `json:"id"`
	Node    string `json:"node"`
	Speaker string `json:"speaker,omitempty"`
	LineID  string `json:"line_id,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Text    string `json:"text"`
}

// SearchPG executes a search over the Postgres story_lines table using
// tsvector full text plus the optional filters.
func SearchPG(ctx context.Context, db *sql.DB, storyID int64, q LineQuery) ([]LineResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		b.WriteString("SELECT l.id, l.node, COALESCE(l.speaker,''), COALESCE(l.line_id,''), ")
		b.WriteString("COALESCE(ts_headline('simple', l.text, plainto_tsquery('simple', $1), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') AS snippet, l.text ")
		b.WriteString("FROM story_lines l WHERE l.story_id = $2 AND l.search_vector @@ plainto_tsquery('simple', $1) ")
		args = append(args, q.Text, storyID)
	} else {
		b.WriteString("SELECT l.id, l.node, COALESCE(l.speaker,''), COALESCE(l.line_id,''), '' AS snippet, l.text ")
		b.WriteString("FROM story_lines l WHERE l.story_id = $1 ")
		args = append(args, storyID)
	}

	// Helper to add parameter and return placeholder like $n
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if s := strings.TrimSpace(q.Speaker); s != "" {
		b.WriteString(" AND lower(COALESCE(l.speaker,'')) = " + place(strings.ToLower(s)) + " ")
	}
	if s := strings.TrimSpace(q.Node); s != "" {
		b.WriteString(" AND lower(l.node) = " + place(strings.ToLower(s)) + " ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY l.node, l.id ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []LineResult
	for rows.Next() {
		var r LineResult
		if err := rows.Scan(&r.ID, &r.Node, &r.Speaker, &r.LineID, &r.Snippet, &r.Text); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
