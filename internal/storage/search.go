/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery describes the in-app search request.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Filters are optional. Tags should be provided without the leading #.
// Types can restrict to kinds like: line, choice, command, node_title.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text    string
	Speaker string
	Node    string
	Tags    []string
	Types   []string
	Limit   int
	Offset  int
}

// SearchResult represents a single match row.
// Snippet is an optional highlighted excerpt using [ ] markers when FTS text is used.
type SearchResult struct {
	DocID   int64
	Type    string
	Node    string
	Speaker string
	LineID  string
	Snippet string
	Text    string
}

// Search performs full-text search with optional filters over the embedded index.
// When q.Text is empty, it falls back to a non-FTS scan over documents with filters applied.
func Search(ctx context.Context, storyRoot string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(storyRoot) == "" {
		return nil, errors.New("story root is required")
	}
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	// Build dynamic SQL
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT d.doc_id, d.type, d.node, COALESCE(d.speaker,''), COALESCE(d.line_id,''), snippet(fts_documents, 0, '[', ']', '…', 10), d.text\n")
		sb.WriteString("FROM fts_documents JOIN documents d ON fts_documents.rowid = d.doc_id\n")
		sb.WriteString("WHERE fts_documents MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT d.doc_id, d.type, d.node, COALESCE(d.speaker,''), COALESCE(d.line_id,''), '', d.text\n")
		sb.WriteString("FROM documents d\nWHERE 1=1\n")
	}
	// Types filter (IN list)
	if len(q.Types) > 0 {
		sb.WriteString(" AND d.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	// Node filter: exact title match, case-insensitive
	if s := strings.TrimSpace(q.Node); s != "" {
		sb.WriteString(" AND lower(d.node)=?\n")
		args = append(args, strings.ToLower(s))
	}
	// Speaker filter: exact speaker match, case-insensitive
	if s := strings.TrimSpace(q.Speaker); s != "" {
		sb.WriteString(" AND (d.speaker IS NOT NULL AND lower(d.speaker)=?)\n")
		args = append(args, strings.ToLower(s))
	}
	// Tags: require all tags to appear in the tags column
	for _, t := range q.Tags {
		tt := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if tt == "" {
			continue
		}
		sb.WriteString(" AND lower(COALESCE(d.tags,'')) LIKE ?\n")
		args = append(args, likeContains(tt))
	}
	// Order and pagination
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY d.node, d.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.Type, &r.Node, &r.Speaker, &r.LineID, &sn, &r.Text); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JumpEdge is an edge in the indexed node jump graph.
type JumpEdge struct {
	From     string
	To       string
	Resolved bool
}

// JumpsInto returns the indexed jump edges that point at the given node,
// answering "which nodes can reach this one".
func JumpsInto(ctx context.Context, storyRoot string, node string) ([]JumpEdge, error) {
	if strings.TrimSpace(node) == "" {
		return nil, errors.New("node is required")
	}
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT from_node, to_node, resolved FROM jumps WHERE lower(to_node)=? ORDER BY from_node`, strings.ToLower(node))
	if err != nil {
		return nil, fmt.Errorf("jumps query: %w", err)
	}
	defer rows.Close()
	var out []JumpEdge
	for rows.Next() {
		var e JumpEdge
		var resolved int
		if err := rows.Scan(&e.From, &e.To, &resolved); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Resolved = resolved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// UnresolvedJumps returns jump edges whose target node does not exist.
func UnresolvedJumps(ctx context.Context, storyRoot string) ([]JumpEdge, error) {
	db, err := InitOrOpenIndex(storyRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT from_node, to_node, resolved FROM jumps WHERE resolved=0 ORDER BY from_node, to_node`)
	if err != nil {
		return nil, fmt.Errorf("jumps query: %w", err)
	}
	defer rows.Close()
	var out []JumpEdge
	for rows.Next() {
		var e JumpEdge
		var resolved int
		if err := rows.Scan(&e.From, &e.To, &resolved); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Resolved = resolved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
