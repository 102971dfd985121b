/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"talekit/internal/dialogue"
)

func TestCollectLinesFlattensProject(t *testing.T) {
	nodes, diags := dialogue.Parse(`title: Start
---
Sara: Hello! #line:greet
-> Ask
    Sara: Sure.
<<if $x>>
Hidden line.
<<endif>>
===
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	proj := dialogue.NewProject()
	proj.AddNodes(nodes)

	lines := CollectLines(proj)
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4: %+v", len(lines), lines)
	}
	if lines[0].Speaker != "Sara" || lines[0].LineID != "greet" {
		t.Fatalf("first line: %+v", lines[0])
	}
	for _, ln := range lines {
		if ln.Node != "Start" {
			t.Fatalf("line with wrong node: %+v", ln)
		}
	}
}

func TestClientPushAndList(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq PushRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/api/stories/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotReq)
		_ = json.NewEncoder(w).Encode(PushResult{StoryID: 7, Version: 3, Lines: int64(len(gotReq.Lines))})
	})
	mux.HandleFunc("/api/stories", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Story{{ID: 7, StableID: "demo", Name: "Demo"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok123")
	res, err := c.Push(context.Background(), "demo", PushRequest{
		Name:  "Demo",
		Lines: []PushedLine{{Node: "Start", Text: "Hello!"}},
	})
	if err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if res.StoryID != 7 || res.Version != 3 || res.Lines != 1 {
		t.Fatalf("push result: %+v", res)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/api/stories/demo/push" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReq.Name != "Demo" || len(gotReq.Lines) != 1 {
		t.Fatalf("server saw request: %+v", gotReq)
	}

	list, err := c.ListStories(context.Background())
	if err != nil {
		t.Fatalf("ListStories error: %v", err)
	}
	if len(list) != 1 || list[0].StableID != "demo" {
		t.Fatalf("list: %+v", list)
	}
}

func TestClientSearchBuildsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]LineResult{{ID: 1, Node: "Start", Text: "Hello!"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	res, err := c.Search(context.Background(), 7, LineQuery{Text: "hello", Speaker: "Sara", Limit: 5})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(res) != 1 || res[0].Node != "Start" {
		t.Fatalf("results: %+v", res)
	}
	for _, want := range []string{"q=hello", "speaker=Sara", "limit=5"} {
		if !containsParam(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
}

func containsParam(raw, kv string) bool {
	for _, p := range strings.Split(raw, "&") {
		if p == kv {
			return true
		}
	}
	return false
}
