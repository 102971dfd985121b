/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"talekit/internal/backend"
	"talekit/internal/config"
	"talekit/internal/crash"
	"talekit/internal/dialogue"
	"talekit/internal/domain"
	"talekit/internal/export"
	applog "talekit/internal/log"
	"talekit/internal/storage"
	"talekit/internal/telemetry"
	"talekit/internal/version"
)

func usage() {
	fmt.Println("TaleKit — dialogue scripting toolkit")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  talekit version|-v|--version            Show version")
	fmt.Println("  talekit init <dir> <name>                Create a new story at <dir> with name <name>")
	fmt.Println("  talekit open <dir>                       Open story at <dir> and print summary")
	fmt.Println("  talekit parse <dir>                      Parse scripts, report diagnostics, rebuild index")
	fmt.Println("  talekit lint <dir>                       Check scripts for problems (broken jumps etc.)")
	fmt.Println("  talekit run <dir> [slot]                 Play the story interactively, optionally from a save")
	fmt.Println("  talekit search <dir> <query>             Full-text search over indexed lines")
	fmt.Println("  talekit export pdf <dir> [out.pdf]       Export the script as a PDF")
	fmt.Println("  talekit export dot <dir> [out.dot]       Export the node jump graph as Graphviz DOT")
	fmt.Println("  talekit saves <dir> [rm <slot>]          List (or remove) save slots")
	fmt.Println("  talekit push <dir> [stable-id]           Push the story to the writers' room server")
	fmt.Println("  talekit remote-search <story-id> <query> Search pushed lines on the writers' room server")
	fmt.Println("  talekit serve                            Run the writers' room server")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	telemetry.InitDefault()
	l := applog.WithComponent("cli")
	var ph *storage.StoryHandle
	defer func() { crash.Recover(ph) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("TaleKit — dialogue scripting toolkit")
			fmt.Println(version.String())
			return
		case "init":
			if len(args) < 4 {
				fmt.Println("init requires <dir> and <name>")
				usage()
				os.Exit(2)
			}
			cmdInit(l, args[2], args[3])
			return
		case "open":
			if len(args) < 3 {
				fmt.Println("open requires <dir>")
				usage()
				os.Exit(2)
			}
			ph = cmdOpen(l, args[2])
			return
		case "parse":
			if len(args) < 3 {
				fmt.Println("parse requires <dir>")
				usage()
				os.Exit(2)
			}
			ph = cmdParse(l, args[2])
			return
		case "lint":
			if len(args) < 3 {
				fmt.Println("lint requires <dir>")
				usage()
				os.Exit(2)
			}
			ph = cmdLint(l, args[2])
			return
		case "run":
			if len(args) < 3 {
				fmt.Println("run requires <dir>")
				usage()
				os.Exit(2)
			}
			slot := ""
			if len(args) >= 4 {
				slot = args[3]
			}
			ph = cmdRun(l, args[2], slot)
			return
		case "search":
			if len(args) < 4 {
				fmt.Println("search requires <dir> and <query>")
				usage()
				os.Exit(2)
			}
			cmdSearch(l, args[2], strings.Join(args[3:], " "))
			return
		case "export":
			if len(args) < 4 {
				fmt.Println("export requires a format (pdf|dot) and <dir>")
				usage()
				os.Exit(2)
			}
			out := ""
			if len(args) >= 5 {
				out = args[4]
			}
			ph = cmdExport(l, args[2], args[3], out)
			return
		case "saves":
			if len(args) < 3 {
				fmt.Println("saves requires <dir>")
				usage()
				os.Exit(2)
			}
			rmSlot := ""
			if len(args) >= 5 && args[3] == "rm" {
				rmSlot = args[4]
			}
			ph = cmdSaves(l, args[2], rmSlot)
			return
		case "push":
			if len(args) < 3 {
				fmt.Println("push requires <dir>")
				usage()
				os.Exit(2)
			}
			stableID := ""
			if len(args) >= 4 {
				stableID = args[3]
			}
			ph = cmdPush(l, args[2], stableID)
			return
		case "remote-search":
			if len(args) < 4 {
				fmt.Println("remote-search requires <story-id> and <query>")
				usage()
				os.Exit(2)
			}
			cmdRemoteSearch(l, args[2], strings.Join(args[3:], " "))
			return
		case "serve":
			l.Info("starting writers' room server")
			if err := backend.Start(); err != nil {
				l.Error("server failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		}
	}

	usage()
}

func cmdInit(l *slog.Logger, dir, name string) {
	abs, _ := filepath.Abs(dir)
	l.Info("init story", slog.String("root", abs), slog.String("name", name))
	s := domain.Story{Name: name, Scripts: []string{}}
	if _, err := storage.InitStory(abs, s); err != nil {
		l.Error("init failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Println("Created story at", abs)
	fmt.Println("Put script files into", filepath.Join(abs, storage.ScriptsDirName))
}

func cmdOpen(l *slog.Logger, dir string) *storage.StoryHandle {
	ph, proj, diags := mustLoad(l, dir)
	fmt.Printf("Opened story: %s\n", ph.Story.Name)
	if ph.Story.Metadata.Author != "" {
		fmt.Println("Author:", ph.Story.Metadata.Author)
	}
	fmt.Printf("Scripts: %d  Nodes: %d\n", len(ph.Story.Scripts), proj.Len())
	fmt.Println("Root:", ph.Root)
	for _, d := range diags {
		fmt.Println("warning:", d)
	}
	return ph
}

func cmdParse(l *slog.Logger, dir string) *storage.StoryHandle {
	ph, proj, diags := mustLoad(l, dir)
	telemetry.Event("parse", map[string]any{"nodes": proj.Len()})
	for _, t := range proj.Titles() {
		n := proj.Node(t)
		fmt.Printf("%s (%d lines", t, len(n.Body))
		if len(n.Tags) > 0 {
			fmt.Printf(", tags: %s", strings.Join(n.Tags, " "))
		}
		fmt.Println(")")
	}
	for _, d := range diags {
		fmt.Println("warning:", d)
	}
	if err := storage.UpdateIndex(context.Background(), ph.Root, proj); err != nil {
		l.Error("index update failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Println("Index updated.")
	return ph
}

func cmdLint(l *slog.Logger, dir string) *storage.StoryHandle {
	ph, proj, diags := mustLoad(l, dir)
	problems := len(diags)
	for _, d := range diags {
		fmt.Println(d)
	}
	unresolved := proj.UnresolvedJumps()
	for _, from := range sortedKeys(unresolved) {
		for _, target := range unresolved[from] {
			fmt.Printf("%s: jump to undefined node %q\n", from, target)
			problems++
		}
	}
	if ph.Story.StartNode != "" && !proj.HasNode(ph.Story.StartNode) {
		fmt.Printf("manifest: start node %q is not defined\n", ph.Story.StartNode)
		problems++
	}
	if problems == 0 {
		fmt.Println("No problems found.")
		return ph
	}
	fmt.Printf("%d problem(s) found.\n", problems)
	os.Exit(1)
	return ph
}

func cmdSearch(l *slog.Logger, dir, query string) {
	abs, _ := filepath.Abs(dir)
	res, err := storage.Search(context.Background(), abs, storage.SearchQuery{Text: query})
	if err != nil {
		l.Error("search failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if len(res) == 0 {
		fmt.Println("No matches. Run `talekit parse` to refresh the index.")
		return
	}
	for _, r := range res {
		who := r.Speaker
		if who == "" {
			who = r.Type
		}
		fmt.Printf("%s  [%s]  %s\n", r.Node, who, r.Snippet)
	}
}

func cmdExport(l *slog.Logger, format, dir, out string) *storage.StoryHandle {
	ph, proj, _ := mustLoad(l, dir)
	telemetry.Event("export", map[string]any{"format": format})
	switch format {
	case "pdf":
		if out == "" {
			out = "script.pdf"
		}
		if err := export.ExportScriptPDF(ph, proj, out, export.PDFOptions{ShowConditions: true}); err != nil {
			l.Error("pdf export failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	case "dot":
		if out == "" {
			out = "graph.dot"
		}
		if err := export.ExportGraphDOT(ph, proj, out, export.DOTOptions{}); err != nil {
			l.Error("dot export failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("unknown export format:", format)
		usage()
		os.Exit(2)
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(ph.Root, "exports", out)
	}
	fmt.Println("Exported", out)
	return ph
}

func cmdSaves(l *slog.Logger, dir, rmSlot string) *storage.StoryHandle {
	abs, _ := filepath.Abs(dir)
	ph, _, err := storage.Open(abs)
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if rmSlot != "" {
		if err := storage.DeleteSave(ctx, ph, rmSlot); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		fmt.Println("Removed save", rmSlot)
		return ph
	}
	saves, err := storage.ListSaves(ctx, ph)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if len(saves) == 0 {
		fmt.Println("No saves yet.")
		return ph
	}
	for _, s := range saves {
		fmt.Printf("%-16s %-24s %s\n", s.Slot, s.Node, s.Updated.Local().Format("2006-01-02 15:04:05"))
	}
	return ph
}

func cmdPush(l *slog.Logger, dir, stableID string) *storage.StoryHandle {
	ph, proj, _ := mustLoad(l, dir)
	if stableID == "" {
		stableID = slugify(ph.Story.Name)
	}
	cli, err := authedClient(l)
	if err != nil {
		l.Error("backend client setup failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	manifest, _ := os.ReadFile(ph.ManifestPath)
	res, err := cli.Push(context.Background(), stableID, backend.PushRequest{
		Name:     ph.Story.Name,
		Manifest: manifest,
		Lines:    backend.CollectLines(proj),
	})
	if err != nil {
		l.Error("push failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Printf("Pushed %q as %s (story id %d, version %d, %d lines)\n", ph.Story.Name, stableID, res.StoryID, res.Version, res.Lines)
	return ph
}

func cmdRemoteSearch(l *slog.Logger, storyID, query string) {
	id, err := strconv.ParseInt(storyID, 10, 64)
	if err != nil {
		fmt.Println("remote-search: story-id must be a number, see `talekit push` output")
		os.Exit(2)
	}
	cli, err := authedClient(l)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	res, err := cli.Search(context.Background(), id, backend.LineQuery{Text: query})
	if err != nil {
		l.Error("remote search failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if len(res) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range res {
		who := r.Speaker
		if who == "" {
			who = "-"
		}
		fmt.Printf("%s  [%s]  %s\n", r.Node, who, r.Snippet)
	}
}

// authedClient builds a backend client from the user config, fetching and
// persisting a token on first use.
func authedClient(l *slog.Logger) (*backend.Client, error) {
	cfg, token, err := config.Load()
	if err != nil {
		return nil, err
	}
	cli := backend.NewClient(cfg.Backend.BaseURL, token)
	if token == "" {
		subject := os.Getenv("USER")
		if subject == "" {
			subject = "talekit"
		}
		tok, err := cli.FetchToken(context.Background(), subject)
		if err != nil {
			return nil, err
		}
		if err := config.Save(cfg, tok); err != nil {
			l.Warn("token not persisted", slog.Any("err", err))
		}
	}
	return cli, nil
}

// mustLoad opens a story and parses its scripts, exiting on hard errors.
func mustLoad(l *slog.Logger, dir string) (*storage.StoryHandle, *dialogue.Project, []string) {
	abs, _ := filepath.Abs(dir)
	ph, warns, err := storage.Open(abs)
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	proj, sdiags, err := storage.LoadScripts(ph)
	if err != nil {
		l.Error("script load failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	all := append([]string{}, warns...)
	for _, d := range sdiags {
		all = append(all, d.String())
	}
	return ph, proj, all
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "story"
	}
	return out
}
