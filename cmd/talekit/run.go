/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"talekit/internal/config"
	"talekit/internal/dialogue"
	"talekit/internal/history"
	"talekit/internal/storage"
	"talekit/internal/telemetry"
)

// cmdRun plays the story interactively on stdin/stdout. Enter advances,
// a number picks a choice, and colon commands control the session:
// :save <slot>, :back, :vars, :quit.
func cmdRun(l *slog.Logger, dir, slot string) *storage.StoryHandle {
	ph, proj, diags := mustLoad(l, dir)
	for _, d := range diags {
		fmt.Println("warning:", d)
	}
	telemetry.Event("run", map[string]any{"nodes": proj.Len()})

	cfg, _, err := config.Load()
	if err != nil {
		l.Error("config load failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	trail := history.NewManager(history.Config{
		MaxBytes:    cfg.Run.HistoryMaxBytes,
		MaxDepth:    cfg.Run.HistoryDepth,
		MinInterval: time.Duration(cfg.Run.CoalesceMs) * time.Millisecond,
	})

	store := dialogue.NewStore()
	for name, v := range ph.Story.Defaults {
		store.SetValue(name, v)
	}

	var runner *dialogue.Runner
	runner = dialogue.NewRunner(proj, store, dialogue.NewRegistry(), dialogue.Callbacks{
		OnNodeStart: func(title string) {
			if blob, err := runner.Checkpoint(); err == nil {
				trail.Push(history.Snapshot{Node: title, Blob: blob, TS: time.Now()})
			}
		},
		OnLine: func(ln *dialogue.DialogueLine) {
			if ln.Speaker != "" {
				fmt.Printf("%s: %s\n", ln.Speaker, ln.Text)
				return
			}
			fmt.Println(ln.Text)
		},
		OnChoices: func(choices []dialogue.Choice) {
			for i, c := range choices {
				fmt.Printf("  %d) %s\n", i+1, c.Text)
			}
		},
		OnDialogueEnd: func() {
			fmt.Println("-- end --")
		},
	})

	start := ph.Story.StartNode
	if start == "" {
		start = "Start"
	}
	if slot != "" {
		blob, info, err := storage.ReadSave(context.Background(), ph, slot)
		if err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		if blob == nil {
			fmt.Printf("No save named %q.\n", slot)
			os.Exit(1)
		}
		if !runner.RestoreCheckpoint(blob) {
			fmt.Printf("Save %q points at a node that no longer exists.\n", slot)
			os.Exit(1)
		}
		fmt.Printf("Resumed %q at %s.\n", slot, info.Node)
	} else if !runner.StartNode(start) {
		fmt.Printf("Start node %q is not defined. Check the manifest or scripts.\n", start)
		os.Exit(1)
	}

	in := bufio.NewScanner(os.Stdin)
	for runner.State() == dialogue.StateLine || runner.State() == dialogue.StateChoices {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println()
			break
		}
		input := strings.TrimSpace(in.Text())

		if strings.HasPrefix(input, ":") {
			if quit := runSessionCommand(l, ph, runner, trail, input); quit {
				break
			}
			continue
		}

		switch runner.State() {
		case dialogue.StateChoices:
			n, err := strconv.Atoi(input)
			if err != nil || n < 1 || n > len(runner.CurrentChoices()) {
				fmt.Printf("Pick a number between 1 and %d.\n", len(runner.CurrentChoices()))
				continue
			}
			runner.SelectChoice(n - 1)
		default:
			runner.Advance()
		}
	}
	return ph
}

// runSessionCommand handles the colon commands; returns true to end the session.
func runSessionCommand(l *slog.Logger, ph *storage.StoryHandle, runner *dialogue.Runner, trail *history.Manager, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":save":
		if len(fields) < 2 {
			fmt.Println("usage: :save <slot>")
			return false
		}
		blob, err := runner.Checkpoint()
		if err != nil {
			fmt.Println("Error:", err)
			return false
		}
		slot := fields[1]
		if err := storage.WriteSave(context.Background(), ph, slot, runner.CurrentNodeTitle(), blob); err != nil {
			l.Error("save failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			return false
		}
		fmt.Printf("Saved to %q.\n", slot)
	case ":back":
		// The top of the trail is the current node; step past it to the
		// previous one when possible.
		snap, ok := trail.Back()
		if ok && snap.Node == runner.CurrentNodeTitle() {
			if prev, okPrev := trail.Back(); okPrev {
				snap, ok = prev, true
			}
		}
		if !ok {
			fmt.Println("Nothing to rewind to.")
			return false
		}
		if !runner.RestoreCheckpoint(snap.Blob) {
			fmt.Println("Rewind failed.")
			return false
		}
		fmt.Printf("Rewound to %s.\n", snap.Node)
	case ":vars":
		store := runner.Store()
		names := store.Names()
		if len(names) == 0 {
			fmt.Println("No variables set.")
			return false
		}
		for _, n := range names {
			fmt.Printf("  $%s = %v\n", n, store.GetValue(n, nil))
		}
	default:
		fmt.Println("Commands: :save <slot>  :back  :vars  :quit")
	}
	return false
}
