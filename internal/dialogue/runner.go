/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"encoding/json"
	"log/slog"
	"strings"

	applog "talekit/internal/log"
)

// State is the runner's externally visible phase.
type State int

const (
	// StateInactive: no node loaded; StartNode begins a run.
	StateInactive State = iota
	// StateLine: paused on a dialogue line, waiting for Advance.
	StateLine
	// StateChoices: paused on a choice set, waiting for SelectChoice.
	StateChoices
	// StateEnded: the run finished (end of node, stop command or Stop call).
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateLine:
		return "line"
	case StateChoices:
		return "choices"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Callbacks are host-supplied event hooks. Any of them may be nil.
// OnChoices receives only the currently available choices; the index passed
// to SelectChoice refers to that filtered slice.
type Callbacks struct {
	OnLine        func(line *DialogueLine)
	OnChoices     func(choices []Choice)
	OnCommand     func(name string, args []string)
	OnNodeStart   func(title string)
	OnDialogueEnd func()
}

// frame is one level of the pending-line stack: a slice of lines and a
// cursor into it. Conditional branches and selected choice bodies push a
// frame instead of splicing a flat queue, which keeps the parsed node
// immutable and the resume order obvious.
type frame struct {
	lines []Line
	idx   int
}

// Runner walks one node at a time as a pull-based state machine. All work
// happens inline on the caller's goroutine; the only suspension points are
// after a dialogue line (resumed by Advance) and after a choice set
// (resumed by SelectChoice). Command and conditional lines resolve
// synchronously and are invisible pauses-wise.
//
// A Runner exclusively owns its Store and Registry for the duration of a
// run; drive it from a single goroutine.
type Runner struct {
	project  *Project
	store    *Store
	registry *Registry
	cb       Callbacks
	log      *slog.Logger

	state   State
	node    *Node
	frames  []frame
	current *DialogueLine
	choices []Choice
	history []string
}

// NewRunner builds a runner over a project and variable store. registry may
// be nil when the host registers no custom commands.
func NewRunner(project *Project, store *Store, registry *Registry, cb Callbacks) *Runner {
	if store == nil {
		store = NewStore()
	}
	return &Runner{
		project:  project,
		store:    store,
		registry: registry,
		cb:       cb,
		log:      applog.WithComponent("runner"),
		state:    StateInactive,
	}
}

// State returns the current phase.
func (r *Runner) State() State { return r.state }

// Store returns the variable store the runner was constructed with.
func (r *Runner) Store() *Store { return r.store }

// CurrentLine returns the dialogue line being displayed, or nil unless the
// state is StateLine.
func (r *Runner) CurrentLine() *DialogueLine { return r.current }

// CurrentChoices returns the available choices, or nil unless the state is
// StateChoices.
func (r *Runner) CurrentChoices() []Choice { return r.choices }

// CurrentNodeTitle returns the title of the node being run, or "" when no
// node has been loaded.
func (r *Runner) CurrentNodeTitle() string {
	if r.node == nil {
		return ""
	}
	return r.node.Title
}

// History returns the append-only list of node titles visited, in order.
func (r *Runner) History() []string {
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}

// StartNode begins (or re-begins) execution at the given node. It returns
// false, with no state change, when the title is not in the project.
func (r *Runner) StartNode(title string) bool {
	if r.project == nil || !r.project.HasNode(title) {
		return false
	}
	r.loadNode(title)
	r.step()
	return true
}

// Advance resumes past the current dialogue line. It is a no-op unless the
// state is StateLine.
func (r *Runner) Advance() {
	if r.state != StateLine {
		return
	}
	r.current = nil
	r.advanceCursor()
	r.step()
}

// SelectChoice picks one of the currently available choices by index. It is
// a no-op unless the state is StateChoices and i is in range. The chosen
// choice's body runs next, ahead of whatever follows the choice set.
func (r *Runner) SelectChoice(i int) {
	if r.state != StateChoices || i < 0 || i >= len(r.choices) {
		return
	}
	chosen := r.choices[i]
	r.choices = nil
	r.advanceCursor()
	if len(chosen.Body) > 0 {
		r.frames = append(r.frames, frame{lines: chosen.Body})
	}
	r.step()
}

// Stop unconditionally ends the run, clears all run context and fires
// OnDialogueEnd.
func (r *Runner) Stop() {
	r.node = nil
	r.finish()
}

// Reset returns the runner to inactive, clearing run context and the visit
// history. No callback fires.
func (r *Runner) Reset() {
	r.state = StateInactive
	r.node = nil
	r.frames = nil
	r.current = nil
	r.choices = nil
	r.history = nil
}

// loadNode replaces the entire run context with the named node's body.
func (r *Runner) loadNode(title string) {
	n := r.project.Node(title)
	r.node = n
	r.frames = []frame{{lines: n.Body}}
	r.current = nil
	r.choices = nil
	r.history = append(r.history, title)
	if r.cb.OnNodeStart != nil {
		r.cb.OnNodeStart(title)
	}
}

// step drains the pending stack until it pauses on a dialogue line or a
// non-empty choice set, or the run ends.
func (r *Runner) step() {
	for {
		ln, ok := r.peekLine()
		if !ok {
			r.finish()
			return
		}
		switch l := ln.(type) {
		case *DialogueLine:
			r.state = StateLine
			r.current = l
			if r.cb.OnLine != nil {
				r.cb.OnLine(l)
			}
			return

		case *ChoiceSet:
			avail := r.availableChoices(l)
			if len(avail) == 0 {
				// nothing to offer, skip the whole set
				r.advanceCursor()
				continue
			}
			r.state = StateChoices
			r.choices = avail
			if r.cb.OnChoices != nil {
				r.cb.OnChoices(avail)
			}
			return

		case *CommandLine:
			r.advanceCursor()
			if stopped := r.execCommand(l); stopped {
				return
			}

		case *ConditionalLine:
			r.advanceCursor()
			branch := l.Else
			if r.store.EvaluateCondition(l.Condition) {
				branch = l.Then
			}
			if len(branch) > 0 {
				r.frames = append(r.frames, frame{lines: branch})
			}

		case *JumpLine:
			if r.project.HasNode(l.Target) {
				r.loadNode(l.Target)
				continue
			}
			r.log.Debug("jump target missing, skipping", slog.String("target", l.Target))
			r.advanceCursor()
		}
	}
}

// peekLine returns the line at the cursor, discarding exhausted frames.
func (r *Runner) peekLine() (Line, bool) {
	for len(r.frames) > 0 {
		f := &r.frames[len(r.frames)-1]
		if f.idx < len(f.lines) {
			return f.lines[f.idx], true
		}
		r.frames = r.frames[:len(r.frames)-1]
	}
	return nil, false
}

func (r *Runner) advanceCursor() {
	if len(r.frames) > 0 {
		r.frames[len(r.frames)-1].idx++
	}
}

// availableChoices evaluates each choice's condition against the store and
// returns the available subset. The parsed choices stay untouched, so the
// same project can back several runners.
func (r *Runner) availableChoices(set *ChoiceSet) []Choice {
	var avail []Choice
	for _, c := range set.Choices {
		if c.Condition == "" || r.store.EvaluateCondition(c.Condition) {
			avail = append(avail, c)
		}
	}
	return avail
}

// execCommand handles built-ins and dispatches the rest. The stop built-in
// short-circuits the step loop; everything else lets it continue. All
// commands, built-in or not, are reported through OnCommand.
func (r *Runner) execCommand(c *CommandLine) (stopped bool) {
	if r.cb.OnCommand != nil {
		r.cb.OnCommand(c.Name, c.Args)
	}
	switch c.Name {
	case "set":
		r.store.ExecuteSet(strings.Join(c.Args, " "))
	case "stop":
		r.finish()
		return true
	case "wait":
		// inert marker; the host delays externally and calls Advance later
	default:
		if r.registry != nil {
			if handled := r.registry.Execute(c.Name, c.Args); !handled {
				r.log.Debug("unhandled command", slog.String("name", c.Name))
			}
		}
	}
	return false
}

// finish transitions to ended and fires OnDialogueEnd.
func (r *Runner) finish() {
	r.state = StateEnded
	r.frames = nil
	r.current = nil
	r.choices = nil
	if r.cb.OnDialogueEnd != nil {
		r.cb.OnDialogueEnd()
	}
}

// Checkpoint captures the resumable run identity: the current node title,
// the visit history and the variable map. Checkpoints restore at node
// granularity (RestoreCheckpoint re-enters the node from its top), which is
// exact when taken at node starts; the rewind stack in internal/history
// takes them from the OnNodeStart callback.
type Checkpoint struct {
	Node    string         `json:"node"`
	History []string       `json:"history"`
	Vars    map[string]any `json:"vars"`
}

// Checkpoint serializes the current checkpoint as JSON.
func (r *Runner) Checkpoint() ([]byte, error) {
	cp := Checkpoint{
		Node:    r.CurrentNodeTitle(),
		History: r.History(),
		Vars:    r.store.ToJSON(),
	}
	return json.Marshal(cp)
}

// RestoreCheckpoint resets the runner to a serialized checkpoint and
// re-enters its node. Returns false when the blob does not decode or the
// node is gone from the project.
func (r *Runner) RestoreCheckpoint(blob []byte) bool {
	var cp Checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return false
	}
	if cp.Node == "" || r.project == nil || !r.project.HasNode(cp.Node) {
		return false
	}
	r.Reset()
	r.store.LoadFromJSON(cp.Vars)
	if len(cp.History) > 0 {
		// drop the node itself; loadNode re-appends it
		r.history = append([]string(nil), cp.History[:len(cp.History)-1]...)
	}
	return r.StartNode(cp.Node)
}
