/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseBasicNodeWithChoices(t *testing.T) {
	input := `title: start
---
Sara: Hello!
-> Yes
    Sara: Great!
-> No
    Sara: Okay.
===`

	nodes, diags := Parse(input)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	n := nodes[0]
	if n.Title != "start" {
		t.Fatalf("unexpected title: %q", n.Title)
	}
	if len(n.Body) != 2 {
		t.Fatalf("expected 2 body lines, got %d", len(n.Body))
	}
	d, ok := n.Body[0].(*DialogueLine)
	if !ok || d.Speaker != "Sara" || d.Text != "Hello!" {
		t.Fatalf("expected Sara dialogue, got %#v", n.Body[0])
	}
	cs, ok := n.Body[1].(*ChoiceSet)
	if !ok || len(cs.Choices) != 2 {
		t.Fatalf("expected choice set with 2 choices, got %#v", n.Body[1])
	}
	if cs.Choices[0].Text != "Yes" || cs.Choices[1].Text != "No" {
		t.Fatalf("unexpected choice texts: %q %q", cs.Choices[0].Text, cs.Choices[1].Text)
	}
	b0, ok := cs.Choices[0].Body[0].(*DialogueLine)
	if !ok || b0.Text != "Great!" {
		t.Fatalf("unexpected first choice body: %#v", cs.Choices[0].Body)
	}
}

func TestParseHeadersAndNodeTags(t *testing.T) {
	input := `this line is ignored, it precedes any title
title: intro
tags: chapter1 spooky
position: 120,40
colorID: 3
this header has no colon and is skipped
// a comment
---
Narration without a speaker.
===
title: second
---
Hi.
===`

	nodes, diags := Parse(input)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	n := nodes[0]
	if got := n.Tags; !reflect.DeepEqual(got, []string{"chapter1", "spooky"}) {
		t.Fatalf("unexpected tags: %#v", got)
	}
	if n.Headers["position"] != "120,40" || n.Headers["colorID"] != "3" {
		t.Fatalf("unexpected headers: %#v", n.Headers)
	}
	if _, ok := n.Headers["tags"]; ok {
		t.Fatalf("tags must not stay in the header map")
	}
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "malformed header") {
		t.Fatalf("expected one malformed-header diagnostic, got %+v", diags)
	}
	d := n.Body[0].(*DialogueLine)
	if d.Speaker != "" || d.Text != "Narration without a speaker." {
		t.Fatalf("unexpected dialogue: %#v", d)
	}
	if nodes[1].Title != "second" {
		t.Fatalf("second node missing: %#v", nodes[1])
	}
}

func TestParseDialogueLineIDAndTags(t *testing.T) {
	input := `title: t
---
Sara: See you soon! #line:0x1204 #sad #quiet
===`

	nodes, _ := Parse(input)
	d := nodes[0].Body[0].(*DialogueLine)
	if d.ID != "0x1204" {
		t.Fatalf("line id not captured: %q", d.ID)
	}
	if !reflect.DeepEqual(d.Tags, []string{"sad", "quiet"}) {
		t.Fatalf("tags not captured in order: %#v", d.Tags)
	}
	if d.Speaker != "Sara" || d.Text != "See you soon!" {
		t.Fatalf("unexpected dialogue after token stripping: %#v", d)
	}
}

func TestParseCommandTokenization(t *testing.T) {
	input := `title: t
---
<<SET $gold = 10>>
<<give sword "of the ancients" 'one two'>>
<<jump>>
<<jump target_node extra-ignored>>
<<wait>>
<<broken command with no close
===`

	nodes, diags := Parse(input)
	body := nodes[0].Body
	if len(body) != 5 {
		t.Fatalf("expected 5 body lines, got %d: %#v", len(body), body)
	}
	set := body[0].(*CommandLine)
	if set.Name != "set" {
		t.Fatalf("command names must be lowercased, got %q", set.Name)
	}
	if !reflect.DeepEqual(set.Args, []string{"$gold", "=", "10"}) {
		t.Fatalf("unexpected set args: %#v", set.Args)
	}
	give := body[1].(*CommandLine)
	if !reflect.DeepEqual(give.Args, []string{"sword", "of the ancients", "one two"}) {
		t.Fatalf("quoted spans must stay atomic: %#v", give.Args)
	}
	if j := body[2].(*JumpLine); j.Target != "" {
		t.Fatalf("bare jump must have empty target, got %q", j.Target)
	}
	if j := body[3].(*JumpLine); j.Target != "target_node" {
		t.Fatalf("unexpected jump target: %q", j.Target)
	}
	if w := body[4].(*CommandLine); w.Name != "wait" || len(w.Args) != 0 {
		t.Fatalf("unexpected wait command: %#v", w)
	}
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "malformed command") {
		t.Fatalf("expected malformed-command diagnostic, got %+v", diags)
	}
}

func TestParseConditionalChain(t *testing.T) {
	input := `title: t
---
<<if $a>>
A
<<elseif $b>>
B
<<elseif $c>>
C
<<else>>
D
<<endif>>
After
===`

	nodes, diags := Parse(input)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	body := nodes[0].Body
	if len(body) != 2 {
		t.Fatalf("expected conditional + trailing dialogue, got %d", len(body))
	}
	c1 := body[0].(*ConditionalLine)
	if c1.Condition != "$a" || text(t, c1.Then[0]) != "A" {
		t.Fatalf("outer conditional wrong: %#v", c1)
	}
	if len(c1.Else) != 1 {
		t.Fatalf("elseif must nest as the sole else element, got %d", len(c1.Else))
	}
	c2 := c1.Else[0].(*ConditionalLine)
	if c2.Condition != "$b" || text(t, c2.Then[0]) != "B" {
		t.Fatalf("first elseif wrong: %#v", c2)
	}
	c3 := c2.Else[0].(*ConditionalLine)
	if c3.Condition != "$c" || text(t, c3.Then[0]) != "C" {
		t.Fatalf("second elseif wrong: %#v", c3)
	}
	if len(c3.Else) != 1 || text(t, c3.Else[0]) != "D" {
		t.Fatalf("trailing else wrong: %#v", c3.Else)
	}
	if text(t, body[1]) != "After" {
		t.Fatalf("line after endif lost: %#v", body[1])
	}
}

func TestParseConditionalWithoutElse(t *testing.T) {
	input := `title: t
---
<<if $a >= 2>>
A
<<endif>>
===`

	nodes, _ := Parse(input)
	c := nodes[0].Body[0].(*ConditionalLine)
	if c.Condition != "$a >= 2" {
		t.Fatalf("condition not preserved verbatim: %q", c.Condition)
	}
	if len(c.Else) != 0 {
		t.Fatalf("expected empty else branch, got %#v", c.Else)
	}
}

func TestParseUnterminatedConditionalClosesImplicitly(t *testing.T) {
	input := `title: t
---
<<if $a>>
A
===
title: u
---
U
===`

	nodes, diags := Parse(input)
	if len(nodes) != 2 {
		t.Fatalf("the following node must still parse, got %d nodes", len(nodes))
	}
	c := nodes[0].Body[0].(*ConditionalLine)
	if text(t, c.Then[0]) != "A" || len(c.Else) != 0 {
		t.Fatalf("implicit close kept wrong branches: %#v", c)
	}
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "not closed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected implicit-close diagnostic, got %+v", diags)
	}
}

func TestParseChoiceConditionsTagsAndNesting(t *testing.T) {
	input := "title: t\n---\n" +
		"-> Buy the sword <<if $gold >= 10>> #shop\n" +
		"\tMerchant: A fine blade.\n" +
		"\t-> Really buy it\n" +
		"\t\t<<set $gold -= 10>>\n" +
		"\t-> Walk away\n" +
		"\n" +
		"-> Leave\n" +
		"Merchant: Come again.\n" +
		"===\n"

	nodes, diags := Parse(input)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}
	body := nodes[0].Body
	if len(body) != 2 {
		t.Fatalf("expected choice set + dialogue, got %d", len(body))
	}
	cs := body[0].(*ChoiceSet)
	if len(cs.Choices) != 2 {
		t.Fatalf("blank line must not end the run: got %d choices", len(cs.Choices))
	}
	buy := cs.Choices[0]
	if buy.Text != "Buy the sword" || buy.Condition != "$gold >= 10" {
		t.Fatalf("inline condition not extracted: %#v", buy)
	}
	if !reflect.DeepEqual(buy.Tags, []string{"shop"}) {
		t.Fatalf("choice tags not extracted: %#v", buy.Tags)
	}
	if len(buy.Body) != 2 {
		t.Fatalf("expected dialogue + nested set in choice body, got %d", len(buy.Body))
	}
	nested, ok := buy.Body[1].(*ChoiceSet)
	if !ok || len(nested.Choices) != 2 {
		t.Fatalf("nested choice run wrong: %#v", buy.Body[1])
	}
	if _, ok := nested.Choices[0].Body[0].(*CommandLine); !ok {
		t.Fatalf("nested choice body lost its command: %#v", nested.Choices[0].Body)
	}
	if text(t, body[1]) != "Come again." {
		t.Fatalf("line after the run lost: %#v", body[1])
	}
}

func TestParseCRLFAndDeterminism(t *testing.T) {
	input := "title: t\r\n---\r\nA: one\r\n-> pick\r\n    B: two\r\n===\r\n"
	first, _ := Parse(input)
	second, _ := Parse(input)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parse is not deterministic")
	}
	if len(first) != 1 || len(first[0].Body) != 2 {
		t.Fatalf("CRLF input parsed wrong: %#v", first)
	}
}

// text unwraps a dialogue line's text for terse assertions.
func text(t *testing.T, ln Line) string {
	t.Helper()
	d, ok := ln.(*DialogueLine)
	if !ok {
		t.Fatalf("expected dialogue line, got %#v", ln)
	}
	return d.Text
}
