/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dialogue implements the TaleKit scripting engine: a parser for the
// Yarn-like narrative script format and a pausable runner that walks the
// parsed node graph (branching dialogue, conditionals, variables, commands,
// jumps). Parsed data is immutable; a single Project may back any number of
// independent Runner instances.
package dialogue

// Line is the closed set of things that can appear in a node body.
// Concrete variants are *DialogueLine, *ChoiceSet, *CommandLine,
// *ConditionalLine and *JumpLine; consumers dispatch with a type switch.
type Line interface {
	isLine()
}

// DialogueLine is one spoken (or narrated) line of text.
// ID carries the optional stable #line: identifier used by localization
// pipelines; it is preserved verbatim and never interpreted here.
type DialogueLine struct {
	Speaker string
	Text    string
	Tags    []string
	ID      string
}

// Choice is one selectable option inside a ChoiceSet. Condition is the raw
// boolean expression from an inline <<if ...>> token, empty when absent
// (an absent condition means always available). Body holds the nested lines
// executed when the choice is picked.
type Choice struct {
	Text      string
	Condition string
	Tags      []string
	Body      []Line
}

// ChoiceSet is a run of sibling choices presented together.
type ChoiceSet struct {
	Choices []Choice
}

// CommandLine is a generic <<name args...>> instruction. Name is stored
// lowercased; argument tokenization honors single and double quotes.
type CommandLine struct {
	Name string
	Args []string
}

// ConditionalLine selects one of two branches at runtime. Else is empty when
// the block has no <<else>>; elseif chains parse into a right-nested
// ConditionalLine as the sole element of Else.
type ConditionalLine struct {
	Condition string
	Then      []Line
	Else      []Line
}

// JumpLine transfers control to another node by title. The target is
// resolved lazily at run time and is not validated during parsing.
type JumpLine struct {
	Target string
}

func (*DialogueLine) isLine()    {}
func (*ChoiceSet) isLine()       {}
func (*CommandLine) isLine()     {}
func (*ConditionalLine) isLine() {}
func (*JumpLine) isLine()        {}

// Node is a named, independently addressable block of script content.
// Headers holds every "key: value" header except title and tags, which are
// lifted into their own fields.
type Node struct {
	Title   string
	Tags    []string
	Headers map[string]string
	Body    []Line
}

// Diagnostic is a non-fatal parse observation (skipped header, malformed
// command, implicitly closed <<if>>). Parsing never fails outright; callers
// that care about authoring hygiene inspect these.
type Diagnostic struct {
	Line    int
	Message string
}
