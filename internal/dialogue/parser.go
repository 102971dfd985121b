/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Parse turns script text into a list of nodes. It is a pure function of its
// input; repeated calls on the same text yield structurally equal results.
//
// Supported syntax:
//
//	title: NodeName          opens a node; lines before the first title are ignored
//	key: value               header lines until ---; the tags header is split on whitespace
//	---                      ends the header phase
//	Speaker: text #line:id #tag
//	-> choice text <<if $cond>> #tag
//	    nested body lines (more deeply indented than the choice)
//	<<command arg "quoted arg">>
//	<<if cond>> ... <<elseif cond>> ... <<else>> ... <<endif>>
//	<<jump NodeName>>
//	// comment
//	===                      closes the node
//
// Parsing never fails: malformed headers, unmatched command syntax and
// unterminated conditional blocks are skipped or closed implicitly, and each
// such repair is recorded as a Diagnostic.
func Parse(input string) ([]Node, []Diagnostic) {
	norm := strings.ReplaceAll(input, "\r\n", "\n")
	norm = strings.ReplaceAll(norm, "\r", "\n")
	p := &parser{lines: strings.Split(norm, "\n")}

	var nodes []Node
	for p.pos < len(p.lines) {
		t := strings.TrimSpace(p.lines[p.pos])
		if !strings.HasPrefix(t, "title:") {
			p.pos++
			continue
		}
		if n := p.parseNode(); n != nil {
			nodes = append(nodes, *n)
		}
	}
	return nodes, p.diags
}

// Patterns shared by the line dispatcher.
var (
	reChoice   = regexp.MustCompile(`^(\s*)->\s*(.*)$`)
	reCommand  = regexp.MustCompile(`^<<\s*(.*?)\s*>>$`)
	reHeader   = regexp.MustCompile(`^([^:]+?)\s*:\s*(.*)$`)
	reSpeaker  = regexp.MustCompile(`^([A-Za-z0-9_\- ]{1,64}):\s*(.*)$`)
	reInlineIf = regexp.MustCompile(`<<\s*if\s+(.*?)\s*>>`)
	reLineID   = regexp.MustCompile(`#line:([^\s#]+)`)
	reHashTag  = regexp.MustCompile(`#([^\s#]+)`)
)

type parser struct {
	lines []string
	pos   int
	diags []Diagnostic
}

func (p *parser) diag(format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{Line: p.pos + 1, Message: fmt.Sprintf(format, args...)})
}

// parseNode consumes a node starting at the current title: line through its
// closing === (or end of input).
func (p *parser) parseNode() *Node {
	t := strings.TrimSpace(p.lines[p.pos])
	n := &Node{
		Title:   strings.TrimSpace(strings.TrimPrefix(t, "title:")),
		Headers: make(map[string]string),
	}
	p.pos++

	// Header phase: key: value lines until ---.
	for p.pos < len(p.lines) {
		t := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if t == "---" {
			break
		}
		if t == "" || isComment(t) {
			continue
		}
		m := reHeader.FindStringSubmatch(t)
		if m == nil {
			p.diags = append(p.diags, Diagnostic{Line: p.pos, Message: fmt.Sprintf("skipped malformed header line %q", t)})
			continue
		}
		key := strings.TrimSpace(m[1])
		val := strings.TrimSpace(m[2])
		switch key {
		case "title":
			n.Title = val
		case "tags":
			n.Tags = strings.Fields(val)
		default:
			n.Headers[key] = val
		}
	}

	// Body phase: dispatch lines until ===.
	for p.pos < len(p.lines) {
		t := strings.TrimSpace(p.lines[p.pos])
		if t == "===" {
			p.pos++
			break
		}
		if t == "" || isComment(t) {
			p.pos++
			continue
		}
		if el := p.parseElement(); el != nil {
			n.Body = append(n.Body, el)
		}
	}
	return n
}

// parseElement consumes one body element at the current position. The node
// fence === and conditional markers are never consumed here; enclosing
// contexts check for them first. Returns nil when the line was skipped.
func (p *parser) parseElement() Line {
	raw := p.lines[p.pos]
	t := strings.TrimSpace(raw)

	if reChoice.MatchString(raw) {
		return p.parseChoiceSet()
	}
	if strings.HasPrefix(t, "<<") {
		name, rest, ok := commandHead(t)
		if !ok {
			p.diag("skipped malformed command line %q", t)
			p.pos++
			return nil
		}
		p.pos++
		switch name {
		case "jump":
			target := ""
			if args := tokenizeArgs(rest); len(args) > 0 {
				target = args[0]
			}
			return &JumpLine{Target: target}
		case "if":
			return p.parseConditional(rest)
		default:
			// set, wait, stop and host commands all parse the same way;
			// their special behavior is a runner concern.
			return &CommandLine{Name: name, Args: tokenizeArgs(rest)}
		}
	}
	return p.parseDialogue(t)
}

// parseChoiceSet consumes a run of sibling choices. The indentation of the
// first arrow fixes the sibling level (tab = 4 width units, space = 1);
// more deeply indented lines after each arrow form that choice's nested
// body, and blank lines do not end the run as long as another sibling
// arrow follows.
func (p *parser) parseChoiceSet() Line {
	w := indentWidth(p.lines[p.pos])
	set := &ChoiceSet{}

	for p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		t := strings.TrimSpace(raw)
		if t == "" || isComment(t) {
			// Look past blanks for another sibling; otherwise the run ends.
			j := p.pos
			for j < len(p.lines) {
				tj := strings.TrimSpace(p.lines[j])
				if tj != "" && !isComment(tj) {
					break
				}
				j++
			}
			if j < len(p.lines) && isChoiceAt(p.lines[j], w) {
				p.pos = j
				continue
			}
			break
		}
		if t == "===" {
			break
		}
		if !isChoiceAt(raw, w) {
			break
		}

		m := reChoice.FindStringSubmatch(raw)
		text := m[2]
		cond := ""
		if im := reInlineIf.FindStringSubmatch(text); im != nil {
			cond = im[1]
			text = strings.Replace(text, im[0], "", 1)
		}
		tags, text := extractTags(text)
		p.pos++
		body := p.parseChoiceBody(w)
		set.Choices = append(set.Choices, Choice{
			Text:      strings.TrimSpace(text),
			Condition: cond,
			Tags:      tags,
			Body:      body,
		})
	}
	return set
}

// parseChoiceBody collects lines more deeply indented than the sibling
// level w, recursively dispatched, until indentation drops back to the
// sibling level or the node fence is reached.
func (p *parser) parseChoiceBody(w int) []Line {
	var body []Line
	for p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		t := strings.TrimSpace(raw)
		if t == "" || isComment(t) {
			p.pos++
			continue
		}
		if t == "===" || indentWidth(raw) <= w {
			break
		}
		if el := p.parseElement(); el != nil {
			body = append(body, el)
		}
	}
	return body
}

// parseConditional consumes lines after an opening <<if cond>> until the
// matching <<endif>>. Elseif chains accumulate as (condition, branch) pairs
// and fold into right-nested ConditionalLines at the end, so
// if/elseif/else behaves as a chain without re-parsing. Reaching === first
// closes the block implicitly.
func (p *parser) parseConditional(cond string) Line {
	branches := []condBranch{{cond: cond}}
	var elseLines []Line
	inElse := false

	for p.pos < len(p.lines) {
		t := strings.TrimSpace(p.lines[p.pos])
		if t == "" || isComment(t) {
			p.pos++
			continue
		}
		if t == "===" {
			p.diag("<<if %s>> not closed before ===; block closed implicitly", cond)
			break
		}
		if name, rest, ok := commandHead(t); ok {
			switch name {
			case "elseif":
				p.pos++
				if inElse {
					p.diag("<<elseif>> after <<else>> skipped")
					continue
				}
				branches = append(branches, condBranch{cond: rest})
				continue
			case "else":
				p.pos++
				inElse = true
				continue
			case "endif":
				p.pos++
				return foldConditional(branches, elseLines)
			}
		}
		el := p.parseElement()
		if el == nil {
			continue
		}
		if inElse {
			elseLines = append(elseLines, el)
		} else {
			branches[len(branches)-1].lines = append(branches[len(branches)-1].lines, el)
		}
	}
	if p.pos >= len(p.lines) {
		p.diags = append(p.diags, Diagnostic{Line: len(p.lines), Message: fmt.Sprintf("<<if %s>> not closed before end of input; block closed implicitly", cond)})
	}
	return foldConditional(branches, elseLines)
}

// condBranch is one (condition, lines) pair accumulated while parsing an
// if/elseif chain.
type condBranch struct {
	cond  string
	lines []Line
}

// foldConditional builds the right-nested representation: each elseif
// becomes a ConditionalLine that is the sole element of the previous
// branch's else.
func foldConditional(branches []condBranch, elseLines []Line) Line {
	last := branches[len(branches)-1]
	out := &ConditionalLine{Condition: last.cond, Then: last.lines, Else: elseLines}
	for i := len(branches) - 2; i >= 0; i-- {
		out = &ConditionalLine{Condition: branches[i].cond, Then: branches[i].lines, Else: []Line{out}}
	}
	return out
}

// parseDialogue handles the default case: strip the optional #line: id and
// #tags, then split an optional leading "Name:" speaker.
func (p *parser) parseDialogue(t string) Line {
	d := &DialogueLine{}
	if m := reLineID.FindStringSubmatch(t); m != nil {
		d.ID = m[1]
		t = strings.Replace(t, m[0], "", 1)
	}
	d.Tags, t = extractTags(t)
	t = strings.TrimSpace(t)
	if m := reSpeaker.FindStringSubmatch(t); m != nil {
		d.Speaker = strings.TrimSpace(m[1])
		d.Text = m[2]
	} else {
		d.Text = t
	}
	p.pos++
	return d
}

// commandHead matches a full <<name rest>> line and returns the lowercased
// name and the raw remainder.
func commandHead(t string) (name, rest string, ok bool) {
	m := reCommand.FindStringSubmatch(t)
	if m == nil {
		return "", "", false
	}
	inner := m[1]
	if inner == "" {
		return "", "", false
	}
	if i := strings.IndexFunc(inner, unicode.IsSpace); i >= 0 {
		return strings.ToLower(inner[:i]), strings.TrimSpace(inner[i+1:]), true
	}
	return strings.ToLower(inner), "", true
}

// tokenizeArgs splits on unquoted whitespace; single- and double-quoted
// spans are atomic tokens. An unterminated quote swallows the remainder.
func tokenizeArgs(s string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

// extractTags removes every #tag token from s and returns them in order of
// appearance alongside the remaining text.
func extractTags(s string) ([]string, string) {
	ms := reHashTag.FindAllStringSubmatch(s, -1)
	if len(ms) == 0 {
		return nil, s
	}
	tags := make([]string, 0, len(ms))
	for _, m := range ms {
		tags = append(tags, m[1])
		s = strings.Replace(s, m[0], "", 1)
	}
	return tags, s
}

func isComment(t string) bool { return strings.HasPrefix(t, "//") }

func isChoiceAt(raw string, w int) bool {
	return reChoice.MatchString(raw) && indentWidth(raw) == w
}

// indentWidth measures leading whitespace; tabs count as 4 width units,
// spaces as 1.
func indentWidth(raw string) int {
	w := 0
	for _, r := range raw {
		switch r {
		case '\t':
			w += 4
		case ' ':
			w++
		default:
			return w
		}
	}
	return w
}
