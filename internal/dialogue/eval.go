/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dialogue

import (
	"strconv"
	"strings"
)

// The grammar has no parentheses and no mixed-precedence arithmetic, so
// conditions evaluate by splitting at the first-occurring " or " (lowest
// precedence), then the first " and ", then a single comparison, then a
// single-value truthiness check. "A and B or C" therefore reads as
// (A and B) or C.

// comparison operators in fixed scan priority; two-rune operators first so
// ">=" is never misread as ">".
var compareOps = []string{"==", "!=", ">=", "<=", ">", "<"}

// EvaluateCondition evaluates a boolean expression against the store.
func (s *Store) EvaluateCondition(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		return !s.EvaluateCondition(rest)
	}
	if i := strings.Index(expr, " or "); i >= 0 {
		return s.EvaluateCondition(expr[:i]) || s.EvaluateCondition(expr[i+4:])
	}
	if i := strings.Index(expr, " and "); i >= 0 {
		return s.EvaluateCondition(expr[:i]) && s.EvaluateCondition(expr[i+5:])
	}
	for _, op := range compareOps {
		i := strings.Index(expr, op)
		if i < 0 {
			continue
		}
		left := s.resolve(expr[:i])
		right := s.resolve(expr[i+len(op):])
		return compareValues(op, left, right)
	}
	return truthy(s.resolve(expr))
}

// resolve reads a literal or variable reference: true/false keywords, a
// $name lookup, a numeric literal, a quoted string, or a bare unquoted
// string.
func (s *Store) resolve(token string) any {
	t := strings.TrimSpace(token)
	switch {
	case t == "":
		return ""
	case t == "true":
		return true
	case t == "false":
		return false
	case strings.HasPrefix(t, "$"):
		return s.GetValue(t, nil)
	}
	if n, err := strconv.ParseFloat(t, 64); err == nil {
		return n
	}
	if len(t) >= 2 {
		if (t[0] == '"' && t[len(t)-1] == '"') || (t[0] == '\'' && t[len(t)-1] == '\'') {
			return t[1 : len(t)-1]
		}
	}
	return t
}

// compareValues applies op to two resolved values. Two numbers compare
// numerically; anything else compares through its string form
// (lexicographically for ordering operators). nil compares equal only to
// nil and never orders.
func compareValues(op string, l, r any) bool {
	if l == nil || r == nil {
		switch op {
		case "==":
			return l == nil && r == nil
		case "!=":
			return (l == nil) != (r == nil)
		default:
			return false
		}
	}
	ln, lok := l.(float64)
	rn, rok := r.(float64)
	if lok && rok {
		switch op {
		case "==":
			return ln == rn
		case "!=":
			return ln != rn
		case ">=":
			return ln >= rn
		case "<=":
			return ln <= rn
		case ">":
			return ln > rn
		case "<":
			return ln < rn
		}
		return false
	}
	ls, rs := formatValue(l), formatValue(r)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	}
	return false
}

// truthy: bool as-is, number nonzero, string nonempty, anything else false.
func truthy(v any) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case float64:
		return tv != 0
	case string:
		return tv != ""
	default:
		return false
	}
}

func formatValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		if tv {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case nil:
		return "null"
	}
	return ""
}

// compound assignment operators, checked before plain =.
var compoundOps = []string{"+=", "-=", "*=", "/="}

// ExecuteSet applies a set expression: either a compound numeric update
// ($x += 2, -=, *=, /=) or a plain typed assignment ($x = value). A
// compound update whose right-hand side is not numeric is a silent no-op,
// as is an expression with no assignment operator at all.
func (s *Store) ExecuteSet(expr string) {
	for _, op := range compoundOps {
		i := strings.Index(expr, op)
		if i < 0 {
			continue
		}
		name := normalizeName(expr[:i])
		if name == "" {
			return
		}
		rhs, ok := s.resolve(expr[i+len(op):]).(float64)
		if !ok {
			return
		}
		cur := s.GetNumber(name, 0)
		switch op {
		case "+=":
			cur += rhs
		case "-=":
			cur -= rhs
		case "*=":
			cur *= rhs
		case "/=":
			if rhs == 0 {
				return
			}
			cur /= rhs
		}
		s.SetNumber(name, cur)
		return
	}
	i := strings.Index(expr, "=")
	if i < 0 {
		return
	}
	name := normalizeName(expr[:i])
	if name == "" {
		return
	}
	if v := s.resolve(expr[i+1:]); v != nil {
		s.SetValue(name, v)
	}
}
