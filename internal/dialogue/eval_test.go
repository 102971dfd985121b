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
	"testing"
)

func TestStoreTypedAccessorsAndSigil(t *testing.T) {
	s := NewStore()
	s.SetNumber("$gold", 12)
	if got := s.GetNumber("gold", 0); got != 12 {
		t.Fatalf("sigil must normalize away on set: %v", got)
	}
	if got := s.GetNumber("$gold", 0); got != 12 {
		t.Fatalf("sigil must normalize away on get: %v", got)
	}
	if got := s.GetInt("gold", 0); got != 12 {
		t.Fatalf("GetInt: %v", got)
	}
	// type mismatch falls back to the default
	if got := s.GetString("gold", "none"); got != "none" {
		t.Fatalf("type mismatch must return default: %v", got)
	}
	if got := s.GetBool("missing", true); got != true {
		t.Fatalf("absence must return default: %v", got)
	}
	s.SetString("name", "Sara")
	s.SetBool("met", true)
	if s.GetString("$name", "") != "Sara" || !s.GetBool("met", false) {
		t.Fatalf("string/bool accessors broken")
	}
}

func TestConditionPrecedence(t *testing.T) {
	s := NewStore()
	cases := []struct {
		expr string
		want bool
	}{
		{"true and false or true", true}, // (A and B) or C
		{"false or true and false", false},
		{"true and true and false", false},
		{"not false", true},
		{"not false and false", true}, // not applies to the whole remainder
		{"true", true},
		{"false", false},
	}
	for _, c := range cases {
		if got := s.EvaluateCondition(c.expr); got != c.want {
			t.Fatalf("EvaluateCondition(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestConditionComparisons(t *testing.T) {
	s := NewStore()
	s.SetNumber("gold", 10)
	s.SetString("mood", "happy")
	cases := []struct {
		expr string
		want bool
	}{
		{"$gold == 10", true},
		{"$gold != 10", false},
		{"$gold >= 10", true},
		{"$gold <= 9", false},
		{"$gold > 9.5", true},
		{"$gold < 9.5", false},
		{"$mood == happy", true},
		{"$mood == 'happy'", true},
		{"$mood != \"sad\"", true},
		{"apple < banana", true}, // lexicographic ordering for strings
		{"$unset == $alsounset", true},
		{"$unset == 0", false},
		{"$unset > 1", false},
	}
	for _, c := range cases {
		if got := s.EvaluateCondition(c.expr); got != c.want {
			t.Fatalf("EvaluateCondition(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestConditionTruthiness(t *testing.T) {
	s := NewStore()
	s.SetNumber("zero", 0)
	s.SetNumber("n", 3)
	s.SetString("empty", "")
	s.SetString("word", "x")
	s.SetBool("yes", true)
	cases := []struct {
		expr string
		want bool
	}{
		{"$yes", true},
		{"$zero", false},
		{"$n", true},
		{"$empty", false},
		{"$word", true},
		{"$nothing", false}, // unset variable is never truthy
		{"banana", true},    // bare string literal is nonempty
	}
	for _, c := range cases {
		if got := s.EvaluateCondition(c.expr); got != c.want {
			t.Fatalf("EvaluateCondition(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestExecuteSetCompound(t *testing.T) {
	s := NewStore()
	s.SetNumber("x", 5)
	s.ExecuteSet("$x += 3")
	if got := s.GetNumber("x", 0); got != 8 {
		t.Fatalf("+= yielded %v, want 8", got)
	}
	s.ExecuteSet("$x -= 2")
	s.ExecuteSet("$x *= 4")
	s.ExecuteSet("$x /= 3")
	if got := s.GetNumber("x", 0); got != 8 {
		t.Fatalf("chained compound ops yielded %v, want 8", got)
	}
	// non-numeric right-hand side: silent no-op
	s.ExecuteSet("$x += notANumber")
	if got := s.GetNumber("x", 0); got != 8 {
		t.Fatalf("non-numeric compound must not change the variable: %v", got)
	}
	// divide by zero: silent no-op
	s.ExecuteSet("$x /= 0")
	if got := s.GetNumber("x", 0); got != 8 {
		t.Fatalf("divide by zero must not change the variable: %v", got)
	}
}

func TestExecuteSetPlainAssignmentInfersType(t *testing.T) {
	s := NewStore()
	s.ExecuteSet("$gold = 42")
	s.ExecuteSet("$name = 'Sara'")
	s.ExecuteSet("$met = true")
	s.SetNumber("src", 7)
	s.ExecuteSet("$copy = $src")
	if got := s.GetNumber("gold", 0); got != 42 {
		t.Fatalf("numeric literal assignment: %v", got)
	}
	if got := s.GetString("name", ""); got != "Sara" {
		t.Fatalf("quoted string assignment: %q", got)
	}
	if !s.GetBool("met", false) {
		t.Fatalf("boolean keyword assignment failed")
	}
	if got := s.GetNumber("copy", 0); got != 7 {
		t.Fatalf("variable reference assignment: %v", got)
	}
	// no assignment operator at all: no-op
	s.ExecuteSet("$gold")
	if got := s.GetNumber("gold", 0); got != 42 {
		t.Fatalf("missing operator must be a no-op: %v", got)
	}
}

func TestStoreJSONRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetNumber("gold", 12)
	s.SetBool("met", true)
	s.SetString("name", "Sara")

	m := s.ToJSON()
	want := map[string]any{"gold": float64(12), "met": true, "name": "Sara"}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("ToJSON = %#v, want %#v", m, want)
	}

	other := NewStore()
	other.SetString("stale", "gone")
	other.LoadFromJSON(m)
	if other.Has("stale") {
		t.Fatalf("LoadFromJSON must replace existing contents")
	}
	if other.GetNumber("gold", 0) != 12 || !other.GetBool("met", false) || other.GetString("name", "") != "Sara" {
		t.Fatalf("round trip lost values: %#v", other.ToJSON())
	}
	// unsupported value types are dropped, not stored
	other.LoadFromJSON(map[string]any{"bad": []string{"x"}, "ok": 1.5})
	if other.Has("bad") || other.GetNumber("ok", 0) != 1.5 {
		t.Fatalf("unsupported types must be dropped: %#v", other.ToJSON())
	}
}
