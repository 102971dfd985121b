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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignVerifyTokenRoundTrip(t *testing.T) {
	tok, err := signToken("secret", "alice", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("signToken error: %v", err)
	}
	sub, err := verifyToken("secret", tok)
	if err != nil {
		t.Fatalf("verifyToken error: %v", err)
	}
	if sub != "alice" {
		t.Fatalf("subject = %q, want alice", sub)
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	tok, err := signToken("secret", "alice", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("signToken error: %v", err)
	}
	if _, err := verifyToken("other-secret", tok); err == nil {
		t.Fatalf("wrong secret accepted")
	}
	if _, err := verifyToken("secret", tok+"x"); err == nil {
		t.Fatalf("tampered signature accepted")
	}
	if _, err := verifyToken("secret", "nodots"); err == nil {
		t.Fatalf("malformed token accepted")
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	tok, err := signToken("secret", "alice", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("signToken error: %v", err)
	}
	if _, err := verifyToken("secret", tok); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestWithAuthMiddleware(t *testing.T) {
	handler := withAuth("secret", func(w http.ResponseWriter, r *http.Request, sub string) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sub))
	})

	// No header
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/stories", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rr.Code)
	}

	// Valid token
	tok, err := signToken("secret", "bob", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("signToken error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/stories", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "bob" {
		t.Fatalf("valid token status = %d body = %q", rr.Code, rr.Body.String())
	}
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0001_init.sql")
	if err != nil || v != 1 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Fatalf("expected error for unversioned filename")
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("no embedded migrations found")
	}
}
