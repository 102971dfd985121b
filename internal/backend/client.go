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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the writers' room API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	if dest == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

// Story is a minimal projection for listing.
type Story struct {
	ID        int64     `json:"id"`
	StableID  string    `json:"stable_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// FetchToken requests a bearer token for the given subject and stores it on
// the client for subsequent calls.
func (c *Client) FetchToken(ctx context.Context, subject string) (string, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	body := map[string]any{"subject": subject}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", body, &resp); err != nil {
		return "", err
	}
	c.Token = resp.Token
	return resp.Token, nil
}

// ListStories returns available stories (read-only).
func (c *Client) ListStories(ctx context.Context) ([]Story, error) {
	var list []Story
	if err := c.doJSON(ctx, http.MethodGet, "/api/stories", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// PushResult reports what the server recorded for a push.
type PushResult struct {
	StoryID int64 `json:"story_id"`
	Version int64 `json:"version"`
	Lines   int64 `json:"lines"`
}

// Push uploads the story's lines and manifest under the given stable id.
func (c *Client) Push(ctx context.Context, stableID string, req PushRequest) (*PushResult, error) {
	if strings.TrimSpace(stableID) == "" {
		return nil, fmt.Errorf("stable id is required")
	}
	var res PushResult
	p := "/api/stories/" + url.PathEscape(stableID) + "/push"
	if err := c.doJSON(ctx, http.MethodPost, p, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Search queries the pushed lines of a story on the server.
func (c *Client) Search(ctx context.Context, storyID int64, q LineQuery) ([]LineResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Speaker != "" {
		v.Set("speaker", q.Speaker)
	}
	if q.Node != "" {
		v.Set("node", q.Node)
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", fmt.Sprintf("%d", q.Offset))
	}
	p := fmt.Sprintf("/api/stories/%d/search", storyID)
	if enc := v.Encode(); enc != "" {
		p += "?" + enc
	}
	var out []LineResult
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
