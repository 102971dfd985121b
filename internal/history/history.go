/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps an in-memory rewind trail of runner checkpoints so
// an interactive session can step back to earlier dialogue states.
package history

import (
	"sync"
	"time"
)

// Snapshot is one rewindable runner state. Blob is the serialized
// checkpoint and is opaque to the manager; size is estimated as len(Blob).
// Node records which dialogue node was active when the snapshot was taken.
type Snapshot struct {
	Node string
	Blob []byte
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits how many snapshots are kept (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces snapshots captured within the interval for the
	// same node, replacing the previous one instead of pushing a new entry.
	MinInterval time.Duration
}

// Manager provides a back/forward trail of checkpoints with performance
// safeguards. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex

	back    []Snapshot
	forward []Snapshot

	totalBytes int
}

func NewManager(cfg Config) *Manager {
	// Set conservative defaults if not provided
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024 // 4 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg}
}

// Push records a snapshot. If within MinInterval from the last snapshot on
// the same node, it replaces the last one. Any push clears the forward trail.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.back); n > 0 {
		last := m.back[n-1]
		if last.Node == s.Node && s.TS.Sub(last.TS) < m.cfg.MinInterval {
			// Coalesce: adjust accounting and replace
			m.totalBytes -= len(last.Blob)
			m.totalBytes += len(s.Blob)
			m.back[n-1] = s
			m.forward = nil
			m.enforceCapsLocked()
			return
		}
	}
	m.back = append(m.back, s)
	m.totalBytes += len(s.Blob)
	// Any new state invalidates the forward trail
	m.forward = nil
	m.enforceCapsLocked()
}

// Back pops the most recent snapshot and moves it to the forward trail,
// returning it. The second result is false when the trail is empty.
func (m *Manager) Back() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.back) == 0 {
		return Snapshot{}, false
	}
	s := m.back[len(m.back)-1]
	m.back = m.back[:len(m.back)-1]
	m.totalBytes -= len(s.Blob)
	m.forward = append(m.forward, s)
	return s, true
}

// Forward pops from the forward trail and pushes back onto the rewind trail.
func (m *Manager) Forward() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.forward) == 0 {
		return Snapshot{}, false
	}
	s := m.forward[len(m.forward)-1]
	m.forward = m.forward[:len(m.forward)-1]
	m.back = append(m.back, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked()
	return s, true
}

// Clear drops both trails to free memory.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.back = nil
	m.forward = nil
	m.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.back)
}

func (m *Manager) enforceCapsLocked() {
	// Depth cap: drop the oldest extras
	if m.cfg.MaxDepth > 0 && len(m.back) > m.cfg.MaxDepth {
		toDrop := len(m.back) - m.cfg.MaxDepth
		for i := 0; i < toDrop; i++ {
			m.totalBytes -= len(m.back[i].Blob)
		}
		m.back = append([]Snapshot{}, m.back[toDrop:]...)
	}
	// Memory cap: prune oldest until under the soft limit
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes && len(m.back) > 1 {
		m.totalBytes -= len(m.back[0].Blob)
		m.back = m.back[1:]
	}
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}
