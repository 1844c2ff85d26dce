// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import "github.com/tombee/rewind/pkg/engine"

// checkpoint is one saved timeline position plus the thread context the
// debugger had at creation time, so a restart restores both.
type checkpoint struct {
	mark             engine.Mark
	lastContinueTUID engine.TaskUID
}

// checkpointStore holds the debugger-visible checkpoints keyed by the
// client-assigned ID. The store owns the mark pins: every mark entering the
// store is pinned, and the store releases it exactly once when the entry is
// replaced, deleted, or the store is drained. No locking; the server is
// single-threaded.
type checkpointStore struct {
	entries map[int]checkpoint
}

func newCheckpointStore() *checkpointStore {
	return &checkpointStore{entries: make(map[int]checkpoint)}
}

// set stores a checkpoint under id. Reusing an id silently replaces the old
// checkpoint and releases its pin.
func (s *checkpointStore) set(id int, cp checkpoint) {
	if old, ok := s.entries[id]; ok {
		old.mark.Release()
	}
	s.entries[id] = cp
	recordCheckpointCount(len(s.entries))
}

func (s *checkpointStore) get(id int) (checkpoint, bool) {
	cp, ok := s.entries[id]
	return cp, ok
}

// remove deletes the checkpoint under id, releasing its pin. Deleting an
// unknown id is a no-op.
func (s *checkpointStore) remove(id int) bool {
	cp, ok := s.entries[id]
	if !ok {
		return false
	}
	cp.mark.Release()
	delete(s.entries, id)
	recordCheckpointCount(len(s.entries))
	return true
}

func (s *checkpointStore) len() int {
	return len(s.entries)
}

// releaseAll drains the store, releasing every pin. Used at session
// teardown.
func (s *checkpointStore) releaseAll() {
	for id, cp := range s.entries {
		cp.mark.Release()
		delete(s.entries, id)
	}
	recordCheckpointCount(0)
}
