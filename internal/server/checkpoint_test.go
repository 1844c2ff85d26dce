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

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/rewind/pkg/engine"
)

// fakeMark counts releases so pin ownership can be asserted.
type fakeMark struct {
	id       uint64
	releases int
}

func (m *fakeMark) ID() uint64                       { return m.id }
func (m *fakeMark) Event() uint64                    { return m.id }
func (m *fakeMark) Regs() engine.Registers           { return nil }
func (m *fakeMark) ExtraRegs() engine.ExtraRegisters { return nil }
func (m *fakeMark) Release()                         { m.releases++ }

func TestCheckpointStore_SetGetRemove(t *testing.T) {
	store := newCheckpointStore()
	m1 := &fakeMark{id: 1}

	store.set(5, checkpoint{mark: m1})
	cp, ok := store.get(5)
	assert.True(t, ok)
	assert.Same(t, engine.Mark(m1), cp.mark)
	assert.Equal(t, 1, store.len())

	assert.True(t, store.remove(5))
	assert.Equal(t, 1, m1.releases)
	assert.Equal(t, 0, store.len())

	_, ok = store.get(5)
	assert.False(t, ok)
	assert.False(t, store.remove(5))
}

func TestCheckpointStore_ReuseReleasesReplaced(t *testing.T) {
	store := newCheckpointStore()
	m1 := &fakeMark{id: 1}
	m2 := &fakeMark{id: 2}

	store.set(5, checkpoint{mark: m1})
	store.set(5, checkpoint{mark: m2})

	assert.Equal(t, 1, m1.releases)
	assert.Zero(t, m2.releases)
	assert.Equal(t, 1, store.len())

	cp, _ := store.get(5)
	assert.Same(t, engine.Mark(m2), cp.mark)
}

func TestCheckpointStore_ReleaseAll(t *testing.T) {
	store := newCheckpointStore()
	marks := []*fakeMark{{id: 1}, {id: 2}, {id: 3}}
	for i, m := range marks {
		store.set(i, checkpoint{mark: m})
	}

	store.releaseAll()
	assert.Equal(t, 0, store.len())
	for _, m := range marks {
		assert.Equal(t, 1, m.releases)
	}
}
