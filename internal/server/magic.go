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
	"encoding/binary"
	"log/slog"

	"github.com/tombee/rewind/internal/log"
	"github.com/tombee/rewind/pkg/gdb"
)

// The magic command channel smuggles bridge commands through ordinary
// memory reads and writes at a reserved page no real debuggee maps. The
// generated init script is the only intended client of this ABI.
//
// ABI v1 layout, all cells 8 bytes little-endian:
//
//	+0x00  command doorbell (write-only): low 32 bits opcode, high 32 arg
//	+0x08  current trace event count (read-only)
//	+0x10  live checkpoint count (read-only)
//	+0x18  ABI version (read-only)
const (
	magicPageAddr = 0x7fffffffe000
	magicPageSize = 0x1000

	magicDoorbellAddr   = magicPageAddr + 0x00
	magicEventAddr      = magicPageAddr + 0x08
	magicCheckpointAddr = magicPageAddr + 0x10
	magicVersionAddr    = magicPageAddr + 0x18

	magicABIVersion = 1
)

// Doorbell opcodes.
const (
	magicOpCheckpointCreate = 1
	magicOpCheckpointDelete = 2
	magicOpDiversionBegin   = 3
	magicOpDiversionEnd     = 4
)

// magicCommandNames labels opcodes for logs and metrics.
var magicCommandNames = map[uint32]string{
	magicOpCheckpointCreate: "checkpoint-create",
	magicOpCheckpointDelete: "checkpoint-delete",
	magicOpDiversionBegin:   "diversion-begin",
	magicOpDiversionEnd:     "diversion-end",
}

// inMagicPage reports whether an address range falls inside the reserved
// page. Partial overlaps count; the page is not real memory either way.
func inMagicPage(addr uint64, n int) bool {
	end := addr + uint64(n)
	return addr < magicPageAddr+magicPageSize && end > magicPageAddr
}

// maybeProcessMagicRead intercepts memory reads of the reserved page.
// handled is false for ordinary addresses.
func (s *Server) maybeProcessMagicRead(mem gdb.MemParams) (data []byte, handled bool) {
	if !inMagicPage(mem.Addr, mem.Len) {
		return nil, false
	}
	if mem.Len != 8 {
		// Only whole-cell reads are defined.
		return nil, true
	}

	var value uint64
	switch mem.Addr {
	case magicEventAddr:
		if s.timeline != nil {
			value = s.timeline.CurrentSession().CurrentEvent()
		}
	case magicCheckpointAddr:
		value = uint64(s.checkpoints.len())
	case magicVersionAddr:
		value = magicABIVersion
	default:
		return nil, true
	}

	data = make([]byte, 8)
	binary.LittleEndian.PutUint64(data, value)
	return data, true
}

// maybeProcessMagicCommand intercepts memory writes to the reserved page
// and executes the doorbell command they encode. handled is false for
// ordinary addresses.
func (s *Server) maybeProcessMagicCommand(mem gdb.MemParams) (handled bool) {
	if !inMagicPage(mem.Addr, mem.Len) {
		return false
	}
	if mem.Addr != magicDoorbellAddr || len(mem.Data) != 8 {
		// Writes anywhere else on the page are absorbed silently; the
		// init script has no business writing them.
		return true
	}

	word := binary.LittleEndian.Uint64(mem.Data)
	op := uint32(word)
	arg := uint32(word >> 32)

	name, known := magicCommandNames[op]
	if !known {
		s.logger.Warn("unknown magic command", slog.Uint64("opcode", uint64(op)))
		return true
	}
	recordMagicCommand(name)
	s.logger.Debug("magic command", slog.String("command", name),
		slog.Uint64("arg", uint64(arg)))

	switch op {
	case magicOpCheckpointCreate:
		s.magicCheckpointCreate(int(arg))
	case magicOpCheckpointDelete:
		if !s.checkpoints.remove(int(arg)) {
			s.logger.Warn("delete of unknown checkpoint",
				slog.Int(log.CheckpointKey, int(arg)))
		}
	case magicOpDiversionBegin:
		if s.timeline == nil {
			s.logger.Warn("diversion requested without a timeline")
		} else if s.diversionRefcount > 0 {
			// Nested begin inside an active diversion just bumps
			// the refcount; the diversion loop observes it.
			s.diversionRefcount++
		} else {
			s.pendingDiversion = true
		}
	case magicOpDiversionEnd:
		if s.diversionRefcount > 0 {
			s.diversionRefcount--
		}
	}
	return true
}

// magicCheckpointCreate pins the current timeline position under a
// client-assigned ID. Reusing an ID replaces the previous checkpoint.
func (s *Server) magicCheckpointCreate(id int) {
	if s.timeline == nil {
		s.logger.Warn("checkpoint requested without a timeline")
		return
	}

	mark, err := s.timeline.Mark()
	if err != nil {
		s.logger.Error("checkpoint mark failed",
			slog.Int(log.CheckpointKey, id), slog.Any("error", err))
		return
	}
	s.checkpoints.set(id, checkpoint{mark: mark, lastContinueTUID: s.lastContinueTUID})
	s.logger.Info("checkpoint created", slog.Int(log.CheckpointKey, id),
		slog.Uint64(log.EventKey, mark.Event()))
}
