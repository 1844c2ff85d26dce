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

// Package wire is the development codec: decoded debugger requests and
// replies as JSON lines over a stream. It exists so the bridge can be
// driven by scripts and tests without a GDB serial protocol implementation
// on the other end; a production codec plugs into the same
// gdb.ConnectionFactory seam.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tombee/rewind/pkg/gdb"
)

// ProtocolVersion is sent in the banner line and must match on both sides.
const ProtocolVersion = "1.0"

var (
	// ErrInvalidMessage is returned when a line cannot be parsed.
	ErrInvalidMessage = errors.New("wire: invalid message format")

	// ErrUnsupportedVersion is returned when the banner versions differ.
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
)

// MessageType identifies the direction and role of a message.
type MessageType string

const (
	// MessageTypeRequest is a decoded debugger request, client to bridge.
	MessageTypeRequest MessageType = "request"

	// MessageTypeReply answers the most recent request, bridge to client.
	MessageTypeReply MessageType = "reply"

	// MessageTypeNotify is an asynchronous stop or exit notification.
	MessageTypeNotify MessageType = "notify"

	// MessageTypeBanner opens the stream with a version declaration.
	MessageTypeBanner MessageType = "banner"
)

// Message is one JSON line on the wire.
type Message struct {
	// Type identifies the message role
	Type MessageType `json:"type"`

	// Version is the protocol version (banner only)
	Version string `json:"version,omitempty"`

	// Kind is the request kind name or the reply/notify verb
	Kind string `json:"kind,omitempty"`

	// Body carries the typed payload for the kind
	Body json.RawMessage `json:"body,omitempty"`
}

// requestBody is the JSON shape of one decoded request.
type requestBody struct {
	Target threadIDBody `json:"target,omitempty"`

	Addr uint64 `json:"addr,omitempty"`
	Len  int    `json:"len,omitempty"`
	Data []byte `json:"data,omitempty"`

	Reg      int    `json:"reg,omitempty"`
	RegValue []byte `json:"regValue,omitempty"`

	BreakType int    `json:"breakType,omitempty"`
	Size      int    `json:"size,omitempty"`
	Condition string `json:"condition,omitempty"`

	Backward bool `json:"backward,omitempty"`
	Step     bool `json:"step,omitempty"`
	Signal   int  `json:"signal,omitempty"`

	FromCheckpoint bool `json:"fromCheckpoint,omitempty"`
	Checkpoint     int  `json:"checkpoint,omitempty"`
}

type threadIDBody struct {
	PID int `json:"pid"`
	TID int `json:"tid"`
}

// requestKindsByName inverts the request kind names for decoding.
var requestKindsByName = func() map[string]gdb.RequestKind {
	kinds := []gdb.RequestKind{
		gdb.ReqGetCurrentThread, gdb.ReqGetThreadList, gdb.ReqGetIsThreadAlive,
		gdb.ReqGetThreadExtraInfo, gdb.ReqSetContinueThread, gdb.ReqSetQueryThread,
		gdb.ReqGetRegs, gdb.ReqGetReg, gdb.ReqSetReg,
		gdb.ReqGetMem, gdb.ReqSetMem,
		gdb.ReqSetBreak, gdb.ReqRemoveBreak,
		gdb.ReqResume, gdb.ReqInterrupt, gdb.ReqGetStopReason,
		gdb.ReqDetach, gdb.ReqRestart,
	}
	m := make(map[string]gdb.RequestKind, len(kinds))
	for _, k := range kinds {
		m[k.String()] = k
	}
	return m
}()

// decodeRequest converts a wire message into a decoded request.
func decodeRequest(msg *Message) (gdb.Request, error) {
	kind, ok := requestKindsByName[msg.Kind]
	if !ok {
		return gdb.Request{}, fmt.Errorf("%w: unknown request kind %q", ErrInvalidMessage, msg.Kind)
	}

	var body requestBody
	if msg.Body != nil {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return gdb.Request{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	req := gdb.Request{
		Kind:   kind,
		Target: gdb.ThreadID{PID: body.Target.PID, TID: body.Target.TID},
	}

	switch kind {
	case gdb.ReqGetMem, gdb.ReqSetMem:
		req.Mem = gdb.MemParams{Addr: body.Addr, Len: body.Len, Data: body.Data}
	case gdb.ReqGetReg, gdb.ReqSetReg:
		if len(body.RegValue) > gdb.MaxRegisterSize {
			return gdb.Request{}, fmt.Errorf("%w: register value of %d bytes exceeds %d",
				ErrInvalidMessage, len(body.RegValue), gdb.MaxRegisterSize)
		}
		req.Reg = gdb.RegisterValue{
			Reg:     gdb.Register(body.Reg),
			Value:   body.RegValue,
			Defined: true,
		}
	case gdb.ReqSetBreak, gdb.ReqRemoveBreak:
		req.Watch = gdb.WatchParams{
			Type:      gdb.BreakType(body.BreakType),
			Addr:      body.Addr,
			Size:      body.Size,
			Condition: body.Condition,
		}
	case gdb.ReqResume:
		dir := gdb.RunForward
		if body.Backward {
			dir = gdb.RunBackward
		}
		req.Resume = gdb.ResumeParams{Direction: dir, Step: body.Step, Signal: body.Signal}
	case gdb.ReqRestart:
		req.Restart = gdb.RestartParams{FromCheckpoint: body.FromCheckpoint, ID: body.Checkpoint}
	}
	return req, nil
}

// encodeRequest converts a decoded request into a wire message. Used by
// test and script clients.
func encodeRequest(req gdb.Request) (*Message, error) {
	body := requestBody{
		Target:         threadIDBody{PID: req.Target.PID, TID: req.Target.TID},
		Addr:           req.Mem.Addr,
		Len:            req.Mem.Len,
		Data:           req.Mem.Data,
		Reg:            int(req.Reg.Reg),
		RegValue:       req.Reg.Value,
		BreakType:      int(req.Watch.Type),
		Size:           req.Watch.Size,
		Condition:      req.Watch.Condition,
		Backward:       req.Resume.Direction == gdb.RunBackward,
		Step:           req.Resume.Step,
		Signal:         req.Resume.Signal,
		FromCheckpoint: req.Restart.FromCheckpoint,
		Checkpoint:     req.Restart.ID,
	}
	if req.Kind == gdb.ReqSetBreak || req.Kind == gdb.ReqRemoveBreak {
		body.Addr = req.Watch.Addr
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeRequest, Kind: req.Kind.String(), Body: raw}, nil
}

// newBanner creates the stream-opening version declaration.
func newBanner() *Message {
	return &Message{Type: MessageTypeBanner, Version: ProtocolVersion}
}
