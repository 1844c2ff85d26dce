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

package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tombee/rewind/pkg/gdb"
)

// Conn implements gdb.Connection over a JSON-lines stream. Reply and notify
// methods swallow write errors; a broken stream surfaces on the next
// RecvRequest, which is where the serve loop acts on it.
type Conn struct {
	rw       io.ReadWriteCloser
	scanner  *bufio.Scanner
	writeErr error
}

// NewConnection wraps a stream with the development codec, sending the
// version banner. It has the gdb.ConnectionFactory shape.
func NewConnection(rw io.ReadWriteCloser) (gdb.Connection, error) {
	c := &Conn{rw: rw, scanner: bufio.NewScanner(rw)}
	c.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if err := c.send(newBanner()); err != nil {
		return nil, err
	}
	return c, nil
}

// RecvRequest blocks for the next request line.
func (c *Conn) RecvRequest() (gdb.Request, error) {
	if c.writeErr != nil {
		return gdb.Request{}, c.writeErr
	}

	for {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return gdb.Request{}, err
			}
			return gdb.Request{}, io.EOF
		}
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return gdb.Request{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		switch msg.Type {
		case MessageTypeBanner:
			if msg.Version != ProtocolVersion {
				return gdb.Request{}, fmt.Errorf("%w: %q", ErrUnsupportedVersion, msg.Version)
			}
			continue
		case MessageTypeRequest:
			return decodeRequest(&msg)
		default:
			return gdb.Request{}, fmt.Errorf("%w: unexpected %q from client", ErrInvalidMessage, msg.Type)
		}
	}
}

func (c *Conn) send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := c.rw.Write(data); err != nil {
		return err
	}
	return nil
}

// reply sends a reply verb with a payload, recording the first write
// failure for the next RecvRequest.
func (c *Conn) reply(typ MessageType, kind string, body any) {
	if c.writeErr != nil {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		c.writeErr = err
		return
	}
	if err := c.send(&Message{Type: typ, Kind: kind, Body: raw}); err != nil {
		c.writeErr = err
	}
}

type threadListBody struct {
	Threads []threadIDBody `json:"threads"`
}

type okBody struct {
	OK bool `json:"ok"`
}

type regValueBody struct {
	Reg     int    `json:"reg"`
	Value   []byte `json:"value,omitempty"`
	Defined bool   `json:"defined"`
}

type memBody struct {
	OK   bool   `json:"ok"`
	Data []byte `json:"data,omitempty"`
}

type stopBody struct {
	Thread    threadIDBody `json:"thread"`
	Signal    int          `json:"signal"`
	WatchAddr uint64       `json:"watchAddr,omitempty"`
}

func wireThread(t gdb.ThreadID) threadIDBody {
	return threadIDBody{PID: t.PID, TID: t.TID}
}

func wireRegValue(v gdb.RegisterValue) regValueBody {
	return regValueBody{Reg: int(v.Reg), Value: v.Value, Defined: v.Defined}
}

func (c *Conn) ReplyGetCurrentThread(thread gdb.ThreadID) {
	c.reply(MessageTypeReply, "current-thread", wireThread(thread))
}

func (c *Conn) ReplyGetThreadList(threads []gdb.ThreadID) {
	body := threadListBody{Threads: make([]threadIDBody, 0, len(threads))}
	for _, t := range threads {
		body.Threads = append(body.Threads, wireThread(t))
	}
	c.reply(MessageTypeReply, "thread-list", body)
}

func (c *Conn) ReplyGetIsThreadAlive(alive bool) {
	c.reply(MessageTypeReply, "thread-alive", okBody{OK: alive})
}

func (c *Conn) ReplyGetThreadExtraInfo(info string) {
	c.reply(MessageTypeReply, "thread-extra-info", map[string]string{"info": info})
}

func (c *Conn) ReplySelectThread(ok bool) {
	c.reply(MessageTypeReply, "select-thread", okBody{OK: ok})
}

func (c *Conn) ReplyGetReg(value gdb.RegisterValue) {
	c.reply(MessageTypeReply, "reg", wireRegValue(value))
}

func (c *Conn) ReplyGetRegs(values []gdb.RegisterValue) {
	body := make([]regValueBody, 0, len(values))
	for _, v := range values {
		body = append(body, wireRegValue(v))
	}
	c.reply(MessageTypeReply, "regs", body)
}

func (c *Conn) ReplySetReg(ok bool) {
	c.reply(MessageTypeReply, "set-reg", okBody{OK: ok})
}

func (c *Conn) ReplyGetMem(data []byte) {
	c.reply(MessageTypeReply, "mem", memBody{OK: data != nil, Data: data})
}

func (c *Conn) ReplySetMem(ok bool) {
	c.reply(MessageTypeReply, "set-mem", okBody{OK: ok})
}

func (c *Conn) ReplyWatchpointRequest(ok bool) {
	c.reply(MessageTypeReply, "watchpoint", okBody{OK: ok})
}

func (c *Conn) ReplyDetach() {
	c.reply(MessageTypeReply, "detach", okBody{OK: true})
}

func (c *Conn) ReplyRestartFailed() {
	c.reply(MessageTypeReply, "restart-failed", okBody{OK: false})
}

func (c *Conn) NotifyNoSuchThread(req gdb.Request) {
	c.reply(MessageTypeNotify, "no-such-thread", map[string]string{
		"request": req.Kind.String(),
		"thread":  req.Target.String(),
	})
}

func (c *Conn) NotifyStop(thread gdb.ThreadID, signal int, watchAddr uint64) {
	c.reply(MessageTypeNotify, "stop", stopBody{
		Thread:    wireThread(thread),
		Signal:    signal,
		WatchAddr: watchAddr,
	})
}

func (c *Conn) NotifyExitCode(code int) {
	c.reply(MessageTypeNotify, "exit", map[string]int{"code": code})
}

func (c *Conn) NotifyExitSignal(signal int) {
	c.reply(MessageTypeNotify, "exit-signal", map[string]int{"signal": signal})
}

func (c *Conn) Close() error {
	return c.rw.Close()
}
