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

// Client is the other end of the development codec, used by scripted
// drivers and tests.
type Client struct {
	rw      io.ReadWriteCloser
	scanner *bufio.Scanner
}

// NewClient wraps a stream and consumes the server's banner, verifying the
// protocol version.
func NewClient(rw io.ReadWriteCloser) (*Client, error) {
	c := &Client{rw: rw, scanner: bufio.NewScanner(rw)}
	c.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	msg, err := c.next()
	if err != nil {
		return nil, err
	}
	if msg.Type != MessageTypeBanner {
		return nil, fmt.Errorf("%w: expected banner, got %q", ErrInvalidMessage, msg.Type)
	}
	if msg.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, msg.Version)
	}
	return c, nil
}

// Send transmits one decoded request.
func (c *Client) Send(req gdb.Request) error {
	msg, err := encodeRequest(req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.rw.Write(data)
	return err
}

// Recv blocks for the next reply or notification.
func (c *Client) Recv() (*Message, error) {
	return c.next()
}

func (c *Client) next() (*Message, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var msg Message
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// Close closes the underlying stream.
func (c *Client) Close() error {
	return c.rw.Close()
}
