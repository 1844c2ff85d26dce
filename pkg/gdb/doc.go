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

// Package gdb defines the decoded GDB remote serial protocol taxonomy used
// by the debug bridge: requests, thread identifiers, register values, and
// the Connection boundary over which requests and replies flow.
//
// Wire encoding and decoding ($...#xx framing, run-length compression,
// no-ack mode) is deliberately outside this package. A Connection
// implementation owns the codec; the bridge core only depends on blocking
// receive/send semantics over already-decoded values.
package gdb
