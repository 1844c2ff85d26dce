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

package gdb

// Register is an abstract register identifier using the protocol's register
// numbering for the debuggee architecture. The bridge never interprets the
// number itself; mapping to architectural state is the engine's concern.
type Register int

// MaxRegisterSize is the largest register payload the bridge will carry
// (enough for 512-bit vector registers).
const MaxRegisterSize = 64

// RegisterValue is the value of one register. Defined is false when the
// register has no meaningful value in the current execution mode; the
// connection reports such registers as unavailable rather than zero.
type RegisterValue struct {
	Reg     Register
	Value   []byte
	Defined bool
}

// Size returns the width of the value in bytes.
func (v RegisterValue) Size() int {
	return len(v.Value)
}
