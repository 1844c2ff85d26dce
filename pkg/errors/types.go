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

package errors

import "fmt"

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist: an unknown checkpoint
// ID, a vanished thread, a register with no protocol mapping.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "checkpoint", "thread")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProtocolError represents a malformed or unsupported debugger request.
// These surface to the client as ordinary protocol failure replies and are
// never fatal to the serve loop.
type ProtocolError struct {
	// Request names the request kind that failed
	Request string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Request != "" {
		return fmt.Sprintf("protocol error in %s: %s", e.Request, e.Message)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// EngineError represents a fault reported by the replay engine.
// Use this for seek failures, diversion spawn failures, and stepping faults.
type EngineError struct {
	// Op is the engine operation that failed (e.g., "seek", "fork-diversion")
	Op string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("engine %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("engine %s failed", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid
// config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "listen.port")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ConnectionError represents a failure of the debugger connection itself.
// Connection errors terminate the serve loop; there is no automatic
// reconnection.
type ConnectionError struct {
	// Op describes what the connection was doing (e.g., "accept", "recv")
	Op string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("connection %s failed", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
