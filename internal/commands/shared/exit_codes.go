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

package shared

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for rewind commands
const (
	ExitSuccess      = 0
	ExitServeFailed  = 1
	ExitInvalidTrace = 2
	ExitConfigError  = 3
	ExitConnection   = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewServeError creates an error for debug session failures
func NewServeError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitServeFailed, Message: msg, Cause: cause}
}

// NewInvalidTraceError creates an error for unreadable or malformed traces
func NewInvalidTraceError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidTrace, Message: msg, Cause: cause}
}

// NewConfigError creates an error for configuration failures
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewConnectionError creates an error for debugger connection failures
func NewConnectionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConnection, Message: msg, Cause: cause}
}

// HandleExitError checks if an error is an ExitError and exits with the
// appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}

	// Default to serve failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitServeFailed)
}
