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

// ErrorClassifier defines methods for programmatic error handling.
// Errors that implement this interface can be classified by category for
// log fields, metric labels, or specific handling paths.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "not_found", "protocol", "engine", "config", "connection"
	ErrorType() string
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// ErrorType implements ErrorClassifier.
func (e *ProtocolError) ErrorType() string { return "protocol" }

// ErrorType implements ErrorClassifier.
func (e *EngineError) ErrorType() string { return "engine" }

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// ErrorType implements ErrorClassifier.
func (e *ConnectionError) ErrorType() string { return "connection" }

// TypeOf returns the classified category of err, or "internal" when err
// carries no classification.
func TypeOf(err error) string {
	var c ErrorClassifier
	if As(err, &c) {
		return c.ErrorType()
	}
	return "internal"
}
