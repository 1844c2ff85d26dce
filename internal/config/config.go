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

// Package config loads the bridge's external configuration surface: the
// listen port, the debugger auto-launch settings, and the attach target
// predicate. Everything else (trace storage, CLI parsing) lives elsewhere.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	rewinderrors "github.com/tombee/rewind/pkg/errors"
)

// Config represents the complete rewind configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Debugger DebuggerConfig `yaml:"debugger"`
	Target   TargetConfig   `yaml:"target"`
	Log      LogConfig      `yaml:"log"`
}

// ListenConfig configures the debugger connection listener.
type ListenConfig struct {
	// Port is the TCP port to listen on. 0 lets the OS choose.
	// Environment: REWIND_PORT
	Port int `yaml:"port"`

	// Host is the address to bind. Only loopback makes sense; the
	// protocol carries no authentication.
	// Default: 127.0.0.1
	Host string `yaml:"host,omitempty"`
}

// DebuggerConfig configures automatic launch of the external debugger
// client.
type DebuggerConfig struct {
	// AutoLaunch spawns the debugger client once the bridge is
	// listening, handing it the connection parameters.
	// Default: false (wait for a manual connection)
	AutoLaunch bool `yaml:"auto_launch"`

	// Path is the debugger client binary.
	// Environment: REWIND_GDB
	// Default: gdb
	Path string `yaml:"path,omitempty"`

	// CommandFile is an extra command file passed to the client in
	// addition to the generated init script. Empty means none.
	CommandFile string `yaml:"command_file,omitempty"`
}

// TargetConfig is the attach target predicate: replay advances until the
// predicate is satisfied, then the debugger is attached.
type TargetConfig struct {
	// PID is the process to debug, or 0 for the first process seen.
	PID int `yaml:"pid,omitempty"`

	// RequireExec waits for the target process to exec before attaching.
	RequireExec bool `yaml:"require_exec,omitempty"`

	// Event is the minimum trace event count before attaching.
	Event uint64 `yaml:"event,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Port: 0,
			Host: "127.0.0.1",
		},
		Debugger: DebuggerConfig{
			AutoLaunch: false,
			Path:       "gdb",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with the usual precedence: defaults, then the
// YAML file (the default path if configPath is empty, missing file is not
// an error), then environment variables. Flag overrides are applied by the
// command layer on the returned value.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(path, configPath != ""); err != nil {
		return nil, err
	}
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges the YAML file at path into the config. A missing
// file is only an error when the path was given explicitly.
func (c *Config) loadFromFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return &rewinderrors.ConfigError{Reason: "reading config file", Cause: err}
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return &rewinderrors.ConfigError{Reason: "parsing config file", Cause: err}
	}
	return nil
}

// loadFromEnv applies environment variable overrides.
func (c *Config) loadFromEnv() {
	if port := os.Getenv("REWIND_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Listen.Port = p
		}
	}
	if gdb := os.Getenv("REWIND_GDB"); gdb != "" {
		c.Debugger.Path = gdb
	}
	if level := os.Getenv("REWIND_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return &rewinderrors.ConfigError{Key: "listen.port", Reason: "must be 0-65535"}
	}
	if c.Target.PID < 0 {
		return &rewinderrors.ConfigError{Key: "target.pid", Reason: "must not be negative"}
	}
	if c.Debugger.AutoLaunch && c.Debugger.Path == "" {
		return &rewinderrors.ConfigError{Key: "debugger.path", Reason: "required when auto_launch is enabled"}
	}
	return nil
}

// DefaultPath returns the default config file path,
// <config dir>/config.yaml.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
