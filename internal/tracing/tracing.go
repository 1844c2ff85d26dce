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

// Package tracing wires the OpenTelemetry SDK for the bridge. Spans cover
// the coarse session phases (replay to target, attach, debug loop); the
// console exporter is the only backend, since a debug bridge session is a
// local, short-lived thing.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	rewinderrors "github.com/tombee/rewind/pkg/errors"
)

// Provider owns the tracer provider registered as the process global.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New creates a provider exporting spans as JSON lines to w and registers
// it globally. When w is nil spans are recorded but never exported, which
// keeps the instrumentation seams exercised at zero cost.
func New(serviceName, version string, w io.Writer) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids merge conflicts with the default resource
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, rewinderrors.Wrap(err, "creating trace resource")
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if w != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, rewinderrors.Wrap(err, "creating trace exporter")
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
