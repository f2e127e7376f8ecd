// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracing provides the scan/parse span instrumentation used when
// --verbose is set. Unlike the teacher's telemetry package, there is no
// OTLP exporter here: this daemon accepts no remote IPC (spec's explicit
// non-goal), so the only trace sink it may ever write to is the local
// process's stderr, scoped to the same process that asked for --verbose.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// New builds a tracer for one daemon lifetime. When verbose is false the
// exporter writes to io.Discard: spans are still created (so instrumented
// code paths don't need a separate no-op branch) but cost only their own
// construction, never an I/O call.
func New(serviceName string, verbose bool) (trace.Tracer, Shutdown, error) {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(serviceName), tp.Shutdown, nil
}
