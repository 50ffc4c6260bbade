// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cip

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerFor returns the configured tracer, or the global no-op-unless-
// configured otel tracer named "cip" if none was supplied.
func tracerFor(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer("cip")
}

// startSpan begins a span bracketing one of the engine's named
// lifecycle operations. The engine uses it only for the TCP connect
// attempt ("cip.connect"); the registration handshake and outbound
// writes get no span. Callers must call the returned function to end it.
func startSpan(ctx context.Context, t trace.Tracer, name string) (context.Context, func(err error)) {
	ctx, span := tracerFor(t).Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
