// Package service implements the checkout core: holds, orders, payments,
// refunds and the expiry sweeper. Services own the state machines and call
// storage only through the ports declared in ports.go.
package service

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/ticketing-core/internal/queue"
)

var tracer = otel.Tracer("github.com/iliyamo/ticketing-core/internal/service")

// startSpan opens a span for a service operation. Mutating operations are
// detached from caller cancellation: once started they run to a
// well-defined status even if the client goes away.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(context.WithoutCancel(ctx), name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish sends ev and logs a delivery failure. The state change it
// describes is already committed.
func publish(ctx context.Context, p EventPublisher, ev queue.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("[events] publish failed type=%s id=%s: %v", ev.Type, ev.ID, err)
	}
}

// dedupe drops repeated ids and keeps the first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
