// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names exported through the OTel meter provider.
const (
	MeterName          = "playerd.scheduler"
	CommandCounter     = "playerd_scheduler_commands_total"
	AwaitResultCounter = "playerd_scheduler_await_total"
)

// emitCommandObs records one executed command. The meter provider is looked
// up per call.
func emitCommandObs(ctx context.Context, kind, result string, fromClient bool) {
	meter := otel.GetMeterProvider().Meter(MeterName)
	total, err := meter.Int64Counter(CommandCounter, metric.WithDescription("Commands executed by the scheduler"))
	if err != nil {
		return
	}
	total.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
		attribute.Bool("client", fromClient),
	))
}

// emitAwaitObs records how an Await ended.
func emitAwaitObs(ctx context.Context, outcome string) {
	meter := otel.GetMeterProvider().Meter(MeterName)
	total, err := meter.Int64Counter(AwaitResultCounter, metric.WithDescription("Await outcomes"))
	if err != nil {
		return
	}
	total.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
