package workflow

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "collectflow/workflow"

type instruments struct {
	tracer      trace.Tracer
	runs        metric.Int64Counter
	steps       metric.Int64Counter
	runDuration metric.Float64Histogram
}

// newInstruments resolves instruments from the global providers, which are
// no-ops until the binary installs real ones.
func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)

	runs, err := meter.Int64Counter("collectflow.workflow.runs",
		metric.WithDescription("Workflow runs by final status."))
	if err != nil {
		otel.Handle(err)
	}
	steps, err := meter.Int64Counter("collectflow.workflow.steps",
		metric.WithDescription("Workflow steps by kind and outcome."))
	if err != nil {
		otel.Handle(err)
	}
	runDuration, err := meter.Float64Histogram("collectflow.workflow.run.duration",
		metric.WithDescription("Wall time of a workflow run."),
		metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}

	return instruments{
		tracer:      otel.Tracer(instrumentationName),
		runs:        runs,
		steps:       steps,
		runDuration: runDuration,
	}
}
