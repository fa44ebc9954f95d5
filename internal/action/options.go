package action

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Executor.
type Option func(*config)

type config struct {
	kind           trace.SpanKind
	newRoot        bool
	successMessage string
	successEvent   string
	failurePrefix  string
	failureStatus  string
	meter          metric.Meter
	logger         *slog.Logger
	onState        func(State)
}

func defaultConfig(name string) config {
	return config{
		kind:           trace.SpanKindInternal,
		successMessage: name + " succeeded",
		failurePrefix:  name + " failed",
		failureStatus:  name + " failed",
	}
}

// WithSpanKind sets the span kind. Defaults to trace.SpanKindInternal.
func WithSpanKind(kind trace.SpanKind) Option {
	return func(c *config) { c.kind = kind }
}

// WithNewRoot starts every span as a new trace root instead of a child of the
// span carried by the caller's context.
func WithNewRoot() Option {
	return func(c *config) { c.newRoot = true }
}

// WithSuccessMessage sets the message carried by Success results.
func WithSuccessMessage(msg string) Option {
	return func(c *config) { c.successMessage = msg }
}

// WithSuccessEvent adds a span event with this name when the action succeeds.
// Empty (the default) records no event.
func WithSuccessEvent(name string) Option {
	return func(c *config) { c.successEvent = name }
}

// WithFailurePrefix sets the prefix of Failure messages. The action's error
// text follows after ": ".
func WithFailurePrefix(prefix string) Option {
	return func(c *config) { c.failurePrefix = prefix }
}

// WithFailureStatus sets the description attached to the ERROR span status.
func WithFailureStatus(desc string) Option {
	return func(c *config) { c.failureStatus = desc }
}

// WithMeter records invocation counts and durations on meter instead of the
// global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(c *config) { c.meter = m }
}

// WithLogger logs each completed invocation at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStateHook calls fn on every lifecycle transition, including CREATED.
// fn runs on the invoking goroutine and must not block.
func WithStateHook(fn func(State)) Option {
	return func(c *config) { c.onState = fn }
}
