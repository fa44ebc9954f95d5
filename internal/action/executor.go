package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request is implemented by the values an Executor runs actions for. Each
// call to Attributes describes the request as span attributes. Bulky or
// sensitive fields must be summarized (for example as a length), never
// copied verbatim.
type Request interface {
	Attributes() []attribute.KeyValue
}

// Action performs the side effect for req. A nil error means success. The
// context carries the executor's span; actions that block should honor its
// cancellation.
type Action[R Request] func(ctx context.Context, req R) error

// Executor runs actions under a span named after the action. It holds no
// per-invocation state and is safe for concurrent use.
type Executor[R Request] struct {
	tracer trace.Tracer
	name   string
	cfg    config

	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

// New creates an Executor whose spans are named name and started on tracer.
// A nil tracer uses the global tracer provider.
func New[R Request](tracer trace.Tracer, name string, opts ...Option) *Executor[R] {
	if tracer == nil {
		tracer = otel.Tracer("hikyaku/action")
	}
	cfg := defaultConfig(name)
	for _, fn := range opts {
		fn(&cfg)
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter("hikyaku/action")
	}

	e := &Executor[R]{tracer: tracer, name: name, cfg: cfg}

	// Instruments are best-effort; a nil instrument is skipped on record.
	if c, err := cfg.meter.Int64Counter("hikyaku.action.invocations",
		metric.WithDescription("Traced action invocations by outcome")); err == nil {
		e.invocations = c
	}
	if h, err := cfg.meter.Float64Histogram("hikyaku.action.duration",
		metric.WithDescription("Traced action duration"),
		metric.WithUnit("ms")); err == nil {
		e.duration = h
	}
	return e
}

// Name returns the span name used for every invocation.
func (e *Executor[R]) Name() string { return e.name }

// Execute runs act exactly once with req and returns the classified outcome.
// The span is ended before Execute returns, whatever act does.
func (e *Executor[R]) Execute(ctx context.Context, req R, act Action[R]) (res Result) {
	inv := e.start(ctx)
	defer func() {
		if r := recover(); r != nil {
			res = inv.fail(fmt.Errorf("panic: %v", r), trace.WithStackTrace(true))
		}
		inv.close()
	}()

	inv.span.SetAttributes(req.Attributes()...)

	inv.transition(StateRunning)
	if err := act(inv.ctx, req); err != nil {
		return inv.fail(err)
	}
	return inv.succeed()
}

func (e *Executor[R]) start(ctx context.Context) *invocation[R] {
	opts := []trace.SpanStartOption{trace.WithSpanKind(e.cfg.kind)}
	if e.cfg.newRoot {
		opts = append(opts, trace.WithNewRoot())
	}
	spanCtx, span := e.tracer.Start(ctx, e.name, opts...)

	inv := &invocation[R]{
		exec:  e,
		ctx:   spanCtx,
		span:  span,
		start: time.Now(),
	}
	inv.transition(StateCreated)
	return inv
}

// invocation is the state of one Execute call. It is owned by the calling
// goroutine; only close is guarded, since an action may leak its context.
type invocation[R Request] struct {
	exec  *Executor[R]
	ctx   context.Context
	span  trace.Span
	start time.Time
	state State

	closeOnce sync.Once
}

func (inv *invocation[R]) transition(s State) {
	inv.state = s
	hook := inv.exec.cfg.onState
	if hook == nil {
		return
	}
	// Hooks observe the lifecycle; a panicking hook must not change it.
	defer func() { _ = recover() }()
	hook(s)
}

func (inv *invocation[R]) succeed() Result {
	cfg := inv.exec.cfg
	inv.span.SetStatus(codes.Ok, "")
	if cfg.successEvent != "" {
		inv.span.AddEvent(cfg.successEvent)
	}
	inv.transition(StateSucceeded)
	return Success(cfg.successMessage)
}

func (inv *invocation[R]) fail(err error, opts ...trace.EventOption) Result {
	cfg := inv.exec.cfg
	inv.span.RecordError(err, opts...)
	if !inv.state.Terminal() {
		inv.span.SetStatus(codes.Error, cfg.failureStatus)
		inv.transition(StateFailed)
	}
	return Failure(cfg.failurePrefix + ": " + err.Error())
}

// close ends the span and records metrics. Only the first call has effect.
func (inv *invocation[R]) close() {
	inv.closeOnce.Do(func() {
		outcome := "failure"
		if inv.state == StateSucceeded {
			outcome = "success"
		}
		inv.span.End()

		e := inv.exec
		elapsed := time.Since(inv.start)
		attrs := metric.WithAttributes(
			attribute.String("action", e.name),
			attribute.String("outcome", outcome),
		)
		if e.invocations != nil {
			e.invocations.Add(inv.ctx, 1, attrs)
		}
		if e.duration != nil {
			e.duration.Record(inv.ctx, float64(elapsed.Microseconds())/1000, attrs)
		}
		if e.cfg.logger != nil {
			e.cfg.logger.Debug("action completed",
				"action", e.name,
				"outcome", outcome,
				"duration_ms", elapsed.Milliseconds(),
				"trace_id", inv.span.SpanContext().TraceID().String(),
			)
		}

		inv.transition(StateClosed)
	})
}
