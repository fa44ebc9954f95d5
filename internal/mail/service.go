package mail

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/hikyaku/internal/action"
	"github.com/ashita-ai/hikyaku/internal/ctxutil"
	"github.com/ashita-ai/hikyaku/internal/model"
)

// Messages returned to tool callers.
const (
	SpanName       = "sendEmail"
	SuccessMessage = "Email successfully sent"
	SuccessEvent   = "Email sent successfully"
	FailurePrefix  = "Failed to send email"
)

// DeliveryRecorder persists the outcome of each send attempt.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d model.Delivery) error
}

// Service sends email through a Sender under a traced action and records
// each attempt. It is safe for concurrent use.
type Service struct {
	sender      Sender
	recorder    DeliveryRecorder
	exec        *action.Executor[Email]
	defaultFrom string
	logger      *slog.Logger
}

// ServiceConfig holds the collaborators of a Service. Recorder is optional.
type ServiceConfig struct {
	Sender      Sender
	Recorder    DeliveryRecorder
	Tracer      trace.Tracer
	Meter       metric.Meter // nil uses the global meter provider.
	DefaultFrom string
	Logger      *slog.Logger
	SpanKind    trace.SpanKind
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kind := cfg.SpanKind
	if kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}
	opts := []action.Option{
		action.WithSpanKind(kind),
		action.WithSuccessMessage(SuccessMessage),
		action.WithSuccessEvent(SuccessEvent),
		action.WithFailurePrefix(FailurePrefix),
		action.WithFailureStatus(FailurePrefix),
		action.WithLogger(logger),
	}
	if cfg.Meter != nil {
		opts = append(opts, action.WithMeter(cfg.Meter))
	}
	return &Service{
		sender:      cfg.Sender,
		recorder:    cfg.Recorder,
		defaultFrom: cfg.DefaultFrom,
		logger:      logger,
		exec:        action.New[Email](cfg.Tracer, SpanName, opts...),
	}
}

// SendEmail delivers e and returns the classified outcome. An empty From is
// replaced with the configured default sender. SendEmail never returns an
// error; transport failures come back as a Failure result.
func (s *Service) SendEmail(ctx context.Context, e Email) action.Result {
	if e.From == "" {
		e.From = s.defaultFrom
	}

	var traceID string
	res := s.exec.Execute(ctx, e, func(ctx context.Context, e Email) error {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		return s.sender.Send(ctx, e)
	})

	s.record(ctx, e, res, traceID)
	return res
}

// record appends the attempt to the delivery log. Failures are logged and
// never change the result already returned by the executor.
func (s *Service) record(ctx context.Context, e Email, res action.Result, traceID string) {
	if s.recorder == nil {
		return
	}
	status := model.DeliverySent
	if !res.OK() {
		status = model.DeliveryFailed
	}
	d := model.Delivery{
		ID:          uuid.New(),
		Recipient:   e.To,
		Sender:      e.From,
		Subject:     e.Subject,
		BodyLength:  utf8.RuneCountInString(e.Body),
		Status:      status,
		Message:     res.Message(),
		TraceID:     traceID,
		RequestedBy: ctxutil.SubjectFromContext(ctx),
		CreatedAt:   time.Now().UTC(),
	}
	// The caller's context may already be cancelled; the record should
	// still land.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordDelivery(recCtx, d); err != nil {
		s.logger.Warn("mail: record delivery failed", "error", err, "delivery_id", d.ID)
	}
}
