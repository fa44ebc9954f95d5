package mail

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// LogSender is the development transport used when no SMTP relay is
// configured. It logs the envelope and never delivers anything.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs e and reports success unless ctx is already done.
func (s *LogSender) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "mail: email not delivered (dev mode, SMTP not configured)",
		"to", e.To,
		"from", e.From,
		"subject", e.Subject,
		"body_length", utf8.RuneCountInString(e.Body),
	)
	return nil
}
