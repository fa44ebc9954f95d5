package hikyaku

import (
	"context"
	"net/http"
)

// Sender delivers an Email. When provided via WithSender, it replaces the
// transport selected from config (SMTP relay or the log-only dev sender).
// Send is called inside the traced action, so its error becomes the Failure
// message verbatim. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, e Email) error

// Send calls f(ctx, e).
func (f SenderFunc) Send(ctx context.Context, e Email) error { return f(ctx, e) }

// Middleware wraps an http.Handler with additional behavior.
// Registered via WithMiddleware and applied outermost-first.
type Middleware func(http.Handler) http.Handler
