package hikyaku

import (
	"io"
	"log/slog"

	"github.com/ashita-ai/hikyaku/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	cfg         *config.Config
	port        int
	databaseURL *string
	transport   string
	logger      *slog.Logger
	version     string
	sender      Sender
	middlewares []Middleware
	stdin       io.Reader
	stdout      io.Writer
}

// WithConfig supplies a complete configuration instead of reading the
// environment. Other options still apply on top of it.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.cfg = &cfg }
}

// WithPort overrides the TCP port from config (HIKYAKU_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the delivery log location from config
// (DATABASE_URL env var). An empty string disables the log.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = &url }
}

// WithTransport overrides HIKYAKU_TRANSPORT ("http" or "stdio").
func WithTransport(transport string) Option {
	return func(o *resolvedOptions) { o.transport = transport }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint,
// the MCP handshake and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSender replaces the mail transport selected from config.
func WithSender(s Sender) Option {
	return func(o *resolvedOptions) { o.sender = s }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithStdio sets the streams used by the stdio transport. Defaults to
// os.Stdin and os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(o *resolvedOptions) {
		o.stdin = in
		o.stdout = out
	}
}
