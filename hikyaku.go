// Package hikyaku is the public API for embedding the hikyaku mail server.
//
// hikyaku exposes one operation to AI agents over MCP: send an email. Every
// send runs inside an OpenTelemetry span and is classified as Success or
// Failure; the caller always gets a message back, never a transport error.
//
//	app, err := hikyaku.New(
//	    hikyaku.WithVersion(version),
//	    hikyaku.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: hikyaku (root) imports
// internal/*, but internal/* never imports hikyaku (root). Email and Result
// are standalone structs; conversions live here because this is the only file
// that sees both sides of the boundary.
package hikyaku

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/hikyaku/internal/auth"
	"github.com/ashita-ai/hikyaku/internal/config"
	"github.com/ashita-ai/hikyaku/internal/mail"
	"github.com/ashita-ai/hikyaku/internal/mcp"
	"github.com/ashita-ai/hikyaku/internal/ratelimit"
	"github.com/ashita-ai/hikyaku/internal/server"
	"github.com/ashita-ai/hikyaku/internal/storage"
	"github.com/ashita-ai/hikyaku/internal/telemetry"
)

// retentionInterval is how often old delivery records are pruned.
const retentionInterval = time.Hour

// App is the hikyaku server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	store        storage.Store
	mailer       *mail.Service
	mcp          *mcp.Server
	srv          *server.Server // nil for the stdio transport
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	stdin        io.Reader
	stdout       io.Writer
	logger       *slog.Logger
	version      string
}

// New initialises the hikyaku server. It loads configuration, opens the
// delivery log and applies its migrations, wires all subsystems, and returns
// a ready-to-run App. It does NOT start any goroutines or accept connections;
// call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := resolveConfig(o)
	if err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("hikyaku starting", "version", version, "transport", cfg.Transport, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	logger.Info("delivery log", "backend", store.Backend())

	cleanup := func() {
		_ = store.Close()
		_ = otelShutdown(context.Background())
	}

	mailer := mail.NewService(mail.ServiceConfig{
		Sender:      newSender(cfg, o.sender, logger),
		Recorder:    store,
		Tracer:      telemetry.Tracer("hikyaku/mail"),
		Meter:       telemetry.Meter("hikyaku/mail"),
		DefaultFrom: cfg.DefaultFrom,
		Logger:      logger,
	})
	mcpSrv := mcp.New(mailer, store, logger, version)

	a := &App{
		cfg:          cfg,
		store:        store,
		mailer:       mailer,
		mcp:          mcpSrv,
		otelShutdown: otelShutdown,
		stdin:        o.stdin,
		stdout:       o.stdout,
		logger:       logger,
		version:      version,
	}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}

	if cfg.Transport == config.TransportStdio {
		return a, nil
	}

	var verifier *auth.Verifier
	if cfg.AuthEnabled() {
		verifier, err = auth.NewVerifier(cfg.JWTPublicKeyPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("auth: %w", err)
		}
		logger.Info("auth: bearer tokens required")
	} else {
		logger.Warn("auth: disabled (no HIKYAKU_JWT_PUBLIC_KEY); any caller can send mail")
	}

	if cfg.RateLimitEnabled {
		a.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		a.limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	a.srv = server.New(server.ServerConfig{
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Verifier:            verifier,
		Limiter:             a.limiter,
		Health:              store,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		BaseURL:             cfg.BaseURL,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		Middlewares:         middlewares,
	})

	return a, nil
}

// resolveConfig loads configuration from the environment unless one was
// supplied, then applies option overrides and re-validates.
func resolveConfig(o resolvedOptions) (config.Config, error) {
	var cfg config.Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		// Load .env file if present (non-fatal; production won't have one).
		_ = godotenv.Load()
		loaded, err := config.Load()
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != nil {
		cfg.DatabaseURL = *o.databaseURL
	}
	if o.transport != "" {
		cfg.Transport = o.transport
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newSender picks the mail transport: an explicit override, the SMTP relay
// when one is configured, or the log-only dev sender.
func newSender(cfg config.Config, override Sender, logger *slog.Logger) mail.Sender {
	switch {
	case override != nil:
		logger.Info("mail transport: custom")
		return senderAdapter{override}
	case cfg.SMTPConfigured():
		logger.Info("mail transport: smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
	default:
		logger.Warn("mail transport: log only (no HIKYAKU_SMTP_HOST); messages are not delivered")
		return mail.NewLogSender(logger)
	}
}

// senderAdapter wraps a public Sender for internal use.
type senderAdapter struct{ s Sender }

func (a senderAdapter) Send(ctx context.Context, e mail.Email) error {
	return a.s.Send(ctx, Email(e))
}

// SendEmail sends one message through the same traced path the MCP tool
// uses. It does not require Run.
func (a *App) SendEmail(ctx context.Context, e Email) Result {
	res := a.mailer.SendEmail(ctx, mail.Email(e))
	return Result{OK: res.OK(), Message: res.Message()}
}

// Handler returns the root HTTP handler, or nil for the stdio transport.
func (a *App) Handler() http.Handler {
	if a.srv == nil {
		return nil
	}
	return a.srv.Handler()
}

// ToolNames returns the names of the registered MCP tools.
func (a *App) ToolNames() []string {
	return a.mcp.ToolNames()
}

// Run starts the configured transport and the retention loop, then blocks
// until ctx is cancelled, the stdio stream ends, or a fatal server error
// occurs. On return, Close is called automatically.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.retentionLoop(gctx)
		return nil
	})

	if a.srv == nil {
		g.Go(func() error {
			// The session is over when the client closes stdin.
			defer cancel()
			stdio := mcpserver.NewStdioServer(a.mcp.MCPServer())
			stdio.SetErrorLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelError))
			a.logger.Info("mcp stdio transport listening")
			err := stdio.Listen(gctx, a.stdin, a.stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		g.Go(a.srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
			defer shutdownCancel()
			if err := a.srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http shutdown error", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if cerr := a.Close(context.Background()); cerr != nil {
		a.logger.Error("close error", "error", cerr)
	}
	return err
}

// Close releases the limiter, the delivery log and the telemetry providers.
// Run calls it on return; call it directly only when Run was never started.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("hikyaku shutting down")
	var errs []error
	if a.limiter != nil {
		errs = append(errs, a.limiter.Close())
	}
	errs = append(errs, a.store.Close(), a.otelShutdown(ctx))
	a.logger.Info("hikyaku stopped")
	return errors.Join(errs...)
}

// retentionLoop prunes the delivery log once at startup and then every
// retentionInterval.
func (a *App) retentionLoop(ctx context.Context) {
	if _, disabled := a.store.(storage.NoopStore); disabled || a.cfg.DeliveryRetention <= 0 {
		return
	}
	a.pruneOnce(ctx)

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pruneOnce(ctx)
		}
	}
}

func (a *App) pruneOnce(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := storage.PruneDeliveries(opCtx, a.store, a.cfg.DeliveryRetention, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("delivery retention failed", "error", err)
		}
		return
	}
	if n > 0 {
		a.logger.Info("delivery retention: pruned", "deleted", n, "retention", a.cfg.DeliveryRetention)
	}
}
