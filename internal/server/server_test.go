package server_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ashita-ai/hikyaku/internal/auth"
	"github.com/ashita-ai/hikyaku/internal/mail"
	"github.com/ashita-ai/hikyaku/internal/mcp"
	"github.com/ashita-ai/hikyaku/internal/model"
	"github.com/ashita-ai/hikyaku/internal/ratelimit"
	"github.com/ashita-ai/hikyaku/internal/server"
	"github.com/ashita-ai/hikyaku/internal/storage"
)

// outbox is a mail.Sender that keeps what it was given and fails on demand.
type outbox struct {
	mu   sync.Mutex
	sent []mail.Email
	err  error
}

func (o *outbox) Send(_ context.Context, e mail.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, e)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type testEnv struct {
	srv    *httptest.Server
	outbox *outbox
	token  string
}

type envOption func(*server.ServerConfig)

func withLimiter(l ratelimit.Limiter) envOption {
	return func(c *server.ServerConfig) { c.Limiter = l }
}

func withBodyLimit(n int64) envOption {
	return func(c *server.ServerConfig) { c.MaxRequestBodyBytes = n }
}

func withHealth(h server.HealthChecker) envOption {
	return func(c *server.ServerConfig) { c.Health = h }
}

// newTestEnv wires the full stack: an in-memory SQLite delivery log, the mail
// service over an outbox sender, the MCP capability table and the HTTP
// server with bearer auth enabled.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.OpenSQLite(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	token, _, err := auth.IssueToken(priv, "agent-7", "Tester", time.Hour)
	require.NoError(t, err)

	box := &outbox{}
	svc := mail.NewService(mail.ServiceConfig{
		Sender:      box,
		Recorder:    store,
		Tracer:      noop.NewTracerProvider().Tracer("test"),
		DefaultFrom: "noreply@hikyaku.dev",
		Logger:      logger,
	})
	mcpSrv := mcp.New(svc, store, logger, "test")

	// The SSE transport advertises an absolute /message URL, so the handler
	// is installed after the listener address is known.
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := server.ServerConfig{
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Verifier:            auth.NewVerifierFromKey(pub),
		Health:              store,
		Version:             "test",
		BaseURL:             ts.URL,
		MaxRequestBodyBytes: 1 << 20,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	handler = server.New(cfg).Handler()

	return &testEnv{srv: ts, outbox: box, token: token}
}

func initialize(t *testing.T, c *mcpclient.Client) {
	t.Helper()
	_, err := c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
}

func (e *testEnv) streamableClient(t *testing.T) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		e.srv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + e.token,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	initialize(t, c)
	return c
}

func sendEmailRequest(to, subject, body string) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: "sendEmail",
			Arguments: map[string]any{
				"to":      to,
				"subject": subject,
				"body":    body,
			},
		},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body struct {
		Data model.HealthResponse `json:"data"`
		Meta model.ResponseMeta   `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, "test", body.Data.Version)
	assert.Equal(t, "sqlite", body.Data.DeliveryLog)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body.Meta.RequestID)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }
func (downStore) Backend() string            { return "postgres" }

func TestHealthUnhealthy(t *testing.T) {
	env := newTestEnv(t, withHealth(downStore{}))

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Data.Status)
	assert.Equal(t, "postgres (unreachable)", body.Data.DeliveryLog)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "missing authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "invalid authorization format"},
		{"empty token", "Bearer ", "invalid authorization format"},
		{"bad token", "Bearer not.a.jwt", "invalid or expired token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/mcp", strings.NewReader(`{}`))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var apiErr model.APIError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
			assert.Equal(t, model.ErrCodeUnauthorized, apiErr.Error.Code)
			assert.Equal(t, tt.msg, apiErr.Error.Message)
			assert.NotEmpty(t, apiErr.Meta.RequestID)
		})
	}
}

func TestMCPStreamableSendAndList(t *testing.T) {
	env := newTestEnv(t)
	c := env.streamableClient(t)
	ctx := context.Background()

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"sendEmail", "recentDeliveries"}, names)

	res, err := c.CallTool(ctx, sendEmailRequest("ops@example.com", "Deploy finished", "All green."))
	require.NoError(t, err)
	require.False(t, res.IsError, "sendEmail returned error: %v", res.Content)
	require.NotEmpty(t, res.Content)
	assert.Equal(t, mail.SuccessMessage, mcplib.GetTextFromContent(res.Content[0]))
	assert.Equal(t, 1, env.outbox.count())

	recent, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "recentDeliveries"},
	})
	require.NoError(t, err)
	require.False(t, recent.IsError)

	var payload struct {
		Deliveries []map[string]any `json:"deliveries"`
		Total      int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(mcplib.GetTextFromContent(recent.Content[0])), &payload))
	require.Equal(t, 1, payload.Total)
	d := payload.Deliveries[0]
	assert.Equal(t, "ops@example.com", d["recipient"])
	assert.Equal(t, "noreply@hikyaku.dev", d["sender"])
	assert.Equal(t, string(model.DeliverySent), d["status"])
	assert.Equal(t, "agent-7", d["requested_by"])
}

func TestMCPStreamableSendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.outbox.err = errors.New("relay unavailable")
	c := env.streamableClient(t)

	res, err := c.CallTool(context.Background(), sendEmailRequest("ops@example.com", "Hi", "body"))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, mail.FailurePrefix+": relay unavailable", mcplib.GetTextFromContent(res.Content[0]))
}

func TestMCPOverSSE(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := mcpclient.NewSSEMCPClient(env.srv.URL+"/sse",
		mcptransport.WithHeaders(map[string]string{"Authorization": "Bearer " + env.token}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Start(ctx))
	initialize(t, c)

	res, err := c.CallTool(ctx, sendEmailRequest("dev@example.com", "Over SSE", "hello"))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, env.outbox.count())
}

func TestRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	t.Cleanup(func() { _ = limiter.Close() })
	env := newTestEnv(t, withLimiter(limiter))

	post := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/message", strings.NewReader(`{}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+env.token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	first := post()
	_ = first.Body.Close()
	assert.NotEqual(t, http.StatusTooManyRequests, first.StatusCode)

	second := post()
	defer func() { _ = second.Body.Close() }()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	// Health stays reachable while the caller is throttled.
	health, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, withBodyLimit(64))

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/mcp", bytes.NewReader(bytes.Repeat([]byte("x"), 1024)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	var apiErr model.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, model.ErrCodeTooLarge, apiErr.Error.Code)
}
