package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hikyaku/internal/ctxutil"
	"github.com/ashita-ai/hikyaku/internal/mail"
	"github.com/ashita-ai/hikyaku/internal/model"
)

// toolTable is the explicit list of tools this server offers. Order is the
// order clients see in tools/list.
func (s *Server) toolTable() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcplib.NewTool("sendEmail",
				mcplib.WithDescription(`Send a plain-text email.

Returns "Email successfully sent" on success. On failure the result is
flagged as an error and its text starts with "Failed to send email:"
followed by the transport's reason.`),
				mcplib.WithDestructiveHintAnnotation(false),
				mcplib.WithIdempotentHintAnnotation(false),
				mcplib.WithOpenWorldHintAnnotation(true),
				mcplib.WithString("to",
					mcplib.Description("Recipient address, e.g. ada@example.com or \"Ada <ada@example.com>\". Comma-separate several recipients."),
					mcplib.Required(),
				),
				mcplib.WithString("subject",
					mcplib.Description("Subject line. Must not contain line breaks."),
					mcplib.Required(),
				),
				mcplib.WithString("body",
					mcplib.Description("Plain-text body. May be empty."),
					mcplib.Required(),
				),
				mcplib.WithString("from",
					mcplib.Description("Optional sender address. Defaults to the server's configured sender."),
				),
			),
			Handler: s.handleSendEmail,
		},
		{
			Tool: mcplib.NewTool("recentDeliveries",
				mcplib.WithDescription("List the most recent send attempts, newest first. Message bodies are never stored; only their length is shown."),
				mcplib.WithReadOnlyHintAnnotation(true),
				mcplib.WithIdempotentHintAnnotation(true),
				mcplib.WithOpenWorldHintAnnotation(false),
				mcplib.WithNumber("limit",
					mcplib.Description("Maximum number of records to return"),
					mcplib.Min(1),
					mcplib.Max(model.MaxRecentDeliveries),
					mcplib.DefaultNumber(model.DefaultRecentDeliveries),
				),
			),
			Handler: s.handleRecentDeliveries,
		},
	}
}

func (s *Server) handleSendEmail(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var e mail.Email
	var err error
	if e.To, err = request.RequireString("to"); err != nil {
		return errorResult("to is required"), nil
	}
	if e.Subject, err = request.RequireString("subject"); err != nil {
		return errorResult("subject is required"), nil
	}
	if e.Body, err = request.RequireString("body"); err != nil {
		return errorResult("body is required"), nil
	}
	e.From = request.GetString("from", "")

	caller := callerKey(ctx)
	now := time.Now()
	prevAt, seen := s.sends.LastSent(caller, e, now)

	res := s.mailer.SendEmail(ctx, e)
	result := toolResult(res)
	if !res.OK() {
		return result, nil
	}

	s.sends.Record(caller, e, now)
	if seen {
		result.Content = append(result.Content, mcplib.TextContent{
			Type: "text",
			Text: fmt.Sprintf("Note: an identical email to %s was already sent %s ago. Only resend when the user explicitly asked for a duplicate.",
				e.To, now.Sub(prevAt).Round(time.Second)),
		})
	}
	return result, nil
}

func (s *Server) handleRecentDeliveries(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := model.ClampLimit(request.GetInt("limit", model.DefaultRecentDeliveries), model.DefaultRecentDeliveries)

	deliveries, err := s.deliveries.RecentDeliveries(ctx, limit)
	if err != nil {
		s.logger.Error("mcp: list deliveries failed", "error", err)
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	compact := make([]map[string]any, len(deliveries))
	for i, d := range deliveries {
		compact[i] = compactDelivery(d)
	}
	resultData, err := json.MarshalIndent(map[string]any{
		"deliveries": compact,
		"total":      len(compact),
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode failed: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

// callerKey identifies the caller for the duplicate-send nudge: the JWT
// subject when authenticated, otherwise the MCP session.
func callerKey(ctx context.Context) string {
	if sub := ctxutil.SubjectFromContext(ctx); sub != "" {
		return "sub:" + sub
	}
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		return "session:" + session.SessionID()
	}
	return ""
}
