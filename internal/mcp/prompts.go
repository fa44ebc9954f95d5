package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// compose-email: walks the agent through drafting and sending one message.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("compose-email",
			mcplib.WithPromptDescription("Draft a plain-text email and send it with sendEmail"),
			mcplib.WithArgument("recipient",
				mcplib.ArgumentDescription("Who the email is for (address)"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("purpose",
				mcplib.ArgumentDescription("What the email needs to achieve"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("tone",
				mcplib.ArgumentDescription("Optional tone, e.g. formal, friendly, terse"),
			),
		),
		s.handleComposeEmailPrompt,
	)
}

func (s *Server) handleComposeEmailPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	recipient := request.Params.Arguments["recipient"]
	if recipient == "" {
		return nil, fmt.Errorf("recipient argument is required")
	}
	purpose := request.Params.Arguments["purpose"]
	if purpose == "" {
		return nil, fmt.Errorf("purpose argument is required")
	}
	tone := request.Params.Arguments["tone"]
	if tone == "" {
		tone = "neutral and concise"
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Compose an email to %s", recipient),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write an email to %s.

Purpose: %s
Tone: %s

1. CALL recentDeliveries to make sure this message has not already been sent.

2. DRAFT a short subject line (no line breaks) and a plain-text body.

3. CALL sendEmail with to="%s" and your subject and body.

4. REPORT the tool's result text verbatim. If it starts with
   "Failed to send email:", explain the reason instead of retrying.`,
						recipient, purpose, tone, recipient),
				},
			},
		},
	}, nil
}
