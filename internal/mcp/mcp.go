// Package mcp implements the Model Context Protocol server for hikyaku.
//
// Agents reach the mail service through the sendEmail tool and inspect past
// attempts through the recentDeliveries tool and the hikyaku://deliveries
// resources. The transports (streamable HTTP, SSE, stdio) live in the server
// package and the composition root; this package only builds the capability
// table.
package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hikyaku/internal/action"
	"github.com/ashita-ai/hikyaku/internal/mail"
	"github.com/ashita-ai/hikyaku/internal/model"
)

// Mailer sends one email and reports the classified outcome.
type Mailer interface {
	SendEmail(ctx context.Context, e mail.Email) action.Result
}

// DeliveryLog is the read side of the delivery store.
type DeliveryLog interface {
	RecentDeliveries(ctx context.Context, limit int) ([]model.Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (model.Delivery, error)
}

// duplicateWindow is how long an identical send is remembered for the
// duplicate-send nudge.
const duplicateWindow = 10 * time.Minute

// Server wraps the MCP server with hikyaku's mail service.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	mailer     Mailer
	deliveries DeliveryLog
	sends      *sendTracker
	tools      []mcpserver.ServerTool
	logger     *slog.Logger
	version    string
}

// New creates and configures an MCP server with every tool, resource and
// prompt registered.
func New(mailer Mailer, deliveries DeliveryLog, logger *slog.Logger, version string) *Server {
	s := &Server{
		mailer:     mailer,
		deliveries: deliveries,
		sends:      newSendTracker(duplicateWindow),
		logger:     logger,
		version:    version,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hikyaku",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.tools = s.toolTable()
	s.mcpServer.AddTools(s.tools...)
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ToolNames lists the registered tools in table order.
func (s *Server) ToolNames() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Tool.Name
	}
	return names
}

const serverInstructions = `hikyaku sends email on behalf of agents.

Call sendEmail once per message you intend to deliver. A failed send comes
back as an error result whose text explains why; do not retry blindly.
Use recentDeliveries to check what has already gone out before resending.`

// errorResult builds a tool-level error the calling agent can read.
func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// toolResult maps an action outcome onto the tool response: Success carries
// its message as text, Failure does the same with IsError set.
func toolResult(res action.Result) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: res.Message()},
		},
		IsError: !res.OK(),
	}
}
