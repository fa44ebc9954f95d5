package mcp

import (
	"github.com/ashita-ai/hikyaku/internal/model"
)

const (
	maxCompactSubject = 120
	maxCompactMessage = 200
)

// compactDelivery returns a minimal representation of a delivery for MCP
// responses. Long subjects and transport messages are truncated; optional
// fields are dropped when empty.
func compactDelivery(d model.Delivery) map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"recipient":   d.Recipient,
		"sender":      d.Sender,
		"subject":     truncate(d.Subject, maxCompactSubject),
		"body_length": d.BodyLength,
		"status":      d.Status,
		"message":     truncate(d.Message, maxCompactMessage),
		"created_at":  d.CreatedAt,
	}
	if d.TraceID != "" {
		m["trace_id"] = d.TraceID
	}
	if d.RequestedBy != "" {
		m["requested_by"] = d.RequestedBy
	}
	return m
}

// truncate shortens s to maxLen characters, appending "..." when cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
