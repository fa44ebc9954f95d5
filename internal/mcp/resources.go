package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hikyaku/internal/model"
	"github.com/ashita-ai/hikyaku/internal/storage"
)

const (
	recentDeliveriesURI = "hikyaku://deliveries/recent"
	deliveryURIPrefix   = "hikyaku://deliveries/"
)

func (s *Server) registerResources() {
	// hikyaku://deliveries/recent: the latest send attempts.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			recentDeliveriesURI,
			"Recent Deliveries",
			mcplib.WithResourceDescription("The most recent send attempts, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDeliveriesRecent,
	)

	// hikyaku://deliveries/{id}: one send attempt.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			deliveryURIPrefix+"{id}",
			"Delivery",
			mcplib.WithTemplateDescription("A single send attempt by ID"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleDelivery,
	)
}

func (s *Server) handleDeliveriesRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	deliveries, err := s.deliveries.RecentDeliveries(ctx, model.DefaultRecentDeliveries)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent deliveries: %w", err)
	}
	compact := make([]map[string]any, len(deliveries))
	for i, d := range deliveries {
		compact[i] = compactDelivery(d)
	}
	return jsonResource(request.Params.URI, map[string]any{
		"deliveries": compact,
		"total":      len(compact),
	})
}

func (s *Server) handleDelivery(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseDeliveryURI(uri)
	if err != nil {
		return nil, err
	}
	d, err := s.deliveries.GetDelivery(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("mcp: delivery %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: get delivery: %w", err)
	}
	return jsonResource(uri, d)
}

// parseDeliveryURI extracts the UUID from hikyaku://deliveries/{id}.
func parseDeliveryURI(uri string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(uri, deliveryURIPrefix)
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return uuid.Nil, fmt.Errorf("mcp: invalid delivery URI: %s", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid delivery id %q: %w", raw, err)
	}
	return id, nil
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal resource: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
