package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hikyaku/internal/model"
)

func TestParseDeliveryURI(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name      string
		uri       string
		wantID    uuid.UUID
		errSubstr string
	}{
		{name: "valid", uri: "hikyaku://deliveries/" + id.String(), wantID: id},
		{name: "empty id", uri: "hikyaku://deliveries/", errSubstr: "invalid delivery URI"},
		{name: "wrong prefix", uri: "other://deliveries/" + id.String(), errSubstr: "invalid delivery URI"},
		{name: "nested path", uri: "hikyaku://deliveries/" + id.String() + "/raw", errSubstr: "invalid delivery URI"},
		{name: "not a uuid", uri: "hikyaku://deliveries/recent", errSubstr: "invalid delivery id"},
		{name: "empty string", uri: "", errSubstr: "invalid delivery URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDeliveryURI(tt.uri)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got)
		})
	}
}

func TestDeliveryResources(t *testing.T) {
	d := model.Delivery{
		ID:         uuid.New(),
		Recipient:  "a@x.com",
		Sender:     "b@x.com",
		Subject:    "Hi",
		BodyLength: 5,
		Status:     model.DeliverySent,
		Message:    "Email successfully sent",
		TraceID:    "0af7651916cd43dd8448eb211c80319c",
		CreatedAt:  time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	s := newTestServer(&fakeMailer{}, &memLog{deliveries: []model.Delivery{d}})
	ctx := context.Background()

	read := func(uri string, h func(context.Context, mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error)) (map[string]any, error) {
		var req mcplib.ReadResourceRequest
		req.Params.URI = uri
		contents, err := h(ctx, req)
		if err != nil {
			return nil, err
		}
		require.Len(t, contents, 1)
		text := contents[0].(mcplib.TextResourceContents)
		assert.Equal(t, uri, text.URI)
		assert.Equal(t, "application/json", text.MIMEType)
		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
		return out, nil
	}

	recent, err := read(recentDeliveriesURI, s.handleDeliveriesRecent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, recent["total"])

	one, err := read(deliveryURIPrefix+d.ID.String(), s.handleDelivery)
	require.NoError(t, err)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", one["trace_id"])
	assert.Equal(t, "sent", one["status"])

	_, err = read(deliveryURIPrefix+uuid.NewString(), s.handleDelivery)
	assert.ErrorContains(t, err, "not found")
}

func TestComposeEmailPrompt(t *testing.T) {
	s := newTestServer(&fakeMailer{}, nil)

	var req mcplib.GetPromptRequest
	req.Params.Arguments = map[string]string{"recipient": "ada@example.com", "purpose": "confirm Tuesday's meeting"}
	res, err := s.handleComposeEmailPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(mcplib.TextContent).Text
	assert.Contains(t, text, `to="ada@example.com"`)
	assert.Contains(t, text, "confirm Tuesday's meeting")
	assert.Contains(t, text, "neutral and concise")

	req.Params.Arguments = map[string]string{"recipient": "ada@example.com"}
	_, err = s.handleComposeEmailPrompt(context.Background(), req)
	assert.ErrorContains(t, err, "purpose")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo", 4))
}
