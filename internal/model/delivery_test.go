package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hikyaku/internal/model"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, model.DefaultRecentDeliveries},
		{0, model.DefaultRecentDeliveries},
		{1, 1},
		{model.MaxRecentDeliveries, model.MaxRecentDeliveries},
		{model.MaxRecentDeliveries + 1, model.MaxRecentDeliveries},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.ClampLimit(tt.in, model.DefaultRecentDeliveries), "ClampLimit(%d)", tt.in)
	}
}

func TestDeliveryJSONOmitsEmptyOptionalFields(t *testing.T) {
	d := model.Delivery{
		ID:         uuid.MustParse("3f1c2b7e-52a4-4c1e-9d55-0d6c2f3b9a10"),
		Recipient:  "a@x.com",
		Sender:     "b@x.com",
		Subject:    "Hi",
		BodyLength: 5,
		Status:     model.DeliverySent,
		Message:    "Email successfully sent",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "sent", m["status"])
	assert.EqualValues(t, 5, m["body_length"])
	assert.NotContains(t, m, "trace_id")
	assert.NotContains(t, m, "requested_by")
	assert.NotContains(t, m, "body")
}
