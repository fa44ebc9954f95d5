// Package model defines the data types shared across hikyaku's packages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the terminal classification of one send attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is one row of the delivery log. Message bodies are never stored;
// only their length is kept, mirroring what goes onto the trace span.
type Delivery struct {
	ID          uuid.UUID      `json:"id"`
	Recipient   string         `json:"recipient"`
	Sender      string         `json:"sender"`
	Subject     string         `json:"subject"`
	BodyLength  int            `json:"body_length"`
	Status      DeliveryStatus `json:"status"`
	Message     string         `json:"message"`
	TraceID     string         `json:"trace_id,omitempty"`
	RequestedBy string         `json:"requested_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// List bounds for queries against the delivery log.
const (
	DefaultRecentDeliveries = 10
	MaxRecentDeliveries     = 100
)

// ClampLimit bounds a caller-supplied list limit to [1, MaxRecentDeliveries],
// substituting def for non-positive values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxRecentDeliveries {
		return MaxRecentDeliveries
	}
	return limit
}
