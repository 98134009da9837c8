package models

import "time"

const EventStatusChanged = "request.status_changed"

// StatusEvent is published to the broker after every lifecycle change,
// including creation (OldStatus is empty then).
type StatusEvent struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	CustomerID string    `json:"customer_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	OldStatus  Status    `json:"old_status,omitempty"`
	NewStatus  Status    `json:"new_status"`
	OccurredAt time.Time `json:"occurred_at"`
}
