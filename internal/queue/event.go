// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair for purchase notifications.
package queue

// PurchaseCompletedEvent is published after a purchase reaches COMPLETED.
// It contains enough information for downstream consumers to log, notify,
// or trigger analytics without querying the primary database.  Delivery is
// best-effort: the status transition is already committed when this event
// is published, and a publish failure is logged and swallowed.
type PurchaseCompletedEvent struct {
    PurchaseID      uint64 `json:"purchase_id"`
    UserID          uint64 `json:"user_id"`
    EventID         uint64 `json:"event_id"`
    EventTitle      string `json:"event_title"`
    AmountCents     uint32 `json:"amount_cents"`
    ProviderEventID string `json:"provider_event_id"`
    CompletedAt     string `json:"completed_at"`
}
