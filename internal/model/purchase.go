package model

import "time"

// Purchase status values.  PENDING is the only non-terminal state; the
// three terminal states are absorbing and a purchase transitions exactly
// once, either through the cancel path or through a payment webhook.
const (
    PurchasePending   = "PENDING"
    PurchaseCompleted = "COMPLETED"
    PurchaseCancelled = "CANCELLED"
    PurchaseFailed    = "FAILED"
)

// Purchase records a user's paid registration attempt for an event as
// stored in the `purchases` table.  While a purchase is PENDING it holds
// one reserved spot on the event's bounded counter; the spot is returned
// on CANCELLED/FAILED and kept (consumed) on COMPLETED.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – user who initiated the purchase.
//  EventID           – event being registered for.
//  Status            – PENDING, COMPLETED, CANCELLED or FAILED.
//  AmountCents       – amount charged in cents.
//  CheckoutSessionID – provider checkout session id, assigned once at
//                      creation and used as the idempotency anchor for
//                      session creation.
//  ProviderEventID   – id of the provider event that finalised the
//                      purchase (null until a webhook is applied).
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Purchase struct {
    ID                uint64    // purchases.id
    UserID            uint64    // purchases.user_id
    EventID           uint64    // purchases.event_id
    Status            string    // purchases.status
    AmountCents       uint32    // purchases.amount_cents
    CheckoutSessionID string    // purchases.checkout_session_id
    ProviderEventID   *string   // purchases.provider_event_id (nullable)
    CreatedAt         time.Time // purchases.created_at
    UpdatedAt         time.Time // purchases.updated_at
}

// IsTerminal reports whether the purchase has reached an absorbing state.
func (p *Purchase) IsTerminal() bool {
    return p.Status != PurchasePending
}
