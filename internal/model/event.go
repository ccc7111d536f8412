package model

import "time"

// Event status values.  Only PUBLISHED events accept registrations.
const (
    EventDraft     = "DRAFT"
    EventPublished = "PUBLISHED"
    EventClosed    = "CLOSED"
)

// Event represents a registrable event as stored in the `events` table.
// Capacity is the hard limit on paid registrations and RegisteredCount is
// the bounded counter guarded by the conditional update in the repository:
// 0 <= RegisteredCount <= Capacity holds at all times, including under
// concurrent purchase attempts.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – display title of the event.
//  Status          – DRAFT, PUBLISHED or CLOSED.
//  Capacity        – maximum number of registrations (immutable while
//                    reservations are in flight).
//  RegisteredCount – current number of outstanding or consumed spots.
//  PriceCents      – registration price in cents.
//  StartsAt        – when the event begins.
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Event struct {
    ID              uint64    // events.id
    Title           string    // events.title
    Status          string    // events.status
    Capacity        uint32    // events.capacity
    RegisteredCount uint32    // events.registered_count
    PriceCents      uint32    // events.price_cents
    StartsAt        time.Time // events.starts_at
    CreatedAt       time.Time // events.created_at
    UpdatedAt       time.Time // events.updated_at
}
