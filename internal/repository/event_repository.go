package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/event-registration/internal/model"
)

// EventRepo provides data access to the events table, including the
// bounded registration counter.  The counter is only ever mutated through
// TryReserveSpot and ReleaseSpot; no other code path writes
// registered_count, which keeps the 0 <= count <= capacity invariant in
// one place.
type EventRepo struct {
    db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts a new event and populates the generated ID on the
// provided model.  Status should be one of the model.Event* constants.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
    const q = `INSERT INTO events (title, status, capacity, registered_count, price_cents, starts_at)
               VALUES (?, ?, ?, 0, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, ev.Title, ev.Status, ev.Capacity, ev.PriceCents,
        ev.StartsAt.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    return nil
}

// GetByID loads a single event.  It returns ErrEventNotFound when no row
// matches.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
    const q = `SELECT id, title, status, capacity, registered_count, price_cents, starts_at, created_at, updated_at
               FROM events WHERE id = ?`
    var ev model.Event
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &ev.ID, &ev.Title, &ev.Status, &ev.Capacity, &ev.RegisteredCount,
        &ev.PriceCents, &ev.StartsAt, &ev.CreatedAt, &ev.UpdatedAt,
    )
    if err == sql.ErrNoRows {
        return nil, ErrEventNotFound
    }
    if err != nil {
        return nil, err
    }
    return &ev, nil
}

// ListPublished returns all PUBLISHED events ordered by start time.  Used
// by the public browse endpoint; an empty slice is returned when there
// are none.
func (r *EventRepo) ListPublished(ctx context.Context) ([]model.Event, error) {
    const q = `SELECT id, title, status, capacity, registered_count, price_cents, starts_at, created_at, updated_at
               FROM events WHERE status = ? ORDER BY starts_at`
    rows, err := r.db.QueryContext(ctx, q, model.EventPublished)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    events := make([]model.Event, 0)
    for rows.Next() {
        var ev model.Event
        if err := rows.Scan(
            &ev.ID, &ev.Title, &ev.Status, &ev.Capacity, &ev.RegisteredCount,
            &ev.PriceCents, &ev.StartsAt, &ev.CreatedAt, &ev.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        events = append(events, ev)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return events, nil
}

// TryReserveSpot claims one registration spot on the event by applying a
// single conditional update: the counter is incremented only while it is
// strictly below capacity, checked and applied as one atomic statement.
// This statement, not the in-process lock above it, is the actual
// correctness guarantee against any other writer, including retries,
// resumed workflows and a possible future second instance of this process.
//
// It returns ErrCapacityExceeded when the event is full and
// ErrEventNotFound when the event does not exist.
func (r *EventRepo) TryReserveSpot(ctx context.Context, eventID uint64) error {
    const q = `UPDATE events
               SET registered_count = registered_count + 1
               WHERE id = ? AND registered_count < capacity`
    res, err := r.db.ExecContext(ctx, q, eventID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n > 0 {
        return nil
    }
    // The condition failed: either the event is at capacity or it does
    // not exist at all.  Distinguish the two for the caller.
    var exists int
    err = r.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&exists)
    if err == sql.ErrNoRows {
        return ErrEventNotFound
    }
    if err != nil {
        return err
    }
    return ErrCapacityExceeded
}

// ReleaseSpot returns one previously reserved spot.  The decrement is
// clamped at zero through the registered_count > 0 predicate so that a
// double release can never drive the counter negative; callers are still
// expected to release at most once per successful reservation.
func (r *EventRepo) ReleaseSpot(ctx context.Context, eventID uint64) error {
    const q = `UPDATE events
               SET registered_count = registered_count - 1
               WHERE id = ? AND registered_count > 0`
    _, err := r.db.ExecContext(ctx, q, eventID)
    return err
}
