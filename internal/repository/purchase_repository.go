package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/event-registration/internal/model"
)

// PurchaseRepo provides CRUD operations for purchases.  A purchase is the
// transactional record of a paid registration: it is created PENDING when
// a spot has been reserved and a checkout session opened, and moves
// exactly once into one of the terminal states.  The terminal transition
// is guarded at the SQL layer (status = 'PENDING' predicate) so that a
// finalised purchase can never be rewritten, whatever the callers do.
// All timestamp fields are assumed to be stored in UTC.
type PurchaseRepo struct {
    db *sql.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

const purchaseColumns = `id, user_id, event_id, status, amount_cents, checkout_session_id, provider_event_id, created_at, updated_at`

func scanPurchase(row interface{ Scan(dest ...any) error }) (*model.Purchase, error) {
    var p model.Purchase
    var providerEventID sql.NullString
    err := row.Scan(
        &p.ID, &p.UserID, &p.EventID, &p.Status, &p.AmountCents,
        &p.CheckoutSessionID, &providerEventID, &p.CreatedAt, &p.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    if providerEventID.Valid {
        v := providerEventID.String
        p.ProviderEventID = &v
    }
    return &p, nil
}

// Create inserts a new PENDING purchase and populates the generated ID and
// timestamps on the provided record.
func (r *PurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
    const q = `INSERT INTO purchases (user_id, event_id, status, amount_cents, checkout_session_id)
               VALUES (?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, p.UserID, p.EventID, model.PurchasePending, p.AmountCents, p.CheckoutSessionID)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    p.Status = model.PurchasePending
    // Query back the full row to populate timestamps and defaults.
    const sel = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`
    loaded, err := scanPurchase(r.db.QueryRowContext(ctx, sel, p.ID))
    if err != nil {
        return err
    }
    *p = *loaded
    return nil
}

// GetByID loads a purchase by its primary key.  It returns
// ErrPurchaseNotFound when no row matches.
func (r *PurchaseRepo) GetByID(ctx context.Context, id uint64) (*model.Purchase, error) {
    const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`
    p, err := scanPurchase(r.db.QueryRowContext(ctx, q, id))
    if err == sql.ErrNoRows {
        return nil, ErrPurchaseNotFound
    }
    if err != nil {
        return nil, err
    }
    return p, nil
}

// FindPendingByUserAndEvent returns the open purchase for the (user,
// event) pair, if any.  The purchase workflow calls this inside its lock
// so that a duplicate client submission returns the existing record
// instead of reserving a second spot.  ErrPurchaseNotFound means there is
// no open purchase.
func (r *PurchaseRepo) FindPendingByUserAndEvent(ctx context.Context, userID, eventID uint64) (*model.Purchase, error) {
    const q = `SELECT ` + purchaseColumns + ` FROM purchases
               WHERE user_id = ? AND event_id = ? AND status = ?
               ORDER BY id DESC LIMIT 1`
    p, err := scanPurchase(r.db.QueryRowContext(ctx, q, userID, eventID, model.PurchasePending))
    if err == sql.ErrNoRows {
        return nil, ErrPurchaseNotFound
    }
    if err != nil {
        return nil, err
    }
    return p, nil
}

// MarkTerminal moves a PENDING purchase into the given terminal status and
// records the provider event id that caused the transition (empty for the
// cancel path).  The status = 'PENDING' predicate makes terminal states
// absorbing at the database level: the returned bool is true only when
// this call performed the transition, false when the purchase was already
// terminal.  Callers use that result to decide whether the matching
// counter release is theirs to perform.
func (r *PurchaseRepo) MarkTerminal(ctx context.Context, id uint64, status, providerEventID string) (bool, error) {
    var pe sql.NullString
    if providerEventID != "" {
        pe = sql.NullString{String: providerEventID, Valid: true}
    }
    const q = `UPDATE purchases SET status = ?, provider_event_id = ?
               WHERE id = ? AND status = ?`
    res, err := r.db.ExecContext(ctx, q, status, pe, id, model.PurchasePending)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// ListByUser returns all purchases for the given user, newest first.
// When no purchases exist, an empty slice is returned.
func (r *PurchaseRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Purchase, error) {
    const q = `SELECT ` + purchaseColumns + ` FROM purchases
               WHERE user_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    purchases := make([]model.Purchase, 0)
    for rows.Next() {
        p, err := scanPurchase(rows)
        if err != nil {
            return nil, err
        }
        purchases = append(purchases, *p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return purchases, nil
}
