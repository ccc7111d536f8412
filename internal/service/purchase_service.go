// Package service implements the transaction-safety core of the backend:
// the purchase workflow that owns capacity reservations and the idempotent
// processor for payment webhooks.  Both are built on the same three
// guarantees, layered from weakest to strongest: the in-process lock
// serialises same-process races, the guarded status UPDATE makes terminal
// purchase states absorbing, and the conditional counter UPDATE enforces
// the capacity bound against any writer.
package service

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/event-registration/internal/config"
    "github.com/iliyamo/event-registration/internal/lock"
    "github.com/iliyamo/event-registration/internal/model"
    "github.com/iliyamo/event-registration/internal/payment"
    "github.com/iliyamo/event-registration/internal/repository"
)

// ErrSoldOut is returned when the event has no remaining capacity.  It is
// a business condition, not a system fault; handlers map it to a 409.
var ErrSoldOut = errors.New("event sold out")

// ErrRegistrationClosed is returned when the runtime registration switch
// is off or the event is not open for registration.
var ErrRegistrationClosed = errors.New("registration closed")

// EventStore is the slice of the event repository the workflow needs.
type EventStore interface {
    GetByID(ctx context.Context, id uint64) (*model.Event, error)
    TryReserveSpot(ctx context.Context, eventID uint64) error
    ReleaseSpot(ctx context.Context, eventID uint64) error
}

// PurchaseStore is the slice of the purchase repository the workflow and
// the webhook processor need.
type PurchaseStore interface {
    Create(ctx context.Context, p *model.Purchase) error
    GetByID(ctx context.Context, id uint64) (*model.Purchase, error)
    FindPendingByUserAndEvent(ctx context.Context, userID, eventID uint64) (*model.Purchase, error)
    MarkTerminal(ctx context.Context, id uint64, status, providerEventID string) (bool, error)
    ListByUser(ctx context.Context, userID uint64) ([]model.Purchase, error)
}

// SettingsSource provides per-request runtime settings snapshots.
type SettingsSource interface {
    Snapshot(ctx context.Context) config.RuntimeSettings
}

// PurchaseService owns the reservation lifecycle: it is the only code
// path that takes spots from an event's bounded counter, and together
// with the webhook processor the only one that returns them.
type PurchaseService struct {
    locks       *lock.Service
    lockTimeout time.Duration
    events      EventStore
    purchases   PurchaseStore
    provider    payment.Provider
    settings    SettingsSource
}

// NewPurchaseService wires the workflow.  All dependencies must be
// non-nil except settings, which may be nil when dynamic configuration is
// not in use.
func NewPurchaseService(locks *lock.Service, lockTimeout time.Duration, events EventStore, purchases PurchaseStore, provider payment.Provider, settings SettingsSource) *PurchaseService {
    if locks == nil || events == nil || purchases == nil || provider == nil {
        panic("nil dependency passed to NewPurchaseService")
    }
    return &PurchaseService{
        locks:       locks,
        lockTimeout: lockTimeout,
        events:      events,
        purchases:   purchases,
        provider:    provider,
        settings:    settings,
    }
}

// Create attempts to register the user for the event.  The whole attempt
// runs under the lock keyed by (user, event), so concurrent duplicate
// submissions from the same client serialise here and the second one
// returns the first one's pending purchase instead of reserving a second
// spot.  The returned bool is true when a new purchase was created, false
// when an existing pending purchase was returned.
//
// Order of operations inside the lock matters: the spot is reserved
// before the provider call, and released again on every failure path
// after it, so a purchase record exists only while a spot is held for it.
func (s *PurchaseService) Create(ctx context.Context, userID, eventID uint64) (*model.Purchase, bool, error) {
    var out *model.Purchase
    created := false
    key := fmt.Sprintf("purchase:create:%d:%d", userID, eventID)
    err := s.locks.WithLock(ctx, key, s.lockTimeout, func() error {
        if s.settings != nil {
            if snap := s.settings.Snapshot(ctx); !snap.RegistrationOpen {
                return ErrRegistrationClosed
            }
        }
        existing, err := s.purchases.FindPendingByUserAndEvent(ctx, userID, eventID)
        if err == nil {
            out = existing
            return nil
        }
        if !errors.Is(err, repository.ErrPurchaseNotFound) {
            return err
        }

        ev, err := s.events.GetByID(ctx, eventID)
        if err != nil {
            return err
        }
        if ev.Status != model.EventPublished {
            return ErrRegistrationClosed
        }

        if err := s.events.TryReserveSpot(ctx, eventID); err != nil {
            if errors.Is(err, repository.ErrCapacityExceeded) {
                return ErrSoldOut
            }
            return err
        }

        sess, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutRequest{
            Reference:   uuid.NewString(),
            AmountCents: ev.PriceCents,
            Currency:    "EUR",
            Description: ev.Title,
        })
        if err != nil {
            // The spot was taken but no purchase will exist to return it
            // later, so give it back before surfacing the failure.
            _ = s.events.ReleaseSpot(ctx, eventID)
            return err
        }

        p := &model.Purchase{
            UserID:            userID,
            EventID:           eventID,
            Status:            model.PurchasePending,
            AmountCents:       ev.PriceCents,
            CheckoutSessionID: sess.ID,
        }
        if err := s.purchases.Create(ctx, p); err != nil {
            _ = s.events.ReleaseSpot(ctx, eventID)
            return err
        }
        out = p
        created = true
        return nil
    })
    if err != nil {
        return nil, false, err
    }
    return out, created, nil
}

// Cancel moves the caller's pending purchase to CANCELLED and returns its
// reserved spot.  A purchase that is already terminal is left untouched
// and the call succeeds as a no-op, which makes client retries of the
// cancel request harmless.  Only the owner may cancel.
//
// No lock is taken here: the guarded MarkTerminal update is the sole
// arbiter of who performs the transition, so a cancel racing a webhook
// for the same purchase resolves to exactly one transition and exactly
// one counter release.
func (s *PurchaseService) Cancel(ctx context.Context, userID, purchaseID uint64) error {
    p, err := s.purchases.GetByID(ctx, purchaseID)
    if err != nil {
        return err
    }
    if p.UserID != userID {
        return repository.ErrForbidden
    }
    if p.IsTerminal() {
        return nil
    }
    applied, err := s.purchases.MarkTerminal(ctx, p.ID, model.PurchaseCancelled, "")
    if err != nil {
        return err
    }
    if !applied {
        // Lost the race against a webhook; the winner owns the release.
        return nil
    }
    return s.events.ReleaseSpot(ctx, p.EventID)
}

// ListForUser returns the user's purchases, newest first.
func (s *PurchaseService) ListForUser(ctx context.Context, userID uint64) ([]model.Purchase, error) {
    return s.purchases.ListByUser(ctx, userID)
}

// Get returns a single purchase, enforcing ownership.
func (s *PurchaseService) Get(ctx context.Context, userID, purchaseID uint64) (*model.Purchase, error) {
    p, err := s.purchases.GetByID(ctx, purchaseID)
    if err != nil {
        return nil, err
    }
    if p.UserID != userID {
        return nil, repository.ErrForbidden
    }
    return p, nil
}
