package service

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/event-registration/internal/lock"
    "github.com/iliyamo/event-registration/internal/model"
    "github.com/iliyamo/event-registration/internal/queue"
)

// Outcome is the terminal result reported by a payment webhook.
type Outcome string

const (
    OutcomeSucceeded Outcome = "succeeded"
    OutcomeFailed    Outcome = "failed"
)

// Notifier dispatches best-effort notifications after a completed
// purchase.  Implemented by queue.Publisher.
type Notifier interface {
    PublishPurchaseCompleted(ctx context.Context, ev queue.PurchaseCompletedEvent) error
}

// WebhookService applies terminal payment events to purchases.  The
// provider may redeliver the same event any number of times; processing
// is made idempotent by serialising on the provider event id and treating
// an already-terminal purchase as successfully processed.
type WebhookService struct {
    locks       *lock.Service
    lockTimeout time.Duration
    events      EventStore
    purchases   PurchaseStore
    notifier    Notifier
}

// NewWebhookService wires the processor.  notifier may be nil, in which
// case completion notifications are skipped.
func NewWebhookService(locks *lock.Service, lockTimeout time.Duration, events EventStore, purchases PurchaseStore, notifier Notifier) *WebhookService {
    if locks == nil || events == nil || purchases == nil {
        panic("nil dependency passed to NewWebhookService")
    }
    return &WebhookService{
        locks:       locks,
        lockTimeout: lockTimeout,
        events:      events,
        purchases:   purchases,
        notifier:    notifier,
    }
}

// HandleTerminalEvent processes one delivery of a provider terminal event
// for the given purchase.  Redeliveries of the same event id queue behind
// each other on the lock; whichever copy runs first performs the
// transition and every later copy finds the purchase already terminal and
// returns success without touching anything.
//
// On a failed outcome the purchase's reserved spot is returned exactly
// once, by the same call that performed the transition.  On success the
// spot stays consumed.  Notification dispatch is best-effort: a publish
// failure is logged and never rolls back the committed transition or
// fails the webhook.
//
// If the lock cannot be acquired within its budget the call fails with
// lock.ErrTimeout; there is no internal retry, the provider's redelivery
// policy is relied on instead.
func (s *WebhookService) HandleTerminalEvent(ctx context.Context, providerEventID string, purchaseID uint64, outcome Outcome) error {
    if providerEventID == "" {
        return fmt.Errorf("webhook: empty provider event id")
    }
    return s.locks.WithLock(ctx, "webhook:event:"+providerEventID, s.lockTimeout, func() error {
        p, err := s.purchases.GetByID(ctx, purchaseID)
        if err != nil {
            return err
        }
        if p.IsTerminal() {
            return nil // redelivery of an already-processed event
        }

        status := model.PurchaseCompleted
        if outcome == OutcomeFailed {
            status = model.PurchaseFailed
        }
        applied, err := s.purchases.MarkTerminal(ctx, p.ID, status, providerEventID)
        if err != nil {
            return err
        }
        if !applied {
            // A cancel slipped in between the load and the update; that
            // path already released the spot.
            return nil
        }

        if status == model.PurchaseFailed {
            if err := s.events.ReleaseSpot(ctx, p.EventID); err != nil {
                return err
            }
            return nil
        }

        if s.notifier != nil {
            ev := queue.PurchaseCompletedEvent{
                PurchaseID:      p.ID,
                UserID:          p.UserID,
                EventID:         p.EventID,
                AmountCents:     p.AmountCents,
                ProviderEventID: providerEventID,
                CompletedAt:     time.Now().UTC().Format(time.RFC3339),
            }
            if evt, err := s.events.GetByID(ctx, p.EventID); err == nil {
                ev.EventTitle = evt.Title
            }
            if err := s.notifier.PublishPurchaseCompleted(ctx, ev); err != nil {
                log.Printf("webhook: purchase %d completed but notification failed: %v", p.ID, err)
            }
        }
        return nil
    })
}
