package service

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/event-registration/internal/lock"
    "github.com/iliyamo/event-registration/internal/model"
    "github.com/iliyamo/event-registration/internal/repository"
)

// webhookFixture builds a purchase service and webhook service sharing the
// same stores and lock table, with one pending purchase already created.
type webhookFixture struct {
    events    *fakeEventStore
    purchases *fakePurchaseStore
    notifier  *fakeNotifier
    webhooks  *WebhookService
    purchase  *model.Purchase
}

func newWebhookFixture(t *testing.T) *webhookFixture {
    t.Helper()
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    notifier := &fakeNotifier{}
    locks := lock.New()

    svc := NewPurchaseService(locks, time.Second, events, purchases, &fakeProvider{}, staticSettings{open: true})
    p, _, err := svc.Create(context.Background(), 42, 1)
    require.NoError(t, err)

    return &webhookFixture{
        events:    events,
        purchases: purchases,
        notifier:  notifier,
        webhooks:  NewWebhookService(locks, time.Second, events, purchases, notifier),
        purchase:  p,
    }
}

func TestSucceededEventCompletesPurchase(t *testing.T) {
    f := newWebhookFixture(t)

    err := f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeSucceeded)
    require.NoError(t, err)

    got, err := f.purchases.GetByID(context.Background(), f.purchase.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PurchaseCompleted, got.Status)
    require.NotNil(t, got.ProviderEventID)
    assert.Equal(t, "evt_1", *got.ProviderEventID)
    // capacity stays consumed on success
    assert.Equal(t, uint32(1), f.events.count(1))

    published := f.notifier.published()
    require.Len(t, published, 1)
    assert.Equal(t, f.purchase.ID, published[0].PurchaseID)
    assert.Equal(t, "Summer Conference", published[0].EventTitle)
}

func TestFailedEventReleasesSpot(t *testing.T) {
    f := newWebhookFixture(t)

    err := f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeFailed)
    require.NoError(t, err)

    got, err := f.purchases.GetByID(context.Background(), f.purchase.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PurchaseFailed, got.Status)
    assert.Equal(t, uint32(0), f.events.count(1))
    assert.Empty(t, f.notifier.published())
}

// Redelivery of the same failed event must not release the spot a second
// time: exactly one transition, exactly one release.
func TestFailedEventRedeliveryIsNoOp(t *testing.T) {
    f := newWebhookFixture(t)

    require.NoError(t, f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeFailed))
    require.NoError(t, f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeFailed))

    assert.Equal(t, uint32(0), f.events.count(1))
    assert.Equal(t, 1, f.events.releaseCalls())
}

func TestSucceededEventRedeliveryNotifiesOnce(t *testing.T) {
    f := newWebhookFixture(t)

    require.NoError(t, f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeSucceeded))
    require.NoError(t, f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeSucceeded))

    assert.Len(t, f.notifier.published(), 1)
}

// Concurrent redeliveries serialise on the event-id lock and still
// produce a single transition and a single release.
func TestConcurrentRedeliveries(t *testing.T) {
    f := newWebhookFixture(t)

    var wg sync.WaitGroup
    for i := 0; i < 5; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            err := f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeFailed)
            assert.NoError(t, err)
        }()
    }
    wg.Wait()

    assert.Equal(t, uint32(0), f.events.count(1))
    assert.Equal(t, 1, f.events.releaseCalls())
}

// A publish failure is logged and swallowed; the committed transition
// stands and the handler reports success so the provider does not
// redeliver forever.
func TestNotifierFailureDoesNotFailHandler(t *testing.T) {
    f := newWebhookFixture(t)
    f.notifier.err = errors.New("broker down")

    err := f.webhooks.HandleTerminalEvent(context.Background(), "evt_1", f.purchase.ID, OutcomeSucceeded)
    require.NoError(t, err)

    got, err := f.purchases.GetByID(context.Background(), f.purchase.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PurchaseCompleted, got.Status)
}

func TestUnknownPurchaseFails(t *testing.T) {
    f := newWebhookFixture(t)
    err := f.webhooks.HandleTerminalEvent(context.Background(), "evt_9", 999, OutcomeSucceeded)
    assert.ErrorIs(t, err, repository.ErrPurchaseNotFound)
}

func TestEmptyEventIDRejected(t *testing.T) {
    f := newWebhookFixture(t)
    err := f.webhooks.HandleTerminalEvent(context.Background(), "", f.purchase.ID, OutcomeSucceeded)
    assert.Error(t, err)
}

// A cancel racing a webhook for the same purchase must resolve to exactly
// one terminal transition and one release, whichever side wins.
func TestCancelRacingWebhook(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    locks := lock.New()
    svc := NewPurchaseService(locks, time.Second, events, purchases, &fakeProvider{}, staticSettings{open: true})
    webhooks := NewWebhookService(locks, time.Second, events, purchases, nil)

    p, _, err := svc.Create(context.Background(), 42, 1)
    require.NoError(t, err)

    var wg sync.WaitGroup
    wg.Add(2)
    go func() {
        defer wg.Done()
        _ = svc.Cancel(context.Background(), 42, p.ID)
    }()
    go func() {
        defer wg.Done()
        _ = webhooks.HandleTerminalEvent(context.Background(), "evt_race", p.ID, OutcomeFailed)
    }()
    wg.Wait()

    got, err := purchases.GetByID(context.Background(), p.ID)
    require.NoError(t, err)
    assert.True(t, got.IsTerminal())
    assert.Equal(t, uint32(0), events.count(1))
    assert.Equal(t, 1, events.releaseCalls())
}
