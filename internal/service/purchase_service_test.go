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

func publishedEvent(id uint64, capacity uint32) *model.Event {
    return &model.Event{
        ID:         id,
        Title:      "Summer Conference",
        Status:     model.EventPublished,
        Capacity:   capacity,
        PriceCents: 2500,
        StartsAt:   time.Now().Add(24 * time.Hour),
    }
}

func newPurchaseService(events *fakeEventStore, purchases *fakePurchaseStore, provider *fakeProvider) *PurchaseService {
    return NewPurchaseService(lock.New(), time.Second, events, purchases, provider, staticSettings{open: true})
}

func TestCreateReservesAndPersists(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 10))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    p, created, err := svc.Create(context.Background(), 42, 1)
    require.NoError(t, err)
    assert.True(t, created)
    assert.Equal(t, model.PurchasePending, p.Status)
    assert.Equal(t, uint32(2500), p.AmountCents)
    assert.Equal(t, "cs_1", p.CheckoutSessionID)
    assert.Equal(t, uint32(1), events.count(1))
}

func TestCreateSoldOut(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 1))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    _, _, err := svc.Create(context.Background(), 1, 1)
    require.NoError(t, err)

    _, _, err = svc.Create(context.Background(), 2, 1)
    assert.ErrorIs(t, err, ErrSoldOut)
    assert.Equal(t, uint32(1), events.count(1))
}

// Two concurrent attempts race for the last spot: exactly one wins and
// the counter ends at the limit.
func TestCreateConcurrentLastSpot(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 1))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    var wg sync.WaitGroup
    errs := make([]error, 2)
    for i := 0; i < 2; i++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            _, _, errs[n] = svc.Create(context.Background(), uint64(n+1), 1)
        }(i)
    }
    wg.Wait()

    winners, losers := 0, 0
    for _, err := range errs {
        switch {
        case err == nil:
            winners++
        case errors.Is(err, ErrSoldOut):
            losers++
        default:
            t.Fatalf("unexpected error: %v", err)
        }
    }
    assert.Equal(t, 1, winners)
    assert.Equal(t, 1, losers)
    assert.Equal(t, uint32(1), events.count(1))
}

// The capacity bound holds for any number of concurrent attempts.
func TestCreateNeverExceedsCapacity(t *testing.T) {
    const capacity = 3
    events := newFakeEventStore(publishedEvent(1, capacity))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    var wg sync.WaitGroup
    var mu sync.Mutex
    succeeded := 0
    for i := 0; i < 20; i++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            if _, _, err := svc.Create(context.Background(), uint64(n+1), 1); err == nil {
                mu.Lock()
                succeeded++
                mu.Unlock()
            }
        }(i)
    }
    wg.Wait()

    assert.Equal(t, capacity, succeeded)
    assert.Equal(t, uint32(capacity), events.count(1))
}

// A duplicate submission for the same (user, event) pair returns the
// existing pending purchase instead of reserving a second spot.
func TestCreateDuplicateReturnsExisting(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 10))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    first, created, err := svc.Create(context.Background(), 7, 1)
    require.NoError(t, err)
    require.True(t, created)

    second, created, err := svc.Create(context.Background(), 7, 1)
    require.NoError(t, err)
    assert.False(t, created)
    assert.Equal(t, first.ID, second.ID)
    assert.Equal(t, uint32(1), events.count(1))
    assert.Equal(t, 1, provider.callCount())
}

func TestCreateConcurrentDuplicateSubmissions(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 10))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    const attempts = 5
    ids := make([]uint64, attempts)
    var wg sync.WaitGroup
    for i := 0; i < attempts; i++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            p, _, err := svc.Create(context.Background(), 7, 1)
            if assert.NoError(t, err) {
                ids[n] = p.ID
            }
        }(i)
    }
    wg.Wait()

    for _, id := range ids {
        assert.Equal(t, ids[0], id, "all submissions must resolve to the same purchase")
    }
    assert.Equal(t, uint32(1), events.count(1))
    assert.Equal(t, 1, provider.callCount())
}

func TestCreateReleasesSpotOnProviderFailure(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{err: errors.New("provider down")}
    svc := newPurchaseService(events, purchases, provider)

    _, _, err := svc.Create(context.Background(), 1, 1)
    require.Error(t, err)
    assert.Equal(t, uint32(0), events.count(1))
}

func TestCreateReleasesSpotOnPersistFailure(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    purchases.createErr = errors.New("insert failed")
    provider := &fakeProvider{}
    svc := newPurchaseService(events, purchases, provider)

    _, _, err := svc.Create(context.Background(), 1, 1)
    require.Error(t, err)
    assert.Equal(t, uint32(0), events.count(1))
}

func TestCreateRespectsRegistrationSwitch(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    provider := &fakeProvider{}
    svc := NewPurchaseService(lock.New(), time.Second, events, purchases, provider, staticSettings{open: false})

    _, _, err := svc.Create(context.Background(), 1, 1)
    assert.ErrorIs(t, err, ErrRegistrationClosed)
    assert.Equal(t, uint32(0), events.count(1))
}

func TestCreateRejectsUnpublishedEvent(t *testing.T) {
    draft := publishedEvent(1, 5)
    draft.Status = model.EventDraft
    events := newFakeEventStore(draft)
    svc := newPurchaseService(events, newFakePurchaseStore(), &fakeProvider{})

    _, _, err := svc.Create(context.Background(), 1, 1)
    assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestCancelReleasesSpot(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    svc := newPurchaseService(events, purchases, &fakeProvider{})

    p, _, err := svc.Create(context.Background(), 9, 1)
    require.NoError(t, err)
    require.Equal(t, uint32(1), events.count(1))

    require.NoError(t, svc.Cancel(context.Background(), 9, p.ID))
    assert.Equal(t, uint32(0), events.count(1))

    got, err := purchases.GetByID(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PurchaseCancelled, got.Status)
}

// A second cancel of the same purchase is a silent no-op and must not
// release the spot twice.
func TestCancelTwiceReleasesOnce(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    svc := newPurchaseService(events, purchases, &fakeProvider{})

    p, _, err := svc.Create(context.Background(), 9, 1)
    require.NoError(t, err)

    require.NoError(t, svc.Cancel(context.Background(), 9, p.ID))
    require.NoError(t, svc.Cancel(context.Background(), 9, p.ID))
    assert.Equal(t, uint32(0), events.count(1))
    assert.Equal(t, 1, events.releaseCalls())
}

// Cancelling a completed purchase leaves both status and counter alone.
func TestCancelCompletedPurchaseIsNoOp(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    svc := newPurchaseService(events, purchases, &fakeProvider{})

    p, _, err := svc.Create(context.Background(), 9, 1)
    require.NoError(t, err)
    applied, err := purchases.MarkTerminal(context.Background(), p.ID, model.PurchaseCompleted, "evt_1")
    require.NoError(t, err)
    require.True(t, applied)

    require.NoError(t, svc.Cancel(context.Background(), 9, p.ID))

    got, err := purchases.GetByID(context.Background(), p.ID)
    require.NoError(t, err)
    assert.Equal(t, model.PurchaseCompleted, got.Status)
    assert.Equal(t, uint32(1), events.count(1))
    assert.Equal(t, 0, events.releaseCalls())
}

func TestCancelForbiddenForOtherUser(t *testing.T) {
    events := newFakeEventStore(publishedEvent(1, 5))
    purchases := newFakePurchaseStore()
    svc := newPurchaseService(events, purchases, &fakeProvider{})

    p, _, err := svc.Create(context.Background(), 9, 1)
    require.NoError(t, err)

    err = svc.Cancel(context.Background(), 10, p.ID)
    assert.ErrorIs(t, err, repository.ErrForbidden)
    assert.Equal(t, uint32(1), events.count(1))
}
