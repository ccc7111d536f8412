package service

// In-memory fakes for the store, provider and notifier interfaces.  The
// event fake mirrors the repository's conditional-update semantics: the
// capacity check and the increment happen atomically under its mutex,
// exactly like the single UPDATE statement does against MySQL.

import (
    "context"
    "fmt"
    "sync"

    "github.com/iliyamo/event-registration/internal/config"
    "github.com/iliyamo/event-registration/internal/model"
    "github.com/iliyamo/event-registration/internal/payment"
    "github.com/iliyamo/event-registration/internal/queue"
    "github.com/iliyamo/event-registration/internal/repository"
)

type fakeEventStore struct {
    mu       sync.Mutex
    events   map[uint64]*model.Event
    releases int
}

func newFakeEventStore(events ...*model.Event) *fakeEventStore {
    s := &fakeEventStore{events: make(map[uint64]*model.Event)}
    for _, ev := range events {
        s.events[ev.ID] = ev
    }
    return s
}

func (s *fakeEventStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ev, ok := s.events[id]
    if !ok {
        return nil, repository.ErrEventNotFound
    }
    copied := *ev
    return &copied, nil
}

func (s *fakeEventStore) TryReserveSpot(_ context.Context, eventID uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    ev, ok := s.events[eventID]
    if !ok {
        return repository.ErrEventNotFound
    }
    if ev.RegisteredCount >= ev.Capacity {
        return repository.ErrCapacityExceeded
    }
    ev.RegisteredCount++
    return nil
}

func (s *fakeEventStore) ReleaseSpot(_ context.Context, eventID uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    ev, ok := s.events[eventID]
    if !ok {
        return repository.ErrEventNotFound
    }
    if ev.RegisteredCount > 0 {
        ev.RegisteredCount--
    }
    s.releases++
    return nil
}

func (s *fakeEventStore) count(eventID uint64) uint32 {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.events[eventID].RegisteredCount
}

func (s *fakeEventStore) releaseCalls() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.releases
}

type fakePurchaseStore struct {
    mu        sync.Mutex
    purchases map[uint64]*model.Purchase
    nextID    uint64
    createErr error
}

func newFakePurchaseStore() *fakePurchaseStore {
    return &fakePurchaseStore{purchases: make(map[uint64]*model.Purchase)}
}

func (s *fakePurchaseStore) Create(_ context.Context, p *model.Purchase) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.createErr != nil {
        return s.createErr
    }
    s.nextID++
    p.ID = s.nextID
    copied := *p
    s.purchases[p.ID] = &copied
    return nil
}

func (s *fakePurchaseStore) GetByID(_ context.Context, id uint64) (*model.Purchase, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.purchases[id]
    if !ok {
        return nil, repository.ErrPurchaseNotFound
    }
    copied := *p
    return &copied, nil
}

func (s *fakePurchaseStore) FindPendingByUserAndEvent(_ context.Context, userID, eventID uint64) (*model.Purchase, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, p := range s.purchases {
        if p.UserID == userID && p.EventID == eventID && p.Status == model.PurchasePending {
            copied := *p
            return &copied, nil
        }
    }
    return nil, repository.ErrPurchaseNotFound
}

func (s *fakePurchaseStore) MarkTerminal(_ context.Context, id uint64, status, providerEventID string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.purchases[id]
    if !ok {
        return false, repository.ErrPurchaseNotFound
    }
    if p.Status != model.PurchasePending {
        return false, nil
    }
    p.Status = status
    if providerEventID != "" {
        v := providerEventID
        p.ProviderEventID = &v
    }
    return true, nil
}

func (s *fakePurchaseStore) ListByUser(_ context.Context, userID uint64) ([]model.Purchase, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.Purchase, 0)
    for _, p := range s.purchases {
        if p.UserID == userID {
            out = append(out, *p)
        }
    }
    return out, nil
}

type fakeProvider struct {
    mu       sync.Mutex
    calls    int
    err      error
    lastRefs []string
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls++
    f.lastRefs = append(f.lastRefs, req.Reference)
    if f.err != nil {
        return nil, f.err
    }
    return &payment.CheckoutSession{
        ID:  fmt.Sprintf("cs_%d", f.calls),
        URL: fmt.Sprintf("https://pay.example.com/cs_%d", f.calls),
    }, nil
}

func (f *fakeProvider) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.calls
}

type fakeNotifier struct {
    mu     sync.Mutex
    events []queue.PurchaseCompletedEvent
    err    error
}

func (f *fakeNotifier) PublishPurchaseCompleted(_ context.Context, ev queue.PurchaseCompletedEvent) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.events = append(f.events, ev)
    return f.err
}

func (f *fakeNotifier) published() []queue.PurchaseCompletedEvent {
    f.mu.Lock()
    defer f.mu.Unlock()
    return append([]queue.PurchaseCompletedEvent(nil), f.events...)
}

// staticSettings serves a fixed snapshot without Redis.
type staticSettings struct {
    open bool
}

func (s staticSettings) Snapshot(context.Context) config.RuntimeSettings {
    return config.RuntimeSettings{RegistrationOpen: s.open}
}
