package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

type memoryPurchaseRepo struct {
	mu        sync.Mutex
	purchases map[string]Purchase
	// updateErrs returns one error per UpdateStatus call, in order. A nil
	// entry means the call succeeds.
	updateErrs []error
	updates    int
}

func newMemoryPurchaseRepo(purchases ...Purchase) *memoryPurchaseRepo {
	repo := &memoryPurchaseRepo{purchases: make(map[string]Purchase)}
	for _, p := range purchases {
		repo.purchases[p.ID] = p
	}
	return repo
}

func (r *memoryPurchaseRepo) Get(ctx context.Context, id, ownerID string) (Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok || p.OwnerID != ownerID {
		return Purchase{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryPurchaseRepo) Create(ctx context.Context, p Purchase) (Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("p-%d", len(r.purchases)+1)
	}
	p.Version = 1
	r.purchases[p.ID] = p
	return p, nil
}

func (r *memoryPurchaseRepo) List(ctx context.Context, ownerID string, filter ListFilter) ([]Purchase, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Purchase
	for _, p := range r.purchases {
		if p.OwnerID == ownerID && (filter.Status == "" || p.Status == filter.Status) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (r *memoryPurchaseRepo) UpdateStatus(ctx context.Context, id, ownerID string, status Status, expectedVersion int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.updates
	r.updates++
	if call < len(r.updateErrs) && r.updateErrs[call] != nil {
		return 0, r.updateErrs[call]
	}
	p, ok := r.purchases[id]
	if !ok || p.OwnerID != ownerID {
		return 0, shared.ErrNotFound
	}
	if p.Version != expectedVersion {
		return 0, shared.ErrConflict
	}
	p.Status = status
	p.Version++
	r.purchases[id] = p
	return p.Version, nil
}

func (r *memoryPurchaseRepo) Delete(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok || p.OwnerID != ownerID {
		return shared.ErrNotFound
	}
	delete(r.purchases, p.ID)
	return nil
}

func (r *memoryPurchaseRepo) status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purchases[id].Status
}

// scriptedStock fails Apply/Reverse a configured number of times before
// succeeding and records call order.
type scriptedStock struct {
	mu           sync.Mutex
	applyFails   int
	reverseFails int
	applyCalls   int
	reverseCalls int
	order        []string
}

func (s *scriptedStock) Apply(ctx context.Context, doc warehouse.SyncDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	s.order = append(s.order, "apply")
	if s.applyCalls <= s.applyFails {
		return errors.New("stock apply refused")
	}
	return nil
}

func (s *scriptedStock) Reverse(ctx context.Context, doc warehouse.SyncDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverseCalls++
	s.order = append(s.order, "reverse")
	if s.reverseCalls <= s.reverseFails {
		return errors.New("stock reverse refused")
	}
	return nil
}

type recordedEvent struct {
	From, To    Status
	SyncApplied bool
	Purchase    Purchase
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (n *recordingNotifier) PublishStatusChanged(ctx context.Context, p Purchase, from, to Status, syncApplied bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, recordedEvent{From: from, To: to, SyncApplied: syncApplied, Purchase: p})
	return nil
}

func testRetry() shared.RetryOptions {
	return shared.RetryOptions{MaxAttempts: 3, Delay: time.Millisecond}
}

func pendingPurchase() Purchase {
	return Purchase{
		ID:      "p-1",
		OwnerID: "owner-1",
		Date:    time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		LineItems: []LineItem{
			{Name: "Tepung Terigu", Unit: "kg", Qty: 25, UnitPrice: 12000},
			{Name: "Gula Pasir", Unit: "kg", Qty: 10, UnitPrice: 15000},
		},
		TotalValue:  450000,
		SupplierRef: "7",
		Status:      StatusPending,
		Version:     1,
	}
}

func TestSetStatusSameStatusIsNoOp(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, stock, notifier, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusPending})
	require.NoError(t, err)
	require.True(t, result.NoOp)
	require.Zero(t, stock.applyCalls)
	require.Zero(t, repo.updates)
	require.Empty(t, notifier.events)
}

func TestSetStatusUnknownStatus(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), &scriptedStock{}, nil, nil, nil, testRetry())
	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: "shipped"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetStatusMissingPurchase(t *testing.T) {
	svc := NewService(newMemoryPurchaseRepo(), &scriptedStock{}, nil, nil, nil, testRetry())
	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "nope", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompleteAppliesStockAndPublishes(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, stock, notifier, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Purchase.Status)
	require.True(t, result.SyncApplied)
	require.Equal(t, 1, stock.applyCalls)
	require.Equal(t, StatusCompleted, repo.status("p-1"))

	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	require.Equal(t, StatusPending, event.From)
	require.Equal(t, StatusCompleted, event.To)
	require.True(t, event.SyncApplied)
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{applyFails: 2}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.NoError(t, err)
	require.True(t, result.SyncApplied)
	require.Equal(t, 3, stock.applyCalls)
	require.Equal(t, StatusCompleted, repo.status("p-1"))
}

func TestCompleteCompensatesWhenSyncExhausted(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{applyFails: 10}
	notifier := &recordingNotifier{}
	svc := NewService(repo, stock, notifier, nil, nil, testRetry())

	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, CompensationStatusReverted, syncErr.Compensation)
	require.Equal(t, 3, stock.applyCalls)
	require.Equal(t, StatusPending, repo.status("p-1"))
	require.Empty(t, notifier.events)

	var retryErr *shared.RetryError
	require.ErrorAs(t, err, &retryErr)
}

func TestCompleteReportsRevertFailure(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	// First UpdateStatus (optimistic write) succeeds, second (the revert)
	// fails.
	repo.updateErrs = []error{nil, errors.New("database down")}
	stock := &scriptedStock{applyFails: 10}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, CompensationRevertFailed, syncErr.Compensation)
	require.Equal(t, StatusCompleted, repo.status("p-1"))
}

func TestLeaveCompletedReversesBeforeStatusWrite(t *testing.T) {
	p := pendingPurchase()
	p.Status = StatusCompleted
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{}
	notifier := &recordingNotifier{}
	svc := NewService(repo, stock, notifier, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCancelled})
	require.NoError(t, err)
	require.Equal(t, 1, stock.reverseCalls)
	require.Equal(t, StatusCancelled, repo.status("p-1"))
	require.True(t, result.SyncApplied)
	require.Len(t, notifier.events, 1)
}

func TestLeaveCompletedKeepsStatusOnReverseFailure(t *testing.T) {
	p := pendingPurchase()
	p.Status = StatusCompleted
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{reverseFails: 10}
	notifier := &recordingNotifier{}
	svc := NewService(repo, stock, notifier, nil, nil, testRetry())

	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusPending})

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	require.Equal(t, CompensationNone, syncErr.Compensation)
	require.Equal(t, 3, stock.reverseCalls)
	// No status write happened at all.
	require.Equal(t, StatusCompleted, repo.status("p-1"))
	require.Zero(t, repo.updates)
	require.Empty(t, notifier.events)
}

func TestNoLineItemsSkipsSync(t *testing.T) {
	p := pendingPurchase()
	p.LineItems = nil
	p.TotalValue = 0
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.NoError(t, err)
	require.False(t, result.SyncApplied)
	require.Zero(t, stock.applyCalls)
	require.Equal(t, StatusCompleted, repo.status("p-1"))
}

func TestForceSyncOverridesEmptyLineSkip(t *testing.T) {
	p := pendingPurchase()
	p.LineItems = nil
	p.TotalValue = 0
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted, ForceSync: true})
	require.NoError(t, err)
	require.True(t, result.SyncApplied)
	require.Equal(t, 1, stock.applyCalls)
}

func TestSimpleTransitionTouchesNoStock(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCancelled})
	require.NoError(t, err)
	require.Zero(t, stock.applyCalls)
	require.Zero(t, stock.reverseCalls)
	require.Equal(t, StatusCancelled, repo.status("p-1"))
	require.False(t, result.SyncApplied)
}

func TestCompleteConcurrentWriterConflicts(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	// Another writer got between our read and the optimistic status write.
	repo.updateErrs = []error{shared.ErrConflict}

	_, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Zero(t, stock.applyCalls)
}

func TestCancelledContextStopsBeforeOptimisticWrite(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.SetStatus(ctx, TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, repo.updates)
	require.Zero(t, stock.applyCalls)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	notifier := &recordingNotifier{err: errors.New("broker unreachable")}
	svc := NewService(repo, &scriptedStock{}, notifier, nil, nil, testRetry())

	result, err := svc.SetStatus(context.Background(), TransitionRequest{PurchaseID: "p-1", OwnerID: "owner-1", NewStatus: StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Purchase.Status)
}

func TestDeleteCompletedReversesStockFirst(t *testing.T) {
	p := pendingPurchase()
	p.Status = StatusCompleted
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	require.NoError(t, svc.Delete(context.Background(), "p-1", "owner-1"))
	require.Equal(t, 1, stock.reverseCalls)
	_, err := repo.Get(context.Background(), "p-1", "owner-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteCompletedKeepsRowOnReverseFailure(t *testing.T) {
	p := pendingPurchase()
	p.Status = StatusCompleted
	repo := newMemoryPurchaseRepo(p)
	stock := &scriptedStock{reverseFails: 10}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	err := svc.Delete(context.Background(), "p-1", "owner-1")
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	got, getErr := repo.Get(context.Background(), "p-1", "owner-1")
	require.NoError(t, getErr)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestDeletePendingSkipsStock(t *testing.T) {
	repo := newMemoryPurchaseRepo(pendingPurchase())
	stock := &scriptedStock{}
	svc := NewService(repo, stock, nil, nil, nil, testRetry())

	require.NoError(t, svc.Delete(context.Background(), "p-1", "owner-1"))
	require.Zero(t, stock.reverseCalls)
}

func TestCreateValidatesTotalAgainstLines(t *testing.T) {
	repo := newMemoryPurchaseRepo()
	svc := NewService(repo, &scriptedStock{}, nil, nil, nil, testRetry())

	p := pendingPurchase()
	p.ID = ""
	p.TotalValue = 999999
	_, err := svc.Create(context.Background(), p)
	require.ErrorIs(t, err, shared.ErrValidation)

	p.TotalValue = 0
	created, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.InDelta(t, 450000, created.TotalValue, 0.001)
	require.Equal(t, StatusPending, created.Status)
}
