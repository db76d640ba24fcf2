package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id, ownerID string) (Purchase, error)
	Create(ctx context.Context, p Purchase) (Purchase, error)
	List(ctx context.Context, ownerID string, filter ListFilter) ([]Purchase, int, error)
	UpdateStatus(ctx context.Context, id, ownerID string, status Status, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// StockPort exposes the warehouse synchronization the engine drives. Both
// operations must be idempotent per purchase; the retry loop may call them
// more than once.
type StockPort interface {
	Apply(ctx context.Context, doc warehouse.SyncDocument) error
	Reverse(ctx context.Context, doc warehouse.SyncDocument) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows purchase listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Service owns the consistency contract between purchase records and
// warehouse stock. All status changes go through SetStatus.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	notifier NotifierPort
	audit    AuditPort
	logger   *slog.Logger
	retry    shared.RetryOptions
}

// NewService constructs the purchase service.
func NewService(repo RepositoryPort, stock StockPort, notifier NotifierPort, audit AuditPort, logger *slog.Logger, retry shared.RetryOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry = shared.DefaultRetryOptions()
	}
	return &Service{repo: repo, stock: stock, notifier: notifier, audit: audit, logger: logger, retry: retry}
}

// TransitionRequest is one requested status change.
type TransitionRequest struct {
	PurchaseID string
	OwnerID    string
	NewStatus  Status
	// ForceSync runs the warehouse call even when policy would skip it,
	// e.g. from administrative repair tooling.
	ForceSync bool
}

// TransitionResult reports what a committed SetStatus call did.
type TransitionResult struct {
	Purchase    Purchase
	From        Status
	To          Status
	SyncApplied bool
	NoOp        bool
}

// Get returns one purchase scoped to the owner.
func (s *Service) Get(ctx context.Context, id, ownerID string) (Purchase, error) {
	return s.repo.Get(ctx, id, ownerID)
}

// List returns purchases for an owner.
func (s *Service) List(ctx context.Context, ownerID string, filter ListFilter) ([]Purchase, int, error) {
	return s.repo.List(ctx, ownerID, filter)
}

// Create persists a new pending purchase. Authoring is thin glue; the total
// invariant is the only rule enforced here.
func (s *Service) Create(ctx context.Context, p Purchase) (Purchase, error) {
	if p.OwnerID == "" {
		return Purchase{}, shared.ErrValidation
	}
	for _, item := range p.LineItems {
		if item.Qty < 0 || item.UnitPrice < 0 {
			return Purchase{}, fmt.Errorf("%w: negative quantity or price", shared.ErrValidation)
		}
	}
	if p.TotalValue == 0 {
		p.TotalValue = p.SumLines()
	}
	if err := p.ValidateTotal(); err != nil {
		return Purchase{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return s.repo.Create(ctx, p)
}

// SetStatus validates and applies one status transition, synchronizing
// warehouse stock for transitions that enter or leave completed.
//
// Entering completed persists the status first and compensates by reverting
// it when the stock apply keeps failing; leaving completed reverses stock
// before the new status is persisted so the record never stops claiming
// consumption while stock is still short.
func (s *Service) SetStatus(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	if _, ok := ParseStatus(string(req.NewStatus)); !ok {
		return TransitionResult{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, req.NewStatus)
	}

	p, err := s.repo.Get(ctx, req.PurchaseID, req.OwnerID)
	if err != nil {
		return TransitionResult{}, err
	}
	if p.Status == req.NewStatus {
		return TransitionResult{Purchase: p, From: p.Status, To: p.Status, NoOp: true}, nil
	}

	skipSync := len(p.LineItems) == 0 && !req.ForceSync

	var result TransitionResult
	switch {
	case req.NewStatus == StatusCompleted:
		result, err = s.enterCompleted(ctx, p, skipSync)
	case p.Status == StatusCompleted:
		result, err = s.leaveCompleted(ctx, p, req.NewStatus, skipSync)
	default:
		result, err = s.simpleTransition(ctx, p, req.NewStatus)
	}
	if err != nil {
		return TransitionResult{}, err
	}

	s.publish(ctx, result)
	s.recordAudit(ctx, result)
	return result, nil
}

// enterCompleted persists the status optimistically and applies stock
// afterwards; exhausted retries revert the status.
func (s *Service) enterCompleted(ctx context.Context, p Purchase, skipSync bool) (TransitionResult, error) {
	// A cancelled caller must not leave an optimistic status behind with the
	// stock call abandoned.
	if err := ctx.Err(); err != nil {
		return TransitionResult{}, err
	}

	from := p.Status
	newVersion, err := s.repo.UpdateStatus(ctx, p.ID, p.OwnerID, StatusCompleted, p.Version)
	if err != nil {
		return TransitionResult{}, err
	}

	syncApplied := false
	if !skipSync {
		doc := p.SyncDocument()
		err := shared.Retry(ctx, func(ctx context.Context) error {
			return s.stock.Apply(ctx, doc)
		}, s.retry)
		if err != nil {
			compensation := CompensationStatusReverted
			revertCtx := context.WithoutCancel(ctx)
			if _, revertErr := s.repo.UpdateStatus(revertCtx, p.ID, p.OwnerID, from, newVersion); revertErr != nil {
				compensation = CompensationRevertFailed
				s.logger.Error("status revert failed after sync failure",
					slog.String("purchase_id", p.ID), slog.Any("error", revertErr))
			}
			return TransitionResult{}, &SyncError{PurchaseID: p.ID, From: from, To: StatusCompleted, Compensation: compensation, Err: err}
		}
		syncApplied = true
	}

	p.Status = StatusCompleted
	p.Version = newVersion
	return TransitionResult{Purchase: p, From: from, To: StatusCompleted, SyncApplied: syncApplied}, nil
}

// leaveCompleted reverses stock before the status changes; a failed reversal
// leaves the purchase completed with no partial state.
func (s *Service) leaveCompleted(ctx context.Context, p Purchase, to Status, skipSync bool) (TransitionResult, error) {
	from := p.Status
	syncApplied := false
	if !skipSync {
		doc := p.SyncDocument()
		err := shared.Retry(ctx, func(ctx context.Context) error {
			return s.stock.Reverse(ctx, doc)
		}, s.retry)
		if err != nil {
			return TransitionResult{}, &SyncError{PurchaseID: p.ID, From: from, To: to, Compensation: CompensationNone, Err: err}
		}
		syncApplied = true
	}

	newVersion, err := s.repo.UpdateStatus(ctx, p.ID, p.OwnerID, to, p.Version)
	if err != nil {
		return TransitionResult{}, err
	}
	p.Status = to
	p.Version = newVersion
	return TransitionResult{Purchase: p, From: from, To: to, SyncApplied: syncApplied}, nil
}

func (s *Service) simpleTransition(ctx context.Context, p Purchase, to Status) (TransitionResult, error) {
	from := p.Status
	newVersion, err := s.repo.UpdateStatus(ctx, p.ID, p.OwnerID, to, p.Version)
	if err != nil {
		return TransitionResult{}, err
	}
	p.Status = to
	p.Version = newVersion
	return TransitionResult{Purchase: p, From: from, To: to}, nil
}

// Delete removes a purchase. A completed purchase has its stock effect
// reversed first, through the same reversal primitive SetStatus uses.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	p, err := s.repo.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if p.Status == StatusCompleted && len(p.LineItems) > 0 {
		doc := p.SyncDocument()
		err := shared.Retry(ctx, func(ctx context.Context) error {
			return s.stock.Reverse(ctx, doc)
		}, s.retry)
		if err != nil {
			return &SyncError{PurchaseID: p.ID, From: p.Status, To: p.Status, Compensation: CompensationNone, Err: err}
		}
	}
	return s.repo.Delete(ctx, id, ownerID)
}

// publish emits the status change event. Best-effort: failures are logged,
// never surfaced, and a cancelled request context does not suppress the
// event for an already-committed transition.
func (s *Service) publish(ctx context.Context, result TransitionResult) {
	if s.notifier == nil || result.NoOp {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.notifier.PublishStatusChanged(ctx, result.Purchase, result.From, result.To, result.SyncApplied); err != nil {
		s.logger.Warn("publish status change event",
			slog.String("purchase_id", result.Purchase.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, result TransitionResult) {
	if s.audit == nil || result.NoOp {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  result.Purchase.OwnerID,
		Action:   "PURCHASE_STATUS",
		Entity:   "purchase",
		EntityID: result.Purchase.ID,
		Meta: map[string]any{
			"from":         string(result.From),
			"to":           string(result.To),
			"sync_applied": result.SyncApplied,
		},
	})
}

// IsSyncFailure reports whether err is a retry-exhausted stock sync failure.
func IsSyncFailure(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr)
}
