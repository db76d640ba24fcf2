package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMaterials(ctx context.Context, ownerID string) ([]Material, error)
	GetMaterial(ctx context.Context, id, ownerID string) (Material, error)
}

// MarkerPort tracks which purchases currently have stock applied so Apply and
// Reverse stay idempotent under the caller's retry loop.
type MarkerPort interface {
	Mark(ctx context.Context, key, subsystem string) error
	Release(ctx context.Context, key string) (bool, error)
}

// HistoryPort supplies completed purchase lines for WAC recalculation.
type HistoryPort interface {
	CompletedLines(ctx context.Context, ownerID string) ([]SyncLine, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains material stock levels and weighted average costs.
type Service struct {
	repo    RepositoryPort
	markers MarkerPort
	history HistoryPort
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, markers MarkerPort, history HistoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, markers: markers, history: history, audit: audit, logger: logger}
}

func syncKey(doc SyncDocument) string {
	return fmt.Sprintf("warehouse:purchase:%s", doc.PurchaseID)
}

// Apply records a completed purchase into warehouse stock, accumulating
// quantities and recomputing each material's weighted average cost. Calling
// it again for the same purchase is a no-op, which makes it safe under the
// caller's retry loop. A document with no usable lines succeeds without
// touching stock; retrying it would never produce a different outcome.
func (s *Service) Apply(ctx context.Context, doc SyncDocument) error {
	lines := usableLines(doc)
	if len(lines) == 0 {
		s.logger.Info("no usable lines, nothing to apply", slog.String("purchase_id", doc.PurchaseID))
		return nil
	}
	marked := false
	if s.markers != nil {
		if err := s.markers.Mark(ctx, syncKey(doc), "warehouse"); err != nil {
			if errors.Is(err, shared.ErrAlreadyApplied) {
				s.logger.Info("stock already applied, skipping", slog.String("purchase_id", doc.PurchaseID))
				return nil
			}
			return err
		}
		marked = true
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if err := s.applyLine(ctx, tx, doc, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if marked {
			if _, relErr := s.markers.Release(ctx, syncKey(doc)); relErr != nil {
				s.logger.Warn("release sync marker", slog.String("purchase_id", doc.PurchaseID), slog.Any("error", relErr))
			}
		}
		return err
	}
	s.recordAudit(ctx, doc, DirectionApply, len(lines))
	return nil
}

// Reverse restores stock consumed by an earlier Apply for the same purchase.
// Reversing a purchase that was never applied (or already reversed) is a
// no-op, as is a document whose lines were all filtered out.
func (s *Service) Reverse(ctx context.Context, doc SyncDocument) error {
	lines := usableLines(doc)
	if len(lines) == 0 {
		s.logger.Info("no usable lines, nothing to reverse", slog.String("purchase_id", doc.PurchaseID))
		return nil
	}
	if s.markers != nil {
		released, err := s.markers.Release(ctx, syncKey(doc))
		if err != nil {
			return err
		}
		if !released {
			s.logger.Info("no applied stock to reverse", slog.String("purchase_id", doc.PurchaseID))
			return nil
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if err := s.reverseLine(ctx, tx, doc, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.markers != nil {
			if markErr := s.markers.Mark(ctx, syncKey(doc), "warehouse"); markErr != nil && !errors.Is(markErr, shared.ErrAlreadyApplied) {
				s.logger.Warn("restore sync marker", slog.String("purchase_id", doc.PurchaseID), slog.Any("error", markErr))
			}
		}
		return err
	}
	s.recordAudit(ctx, doc, DirectionReverse, len(lines))
	return nil
}

func (s *Service) applyLine(ctx context.Context, tx TxRepository, doc SyncDocument, line SyncLine) error {
	existing, err := s.lockExisting(ctx, tx, doc.OwnerID, line)
	if err != nil && !errors.Is(err, ErrMaterialNotFound) {
		return err
	}
	if errors.Is(err, ErrMaterialNotFound) {
		id := line.MaterialID
		if id == "" {
			id = uuid.NewString()
		}
		return tx.InsertMaterial(ctx, Material{
			ID:        id,
			OwnerID:   doc.OwnerID,
			Name:      line.Name,
			Category:  line.Category,
			Unit:      line.Unit,
			Stock:     line.Qty,
			UnitPrice: line.UnitPrice,
			AvgCost:   line.UnitPrice,
			Supplier:  doc.Supplier,
		})
	}

	res := CalculateWAC(existing.AvgCost, existing.Stock, line.Qty, line.UnitPrice)
	existing.Stock = res.NewStock
	existing.AvgCost = res.NewWAC
	existing.UnitPrice = line.UnitPrice
	existing.Supplier = mergeSuppliers(existing.Supplier, doc.Supplier)
	return tx.UpdateMaterialStock(ctx, existing)
}

func (s *Service) reverseLine(ctx context.Context, tx TxRepository, doc SyncDocument, line SyncLine) error {
	existing, err := s.lockExisting(ctx, tx, doc.OwnerID, line)
	if errors.Is(err, ErrMaterialNotFound) {
		s.logger.Warn("material missing during reversal, skipping",
			slog.String("purchase_id", doc.PurchaseID), slog.String("material", line.Name))
		return nil
	}
	if err != nil {
		return err
	}

	res := CalculateWAC(existing.AvgCost, existing.Stock, -line.Qty, line.UnitPrice)
	if res.NewStock < 0 {
		s.logger.Warn("reversal drove stock negative",
			slog.String("material_id", existing.ID), slog.Float64("stock", res.NewStock))
	}
	existing.Stock = res.NewStock
	existing.AvgCost = res.NewWAC
	return tx.UpdateMaterialStock(ctx, existing)
}

// lockExisting matches by material id first, then by normalised name + unit
// so stock from different suppliers accumulates on one row.
func (s *Service) lockExisting(ctx context.Context, tx TxRepository, ownerID string, line SyncLine) (Material, error) {
	if line.MaterialID != "" {
		m, err := tx.GetMaterialForUpdate(ctx, line.MaterialID, ownerID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrMaterialNotFound) {
			return Material{}, err
		}
	}
	return tx.FindByNameUnitForUpdate(ctx, strings.TrimSpace(line.Name), line.Unit, ownerID)
}

// Materials lists the owner's materials.
func (s *Service) Materials(ctx context.Context, ownerID string) ([]Material, error) {
	return s.repo.ListMaterials(ctx, ownerID)
}

// Material fetches a single material scoped to the owner.
func (s *Service) Material(ctx context.Context, id, ownerID string) (Material, error) {
	return s.repo.GetMaterial(ctx, id, ownerID)
}

// RecalculateWAC rebuilds every material's average cost from the owner's
// completed purchase history. Used by the nightly repair job and the manual
// admin endpoint.
func (s *Service) RecalculateWAC(ctx context.Context, ownerID string) (SyncSummary, error) {
	start := time.Now()
	if s.history == nil {
		return SyncSummary{}, errors.New("warehouse: purchase history not configured")
	}
	materials, err := s.repo.ListMaterials(ctx, ownerID)
	if err != nil {
		return SyncSummary{}, err
	}
	historyLines, err := s.history.CompletedLines(ctx, ownerID)
	if err != nil {
		return SyncSummary{}, err
	}

	qtyByMaterial := make(map[string]float64)
	valueByMaterial := make(map[string]float64)
	for _, line := range historyLines {
		if line.MaterialID == "" || line.Qty <= 0 {
			continue
		}
		qtyByMaterial[line.MaterialID] += line.Qty
		valueByMaterial[line.MaterialID] += line.Qty * line.UnitPrice
	}

	summary := SyncSummary{TotalItems: len(materials)}
	for _, m := range materials {
		qty := qtyByMaterial[m.ID]
		if qty <= 0 {
			summary.Skipped++
			summary.Results = append(summary.Results, LineResult{
				MaterialID: m.ID, Name: m.Name, OldWAC: m.AvgCost, NewWAC: m.AvgCost,
				Status: "skipped", Message: "no completed purchase history",
			})
			continue
		}
		newWAC := valueByMaterial[m.ID] / qty
		result := LineResult{MaterialID: m.ID, Name: m.Name, OldStock: m.Stock, NewStock: m.Stock, OldWAC: m.AvgCost, NewWAC: newWAC}
		if math.Abs(newWAC-m.AvgCost) < 0.01 {
			result.Status = "skipped"
			result.Message = "already consistent"
			summary.Skipped++
			summary.Results = append(summary.Results, result)
			continue
		}
		updated := m
		updated.AvgCost = newWAC
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateMaterialStock(ctx, updated)
		})
		if err != nil {
			result.Status = "error"
			result.Message = err.Error()
			summary.Failed++
		} else {
			result.Status = "success"
			summary.Successful++
		}
		summary.Results = append(summary.Results, result)
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

// CheckConsistency flags materials whose stock or cost figures look wrong.
func (s *Service) CheckConsistency(ctx context.Context, ownerID string) ([]ConsistencyIssue, error) {
	materials, err := s.repo.ListMaterials(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var issues []ConsistencyIssue
	for _, m := range materials {
		var found []string
		severity := "low"
		if m.Stock < 0 {
			found = append(found, fmt.Sprintf("negative stock %.2f", m.Stock))
			severity = "high"
		}
		if m.Stock > 0 && m.AvgCost <= 0 {
			found = append(found, "stock on hand with zero average cost")
			if severity != "high" {
				severity = "medium"
			}
		}
		if m.Minimum > 0 && m.Stock < m.Minimum {
			found = append(found, fmt.Sprintf("stock %.2f below minimum %.2f", m.Stock, m.Minimum))
		}
		if len(found) > 0 {
			issues = append(issues, ConsistencyIssue{MaterialID: m.ID, Name: m.Name, Issues: found, Severity: severity})
		}
	}
	return issues, nil
}

func (s *Service) recordAudit(ctx context.Context, doc SyncDocument, direction SyncDirection, lineCount int) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  doc.OwnerID,
		Action:   "warehouse:" + string(direction),
		Entity:   "warehouse",
		EntityID: doc.PurchaseID,
		Meta:     map[string]any{"lines": lineCount, "supplier": doc.Supplier},
	})
}

func usableLines(doc SyncDocument) []SyncLine {
	var lines []SyncLine
	for _, line := range doc.Lines {
		if line.Qty <= 0 || strings.TrimSpace(line.Name) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func mergeSuppliers(existing, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return incoming
	}
	for _, part := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(part), incoming) {
			return existing
		}
	}
	return existing + ", " + incoming
}
