package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lumbung-erp/lumbung-erp/internal/valuation"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

// NewWACRecalcHandler returns the handler for TaskWACRecalc. It fans out to
// every owner when the payload does not name one.
func NewWACRecalcHandler(svc *warehouse.Service, owners OwnerLister, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScopedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		ownerIDs, err := resolveOwners(ctx, payload, owners)
		if err != nil {
			return err
		}
		for _, ownerID := range ownerIDs {
			summary, err := svc.RecalculateWAC(ctx, ownerID)
			if err != nil {
				logger.Error("wac recalc", slog.String("owner_id", ownerID), slog.Any("error", err))
				return err
			}
			logger.Info("wac recalc done",
				slog.String("owner_id", ownerID),
				slog.Int("updated", summary.Successful),
				slog.Int("skipped", summary.Skipped),
				slog.Int("failed", summary.Failed),
				slog.Duration("took", summary.Duration))
		}
		return nil
	}
}

// NewConsistencyCheckHandler returns the handler for TaskConsistencyCheck.
// Findings are logged; the scan itself never mutates stock.
func NewConsistencyCheckHandler(svc *warehouse.Service, owners OwnerLister, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScopedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		ownerIDs, err := resolveOwners(ctx, payload, owners)
		if err != nil {
			return err
		}
		for _, ownerID := range ownerIDs {
			issues, err := svc.CheckConsistency(ctx, ownerID)
			if err != nil {
				logger.Error("consistency check", slog.String("owner_id", ownerID), slog.Any("error", err))
				return err
			}
			for _, issue := range issues {
				logger.Warn("inconsistent material",
					slog.String("owner_id", ownerID),
					slog.String("material_id", issue.MaterialID),
					slog.String("severity", issue.Severity),
					slog.Any("issues", issue.Issues))
			}
		}
		return nil
	}
}

// NewValuationWarmupHandler returns the handler for TaskValuationWarmup.
func NewValuationWarmupHandler(svc *valuation.Service, owners OwnerLister, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScopedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		ownerIDs, err := resolveOwners(ctx, payload, owners)
		if err != nil {
			return err
		}
		for _, ownerID := range ownerIDs {
			summary, err := svc.Summary(ctx, ownerID)
			if err != nil {
				logger.Warn("valuation warmup", slog.String("owner_id", ownerID), slog.Any("error", err))
				continue
			}
			logger.Info("valuation warmed",
				slog.String("owner_id", ownerID),
				slog.Float64("total_value", summary.TotalValue))
		}
		return nil
	}
}
