package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskWACRecalc rebuilds weighted average costs from purchase history.
	TaskWACRecalc = "warehouse:wac_recalc"
	// TaskConsistencyCheck scans material figures for anomalies.
	TaskConsistencyCheck = "warehouse:consistency_check"
	// TaskValuationWarmup precomputes valuation summaries into the cache.
	TaskValuationWarmup = "valuation:warmup"
)

// OwnerLister enumerates tenant owner ids for fan-out jobs.
type OwnerLister interface {
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// ScopedPayload targets a task at one owner, or all owners when empty.
type ScopedPayload struct {
	OwnerID      string    `json:"owner_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newScopedTask(taskType, ownerID string) (*asynq.Task, error) {
	body, err := json.Marshal(ScopedPayload{OwnerID: ownerID, ScheduledFor: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewWACRecalcTask constructs a WAC recalculation task.
func NewWACRecalcTask(ownerID string) (*asynq.Task, error) {
	return newScopedTask(TaskWACRecalc, ownerID)
}

// NewConsistencyCheckTask constructs a consistency scan task.
func NewConsistencyCheckTask(ownerID string) (*asynq.Task, error) {
	return newScopedTask(TaskConsistencyCheck, ownerID)
}

// NewValuationWarmupTask constructs a valuation warmup task.
func NewValuationWarmupTask(ownerID string) (*asynq.Task, error) {
	return newScopedTask(TaskValuationWarmup, ownerID)
}

// resolveOwners expands a payload into the owner ids it targets.
func resolveOwners(ctx context.Context, payload ScopedPayload, owners OwnerLister) ([]string, error) {
	if payload.OwnerID != "" {
		return []string{payload.OwnerID}, nil
	}
	if owners == nil {
		return nil, nil
	}
	return owners.ListAccountIDs(ctx)
}
