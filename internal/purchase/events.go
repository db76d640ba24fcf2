package purchase

import (
	"context"
	"time"
)

// Channel is the pub/sub channel carrying status change notifications.
const Channel = "purchase.status.changed"

// StatusChangedEvent is published after a committed status transition.
// Consumers must treat delivery as at-most-once and non-durable.
type StatusChangedEvent struct {
	PurchaseID   string    `json:"purchase_id"`
	SupplierName string    `json:"supplier_name"`
	TotalValue   float64   `json:"total_value"`
	TotalDisplay string    `json:"total_display"`
	FromStatus   Status    `json:"from_status"`
	ToStatus     Status    `json:"to_status"`
	SyncApplied  bool      `json:"sync_applied"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NotifierPort publishes status change events. Implementations are
// best-effort; the engine never fails a committed transition over a publish
// error.
type NotifierPort interface {
	PublishStatusChanged(ctx context.Context, purchase Purchase, from, to Status, syncApplied bool) error
}

// DirectoryPort resolves a raw supplier reference to a display name.
type DirectoryPort interface {
	NameFor(ctx context.Context, raw, ownerID string) string
}
