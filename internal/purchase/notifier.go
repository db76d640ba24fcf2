package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Notifier publishes status change events on a Redis channel.
type Notifier struct {
	client    *redis.Client
	directory DirectoryPort
	logger    *slog.Logger
	printer   *message.Printer
}

// NewNotifier constructs a Notifier.
func NewNotifier(client *redis.Client, directory DirectoryPort, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:    client,
		directory: directory,
		logger:    logger,
		printer:   message.NewPrinter(language.Indonesian),
	}
}

// PublishStatusChanged resolves the supplier reference to a display name and
// publishes the event. Fire-and-forget: errors are returned for the caller
// to log, never to roll back the transition.
func (n *Notifier) PublishStatusChanged(ctx context.Context, p Purchase, from, to Status, syncApplied bool) error {
	evt := StatusChangedEvent{
		PurchaseID:   p.ID,
		SupplierName: p.SupplierRef,
		TotalValue:   p.TotalValue,
		TotalDisplay: n.printer.Sprintf("Rp%.2f", p.TotalValue),
		FromStatus:   from,
		ToStatus:     to,
		SyncApplied:  syncApplied,
		OccurredAt:   time.Now().UTC(),
	}
	if n.directory != nil {
		evt.SupplierName = n.directory.NameFor(ctx, p.SupplierRef, p.OwnerID)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("purchase: marshal event: %w", err)
	}
	if n.client == nil {
		return nil
	}
	return n.client.Publish(ctx, Channel, payload).Err()
}
