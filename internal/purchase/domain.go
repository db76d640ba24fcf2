package purchase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

// Status is the lifecycle state of a purchase.
type Status string

const (
	// StatusPending is the initial state of an authored purchase.
	StatusPending Status = "pending"
	// StatusCompleted marks goods as received; stock has been applied.
	StatusCompleted Status = "completed"
	// StatusCancelled is a terminal state with no stock effect.
	StatusCancelled Status = "cancelled"
)

// KnownStatuses lists every accepted status value.
var KnownStatuses = []Status{StatusPending, StatusCompleted, StatusCancelled}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range KnownStatuses {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

// LineItem is one purchased material position.
type LineItem struct {
	MaterialID string  `json:"material_id,omitempty"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	Unit       string  `json:"unit"`
	Qty        float64 `json:"qty"`
	UnitPrice  float64 `json:"unit_price"`
	Subtotal   float64 `json:"subtotal,omitempty"`
}

// EffectiveUnitPrice returns the explicit unit price, falling back to
// subtotal divided by quantity when only a subtotal was recorded.
func (l LineItem) EffectiveUnitPrice() float64 {
	if l.UnitPrice > 0 {
		return l.UnitPrice
	}
	if l.Qty > 0 && l.Subtotal > 0 {
		return l.Subtotal / l.Qty
	}
	return 0
}

// Purchase is one purchase order scoped to an owner.
type Purchase struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	SupplierRef string     `json:"supplier"`
	Date        time.Time  `json:"date"`
	LineItems   []LineItem `json:"items"`
	TotalValue  float64    `json:"total_value"`
	Status      Status     `json:"status"`
	Note        string     `json:"note,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TotalTolerance is the accepted drift between the stored total and the sum
// of line subtotals, enforced at write time.
const TotalTolerance = 0.01

// SumLines computes the total from line items.
func (p Purchase) SumLines() float64 {
	var total float64
	for _, item := range p.LineItems {
		total += item.Qty * item.EffectiveUnitPrice()
	}
	return total
}

// ValidateTotal checks the stored total against the line items.
func (p Purchase) ValidateTotal() error {
	if len(p.LineItems) == 0 {
		return nil
	}
	if math.Abs(p.TotalValue-p.SumLines()) > TotalTolerance {
		return fmt.Errorf("purchase total %.2f does not match line sum %.2f", p.TotalValue, p.SumLines())
	}
	return nil
}

// SyncDocument projects the purchase into the warehouse subsystem's shape.
func (p Purchase) SyncDocument() warehouse.SyncDocument {
	doc := warehouse.SyncDocument{
		PurchaseID: p.ID,
		OwnerID:    p.OwnerID,
		Supplier:   strings.TrimSpace(p.SupplierRef),
	}
	for _, item := range p.LineItems {
		doc.Lines = append(doc.Lines, warehouse.SyncLine{
			MaterialID: item.MaterialID,
			Name:       item.Name,
			Category:   item.Category,
			Unit:       item.Unit,
			Qty:        item.Qty,
			UnitPrice:  item.EffectiveUnitPrice(),
		})
	}
	return doc
}

// Compensation describes what the engine did to local state after a failed
// stock synchronization.
type Compensation string

const (
	// CompensationNone means no local change had been made yet, so the
	// purchase is exactly as it was before the call.
	CompensationNone Compensation = "none"
	// CompensationStatusReverted means the optimistic status write was
	// rolled back to the pre-call value; inventory was not affected.
	CompensationStatusReverted Compensation = "status_reverted"
	// CompensationRevertFailed means the rollback itself failed and the
	// purchase was left in the target status without its stock effect.
	CompensationRevertFailed Compensation = "status_revert_failed"
)

// SyncError reports a stock synchronization that kept failing after every
// retry. Compensation tells the caller which state the purchase ended in.
type SyncError struct {
	PurchaseID   string
	From         Status
	To           Status
	Compensation Compensation
	Err          error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("stock sync failed for purchase %s (%s -> %s, compensation=%s): %v",
		e.PurchaseID, e.From, e.To, e.Compensation, e.Err)
}

// Unwrap exposes the underlying retry failure.
func (e *SyncError) Unwrap() error {
	return e.Err
}
