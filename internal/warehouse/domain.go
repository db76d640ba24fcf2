package warehouse

import "time"

// Material is one raw material tracked in the warehouse, scoped to an owner.
type Material struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Unit      string    `json:"unit"`
	Stock     float64   `json:"stock"`
	Minimum   float64   `json:"minimum"`
	UnitPrice float64   `json:"unit_price"`
	AvgCost   float64   `json:"avg_cost"`
	Supplier  string    `json:"supplier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncLine is one purchase line projected into the warehouse subsystem.
type SyncLine struct {
	MaterialID string
	Name       string
	Category   string
	Unit       string
	Qty        float64
	UnitPrice  float64
}

// SyncDocument carries everything Apply and Reverse need about a purchase.
// The warehouse never reads the purchase store; callers project the record.
type SyncDocument struct {
	PurchaseID string
	OwnerID    string
	Supplier   string
	Lines      []SyncLine
}

// SyncDirection distinguishes consumption from restoration.
type SyncDirection string

const (
	// DirectionApply decrements availability by recording purchased stock.
	DirectionApply SyncDirection = "apply"
	// DirectionReverse restores stock consumed by an earlier apply.
	DirectionReverse SyncDirection = "reverse"
)

// LineResult describes what happened to one line during a sync or recalc.
type LineResult struct {
	MaterialID string  `json:"material_id"`
	Name       string  `json:"name"`
	OldStock   float64 `json:"old_stock"`
	NewStock   float64 `json:"new_stock"`
	OldWAC     float64 `json:"old_wac"`
	NewWAC     float64 `json:"new_wac"`
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
}

// SyncSummary aggregates line results for recalculation reports.
type SyncSummary struct {
	TotalItems int           `json:"total_items"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Results    []LineResult  `json:"results"`
	Duration   time.Duration `json:"duration"`
}

// ConsistencyIssue flags a warehouse item whose figures look wrong.
type ConsistencyIssue struct {
	MaterialID string   `json:"material_id"`
	Name       string   `json:"name"`
	Issues     []string `json:"issues"`
	Severity   string   `json:"severity"`
}
