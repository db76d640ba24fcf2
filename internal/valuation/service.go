package valuation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

// MaterialsPort supplies the materials a valuation is computed from.
type MaterialsPort interface {
	Materials(ctx context.Context, ownerID string) ([]warehouse.Material, error)
}

// CategoryValue aggregates stock value within one category.
type CategoryValue struct {
	Category string  `json:"category"`
	Items    int     `json:"items"`
	Value    float64 `json:"value"`
}

// Summary is the owner's inventory valuation at average cost.
type Summary struct {
	OwnerID      string          `json:"owner_id"`
	TotalItems   int             `json:"total_items"`
	TotalValue   float64         `json:"total_value"`
	LowStock     int             `json:"low_stock"`
	Categories   []CategoryValue `json:"categories"`
	ComputedAt   time.Time       `json:"computed_at"`
	CacheVersion int64           `json:"cache_version"`
}

// Service computes inventory valuations.
type Service struct {
	materials MaterialsPort
	cache     *Cache
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(materials MaterialsPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{materials: materials, cache: cache, logger: logger}
}

// Summary returns the owner's valuation, served from cache when warm.
func (s *Service) Summary(ctx context.Context, ownerID string) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "valuation", "summary", ownerID)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.compute(ctx, ownerID)
	})
	return summary, err
}

func (s *Service) compute(ctx context.Context, ownerID string) (Summary, error) {
	materials, err := s.materials.Materials(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	version, err := s.cache.Version(ctx)
	if err != nil {
		version = 0
	}

	summary := Summary{OwnerID: ownerID, ComputedAt: time.Now().UTC(), CacheVersion: version}
	byCategory := make(map[string]*CategoryValue)
	for _, m := range materials {
		cost := m.AvgCost
		if cost <= 0 {
			cost = m.UnitPrice
		}
		value := m.Stock * cost
		if m.Stock < 0 {
			value = 0
		}
		summary.TotalItems++
		summary.TotalValue += value
		if m.Minimum > 0 && m.Stock < m.Minimum {
			summary.LowStock++
		}
		category := m.Category
		if category == "" {
			category = "uncategorized"
		}
		entry, ok := byCategory[category]
		if !ok {
			entry = &CategoryValue{Category: category}
			byCategory[category] = entry
		}
		entry.Items++
		entry.Value += value
	}

	for _, entry := range byCategory {
		summary.Categories = append(summary.Categories, *entry)
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Category < summary.Categories[j].Category
	})
	return summary, nil
}
