package suppliers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Service exposes supplier master data and name resolution.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	lookups singleflight.Group
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Get returns one supplier scoped to the owner.
func (s *Service) Get(ctx context.Context, id int64, ownerID string) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrValidation
	}
	return s.repo.Get(ctx, id, ownerID)
}

// List returns suppliers for an owner.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]Supplier, int, error) {
	return s.repo.List(ctx, ownerID, limit, offset)
}

// Create validates and persists a supplier.
func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" || supplier.OwnerID == "" {
		return Supplier{}, shared.ErrValidation
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	return s.repo.Create(ctx, supplier)
}

// NameFor resolves a raw supplier reference to a display name. Numeric ids
// are looked up in the directory; free-text references resolve to the
// canonical supplier row when one matches, otherwise the literal text.
// Resolution is best-effort: lookup failures fall back to the literal text,
// never an error the caller has to handle. Concurrent lookups for the same
// reference are collapsed.
func (s *Service) NameFor(ctx context.Context, raw, ownerID string) string {
	ref := ParseRef(raw)
	if ref.IsZero() {
		return UnknownName
	}
	key := fmt.Sprintf("%s:%s", ownerID, ref.String())
	result, err, _ := s.lookups.Do(key, func() (interface{}, error) {
		var supplier Supplier
		var err error
		if ref.IsID() {
			supplier, err = s.repo.Get(ctx, ref.ID, ownerID)
		} else {
			supplier, err = s.repo.FindByName(ctx, ref.Name, ownerID)
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(supplier.Name), nil
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("supplier lookup failed", slog.String("ref", ref.String()), slog.Any("error", err))
		}
		// A numeric-looking value with no matching row may itself be a name;
		// a free-text name without a master row stays as typed.
		return ref.Name
	}
	name, _ := result.(string)
	if name == "" {
		return UnknownName
	}
	return name
}
