package valuation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/purchase"
	"github.com/lumbung-erp/lumbung-erp/internal/warehouse"
)

type stubMaterials struct {
	items []warehouse.Material
	calls int
}

func (s *stubMaterials) Materials(ctx context.Context, ownerID string) ([]warehouse.Material, error) {
	s.calls++
	var out []warehouse.Material
	for _, m := range s.items {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleMaterials() []warehouse.Material {
	return []warehouse.Material{
		{ID: "m-1", OwnerID: "owner-1", Name: "Tepung Terigu", Category: "bahan kering", Unit: "kg", Stock: 20, Minimum: 5, AvgCost: 12000},
		{ID: "m-2", OwnerID: "owner-1", Name: "Gula Pasir", Category: "bahan kering", Unit: "kg", Stock: 2, Minimum: 5, AvgCost: 15000},
		{ID: "m-3", OwnerID: "owner-1", Name: "Susu UHT", Category: "bahan basah", Unit: "liter", Stock: 10, AvgCost: 0, UnitPrice: 18000},
		{ID: "m-4", OwnerID: "owner-2", Name: "Keju", Category: "bahan basah", Unit: "kg", Stock: 4, AvgCost: 90000},
	}
}

func TestSummaryComputesOwnerValuation(t *testing.T) {
	cache := NewCache(testClient(t), time.Minute)
	materials := &stubMaterials{items: sampleMaterials()}
	svc := NewService(materials, cache, nil)

	summary, err := svc.Summary(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalItems)
	// 20*12000 + 2*15000 + 10*18000 (unit price fallback for zero avg cost)
	require.InDelta(t, 450000, summary.TotalValue, 0.001)
	require.Equal(t, 1, summary.LowStock)
	require.Len(t, summary.Categories, 2)
	require.Equal(t, "bahan basah", summary.Categories[0].Category)
	require.Equal(t, "bahan kering", summary.Categories[1].Category)
}

func TestSummaryServesFromCache(t *testing.T) {
	cache := NewCache(testClient(t), time.Minute)
	materials := &stubMaterials{items: sampleMaterials()}
	svc := NewService(materials, cache, nil)

	_, err := svc.Summary(context.Background(), "owner-1")
	require.NoError(t, err)
	_, err = svc.Summary(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, materials.calls)
}

func TestBumpInvalidatesCachedSummary(t *testing.T) {
	cache := NewCache(testClient(t), time.Minute)
	materials := &stubMaterials{items: sampleMaterials()}
	svc := NewService(materials, cache, nil)

	_, err := svc.Summary(context.Background(), "owner-1")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(context.Background()))
	_, err = svc.Summary(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 2, materials.calls)
}

func TestListenerBumpsOnStockAffectingEvents(t *testing.T) {
	client := testClient(t)
	cache := NewCache(client, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cache.ListenForStatusChanges(ctx, nil))

	before, err := cache.Version(ctx)
	require.NoError(t, err)

	payload, err := json.Marshal(purchase.StatusChangedEvent{PurchaseID: "p-1", SyncApplied: true})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, purchase.Channel, payload).Err())

	require.Eventually(t, func() bool {
		after, err := cache.Version(ctx)
		return err == nil && after > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListenerIgnoresSkippedSync(t *testing.T) {
	client := testClient(t)
	cache := NewCache(client, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cache.ListenForStatusChanges(ctx, nil))

	before, err := cache.Version(ctx)
	require.NoError(t, err)

	payload, err := json.Marshal(purchase.StatusChangedEvent{PurchaseID: "p-1", SyncApplied: false})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, purchase.Channel, payload).Err())

	time.Sleep(100 * time.Millisecond)
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
