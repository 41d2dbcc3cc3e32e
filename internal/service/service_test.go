package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"merchledger/internal/domain"
	"merchledger/internal/store"
	"merchledger/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

type fixture struct {
	svc       *Service
	publisher *recordingPublisher
	cache     *mapCache
	ctx       context.Context
	tour      domain.Tour
	shows     []domain.Show
	shirt     domain.Product
	poster    domain.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	publisher := &recordingPublisher{}
	statsCache := newMapCache()
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{Username: "manager", Password: "x", Role: domain.RoleMember, Active: true}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	svc := New(repo, statsCache, publisher, time.Minute)
	ctx := WithActor(context.Background(), domain.Actor{Username: "manager", Role: domain.RoleMember})

	tour, err := svc.CreateTour(ctx, domain.TourCreateRequest{Name: "Spring Run"})
	if err != nil {
		t.Fatalf("create tour failed: %v", err)
	}
	var shows []domain.Show
	for _, date := range []string{"2025-05-02", "2025-05-04", "2025-05-06"} {
		show, err := svc.CreateShow(ctx, domain.ShowCreateRequest{TourID: tour.ID, Date: date, Venue: "Hall", City: "Leeds"})
		if err != nil {
			t.Fatalf("create show %s failed: %v", date, err)
		}
		shows = append(shows, show)
	}
	shirt, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Tour Shirt", Price: decimal.RequireFromString("25.00"), Size: "M", Color: "black"})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	poster, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Poster", Price: decimal.RequireFromString("19.99")})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	return fixture{
		svc:       svc,
		publisher: publisher,
		cache:     statsCache,
		ctx:       ctx,
		tour:      tour,
		shows:     shows,
		shirt:     shirt,
		poster:    poster,
	}
}

func intPtr(v int) *int {
	return &v
}

func (f fixture) createRow(t *testing.T, showID string, productID string, start int, end *int) domain.ShowInventory {
	t.Helper()
	row, err := f.svc.CreateInventory(f.ctx, showID, productID, domain.InventoryCreateRequest{StartInventory: start, EndInventory: end})
	if err != nil {
		t.Fatalf("create inventory failed: %v", err)
	}
	return row
}

func (f fixture) adjust(t *testing.T, showID string, productID string, kind domain.AdjustmentKind, qty int) domain.Adjustment {
	t.Helper()
	adj, err := f.svc.CreateAdjustment(f.ctx, showID, domain.AdjustmentCreateRequest{
		ProductID: productID,
		Quantity:  qty,
		Type:      kind,
		Reason:    "counted at the stand",
	})
	if err != nil {
		t.Fatalf("create %s adjustment failed: %v", kind, err)
	}
	return adj
}

func (f fixture) discount(t *testing.T, showID string, productID string, qty int, value string, discountType domain.DiscountType) domain.Adjustment {
	t.Helper()
	amount := decimal.RequireFromString(value)
	adj, err := f.svc.CreateAdjustment(f.ctx, showID, domain.AdjustmentCreateRequest{
		ProductID:     productID,
		Quantity:      qty,
		Type:          domain.AdjustmentDiscount,
		Reason:        "crew discount",
		DiscountValue: &amount,
		DiscountType:  &discountType,
	})
	if err != nil {
		t.Fatalf("create discount adjustment failed: %v", err)
	}
	return adj
}

func TestShowStatsReconcilesSoldUnits(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]

	f.createRow(t, show.ID, f.shirt.ID, 100, intPtr(50))
	f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentRestock, 10)
	f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentGiveaway, 3)
	f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentLoss, 2)
	f.discount(t, show.ID, f.shirt.ID, 2, "5.00", domain.DiscountFixed)

	stats, err := f.svc.ShowStats(f.ctx, show.ID)
	if err != nil {
		t.Fatalf("show stats failed: %v", err)
	}
	if len(stats.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(stats.Products))
	}
	p := stats.Products[0]
	if p.Sold != 55 {
		t.Fatalf("expected sold 55, got %d", p.Sold)
	}
	if !p.Revenue.Equal(decimal.RequireFromString("1375")) {
		t.Fatalf("expected revenue 1375, got %s", p.Revenue)
	}
	if !p.TotalDiscount.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected discount 10, got %s", p.TotalDiscount)
	}
	if !p.NetRevenue.Equal(decimal.RequireFromString("1365")) {
		t.Fatalf("expected net revenue 1365, got %s", p.NetRevenue)
	}
	if p.Adjustments != (domain.AdjustmentTotals{Restock: 10, Giveaway: 3, Loss: 2, Discount: 2}) {
		t.Fatalf("unexpected adjustment totals: %+v", p.Adjustments)
	}
	if stats.Totals.Sold != 55 || !stats.Totals.NetRevenue.Equal(p.NetRevenue) {
		t.Fatalf("totals do not match the single product: %+v", stats.Totals)
	}
}

func TestShowStatsRoundsPercentageDiscountOnce(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]

	f.createRow(t, show.ID, f.poster.ID, 10, intPtr(7))
	f.discount(t, show.ID, f.poster.ID, 3, "15", domain.DiscountPercentage)

	stats, err := f.svc.ShowStats(f.ctx, show.ID)
	if err != nil {
		t.Fatalf("show stats failed: %v", err)
	}
	if !stats.Totals.TotalDiscount.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("expected discount 9.00, got %s", stats.Totals.TotalDiscount)
	}
	if !stats.Totals.NetRevenue.Equal(decimal.RequireFromString("50.97")) {
		t.Fatalf("expected net revenue 50.97, got %s", stats.Totals.NetRevenue)
	}
}

func TestShowStatsRejectsOpenRow(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 100, nil)

	_, err := f.svc.ShowStats(f.ctx, show.ID)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for open row, got %v", err)
	}
}

func TestShowStatsCacheInvalidatedByAdjustment(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 20, intPtr(10))

	first, err := f.svc.ShowStats(f.ctx, show.ID)
	if err != nil {
		t.Fatalf("show stats failed: %v", err)
	}
	if !f.cache.has("stats:show:" + show.ID) {
		t.Fatalf("expected show stats to be cached")
	}

	f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentRestock, 5)
	if f.cache.has("stats:show:" + show.ID) {
		t.Fatalf("expected adjustment to invalidate cached show stats")
	}

	second, err := f.svc.ShowStats(f.ctx, show.ID)
	if err != nil {
		t.Fatalf("show stats failed: %v", err)
	}
	if first.Totals.Sold != 10 || second.Totals.Sold != 15 {
		t.Fatalf("expected sold 10 then 15, got %d then %d", first.Totals.Sold, second.Totals.Sold)
	}
}

func TestCreateInventoryValidatesCounts(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]

	_, err := f.svc.CreateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryCreateRequest{StartInventory: 10, EndInventory: intPtr(11)})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input when end exceeds start, got %v", err)
	}
	_, err = f.svc.CreateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryCreateRequest{StartInventory: -1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative start, got %v", err)
	}

	row := f.createRow(t, show.ID, f.shirt.ID, 100, intPtr(100))
	if row.StartInventory != 100 || row.EndInventory == nil || *row.EndInventory != 100 {
		t.Fatalf("expected start=end=100 to be accepted, got %+v", row)
	}
}

func TestCreateInventoryNotFoundAndConflict(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]

	_, err := f.svc.CreateInventory(f.ctx, "show-missing", f.shirt.ID, domain.InventoryCreateRequest{StartInventory: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing show, got %v", err)
	}
	_, err = f.svc.CreateInventory(f.ctx, show.ID, "prod-missing", domain.InventoryCreateRequest{StartInventory: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing product, got %v", err)
	}

	f.createRow(t, show.ID, f.shirt.ID, 10, nil)
	_, err = f.svc.CreateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryCreateRequest{StartInventory: 12})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate row, got %v", err)
	}
}

func TestCreateInventoryBatchReportsFailures(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.poster.ID, 5, nil)

	result, err := f.svc.CreateInventoryBatch(f.ctx, show.ID, []domain.InventoryCreateRequest{
		{ProductID: f.shirt.ID, StartInventory: 40},
		{ProductID: f.poster.ID, StartInventory: 8},
		{ProductID: "prod-missing", StartInventory: 3},
		{ProductID: "", StartInventory: 3},
	})
	if err != nil {
		t.Fatalf("batch create failed: %v", err)
	}
	if len(result.Created) != 1 || result.Created[0].ProductID != f.shirt.ID {
		t.Fatalf("expected only the shirt row to be created, got %+v", result.Created)
	}
	if len(result.Failed) != 3 {
		t.Fatalf("expected 3 failures, got %+v", result.Failed)
	}
	if !errors.Is(result.Failed[0].Err, store.ErrConflict) {
		t.Fatalf("expected duplicate poster to conflict, got %v", result.Failed[0].Err)
	}
	if !errors.Is(result.Failed[1].Err, store.ErrNotFound) {
		t.Fatalf("expected missing product to be not found, got %v", result.Failed[1].Err)
	}
}

func TestUpdateInventoryWithoutChanges(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	row := f.createRow(t, show.ID, f.shirt.ID, 30, intPtr(12))
	published := f.publisher.count()

	result, err := f.svc.UpdateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryUpdateRequest{
		StartInventory: intPtr(30),
		EndInventory:   intPtr(12),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if result.Changed {
		t.Fatalf("expected unchanged result")
	}
	if !result.Inventory.UpdatedAt.Equal(row.UpdatedAt) {
		t.Fatalf("expected no write for unchanged update")
	}
	if f.publisher.count() != published {
		t.Fatalf("expected no event for unchanged update")
	}

	_, err = f.svc.UpdateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryUpdateRequest{})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
}

func TestUpdateInventoryAppliesPartialFields(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)

	result, err := f.svc.UpdateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryUpdateRequest{EndInventory: intPtr(9)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !result.Changed || result.Inventory.StartInventory != 30 || *result.Inventory.EndInventory != 9 {
		t.Fatalf("unexpected update result: %+v", result)
	}

	_, err = f.svc.UpdateInventory(f.ctx, show.ID, f.shirt.ID, domain.InventoryUpdateRequest{StartInventory: intPtr(5)})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input when start drops below end, got %v", err)
	}

	_, err = f.svc.UpdateInventory(f.ctx, show.ID, f.poster.ID, domain.InventoryUpdateRequest{StartInventory: intPtr(5)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing row, got %v", err)
	}
}

func TestUpdateInventoryBatchBuckets(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)
	f.createRow(t, show.ID, f.poster.ID, 10, intPtr(4))

	result, err := f.svc.UpdateInventoryBatch(f.ctx, show.ID, []domain.InventoryUpdateRequest{
		{ProductID: f.shirt.ID, EndInventory: intPtr(11)},
		{ProductID: f.poster.ID, EndInventory: intPtr(4)},
		{ProductID: "prod-missing", EndInventory: intPtr(1)},
	})
	if err != nil {
		t.Fatalf("batch update failed: %v", err)
	}
	if len(result.Updated) != 1 || len(result.Unchanged) != 1 || len(result.Failed) != 1 {
		t.Fatalf("unexpected buckets: updated=%d unchanged=%d failed=%d", len(result.Updated), len(result.Unchanged), len(result.Failed))
	}
	if result.Unchanged[0].ProductID != f.poster.ID {
		t.Fatalf("expected poster to be unchanged, got %s", result.Unchanged[0].ProductID)
	}
}

func TestDeleteInventoryRemovesAdjustments(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)
	adj := f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentLoss, 1)

	if err := f.svc.DeleteInventory(f.ctx, show.ID, f.shirt.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.svc.GetInventory(f.ctx, show.ID, f.shirt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected row to be gone, got %v", err)
	}
	if _, err := f.svc.GetAdjustment(f.ctx, show.ID, adj.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected adjustment to be gone, got %v", err)
	}
	if err := f.svc.DeleteInventory(f.ctx, show.ID, f.shirt.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}

func TestCopyFromPreviousShowCarriesEndPlusNetDelta(t *testing.T) {
	f := newFixture(t)
	first, second := f.shows[0], f.shows[1]

	f.createRow(t, first.ID, f.shirt.ID, 100, intPtr(50))
	f.adjust(t, first.ID, f.shirt.ID, domain.AdjustmentRestock, 15)
	f.adjust(t, first.ID, f.shirt.ID, domain.AdjustmentLoss, 5)
	f.discount(t, first.ID, f.shirt.ID, 4, "2.00", domain.DiscountFixed)

	result, err := f.svc.CopyFromPreviousShow(f.ctx, second.ID)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if result.PreviousShowID != first.ID {
		t.Fatalf("expected previous show %s, got %s", first.ID, result.PreviousShowID)
	}
	if len(result.Updated) != 1 || result.Updated[0].Quantity != 60 {
		t.Fatalf("expected carried quantity 60, got %+v", result.Updated)
	}

	row, err := f.svc.GetInventory(f.ctx, second.ID, f.shirt.ID)
	if err != nil {
		t.Fatalf("get carried row failed: %v", err)
	}
	if row.StartInventory != 60 || row.EndInventory != nil {
		t.Fatalf("expected open row starting at 60, got %+v", row)
	}
}

func TestCopyFromPreviousShowIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first, second := f.shows[0], f.shows[1]
	f.createRow(t, first.ID, f.shirt.ID, 100, intPtr(50))
	f.adjust(t, first.ID, f.shirt.ID, domain.AdjustmentRestock, 10)

	if _, err := f.svc.CopyFromPreviousShow(f.ctx, second.ID); err != nil {
		t.Fatalf("first copy failed: %v", err)
	}
	published := f.publisher.count()

	again, err := f.svc.CopyFromPreviousShow(f.ctx, second.ID)
	if err != nil {
		t.Fatalf("second copy failed: %v", err)
	}
	if len(again.Updated) != 0 {
		t.Fatalf("expected nothing new on second copy, got %+v", again.Updated)
	}
	if len(again.Unchanged) != 1 || again.Unchanged[0].Quantity != 60 {
		t.Fatalf("expected unchanged row with quantity 60, got %+v", again.Unchanged)
	}
	if f.publisher.count() != published {
		t.Fatalf("expected no event for a no-op copy")
	}
}

func TestCopyFromPreviousShowKeepsExistingRows(t *testing.T) {
	f := newFixture(t)
	first, second := f.shows[0], f.shows[1]
	f.createRow(t, first.ID, f.shirt.ID, 100, intPtr(50))
	f.createRow(t, first.ID, f.poster.ID, 20, intPtr(5))
	f.createRow(t, second.ID, f.poster.ID, 42, nil)

	result, err := f.svc.CopyFromPreviousShow(f.ctx, second.ID)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0].ProductID != f.shirt.ID {
		t.Fatalf("expected only the shirt to be carried, got %+v", result.Updated)
	}
	if len(result.Unchanged) != 1 || result.Unchanged[0].Quantity != 42 {
		t.Fatalf("expected poster to keep its start of 42, got %+v", result.Unchanged)
	}
}

func TestCopyFromPreviousShowWithOpenRowWritesNothing(t *testing.T) {
	f := newFixture(t)
	first, second := f.shows[0], f.shows[1]
	f.createRow(t, first.ID, f.shirt.ID, 100, intPtr(50))
	f.createRow(t, first.ID, f.poster.ID, 20, nil)

	_, err := f.svc.CopyFromPreviousShow(f.ctx, second.ID)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for open previous row, got %v", err)
	}
	rows, err := f.svc.ListInventory(f.ctx, second.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows written, got %d", len(rows))
	}
}

func TestCopyFromPreviousShowErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CopyFromPreviousShow(f.ctx, f.shows[0].ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for first show, got %v", err)
	}

	_, err = f.svc.CopyFromPreviousShow(f.ctx, f.shows[1].ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found when previous show has no inventory, got %v", err)
	}

	loose, err := f.svc.CreateShow(f.ctx, domain.ShowCreateRequest{Date: "2025-06-01", Venue: "Pop-up"})
	if err != nil {
		t.Fatalf("create show failed: %v", err)
	}
	_, err = f.svc.CopyFromPreviousShow(f.ctx, loose.ID)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for show without tour, got %v", err)
	}

	_, err = f.svc.CopyFromPreviousShow(f.ctx, "show-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing show, got %v", err)
	}
}

func TestFindPreviousShowBreaksDateTiesByID(t *testing.T) {
	f := newFixture(t)
	extra, err := f.svc.CreateShow(f.ctx, domain.ShowCreateRequest{TourID: f.tour.ID, Date: "2025-05-04", Venue: "Matinee"})
	if err != nil {
		t.Fatalf("create show failed: %v", err)
	}

	shows, err := f.svc.ListShowsByTour(f.ctx, f.tour.ID)
	if err != nil {
		t.Fatalf("list shows failed: %v", err)
	}
	for i := 1; i < len(shows); i++ {
		prev, cur := shows[i-1], shows[i]
		if cur.Date.Before(prev.Date) || (cur.Date.Equal(prev.Date) && cur.ID < prev.ID) {
			t.Fatalf("shows out of order at %d: %s before %s", i, prev.ID, cur.ID)
		}
	}

	sameDay := []domain.Show{f.shows[1], extra}
	if sameDay[1].ID < sameDay[0].ID {
		sameDay[0], sameDay[1] = sameDay[1], sameDay[0]
	}
	previous, err := f.svc.FindPreviousShow(f.ctx, sameDay[1].ID)
	if err != nil {
		t.Fatalf("find previous failed: %v", err)
	}
	if previous.ID != sameDay[0].ID {
		t.Fatalf("expected %s, got %s", sameDay[0].ID, previous.ID)
	}
}

func TestTourStatsSkipsOpenShows(t *testing.T) {
	f := newFixture(t)
	f.createRow(t, f.shows[0].ID, f.shirt.ID, 100, intPtr(60))
	f.createRow(t, f.shows[1].ID, f.shirt.ID, 60, intPtr(50))
	f.createRow(t, f.shows[1].ID, f.poster.ID, 10, nil)
	f.createRow(t, f.shows[2].ID, f.poster.ID, 10, intPtr(7))

	stats, err := f.svc.TourStats(f.ctx, f.tour.ID)
	if err != nil {
		t.Fatalf("tour stats failed: %v", err)
	}
	if len(stats.SkippedShows) != 1 || stats.SkippedShows[0] != f.shows[1].ID {
		t.Fatalf("expected show 2 to be skipped, got %v", stats.SkippedShows)
	}
	if len(stats.IncludedShows) != 2 {
		t.Fatalf("expected 2 included shows, got %v", stats.IncludedShows)
	}
	if stats.Totals.Sold != 43 {
		t.Fatalf("expected sold 43, got %d", stats.Totals.Sold)
	}
	if !stats.Totals.Revenue.Equal(decimal.RequireFromString("1059.97")) {
		t.Fatalf("expected revenue 1059.97, got %s", stats.Totals.Revenue)
	}

	if _, err := f.svc.TourStats(f.ctx, "tour-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing tour, got %v", err)
	}
}

func TestProductTourStats(t *testing.T) {
	f := newFixture(t)
	f.createRow(t, f.shows[0].ID, f.shirt.ID, 100, intPtr(60))
	f.createRow(t, f.shows[1].ID, f.shirt.ID, 60, nil)
	f.createRow(t, f.shows[1].ID, f.poster.ID, 10, intPtr(2))
	f.createRow(t, f.shows[2].ID, f.shirt.ID, 80, intPtr(70))
	f.adjust(t, f.shows[2].ID, f.shirt.ID, domain.AdjustmentGiveaway, 2)

	stats, err := f.svc.ProductTourStats(f.ctx, f.shirt.ID, f.tour.ID)
	if err != nil {
		t.Fatalf("product stats failed: %v", err)
	}
	if len(stats.SkippedShows) != 1 || stats.SkippedShows[0] != f.shows[1].ID {
		t.Fatalf("expected show 2 to be skipped, got %v", stats.SkippedShows)
	}
	if stats.Totals.Sold != 48 {
		t.Fatalf("expected sold 48, got %d", stats.Totals.Sold)
	}
	if stats.Totals.Adjustments.Giveaway != 2 {
		t.Fatalf("expected giveaway 2, got %d", stats.Totals.Adjustments.Giveaway)
	}

	if _, err := f.svc.ProductTourStats(f.ctx, "prod-missing", f.tour.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for missing product, got %v", err)
	}
}

func TestCreateAdjustmentValidation(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)

	cases := []struct {
		name string
		req  domain.AdjustmentCreateRequest
	}{
		{"zero quantity", domain.AdjustmentCreateRequest{ProductID: f.shirt.ID, Quantity: 0, Type: domain.AdjustmentLoss, Reason: "x"}},
		{"unknown type", domain.AdjustmentCreateRequest{ProductID: f.shirt.ID, Quantity: 1, Type: "theft", Reason: "x"}},
		{"missing reason", domain.AdjustmentCreateRequest{ProductID: f.shirt.ID, Quantity: 1, Type: domain.AdjustmentLoss}},
		{"discount without payload", domain.AdjustmentCreateRequest{ProductID: f.shirt.ID, Quantity: 1, Type: domain.AdjustmentDiscount, Reason: "x"}},
	}
	for _, tc := range cases {
		if _, err := f.svc.CreateAdjustment(f.ctx, show.ID, tc.req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}

	value := decimal.RequireFromString("3")
	fixed := domain.DiscountFixed
	_, err := f.svc.CreateAdjustment(f.ctx, show.ID, domain.AdjustmentCreateRequest{
		ProductID: f.shirt.ID, Quantity: 1, Type: domain.AdjustmentLoss, Reason: "x",
		DiscountValue: &value, DiscountType: &fixed,
	})
	if !errors.Is(err, domain.ErrDiscountNotAllowed) {
		t.Fatalf("expected discount not allowed, got %v", err)
	}

	_, err = f.svc.CreateAdjustment(context.Background(), show.ID, domain.AdjustmentCreateRequest{
		ProductID: f.shirt.ID, Quantity: 1, Type: domain.AdjustmentLoss, Reason: "x",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input without actor, got %v", err)
	}

	_, err = f.svc.CreateAdjustment(f.ctx, show.ID, domain.AdjustmentCreateRequest{
		ProductID: f.poster.ID, Quantity: 1, Type: domain.AdjustmentLoss, Reason: "x",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found without inventory row, got %v", err)
	}
}

func TestCreateAdjustmentRecordsActor(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)

	adj := f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentRestock, 4)
	if adj.UserID != "manager" {
		t.Fatalf("expected user manager, got %s", adj.UserID)
	}

	listed, err := f.svc.ListProductAdjustments(f.ctx, show.ID, f.shirt.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != adj.ID {
		t.Fatalf("expected the created adjustment, got %+v", listed)
	}
}

func TestUpdateAdjustmentSwitchesKind(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)
	adj := f.discount(t, show.ID, f.shirt.ID, 2, "4.50", domain.DiscountFixed)

	loss := domain.AdjustmentLoss
	result, err := f.svc.UpdateAdjustment(f.ctx, show.ID, adj.ID, domain.AdjustmentUpdateRequest{Type: &loss})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !result.Changed || result.Adjustment.Kind != domain.AdjustmentLoss || result.Adjustment.Discount != nil {
		t.Fatalf("expected loss without discount, got %+v", result.Adjustment)
	}

	discount := domain.AdjustmentDiscount
	_, err = f.svc.UpdateAdjustment(f.ctx, show.ID, adj.ID, domain.AdjustmentUpdateRequest{Type: &discount})
	if !errors.Is(err, domain.ErrDiscountRequired) {
		t.Fatalf("expected discount required, got %v", err)
	}

	qty := 2
	result, err = f.svc.UpdateAdjustment(f.ctx, show.ID, adj.ID, domain.AdjustmentUpdateRequest{Quantity: &qty})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if result.Changed {
		t.Fatalf("expected unchanged result for identical quantity")
	}
}

func TestAdjustmentScopedToShow(t *testing.T) {
	f := newFixture(t)
	f.createRow(t, f.shows[0].ID, f.shirt.ID, 30, nil)
	adj := f.adjust(t, f.shows[0].ID, f.shirt.ID, domain.AdjustmentLoss, 1)

	if err := f.svc.DeleteAdjustment(f.ctx, f.shows[1].ID, adj.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found from another show, got %v", err)
	}
	if err := f.svc.DeleteAdjustment(f.ctx, f.shows[0].ID, adj.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.svc.GetAdjustment(f.ctx, f.shows[0].ID, adj.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected adjustment to be gone, got %v", err)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	show := f.shows[0]
	f.createRow(t, show.ID, f.shirt.ID, 30, nil)
	f.adjust(t, show.ID, f.shirt.ID, domain.AdjustmentRestock, 2)

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.publisher.events))
	}
	if f.publisher.events[0].Type != domain.LedgerEventInventoryCreated || f.publisher.events[1].Type != domain.LedgerEventAdjustmentCreated {
		t.Fatalf("unexpected event types: %s, %s", f.publisher.events[0].Type, f.publisher.events[1].Type)
	}
	if f.publisher.events[1].Actor != "manager" || f.publisher.events[1].TourID != f.tour.ID {
		t.Fatalf("unexpected event: %+v", f.publisher.events[1])
	}
}

func TestCreateTourAssignsManagerRole(t *testing.T) {
	f := newFixture(t)

	role, err := f.svc.TourRole(f.ctx, "manager", f.tour.ID)
	if err != nil {
		t.Fatalf("tour role failed: %v", err)
	}
	if role != domain.TourRoleManager {
		t.Fatalf("expected manager role, got %q", role)
	}

	role, err = f.svc.TourRole(f.ctx, "stranger", f.tour.ID)
	if err != nil || role != "" {
		t.Fatalf("expected no role for stranger, got %q, %v", role, err)
	}
}
