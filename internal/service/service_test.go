package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"warungkasir/backend/internal/cart"
	"warungkasir/backend/internal/checkout"
	"warungkasir/backend/internal/dashboard"
	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
	"warungkasir/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	seq := checkout.NewSequencer(repo, repo, nil)
	agg := dashboard.NewAggregator(repo, repo, 5)
	svc := New(repo, seq, agg, nil, time.Second, nil)
	return svc, repo
}

func seedCatalog(t *testing.T, repo *memory.Store) {
	t.Helper()
	ctx := context.Background()
	goods := []domain.Good{
		{ID: "good-a", Name: "Good A", CapitalPrice: 1000, SellPrice: 1500, Stock: 10},
		{ID: "good-b", Name: "Good B", CapitalPrice: 1200, SellPrice: 2500, Stock: 5,
			Variants: []domain.Variant{{Label: "Hot", Price: 2000}}},
	}
	for _, g := range goods {
		if _, err := repo.CreateGood(ctx, g); err != nil {
			t.Fatalf("seed %s: %v", g.ID, err)
		}
	}
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "siti", Role: "cashier"})
}

func TestCheckoutHappyPath(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	resp, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 10000,
		Lines: []domain.CheckoutLine{
			{GoodID: "good-a", Qty: 3},
			{GoodID: "good-b", VariantLabel: "Hot", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if resp.Total != 8500 {
		t.Fatalf("expected total 8500, got %d", resp.Total)
	}
	if resp.ChangeDue != 1500 {
		t.Fatalf("expected change 1500, got %d", resp.ChangeDue)
	}
	if resp.State != checkout.StateDone.String() {
		t.Fatalf("expected DONE, got %s", resp.State)
	}

	goodA, _ := repo.GetGood(context.Background(), "good-a")
	goodB, _ := repo.GetGood(context.Background(), "good-b")
	if goodA.Stock != 7 || goodB.Stock != 3 {
		t.Fatalf("expected stocks 7/3, got %d/%d", goodA.Stock, goodB.Stock)
	}

	history, err := svc.ListRecentSales(cashierCtx(), 0)
	if err != nil {
		t.Fatalf("recent sales: %v", err)
	}
	if len(history.Entries) != 1 || history.Entries[0].ID != resp.LedgerEntryID {
		t.Fatalf("expected the sale in recent history")
	}
}

func TestCheckoutRequiresActor(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		Tendered: 2000,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 1}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCheckoutUnknownVariant(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 5000,
		Lines:    []domain.CheckoutLine{{GoodID: "good-b", VariantLabel: "Jumbo", Qty: 1}},
	})
	if !errors.Is(err, cart.ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestCheckoutStockCeiling(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	// good-b has 5 units shared between base and the Hot variant.
	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 100000,
		Lines: []domain.CheckoutLine{
			{GoodID: "good-b", Qty: 3},
			{GoodID: "good-b", VariantLabel: "Hot", Qty: 3},
		},
	})
	if !errors.Is(err, cart.ErrStockExceeded) {
		t.Fatalf("expected ErrStockExceeded, got %v", err)
	}

	goodB, _ := repo.GetGood(context.Background(), "good-b")
	if goodB.Stock != 5 {
		t.Fatalf("failed checkout must not move stock, got %d", goodB.Stock)
	}
}

func TestCheckoutInsufficientPayment(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 1499,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 1}},
	})
	if !errors.Is(err, checkout.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
}

func TestCheckoutRejectsNonPositiveQty(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 2000,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 0}},
	})
	if !errors.Is(err, store.ErrInvalidGood) {
		t.Fatalf("expected ErrInvalidGood, got %v", err)
	}
}

func TestCreateGoodRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateGood(cashierCtx(), domain.GoodCreateRequest{
		Name: "Sabun", SellPrice: 7500, InitialStock: 3,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}

	good, err := svc.CreateGood(adminCtx(), domain.GoodCreateRequest{
		Name: "Sabun", SellPrice: 7500, InitialStock: 3,
	})
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if good.ID == "" || good.Stock != 3 {
		t.Fatalf("unexpected created good %+v", good)
	}
}

func TestCreateGoodValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []domain.GoodCreateRequest{
		{Name: "  ", SellPrice: 100},
		{Name: "X", SellPrice: 0},
		{Name: "X", SellPrice: 100, InitialStock: -1},
		{Name: "X", SellPrice: 100, Variants: []domain.Variant{{Label: " ", Price: 100}}},
		{Name: "X", SellPrice: 100, Variants: []domain.Variant{{Label: "A", Price: 1}, {Label: "A", Price: 2}}},
	}
	for i, req := range cases {
		if _, err := svc.CreateGood(adminCtx(), req); !errors.Is(err, store.ErrInvalidGood) {
			t.Fatalf("case %d: expected ErrInvalidGood, got %v", i, err)
		}
	}
}

func TestUpdateGoodReplacesVariantListWholesale(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	newVariants := []domain.Variant{{Label: "Iced", Price: 3000}}
	good, err := svc.UpdateGood(adminCtx(), "good-b", domain.GoodUpdateRequest{Variants: &newVariants})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(good.Variants) != 1 || good.Variants[0].Label != "Iced" {
		t.Fatalf("expected wholesale replacement, got %+v", good.Variants)
	}

	// An explicit empty list clears every variant.
	empty := []domain.Variant{}
	good, err = svc.UpdateGood(adminCtx(), "good-b", domain.GoodUpdateRequest{Variants: &empty})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(good.Variants) != 0 {
		t.Fatalf("expected variants cleared, got %+v", good.Variants)
	}

	// Omitted field leaves variants alone.
	name := "Renamed"
	if _, err := svc.UpdateGood(adminCtx(), "good-b", domain.GoodUpdateRequest{Name: &name}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := repo.GetGood(context.Background(), "good-b")
	if got.Name != "Renamed" || len(got.Variants) != 0 {
		t.Fatalf("patch must only touch provided fields, got %+v", got)
	}
}

func TestDeleteGoodRequiresAdmin(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	if err := svc.DeleteGood(cashierCtx(), "good-a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteGood(adminCtx(), "good-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetGood(context.Background(), "good-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected good gone, got %v", err)
	}
}

type spyCache struct {
	store map[string]*domain.DailySummary
	gets  int
	sets  int
}

func newSpyCache() *spyCache {
	return &spyCache{store: make(map[string]*domain.DailySummary)}
}

func (c *spyCache) Get(_ context.Context, key string) (*domain.DailySummary, bool, error) {
	c.gets++
	summary, ok := c.store[key]
	return summary, ok, nil
}

func (c *spyCache) Set(_ context.Context, key string, value *domain.DailySummary, _ time.Duration) error {
	c.sets++
	c.store[key] = value
	return nil
}

func (c *spyCache) Invalidate(_ context.Context, key string) error {
	delete(c.store, key)
	return nil
}

func TestDailySummaryUsesCache(t *testing.T) {
	repo := memory.New()
	seedCatalog(t, repo)
	seq := checkout.NewSequencer(repo, repo, nil)
	agg := dashboard.NewAggregator(repo, repo, 5)
	cacheSpy := newSpyCache()
	svc := New(repo, seq, agg, cacheSpy, time.Minute, nil)

	if _, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 4500,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 3}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	now := time.Now()
	first, err := svc.DailySummary(context.Background(), now)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if first.Revenue != 4500 {
		t.Fatalf("expected revenue 4500, got %d", first.Revenue)
	}
	if cacheSpy.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cacheSpy.sets)
	}

	second, err := svc.DailySummary(context.Background(), now)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if cacheSpy.sets != 1 {
		t.Fatalf("second read must be served from cache")
	}
	if second.Revenue != first.Revenue {
		t.Fatalf("cached summary diverged")
	}
}

func TestCheckoutInvalidatesSummaryCache(t *testing.T) {
	repo := memory.New()
	seedCatalog(t, repo)
	seq := checkout.NewSequencer(repo, repo, nil)
	agg := dashboard.NewAggregator(repo, repo, 5)
	cacheSpy := newSpyCache()
	svc := New(repo, seq, agg, cacheSpy, time.Minute, nil)

	now := time.Now()
	if _, err := svc.DailySummary(context.Background(), now); err != nil {
		t.Fatalf("summary: %v", err)
	}

	if _, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 1500,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 1}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// The recompute window must include the sale, so read with a fresh clock.
	after, err := svc.DailySummary(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if after.Revenue != 1500 {
		t.Fatalf("expected fresh summary after checkout, got revenue %d", after.Revenue)
	}
}

func TestCheckoutInvalidatesDashboardKeyAcrossZones(t *testing.T) {
	// Pin the local zone to one whose calendar date is guaranteed to differ
	// from UTC right now; the invalidation key must still match the key the
	// dashboard read under.
	offset := -12 * 3600
	if time.Now().UTC().Hour() >= 12 {
		offset = 14 * 3600
	}
	restore := time.Local
	time.Local = time.FixedZone("till", offset)
	defer func() { time.Local = restore }()

	repo := memory.New()
	seedCatalog(t, repo)
	seq := checkout.NewSequencer(repo, repo, nil)
	agg := dashboard.NewAggregator(repo, repo, 5)
	cacheSpy := newSpyCache()
	svc := New(repo, seq, agg, cacheSpy, time.Minute, nil)

	if _, err := svc.DailySummary(context.Background(), time.Now()); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(cacheSpy.store) != 1 {
		t.Fatalf("expected one cached summary, got %d", len(cacheSpy.store))
	}
	var key string
	for k := range cacheSpy.store {
		key = k
	}

	if _, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Tendered: 1500,
		Lines:    []domain.CheckoutLine{{GoodID: "good-a", Qty: 1}},
	}); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if _, stale := cacheSpy.store[key]; stale {
		t.Fatalf("checkout left the dashboard key %q cached", key)
	}
}

func TestCreateCashier(t *testing.T) {
	svc, repo := newTestService(t)

	if _, err := svc.CreateCashier(cashierCtx(), domain.CashierCreateRequest{
		Username: "budi", Password: "rahasia-123",
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := svc.CreateCashier(adminCtx(), domain.CashierCreateRequest{
		Username: "budi", Password: "short",
	}); !errors.Is(err, store.ErrInvalidGood) {
		t.Fatalf("expected ErrInvalidGood for short password, got %v", err)
	}

	cashier, err := svc.CreateCashier(adminCtx(), domain.CashierCreateRequest{
		Username: "budi", Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Role != "cashier" || !cashier.Active {
		t.Fatalf("unexpected cashier %+v", cashier)
	}

	stored, err := repo.GetUser(context.Background(), "budi")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if stored.Password == "rahasia-123" {
		t.Fatalf("password must be stored hashed")
	}

	cashiers, err := svc.ListCashiers(adminCtx())
	if err != nil {
		t.Fatalf("list cashiers: %v", err)
	}
	if len(cashiers) != 1 || cashiers[0].Username != "budi" {
		t.Fatalf("unexpected cashier list %+v", cashiers)
	}
}

func TestCreateCashierLowercasesUsername(t *testing.T) {
	svc, repo := newTestService(t)

	cashier, err := svc.CreateCashier(adminCtx(), domain.CashierCreateRequest{
		Username: " Budi ", Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Username != "budi" {
		t.Fatalf("expected stored username budi, got %q", cashier.Username)
	}

	// Login looks users up by the lowercased name; the account must be there.
	if _, err := repo.GetUser(context.Background(), "budi"); err != nil {
		t.Fatalf("lowercased lookup: %v", err)
	}
}

func TestListAuditLogsAfterAdminAction(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateGood(adminCtx(), domain.GoodCreateRequest{
		Name: "Keripik", SellPrice: 12500, InitialStock: 4,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Now().Format("2006-01-02"), 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "good_create" {
		t.Fatalf("expected the good_create audit entry, got %+v", logs)
	}

	if _, err := svc.ListAuditLogs(cashierCtx(), time.Now().Format("2006-01-02"), 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cashier, got %v", err)
	}
}
