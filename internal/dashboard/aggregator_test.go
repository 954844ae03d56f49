package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
)

type stubCatalog struct {
	goods      []domain.Good
	listErr    error
	lowStock   []domain.Good
	lowStockTh int
}

func (s *stubCatalog) ListAll(context.Context) ([]domain.Good, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.goods, nil
}

func (s *stubCatalog) GetGood(_ context.Context, id string) (*domain.Good, error) {
	for i := range s.goods {
		if s.goods[i].ID == id {
			return &s.goods[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubCatalog) CreateGood(context.Context, domain.Good) (*domain.Good, error) {
	return nil, nil
}
func (s *stubCatalog) UpdateGood(context.Context, domain.Good) (*domain.Good, error) {
	return nil, nil
}
func (s *stubCatalog) DeleteGood(context.Context, string) error    { return nil }
func (s *stubCatalog) SetStock(context.Context, string, int) error { return nil }
func (s *stubCatalog) ListLowStock(_ context.Context, threshold int) ([]domain.Good, error) {
	s.lowStockTh = threshold
	return s.lowStock, nil
}

type stubLedger struct {
	entries []domain.LedgerEntry
	since   time.Time
}

func (s *stubLedger) Append(context.Context, domain.LedgerEntry) (string, error) { return "", nil }
func (s *stubLedger) GetEntry(context.Context, string) (*domain.LedgerEntry, error) {
	return nil, store.ErrNotFound
}
func (s *stubLedger) ListRecent(context.Context, int) ([]domain.LedgerEntry, error) {
	return nil, nil
}
func (s *stubLedger) MarkStockApplied(context.Context, string, string) error { return nil }
func (s *stubLedger) StockApplied(context.Context, string) (map[string]bool, error) {
	return nil, nil
}

func (s *stubLedger) ListSince(_ context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	s.since = since
	result := make([]domain.LedgerEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.CreatedAt.Before(since) {
			result = append(result, entry)
		}
	}
	return result, nil
}

func TestComputeDailySummary(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	catalog := &stubCatalog{
		goods: []domain.Good{
			{ID: "good-a", Name: "Good A", CapitalPrice: 1000, SellPrice: 1500, Stock: 7},
			{ID: "good-b", Name: "Good B", CapitalPrice: 1200, SellPrice: 2000, Stock: 3},
		},
		lowStock: []domain.Good{
			{ID: "good-b", Name: "Good B", Stock: 3},
		},
	}
	ledger := &stubLedger{entries: []domain.LedgerEntry{
		{
			ID:        "sale-1",
			Total:     8500,
			CreatedAt: midnight.Add(10 * time.Hour),
			Items: []domain.LineItem{
				{GoodID: "good-a", UnitPrice: 1500, Quantity: 3},
				{GoodID: "good-b", VariantLabel: "Hot", UnitPrice: 2000, Quantity: 2},
			},
		},
		// Yesterday's sale must not count.
		{
			ID:        "sale-0",
			Total:     99999,
			CreatedAt: midnight.Add(-2 * time.Hour),
			Items:     []domain.LineItem{{GoodID: "good-a", UnitPrice: 1500, Quantity: 1}},
		},
	}}

	agg := NewAggregator(catalog, ledger, 5)
	summary, err := agg.ComputeDailySummary(context.Background(), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if summary.Date != "2026-08-29" {
		t.Fatalf("unexpected date %q", summary.Date)
	}
	if !ledger.since.Equal(midnight) {
		t.Fatalf("expected window start at midnight, got %v", ledger.since)
	}
	if summary.Revenue != 8500 {
		t.Fatalf("expected revenue 8500, got %d", summary.Revenue)
	}
	// (1500-1000)*3 + (2000-1200)*2 = 1500 + 1600
	if summary.Profit != 3100 {
		t.Fatalf("expected profit 3100, got %d", summary.Profit)
	}
	if summary.TransactionCount != 1 {
		t.Fatalf("expected 1 transaction, got %d", summary.TransactionCount)
	}
	if len(summary.LowStock) != 1 || summary.LowStock[0].ID != "good-b" {
		t.Fatalf("unexpected low stock list %+v", summary.LowStock)
	}
	if catalog.lowStockTh != 5 {
		t.Fatalf("expected threshold 5 passed to store, got %d", catalog.lowStockTh)
	}
}

func TestComputeDailySummaryDeletedGoodCountsZeroCapital(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)

	catalog := &stubCatalog{goods: nil}
	ledger := &stubLedger{entries: []domain.LedgerEntry{{
		ID:        "sale-1",
		Total:     1500,
		CreatedAt: now.Add(-time.Hour),
		Items:     []domain.LineItem{{GoodID: "good-gone", UnitPrice: 1500, Quantity: 1}},
	}}}

	agg := NewAggregator(catalog, ledger, 5)
	summary, err := agg.ComputeDailySummary(context.Background(), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// Capital cost 0: the full sale price shows as profit.
	if summary.Profit != 1500 {
		t.Fatalf("expected profit 1500, got %d", summary.Profit)
	}
}

func TestComputeDailySummaryEmptyDay(t *testing.T) {
	now := time.Date(2026, 8, 29, 0, 30, 0, 0, time.UTC)
	agg := NewAggregator(&stubCatalog{}, &stubLedger{}, 0)

	summary, err := agg.ComputeDailySummary(context.Background(), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if summary.Revenue != 0 || summary.Profit != 0 || summary.TransactionCount != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestComputeDailySummaryPropagatesStoreError(t *testing.T) {
	now := time.Now()
	wantErr := errors.New("catalog down")
	agg := NewAggregator(&stubCatalog{listErr: wantErr}, &stubLedger{}, 5)

	_, err := agg.ComputeDailySummary(context.Background(), now)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}
