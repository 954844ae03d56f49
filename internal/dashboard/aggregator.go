package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
)

// DefaultLowStockThreshold marks goods that need restocking on the dashboard.
const DefaultLowStockThreshold = 5

// Aggregator reconstructs the current day's figures by replaying ledger
// entries since local midnight and re-querying catalog stock. Read-only: it
// never mutates either store.
type Aggregator struct {
	catalog   store.CatalogStore
	ledger    store.LedgerStore
	threshold int
}

func NewAggregator(catalog store.CatalogStore, ledger store.LedgerStore, lowStockThreshold int) *Aggregator {
	if lowStockThreshold < 1 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	return &Aggregator{catalog: catalog, ledger: ledger, threshold: lowStockThreshold}
}

// ComputeDailySummary aggregates the window [local midnight of now, now].
//
// Profit uses the good's capital cost as it stands in the catalog right now,
// not at sale time: the ledger snapshot deliberately carries no capital cost,
// so editing a good's cost retroactively shifts reported profit for the day.
// A good deleted since the sale contributes a capital cost of zero.
func (a *Aggregator) ComputeDailySummary(ctx context.Context, now time.Time) (domain.DailySummary, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var (
		entries  []domain.LedgerEntry
		goods    []domain.Good
		lowStock []domain.Good
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = a.ledger.ListSince(gctx, midnight)
		return err
	})
	g.Go(func() error {
		var err error
		goods, err = a.catalog.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		lowStock, err = a.catalog.ListLowStock(gctx, a.threshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DailySummary{}, err
	}

	capitalByGood := make(map[string]int64, len(goods))
	for _, good := range goods {
		capitalByGood[good.ID] = good.CapitalPrice
	}

	summary := domain.DailySummary{
		Date:     midnight.Format("2006-01-02"),
		LowStock: lowStock,
	}
	for _, entry := range entries {
		if entry.CreatedAt.After(now) {
			continue
		}
		summary.Revenue += entry.Total
		summary.TransactionCount++
		for _, item := range entry.Items {
			summary.Profit += (item.UnitPrice - capitalByGood[item.GoodID]) * int64(item.Quantity)
		}
	}
	return summary, nil
}
