package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"warungkasir/backend/internal/cart"
	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
	"warungkasir/backend/internal/xid"
)

// State tracks the commit sequence. The two Committing states are the ones a
// caller can observe if a store call never resolves; a surrounding timeout
// policy decides whether to treat that as PartiallyCommitted.
type State string

const (
	StateIdle             State = "IDLE"
	StateValidating       State = "VALIDATING"
	StateCommittingLedger State = "COMMITTING_LEDGER"
	StateCommittingStock  State = "COMMITTING_STOCK"
	StateDone             State = "DONE"

	StateAbortedEmptyCart           State = "ABORTED_EMPTY_CART"
	StateAbortedInsufficientPayment State = "ABORTED_INSUFFICIENT_PAYMENT"
	StateAbortedLedgerWriteFailed   State = "ABORTED_LEDGER_WRITE_FAILED"
	StatePartiallyCommitted         State = "PARTIALLY_COMMITTED"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateAbortedEmptyCart, StateAbortedInsufficientPayment,
		StateAbortedLedgerWriteFailed, StatePartiallyCommitted:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientPayment = errors.New("insufficient payment")
)

type Step string

const (
	StepLedger Step = "ledger"
	StepStock  Step = "stock"
)

// CommitError is a non-recoverable failure during the ledger or stock commit.
// It is surfaced as a fatal operational error: the caller must inspect the
// accompanying Result to see which steps completed before deciding on manual
// correction. Never retried automatically.
type CommitError struct {
	Step    Step
	EntryID string
	Err     error
}

func (e *CommitError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("checkout %s commit failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("checkout %s commit failed (entry %s): %v", e.Step, e.EntryID, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Result reports the terminal state of one commit run. StockApplied and
// StockPending list good ids by decrement status; together with the entry id
// they are the saga's step-completion report for reconciliation tooling.
type Result struct {
	State         State
	LedgerEntryID string
	Total         int64
	ChangeDue     int64
	CreatedAt     time.Time
	StockApplied  []string
	StockPending  []string
}

// Sequencer drives the multi-step checkout commit: validate payment, append
// one ledger entry, then decrement catalog stock good by good. The two writes
// are not transactional across stores; the ledger entry id doubles as the
// saga idempotency key so a manual retry can skip decrements already applied.
type Sequencer struct {
	catalog store.CatalogStore
	ledger  store.LedgerStore
	log     *logrus.Entry
}

func NewSequencer(catalog store.CatalogStore, ledger store.LedgerStore, logger *logrus.Logger) *Sequencer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sequencer{
		catalog: catalog,
		ledger:  ledger,
		log:     logger.WithField("component", "checkout"),
	}
}

type stockGroup struct {
	goodID string
	qty    int
}

// groupByGood sums quantities per good id, preserving the order in which each
// good first appears in the cart. Base and variant lines of one good fold
// into a single decrement.
func groupByGood(items []domain.LineItem) []stockGroup {
	index := make(map[string]int, len(items))
	groups := make([]stockGroup, 0, len(items))
	for _, item := range items {
		if at, ok := index[item.GoodID]; ok {
			groups[at].qty += item.Quantity
			continue
		}
		index[item.GoodID] = len(groups)
		groups = append(groups, stockGroup{goodID: item.GoodID, qty: item.Quantity})
	}
	return groups
}

// Run executes the full sequence for the cart's current state. Cancellation
// via ctx is only honored before the ledger write; once the entry is durable
// the stock phase runs to completion or to PartiallyCommitted, because a
// written ledger entry cannot be rolled back.
func (s *Sequencer) Run(ctx context.Context, c *cart.Cart, tendered int64) (Result, error) {
	// Validating.
	if c.Len() == 0 {
		return Result{State: StateAbortedEmptyCart}, ErrEmptyCart
	}
	total := c.Total()
	if tendered < total {
		return Result{State: StateAbortedInsufficientPayment},
			fmt.Errorf("%w: tendered %d, total %d", ErrInsufficientPayment, tendered, total)
	}
	changeDue := tendered - total

	// Committing(Ledger): the safe failure point. Nothing has been written to
	// the catalog yet.
	entry := domain.LedgerEntry{
		ID:        xid.New("sale"),
		Total:     total,
		Items:     c.Lines(),
		CreatedAt: time.Now().UTC(),
	}
	entryID, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return Result{State: StateAbortedLedgerWriteFailed},
			&CommitError{Step: StepLedger, Err: err}
	}

	// Committing(Stock): sequential, good by good, in cart order.
	result := Result{
		LedgerEntryID: entryID,
		Total:         total,
		ChangeDue:     changeDue,
		CreatedAt:     entry.CreatedAt,
	}
	groups := groupByGood(entry.Items)
	applied, pending, stockErr := s.applyStock(ctx, entryID, groups)
	result.StockApplied = applied
	result.StockPending = pending
	if stockErr != nil {
		result.State = StatePartiallyCommitted
		return result, &CommitError{Step: StepStock, EntryID: entryID, Err: stockErr}
	}

	result.State = StateDone
	return result, nil
}

// ResumeStock retries the stock phase for an already-written ledger entry,
// skipping goods whose decrement the journal shows as applied. This is the
// manual reconciliation path after PartiallyCommitted; it is never invoked
// automatically.
func (s *Sequencer) ResumeStock(ctx context.Context, entryID string) (Result, error) {
	entry, err := s.ledger.GetEntry(ctx, entryID)
	if err != nil {
		return Result{State: StatePartiallyCommitted, LedgerEntryID: entryID},
			fmt.Errorf("load ledger entry %s: %w", entryID, err)
	}

	result := Result{
		LedgerEntryID: entry.ID,
		Total:         entry.Total,
		CreatedAt:     entry.CreatedAt,
	}
	applied, pending, stockErr := s.applyStock(ctx, entry.ID, groupByGood(entry.Items))
	result.StockApplied = applied
	result.StockPending = pending
	if stockErr != nil {
		result.State = StatePartiallyCommitted
		return result, &CommitError{Step: StepStock, EntryID: entry.ID, Err: stockErr}
	}
	result.State = StateDone
	return result, nil
}

// applyStock decrements each group's good with a fresh stock read, clamped at
// zero at the storage boundary. Returns the good ids applied and still
// pending; the first failure stops the walk.
func (s *Sequencer) applyStock(ctx context.Context, entryID string, groups []stockGroup) (applied []string, pending []string, err error) {
	journal, err := s.ledger.StockApplied(ctx, entryID)
	if err != nil {
		pending = make([]string, 0, len(groups))
		for _, g := range groups {
			pending = append(pending, g.goodID)
		}
		return nil, pending, fmt.Errorf("read stock journal: %w", err)
	}

	applied = make([]string, 0, len(groups))
	for i, group := range groups {
		if journal[group.goodID] {
			applied = append(applied, group.goodID)
			continue
		}

		good, getErr := s.catalog.GetGood(ctx, group.goodID)
		if getErr != nil {
			return applied, pendingIDs(groups[i:]), fmt.Errorf("read stock for good %s: %w", group.goodID, getErr)
		}

		newStock := good.Stock - group.qty
		if newStock < 0 {
			// Known reconciliation gap: the fresh read is already below the
			// quantity sold, so the decrement saturates and the deficit is
			// under-accounted.
			s.log.WithFields(logrus.Fields{
				"good_id":  group.goodID,
				"entry_id": entryID,
				"deficit":  -newStock,
			}).Warn("stock decrement saturated at zero")
			newStock = 0
		}

		if setErr := s.catalog.SetStock(ctx, group.goodID, newStock); setErr != nil {
			return applied, pendingIDs(groups[i:]), fmt.Errorf("decrement stock for good %s: %w", group.goodID, setErr)
		}
		applied = append(applied, group.goodID)

		if markErr := s.ledger.MarkStockApplied(ctx, entryID, group.goodID); markErr != nil {
			// The decrement landed but the journal row did not: a retry would
			// double-decrement this good, so the run must surface as partial.
			return applied, pendingIDs(groups[i+1:]), fmt.Errorf("journal decrement for good %s: %w", group.goodID, markErr)
		}
	}
	return applied, nil, nil
}

func pendingIDs(groups []stockGroup) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.goodID)
	}
	return out
}
