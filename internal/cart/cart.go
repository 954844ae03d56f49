package cart

import (
	"errors"
	"fmt"

	"warungkasir/backend/internal/domain"
)

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrStockExceeded  = errors.New("stock exceeded")
)

// Resolution is the outcome of picking a good (and optionally one of its
// variants): the unit price the line will carry and the label shown on the
// cart row and the receipt.
type Resolution struct {
	UnitPrice    int64
	DisplayLabel string
	VariantLabel string
}

// HasVariants reports whether selecting the good must go through a variant
// choice first. The caller prompts; Resolve only validates the outcome.
func HasVariants(good domain.Good) bool {
	return len(good.Variants) > 0
}

// Resolve yields the effective unit price and display label for a good and an
// optional variant label. An empty label means the base good. A non-empty
// label must match a variant exactly, otherwise ErrUnknownVariant.
func Resolve(good domain.Good, variantLabel string) (Resolution, error) {
	if variantLabel == "" {
		return Resolution{
			UnitPrice:    good.SellPrice,
			DisplayLabel: good.Name,
		}, nil
	}
	for _, variant := range good.Variants {
		if variant.Label == variantLabel {
			return Resolution{
				UnitPrice:    variant.Price,
				DisplayLabel: fmt.Sprintf("%s (%s)", good.Name, variant.Label),
				VariantLabel: variant.Label,
			}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: %q on good %s", ErrUnknownVariant, variantLabel, good.ID)
}

// Key identifies one cart line: a good plus the chosen variant label, empty
// for the base good.
type Key struct {
	GoodID       string
	VariantLabel string
}

// Cart accumulates line items for a single checkout session. It preserves
// insertion order for display and keeps at most one line per Key; repeat
// selections increment the existing line. Carts are not safe for concurrent
// use: one session, one goroutine.
type Cart struct {
	lines []domain.LineItem
}

func New() *Cart {
	return &Cart{}
}

// AddLine adds one unit of the resolved good to the cart. The ceiling check
// is against the good's physical stock summed across every line of that good,
// base and variants alike; exceeding it fails with ErrStockExceeded and
// leaves the cart untouched.
func (c *Cart) AddLine(good domain.Good, res Resolution) error {
	committed := c.QuantityFor(good.ID)
	if committed+1 > good.Stock {
		return fmt.Errorf("%w: good %s has %d in stock, %d already in cart",
			ErrStockExceeded, good.ID, good.Stock, committed)
	}

	for i := range c.lines {
		if c.lines[i].GoodID == good.ID && c.lines[i].VariantLabel == res.VariantLabel {
			c.lines[i].Quantity++
			return nil
		}
	}

	c.lines = append(c.lines, domain.LineItem{
		GoodID:       good.ID,
		VariantLabel: res.VariantLabel,
		DisplayLabel: res.DisplayLabel,
		UnitPrice:    res.UnitPrice,
		Quantity:     1,
		StockCeiling: good.Stock,
	})
	return nil
}

// RemoveLine deletes the line with the given key outright. Removing an absent
// key is a no-op.
func (c *Cart) RemoveLine(key Key) {
	for i := range c.lines {
		if c.lines[i].GoodID == key.GoodID && c.lines[i].VariantLabel == key.VariantLabel {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// QuantityFor sums quantities across all lines of the given good.
func (c *Cart) QuantityFor(goodID string) int {
	total := 0
	for _, line := range c.lines {
		if line.GoodID == goodID {
			total += line.Quantity
		}
	}
	return total
}

// Total is the sum of unit price times quantity over all lines.
func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.lines {
		total += line.LineTotal()
	}
	return total
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns a copy of the cart's lines in insertion order. Mutating the
// returned slice does not affect the cart.
func (c *Cart) Lines() []domain.LineItem {
	out := make([]domain.LineItem, len(c.lines))
	copy(out, c.lines)
	return out
}

// Clear empties the cart after a successful checkout or an explicit cancel.
func (c *Cart) Clear() {
	c.lines = c.lines[:0]
}
