package domain

import "time"

// Variant is a named price override of a Good. Variants never carry their own
// stock; every variant line draws from the parent Good's physical count.
type Variant struct {
	Label string `json:"label"`
	Price int64  `json:"price"`
}

// Good is a catalog entity. Stock is the single physical count shared by the
// base good and all of its variants, and must never be stored below zero.
type Good struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CapitalPrice int64     `json:"capital_price"`
	SellPrice    int64     `json:"sell_price"`
	Stock        int       `json:"stock"`
	Variants     []Variant `json:"variants,omitempty"`
}

type GoodCreateRequest struct {
	Name         string    `json:"name"`
	CapitalPrice int64     `json:"capital_price"`
	SellPrice    int64     `json:"sell_price"`
	InitialStock int       `json:"initial_stock"`
	Variants     []Variant `json:"variants,omitempty"`
}

// GoodUpdateRequest patches a Good. Variants, when present, replaces the whole
// list (an empty list clears all variants).
type GoodUpdateRequest struct {
	Name         *string    `json:"name,omitempty"`
	CapitalPrice *int64     `json:"capital_price,omitempty"`
	SellPrice    *int64     `json:"sell_price,omitempty"`
	Stock        *int       `json:"stock,omitempty"`
	Variants     *[]Variant `json:"variants,omitempty"`
}

// LineItem is one cart row. UnitPrice is a snapshot taken at insertion time;
// later catalog price edits do not reach items already in the cart.
// StockCeiling is the good's stock at insertion, used only for the ceiling
// check and not persisted into ledger snapshots.
type LineItem struct {
	GoodID       string `json:"good_id"`
	VariantLabel string `json:"variant_label,omitempty"`
	DisplayLabel string `json:"display_label"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	StockCeiling int    `json:"-"`
}

// LineTotal is the item's contribution to the cart total.
func (li LineItem) LineTotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// LedgerEntry is the immutable record of one completed sale. Items is a value
// snapshot of the cart at checkout, never a reference into the catalog.
type LedgerEntry struct {
	ID        string     `json:"id"`
	Total     int64      `json:"total"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
}

type CheckoutLine struct {
	GoodID       string `json:"good_id"`
	VariantLabel string `json:"variant_label,omitempty"`
	Qty          int    `json:"qty"`
}

type CheckoutRequest struct {
	Tendered int64          `json:"tendered"`
	Lines    []CheckoutLine `json:"lines"`
}

type CheckoutResponse struct {
	LedgerEntryID string   `json:"ledger_entry_id"`
	Total         int64    `json:"total"`
	ChangeDue     int64    `json:"change_due"`
	State         string   `json:"state"`
	StockApplied  []string `json:"stock_applied,omitempty"`
	StockPending  []string `json:"stock_pending,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

type SalesHistoryResponse struct {
	Entries []LedgerEntry `json:"entries"`
}

type DailySummary struct {
	Date             string `json:"date"`
	Revenue          int64  `json:"revenue"`
	Profit           int64  `json:"profit"`
	TransactionCount int    `json:"transaction_count"`
	LowStock         []Good `json:"low_stock"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
