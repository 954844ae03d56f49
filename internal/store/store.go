package store

import (
	"context"
	"errors"
	"time"

	"warungkasir/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidGood   = errors.New("invalid good")
	ErrNegativeStock = errors.New("stock below zero")
)

// CatalogStore is the persistence boundary for goods. SetStock is an absolute
// write of the new count; the store rejects negative values outright, the
// caller is responsible for computing the decrement.
type CatalogStore interface {
	ListAll(ctx context.Context) ([]domain.Good, error)
	GetGood(ctx context.Context, id string) (*domain.Good, error)
	CreateGood(ctx context.Context, good domain.Good) (*domain.Good, error)
	UpdateGood(ctx context.Context, good domain.Good) (*domain.Good, error)
	DeleteGood(ctx context.Context, id string) error
	SetStock(ctx context.Context, id string, newStock int) error
	ListLowStock(ctx context.Context, threshold int) ([]domain.Good, error)
}

// LedgerStore is the append-only sales ledger. Entries are immutable once
// appended. MarkStockApplied/StockApplied form the saga journal keyed by
// entry id: one row per good whose decrement has been durably applied, so a
// retried commit can skip goods it already decremented.
type LedgerStore interface {
	Append(ctx context.Context, entry domain.LedgerEntry) (string, error)
	GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error)
	ListSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error)
	ListRecent(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
	MarkStockApplied(ctx context.Context, entryID string, goodID string) error
	StockApplied(ctx context.Context, entryID string) (map[string]bool, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// Repository is the full persistence surface a backing store implements.
type Repository interface {
	CatalogStore
	LedgerStore
	UserStore
	AuditStore
}
