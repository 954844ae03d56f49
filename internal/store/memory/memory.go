package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
	"warungkasir/backend/internal/xid"
)

// Store is the in-memory Repository used in dev/demo mode and in tests.
type Store struct {
	mu           sync.RWMutex
	goods        map[string]domain.Good
	entriesByID  map[string]*domain.LedgerEntry
	entryOrder   []string
	stockApplied map[string]map[string]bool
	auditLogs    []domain.AuditLog
	users        map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		goods:        make(map[string]domain.Good),
		entriesByID:  make(map[string]*domain.LedgerEntry),
		entryOrder:   make([]string, 0, 64),
		stockApplied: make(map[string]map[string]bool),
		auditLogs:    make([]domain.AuditLog, 0, 128),
		users:        make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production deployments use
// PostgreSQL (DATABASE_URL) and never run through this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").
			Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("component", "memory-store").
				Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-loaded with a small warung catalog, including
// variant-bearing goods, plus the dev user accounts.
func NewSeeded() *Store {
	s := New()
	goods := []domain.Good{
		{ID: "good-kopi-01", Name: "Kopi Hitam Sachet", CapitalPrice: 1500, SellPrice: 2500, Stock: 80, Variants: []domain.Variant{
			{Label: "Seduh Panas", Price: 5000},
			{Label: "Es Kopi", Price: 6000},
		}},
		{ID: "good-mie-01", Name: "Mie Instan Goreng", CapitalPrice: 2800, SellPrice: 3500, Stock: 48, Variants: []domain.Variant{
			{Label: "Masak + Telur", Price: 10000},
		}},
		{ID: "good-teh-01", Name: "Teh Celup", CapitalPrice: 7000, SellPrice: 9500, Stock: 20, Variants: []domain.Variant{
			{Label: "Seduh Panas", Price: 4000},
			{Label: "Es Teh Manis", Price: 5000},
		}},
		{ID: "good-telur-01", Name: "Telur Ayam (butir)", CapitalPrice: 2300, SellPrice: 2800, Stock: 60},
		{ID: "good-gula-01", Name: "Gula Pasir 1kg", CapitalPrice: 15500, SellPrice: 17500, Stock: 12},
		{ID: "good-air-01", Name: "Air Mineral 600ml", CapitalPrice: 2500, SellPrice: 4000, Stock: 36},
		{ID: "good-keripik-01", Name: "Keripik Singkong", CapitalPrice: 8000, SellPrice: 12500, Stock: 4},
		{ID: "good-sabun-01", Name: "Sabun Mandi", CapitalPrice: 5200, SellPrice: 7500, Stock: 3},
	}
	for _, g := range goods {
		s.goods[g.ID] = g
	}
	s.users = seedUsers()
	return s
}

func (s *Store) ListAll(_ context.Context) ([]domain.Good, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goods := make([]domain.Good, 0, len(s.goods))
	for _, g := range s.goods {
		goods = append(goods, cloneGood(g))
	}
	slices.SortFunc(goods, func(a, b domain.Good) int {
		return strings.Compare(a.Name, b.Name)
	})
	return goods, nil
}

func (s *Store) GetGood(_ context.Context, id string) (*domain.Good, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goods[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneGood(g)
	return &copied, nil
}

func (s *Store) CreateGood(_ context.Context, good domain.Good) (*domain.Good, error) {
	if err := validateGood(good); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if good.ID == "" {
		good.ID = xid.New("good")
	}
	if _, exists := s.goods[good.ID]; exists {
		return nil, store.ErrInvalidGood
	}
	s.goods[good.ID] = cloneGood(good)
	created := cloneGood(good)
	return &created, nil
}

func (s *Store) UpdateGood(_ context.Context, good domain.Good) (*domain.Good, error) {
	if err := validateGood(good); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.goods[good.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.goods[good.ID] = cloneGood(good)
	updated := cloneGood(good)
	return &updated, nil
}

func (s *Store) DeleteGood(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.goods[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.goods, id)
	return nil
}

func (s *Store) SetStock(_ context.Context, id string, newStock int) error {
	if newStock < 0 {
		return store.ErrNegativeStock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goods[id]
	if !ok {
		return store.ErrNotFound
	}
	g.Stock = newStock
	s.goods[id] = g
	return nil
}

func (s *Store) ListLowStock(_ context.Context, threshold int) ([]domain.Good, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Good, 0, 8)
	for _, g := range s.goods {
		if g.Stock < threshold {
			low = append(low, cloneGood(g))
		}
	}
	slices.SortFunc(low, func(a, b domain.Good) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return low, nil
}

func (s *Store) Append(_ context.Context, entry domain.LedgerEntry) (string, error) {
	if len(entry.Items) == 0 || entry.Total < 0 {
		return "", store.ErrInvalidGood
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("sale")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// Replaying an id already appended is an idempotent no-op: the entry is
	// immutable, so the stored copy wins.
	if _, exists := s.entriesByID[entry.ID]; exists {
		return entry.ID, nil
	}

	stored := cloneEntry(entry)
	s.entriesByID[entry.ID] = &stored
	s.entryOrder = append(s.entryOrder, entry.ID)
	return entry.ID, nil
}

func (s *Store) GetEntry(_ context.Context, id string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneEntry(*entry)
	return &copied, nil
}

func (s *Store) ListSince(_ context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0, 32)
	for _, id := range s.entryOrder {
		entry := s.entriesByID[id]
		if entry.CreatedAt.Before(since) {
			continue
		}
		result = append(result, cloneEntry(*entry))
	}
	return result, nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	result := make([]domain.LedgerEntry, 0, limit)
	for i := len(s.entryOrder) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneEntry(*s.entriesByID[s.entryOrder[i]]))
	}
	return result, nil
}

func (s *Store) MarkStockApplied(_ context.Context, entryID string, goodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entriesByID[entryID]; !ok {
		return store.ErrNotFound
	}
	if s.stockApplied[entryID] == nil {
		s.stockApplied[entryID] = make(map[string]bool, 4)
	}
	s.stockApplied[entryID][goodID] = true
	return nil
}

func (s *Store) StockApplied(_ context.Context, entryID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	applied := make(map[string]bool, len(s.stockApplied[entryID]))
	for goodID := range s.stockApplied[entryID] {
		applied[goodID] = true
	}
	return applied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, 64)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalidGood
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func validateGood(good domain.Good) error {
	if strings.TrimSpace(good.Name) == "" || good.SellPrice < 1 || good.CapitalPrice < 0 || good.Stock < 0 {
		return store.ErrInvalidGood
	}
	seen := make(map[string]bool, len(good.Variants))
	for _, v := range good.Variants {
		if strings.TrimSpace(v.Label) == "" || v.Price < 1 || seen[v.Label] {
			return store.ErrInvalidGood
		}
		seen[v.Label] = true
	}
	return nil
}

func cloneGood(g domain.Good) domain.Good {
	copied := g
	if g.Variants != nil {
		copied.Variants = make([]domain.Variant, len(g.Variants))
		copy(copied.Variants, g.Variants)
	}
	return copied
}

func cloneEntry(e domain.LedgerEntry) domain.LedgerEntry {
	copied := e
	copied.Items = make([]domain.LineItem, len(e.Items))
	copy(copied.Items, e.Items)
	return copied
}
