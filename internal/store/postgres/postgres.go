package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
	"warungkasir/backend/internal/xid"
)

// Store implements store.Repository on PostgreSQL. Variants and ledger line
// items are stored as jsonb snapshots so the immutable-snapshot rule holds at
// the storage layer too.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Good, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, capital_price, sell_price, stock, variants
		FROM goods
		ORDER BY name
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list goods")
	}
	defer rows.Close()

	goods := make([]domain.Good, 0, 128)
	for rows.Next() {
		good, err := scanGood(rows)
		if err != nil {
			return nil, err
		}
		goods = append(goods, good)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list goods")
	}
	return goods, nil
}

func (s *Store) GetGood(ctx context.Context, id string) (*domain.Good, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, capital_price, sell_price, stock, variants
		FROM goods
		WHERE id = $1
	`, id)

	good, err := scanGood(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &good, nil
}

func (s *Store) CreateGood(ctx context.Context, good domain.Good) (*domain.Good, error) {
	if good.Name == "" || good.SellPrice < 1 || good.Stock < 0 {
		return nil, store.ErrInvalidGood
	}
	if good.ID == "" {
		good.ID = xid.New("good")
	}

	variants, err := marshalVariants(good.Variants)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goods (id, name, capital_price, sell_price, stock, variants, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, good.ID, good.Name, good.CapitalPrice, good.SellPrice, good.Stock, variants)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidGood
		}
		return nil, errors.Wrap(err, "insert good")
	}

	created := good
	return &created, nil
}

func (s *Store) UpdateGood(ctx context.Context, good domain.Good) (*domain.Good, error) {
	if good.ID == "" || good.Name == "" || good.SellPrice < 1 || good.Stock < 0 {
		return nil, store.ErrInvalidGood
	}

	variants, err := marshalVariants(good.Variants)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE goods
		SET name = $2, capital_price = $3, sell_price = $4, stock = $5, variants = $6, updated_at = now()
		WHERE id = $1
	`, good.ID, good.Name, good.CapitalPrice, good.SellPrice, good.Stock, variants)
	if err != nil {
		return nil, errors.Wrap(err, "update good")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "update good")
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := good
	return &updated, nil
}

func (s *Store) DeleteGood(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goods WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete good")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete good")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetStock(ctx context.Context, id string, newStock int) error {
	if newStock < 0 {
		return store.ErrNegativeStock
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE goods
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, id, newStock)
	if err != nil {
		return errors.Wrap(err, "set stock")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "set stock")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]domain.Good, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, capital_price, sell_price, stock, variants
		FROM goods
		WHERE stock < $1
		ORDER BY stock ASC, name ASC
	`, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}
	defer rows.Close()

	goods := make([]domain.Good, 0, 16)
	for rows.Next() {
		good, err := scanGood(rows)
		if err != nil {
			return nil, err
		}
		goods = append(goods, good)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}
	return goods, nil
}

func (s *Store) Append(ctx context.Context, entry domain.LedgerEntry) (string, error) {
	if len(entry.Items) == 0 || entry.Total < 0 {
		return "", store.ErrInvalidGood
	}
	if entry.ID == "" {
		entry.ID = xid.New("sale")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	items, err := json.Marshal(entry.Items)
	if err != nil {
		return "", errors.Wrap(err, "marshal ledger items")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, total, items, created_at)
		VALUES ($1,$2,$3,$4)
	`, entry.ID, entry.Total, items, entry.CreatedAt)
	if err != nil {
		// A replayed id means the entry is already durable.
		if isUniqueViolation(err) {
			return entry.ID, nil
		}
		return "", errors.Wrap(err, "append ledger entry")
	}
	return entry.ID, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, total, items, created_at
		FROM ledger_entries
		WHERE id = $1
	`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, total, items, created_at
		FROM ledger_entries
		WHERE created_at >= $1
		ORDER BY created_at ASC
	`, since)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 64)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	return entries, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, total, items, created_at
		FROM ledger_entries
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent ledger entries")
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list recent ledger entries")
	}
	return entries, nil
}

func (s *Store) MarkStockApplied(ctx context.Context, entryID string, goodID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_stock_applied (entry_id, good_id, applied_at)
		VALUES ($1,$2,now())
		ON CONFLICT (entry_id, good_id) DO NOTHING
	`, entryID, goodID)
	return errors.Wrap(err, "mark stock applied")
}

func (s *Store) StockApplied(ctx context.Context, entryID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT good_id
		FROM ledger_stock_applied
		WHERE entry_id = $1
	`, entryID)
	if err != nil {
		return nil, errors.Wrap(err, "read stock journal")
	}
	defer rows.Close()

	applied := make(map[string]bool, 4)
	for rows.Next() {
		var goodID string
		if err := rows.Scan(&goodID); err != nil {
			return nil, errors.Wrap(err, "read stock journal")
		}
		applied[goodID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read stock journal")
	}
	return applied, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidGood
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidGood
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get user")
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "list users")
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return errors.Wrap(err, "update user password")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update user password")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return errors.Wrap(err, "insert audit log")
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "list audit logs")
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGood(row rowScanner) (domain.Good, error) {
	var good domain.Good
	var variants []byte
	if err := row.Scan(&good.ID, &good.Name, &good.CapitalPrice, &good.SellPrice, &good.Stock, &variants); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return domain.Good{}, err
		}
		return domain.Good{}, errors.Wrap(err, "scan good")
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &good.Variants); err != nil {
			return domain.Good{}, errors.Wrap(err, "unmarshal variants")
		}
	}
	return good, nil
}

func scanEntry(row rowScanner) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var items []byte
	if err := row.Scan(&entry.ID, &entry.Total, &items, &entry.CreatedAt); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return domain.LedgerEntry{}, err
		}
		return domain.LedgerEntry{}, errors.Wrap(err, "scan ledger entry")
	}
	if err := json.Unmarshal(items, &entry.Items); err != nil {
		return domain.LedgerEntry{}, errors.Wrap(err, "unmarshal ledger items")
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func marshalVariants(variants []domain.Variant) ([]byte, error) {
	if variants == nil {
		variants = []domain.Variant{}
	}
	data, err := json.Marshal(variants)
	if err != nil {
		return nil, errors.Wrap(err, "marshal variants")
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
