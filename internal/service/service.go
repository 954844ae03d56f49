package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"warungkasir/backend/internal/cache"
	"warungkasir/backend/internal/cart"
	"warungkasir/backend/internal/checkout"
	"warungkasir/backend/internal/dashboard"
	"warungkasir/backend/internal/domain"
	"warungkasir/backend/internal/store"
)

// ErrForbidden is returned when the acting user's role does not allow the
// requested operation.
var ErrForbidden = stderrors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	sequencer  *checkout.Sequencer
	aggregator *dashboard.Aggregator
	summaries  cache.SummaryCache
	summaryTTL time.Duration
	log        *logrus.Entry
}

func New(repo store.Repository, sequencer *checkout.Sequencer, aggregator *dashboard.Aggregator, summaries cache.SummaryCache, summaryTTL time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL < time.Second {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		sequencer:  sequencer,
		aggregator: aggregator,
		summaries:  summaries,
		summaryTTL: summaryTTL,
		log:        logger.WithField("component", "service"),
	}
}

func (s *Service) ListGoods(ctx context.Context) ([]domain.Good, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) GetGood(ctx context.Context, id string) (domain.Good, error) {
	good, err := s.repo.GetGood(ctx, id)
	if err != nil {
		return domain.Good{}, err
	}
	return *good, nil
}

func (s *Service) CreateGood(ctx context.Context, req domain.GoodCreateRequest) (domain.Good, error) {
	actor, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.Good{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.SellPrice < 1 || req.CapitalPrice < 0 || req.InitialStock < 0 {
		return domain.Good{}, store.ErrInvalidGood
	}
	variants, err := normalizeVariants(req.Variants)
	if err != nil {
		return domain.Good{}, err
	}

	good := domain.Good{
		Name:         req.Name,
		CapitalPrice: req.CapitalPrice,
		SellPrice:    req.SellPrice,
		Stock:        req.InitialStock,
		Variants:     variants,
	}

	created, err := s.repo.CreateGood(ctx, good)
	if err != nil {
		return domain.Good{}, err
	}

	s.logAudit(ctx, actor, "good_create", "good", created.ID, fmt.Sprintf("name=%s,sell=%d,stock=%d,variants=%d", created.Name, created.SellPrice, created.Stock, len(created.Variants)))
	return *created, nil
}

func (s *Service) UpdateGood(ctx context.Context, id string, req domain.GoodUpdateRequest) (domain.Good, error) {
	actor, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.Good{}, err
	}

	existing, err := s.repo.GetGood(ctx, id)
	if err != nil {
		return domain.Good{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Good{}, store.ErrInvalidGood
		}
		updated.Name = name
	}
	if req.CapitalPrice != nil {
		if *req.CapitalPrice < 0 {
			return domain.Good{}, store.ErrInvalidGood
		}
		updated.CapitalPrice = *req.CapitalPrice
	}
	if req.SellPrice != nil {
		if *req.SellPrice < 1 {
			return domain.Good{}, store.ErrInvalidGood
		}
		updated.SellPrice = *req.SellPrice
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Good{}, store.ErrInvalidGood
		}
		updated.Stock = *req.Stock
	}
	if req.Variants != nil {
		// The variant list is replaced as a whole; an empty list clears it.
		variants, err := normalizeVariants(*req.Variants)
		if err != nil {
			return domain.Good{}, err
		}
		updated.Variants = variants
	}

	saved, err := s.repo.UpdateGood(ctx, updated)
	if err != nil {
		return domain.Good{}, err
	}

	s.logAudit(ctx, actor, "good_update", "good", saved.ID, fmt.Sprintf("name=%s,sell=%d,stock=%d,variants=%d", saved.Name, saved.SellPrice, saved.Stock, len(saved.Variants)))
	return *saved, nil
}

func (s *Service) DeleteGood(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, "admin")
	if err != nil {
		return err
	}

	if err := s.repo.DeleteGood(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, actor, "good_delete", "good", id, "")
	return nil
}

// Checkout builds a cart from the request lines against fresh catalog reads,
// then hands it to the sequencer. The returned response carries the terminal
// state even when err is non-nil, so callers can report a partial commit.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, ErrForbidden
	}

	basket := cart.New()
	for _, line := range req.Lines {
		if line.Qty < 1 {
			return domain.CheckoutResponse{}, store.ErrInvalidGood
		}
		good, err := s.repo.GetGood(ctx, line.GoodID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		res, err := cart.Resolve(*good, line.VariantLabel)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		for i := 0; i < line.Qty; i++ {
			if err := basket.AddLine(*good, res); err != nil {
				return domain.CheckoutResponse{}, err
			}
		}
	}

	result, runErr := s.sequencer.Run(ctx, basket, req.Tendered)
	resp := resultToResponse(result)

	if result.State == checkout.StateDone || result.State == checkout.StatePartiallyCommitted {
		if err := s.summaries.Invalidate(ctx, summaryKey(result.CreatedAt)); err != nil {
			s.log.WithError(err).Warn("failed to invalidate daily summary cache")
		}
		s.logAudit(ctx, actor, "checkout", "ledger_entry", result.LedgerEntryID, fmt.Sprintf("total=%d,state=%s", result.Total, result.State))
	}

	return resp, runErr
}

// ResumeStock retries the stock-apply half of a partially committed checkout.
func (s *Service) ResumeStock(ctx context.Context, entryID string) (domain.CheckoutResponse, error) {
	actor, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	result, runErr := s.sequencer.ResumeStock(ctx, entryID)
	resp := resultToResponse(result)

	if result.State == checkout.StateDone {
		s.logAudit(ctx, actor, "checkout_resume", "ledger_entry", entryID, "")
	}

	return resp, runErr
}

func (s *Service) ListRecentSales(ctx context.Context, limit int) (domain.SalesHistoryResponse, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return domain.SalesHistoryResponse{}, err
	}
	return domain.SalesHistoryResponse{Entries: entries}, nil
}

func (s *Service) DailySummary(ctx context.Context, now time.Time) (domain.DailySummary, error) {
	key := summaryKey(now)
	if cached, ok, err := s.summaries.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.log.WithError(err).Warn("daily summary cache read failed")
	}

	summary, err := s.aggregator.ComputeDailySummary(ctx, now)
	if err != nil {
		return domain.DailySummary{}, err
	}

	if err := s.summaries.Set(ctx, key, &summary, s.summaryTTL); err != nil {
		s.log.WithError(err).Warn("daily summary cache write failed")
	}
	return summary, nil
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	actor, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.CashierUser{}, err
	}

	// Login lowercases before lookup, so the account is stored lowercase.
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || len(req.Password) < 8 {
		return domain.CashierUser{}, store.ErrInvalidGood
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, errors.Wrap(err, "hash password")
	}

	user := domain.UserAccount{
		Username:  req.Username,
		Password:  string(hash),
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.CashierUser{}, err
	}

	s.logAudit(ctx, actor, "cashier_create", "user", user.Username, "")
	return domain.CashierUser{
		Username:  user.Username,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}, nil
}

func (s *Service) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if _, err := requireRole(ctx, "admin"); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	cashiers := make([]domain.CashierUser, 0, len(users))
	for _, u := range users {
		if u.Role != "cashier" {
			continue
		}
		cashiers = append(cashiers, domain.CashierUser{
			Username:  u.Username,
			Role:      u.Role,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
		})
	}
	return cashiers, nil
}

// ListAuditLogs returns the audit trail for one local day, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, "admin"); err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, store.ErrInvalidGood
	}
	return s.repo.ListAuditLogs(ctx, day, day.AddDate(0, 0, 1), limit)
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	entry := domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Warn("failed to write audit log")
	}
}

func requireRole(ctx context.Context, role string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != role {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func normalizeVariants(variants []domain.Variant) ([]domain.Variant, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	normalized := make([]domain.Variant, 0, len(variants))
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		label := strings.TrimSpace(v.Label)
		if label == "" || v.Price < 1 || seen[label] {
			return nil, store.ErrInvalidGood
		}
		seen[label] = true
		normalized = append(normalized, domain.Variant{Label: label, Price: v.Price})
	}
	return normalized, nil
}

func resultToResponse(result checkout.Result) domain.CheckoutResponse {
	resp := domain.CheckoutResponse{
		LedgerEntryID: result.LedgerEntryID,
		Total:         result.Total,
		ChangeDue:     result.ChangeDue,
		State:         result.State.String(),
		StockApplied:  result.StockApplied,
		StockPending:  result.StockPending,
	}
	if !result.CreatedAt.IsZero() {
		resp.CreatedAt = result.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// summaryKey keys the cache by the till-local calendar date, whatever zone
// the instant arrives in, so the checkout path invalidates the same key the
// dashboard reads.
func summaryKey(t time.Time) string {
	return "summary:" + t.In(time.Local).Format("2006-01-02")
}
