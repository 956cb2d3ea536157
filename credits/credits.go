// Package credits keeps the subscription credit ledger: grants from paid invoices, FIFO spends on
// pattern purchases and the expiry of unspent credits.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/ledger"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// ErrInsufficientCredits is returned by Spend when the live balance is short. The concrete error
// is a *ledger.InsufficientError carrying the available amount.
var ErrInsufficientCredits = ledger.ErrInsufficient

const defaultHistory = 50

// Grant describes credits to add to a user's balance.
type Grant struct {
	UserID         string
	Amount         int
	Kind           ledger.Kind
	Description    string
	SubscriptionID string
	InvoiceID      string
}

// ExpireResult summarizes one run of ExpireOld.
type ExpireResult struct {
	ExpiredCount   int `json:"expiredCount"`
	CreditsExpired int `json:"creditsExpired"`
}

type Option func(*Service)

// WithLifetime overrides how long granted credits stay spendable.
func WithLifetime(d time.Duration) Option {
	return func(s *Service) { s.lifetime = d }
}

// WithWindow overrides the look-ahead of Expiring.
func WithWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

type Service struct {
	store    *store.Store
	lifetime time.Duration
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		lifetime: ledger.CreditLifetime,
		window:   ledger.ExpiryWindow,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy of the service bound to st, typically a transaction bound store.
func (s *Service) With(st *store.Store) *Service {
	c := *s
	c.store = st
	return &c
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Available returns the spendable balance of a user. It prefers the database aggregate and falls
// back to replaying the user's rows when the aggregate fails.
func (s *Service) Available(ctx context.Context, userID string) (int, error) {
	at := s.clock()
	balance, err := s.store.CreditBalance(ctx, userID, at)
	if err == nil {
		return balance, nil
	}
	s.log.WarnContext(ctx, "credit aggregate failed, replaying ledger", "user", userID, "err", err)
	rows, herr := s.store.CreditHistory(ctx, userID, 0)
	if herr != nil {
		return 0, fmt.Errorf("credit balance: %w", errors.Join(err, herr))
	}
	return ledger.Balance(Entries(rows), at), nil
}

// Grant adds credits expiring after the configured lifetime. A grant for an invoice that was
// already credited is a no-op, so processor retries are harmless.
func (s *Service) Grant(ctx context.Context, g Grant) (entity.CreditTransaction, error) {
	if g.Amount <= 0 {
		return entity.CreditTransaction{}, fmt.Errorf("grant amount must be positive, got %d", g.Amount)
	}
	if g.Kind == "" {
		g.Kind = ledger.SubscriptionRenewal
	}
	if !g.Kind.Valid() {
		return entity.CreditTransaction{}, fmt.Errorf("unknown transaction kind %q", g.Kind)
	}
	at := s.clock()
	expires := at.Add(s.lifetime)
	row := entity.CreditTransaction{
		UserID:          g.UserID,
		Amount:          g.Amount,
		Remaining:       g.Amount,
		Kind:            string(g.Kind),
		Description:     optional(g.Description),
		SubscriptionID:  optional(g.SubscriptionID),
		StripeInvoiceID: optional(g.InvoiceID),
		ExpiresAt:       &expires,
		CreatedAt:       at,
	}
	err := s.store.InsertCredit(ctx, &row)
	if errors.Is(err, store.ErrDuplicate) && g.InvoiceID != "" {
		s.log.InfoContext(ctx, "invoice already credited", "invoice", g.InvoiceID, "user", g.UserID)
		return row, nil
	}
	if err != nil {
		return row, fmt.Errorf("grant credits: %w", err)
	}
	s.log.InfoContext(ctx, "credits granted", "user", g.UserID, "amount", g.Amount, "kind", g.Kind)
	return row, nil
}

// Spend takes amount credits from the oldest live grants and records a pattern purchase debit.
// It returns the balance left afterwards.
func (s *Service) Spend(ctx context.Context, userID string, amount int, patternID, description string) (int, error) {
	var left int
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		at := s.clock()
		rows, err := tx.LiveGrants(ctx, userID, at)
		if err != nil {
			return err
		}
		draws, err := ledger.Allocate(Entries(rows), amount, at)
		if err != nil {
			return err
		}
		for _, d := range draws {
			if err := tx.ConsumeGrant(ctx, d.EntryID, d.Amount); err != nil {
				return fmt.Errorf("consume grant %s: %w", d.EntryID, err)
			}
		}
		debit := entity.CreditTransaction{
			UserID:      userID,
			Amount:      -amount,
			Kind:        string(ledger.PatternPurchase),
			Description: optional(description),
			PatternID:   optional(patternID),
			CreatedAt:   at,
		}
		if err := tx.InsertCredit(ctx, &debit); err != nil {
			return err
		}
		left, err = tx.CreditBalance(ctx, userID, at)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "credits spent", "user", userID, "amount", amount, "pattern", patternID, "left", left)
	return left, nil
}

// History lists the ledger rows of a user, newest first. A non positive limit means 50.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]entity.CreditTransaction, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	return s.store.CreditHistory(ctx, userID, limit)
}

// Expiring lists the live grants of a user that expire within the configured window.
func (s *Service) Expiring(ctx context.Context, userID string) ([]entity.CreditTransaction, error) {
	at := s.clock()
	return s.store.ExpiringGrants(ctx, userID, at, at.Add(s.window))
}

// ExpireOld marks every grant past its expiry, writing an expiration debit for what was left on
// it. A failing grant is logged and skipped.
func (s *Service) ExpireOld(ctx context.Context) (ExpireResult, error) {
	var res ExpireResult
	at := s.clock()
	due, err := s.store.ExpirableGrants(ctx, at)
	if err != nil {
		return res, fmt.Errorf("list expirable grants: %w", err)
	}
	for _, g := range due {
		if err := s.expire(ctx, g, at); err != nil {
			s.log.ErrorContext(ctx, "expire grant failed", "grant", g.ID, "user", g.UserID, "err", err)
			continue
		}
		res.ExpiredCount++
		res.CreditsExpired += g.Remaining
	}
	s.log.InfoContext(ctx, "credits expired", "grants", res.ExpiredCount, "credits", res.CreditsExpired)
	return res, nil
}

func (s *Service) expire(ctx context.Context, g entity.CreditTransaction, at time.Time) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.MarkGrantExpired(ctx, g.ID); err != nil {
			return err
		}
		if g.Remaining == 0 {
			return nil
		}
		debit := entity.CreditTransaction{
			UserID:         g.UserID,
			Amount:         -g.Remaining,
			Kind:           string(ledger.Expiration),
			Description:    lo.ToPtr(fmt.Sprintf("%d credits expired", g.Remaining)),
			SubscriptionID: g.SubscriptionID,
			CreatedAt:      at,
		}
		return tx.InsertCredit(ctx, &debit)
	})
}

// Entries converts stored rows into ledger entries.
func Entries(rows []entity.CreditTransaction) []ledger.Entry {
	return lo.Map(rows, func(r entity.CreditTransaction, _ int) ledger.Entry {
		return ledger.Entry{
			ID:        r.ID,
			Amount:    r.Amount,
			Remaining: r.Remaining,
			Kind:      ledger.Kind(r.Kind),
			ExpiresAt: r.ExpiresAt,
			Expired:   r.IsExpired,
			CreatedAt: r.CreatedAt,
		}
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
