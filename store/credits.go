package store

import (
	"context"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const creditCols = "id, user_id, amount, remaining, transaction_type, description, pattern_id, subscription_id, stripe_invoice_id, expires_at, is_expired, created_at"

func scanCredit(r scanner) (entity.CreditTransaction, error) {
	var c entity.CreditTransaction
	err := r.Scan(&c.ID, &c.UserID, &c.Amount, &c.Remaining, &c.Kind, &c.Description, &c.PatternID,
		&c.SubscriptionID, &c.StripeInvoiceID, &c.ExpiresAt, &c.IsExpired, &c.CreatedAt)
	return c, err
}

func (s *Store) credits(ctx context.Context, query string, args ...any) ([]entity.CreditTransaction, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCredit)
}

// CreditBalance is the database side aggregate of a user's spendable credits at now: every
// signed amount, minus what is left on grants that passed their expiry but were not yet
// processed by the expiry job.
func (s *Store) CreditBalance(ctx context.Context, userID string, at time.Time) (int, error) {
	var balance int64
	err := s.row(ctx, `SELECT COALESCE(SUM(amount), 0) - COALESCE(SUM(CASE
			WHEN amount > 0 AND is_expired = ? AND expires_at IS NOT NULL AND expires_at <= ? THEN remaining
			ELSE 0 END), 0)
		FROM credit_transactions WHERE user_id = ?`, false, at.UTC(), userID).Scan(&balance)
	if err != nil {
		return 0, translate(err)
	}
	return int(balance), nil
}

// CreditHistory lists a user's ledger rows, newest first. A limit of zero lists all.
func (s *Store) CreditHistory(ctx context.Context, userID string, limit int) ([]entity.CreditTransaction, error) {
	q, args := sqlx.Select[entity.CreditTransaction](creditCols, sqlx.Eq(entity.CreditUserID, userID), "ORDER BY created_at DESC, id DESC")
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return s.credits(ctx, q, args...)
}

// LiveGrants returns the grants of a user that can still be spent at now, oldest first.
// Inside a transaction the rows are locked on dialects that support row locks.
func (s *Store) LiveGrants(ctx context.Context, userID string, at time.Time) ([]entity.CreditTransaction, error) {
	q := `SELECT ` + creditCols + ` FROM credit_transactions
		WHERE user_id = ? AND amount > 0 AND remaining > 0 AND is_expired = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at, expires_at, id`
	if s.db == nil {
		q += s.Dialect().ForUpdate()
	}
	return s.credits(ctx, q, userID, false, at.UTC())
}

// ExpiringGrants returns the live grants of a user expiring in (now, until], soonest first.
func (s *Store) ExpiringGrants(ctx context.Context, userID string, at, until time.Time) ([]entity.CreditTransaction, error) {
	return s.credits(ctx, `SELECT `+creditCols+` FROM credit_transactions
		WHERE user_id = ? AND amount > 0 AND remaining > 0 AND is_expired = ? AND expires_at > ? AND expires_at <= ?
		ORDER BY expires_at, id`, userID, false, at.UTC(), until.UTC())
}

// ExpirableGrants returns every grant past its expiry at now that is not yet marked expired.
func (s *Store) ExpirableGrants(ctx context.Context, at time.Time) ([]entity.CreditTransaction, error) {
	return s.credits(ctx, `SELECT `+creditCols+` FROM credit_transactions
		WHERE amount > 0 AND is_expired = ? AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY created_at, id`, false, at.UTC())
}

// InsertCredit appends a ledger row. A repeated invoice id yields ErrDuplicate.
func (s *Store) InsertCredit(ctx context.Context, c *entity.CreditTransaction) error {
	stamp(&c.ID, &c.CreatedAt)
	err := sqlx.Insert[entity.CreditTransaction](ctx, s.conn,
		[]string{"id", "user_id", "amount", "remaining", "transaction_type", "description", "pattern_id", "subscription_id", "stripe_invoice_id", "expires_at", "is_expired", "created_at"},
		c.ID, c.UserID, c.Amount, c.Remaining, c.Kind, c.Description, c.PatternID, c.SubscriptionID, c.StripeInvoiceID, utc(c.ExpiresAt), c.IsExpired, c.CreatedAt)
	return translate(err)
}

// ConsumeGrant takes amount from the remaining balance of a grant. It fails with ErrConflict
// when the grant no longer holds enough.
func (s *Store) ConsumeGrant(ctx context.Context, id string, amount int) error {
	n, err := s.exec(ctx, "UPDATE credit_transactions SET remaining = remaining - ? WHERE id = ? AND remaining >= ?", amount, id, amount)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrConflict, nil)
}

// MarkGrantExpired flags a grant as processed by the expiry job and zeroes what was left.
// It fails with ErrConflict when the grant was already marked.
func (s *Store) MarkGrantExpired(ctx context.Context, id string) error {
	n, err := s.exec(ctx, "UPDATE credit_transactions SET is_expired = ?, remaining = 0 WHERE id = ? AND is_expired = ?", true, id, false)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrConflict, nil)
}

// HasInvoiceCredit reports whether a ledger row already references an invoice.
func (s *Store) HasInvoiceCredit(ctx context.Context, invoiceID string) (bool, error) {
	ok, err := sqlx.Exists(ctx, s.conn, sqlx.Eq(entity.CreditInvoiceID, invoiceID))
	return ok, translate(err)
}
