package store

import (
	"context"
	"strings"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const userCols = "id, email, name, password_hash, is_admin, stripe_customer_id, created_at, updated_at"

func scanUser(r scanner) (entity.User, error) {
	var u entity.User
	err := r.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) user(ctx context.Context, where sqlx.Where[entity.User]) (entity.User, error) {
	q, args := sqlx.Select[entity.User](userCols, where, "")
	return one(s.row(ctx, q, args...), scanUser)
}

func (s *Store) UserByID(ctx context.Context, id string) (entity.User, error) {
	return s.user(ctx, sqlx.Eq(entity.UserID, id))
}

// UserByEmail looks a user up by email, case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (entity.User, error) {
	return s.user(ctx, sqlx.Eq(entity.UserEmail, NormalizeEmail(email)))
}

func (s *Store) UserByStripeCustomer(ctx context.Context, customerID string) (entity.User, error) {
	return s.user(ctx, sqlx.Eq(entity.UserStripeCustomerID, customerID))
}

func (s *Store) CreateUser(ctx context.Context, u *entity.User) error {
	stamp(&u.ID, &u.CreatedAt)
	u.UpdatedAt = u.CreatedAt
	u.Email = NormalizeEmail(u.Email)
	err := sqlx.Insert[entity.User](ctx, s.conn,
		[]string{"id", "email", "name", "password_hash", "is_admin", "stripe_customer_id", "created_at", "updated_at"},
		u.ID, u.Email, u.Name, u.PasswordHash, u.IsAdmin, u.StripeCustomerID, u.CreatedAt, u.UpdatedAt)
	return translate(err)
}

func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	n, err := s.exec(ctx, "UPDATE users SET stripe_customer_id = ?, updated_at = ? WHERE id = ?", customerID, now(), userID)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}

func (s *Store) SetAdmin(ctx context.Context, userID string, admin bool) error {
	n, err := s.exec(ctx, "UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?", admin, now(), userID)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}

// Users lists accounts, newest first.
func (s *Store) Users(ctx context.Context) ([]entity.User, error) {
	q, args := sqlx.Select[entity.User](userCols, nil, "ORDER BY created_at DESC")
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUser)
}

// NormalizeEmail trims and lower-cases an address so lookups and uniqueness agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
