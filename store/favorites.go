package store

import (
	"context"
	"fmt"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
)

// ToggleFavorite adds the pattern to the user's favorites or removes it when already there.
// It reports whether the pattern is a favorite afterwards.
func (s *Store) ToggleFavorite(ctx context.Context, userID, patternID string) (bool, error) {
	var added bool
	err := s.InTx(ctx, func(tx *Store) error {
		where := sqlx.And(sqlx.Eq(entity.FavoriteUserID, userID), sqlx.Eq(entity.FavoritePatternID, patternID))
		n, err := sqlx.Delete(ctx, tx.conn, where)
		if err != nil {
			return translate(err)
		}
		if n > 0 {
			return nil
		}
		f := entity.Favorite{UserID: userID, PatternID: patternID}
		stamp(&f.ID, &f.CreatedAt)
		added = true
		return translate(sqlx.Insert[entity.Favorite](ctx, tx.conn,
			[]string{"id", "user_id", "pattern_id", "created_at"}, f.ID, f.UserID, f.PatternID, f.CreatedAt))
	})
	return added, err
}

// FavoritePatterns lists the user's favorite patterns, most recently added first.
func (s *Store) FavoritePatterns(ctx context.Context, userID string) ([]entity.Pattern, error) {
	q := fmt.Sprintf(`SELECT %s FROM favorites f JOIN patterns p ON p.id = f.pattern_id
		WHERE f.user_id = ? ORDER BY f.created_at DESC`, columns(patternCols, "p."))
	rows, err := s.query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPattern)
}

func (s *Store) NewsletterSubscribed(ctx context.Context, email string) (bool, error) {
	ok, err := sqlx.Exists(ctx, s.conn, sqlx.Eq(entity.NewsletterEmail, NormalizeEmail(email)))
	return ok, translate(err)
}

// AddNewsletterSubscription records an opt-in. A repeated email yields ErrDuplicate.
func (s *Store) AddNewsletterSubscription(ctx context.Context, n *entity.NewsletterSubscription) error {
	stamp(&n.ID, &n.CreatedAt)
	n.Email = NormalizeEmail(n.Email)
	return translate(sqlx.Insert[entity.NewsletterSubscription](ctx, s.conn,
		[]string{"id", "email", "source", "created_at"}, n.ID, n.Email, n.Source, n.CreatedAt))
}
