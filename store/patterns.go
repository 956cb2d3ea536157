package store

import (
	"context"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const patternCols = "id, name, slug, description, category, image_url, free_image_url, price, is_active, stripe_product_id, stripe_price_id, created_at, updated_at"

func scanPattern(r scanner) (entity.Pattern, error) {
	var p entity.Pattern
	err := r.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Category, &p.ImageURL, &p.FreeImageURL,
		&p.Price, &p.IsActive, &p.StripeProductID, &p.StripePriceID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) patterns(ctx context.Context, where sqlx.Where[entity.Pattern], suffix string) ([]entity.Pattern, error) {
	q, args := sqlx.Select[entity.Pattern](patternCols, where, suffix)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPattern)
}

func (s *Store) pattern(ctx context.Context, where sqlx.Where[entity.Pattern]) (entity.Pattern, error) {
	q, args := sqlx.Select[entity.Pattern](patternCols, where, "")
	return one(s.row(ctx, q, args...), scanPattern)
}

// ActivePatterns lists the catalog, newest first.
func (s *Store) ActivePatterns(ctx context.Context) ([]entity.Pattern, error) {
	return s.patterns(ctx, sqlx.Eq(entity.PatternIsActive, true), "ORDER BY created_at DESC")
}

// AllPatterns lists every pattern including inactive ones, newest first.
func (s *Store) AllPatterns(ctx context.Context) ([]entity.Pattern, error) {
	return s.patterns(ctx, nil, "ORDER BY created_at DESC")
}

func (s *Store) PatternBySlug(ctx context.Context, slug string) (entity.Pattern, error) {
	return s.pattern(ctx, sqlx.Eq(entity.PatternSlug, slug))
}

func (s *Store) PatternByID(ctx context.Context, id string) (entity.Pattern, error) {
	return s.pattern(ctx, sqlx.Eq(entity.PatternID, id))
}

// ActivePatternsByIDs returns the active patterns among ids, in no particular order.
func (s *Store) ActivePatternsByIDs(ctx context.Context, ids []string) ([]entity.Pattern, error) {
	values := lo.Map(lo.Uniq(ids), func(id string, _ int) any { return id })
	return s.patterns(ctx, sqlx.And(sqlx.In(entity.PatternID, values...), sqlx.Eq(entity.PatternIsActive, true)), "")
}

// SlugTaken reports whether slug belongs to a pattern other than exceptID.
func (s *Store) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	where := sqlx.Eq(entity.PatternSlug, slug)
	if exceptID != "" {
		where = sqlx.And(where, sqlx.Ne(entity.PatternID, exceptID))
	}
	ok, err := sqlx.Exists(ctx, s.conn, where)
	return ok, translate(err)
}

func (s *Store) CreatePattern(ctx context.Context, p *entity.Pattern) error {
	stamp(&p.ID, &p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	err := sqlx.Insert[entity.Pattern](ctx, s.conn,
		[]string{"id", "name", "slug", "description", "category", "image_url", "free_image_url", "price", "is_active", "stripe_product_id", "stripe_price_id", "created_at", "updated_at"},
		p.ID, p.Name, p.Slug, p.Description, p.Category, p.ImageURL, p.FreeImageURL, p.Price, p.IsActive, p.StripeProductID, p.StripePriceID, p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

func (s *Store) UpdatePattern(ctx context.Context, p *entity.Pattern) error {
	p.UpdatedAt = now()
	n, err := s.exec(ctx, `UPDATE patterns SET name = ?, slug = ?, description = ?, category = ?, image_url = ?, free_image_url = ?,
		price = ?, is_active = ?, stripe_product_id = ?, stripe_price_id = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Slug, p.Description, p.Category, p.ImageURL, p.FreeImageURL, p.Price, p.IsActive, p.StripeProductID, p.StripePriceID, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}

// DeletePattern removes a pattern. It fails with ErrReferenced while order items point at it.
func (s *Store) DeletePattern(ctx context.Context, id string) error {
	n, err := sqlx.Delete(ctx, s.conn, sqlx.Eq(entity.PatternID, id))
	if err != nil {
		return translate(err)
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}

// PatternOrderCount counts the order items that reference a pattern.
func (s *Store) PatternOrderCount(ctx context.Context, id string) (int64, error) {
	n, err := sqlx.Count(ctx, s.conn, sqlx.Eq(entity.OrderItemPatternID, id))
	return n, translate(err)
}
