package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const downloadCols = "id, user_id, email, pattern_id, order_id, is_free, download_token, download_count, last_downloaded_at, created_at"

func scanDownload(r scanner) (entity.Download, error) {
	var d entity.Download
	err := r.Scan(&d.ID, &d.UserID, &d.Email, &d.PatternID, &d.OrderID, &d.IsFree, &d.DownloadToken,
		&d.DownloadCount, &d.LastDownloadedAt, &d.CreatedAt)
	return d, err
}

func (s *Store) download(ctx context.Context, where sqlx.Where[entity.Download]) (entity.Download, error) {
	q, args := sqlx.Select[entity.Download](downloadCols, where, "ORDER BY created_at DESC LIMIT 1")
	return one(s.row(ctx, q, args...), scanDownload)
}

func (s *Store) CreateDownload(ctx context.Context, d *entity.Download) error {
	stamp(&d.ID, &d.CreatedAt)
	d.Email = NormalizeEmail(d.Email)
	err := sqlx.Insert[entity.Download](ctx, s.conn,
		[]string{"id", "user_id", "email", "pattern_id", "order_id", "is_free", "download_token", "download_count", "last_downloaded_at", "created_at"},
		d.ID, d.UserID, d.Email, d.PatternID, d.OrderID, d.IsFree, d.DownloadToken, d.DownloadCount, utc(d.LastDownloadedAt), d.CreatedAt)
	return translate(err)
}

// PaidDownload returns the purchased access grant of email for a pattern.
func (s *Store) PaidDownload(ctx context.Context, email, patternID string) (entity.Download, error) {
	return s.download(ctx, sqlx.And(
		sqlx.Eq(entity.DownloadEmail, NormalizeEmail(email)),
		sqlx.Eq(entity.DownloadPatternID, patternID),
		sqlx.Eq(entity.DownloadIsFree, false),
	))
}

// OwnsPattern reports whether a user already has a paid download grant for a pattern.
func (s *Store) OwnsPattern(ctx context.Context, userID, patternID string) (bool, error) {
	ok, err := sqlx.Exists(ctx, s.conn, sqlx.And(
		sqlx.Eq(entity.DownloadUserID, userID),
		sqlx.Eq(entity.DownloadPatternID, patternID),
		sqlx.Eq(entity.DownloadIsFree, false),
	))
	return ok, translate(err)
}

// HasFreeDownload reports whether email already claimed the free preview of a pattern.
func (s *Store) HasFreeDownload(ctx context.Context, email, patternID string) (bool, error) {
	ok, err := sqlx.Exists(ctx, s.conn, sqlx.And(
		sqlx.Eq(entity.DownloadEmail, NormalizeEmail(email)),
		sqlx.Eq(entity.DownloadPatternID, patternID),
		sqlx.Eq(entity.DownloadIsFree, true),
	))
	return ok, translate(err)
}

// DownloadByToken resolves a free download link together with its pattern.
func (s *Store) DownloadByToken(ctx context.Context, token string) (entity.Download, error) {
	d, err := s.download(ctx, sqlx.Eq(entity.DownloadToken, token))
	if err != nil {
		return d, err
	}
	if d.PatternID == nil {
		return d, fmt.Errorf("download %s has no pattern: %w", d.ID, ErrNotFound)
	}
	p, err := s.PatternByID(ctx, *d.PatternID)
	if err != nil {
		return d, err
	}
	d.Pattern = &p
	return d, nil
}

// RecordDownload bumps the counter of a download grant.
func (s *Store) RecordDownload(ctx context.Context, id string, at time.Time) error {
	n, err := s.exec(ctx, "UPDATE downloads SET download_count = download_count + 1, last_downloaded_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}

// DownloadsByEmail lists the download grants of an email with their patterns, newest first.
func (s *Store) DownloadsByEmail(ctx context.Context, email string) ([]entity.Download, error) {
	q := fmt.Sprintf(`SELECT %s, %s FROM downloads d JOIN patterns p ON p.id = d.pattern_id
		WHERE d.email = ? ORDER BY d.created_at DESC`,
		columns(downloadCols, "d."), columns(patternCols, "p."))
	rows, err := s.query(ctx, q, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(r scanner) (entity.Download, error) {
		var d entity.Download
		var p entity.Pattern
		err := r.Scan(&d.ID, &d.UserID, &d.Email, &d.PatternID, &d.OrderID, &d.IsFree, &d.DownloadToken,
			&d.DownloadCount, &d.LastDownloadedAt, &d.CreatedAt,
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.Category, &p.ImageURL, &p.FreeImageURL,
			&p.Price, &p.IsActive, &p.StripeProductID, &p.StripePriceID, &p.CreatedAt, &p.UpdatedAt)
		d.Pattern = &p
		return d, err
	})
}
