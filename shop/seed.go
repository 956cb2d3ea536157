package shop

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/samber/lo"
)

// Seed imports an image file as an active pattern named after the file. The image is stored as
// both the preview and the full resolution file. It reports false when a pattern with the same
// slug already exists, in which case nothing is written.
func (s *Service) Seed(ctx context.Context, file string, data []byte, price int64) (entity.Pattern, bool, error) {
	base := filepath.Base(file)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	slug := entity.Slugify(name)
	if slug == "" {
		return entity.Pattern{}, false, fmt.Errorf("seed %s: no usable name", file)
	}
	taken, err := s.store.SlugTaken(ctx, slug, "")
	if err != nil || taken {
		return entity.Pattern{}, false, err
	}
	contentType := lo.CoalesceOrEmpty(mime.TypeByExtension(filepath.Ext(base)), "application/octet-stream")
	p := entity.Pattern{
		Name:        name,
		Slug:        slug,
		Description: lo.ToPtr(fmt.Sprintf("Beautiful seamless %s pattern, perfect for your creative projects. Commercial use allowed.", strings.ToLower(name))),
		ImageURL:    s.blobs.PublicURL(s.cfg.PreviewBucket, base),
		Price:       price,
		IsActive:    true,
	}
	p.FreeImageURL = &p.ImageURL
	if err := s.blobs.Put(ctx, s.cfg.PreviewBucket, base, contentType, data); err != nil {
		return entity.Pattern{}, false, fmt.Errorf("upload preview %s: %w", base, err)
	}
	if err := s.blobs.Put(ctx, s.cfg.PatternBucket, p.PremiumObject(), contentType, data); err != nil {
		return entity.Pattern{}, false, fmt.Errorf("upload full file %s: %w", base, err)
	}
	if err := s.store.CreatePattern(ctx, &p); err != nil {
		return entity.Pattern{}, false, fmt.Errorf("insert %s: %w", slug, err)
	}
	s.log.InfoContext(ctx, "pattern seeded", "pattern", p.ID, "slug", slug)
	return p, true, nil
}
