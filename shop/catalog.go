package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// Patterns lists the active catalog, newest first.
func (s *Service) Patterns(ctx context.Context) ([]entity.Pattern, error) {
	return s.store.ActivePatterns(ctx)
}

// Pattern returns an active pattern by slug.
func (s *Service) Pattern(ctx context.Context, slug string) (entity.Pattern, error) {
	p, err := s.store.PatternBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
		return entity.Pattern{}, errPatternNotFound
	}
	return p, err
}

// PatternInput is the admin form of a pattern. Files are uploaded to the buckets before the
// pattern is created; the input only names them. Price is in cents.
type PatternInput struct {
	Name            string
	Slug            string
	Category        string
	Description     string
	Price           int64
	ImageURL        string
	PreviewFileName string
	FullFileName    string
}

func (s *Service) adminPattern(ctx context.Context, id string) (entity.Pattern, error) {
	p, err := s.store.PatternByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p, errPatternNotFound
	}
	return p, err
}

// AdminPattern returns any pattern, active or not.
func (s *Service) AdminPattern(ctx context.Context, c Caller, id string) (entity.Pattern, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return entity.Pattern{}, err
	}
	return s.adminPattern(ctx, id)
}

// CreatePattern mirrors a new pattern into the payment catalog and stores it. When the row
// cannot be written, the uploaded objects are removed and the product archived.
func (s *Service) CreatePattern(ctx context.Context, c Caller, in PatternInput) (entity.Pattern, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return entity.Pattern{}, err
	}
	in.Name, in.Slug = strings.TrimSpace(in.Name), strings.TrimSpace(in.Slug)
	if in.Name == "" || in.Slug == "" || in.Price <= 0 || in.ImageURL == "" || in.PreviewFileName == "" || in.FullFileName == "" {
		return entity.Pattern{}, badRequest("MISSING_FIELDS", "Missing required fields")
	}
	taken, err := s.store.SlugTaken(ctx, in.Slug, "")
	if err != nil {
		return entity.Pattern{}, err
	}
	if taken {
		return entity.Pattern{}, errPatternExists
	}
	ref, err := s.billing.CreateProduct(ctx, billing.Product{
		Name:        in.Name,
		Description: in.Description,
		Slug:        in.Slug,
		Category:    in.Category,
		Price:       in.Price,
		Currency:    s.cfg.Currency,
	})
	if err != nil {
		return entity.Pattern{}, fmt.Errorf("create product: %w", err)
	}
	p := entity.Pattern{
		Name:            in.Name,
		Slug:            in.Slug,
		Description:     blank(in.Description),
		Category:        blank(in.Category),
		ImageURL:        in.ImageURL,
		FreeImageURL:    lo.ToPtr(in.ImageURL),
		Price:           in.Price,
		IsActive:        true,
		StripeProductID: blank(ref.ProductID),
		StripePriceID:   blank(ref.PriceID),
	}
	if err := s.store.CreatePattern(ctx, &p); err != nil {
		s.log.ErrorContext(ctx, "pattern insert failed, rolling back uploads", "slug", in.Slug, "err", err)
		if rerr := s.blobs.Remove(ctx, s.cfg.PreviewBucket, in.PreviewFileName); rerr != nil {
			s.log.WarnContext(ctx, "remove preview failed", "object", in.PreviewFileName, "err", rerr)
		}
		if rerr := s.blobs.Remove(ctx, s.cfg.PatternBucket, "premium/"+in.FullFileName); rerr != nil {
			s.log.WarnContext(ctx, "remove full file failed", "object", in.FullFileName, "err", rerr)
		}
		if aerr := s.billing.ArchiveProduct(ctx, ref.ProductID); aerr != nil {
			s.log.WarnContext(ctx, "archive product failed", "product", ref.ProductID, "err", aerr)
		}
		return entity.Pattern{}, internal("CREATE_FAILED", "Failed to create pattern record")
	}
	s.log.InfoContext(ctx, "pattern created", "pattern", p.ID, "slug", p.Slug)
	return p, nil
}

// PatternUpdate is the admin edit form. NewImageURL, NewPreviewFileName and NewFullFileName are
// set when replacement files were uploaded.
type PatternUpdate struct {
	Name               string
	Category           string
	Description        string
	Price              int64
	NewImageURL        string
	NewPreviewFileName string
	NewFullFileName    string
}

// UpdatePattern edits a pattern. A rename regenerates the slug and renames the product; a price
// change creates a new default price and archives the old one. Payment catalog failures are
// logged and the row is still updated.
func (s *Service) UpdatePattern(ctx context.Context, c Caller, id string, in PatternUpdate) (entity.Pattern, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return entity.Pattern{}, err
	}
	p, err := s.adminPattern(ctx, id)
	if err != nil {
		return p, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Price <= 0 {
		return entity.Pattern{}, badRequest("MISSING_FIELDS", "Missing required fields")
	}
	old := p
	renamed := in.Name != old.Name
	if renamed {
		p.Slug = entity.Slugify(in.Name)
		taken, err := s.store.SlugTaken(ctx, p.Slug, id)
		if err != nil {
			return entity.Pattern{}, err
		}
		if taken {
			return entity.Pattern{}, errPatternExists
		}
	}
	if in.NewImageURL != "" {
		p.ImageURL = in.NewImageURL
		if old.Slug != p.Slug && in.NewPreviewFileName != "" {
			s.removeQuietly(ctx, s.cfg.PreviewBucket, old.Slug+".png", old.Slug+".webp")
		}
	}
	if in.NewFullFileName != "" && renamed {
		s.removeQuietly(ctx, s.cfg.PatternBucket, old.PremiumObject())
	}
	if old.StripeProductID != nil {
		product := *old.StripeProductID
		if renamed {
			if err := s.billing.UpdateProduct(ctx, product, in.Name); err != nil {
				s.log.WarnContext(ctx, "rename product failed", "product", product, "err", err)
			}
		}
		if in.Price != old.Price {
			priceID, err := s.billing.Reprice(ctx, product, lo.FromPtr(old.StripePriceID), in.Price, s.cfg.Currency)
			if err != nil {
				s.log.WarnContext(ctx, "reprice product failed", "product", product, "err", err)
			} else {
				p.StripePriceID = &priceID
			}
		}
	}
	p.Name = in.Name
	p.Description = blank(in.Description)
	p.Category = blank(in.Category)
	p.Price = in.Price
	p.FreeImageURL = lo.ToPtr(p.ImageURL)
	if err := s.store.UpdatePattern(ctx, &p); err != nil {
		s.log.ErrorContext(ctx, "pattern update failed", "pattern", id, "err", err)
		return entity.Pattern{}, internal("UPDATE_FAILED", "Failed to update pattern")
	}
	return p, nil
}

// DeletePattern removes a pattern that was never purchased, archiving its product and its
// bucket objects first.
func (s *Service) DeletePattern(ctx context.Context, c Caller, id string) error {
	if err := s.requireAdmin(ctx, c); err != nil {
		return err
	}
	p, err := s.adminPattern(ctx, id)
	if err != nil {
		return err
	}
	purchased, err := s.store.PatternOrderCount(ctx, id)
	if err != nil {
		return err
	}
	if purchased > 0 {
		return errPatternPurchased
	}
	if p.StripeProductID != nil {
		if err := s.billing.ArchiveProduct(ctx, *p.StripeProductID); err != nil {
			s.log.WarnContext(ctx, "archive product failed", "product", *p.StripeProductID, "err", err)
		}
	}
	s.removeQuietly(ctx, s.cfg.PreviewBucket, p.PreviewObject(), p.Slug+".webp")
	s.removeQuietly(ctx, s.cfg.PatternBucket, p.PremiumObject())
	err = s.store.DeletePattern(ctx, id)
	if errors.Is(err, store.ErrReferenced) {
		return errPatternPurchased
	}
	if err != nil {
		s.log.ErrorContext(ctx, "pattern delete failed", "pattern", id, "err", err)
		return internal("DELETE_FAILED", "Failed to delete pattern")
	}
	s.log.InfoContext(ctx, "pattern deleted", "pattern", id, "slug", p.Slug)
	return nil
}

// ObjectExists reports whether an object was already uploaded to a bucket.
func (s *Service) ObjectExists(ctx context.Context, c Caller, bucket, object string) (bool, error) {
	if err := s.requireAdmin(ctx, c); err != nil {
		return false, err
	}
	if bucket == "" || object == "" {
		return false, badRequest("MISSING_FIELDS", "Missing required fields")
	}
	return s.blobs.Exists(ctx, bucket, object)
}

func (s *Service) removeQuietly(ctx context.Context, bucket string, objects ...string) {
	if err := s.blobs.Remove(ctx, bucket, objects...); err != nil {
		s.log.WarnContext(ctx, "remove objects failed", "bucket", bucket, "objects", objects, "err", err)
	}
}

var (
	errPatternExists    = badRequest("PATTERN_EXISTS", "A pattern with this name already exists")
	errPatternPurchased = badRequest("PATTERN_PURCHASED", "Cannot delete pattern that has been purchased. Consider archiving instead.")
)

func blank(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
