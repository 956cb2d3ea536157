package shop

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/blob"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/mail"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// DownloadLink is a short lived URL to a purchased file.
type DownloadLink struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// File is an object streamed back to the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Download signs a link to the full resolution file of a purchased pattern and counts the
// download.
func (s *Service) Download(ctx context.Context, c Caller, patternID string) (DownloadLink, error) {
	if c.Anonymous() {
		return DownloadLink{}, unauthorized("Unauthorized")
	}
	d, err := s.store.PaidDownload(ctx, c.Email, patternID)
	if errors.Is(err, store.ErrNotFound) {
		return DownloadLink{}, forbidden("NO_ACCESS", "You do not have access to this pattern")
	}
	if err != nil {
		return DownloadLink{}, err
	}
	p, err := s.store.PatternByID(ctx, patternID)
	if err != nil {
		return DownloadLink{}, err
	}
	link := DownloadLink{FileName: p.Name + ".png"}
	link.URL, err = s.blobs.SignedURL(ctx, s.cfg.PatternBucket, p.PremiumObject(), s.cfg.SignedURLTTL)
	if err != nil {
		s.log.ErrorContext(ctx, "sign download url failed", "pattern", p.ID, "err", err)
		return DownloadLink{}, internal("SIGN_FAILED", "Failed to generate download link")
	}
	if err := s.store.RecordDownload(ctx, d.ID, s.clock()); err != nil {
		s.log.WarnContext(ctx, "download count not updated", "download", d.ID, "err", err)
	}
	return link, nil
}

// RequestFreeDownload emails a one time link to the free preview of a pattern. Each email can
// claim a pattern's preview once; the address also joins the newsletter.
func (s *Service) RequestFreeDownload(ctx context.Context, email, patternID string) error {
	email = store.NormalizeEmail(email)
	if email == "" || patternID == "" {
		return badRequest("MISSING_FIELDS", "Email and pattern ID are required")
	}
	if !validEmail(email) {
		return errInvalidEmail
	}
	p, err := s.store.PatternByID(ctx, patternID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
		return errPatternNotFound
	}
	if err != nil {
		return err
	}
	claimed, err := s.store.HasFreeDownload(ctx, email, p.ID)
	if err != nil {
		return err
	}
	if claimed {
		return badRequest("ALREADY_CLAIMED", "You have already downloaded this free pattern. Check your email!")
	}

	subscribed, err := s.store.NewsletterSubscribed(ctx, email)
	if err != nil {
		return err
	}
	if !subscribed {
		err := s.store.AddNewsletterSubscription(ctx, &entity.NewsletterSubscription{Email: email, Source: entity.NewsletterSourceFreeDownload})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			s.log.WarnContext(ctx, "newsletter insert failed", "email", email, "err", err)
		}
		s.syncNewsletter(ctx, email, entity.NewsletterSourceFreeDownload)
	}

	token := uuid.NewString()
	d := entity.Download{Email: email, PatternID: &p.ID, IsFree: true, DownloadToken: &token}
	if u, err := s.store.UserByEmail(ctx, email); err == nil {
		d.UserID = &u.ID
	}
	if err := s.store.CreateDownload(ctx, &d); err != nil {
		s.log.ErrorContext(ctx, "free download insert failed", "email", email, "pattern", p.ID, "err", err)
		return internal("DOWNLOAD_FAILED", "Failed to create download record")
	}
	m, err := mail.FreeDownloadMessage(email, mail.FreeDownload{
		PatternName: p.Name,
		DownloadURL: s.url("/api/free-download/" + token),
		FullPrice:   mail.FormatPrice(p.Price, s.cfg.Currency),
		AppURL:      s.cfg.AppURL,
	})
	s.sendMail(ctx, m, err)
	s.log.InfoContext(ctx, "free download issued", "pattern", p.ID, "download", d.ID)
	return nil
}

// FreeDownload resolves a free download token to the preview image.
func (s *Service) FreeDownload(ctx context.Context, token string) (File, error) {
	if strings.TrimSpace(token) == "" {
		return File{}, badRequest("INVALID_TOKEN", "Invalid download link")
	}
	errInvalid := notFound("UNKNOWN_TOKEN", "Download link not found or expired")
	d, err := s.store.DownloadByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !d.IsFree) {
		return File{}, errInvalid
	}
	if err != nil {
		return File{}, err
	}
	p := lo.FromPtr(d.Pattern)
	object, ok := blob.ObjectFromURL(lo.FromPtr(p.FreeImageURL), s.cfg.PreviewBucket)
	if !ok {
		object = p.PreviewObject()
	}
	data, err := s.blobs.Read(ctx, s.cfg.PreviewBucket, object)
	if errors.Is(err, blob.ErrNotFound) {
		return File{}, notFound("FILE_NOT_FOUND", "Pattern file not found")
	}
	if err != nil {
		s.log.ErrorContext(ctx, "read preview failed", "object", object, "err", err)
		return File{}, internal("READ_FAILED", "Failed to download pattern file")
	}
	if err := s.store.RecordDownload(ctx, d.ID, s.clock()); err != nil {
		s.log.WarnContext(ctx, "download count not updated", "download", d.ID, "err", err)
	}
	return File{Name: p.Slug + ".png", ContentType: "image/png", Data: data}, nil
}
