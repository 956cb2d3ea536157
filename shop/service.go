// Package shop implements the storefront operations: the catalog, one-off checkouts, the
// subscription and credit purchase path, downloads, accounts and the payment webhooks.
package shop

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pioneerstudio/patternshop/auth"
	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/blob"
	"github.com/pioneerstudio/patternshop/constraint"
	"github.com/pioneerstudio/patternshop/credits"
	"github.com/pioneerstudio/patternshop/mail"
	"github.com/pioneerstudio/patternshop/newsletter"
	"github.com/pioneerstudio/patternshop/store"
)

// Config holds the settings the service needs from application.yml.
type Config struct {
	AppURL            string
	Currency          string
	MonthlyPriceID    string
	YearlyPriceID     string
	TrialDays         int64
	PreviewBucket     string
	PatternBucket     string
	SignedURLTTL      time.Duration
	CreditsPerInvoice int
	CronSecret        string
}

func (c Config) withDefaults() Config {
	c.AppURL = strings.TrimRight(c.AppURL, "/")
	if c.Currency == "" {
		c.Currency = "eur"
	}
	if c.PreviewBucket == "" {
		c.PreviewBucket = "pattern-previews"
	}
	if c.PatternBucket == "" {
		c.PatternBucket = "patterns"
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = 60 * time.Second
	}
	if c.CreditsPerInvoice <= 0 {
		c.CreditsPerInvoice = 12
	}
	return c
}

// Deps are the collaborators of the service.
type Deps struct {
	Store      *store.Store
	Credits    *credits.Service
	Billing    billing.Gateway
	Mailer     mail.Mailer
	Newsletter newsletter.Subscriber
	Blobs      blob.Store
	Tokens     *auth.Tokens
	Logger     *slog.Logger
	Now        func() time.Time
}

type Service struct {
	cfg        Config
	store      *store.Store
	credits    *credits.Service
	billing    billing.Gateway
	mailer     mail.Mailer
	newsletter newsletter.Subscriber
	blobs      blob.Store
	tokens     *auth.Tokens
	log        *slog.Logger
	now        func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	s := &Service{
		cfg:        cfg.withDefaults(),
		store:      deps.Store,
		credits:    deps.Credits,
		billing:    deps.Billing,
		mailer:     deps.Mailer,
		newsletter: deps.Newsletter,
		blobs:      deps.Blobs,
		tokens:     deps.Tokens,
		log:        deps.Logger,
		now:        deps.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.credits == nil {
		s.credits = credits.New(s.store, credits.WithLogger(s.log), credits.WithClock(s.now))
	}
	if s.mailer == nil {
		s.mailer = mail.Log{Logger: s.log}
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) url(path string) string {
	return s.cfg.AppURL + path
}

var checkEmail = func() constraint.Validator[string] {
	_, v := constraint.Email()()
	return v
}()

func validEmail(email string) bool {
	return checkEmail(email) == nil
}

// sendMail delivers m and only logs a failure.
func (s *Service) sendMail(ctx context.Context, m mail.Message, err error) {
	if err == nil {
		err = s.mailer.Send(ctx, m)
	}
	if err != nil {
		s.log.WarnContext(ctx, "email not sent", "to", m.To, "subject", m.Subject, "err", err)
	}
}

// syncNewsletter pushes an opt-in to the mailing list and only logs a failure.
func (s *Service) syncNewsletter(ctx context.Context, email, source string) {
	if s.newsletter == nil {
		return
	}
	if err := s.newsletter.Subscribe(ctx, email, source); err != nil {
		s.log.WarnContext(ctx, "newsletter sync failed", "email", email, "source", source, "err", err)
	}
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
