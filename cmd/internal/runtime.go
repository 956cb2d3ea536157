// Package internal wires the shop's collaborators from application.yml for the CLI commands.
package internal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/pioneerstudio/patternshop/app"
	"github.com/pioneerstudio/patternshop/auth"
	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/blob"
	"github.com/pioneerstudio/patternshop/credits"
	"github.com/pioneerstudio/patternshop/mail"
	"github.com/pioneerstudio/patternshop/newsletter"
	"github.com/pioneerstudio/patternshop/shop"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type runtimeKey struct{}

// Runtime holds everything a command needs.
type Runtime struct {
	Settings app.Settings
	Log      *slog.Logger
	Store    *store.Store
	Credits  *credits.Service
	Shop     *shop.Service
	// Files is set when objects live on the local filesystem and are served by the API.
	Files *blob.FS
}

// Boot loads the settings, opens the configured datasource and builds the services.
func Boot(logOut io.Writer) (*Runtime, error) {
	s, err := app.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	log := app.NewLogger(s.Log, logOut)
	if s.Log.SQL {
		sqlx.SetSQLLogger(log.With("component", "sql"))
	}
	db, err := sqlx.GetDS(s.Server.Datasource)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Settings: s, Log: log, Store: store.New(db)}
	rt.Credits = credits.New(rt.Store,
		credits.WithLifetime(s.Credits.Lifetime),
		credits.WithWindow(s.Credits.ExpiryWindow),
		credits.WithLogger(log),
	)

	blobs, err := rt.blobs()
	if err != nil {
		return nil, err
	}
	mailer, err := rt.mailer()
	if err != nil {
		return nil, err
	}
	tokenSecret := rt.secret("auth.token_secret", s.Auth.TokenSecret)
	rt.Shop = shop.New(shop.Config{
		AppURL:            s.Server.AppURL,
		Currency:          s.Stripe.Currency,
		MonthlyPriceID:    s.Stripe.MonthlyPriceID,
		YearlyPriceID:     s.Stripe.YearlyPriceID,
		TrialDays:         s.Stripe.TrialDays,
		PreviewBucket:     s.Storage.PreviewBucket,
		PatternBucket:     s.Storage.PatternBucket,
		SignedURLTTL:      s.Storage.SignedURLTTL,
		CreditsPerInvoice: s.Credits.PerInvoice,
		CronSecret:        s.Cron.Secret,
	}, shop.Deps{
		Store:      rt.Store,
		Credits:    rt.Credits,
		Billing:    rt.gateway(),
		Mailer:     mailer,
		Newsletter: rt.newsletter(),
		Blobs:      blobs,
		Tokens:     auth.NewTokens(tokenSecret, s.Auth.TokenTTL),
		Logger:     log,
	})
	return rt, nil
}

func (rt *Runtime) gateway() billing.Gateway {
	if rt.Settings.Stripe.SecretKey == "" {
		rt.Log.Warn("stripe.secret_key is empty, payment calls will be rejected")
	}
	return billing.NewStripe(billing.StripeConfig{
		SecretKey:     rt.Settings.Stripe.SecretKey,
		WebhookSecret: rt.Settings.Stripe.WebhookSecret,
		Logger:        rt.Log,
	})
}

func (rt *Runtime) mailer() (mail.Mailer, error) {
	if rt.Settings.Email.APIKey == "" {
		return mail.Log{Logger: rt.Log}, nil
	}
	return mail.NewResend(rt.Settings.Email.APIKey, rt.Settings.Email.From, "")
}

func (rt *Runtime) newsletter() newsletter.Subscriber {
	n := rt.Settings.Newsletter
	if n.APIKey == "" {
		return nil
	}
	return newsletter.NewMailerLite(newsletter.Config{APIKey: n.APIKey, GroupID: n.GroupID, BaseURL: n.BaseURL}, nil, rt.Log)
}

func (rt *Runtime) blobs() (blob.Store, error) {
	st := rt.Settings.Storage
	switch strings.ToLower(st.Driver) {
	case "supabase":
		if st.URL == "" || st.ServiceKey == "" {
			return nil, fmt.Errorf("storage: supabase driver needs storage.url and storage.service_key")
		}
		return blob.NewSupabase(st.URL, st.ServiceKey, nil), nil
	case "", "fs":
		base := strings.TrimRight(lo.CoalesceOrEmpty(st.URL, rt.Settings.Server.AppURL), "/") + "/files"
		rt.Files = blob.NewOsFS(st.Root, base, rt.secret("storage.sign_secret", st.SignSecret))
		return rt.Files, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", st.Driver)
	}
}

// secret returns value, or a random per-process secret when it is not configured.
func (rt *Runtime) secret(key, value string) string {
	if value != "" {
		return value
	}
	rt.Log.Warn("secret not configured, using a random one for this process", "key", key)
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Close releases the datasources.
func (rt *Runtime) Close() {
	if err := sqlx.CloseAllDataSources(); err != nil {
		rt.Log.Warn("close datasources", "err", err)
	}
}

// Attach boots the runtime into cmd's context.
func Attach(cmd *cobra.Command) error {
	rt, err := Boot(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
	return nil
}

// From returns the runtime attached to cmd.
func From(cmd *cobra.Command) *Runtime {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*Runtime)
	lo.Assert(ok, "runtime is not attached")
	return rt
}

// Done prints a success line.
func Done(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString(format, args...))
}

// Note prints an informational line.
func Note(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), color.YellowString(format, args...))
}
