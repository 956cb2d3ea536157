package app

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings is the typed view of application.yml.
type Settings struct {
	Server     ServerSettings     `mapstructure:"server"`
	Log        LogSettings        `mapstructure:"log"`
	Stripe     StripeSettings     `mapstructure:"stripe"`
	Email      EmailSettings      `mapstructure:"email"`
	Newsletter NewsletterSettings `mapstructure:"newsletter"`
	Storage    StorageSettings    `mapstructure:"storage"`
	Credits    CreditSettings     `mapstructure:"credits"`
	Auth       AuthSettings       `mapstructure:"auth"`
	Cron       CronSettings       `mapstructure:"cron"`
	Catalog    CatalogSettings    `mapstructure:"catalog"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	AppURL          string        `mapstructure:"app_url"`
	Datasource      string        `mapstructure:"datasource"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	SQL    bool   `mapstructure:"sql"`
}

type StripeSettings struct {
	SecretKey      string `mapstructure:"secret_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	MonthlyPriceID string `mapstructure:"monthly_price_id"`
	YearlyPriceID  string `mapstructure:"yearly_price_id"`
	Currency       string `mapstructure:"currency"`
	TrialDays      int64  `mapstructure:"trial_days"`
}

type EmailSettings struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

type NewsletterSettings struct {
	APIKey  string `mapstructure:"api_key"`
	GroupID string `mapstructure:"group_id"`
	BaseURL string `mapstructure:"base_url"`
}

// StorageSettings selects the bucket backend. Driver "supabase" talks to Supabase Storage,
// driver "fs" keeps objects under Root and serves them through signed API URLs.
type StorageSettings struct {
	Driver        string        `mapstructure:"driver"`
	URL           string        `mapstructure:"url"`
	ServiceKey    string        `mapstructure:"service_key"`
	Root          string        `mapstructure:"root"`
	SignSecret    string        `mapstructure:"sign_secret"`
	PreviewBucket string        `mapstructure:"preview_bucket"`
	PatternBucket string        `mapstructure:"pattern_bucket"`
	SignedURLTTL  time.Duration `mapstructure:"signed_url_ttl"`
}

type CreditSettings struct {
	Lifetime     time.Duration `mapstructure:"lifetime"`
	ExpiryWindow time.Duration `mapstructure:"expiry_window"`
	PerInvoice   int           `mapstructure:"per_invoice"`
}

type AuthSettings struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type CronSettings struct {
	Secret string `mapstructure:"secret"`
}

type CatalogSettings struct {
	DefaultPrice int64 `mapstructure:"default_price"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.app_url":          "http://localhost:3000",
	"server.datasource":       "default",
	"server.shutdown_timeout": 10 * time.Second,

	"log.level":  "info",
	"log.format": "json",
	"log.sql":    false,

	"stripe.secret_key":       "",
	"stripe.webhook_secret":   "",
	"stripe.monthly_price_id": "",
	"stripe.yearly_price_id":  "",
	"stripe.currency":         "eur",
	"stripe.trial_days":       7,

	"email.api_key": "",
	"email.from":    "Pattern Pioneer <orders@patternpioneerstudio.com>",

	"newsletter.api_key":  "",
	"newsletter.group_id": "",
	"newsletter.base_url": "https://connect.mailerlite.com/api",

	"storage.driver":         "fs",
	"storage.url":            "",
	"storage.service_key":    "",
	"storage.root":           "./data/storage",
	"storage.sign_secret":    "",
	"storage.preview_bucket": "pattern-previews",
	"storage.pattern_bucket": "patterns",
	"storage.signed_url_ttl": 60 * time.Second,

	"credits.lifetime":      90 * 24 * time.Hour,
	"credits.expiry_window": 7 * 24 * time.Hour,
	"credits.per_invoice":   12,

	"auth.token_secret": "",
	"auth.token_ttl":    30 * 24 * time.Hour,

	"cron.secret": "",

	"catalog.default_price": 499,
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load returns the typed settings of the current configuration.
func Load() (Settings, error) {
	res := Config()
	if res.IsError() {
		return Settings{}, res.Error()
	}
	return Decode(res.MustGet())
}

// Decode unmarshals v into Settings.
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}
