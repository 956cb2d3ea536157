package entity

import (
	"regexp"
	"strings"
	"time"
)

// Pattern is a sellable design. Price is in minor currency units (cents).
type Pattern struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Slug            string    `db:"slug" json:"slug"`
	Description     *string   `db:"description" json:"description,omitempty"`
	Category        *string   `db:"category" json:"category,omitempty"`
	ImageURL        string    `db:"image_url" json:"image_url"`
	FreeImageURL    *string   `db:"free_image_url" json:"free_image_url,omitempty"`
	Price           int64     `db:"price" json:"price"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	StripeProductID *string   `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	StripePriceID   *string   `db:"stripe_price_id" json:"stripe_price_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (Pattern) Table() string { return "patterns" }

var (
	PatternID       = Column[Pattern]("id")
	PatternSlug     = Column[Pattern]("slug")
	PatternIsActive = Column[Pattern]("is_active")
)

// PreviewObject is the object name of the free preview in the preview bucket.
func (p Pattern) PreviewObject() string {
	return p.Slug + ".png"
}

// PremiumObject is the object name of the full resolution file in the pattern bucket.
func (p Pattern) PremiumObject() string {
	return "premium/" + p.Name + ".png"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and collapses every run of non alphanumerics into a dash.
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Favorite marks a pattern on a user's wishlist.
type Favorite struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	PatternID string    `db:"pattern_id" json:"pattern_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Favorite) Table() string { return "favorites" }

var (
	FavoriteUserID    = Column[Favorite]("user_id")
	FavoritePatternID = Column[Favorite]("pattern_id")
)

const (
	NewsletterSourceHomepage     = "homepage"
	NewsletterSourceFreeDownload = "free_download"
)

type NewsletterSubscription struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (NewsletterSubscription) Table() string { return "newsletter_subscriptions" }

var NewsletterEmail = Column[NewsletterSubscription]("email")
