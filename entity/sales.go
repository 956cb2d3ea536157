package entity

import "time"

type User struct {
	ID               string    `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	Name             *string   `db:"name" json:"name,omitempty"`
	PasswordHash     *string   `db:"password_hash" json:"-"`
	IsAdmin          bool      `db:"is_admin" json:"is_admin"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (User) Table() string { return "users" }

var (
	UserID               = Column[User]("id")
	UserEmail            = Column[User]("email")
	UserStripeCustomerID = Column[User]("stripe_customer_id")
)

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
	OrderFailed    = "failed"
)

// Order is a completed one-off checkout. Total is in minor currency units.
type Order struct {
	ID                      string      `db:"id" json:"id"`
	UserID                  *string     `db:"user_id" json:"user_id,omitempty"`
	Email                   string      `db:"email" json:"email"`
	Total                   int64       `db:"total" json:"total"`
	Currency                string      `db:"currency" json:"currency"`
	Status                  string      `db:"status" json:"status"`
	StripePaymentIntentID   *string     `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID *string     `db:"stripe_checkout_session_id" json:"stripe_checkout_session_id,omitempty"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
	Items                   []OrderItem `db:"-" json:"items,omitempty"`
}

func (Order) Table() string { return "orders" }

var (
	OrderEmail           = Column[Order]("email")
	OrderCheckoutSession = Column[Order]("stripe_checkout_session_id")
)

type OrderItem struct {
	ID          string    `db:"id" json:"id"`
	OrderID     string    `db:"order_id" json:"order_id"`
	PatternID   *string   `db:"pattern_id" json:"pattern_id,omitempty"`
	PatternName string    `db:"pattern_name" json:"pattern_name"`
	Price       int64     `db:"price" json:"price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (OrderItem) Table() string { return "order_items" }

var (
	OrderItemOrderID   = Column[OrderItem]("order_id")
	OrderItemPatternID = Column[OrderItem]("pattern_id")
)

// Download grants access to a pattern, either purchased or free.
type Download struct {
	ID               string     `db:"id" json:"id"`
	UserID           *string    `db:"user_id" json:"user_id,omitempty"`
	Email            string     `db:"email" json:"email"`
	PatternID        *string    `db:"pattern_id" json:"pattern_id,omitempty"`
	OrderID          *string    `db:"order_id" json:"order_id,omitempty"`
	IsFree           bool       `db:"is_free" json:"is_free"`
	DownloadToken    *string    `db:"download_token" json:"-"`
	DownloadCount    int        `db:"download_count" json:"download_count"`
	LastDownloadedAt *time.Time `db:"last_downloaded_at" json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	Pattern          *Pattern   `db:"-" json:"pattern,omitempty"`
}

func (Download) Table() string { return "downloads" }

var (
	DownloadUserID    = Column[Download]("user_id")
	DownloadEmail     = Column[Download]("email")
	DownloadPatternID = Column[Download]("pattern_id")
	DownloadIsFree    = Column[Download]("is_free")
	DownloadToken     = Column[Download]("download_token")
)
