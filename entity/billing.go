package entity

import "time"

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Subscription statuses mirror the payment processor's lifecycle.
const (
	SubscriptionActive     = "active"
	SubscriptionTrialing   = "trialing"
	SubscriptionPastDue    = "past_due"
	SubscriptionCanceled   = "canceled"
	SubscriptionIncomplete = "incomplete"
	SubscriptionUnpaid     = "unpaid"
)

type Subscription struct {
	ID                   string     `db:"id" json:"id"`
	UserID               string     `db:"user_id" json:"user_id"`
	StripeCustomerID     string     `db:"stripe_customer_id" json:"stripe_customer_id"`
	StripeSubscriptionID string     `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripePriceID        string     `db:"stripe_price_id" json:"stripe_price_id"`
	PlanType             string     `db:"plan_type" json:"plan_type"`
	Status               string     `db:"status" json:"status"`
	CurrentPeriodStart   *time.Time `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

func (Subscription) Table() string { return "subscriptions" }

var (
	SubscriptionUserID   = Column[Subscription]("user_id")
	SubscriptionStatus   = Column[Subscription]("status")
	SubscriptionStripeID = Column[Subscription]("stripe_subscription_id")
)

// Entitled reports whether the subscription currently allows spending credits.
func (s Subscription) Entitled() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// CreditTransaction is one signed row of the credit ledger. Grants carry an expiry and a
// remaining amount that is consumed oldest first; debits carry a negative amount.
type CreditTransaction struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Amount          int        `db:"amount" json:"amount"`
	Remaining       int        `db:"remaining" json:"remaining"`
	Kind            string     `db:"transaction_type" json:"transaction_type"`
	Description     *string    `db:"description" json:"description,omitempty"`
	PatternID       *string    `db:"pattern_id" json:"pattern_id,omitempty"`
	SubscriptionID  *string    `db:"subscription_id" json:"subscription_id,omitempty"`
	StripeInvoiceID *string    `db:"stripe_invoice_id" json:"stripe_invoice_id,omitempty"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsExpired       bool       `db:"is_expired" json:"is_expired"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

func (CreditTransaction) Table() string { return "credit_transactions" }

var (
	CreditUserID    = Column[CreditTransaction]("user_id")
	CreditInvoiceID = Column[CreditTransaction]("stripe_invoice_id")
)
