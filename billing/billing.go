// Package billing talks to the payment processor: hosted checkouts, subscriptions, the catalog
// mirror of patterns and the verification of webhook deliveries.
package billing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSignature marks a webhook payload whose signature header is missing or does not verify.
	ErrSignature = errors.New("invalid webhook signature")
	// ErrPayload marks a verified webhook whose object could not be decoded.
	ErrPayload = errors.New("malformed webhook payload")
)

// CheckoutItem is one pattern in a one-off checkout. UnitAmount is in minor units.
type CheckoutItem struct {
	PatternID   string
	Name        string
	Description string
	ImageURL    string
	UnitAmount  int64
}

type CheckoutRequest struct {
	Items         []CheckoutItem
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type SubscriptionCheckoutRequest struct {
	CustomerID string
	PriceID    string
	UserID     string
	Plan       string
	TrialDays  int64
	SuccessURL string
	CancelURL  string
}

// Session is a hosted page the customer is redirected to.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// LineItem is a purchased line of a completed checkout, in the order it was created.
type LineItem struct {
	Description string
	AmountTotal int64
	Quantity    int64
}

// Product mirrors a pattern in the processor's catalog.
type Product struct {
	Name        string
	Description string
	Slug        string
	Category    string
	Price       int64
	Currency    string
}

type ProductRef struct {
	ProductID string
	PriceID   string
}

// Gateway is the payment processor as the shop uses it.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error)
	CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	LineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	CreateProduct(ctx context.Context, p Product) (ProductRef, error)
	UpdateProduct(ctx context.Context, productID, name string) error
	// Reprice creates a new default price for a product, archives oldPriceID and returns the
	// new price id.
	Reprice(ctx context.Context, productID, oldPriceID string, amount int64, currency string) (string, error)
	ArchiveProduct(ctx context.Context, productID string) error
	ParseEvent(payload []byte, signature string) (Event, error)
}

// Event is a verified webhook delivery decoded into one of the types below.
type Event interface {
	EventID() string
}

type envelope struct {
	ID string
}

func (e envelope) EventID() string { return e.ID }

// CheckoutCompleted is a finished hosted checkout.
type CheckoutCompleted struct {
	envelope
	SessionID       string
	Mode            string
	Email           string
	CustomerName    string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	// PatternIDs are the purchased patterns in line item order.
	PatternIDs []string
}

// SubscriptionChanged is a created or updated subscription.
type SubscriptionChanged struct {
	envelope
	SubscriptionID    string
	CustomerID        string
	UserID            string
	PriceID           string
	Plan              string
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

type SubscriptionDeleted struct {
	envelope
	SubscriptionID string
}

// InvoicePaid is a successful invoice. SubscriptionID is empty for one-off invoices.
type InvoicePaid struct {
	envelope
	InvoiceID      string
	SubscriptionID string
	CustomerID     string
}

type InvoiceFailed struct {
	envelope
	InvoiceID      string
	SubscriptionID string
}

// Ignored is any event type the shop does not handle.
type Ignored struct {
	envelope
	Type string
}
