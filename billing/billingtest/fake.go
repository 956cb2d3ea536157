// Package billingtest provides an in-memory billing.Gateway for tests.
package billingtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pioneerstudio/patternshop/billing"
)

// Gateway records every call and answers with predictable ids. Set Err to make every call fail
// and Events to script ParseEvent.
type Gateway struct {
	mu sync.Mutex

	Err       error
	Events    map[string]billing.Event
	Items     map[string][]billing.LineItem
	Checkouts []billing.CheckoutRequest
	Subs      []billing.SubscriptionCheckoutRequest
	Customers []string
	Products  map[string]billing.Product
	Archived  []string
	Repriced  map[string]int64
	Renamed   map[string]string
	seq       int
}

var _ billing.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		Events:   map[string]billing.Event{},
		Items:    map[string][]billing.LineItem{},
		Products: map[string]billing.Product{},
		Repriced: map[string]int64{},
		Renamed:  map[string]string{},
	}
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *Gateway) CreateCheckout(_ context.Context, req billing.CheckoutRequest) (billing.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return billing.Session{}, g.Err
	}
	g.Checkouts = append(g.Checkouts, req)
	id := g.next("cs")
	return billing.Session{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *Gateway) CreateSubscriptionCheckout(_ context.Context, req billing.SubscriptionCheckoutRequest) (billing.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return billing.Session{}, g.Err
	}
	g.Subs = append(g.Subs, req)
	id := g.next("cs")
	return billing.Session{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *Gateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	return "https://billing.test/" + customerID, nil
}

func (g *Gateway) CreateCustomer(_ context.Context, email, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.Customers = append(g.Customers, email)
	return g.next("cus"), nil
}

func (g *Gateway) LineItems(_ context.Context, sessionID string) ([]billing.LineItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Items[sessionID], nil
}

func (g *Gateway) CreateProduct(_ context.Context, p billing.Product) (billing.ProductRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return billing.ProductRef{}, g.Err
	}
	ref := billing.ProductRef{ProductID: g.next("prod"), PriceID: g.next("price")}
	g.Products[ref.ProductID] = p
	return ref, nil
}

func (g *Gateway) UpdateProduct(_ context.Context, productID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Renamed[productID] = name
	return nil
}

func (g *Gateway) Reprice(_ context.Context, productID, _ string, amount int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.Repriced[productID] = amount
	return g.next("price"), nil
}

func (g *Gateway) ArchiveProduct(_ context.Context, productID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Archived = append(g.Archived, productID)
	return nil
}

// ParseEvent returns the event scripted for signature, or billing.ErrSignature.
func (g *Gateway) ParseEvent(_ []byte, signature string) (billing.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	evt, ok := g.Events[signature]
	if !ok {
		return nil, fmt.Errorf("%w: unknown test signature %q", billing.ErrSignature, signature)
	}
	return evt, nil
}
