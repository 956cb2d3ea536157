package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tidwall/gjson"
)

// Metadata keys shared with the webhook handlers.
const (
	MetaItems    = "items"
	MetaUserID   = "userId"
	MetaPlanType = "planType"
	MetaSlug     = "slug"
	MetaCategory = "category"
)

// StripeConfig holds what the Stripe gateway needs. BackendURL points the API client at another
// host, e.g. a test server.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BackendURL    string
	Logger        *slog.Logger
}

// Stripe is the Gateway backed by the Stripe API.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

var _ Gateway = (*Stripe)(nil)

func NewStripe(cfg StripeConfig) *Stripe {
	logger := lo.Ternary(cfg.Logger != nil, cfg.Logger, slog.Default())
	backendCfg := &stripe.BackendConfig{LeveledLogger: leveled{logger.With("component", "stripe")}}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}
	api := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	uploads := stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg)
	backends := &stripe.Backends{API: api, Connect: api, Uploads: uploads}
	return &Stripe{api: client.New(cfg.SecretKey, backends), webhookSecret: cfg.WebhookSecret}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (Session, error) {
	currency := strings.ToLower(lo.Ternary(req.Currency != "", req.Currency, string(stripe.CurrencyEUR)))
	items, err := json.Marshal(lo.Map(req.Items, func(i CheckoutItem, _ int) string { return i.PatternID }))
	if err != nil {
		return Session{}, err
	}
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   map[string]string{MetaItems: string(items)},
		LineItems: lo.Map(req.Items, func(i CheckoutItem, _ int) *stripe.CheckoutSessionLineItemParams {
			product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(i.Name)}
			if i.Description != "" {
				product.Description = stripe.String(i.Description)
			}
			if i.ImageURL != "" {
				product.Images = stripe.StringSlice([]string{i.ImageURL})
			}
			return &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(currency),
					UnitAmount:  stripe.Int64(i.UnitAmount),
					ProductData: product,
				},
			}
		}),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params:              stripe.Params{Context: ctx},
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:            stripe.String(req.CustomerID),
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetaUserID: req.UserID, MetaPlanType: req.Plan},
		},
	}
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create subscription checkout: %w", err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	sess, err := s.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *Stripe) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	c, err := s.api.Customers.New(&stripe.CustomerParams{
		Params:   stripe.Params{Context: ctx},
		Email:    stripe.String(email),
		Metadata: map[string]string{MetaUserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (s *Stripe) LineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	var items []LineItem
	it := s.api.CheckoutSessions.ListLineItems(params)
	for it.Next() {
		li := it.LineItem()
		items = append(items, LineItem{Description: li.Description, AmountTotal: li.AmountTotal, Quantity: li.Quantity})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list line items of %s: %w", sessionID, err)
	}
	return items, nil
}

func (s *Stripe) CreateProduct(ctx context.Context, p Product) (ProductRef, error) {
	params := &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(p.Name),
		DefaultPriceData: &stripe.ProductDefaultPriceDataParams{
			Currency:   stripe.String(strings.ToLower(p.Currency)),
			UnitAmount: stripe.Int64(p.Price),
		},
		Metadata: map[string]string{MetaSlug: p.Slug, MetaCategory: p.Category},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	prod, err := s.api.Products.New(params)
	if err != nil {
		return ProductRef{}, fmt.Errorf("create product: %w", err)
	}
	ref := ProductRef{ProductID: prod.ID}
	if prod.DefaultPrice != nil {
		ref.PriceID = prod.DefaultPrice.ID
	}
	return ref, nil
}

func (s *Stripe) UpdateProduct(ctx context.Context, productID, name string) error {
	_, err := s.api.Products.Update(productID, &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(name),
	})
	if err != nil {
		return fmt.Errorf("update product %s: %w", productID, err)
	}
	return nil
}

func (s *Stripe) Reprice(ctx context.Context, productID, oldPriceID string, amount int64, currency string) (string, error) {
	price, err := s.api.Prices.New(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Product:    stripe.String(productID),
		Currency:   stripe.String(strings.ToLower(currency)),
		UnitAmount: stripe.Int64(amount),
	})
	if err != nil {
		return "", fmt.Errorf("create price: %w", err)
	}
	_, err = s.api.Products.Update(productID, &stripe.ProductParams{
		Params:       stripe.Params{Context: ctx},
		DefaultPrice: stripe.String(price.ID),
	})
	if err != nil {
		return "", fmt.Errorf("set default price: %w", err)
	}
	if oldPriceID != "" {
		_, err = s.api.Prices.Update(oldPriceID, &stripe.PriceParams{
			Params: stripe.Params{Context: ctx},
			Active: stripe.Bool(false),
		})
		if err != nil {
			return price.ID, fmt.Errorf("archive price %s: %w", oldPriceID, err)
		}
	}
	return price.ID, nil
}

func (s *Stripe) ArchiveProduct(ctx context.Context, productID string) error {
	_, err := s.api.Products.Update(productID, &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("archive product %s: %w", productID, err)
	}
	return nil
}

// ParseEvent verifies a webhook delivery against the endpoint secret and decodes it.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing header", ErrSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return decode(evt)
}

func decode(evt stripe.Event) (Event, error) {
	env := envelope{ID: evt.ID}
	if evt.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrPayload, evt.ID)
	}
	raw := evt.Data.Raw
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		out := CheckoutCompleted{
			envelope:    env,
			SessionID:   cs.ID,
			Mode:        string(cs.Mode),
			Email:       cs.CustomerEmail,
			AmountTotal: cs.AmountTotal,
			Currency:    string(cs.Currency),
			PatternIDs:  patternIDs(cs.Metadata[MetaItems]),
		}
		if cs.CustomerDetails != nil {
			out.CustomerName = cs.CustomerDetails.Name
			if out.Email == "" {
				out.Email = cs.CustomerDetails.Email
			}
		}
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
		return out, nil
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return subscriptionChanged(env, &sub), nil
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return SubscriptionDeleted{envelope: env, SubscriptionID: sub.ID}, nil
	case stripe.EventTypeInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		out := InvoicePaid{envelope: env, InvoiceID: inv.ID}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		return out, nil
	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		out := InvoiceFailed{envelope: env, InvoiceID: inv.ID}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		return out, nil
	}
	return Ignored{envelope: env, Type: string(evt.Type)}, nil
}

func subscriptionChanged(env envelope, sub *stripe.Subscription) SubscriptionChanged {
	out := SubscriptionChanged{
		envelope:          env,
		SubscriptionID:    sub.ID,
		UserID:            sub.Metadata[MetaUserID],
		Status:            string(sub.Status),
		Plan:              entity.PlanMonthly,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodStart:       unix(sub.CurrentPeriodStart),
		PeriodEnd:         unix(sub.CurrentPeriodEnd),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.PriceID = price.ID
		if price.Recurring != nil && price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
			out.Plan = entity.PlanYearly
		}
	}
	return out
}

// patternIDs reads the JSON array of pattern ids stored in checkout metadata. Positions match the
// session's line items, so empty entries are kept.
func patternIDs(items string) []string {
	if !gjson.Valid(items) {
		return nil
	}
	return lo.Map(gjson.Parse(items).Array(), func(r gjson.Result, _ int) string {
		return r.String()
	})
}

func unix(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// leveled adapts slog to the Stripe client's logger interface.
type leveled struct {
	log *slog.Logger
}

func (l leveled) Debugf(format string, v ...interface{}) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l leveled) Infof(format string, v ...interface{})  { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l leveled) Warnf(format string, v ...interface{})  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l leveled) Errorf(format string, v ...interface{}) { l.log.Error(fmt.Sprintf(format, v...)) }
