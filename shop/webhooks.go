package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/credits"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/ledger"
	"github.com/pioneerstudio/patternshop/mail"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// HandleWebhook verifies a payment processor delivery and applies it. Every handler is
// idempotent, so a delivery that fails with an internal error can be retried by the processor.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return badRequest("MISSING_SIGNATURE", "Missing stripe-signature header")
	}
	evt, err := s.billing.ParseEvent(payload, signature)
	if errors.Is(err, billing.ErrSignature) {
		s.log.WarnContext(ctx, "webhook signature rejected", "err", err)
		return badRequest("BAD_SIGNATURE", "Webhook signature verification failed")
	}
	if err != nil {
		s.log.ErrorContext(ctx, "webhook payload rejected", "err", err)
		return badRequest("BAD_PAYLOAD", "Invalid webhook payload")
	}
	switch e := evt.(type) {
	case billing.CheckoutCompleted:
		err = s.checkoutCompleted(ctx, e)
	case billing.SubscriptionChanged:
		err = s.subscriptionChanged(ctx, e)
	case billing.SubscriptionDeleted:
		err = s.setSubscriptionStatus(ctx, e.SubscriptionID, entity.SubscriptionCanceled)
	case billing.InvoicePaid:
		err = s.invoicePaid(ctx, e)
	case billing.InvoiceFailed:
		if e.SubscriptionID != "" {
			err = s.setSubscriptionStatus(ctx, e.SubscriptionID, entity.SubscriptionPastDue)
		}
	case billing.Ignored:
		s.log.DebugContext(ctx, "webhook event ignored", "event", e.EventID(), "type", e.Type)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "webhook handler failed", "event", evt.EventID(), "err", err)
		return fmt.Errorf("webhook %s: %w", evt.EventID(), err)
	}
	return nil
}

// checkoutCompleted records the order of a paid one-off checkout, grants the downloads and
// sends the confirmation. Subscription checkouts are handled by the subscription events.
func (s *Service) checkoutCompleted(ctx context.Context, e billing.CheckoutCompleted) error {
	if e.Mode == "subscription" {
		return nil
	}
	email := store.NormalizeEmail(e.Email)
	if email == "" {
		s.log.WarnContext(ctx, "checkout without email", "session", e.SessionID)
		return nil
	}
	if _, err := s.store.OrderByCheckoutSession(ctx, e.SessionID); err == nil {
		s.log.InfoContext(ctx, "checkout already recorded", "session", e.SessionID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	items, err := s.billing.LineItems(ctx, e.SessionID)
	if err != nil {
		return fmt.Errorf("line items of %s: %w", e.SessionID, err)
	}
	currency := strings.ToUpper(lo.CoalesceOrEmpty(e.Currency, s.cfg.Currency))
	purchased, err := s.purchasedPatterns(ctx, e.SessionID, e.PatternIDs, len(items))
	if err != nil {
		return err
	}

	var order entity.Order
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		user, err := tx.UserByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			user = entity.User{Email: email}
			err = tx.CreateUser(ctx, &user)
		}
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		order = entity.Order{
			UserID:                  &user.ID,
			Email:                   email,
			Total:                   e.AmountTotal,
			Currency:                currency,
			Status:                  entity.OrderCompleted,
			StripePaymentIntentID:   blank(e.PaymentIntentID),
			StripeCheckoutSessionID: &e.SessionID,
		}
		for i, li := range items {
			item := entity.OrderItem{
				PatternName: lo.CoalesceOrEmpty(li.Description, "Pattern"),
				Price:       li.AmountTotal,
			}
			item.PatternID = blank(purchased[i])
			order.Items = append(order.Items, item)
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if item.PatternID == nil {
				continue
			}
			d := entity.Download{UserID: &user.ID, Email: email, PatternID: item.PatternID, OrderID: &order.ID}
			if err := tx.CreateDownload(ctx, &d); err != nil {
				return fmt.Errorf("grant download of %s: %w", *item.PatternID, err)
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		if _, lookup := s.store.OrderByCheckoutSession(ctx, e.SessionID); lookup == nil {
			s.log.InfoContext(ctx, "checkout recorded concurrently", "session", e.SessionID)
			return nil
		}
	}
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "order recorded", "order", order.ID, "session", e.SessionID, "items", len(order.Items))

	m, err := mail.OrderConfirmationMessage(email, mail.OrderConfirmation{
		CustomerName: lo.CoalesceOrEmpty(e.CustomerName, mail.CustomerName(email)),
		OrderNumber:  order.ID,
		OrderDate:    order.CreatedAt,
		Items: lo.Map(order.Items, func(i entity.OrderItem, _ int) mail.OrderLine {
			return mail.OrderLine{
				PatternName: i.PatternName,
				Price:       mail.FormatPrice(i.Price, currency),
				DownloadURL: s.url("/account/downloads"),
			}
		}),
		Total:  mail.FormatPrice(order.Total, currency),
		AppURL: s.cfg.AppURL,
	})
	s.sendMail(ctx, m, err)
	return nil
}

// subscriptionChanged mirrors a created or updated subscription. The owner is found by the
// processor customer, falling back to the user id carried in the subscription metadata.
func (s *Service) subscriptionChanged(ctx context.Context, e billing.SubscriptionChanged) error {
	user, err := s.store.UserByStripeCustomer(ctx, e.CustomerID)
	if errors.Is(err, store.ErrNotFound) && e.UserID != "" {
		user, err = s.store.UserByID(ctx, e.UserID)
	}
	if errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "subscription for unknown customer", "subscription", e.SubscriptionID, "customer", e.CustomerID)
		return nil
	}
	if err != nil {
		return err
	}
	sub := entity.Subscription{
		UserID:               user.ID,
		StripeCustomerID:     e.CustomerID,
		StripeSubscriptionID: e.SubscriptionID,
		StripePriceID:        e.PriceID,
		PlanType:             lo.CoalesceOrEmpty(e.Plan, entity.PlanMonthly),
		Status:               e.Status,
		CurrentPeriodStart:   e.PeriodStart,
		CurrentPeriodEnd:     e.PeriodEnd,
		CancelAtPeriodEnd:    e.CancelAtPeriodEnd,
	}
	if err := s.store.UpsertSubscription(ctx, &sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", e.SubscriptionID, err)
	}
	if lo.FromPtr(user.StripeCustomerID) == "" && e.CustomerID != "" {
		if err := s.store.SetStripeCustomer(ctx, user.ID, e.CustomerID); err != nil {
			s.log.WarnContext(ctx, "link customer failed", "user", user.ID, "err", err)
		}
	}
	s.log.InfoContext(ctx, "subscription synced", "subscription", e.SubscriptionID, "user", user.ID, "status", e.Status)
	return nil
}

func (s *Service) setSubscriptionStatus(ctx context.Context, stripeID, status string) error {
	err := s.store.SetSubscriptionStatus(ctx, stripeID, status, s.clock())
	if errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "status change for unknown subscription", "subscription", stripeID, "status", status)
		return nil
	}
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "subscription status changed", "subscription", stripeID, "status", status)
	return nil
}

// invoicePaid grants the credits of a paid subscription invoice. Repeated deliveries of the
// same invoice grant once.
func (s *Service) invoicePaid(ctx context.Context, e billing.InvoicePaid) error {
	if e.SubscriptionID == "" {
		return nil
	}
	user, err := s.store.UserByStripeCustomer(ctx, e.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "invoice for unknown customer", "invoice", e.InvoiceID, "customer", e.CustomerID)
		return nil
	}
	if err != nil {
		return err
	}
	sub, err := s.store.SubscriptionByStripeID(ctx, e.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.WarnContext(ctx, "invoice for unknown subscription", "invoice", e.InvoiceID, "subscription", e.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}
	amount := s.cfg.CreditsPerInvoice
	_, err = s.credits.Grant(ctx, credits.Grant{
		UserID:         user.ID,
		Amount:         amount,
		Kind:           ledger.SubscriptionRenewal,
		Description:    fmt.Sprintf("%d credits added for %s subscription renewal", amount, sub.PlanType),
		SubscriptionID: sub.ID,
		InvoiceID:      e.InvoiceID,
	})
	return err
}

// purchasedPatterns lines up the session's pattern ids with its n line items. Ids that are
// malformed or name a pattern that no longer exists are blanked so the order is still recorded, without a download for that line.
func (s *Service) purchasedPatterns(ctx context.Context, session string, ids []string, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		if i >= len(ids) || ids[i] == "" {
			continue
		}
		if _, err := uuid.Parse(ids[i]); err != nil {
			s.log.WarnContext(ctx, "checkout references malformed pattern id", "session", session, "pattern", ids[i])
			continue
		}
		_, err := s.store.PatternByID(ctx, ids[i])
		if errors.Is(err, store.ErrNotFound) {
			s.log.WarnContext(ctx, "checkout references unknown pattern", "session", session, "pattern", ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %s: %w", ids[i], err)
		}
		out[i] = ids[i]
	}
	return out, nil
}
