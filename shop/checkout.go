package shop

import (
	"context"
	"fmt"

	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

// Checkout opens a hosted checkout for a cart of pattern ids. Repeated ids are bought once and
// every pattern must still be active.
func (s *Service) Checkout(ctx context.Context, c Caller, patternIDs []string, email string) (billing.Session, error) {
	ids := lo.Uniq(lo.Compact(patternIDs))
	if len(ids) == 0 {
		return billing.Session{}, badRequest("EMPTY_CART", "Cart is empty")
	}
	found, err := s.store.ActivePatternsByIDs(ctx, ids)
	if err != nil {
		return billing.Session{}, err
	}
	byID := lo.KeyBy(found, func(p entity.Pattern) string { return p.ID })
	if missing := lo.Filter(ids, func(id string, _ int) bool { _, ok := byID[id]; return !ok }); len(missing) > 0 {
		return billing.Session{}, badRequest("PATTERN_UNAVAILABLE", "Some patterns in your cart are no longer available")
	}
	if !c.Anonymous() {
		email = c.Email
	}
	email = store.NormalizeEmail(email)
	if email != "" && !validEmail(email) {
		return billing.Session{}, errInvalidEmail
	}
	items := lo.Map(ids, func(id string, _ int) billing.CheckoutItem {
		p := byID[id]
		return billing.CheckoutItem{
			PatternID:   p.ID,
			Name:        p.Name,
			Description: lo.FromPtr(p.Description),
			ImageURL:    p.ImageURL,
			UnitAmount:  p.Price,
		}
	})
	session, err := s.billing.CreateCheckout(ctx, billing.CheckoutRequest{
		Items:         items,
		Currency:      s.cfg.Currency,
		CustomerEmail: email,
		SuccessURL:    s.url("/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     s.url("/cart"),
	})
	if err != nil {
		return billing.Session{}, fmt.Errorf("create checkout: %w", err)
	}
	s.log.InfoContext(ctx, "checkout created", "session", session.ID, "items", len(items))
	return session, nil
}
