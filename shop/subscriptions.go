package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/pioneerstudio/patternshop/billing"
	"github.com/pioneerstudio/patternshop/credits"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/samber/lo"
)

const recentTransactions = 10

var errAuthRequired = unauthorized("Authentication required")

// SubscriptionStatus is what the account page shows about a subscriber.
type SubscriptionStatus struct {
	Subscription     *entity.Subscription       `json:"subscription"`
	AvailableCredits int                        `json:"availableCredits"`
	Transactions     []entity.CreditTransaction `json:"transactions"`
	ExpiringCredits  []entity.CreditTransaction `json:"expiringCredits"`
}

// PurchaseResult is the outcome of buying a pattern with a credit.
type PurchaseResult struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	Download         entity.Download `json:"download"`
	RemainingCredits int             `json:"remainingCredits"`
}

func (s *Service) caller(ctx context.Context, c Caller) (entity.User, error) {
	if c.Anonymous() {
		return entity.User{}, errAuthRequired
	}
	u, err := s.store.UserByID(ctx, c.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return u, errAuthRequired
	}
	return u, err
}

// Subscribe opens a hosted subscription checkout for plan, creating the processor customer on
// first use.
func (s *Service) Subscribe(ctx context.Context, c Caller, plan string) (billing.Session, error) {
	u, err := s.caller(ctx, c)
	if err != nil {
		return billing.Session{}, err
	}
	if plan != entity.PlanMonthly && plan != entity.PlanYearly {
		return billing.Session{}, badRequest("INVALID_PLAN", `Invalid plan type. Must be "monthly" or "yearly"`)
	}
	_, err = s.store.SubscriptionForUser(ctx, u.ID, entity.SubscriptionActive, entity.SubscriptionTrialing)
	if err == nil {
		return billing.Session{}, badRequest("ALREADY_SUBSCRIBED", "You already have an active subscription")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return billing.Session{}, err
	}
	customerID := lo.FromPtr(u.StripeCustomerID)
	if customerID == "" {
		if customerID, err = s.billing.CreateCustomer(ctx, u.Email, u.ID); err != nil {
			return billing.Session{}, fmt.Errorf("create customer: %w", err)
		}
		if err := s.store.SetStripeCustomer(ctx, u.ID, customerID); err != nil {
			return billing.Session{}, err
		}
	}
	priceID := lo.Ternary(plan == entity.PlanYearly, s.cfg.YearlyPriceID, s.cfg.MonthlyPriceID)
	if priceID == "" {
		s.log.ErrorContext(ctx, "subscription price not configured", "plan", plan)
		return billing.Session{}, internal("PLAN_NOT_CONFIGURED", "Subscription plan not configured. Please contact support.")
	}
	session, err := s.billing.CreateSubscriptionCheckout(ctx, billing.SubscriptionCheckoutRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     u.ID,
		Plan:       plan,
		TrialDays:  s.cfg.TrialDays,
		SuccessURL: s.url("/account/subscription?success=true"),
		CancelURL:  s.url("/account/subscription?canceled=true"),
	})
	if err != nil {
		return billing.Session{}, fmt.Errorf("create subscription checkout: %w", err)
	}
	return session, nil
}

// BillingPortal returns the URL of the processor's self service portal.
func (s *Service) BillingPortal(ctx context.Context, c Caller) (string, error) {
	u, err := s.caller(ctx, c)
	if err != nil {
		return "", err
	}
	if lo.FromPtr(u.StripeCustomerID) == "" {
		return "", notFound("NO_SUBSCRIPTION", "No subscription found")
	}
	url, err := s.billing.CreatePortalSession(ctx, *u.StripeCustomerID, s.url("/account/subscription"))
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}

// Status reports the caller's current subscription, balance and credit activity.
func (s *Service) Status(ctx context.Context, c Caller) (SubscriptionStatus, error) {
	var st SubscriptionStatus
	if c.Anonymous() {
		return st, errAuthRequired
	}
	sub, err := s.store.SubscriptionForUser(ctx, c.UserID,
		entity.SubscriptionActive, entity.SubscriptionTrialing, entity.SubscriptionPastDue)
	switch {
	case err == nil:
		st.Subscription = &sub
	case !errors.Is(err, store.ErrNotFound):
		return st, err
	}
	if st.AvailableCredits, err = s.credits.Available(ctx, c.UserID); err != nil {
		return st, err
	}
	if st.Transactions, err = s.credits.History(ctx, c.UserID, recentTransactions); err != nil {
		return st, err
	}
	if st.ExpiringCredits, err = s.credits.Expiring(ctx, c.UserID); err != nil {
		return st, err
	}
	return st, nil
}

// PurchaseWithCredit spends one credit on a pattern. The spend and the download grant commit
// together or not at all.
func (s *Service) PurchaseWithCredit(ctx context.Context, c Caller, patternID string) (PurchaseResult, error) {
	var res PurchaseResult
	u, err := s.caller(ctx, c)
	if err != nil {
		return res, err
	}
	if patternID == "" {
		return res, errPatternRequired
	}
	p, err := s.store.PatternByID(ctx, patternID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
		return res, errPatternNotFound
	}
	if err != nil {
		return res, err
	}
	owned, err := s.store.OwnsPattern(ctx, u.ID, p.ID)
	if err != nil {
		return res, err
	}
	if owned {
		return res, badRequest("ALREADY_OWNED", "You already have access to this pattern")
	}
	sub, err := s.store.SubscriptionForUser(ctx, u.ID, entity.SubscriptionActive, entity.SubscriptionTrialing)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !sub.Entitled()) {
		return res, forbidden("SUBSCRIPTION_REQUIRED", "Active subscription required to use credits")
	}
	if err != nil {
		return res, err
	}
	errInsufficient := badRequest("INSUFFICIENT_CREDITS", "Insufficient credits. You need 1 credit to download this pattern.")
	available, err := s.credits.Available(ctx, u.ID)
	if err != nil {
		return res, err
	}
	if available < 1 {
		return res, errInsufficient
	}
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		left, err := s.credits.With(tx).Spend(ctx, u.ID, 1, p.ID, "Downloaded: "+p.Name)
		if err != nil {
			return err
		}
		res.RemainingCredits = left
		res.Download = entity.Download{UserID: &u.ID, Email: u.Email, PatternID: &p.ID}
		return tx.CreateDownload(ctx, &res.Download)
	})
	if errors.Is(err, credits.ErrInsufficientCredits) {
		return PurchaseResult{}, errInsufficient
	}
	if err != nil {
		s.log.ErrorContext(ctx, "credit purchase failed", "user", u.ID, "pattern", p.ID, "err", err)
		return PurchaseResult{}, internal("GRANT_FAILED", "Failed to grant access. Please contact support.")
	}
	res.Success = true
	res.Message = "Pattern purchased successfully with 1 credit"
	s.log.InfoContext(ctx, "pattern purchased with credit", "user", u.ID, "pattern", p.ID, "left", res.RemainingCredits)
	return res, nil
}
