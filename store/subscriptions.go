package store

import (
	"context"
	"errors"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const subscriptionCols = "id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, plan_type, status, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at"

func scanSubscription(r scanner) (entity.Subscription, error) {
	var s entity.Subscription
	err := r.Scan(&s.ID, &s.UserID, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.StripePriceID, &s.PlanType,
		&s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (s *Store) subscription(ctx context.Context, where sqlx.Where[entity.Subscription]) (entity.Subscription, error) {
	q, args := sqlx.Select[entity.Subscription](subscriptionCols, where, "ORDER BY created_at DESC LIMIT 1")
	return one(s.row(ctx, q, args...), scanSubscription)
}

func (s *Store) SubscriptionByStripeID(ctx context.Context, stripeID string) (entity.Subscription, error) {
	return s.subscription(ctx, sqlx.Eq(entity.SubscriptionStripeID, stripeID))
}

// SubscriptionForUser returns the newest subscription of a user whose status is one of
// statuses. Without statuses any status matches.
func (s *Store) SubscriptionForUser(ctx context.Context, userID string, statuses ...string) (entity.Subscription, error) {
	var byStatus sqlx.Where[entity.Subscription]
	if len(statuses) > 0 {
		byStatus = sqlx.In(entity.SubscriptionStatus, lo.ToAnySlice(statuses)...)
	}
	return s.subscription(ctx, sqlx.And(sqlx.Eq(entity.SubscriptionUserID, userID), byStatus))
}

// UpsertSubscription inserts or updates the row keyed by the processor's subscription id.
// On update the local id and creation time are kept and copied back into sub.
func (s *Store) UpsertSubscription(ctx context.Context, sub *entity.Subscription) error {
	return s.InTx(ctx, func(tx *Store) error {
		sub.UpdatedAt = now()
		existing, err := tx.SubscriptionByStripeID(ctx, sub.StripeSubscriptionID)
		switch {
		case errors.Is(err, ErrNotFound):
			stamp(&sub.ID, &sub.CreatedAt)
			return translate(sqlx.Insert[entity.Subscription](ctx, tx.conn,
				[]string{"id", "user_id", "stripe_customer_id", "stripe_subscription_id", "stripe_price_id", "plan_type", "status", "current_period_start", "current_period_end", "cancel_at_period_end", "created_at", "updated_at"},
				sub.ID, sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.StripePriceID, sub.PlanType, sub.Status,
				utc(sub.CurrentPeriodStart), utc(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd, sub.CreatedAt, sub.UpdatedAt))
		case err != nil:
			return err
		}
		sub.ID, sub.CreatedAt = existing.ID, existing.CreatedAt
		_, err = tx.exec(ctx, `UPDATE subscriptions SET user_id = ?, stripe_customer_id = ?, stripe_price_id = ?, plan_type = ?, status = ?,
			current_period_start = ?, current_period_end = ?, cancel_at_period_end = ?, updated_at = ? WHERE id = ?`,
			sub.UserID, sub.StripeCustomerID, sub.StripePriceID, sub.PlanType, sub.Status,
			utc(sub.CurrentPeriodStart), utc(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd, sub.UpdatedAt, sub.ID)
		return err
	})
}

// SetSubscriptionStatus updates the status of the row with the processor's subscription id.
func (s *Store) SetSubscriptionStatus(ctx context.Context, stripeID, status string, at time.Time) error {
	n, err := s.exec(ctx, "UPDATE subscriptions SET status = ?, updated_at = ? WHERE stripe_subscription_id = ?", status, at.UTC(), stripeID)
	if err != nil {
		return err
	}
	return lo.Ternary(n == 0, ErrNotFound, nil)
}
