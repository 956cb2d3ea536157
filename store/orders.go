package store

import (
	"context"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
)

const (
	orderCols     = "id, user_id, email, total, currency, status, stripe_payment_intent_id, stripe_checkout_session_id, created_at, updated_at"
	orderItemCols = "id, order_id, pattern_id, pattern_name, price, created_at"
)

func scanOrder(r scanner) (entity.Order, error) {
	var o entity.Order
	err := r.Scan(&o.ID, &o.UserID, &o.Email, &o.Total, &o.Currency, &o.Status, &o.StripePaymentIntentID,
		&o.StripeCheckoutSessionID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanOrderItem(r scanner) (entity.OrderItem, error) {
	var i entity.OrderItem
	err := r.Scan(&i.ID, &i.OrderID, &i.PatternID, &i.PatternName, &i.Price, &i.CreatedAt)
	return i, err
}

// CreateOrder inserts an order together with its items. A repeated checkout session id
// yields ErrDuplicate.
func (s *Store) CreateOrder(ctx context.Context, o *entity.Order) error {
	stamp(&o.ID, &o.CreatedAt)
	o.UpdatedAt = o.CreatedAt
	o.Email = NormalizeEmail(o.Email)
	return s.InTx(ctx, func(tx *Store) error {
		err := sqlx.Insert[entity.Order](ctx, tx.conn,
			[]string{"id", "user_id", "email", "total", "currency", "status", "stripe_payment_intent_id", "stripe_checkout_session_id", "created_at", "updated_at"},
			o.ID, o.UserID, o.Email, o.Total, o.Currency, o.Status, o.StripePaymentIntentID, o.StripeCheckoutSessionID, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return translate(err)
		}
		for i := range o.Items {
			item := &o.Items[i]
			item.OrderID = o.ID
			stamp(&item.ID, &item.CreatedAt)
			err := sqlx.Insert[entity.OrderItem](ctx, tx.conn,
				[]string{"id", "order_id", "pattern_id", "pattern_name", "price", "created_at"},
				item.ID, item.OrderID, item.PatternID, item.PatternName, item.Price, item.CreatedAt)
			if err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func (s *Store) OrderByCheckoutSession(ctx context.Context, sessionID string) (entity.Order, error) {
	q, args := sqlx.Select[entity.Order](orderCols, sqlx.Eq(entity.OrderCheckoutSession, sessionID), "")
	o, err := one(s.row(ctx, q, args...), scanOrder)
	if err != nil {
		return o, err
	}
	orders, err := s.withItems(ctx, []entity.Order{o})
	if err != nil {
		return o, err
	}
	return orders[0], nil
}

// OrdersByEmail lists the orders placed with an email, newest first, items included.
func (s *Store) OrdersByEmail(ctx context.Context, email string) ([]entity.Order, error) {
	return s.orders(ctx, sqlx.Eq(entity.OrderEmail, NormalizeEmail(email)), "ORDER BY created_at DESC")
}

// Orders lists the most recent orders, items included. A limit of zero lists all.
func (s *Store) Orders(ctx context.Context, limit int) ([]entity.Order, error) {
	suffix := "ORDER BY created_at DESC"
	if limit > 0 {
		return s.orders(ctx, nil, suffix+" LIMIT ?", limit)
	}
	return s.orders(ctx, nil, suffix)
}

func (s *Store) orders(ctx context.Context, where sqlx.Where[entity.Order], suffix string, extra ...any) ([]entity.Order, error) {
	q, args := sqlx.Select[entity.Order](orderCols, where, suffix)
	rows, err := s.query(ctx, q, append(args, extra...)...)
	if err != nil {
		return nil, err
	}
	orders, err := collect(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, orders)
}

func (s *Store) withItems(ctx context.Context, orders []entity.Order) ([]entity.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := lo.Map(orders, func(o entity.Order, _ int) any { return o.ID })
	q, args := sqlx.Select[entity.OrderItem](orderItemCols, sqlx.In(entity.OrderItemOrderID, ids...), "ORDER BY created_at")
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	items, err := collect(rows, scanOrderItem)
	if err != nil {
		return nil, err
	}
	byOrder := lo.GroupBy(items, func(i entity.OrderItem) string { return i.OrderID })
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return orders, nil
}
