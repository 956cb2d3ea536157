package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/ledger"
	"github.com/pioneerstudio/patternshop/store"
	"github.com/pioneerstudio/patternshop/store/storetest"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type fixture struct {
	st   *store.Store
	svc  *Service
	now  time.Time
	user string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: storetest.Open(t), now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	f.svc = New(f.st, WithClock(func() time.Time { return f.now }))
	u := entity.User{Email: "ann@example.com"}
	require.NoError(t, f.st.CreateUser(context.Background(), &u))
	f.user = u.ID
	return f
}

func (f *fixture) grant(t *testing.T, amount int, invoice string) entity.CreditTransaction {
	t.Helper()
	row, err := f.svc.Grant(context.Background(), Grant{UserID: f.user, Amount: amount, InvoiceID: invoice})
	require.NoError(t, err)
	return row
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	n, err := f.svc.Available(context.Background(), f.user)
	require.NoError(t, err)
	return n
}

func (f *fixture) replayed(t *testing.T) int {
	t.Helper()
	rows, err := f.st.CreditHistory(context.Background(), f.user, 0)
	require.NoError(t, err)
	return ledger.Balance(Entries(rows), f.now)
}

func TestGrant(t *testing.T) {
	f := setup(t)
	row := f.grant(t, 12, "in_1")
	require.Equal(t, string(ledger.SubscriptionRenewal), row.Kind)
	require.Equal(t, 12, row.Remaining)
	require.Equal(t, f.now.Add(ledger.CreditLifetime), *row.ExpiresAt)

	f.grant(t, 12, "in_1")
	require.Equal(t, 12, f.available(t))

	_, err := f.svc.Grant(context.Background(), Grant{UserID: f.user, Amount: 0})
	require.Error(t, err)
	_, err = f.svc.Grant(context.Background(), Grant{UserID: f.user, Amount: 1, Kind: "bonus"})
	require.Error(t, err)
}

func TestSpend(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	first := f.grant(t, 5, "in_1")
	f.now = f.now.Add(time.Hour)
	second := f.grant(t, 5, "in_2")
	f.now = f.now.Add(time.Hour)

	left, err := f.svc.Spend(ctx, f.user, 7, "", "bundle")
	require.NoError(t, err)
	require.Equal(t, 3, left)
	require.Equal(t, 3, f.available(t))
	require.Equal(t, 3, f.replayed(t))

	live, err := f.st.LiveGrants(ctx, f.user, f.now)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, second.ID, live[0].ID)
	require.Equal(t, 3, live[0].Remaining)
	require.NotEqual(t, first.ID, live[0].ID)

	_, err = f.svc.Spend(ctx, f.user, 4, "", "")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	var short *ledger.InsufficientError
	require.True(t, errors.As(err, &short))
	require.Equal(t, 3, short.Available)
	require.Equal(t, 3, f.available(t))

	history, err := f.svc.History(ctx, f.user, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, -7, history[0].Amount)
	require.Equal(t, string(ledger.PatternPurchase), history[0].Kind)
	require.Nil(t, history[0].ExpiresAt)
}

func TestSpend_WithinOuterTransaction(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.grant(t, 2, "in_1")
	boom := errors.New("download grant failed")
	err := f.st.InTx(ctx, func(tx *store.Store) error {
		if _, err := f.svc.With(tx).Spend(ctx, f.user, 1, "", ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, f.available(t))
}

func TestExpireOld(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.grant(t, 12, "in_1")
	f.now = f.now.Add(day)
	_, err := f.svc.Spend(ctx, f.user, 2, "", "")
	require.NoError(t, err)
	f.now = f.now.Add(10 * day)
	f.grant(t, 12, "in_2")

	f.now = f.now.Add(85 * day)
	require.Equal(t, 12, f.available(t))
	require.Equal(t, 12, f.replayed(t))

	res, err := f.svc.ExpireOld(ctx)
	require.NoError(t, err)
	require.Equal(t, ExpireResult{ExpiredCount: 1, CreditsExpired: 10}, res)
	require.Equal(t, 12, f.available(t))
	require.Equal(t, 12, f.replayed(t))

	rows, err := f.st.CreditHistory(ctx, f.user, 0)
	require.NoError(t, err)
	require.Equal(t, 12, ledger.Sum(Entries(rows)))

	res, err = f.svc.ExpireOld(ctx)
	require.NoError(t, err)
	require.Zero(t, res.ExpiredCount)
}

func TestExpiring(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	row := f.grant(t, 12, "in_1")

	soon, err := f.svc.Expiring(ctx, f.user)
	require.NoError(t, err)
	require.Empty(t, soon)

	f.now = f.now.Add(85 * day)
	soon, err = f.svc.Expiring(ctx, f.user)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	require.Equal(t, row.ID, soon[0].ID)

	f.now = f.now.Add(6 * day)
	soon, err = f.svc.Expiring(ctx, f.user)
	require.NoError(t, err)
	require.Empty(t, soon)
	require.Zero(t, f.available(t))
}
