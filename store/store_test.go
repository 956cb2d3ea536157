package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pioneerstudio/patternshop/entity"
	"github.com/pioneerstudio/patternshop/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlx.Open(ctx, sqlx.DataSource{
		Driver: "sqlite3",
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func seedPattern(t *testing.T, s *Store, name string) entity.Pattern {
	t.Helper()
	p := entity.Pattern{Name: name, Slug: entity.Slugify(name), ImageURL: "https://cdn.test/" + entity.Slugify(name) + ".png", Price: 499, IsActive: true}
	require.NoError(t, s.CreatePattern(context.Background(), &p))
	return p
}

func seedUser(t *testing.T, s *Store, email string) entity.User {
	t.Helper()
	u := entity.User{Email: email}
	require.NoError(t, s.CreateUser(context.Background(), &u))
	return u
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.Equal(t, sqlx.SQLite, s.Dialect())
}

func TestPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	waves := seedPattern(t, s, "Blue Waves")
	koi := seedPattern(t, s, "Koi Pond")
	koi.IsActive = false
	require.NoError(t, s.UpdatePattern(ctx, &koi))

	dup := entity.Pattern{Name: "Blue Waves", Slug: "blue-waves", ImageURL: "x", Price: 1}
	require.ErrorIs(t, s.CreatePattern(ctx, &dup), ErrDuplicate)

	active, err := s.ActivePatterns(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, waves.ID, active[0].ID)

	all, err := s.AllPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got, err := s.PatternBySlug(ctx, "blue-waves")
	require.NoError(t, err)
	require.Equal(t, int64(499), got.Price)
	require.Equal(t, waves.CreatedAt.Unix(), got.CreatedAt.Unix())

	_, err = s.PatternByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)

	byIDs, err := s.ActivePatternsByIDs(ctx, []string{waves.ID, koi.ID, waves.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)

	taken, err := s.SlugTaken(ctx, "blue-waves", "")
	require.NoError(t, err)
	require.True(t, taken)
	taken, err = s.SlugTaken(ctx, "blue-waves", waves.ID)
	require.NoError(t, err)
	require.False(t, taken)

	require.NoError(t, s.DeletePattern(ctx, koi.ID))
	require.ErrorIs(t, s.DeletePattern(ctx, koi.ID), ErrNotFound)
	ghost := entity.Pattern{ID: uuid.NewString()}
	require.ErrorIs(t, s.UpdatePattern(ctx, &ghost), ErrNotFound)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := seedUser(t, s, " Ann@Example.com ")
	require.Equal(t, "ann@example.com", u.Email)

	dup := entity.User{Email: "ANN@example.com"}
	require.ErrorIs(t, s.CreateUser(ctx, &dup), ErrDuplicate)

	got, err := s.UserByEmail(ctx, "ann@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.False(t, got.IsAdmin)

	require.NoError(t, s.SetStripeCustomer(ctx, u.ID, "cus_1"))
	got, err = s.UserByStripeCustomer(ctx, "cus_1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	require.NoError(t, s.SetAdmin(ctx, u.ID, true))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.IsAdmin)

	require.ErrorIs(t, s.SetStripeCustomer(ctx, uuid.NewString(), "cus_2"), ErrNotFound)

	seedUser(t, s, "bob@example.com")
	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedPattern(t, s, "Retro Tiles")
	u := seedUser(t, s, "ann@example.com")

	o := entity.Order{
		UserID:                  &u.ID,
		Email:                   "Ann@example.com",
		Total:                   998,
		Currency:                "EUR",
		Status:                  entity.OrderCompleted,
		StripeCheckoutSessionID: lo.ToPtr("cs_1"),
		Items: []entity.OrderItem{
			{PatternID: &p.ID, PatternName: p.Name, Price: 499},
			{PatternName: "Gift", Price: 499},
		},
	}
	require.NoError(t, s.CreateOrder(ctx, &o))

	again := entity.Order{Email: "x@example.com", Currency: "EUR", Status: entity.OrderCompleted, StripeCheckoutSessionID: lo.ToPtr("cs_1")}
	require.ErrorIs(t, s.CreateOrder(ctx, &again), ErrDuplicate)

	got, err := s.OrderByCheckoutSession(ctx, "cs_1")
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
	require.Len(t, got.Items, 2)

	byEmail, err := s.OrdersByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)

	recent, err := s.Orders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	n, err := s.PatternOrderCount(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.ErrorIs(t, s.DeletePattern(ctx, p.ID), ErrReferenced)
}

func TestDownloads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := seedPattern(t, s, "Blue Waves")
	u := seedUser(t, s, "ann@example.com")

	paid := entity.Download{UserID: &u.ID, Email: u.Email, PatternID: &p.ID}
	require.NoError(t, s.CreateDownload(ctx, &paid))
	free := entity.Download{Email: "guest@example.com", PatternID: &p.ID, IsFree: true, DownloadToken: lo.ToPtr("tok")}
	require.NoError(t, s.CreateDownload(ctx, &free))

	owns, err := s.OwnsPattern(ctx, u.ID, p.ID)
	require.NoError(t, err)
	require.True(t, owns)

	has, err := s.HasFreeDownload(ctx, "GUEST@example.com", p.ID)
	require.NoError(t, err)
	require.True(t, has)
	has, err = s.HasFreeDownload(ctx, u.Email, p.ID)
	require.NoError(t, err)
	require.False(t, has)

	_, err = s.PaidDownload(ctx, "guest@example.com", p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	byToken, err := s.DownloadByToken(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, free.ID, byToken.ID)
	require.Equal(t, p.Slug, byToken.Pattern.Slug)

	at := time.Now().UTC()
	require.NoError(t, s.RecordDownload(ctx, paid.ID, at))
	require.NoError(t, s.RecordDownload(ctx, paid.ID, at))
	got, err := s.PaidDownload(ctx, u.Email, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.DownloadCount)
	require.NotNil(t, got.LastDownloadedAt)

	list, err := s.DownloadsByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, p.Name, list[0].Pattern.Name)

	dupToken := entity.Download{Email: "x@example.com", PatternID: &p.ID, IsFree: true, DownloadToken: lo.ToPtr("tok")}
	require.ErrorIs(t, s.CreateDownload(ctx, &dupToken), ErrDuplicate)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "ann@example.com")
	start := time.Now().UTC().Truncate(time.Second)
	end := start.Add(30 * 24 * time.Hour)

	sub := entity.Subscription{
		UserID: u.ID, StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1", StripePriceID: "price_m",
		PlanType: entity.PlanMonthly, Status: entity.SubscriptionTrialing, CurrentPeriodStart: &start, CurrentPeriodEnd: &end,
	}
	require.NoError(t, s.UpsertSubscription(ctx, &sub))
	firstID := sub.ID

	update := sub
	update.ID = ""
	update.Status = entity.SubscriptionActive
	update.PlanType = entity.PlanYearly
	require.NoError(t, s.UpsertSubscription(ctx, &update))
	require.Equal(t, firstID, update.ID)

	got, err := s.SubscriptionForUser(ctx, u.ID, entity.SubscriptionActive, entity.SubscriptionTrialing)
	require.NoError(t, err)
	require.Equal(t, entity.PlanYearly, got.PlanType)
	require.True(t, got.Entitled())
	require.Equal(t, end.Unix(), got.CurrentPeriodEnd.Unix())

	require.NoError(t, s.SetSubscriptionStatus(ctx, "sub_1", entity.SubscriptionCanceled, time.Now()))
	_, err = s.SubscriptionForUser(ctx, u.ID, entity.SubscriptionActive, entity.SubscriptionTrialing)
	require.ErrorIs(t, err, ErrNotFound)

	latest, err := s.SubscriptionForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, entity.SubscriptionCanceled, latest.Status)

	require.ErrorIs(t, s.SetSubscriptionStatus(ctx, "sub_missing", entity.SubscriptionCanceled, time.Now()), ErrNotFound)
}

func TestCredits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "ann@example.com")
	now := time.Now().UTC()

	old := now.Add(-100 * 24 * time.Hour)
	oldExp := old.Add(90 * 24 * time.Hour)
	recent := now.Add(-10 * 24 * time.Hour)
	recentExp := recent.Add(90 * 24 * time.Hour)

	stale := entity.CreditTransaction{UserID: u.ID, Amount: 12, Remaining: 4, Kind: "subscription_renewal", ExpiresAt: &oldExp, CreatedAt: old, StripeInvoiceID: lo.ToPtr("in_1")}
	fresh := entity.CreditTransaction{UserID: u.ID, Amount: 12, Remaining: 12, Kind: "subscription_renewal", ExpiresAt: &recentExp, CreatedAt: recent, StripeInvoiceID: lo.ToPtr("in_2")}
	spent := entity.CreditTransaction{UserID: u.ID, Amount: -8, Kind: "pattern_purchase", CreatedAt: old.Add(time.Hour)}
	for _, c := range []*entity.CreditTransaction{&stale, &fresh, &spent} {
		require.NoError(t, s.InsertCredit(ctx, c))
	}

	dup := entity.CreditTransaction{UserID: u.ID, Amount: 12, Remaining: 12, Kind: "subscription_renewal", StripeInvoiceID: lo.ToPtr("in_2")}
	require.ErrorIs(t, s.InsertCredit(ctx, &dup), ErrDuplicate)
	has, err := s.HasInvoiceCredit(ctx, "in_2")
	require.NoError(t, err)
	require.True(t, has)

	balance, err := s.CreditBalance(ctx, u.ID, now)
	require.NoError(t, err)
	require.Equal(t, 12, balance)

	live, err := s.LiveGrants(ctx, u.ID, now)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, fresh.ID, live[0].ID)

	expirable, err := s.ExpirableGrants(ctx, now)
	require.NoError(t, err)
	require.Len(t, expirable, 1)
	require.Equal(t, stale.ID, expirable[0].ID)

	expiring, err := s.ExpiringGrants(ctx, u.ID, now, now.Add(85*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)

	require.NoError(t, s.ConsumeGrant(ctx, fresh.ID, 5))
	require.ErrorIs(t, s.ConsumeGrant(ctx, fresh.ID, 8), ErrConflict)

	require.NoError(t, s.MarkGrantExpired(ctx, stale.ID))
	require.ErrorIs(t, s.MarkGrantExpired(ctx, stale.ID), ErrConflict)

	history, err := s.CreditHistory(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, fresh.ID, history[0].ID)
	all, err := s.CreditHistory(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestFavoritesAndNewsletter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s, "ann@example.com")
	p := seedPattern(t, s, "Blue Waves")

	added, err := s.ToggleFavorite(ctx, u.ID, p.ID)
	require.NoError(t, err)
	require.True(t, added)
	favs, err := s.FavoritePatterns(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, favs, 1)

	added, err = s.ToggleFavorite(ctx, u.ID, p.ID)
	require.NoError(t, err)
	require.False(t, added)
	favs, err = s.FavoritePatterns(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, favs)

	_, err = s.ToggleFavorite(ctx, u.ID, uuid.NewString())
	require.ErrorIs(t, err, ErrReferenced)

	require.NoError(t, s.AddNewsletterSubscription(ctx, &entity.NewsletterSubscription{Email: "Ann@example.com", Source: entity.NewsletterSourceHomepage}))
	err = s.AddNewsletterSubscription(ctx, &entity.NewsletterSubscription{Email: "ann@example.com", Source: entity.NewsletterSourceFreeDownload})
	require.True(t, errors.Is(err, ErrDuplicate))
	ok, err := s.NewsletterSubscribed(ctx, "ANN@example.com")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Store) error {
		seedUser(t, tx, "ann@example.com")
		return tx.InTx(ctx, func(inner *Store) error { return boom })
	})
	require.ErrorIs(t, err, boom)
	_, err = s.UserByEmail(ctx, "ann@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}
