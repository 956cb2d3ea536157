package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return t0.Add(time.Duration(n) * 24 * time.Hour) }

func grant(id string, amount int, at time.Time) Entry {
	exp := at.Add(CreditLifetime)
	return Entry{ID: id, Amount: amount, Remaining: amount, Kind: SubscriptionRenewal, ExpiresAt: &exp, CreatedAt: at}
}

func spend(id string, amount int, at time.Time) Entry {
	return Entry{ID: id, Amount: -amount, Kind: PatternPurchase, CreatedAt: at}
}

// book is a tiny in-memory ledger that applies Allocate and Expirable the way the
// credits service does, so replays can be checked against it.
type book struct {
	entries []Entry
	seq     int
}

func (b *book) grant(amount int, at time.Time) {
	b.seq++
	b.entries = append(b.entries, grant(fmt.Sprintf("g%02d", b.seq), amount, at))
}

func (b *book) spend(t *testing.T, amount int, at time.Time) error {
	draws, err := Allocate(b.entries, amount, at)
	if err != nil {
		return err
	}
	for _, d := range draws {
		for i := range b.entries {
			if b.entries[i].ID == d.EntryID {
				b.entries[i].Remaining -= d.Amount
				require.GreaterOrEqual(t, b.entries[i].Remaining, 0)
			}
		}
	}
	b.seq++
	b.entries = append(b.entries, spend(fmt.Sprintf("s%02d", b.seq), amount, at))
	return nil
}

func (b *book) expire(at time.Time) int {
	total := 0
	for _, due := range Expirable(b.entries, at) {
		for i := range b.entries {
			if b.entries[i].ID != due.ID {
				continue
			}
			rem := b.entries[i].Remaining
			b.entries[i].Expired = true
			b.entries[i].Remaining = 0
			if rem > 0 {
				b.seq++
				b.entries = append(b.entries, Entry{ID: fmt.Sprintf("x%02d", b.seq), Amount: -rem, Kind: Expiration, CreatedAt: at})
				total += rem
			}
		}
	}
	return total
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		now     time.Time
		want    int
	}{
		{"empty", nil, t0, 0},
		{"single grant", []Entry{grant("a", 12, t0)}, day(1), 12},
		{"grant and spend", []Entry{grant("a", 12, t0), spend("b", 3, day(2))}, day(3), 9},
		{"grant expired", []Entry{grant("a", 12, t0)}, day(90), 0},
		{"partially spent then expired", []Entry{grant("a", 12, t0), spend("b", 5, day(10))}, day(91), 0},
		{"fifo keeps younger grant", []Entry{grant("a", 12, t0), grant("b", 12, day(30)), spend("c", 14, day(40))}, day(95), 10},
		{"spend after expiry uses live grant", []Entry{grant("a", 2, t0), grant("b", 5, day(60)), spend("c", 3, day(100))}, day(101), 2},
		{"uncovered debit carried", []Entry{spend("a", 2, t0), grant("b", 5, day(1))}, day(2), 3},
		{"expiration rows ignored", []Entry{
			{ID: "a", Amount: 4, Remaining: 0, Kind: SubscriptionRenewal, ExpiresAt: ptr(day(90)), Expired: true, CreatedAt: t0},
			{ID: "b", Amount: -4, Kind: Expiration, CreatedAt: day(91)},
		}, day(92), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Balance(tt.entries, tt.now))
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestAllocate(t *testing.T) {
	entries := []Entry{grant("young", 5, day(20)), grant("old", 2, t0), spend("s", 1, day(1))}

	draws, err := Allocate(entries, 4, day(30))
	require.NoError(t, err)
	require.Equal(t, []Draw{{EntryID: "old", Amount: 2}, {EntryID: "young", Amount: 2}}, draws)

	_, err = Allocate(entries, 8, day(30))
	var insufficient *InsufficientError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, errors.Is(err, ErrInsufficient))
	require.Equal(t, 7, insufficient.Available)

	// the old grant is gone after 90 days
	_, err = Allocate(entries, 6, day(95))
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 5, insufficient.Available)

	_, err = Allocate(entries, 0, day(1))
	require.Error(t, err)
}

func TestExpirableAndExpiring(t *testing.T) {
	marked := grant("marked", 3, t0)
	marked.Expired = true
	entries := []Entry{grant("a", 4, t0), grant("b", 4, day(2)), grant("c", 4, day(50)), marked, spend("s", 1, day(1))}

	due := Expirable(entries, day(91))
	require.Len(t, due, 1)
	require.Equal(t, "a", due[0].ID)

	soon := Expiring(entries, day(85), ExpiryWindow)
	require.Len(t, soon, 2)
	require.Equal(t, "a", soon[0].ID)
	require.Equal(t, "b", soon[1].ID)

	require.Empty(t, Expiring(entries, day(1), ExpiryWindow))
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{SubscriptionRenewal, Refund, AdminAdjustment, PatternPurchase, Expiration} {
		require.True(t, k.Valid())
	}
	require.False(t, Kind("bonus").Valid())
}

// Replaying the rows written by grant, spend and expire must agree with the aggregate the
// database computes, and after the expiry job the plain signed sum is the balance too.
func TestBalanceMatchesAggregate(t *testing.T) {
	b := &book{}
	b.grant(12, t0)
	require.NoError(t, b.spend(t, 5, day(5)))
	b.grant(12, day(30))
	require.NoError(t, b.spend(t, 9, day(40)))
	require.ErrorIs(t, b.spend(t, 20, day(41)), ErrInsufficient)
	b.grant(12, day(60))

	for _, now := range []time.Time{day(1), day(45), day(89), day(90), day(100), day(125), day(160)} {
		require.Equal(t, Outstanding(b.entries, now), Balance(b.entries, now), "before expiry job at %s", now)
	}

	expired := b.expire(day(125))
	require.Equal(t, 10, expired)
	for _, now := range []time.Time{day(125), day(130)} {
		bal := Balance(b.entries, now)
		require.Equal(t, Outstanding(b.entries, now), bal)
		require.Equal(t, Sum(b.entries), bal)
	}
	require.Equal(t, 12, Balance(b.entries, day(130)))
}
