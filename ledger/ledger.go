// Package ledger holds the credit arithmetic: balances, FIFO allocation and expiry over
// signed transaction rows. It does no I/O.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// CreditLifetime is how long a granted credit stays spendable.
	CreditLifetime = 90 * 24 * time.Hour
	// ExpiryWindow is the look-ahead for "expiring soon" warnings.
	ExpiryWindow = 7 * 24 * time.Hour
)

type Kind string

const (
	SubscriptionRenewal Kind = "subscription_renewal"
	Refund              Kind = "refund"
	AdminAdjustment     Kind = "admin_adjustment"
	PatternPurchase     Kind = "pattern_purchase"
	Expiration          Kind = "expiration"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	switch k {
	case SubscriptionRenewal, Refund, AdminAdjustment, PatternPurchase, Expiration:
		return true
	}
	return false
}

var ErrInsufficient = errors.New("insufficient credits")

// InsufficientError carries the balance that was available when a spend failed.
type InsufficientError struct {
	Requested int
	Available int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("%s: requested %d, available %d", ErrInsufficient, e.Requested, e.Available)
}

func (e *InsufficientError) Unwrap() error { return ErrInsufficient }

// Entry is one ledger row. Grants have a positive Amount and an ExpiresAt, Remaining tracks the
// part not yet consumed. Debits have a negative Amount.
type Entry struct {
	ID        string
	Amount    int
	Remaining int
	Kind      Kind
	ExpiresAt *time.Time
	Expired   bool
	CreatedAt time.Time
}

// IsGrant reports whether e adds credits.
func (e Entry) IsGrant() bool {
	return e.Amount > 0
}

// Live reports whether the grant can still be spent at now.
func (e Entry) Live(now time.Time) bool {
	return e.IsGrant() && !e.Expired && e.Remaining > 0 && !e.pastExpiry(now)
}

func (e Entry) pastExpiry(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// byAge orders entries oldest first, breaking ties by expiry and then id so replays are
// deterministic.
func byAge(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		ae, be := expiryOrMax(a), expiryOrMax(b)
		if !ae.Equal(be) {
			return ae.Before(be)
		}
		return a.ID < b.ID
	})
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func expiryOrMax(e Entry) time.Time {
	if e.ExpiresAt == nil {
		return farFuture
	}
	return *e.ExpiresAt
}

type lot struct {
	amount    int
	expiresAt *time.Time
}

// Balance replays entries and returns the spendable credits at now.
//
// Grants open lots. A debit first drops lots that had expired by the time it happened and then
// consumes the oldest lots; a debit that cannot be covered is carried as a deficit. Expiration
// rows only record what the replay already drops, so they are skipped. The result is the sum of
// the lots still live at now minus the deficit.
func Balance(entries []Entry, now time.Time) int {
	sorted := append([]Entry(nil), entries...)
	byAge(sorted)

	var lots []lot
	deficit := 0
	for _, e := range sorted {
		switch {
		case e.Kind == Expiration:
			continue
		case e.IsGrant():
			lots = append(lots, lot{amount: e.Amount, expiresAt: e.ExpiresAt})
		case e.Amount < 0:
			lots = dropExpired(lots, e.CreatedAt)
			need := -e.Amount
			for i := range lots {
				if need == 0 {
					break
				}
				take := min(lots[i].amount, need)
				lots[i].amount -= take
				need -= take
			}
			deficit += need
		}
	}
	total := 0
	for _, l := range dropExpired(lots, now) {
		total += l.amount
	}
	return total - deficit
}

func dropExpired(lots []lot, at time.Time) []lot {
	kept := lots[:0]
	for _, l := range lots {
		if l.expiresAt != nil && !at.Before(*l.expiresAt) {
			continue
		}
		if l.amount > 0 {
			kept = append(kept, l)
		}
	}
	return kept
}

// Sum is the plain signed total of all amounts, expired or not.
func Sum(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

// Draw is the part of a spend taken from one grant.
type Draw struct {
	EntryID string
	Amount  int
}

// Allocate picks credits for a spend of amount from grants, oldest first. Entries that are not
// live at now are ignored. When the live total is short it returns an *InsufficientError.
func Allocate(grants []Entry, amount int, now time.Time) ([]Draw, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %d", amount)
	}
	live := Live(grants, now)
	available := 0
	for _, g := range live {
		available += g.Remaining
	}
	if available < amount {
		return nil, &InsufficientError{Requested: amount, Available: available}
	}
	var draws []Draw
	need := amount
	for _, g := range live {
		if need == 0 {
			break
		}
		take := min(g.Remaining, need)
		draws = append(draws, Draw{EntryID: g.ID, Amount: take})
		need -= take
	}
	return draws, nil
}

// Live returns the grants spendable at now, oldest first.
func Live(entries []Entry, now time.Time) []Entry {
	var live []Entry
	for _, e := range entries {
		if e.Live(now) {
			live = append(live, e)
		}
	}
	byAge(live)
	return live
}

// Expirable returns the grants past their expiry at now that are not yet marked expired.
func Expirable(entries []Entry, now time.Time) []Entry {
	var due []Entry
	for _, e := range entries {
		if e.IsGrant() && !e.Expired && e.pastExpiry(now) {
			due = append(due, e)
		}
	}
	byAge(due)
	return due
}

// Expiring returns live grants that expire within window of now, soonest first.
func Expiring(entries []Entry, now time.Time, window time.Duration) []Entry {
	limit := now.Add(window)
	var soon []Entry
	for _, e := range Live(entries, now) {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(limit) {
			soon = append(soon, e)
		}
	}
	sort.SliceStable(soon, func(i, j int) bool { return soon[i].ExpiresAt.Before(*soon[j].ExpiresAt) })
	return soon
}

// Outstanding is the live remaining total, the figure the database aggregate reports.
func Outstanding(entries []Entry, now time.Time) int {
	total := 0
	for _, e := range entries {
		total += e.Amount
		if e.IsGrant() && !e.Expired && e.pastExpiry(now) {
			total -= e.Remaining
		}
	}
	return total
}
