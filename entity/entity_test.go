package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumn_QualifiedName(t *testing.T) {
	require.Equal(t, "patterns.slug", PatternSlug.QualifiedName())
	require.Equal(t, "slug", PatternSlug.Name())
	require.Equal(t, "downloads.download_token", DownloadToken.QualifiedName())
	require.Equal(t, "credit_transactions.stripe_invoice_id", CreditInvoiceID.QualifiedName())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Blue Waves", "blue-waves"},
		{"punctuation runs", "Koi & Lotus -- No.2", "koi-lotus-no-2"},
		{"edges trimmed", "  Retro!  ", "retro"},
		{"non ascii dropped", "Café Tiles", "caf-tiles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestPatternObjects(t *testing.T) {
	p := Pattern{Name: "Blue Waves", Slug: "blue-waves"}
	require.Equal(t, "blue-waves.png", p.PreviewObject())
	require.Equal(t, "premium/Blue Waves.png", p.PremiumObject())
}

func TestSubscriptionEntitled(t *testing.T) {
	for status, want := range map[string]bool{
		SubscriptionActive:   true,
		SubscriptionTrialing: true,
		SubscriptionPastDue:  false,
		SubscriptionCanceled: false,
	} {
		require.Equal(t, want, Subscription{Status: status}.Entitled(), status)
	}
}
