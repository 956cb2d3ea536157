package constraint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run[T JSONType](vf ValidateFunc[T], v T) error {
	_, check := vf()
	return check(v)
}

func TestStringValidators(t *testing.T) {
	tests := []struct {
		name    string
		vf      ValidateFunc[string]
		value   string
		wantErr error
	}{
		{"min_length_ok", MinLength(3), "abc", nil},
		{"min_length_short", MinLength(3), "ab", ErrLengthMin},
		{"min_length_counts_runes", MinLength(3), "ñañ", nil},
		{"max_length_ok", MaxLength(5), "hello", nil},
		{"max_length_long", MaxLength(5), "hello!", ErrLengthMax},
		{"between_low", LengthBetween(2, 4), "a", ErrLengthBetween},
		{"between_high", LengthBetween(2, 4), "abcde", ErrLengthBetween},
		{"between_ok", LengthBetween(2, 4), "abc", nil},
		{"match_ok", Match("*.png"), "koi-pond.png", nil},
		{"match_single", Match("v?"), "v1", nil},
		{"match_miss", Match("*.png"), "koi-pond.webp", ErrNotMatch},
		{"email_ok", Email(), "ann@example.com", nil},
		{"email_display_name", Email(), "Ann <ann@example.com>", ErrNotValidEmail},
		{"email_no_dot", Email(), "ann@localhost", ErrNotValidEmail},
		{"email_trailing_dot", Email(), "ann@example.", ErrNotValidEmail},
		{"email_garbage", Email(), "not-an-email", ErrNotValidEmail},
		{"url_ok", URL(), "https://shop.test/p/koi", nil},
		{"url_relative", URL(), "/p/koi", ErrNotValidURL},
		{"url_scheme", URL(), "ftp://shop.test/koi", ErrNotValidURL},
		{"one_of_ok", OneOf("monthly", "yearly"), "yearly", nil},
		{"one_of_miss", OneOf("monthly", "yearly"), "weekly", ErrNotOneOf},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.vf, tc.value)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestOrderedValidators(t *testing.T) {
	assert.NoError(t, run(Gte[int64](0), 0))
	assert.ErrorIs(t, run(Gte[int64](0), -1), ErrMustGte)
	assert.NoError(t, run(Lte(10), 10))
	assert.ErrorIs(t, run(Lte(10), 11), ErrMustLte)
	assert.NoError(t, run(Between(1.5, 2.5), 2.0))
	assert.ErrorIs(t, run(Between[uint8](1, 3), 4), ErrMustBetween)

	now := time.Now()
	assert.NoError(t, run(Gte(now), now.Add(time.Second)))
	assert.ErrorIs(t, run(Gte(now), now.Add(-time.Second)), ErrMustGte)
	assert.ErrorIs(t, run(Between(now, now.Add(time.Hour)), now.Add(2*time.Hour)), ErrMustBetween)
}

func TestValidatorNames(t *testing.T) {
	names := map[string]func() (string, Validator[string]){
		"min_length": MinLength(1),
		"max_length": MaxLength(1),
		"email":      Email(),
		"match":      Match("a*"),
		"one_of":     OneOf("a"),
	}
	for want, vf := range names {
		got, v := vf()
		assert.Equal(t, want, got)
		assert.NotNil(t, v)
	}
}

func TestInvalidDeclarationsPanic(t *testing.T) {
	assert.Panics(t, func() { Match("plain") })
	assert.Panics(t, func() { LengthBetween(5, 1) })
	assert.Panics(t, func() { Between(3, 1) })
	assert.Panics(t, func() { OneOf[string]() })
}
