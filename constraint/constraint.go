// Package constraint holds the value checks attached to request body fields.
//
// A check is declared as a ValidateFunc, which yields a name and the Validator itself. The name
// lets a field reject the same check being declared twice.
package constraint

import (
	"cmp"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/tidwall/match"
)

type Number interface {
	uint | uint8 | uint16 | uint32 | uint64 | int | int8 | int16 | int32 | int64 | float32 | float64
}

// JSONType lists the Go types a JSON field can be decoded into.
type JSONType interface {
	Number | string | time.Time | bool
}

type Validator[T JSONType] func(v T) error

type ValidateFunc[T JSONType] func() (string, Validator[T])

var (
	ErrIntegerOverflow = errors.New("integer overflow")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrRequired        = errors.New("is required but not found")

	ErrLengthMin     = errors.New("length must be at least")
	ErrLengthMax     = errors.New("length must be at most")
	ErrLengthBetween = errors.New("length must be between")

	ErrNotMatch      = errors.New("not match pattern")
	ErrNotValidEmail = errors.New("not valid email address")
	ErrNotValidURL   = errors.New("not valid url")
	ErrNotOneOf      = errors.New("value must be one of")
	ErrMustGte       = errors.New("must be greater than or equal to")
	ErrMustLte       = errors.New("must be less than or equal to")
	ErrMustBetween   = errors.New("must be between")
)

func named[T JSONType](name string, v Validator[T]) ValidateFunc[T] {
	return func() (string, Validator[T]) { return name, v }
}

// MinLength checks the number of characters, not bytes.
func MinLength(min int) ValidateFunc[string] {
	return named("min_length", func(s string) error {
		return lo.Ternary(utf8.RuneCountInString(s) < min, fmt.Errorf("%w %d", ErrLengthMin, min), nil)
	})
}

func MaxLength(max int) ValidateFunc[string] {
	return named("max_length", func(s string) error {
		return lo.Ternary(utf8.RuneCountInString(s) > max, fmt.Errorf("%w %d", ErrLengthMax, max), nil)
	})
}

func LengthBetween(min, max int) ValidateFunc[string] {
	lo.Assertf(min <= max, "length range %d..%d is empty", min, max)
	return named("length_between", func(s string) error {
		n := utf8.RuneCountInString(s)
		return lo.Ternary(n < min || n > max, fmt.Errorf("%w %d and %d", ErrLengthBetween, min, max), nil)
	})
}

// Match checks s against a wildcard pattern where `*` stands for any run of characters and `?`
// for exactly one.
func Match(pattern string) ValidateFunc[string] {
	lo.Assertf(match.IsPattern(pattern), "`%s` has no wildcard, compare with OneOf instead", pattern)
	return named("match", func(s string) error {
		return lo.Ternary(!match.Match(s, pattern), fmt.Errorf("%w %s", ErrNotMatch, pattern), nil)
	})
}

// Email accepts a bare address with a dotted domain. Display names ("Ann <ann@x.io>") are
// rejected.
func Email() ValidateFunc[string] {
	return named("email", func(s string) error {
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return fmt.Errorf("%w: %s", ErrNotValidEmail, s)
		}
		domain := s[strings.LastIndex(s, "@")+1:]
		if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
			return fmt.Errorf("%w: %s", ErrNotValidEmail, s)
		}
		return nil
	})
}

// URL accepts absolute http and https URLs.
func URL() ValidateFunc[string] {
	return named("url", func(s string) error {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %s", ErrNotValidURL, s)
		}
		return nil
	})
}

func OneOf[T JSONType](allowed ...T) ValidateFunc[T] {
	lo.Assert(len(allowed) > 0, "OneOf needs at least one value")
	return named("one_of", func(v T) error {
		return lo.Ternary(!lo.Contains(allowed, v), fmt.Errorf("%w %v", ErrNotOneOf, allowed), nil)
	})
}

func Gte[T Number | time.Time](min T) ValidateFunc[T] {
	return named("gte", func(v T) error {
		return lo.Ternary(compare(v, min) < 0, fmt.Errorf("%w %v", ErrMustGte, min), nil)
	})
}

func Lte[T Number | time.Time](max T) ValidateFunc[T] {
	return named("lte", func(v T) error {
		return lo.Ternary(compare(v, max) > 0, fmt.Errorf("%w %v", ErrMustLte, max), nil)
	})
}

// Between is inclusive on both ends.
func Between[T Number | time.Time](min, max T) ValidateFunc[T] {
	lo.Assertf(compare(min, max) <= 0, "range %v..%v is empty", min, max)
	return named("between", func(v T) error {
		return lo.Ternary(compare(v, min) < 0 || compare(v, max) > 0, fmt.Errorf("%w %v and %v", ErrMustBetween, min, max), nil)
	})
}

func compare[T Number | time.Time](a, b T) int {
	if t, ok := any(a).(time.Time); ok {
		return t.Compare(any(b).(time.Time))
	}
	switch x := any(a).(type) {
	case int:
		return cmp.Compare(x, any(b).(int))
	case int8:
		return cmp.Compare(x, any(b).(int8))
	case int16:
		return cmp.Compare(x, any(b).(int16))
	case int32:
		return cmp.Compare(x, any(b).(int32))
	case int64:
		return cmp.Compare(x, any(b).(int64))
	case uint:
		return cmp.Compare(x, any(b).(uint))
	case uint8:
		return cmp.Compare(x, any(b).(uint8))
	case uint16:
		return cmp.Compare(x, any(b).(uint16))
	case uint32:
		return cmp.Compare(x, any(b).(uint32))
	case uint64:
		return cmp.Compare(x, any(b).(uint64))
	case float32:
		return cmp.Compare(x, any(b).(float32))
	case float64:
		return cmp.Compare(x, any(b).(float64))
	}
	panic(fmt.Sprintf("constraint: cannot compare %T", a))
}
