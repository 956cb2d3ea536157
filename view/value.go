package view

import (
	"sort"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// ValueObject is the validated content of a request body. Getters return None
// for members that were absent and panic when a member has another type than
// the one requested, which is a schema/handler mismatch.
type ValueObject interface {
	String(name string) mo.Option[string]
	Int64(name string) mo.Option[int64]
	Bool(name string) mo.Option[bool]
	Strings(name string) mo.Option[[]string]
	// StringOr returns the string member or "" when absent.
	StringOr(name string) string
	Fields() []string
	seal()
}

type valueObject map[string]any

var _ ValueObject = valueObject{}

func (vo valueObject) seal() {}

func get[T any](vo valueObject, name string) mo.Option[T] {
	v, ok := vo[name]
	if !ok {
		return mo.None[T]()
	}
	typed, ok := v.(T)
	lo.Assertf(ok, "view: field '%s' has wrong type: expected %T, got %T", name, *new(T), v)
	return mo.Some(typed)
}

func (vo valueObject) String(name string) mo.Option[string] {
	return get[string](vo, name)
}

func (vo valueObject) StringOr(name string) string {
	return vo.String(name).OrEmpty()
}

func (vo valueObject) Int64(name string) mo.Option[int64] {
	return get[int64](vo, name)
}

func (vo valueObject) Bool(name string) mo.Option[bool] {
	return get[bool](vo, name)
}

func (vo valueObject) Strings(name string) mo.Option[[]string] {
	return get[[]string](vo, name)
}

// Fields lists the members present, sorted.
func (vo valueObject) Fields() []string {
	keys := lo.Keys(vo)
	sort.Strings(keys)
	return keys
}
