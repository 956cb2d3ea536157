// Package view validates JSON request bodies against declarative schemas and
// exposes the result as a typed ValueObject.
package view

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/pioneerstudio/patternshop/constraint"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"
)

// ValidationError collects at most one error per field.
type ValidationError struct {
	errors map[string]error
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.errors) == 0 {
		return ""
	}
	names := lo.Keys(e.errors)
	sort.Strings(names)
	msgs := lo.Map(names, func(n string, _ int) string { return e.errors[n].Error() })
	return strings.Join(msgs, "; ")
}

// Field returns the error recorded for name, if any.
func (e *ValidationError) Field(name string) error {
	return e.errors[name]
}

func (e *ValidationError) add(name string, err error) {
	if err == nil {
		return
	}
	if e.errors == nil {
		e.errors = make(map[string]error)
	}
	e.errors[name] = err
}

func (e *ValidationError) err() error {
	if e == nil || len(e.errors) == 0 {
		return nil
	}
	return e
}

// field is the untyped view of a schema member so a Schema can hold fields of
// different value types.
type field interface {
	Name() string
	validate(json string) (value any, found bool, err error)
}

// ScalarField is a schema member holding a single JSON value.
type ScalarField[T constraint.JSONType] struct {
	name       string
	required   bool
	validators []constraint.Validator[T]
}

var _ field = (*ScalarField[string])(nil)

func (f *ScalarField[T]) Name() string {
	return f.name
}

// Optional lets the field be absent from the body.
func (f *ScalarField[T]) Optional() *ScalarField[T] {
	f.required = false
	return f
}

func (f *ScalarField[T]) validate(json string) (any, bool, error) {
	rs, found := f.Validate(json)
	if rs.IsError() {
		return nil, found, rs.Error()
	}
	if !found {
		return nil, false, nil
	}
	return rs.MustGet(), true, nil
}

// Validate reads the field out of json. The boolean reports whether the field
// was present; JSON null counts as absent.
func (f *ScalarField[T]) Validate(json string) (mo.Result[T], bool) {
	res := gjson.Get(json, f.name)
	if !res.Exists() || res.Type == gjson.Null {
		if f.required {
			return mo.Err[T](fmt.Errorf("%s %w", f.name, constraint.ErrRequired)), false
		}
		return mo.Ok(*new(T)), false
	}
	val, err := typed[T](res).Get()
	if err != nil {
		return mo.Err[T](fmt.Errorf("field '%s': %w", f.name, err)), true
	}
	if err := check(val, f.validators); err != nil {
		return mo.Err[T](fmt.Errorf("field '%s': %w", f.name, err)), true
	}
	return mo.Ok(val), true
}

// ListField is a schema member holding a JSON array of scalars, or of objects
// from which one scalar member is plucked.
type ListField[T constraint.JSONType] struct {
	name       string
	pluck      string
	required   bool
	validators []constraint.Validator[T]
}

var _ field = (*ListField[string])(nil)

func (f *ListField[T]) Name() string {
	return f.name
}

// Optional lets the list be absent from the body.
func (f *ListField[T]) Optional() *ListField[T] {
	f.required = false
	return f
}

// Pluck reads member key of every array element instead of the element itself.
func (f *ListField[T]) Pluck(key string) *ListField[T] {
	f.pluck = key
	return f
}

func (f *ListField[T]) validate(json string) (any, bool, error) {
	res := gjson.Get(json, f.name)
	if !res.Exists() || res.Type == gjson.Null {
		if f.required {
			return nil, false, fmt.Errorf("%s %w", f.name, constraint.ErrRequired)
		}
		return nil, false, nil
	}
	if !res.IsArray() {
		return nil, true, fmt.Errorf("field '%s': %w: expected array but got JSON type %s", f.name, constraint.ErrTypeMismatch, res.Type)
	}
	var values []T
	for i, elem := range res.Array() {
		if f.pluck != "" {
			elem = elem.Get(f.pluck)
		}
		val, err := typed[T](elem).Get()
		if err != nil {
			return nil, true, fmt.Errorf("field '%s.%d': %w", f.name, i, err)
		}
		if err := check(val, f.validators); err != nil {
			return nil, true, fmt.Errorf("field '%s.%d': %w", f.name, i, err)
		}
		values = append(values, val)
	}
	return values, true, nil
}

func check[T constraint.JSONType](val T, validators []constraint.Validator[T]) error {
	for _, v := range validators {
		if err := v(val); err != nil {
			return err
		}
	}
	return nil
}

func overflowError[T any](v T) error {
	return fmt.Errorf("for type %T: %w", v, constraint.ErrIntegerOverflow)
}

// typed converts a gjson value to T, refusing lossy or mismatched conversions.
func typed[T constraint.JSONType](res gjson.Result) mo.Result[T] {
	var zero T
	target := reflect.TypeOf(zero)

	switch target.Kind() {
	case reflect.String:
		if res.Type == gjson.String {
			return mo.Ok(any(res.String()).(T))
		}
	case reflect.Bool:
		if res.Type == gjson.True || res.Type == gjson.False {
			return mo.Ok(any(res.Bool()).(T))
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if res.Type != gjson.Number {
			break
		}
		bi, err := integral(res.Raw)
		if err != nil {
			return mo.Err[T](err)
		}
		if !bi.IsInt64() || reflect.New(target).Elem().OverflowInt(bi.Int64()) {
			return mo.Err[T](overflowError(zero))
		}
		return mo.Ok(reflect.ValueOf(bi.Int64()).Convert(target).Interface().(T))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if res.Type != gjson.Number {
			break
		}
		bi, err := integral(res.Raw)
		if err != nil {
			return mo.Err[T](err)
		}
		if !bi.IsUint64() || reflect.New(target).Elem().OverflowUint(bi.Uint64()) {
			return mo.Err[T](overflowError(zero))
		}
		return mo.Ok(reflect.ValueOf(bi.Uint64()).Convert(target).Interface().(T))
	case reflect.Float32, reflect.Float64:
		if res.Type != gjson.Number {
			break
		}
		val := res.Float()
		if reflect.New(target).Elem().OverflowFloat(val) {
			return mo.Err[T](fmt.Errorf("value %f overflows type %T", val, zero))
		}
		return mo.Ok(reflect.ValueOf(val).Convert(target).Interface().(T))
	case reflect.Struct:
		if target != reflect.TypeOf(time.Time{}) {
			return mo.Err[T](fmt.Errorf("%w: unsupported type %T", constraint.ErrTypeMismatch, zero))
		}
		if res.Type != gjson.String {
			break
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, res.String()); err == nil {
				return mo.Ok(any(t).(T))
			}
		}
		return mo.Err[T](fmt.Errorf("incorrect date format for string '%s'", res.String()))
	default:
		return mo.Err[T](fmt.Errorf("%w: unsupported type %T", constraint.ErrTypeMismatch, zero))
	}
	return mo.Err[T](fmt.Errorf("%w: expected %T but got JSON type %s", constraint.ErrTypeMismatch, zero, res.Type))
}

// integral parses a JSON number that must not carry a fraction.
func integral(raw string) (*big.Int, error) {
	bf, _, err := new(big.Float).Parse(raw, 10)
	if err != nil {
		return nil, fmt.Errorf("could not parse number: %w", err)
	}
	if !bf.IsInt() {
		return nil, fmt.Errorf("%w: cannot assign float value %s to integer type", constraint.ErrTypeMismatch, raw)
	}
	bi, _ := bf.Int(nil)
	return bi, nil
}

func validators[T constraint.JSONType](name string, vfs []constraint.ValidateFunc[T]) []constraint.Validator[T] {
	seen := make(map[string]struct{}, len(vfs))
	return lo.Map(vfs, func(vf constraint.ValidateFunc[T], _ int) constraint.Validator[T] {
		n, v := vf()
		_, dup := seen[n]
		lo.Assertf(!dup, "view: duplicate validator '%s' for field '%s'", n, name)
		seen[n] = struct{}{}
		return v
	})
}

// Field declares a required scalar member.
func Field[T constraint.JSONType](name string, vfs ...constraint.ValidateFunc[T]) *ScalarField[T] {
	return &ScalarField[T]{name: name, required: true, validators: validators(name, vfs)}
}

// List declares a required array member whose elements are validated one by one.
func List[T constraint.JSONType](name string, vfs ...constraint.ValidateFunc[T]) *ListField[T] {
	return &ListField[T]{name: name, required: true, validators: validators(name, vfs)}
}

// Schema is the blueprint of a JSON object.
type Schema struct {
	fields       []field
	allowUnknown bool
}

// WithFields builds a Schema. Field names must be unique.
func WithFields(fields ...field) *Schema {
	names := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		_, dup := names[f.Name()]
		lo.Assertf(!dup, "view: duplicate field name '%s'", f.Name())
		names[f.Name()] = struct{}{}
	}
	return &Schema{fields: fields}
}

// AllowUnknownFields accepts members the schema does not declare. They are
// ignored, not copied into the ValueObject.
func (s *Schema) AllowUnknownFields() *Schema {
	s.allowUnknown = true
	return s
}

// Validate checks json against the schema and collects every field error.
func (s *Schema) Validate(json string) mo.Result[ValueObject] {
	if !gjson.Valid(json) || !gjson.Parse(json).IsObject() {
		return mo.Err[ValueObject](fmt.Errorf("%w: body must be a JSON object", constraint.ErrTypeMismatch))
	}
	errs := &ValidationError{}
	object := valueObject{}
	if !s.allowUnknown {
		known := lo.SliceToMap(s.fields, func(f field) (string, struct{}) { return f.Name(), struct{}{} })
		gjson.Parse(json).ForEach(func(key, _ gjson.Result) bool {
			if _, ok := known[key.String()]; !ok {
				errs.add(key.String(), fmt.Errorf("unknown field '%s'", key.String()))
			}
			return true
		})
	}
	for _, f := range s.fields {
		v, found, err := f.validate(json)
		if err != nil {
			errs.add(f.Name(), err)
			continue
		}
		if found {
			object[f.Name()] = v
		}
	}
	if err := errs.err(); err != nil {
		return mo.Err[ValueObject](err)
	}
	return mo.Ok[ValueObject](object)
}
