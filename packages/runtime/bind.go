package runtime

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

// Manifest is the ordered list of a template's argument names.
type Manifest []string

// Index returns the position of name, or -1.
func (m Manifest) Index(name string) int {
	for i, n := range m {
		if n == name {
			return i
		}
	}
	return -1
}

// Binder is implemented by generated templates.
type Binder interface {
	Bind(name string, value any) error
}

// BindNamed binds values by argument name, in name order.
func BindNamed(b Binder, values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.Bind(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// BindPositional binds values to the manifest's arguments in order.
func BindPositional(b Binder, manifest Manifest, values ...any) error {
	if len(values) > len(manifest) {
		return errors.Errorf("got %d values for %d arguments", len(values), len(manifest))
	}
	for i, v := range values {
		if err := b.Bind(manifest[i], v); err != nil {
			return err
		}
	}
	return nil
}

// Bind evaluates fn once for a with binding. ok is false when fn panics
// or yields nil.
func Bind[T any](fn func() T) (v T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	v = fn()
	return v, !IsNil(v)
}

// Try runs fn, which evaluates an untyped with binding and then renders
// its body. A panic is swallowed while *bound is still false, which skips
// the binding; once fn has set *bound, panics from the body propagate.
func Try(bound *bool, fn func()) {
	defer func() {
		if r := recover(); r != nil && *bound {
			panic(r)
		}
	}()
	fn()
}

// IsNil reports whether v is nil or a nil pointer, map, slice, func,
// channel or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
