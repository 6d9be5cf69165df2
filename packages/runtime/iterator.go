package runtime

import (
	"reflect"
	"unicode/utf8"
)

// ForIterator exposes the loop state of an enhanced for.
type ForIterator struct {
	index  int
	length int
}

// NewForIterator creates an iterator over length elements, positioned
// before the first one. A negative length means the length is unknown.
func NewForIterator(length int) *ForIterator {
	return &ForIterator{index: -1, length: length}
}

// NewForIteratorOf creates an iterator sized for ranging over coll: the
// element count of arrays, pointers to arrays, slices and maps, and the
// rune count of strings. Other values, such as iterator functions, have
// no known length and Last never reports true for them.
func NewForIteratorOf(coll any) *ForIterator {
	if s, ok := coll.(string); ok {
		return NewForIterator(utf8.RuneCountInString(s))
	}
	rv := reflect.ValueOf(coll)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Array {
			return NewForIterator(-1)
		}
		return NewForIterator(rv.Elem().Len())
	case reflect.String:
		return NewForIterator(utf8.RuneCountInString(rv.String()))
	case reflect.Array, reflect.Slice, reflect.Map:
		return NewForIterator(rv.Len())
	}
	return NewForIterator(-1)
}

// Next advances to the next element.
func (it *ForIterator) Next() {
	it.index++
}

// Index returns the zero-based iteration count.
func (it *ForIterator) Index() int { return it.index }

// First reports whether this is the first iteration.
func (it *ForIterator) First() bool { return it.index == 0 }

// Last reports whether this is the last iteration.
func (it *ForIterator) Last() bool { return it.length >= 0 && it.index == it.length-1 }

// Len returns the number of elements, or -1 when it is unknown.
func (it *ForIterator) Len() int { return it.length }
