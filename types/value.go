package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Record: insertion-ordered key/value sequence
// ---------------------------------------------------------------------------

// Record is an immutable key/value sequence that remembers insertion
// order. Keys must be null, booleans, numbers or strings.
type Record struct {
	keys   []Value
	values map[Value]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[Value]Value)}
}

// Hashable reports whether v can be used as a record key.
func Hashable(v Value) bool {
	switch v.(type) {
	case nil, bool, float64, string:
		return true
	}
	return false
}

// With returns a copy of r with key bound to value.
func (r *Record) With(key, value Value) *Record {
	n := &Record{
		keys:   append([]Value(nil), r.keys...),
		values: make(map[Value]Value, len(r.values)+1),
	}
	for k, v := range r.values {
		n.values[k] = v
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
	return n
}

// Get returns the value bound to key.
func (r *Record) Get(key Value) (Value, bool) {
	if !Hashable(key) {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []Value {
	return append([]Value(nil), r.keys...)
}

// Len returns the number of entries.
func (r *Record) Len() int {
	return len(r.keys)
}

// ---------------------------------------------------------------------------
// Slice: arithmetic sequence
// ---------------------------------------------------------------------------

// Slice is the half-open arithmetic sequence start, start+step, ... up to
// but excluding stop.
type Slice struct {
	Start, Stop, Step float64
}

// Len returns the number of elements, saturating at math.MaxInt.
func (s *Slice) Len() int {
	if s.Step == 0 {
		return 0
	}
	n := math.Ceil((s.Stop - s.Start) / s.Step)
	switch {
	case math.IsNaN(n) || n <= 0:
		return 0
	case n >= math.MaxInt:
		return math.MaxInt
	}
	return int(n)
}

// At returns element i, which must be in [0, Len()).
func (s *Slice) At(i int) float64 {
	return s.Start + float64(i)*s.Step
}

// ---------------------------------------------------------------------------
// Iterator
// ---------------------------------------------------------------------------

// Iterator walks a sequence. Records iterate over their keys.
type Iterator struct {
	items []Value
	slice *Slice
	pos   int
}

// NewIterator returns an iterator over v, or false if v is not a sequence.
func NewIterator(v Value) (*Iterator, bool) {
	switch x := v.(type) {
	case *Slice:
		return &Iterator{slice: x}, true
	case *Record:
		return &Iterator{items: x.Keys()}, true
	}
	if !Sequence.pred(nil, v) {
		return nil, false
	}
	var items []Value
	Each(v, func(e Value) bool {
		items = append(items, e)
		return true
	})
	return &Iterator{items: items}, true
}

// Next returns the next element, or false when the sequence is exhausted.
func (it *Iterator) Next() (Value, bool) {
	if it.slice != nil {
		if it.pos >= it.slice.Len() {
			return nil, false
		}
		v := it.slice.At(it.pos)
		it.pos++
		return v, true
	}
	if it.pos >= len(it.items) {
		return nil, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}

// ---------------------------------------------------------------------------
// Sequence helpers
// ---------------------------------------------------------------------------

// Len returns the length of a sequence value.
func Len(v Value) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []Value:
		return len(x), true
	case *Record:
		return x.Len(), true
	case *Slice:
		return x.Len(), true
	}
	return 0, false
}

// Each calls fn for every element of a sequence until fn returns false.
// Strings yield one-character strings; records yield their values.
func Each(v Value, fn func(Value) bool) {
	switch x := v.(type) {
	case string:
		for _, r := range x {
			if !fn(string(r)) {
				return
			}
		}
	case []Value:
		for _, e := range x {
			if !fn(e) {
				return
			}
		}
	case *Record:
		for _, k := range x.keys {
			if !fn(x.values[k]) {
				return
			}
		}
	case *Slice:
		for i := 0; i < x.Len(); i++ {
			if !fn(x.At(i)) {
				return
			}
		}
	}
}

// Normalize maps i into [0, n) for i in [-n, n). ok is false otherwise.
func Normalize(i, n int) (int, bool) {
	if i < -n || i >= n {
		return 0, false
	}
	if i < 0 {
		i += n
	}
	return i, true
}

// Equal compares two values structurally.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case []Value:
		y, ok := b.([]Value)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Record:
		y, ok := b.(*Record)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for k, v := range x.values {
			w, ok := y.values[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *Slice:
		y, ok := b.(*Slice)
		return ok && *x == *y
	case *Typedef:
		y, ok := b.(*Typedef)
		return ok && x.Equal(y)
	}
	return a == b
}

// Format renders a value as text.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case []Value:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = quoted(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Record:
		parts := make([]string, len(x.keys))
		for i, k := range x.keys {
			parts[i] = quoted(k) + ": " + quoted(x.values[k])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Slice:
		return fmt.Sprintf("%s:%s:%s", Format(x.Start), Format(x.Stop), Format(x.Step))
	case *Typedef:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	return fmt.Sprintf("%v", v)
}

func quoted(v Value) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Format(v)
}
