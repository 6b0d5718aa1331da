package types

// Infer derives a typedef from the native shape of v. Sequences get a
// length property, and lists, records and slices also get an element
// property holding the union of their element types.
func Infer(v Value) *Typedef {
	switch x := v.(type) {
	case nil:
		return NoneType
	case bool:
		return BooleanType
	case float64:
		if isWhole(x) {
			return IntegerType
		}
		return NumberType
	case string:
		return StringType.With(Length(len([]rune(x))))
	case []Value:
		return sequenceOf(ListType, x)
	case *Record:
		values := make([]Value, 0, x.Len())
		Each(x, func(e Value) bool {
			values = append(values, e)
			return true
		})
		return sequenceOf(RecordType, values)
	case *Slice:
		t := SliceType.With(Length(x.Len()))
		if x.Len() > 0 {
			elem := NumberType
			if isWhole(x.Start) && isWhole(x.Step) {
				elem = IntegerType
			}
			t = t.With(Element(plain(elem)))
		}
		return t
	case *Typedef:
		return TypeType
	case Typed:
		return x.Type()
	}
	return Any
}

func sequenceOf(base *Typedef, elems []Value) *Typedef {
	t := base.With(Length(len(elems)))
	if len(elems) == 0 {
		return t
	}
	elem := plain(Infer(elems[0]))
	for _, e := range elems[1:] {
		elem = Union(elem, Infer(e))
	}
	return t.With(Element(elem))
}

// plain strips the name and prototype so that element types compare and
// print by their properties alone.
func plain(t *Typedef) *Typedef {
	return Make(t.Properties()...)
}
