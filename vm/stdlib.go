package vm

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/juno-r1/sophia-sub000/dispatch"
	"github.com/juno-r1/sophia-sub000/fault"
	"github.com/juno-r1/sophia-sub000/types"
)

// ---------------------------------------------------------------------------
// Standard namespace
// ---------------------------------------------------------------------------

var (
	stdOnce  sync.Once
	stdTable map[string]Slot
)

// standard returns the process-wide standard namespace. It is built once
// and never written; tasks overlay their own registers on it.
func standard() map[string]Slot {
	stdOnce.Do(func() {
		stdTable = buildStandard()
	})
	return stdTable
}

type library map[string]*dispatch.Funcdef

func (l library) def(name string, final *types.Typedef, fn dispatch.Native, sig ...*types.Typedef) {
	m := dispatch.NewNative(name, final, fn, sig...)
	if f, ok := l[name]; ok {
		l[name] = f.Extend(m)
		return
	}
	l[name] = dispatch.NewFuncdef(name, m)
}

func buildStandard() map[string]Slot {
	table := make(map[string]Slot)
	for _, b := range types.Bases {
		table[b.Name()] = Slot{Value: b, Type: types.TypeType}
	}
	table["null"] = Slot{Value: nil, Type: types.NoneType}
	table["true"] = Slot{Value: true, Type: types.BooleanType}
	table["false"] = Slot{Value: false, Type: types.BooleanType}

	lib := make(library)
	arithmetic(lib)
	comparison(lib)
	logic(lib)
	sequences(lib)
	misc(lib)
	for name, f := range lib {
		table[name] = Slot{Value: f, Type: types.FunctionType}
	}
	return table
}

var (
	tNum  = types.NumberType
	tStr  = types.StringType
	tList = types.ListType
	tBool = types.BooleanType
	tAny  = types.Any
)

func binary(op func(a, b float64) float64) dispatch.Native {
	return func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return op(args[0].(float64), args[1].(float64)), nil
	}
}

func arithmetic(lib library) {
	lib.def("+", tAny, binary(func(a, b float64) float64 { return a + b }), tNum, tNum)
	lib.def("+", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return args[0].(string) + args[1].(string), nil
	}, tStr, tStr)
	lib.def("+", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return slices.Concat(args[0].([]types.Value), args[1].([]types.Value)), nil
	}, tList, tList)
	lib.def("-", tAny, binary(func(a, b float64) float64 { return a - b }), tNum, tNum)
	lib.def("-", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return -args[0].(float64), nil
	}, tNum)
	lib.def("*", tAny, binary(func(a, b float64) float64 { return a * b }), tNum, tNum)
	// division by zero follows IEEE 754
	lib.def("/", tAny, binary(func(a, b float64) float64 { return a / b }), tNum, tNum)
	lib.def("%", tAny, binary(func(a, b float64) float64 {
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r
	}), tNum, tNum)
	lib.def("^", tAny, binary(math.Pow), tNum, tNum)
}

func comparison(lib library) {
	equal := func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return types.Equal(args[0], args[1]), nil
	}
	lib.def("=", tBool, equal, tAny, tAny)
	lib.def("!=", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return !types.Equal(args[0], args[1]), nil
	}, tAny, tAny)

	order := func(name string, cmp func(c int) bool) {
		lib.def(name, tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
			a, b := args[0].(float64), args[1].(float64)
			switch {
			case a < b:
				return cmp(-1), nil
			case a > b:
				return cmp(1), nil
			}
			return cmp(0), nil
		}, tNum, tNum)
		lib.def(name, tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
			return cmp(strings.Compare(args[0].(string), args[1].(string))), nil
		}, tStr, tStr)
	}
	order("<", func(c int) bool { return c < 0 })
	order(">", func(c int) bool { return c > 0 })
	order("<=", func(c int) bool { return c <= 0 })
	order(">=", func(c int) bool { return c >= 0 })
}

func logic(lib library) {
	lib.def("and", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return args[0].(bool) && args[1].(bool), nil
	}, tBool, tBool)
	lib.def("or", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return args[0].(bool) || args[1].(bool), nil
	}, tBool, tBool)
	lib.def("xor", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return args[0].(bool) != args[1].(bool), nil
	}, tBool, tBool)
	lib.def("not", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return !args[0].(bool), nil
	}, tBool)
}

// index normalises a numeric index into [0, n), failing with INDX. The
// index must be integral; slices with fractional bounds or steps yield
// such indices.
func index(seq types.Value, i float64, n int) (int, error) {
	if i != math.Trunc(i) || i < -float64(n) || i >= float64(n) {
		return 0, fault.New(fault.Index, seq, i)
	}
	j, _ := types.Normalize(int(i), n)
	return j, nil
}

// sliced collects the elements of an n-element sequence at the indices a
// slice enumerates. The first index out of range fails.
func sliced(seq types.Value, s *types.Slice, n int, at func(int) types.Value) ([]types.Value, error) {
	var out []types.Value
	for k, size := 0, s.Len(); k < size; k++ {
		j, err := index(seq, s.At(k), n)
		if err != nil {
			return nil, err
		}
		out = append(out, at(j))
	}
	if out == nil {
		out = []types.Value{}
	}
	return out, nil
}

func sequences(lib library) {
	integer := types.IntegerType
	slice := types.SliceType
	record := types.RecordType

	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		xs := args[0].([]types.Value)
		j, err := index(xs, args[1].(float64), len(xs))
		if err != nil {
			return nil, err
		}
		return xs[j], nil
	}, tList, integer)
	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		rs := []rune(args[0].(string))
		j, err := index(args[0], args[1].(float64), len(rs))
		if err != nil {
			return nil, err
		}
		return string(rs[j]), nil
	}, tStr, integer)
	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		s := args[0].(*types.Slice)
		j, err := index(s, args[1].(float64), s.Len())
		if err != nil {
			return nil, err
		}
		return s.At(j), nil
	}, slice, integer)
	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		v, ok := args[0].(*types.Record).Get(args[1])
		if !ok {
			return nil, fault.New(fault.Index, args[0], args[1])
		}
		return v, nil
	}, record, tAny)
	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		xs := args[0].([]types.Value)
		return sliced(xs, args[1].(*types.Slice), len(xs), func(j int) types.Value { return xs[j] })
	}, tList, slice)
	lib.def("[]", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		rs := []rune(args[0].(string))
		parts, err := sliced(args[0], args[1].(*types.Slice), len(rs), func(j int) types.Value { return string(rs[j]) })
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.(string))
		}
		return sb.String(), nil
	}, tStr, slice)

	lib.def("length", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		n, _ := types.Len(args[0])
		return float64(n), nil
	}, types.SequenceType)
	lib.def("in", tBool, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		if r, ok := args[1].(*types.Record); ok {
			_, found := r.Get(args[0])
			return found, nil
		}
		found := false
		types.Each(args[1], func(e types.Value) bool {
			found = types.Equal(e, args[0])
			return !found
		})
		return found, nil
	}, tAny, types.SequenceType)
	lib.def("append", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		xs := args[0].([]types.Value)
		return append(slices.Clip(xs), args[1]), nil
	}, tList, tAny)
	lib.def("keys", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return args[0].(*types.Record).Keys(), nil
	}, record)
}

func misc(lib library) {
	lib.def("format", tAny, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return types.Format(args[0]), nil
	}, tAny)
	lib.def("print", types.Discard, func(e dispatch.Env, args []types.Value) (types.Value, error) {
		_, err := fmt.Fprintln(e.Output(), types.Format(args[0]))
		return nil, err
	}, tAny)
	lib.def("typeof", types.TypeType, func(_ dispatch.Env, args []types.Value) (types.Value, error) {
		return types.Infer(args[0]), nil
	}, tAny)
}
