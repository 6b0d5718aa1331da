package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// String renders the typedef in its dotted text form: the most specific
// base datatype it contains, followed by every remaining property in
// registration order, e.g. "list.element:(integer).length:3".
// User properties print by name.
func (t *Typedef) String() string {
	if t == Discard {
		return "discard"
	}
	base := Any
	for _, b := range Bases {
		if IsSubtype(t, b) && b.Len() >= base.Len() {
			base = b
		}
	}
	var rest []*Property
	for _, p := range t.props {
		if !base.Has(p) {
			rest = append(rest, p)
		}
	}
	slices.SortFunc(rest, func(a, b *Property) int {
		if a.order != b.order {
			if a.order < b.order {
				return -1
			}
			return 1
		}
		return strings.Compare(a.String(), b.String())
	})
	parts := []string{base.name}
	for _, p := range rest {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ".")
}

// Read parses the dotted text form produced by String. Only built-in
// properties are recognised.
func Read(s string) (*Typedef, error) {
	parts, err := splitTop(s)
	if err != nil {
		return nil, err
	}
	base, ok := Base(parts[0])
	if !ok {
		return nil, fmt.Errorf("types: unknown base type %q", parts[0])
	}
	t := Make(base.Properties()...)
	if proto, ok := base.Prototype(); ok {
		t = t.WithPrototype(proto)
	}
	t.name = base.name
	for _, part := range parts[1:] {
		p, err := readProperty(part)
		if err != nil {
			return nil, err
		}
		t.props[p.Name] = p
		t.name = ""
	}
	return t, nil
}

func readProperty(s string) (*Property, error) {
	name, val, hasVal := strings.Cut(s, ":")
	if !hasVal {
		if p, ok := builtin(name); ok {
			return p, nil
		}
		return nil, fmt.Errorf("types: unknown property %q", name)
	}
	switch name {
	case lengthKind.Name:
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("types: bad length %q", val)
		}
		return Length(n), nil
	case elementKind.Name:
		if !strings.HasPrefix(val, "(") || !strings.HasSuffix(val, ")") {
			return nil, fmt.Errorf("types: element type must be parenthesised: %q", val)
		}
		inner, err := Read(val[1 : len(val)-1])
		if err != nil {
			return nil, err
		}
		return Element(plain(inner)), nil
	}
	return nil, fmt.Errorf("types: property %q takes no value", name)
}

// splitTop splits on dots outside parentheses.
func splitTop(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("types: unbalanced parentheses in %q", s)
			}
		case '.':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("types: unbalanced parentheses in %q", s)
	}
	parts = append(parts, s[start:])
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("types: empty component in %q", s)
		}
	}
	return parts, nil
}
