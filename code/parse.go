package code

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Assembly directives that populate the initial namespace.
const (
	directiveConst = ".const" // .const NAME LITERAL
	directiveLet   = ".let"   // .let NAME TYPE LITERAL
)

// maxLineSize bounds one line of assembly text, which may hold a long
// string constant.
const maxLineSize = 16 << 20

// SyntaxError reports a malformed assembly line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads a program in assembly text form.
//
//	# comment
//	.const &0 3
//	.let limit integer 10
//	TASK ; main
//	x := + &0 limit
//	START ; loop
func Parse(src string) (*Program, error) {
	p := &Program{}
	err := scanLines(src, func(n int, fields []string) error {
		if len(fields) > 0 && (fields[0] == directiveConst || fields[0] == directiveLet) {
			b, err := parseDirective(fields)
			if err != nil {
				return &SyntaxError{Line: n, Msg: err.Error()}
			}
			p.Namespace = append(p.Namespace, b)
			return nil
		}
		in, err := parseInstruction(fields)
		if err != nil {
			return &SyntaxError{Line: n, Msg: err.Error()}
		}
		p.Instructions = append(p.Instructions, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ParseInstructions reads instructions only; namespace directives are
// rejected. It is the default meta-compiler of the engine.
func ParseInstructions(src string) ([]Instruction, error) {
	var out []Instruction
	err := scanLines(src, func(n int, fields []string) error {
		if len(fields) > 0 && (fields[0] == directiveConst || fields[0] == directiveLet) {
			return &SyntaxError{Line: n, Msg: "namespace directive in instruction text"}
		}
		in, err := parseInstruction(fields)
		if err != nil {
			return &SyntaxError{Line: n, Msg: err.Error()}
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

func scanLines(src string, fn func(n int, fields []string) error) error {
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields, err := split(line)
		if err != nil {
			return &SyntaxError{Line: n, Msg: err.Error()}
		}
		if err := fn(n, fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

// split breaks a line into whitespace separated fields; double quoted
// strings stay in one field, quotes included. A # starting a field begins
// a comment.
func split(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote, escaped := false, false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
scan:
	for _, r := range line {
		switch {
		case inQuote:
			cur.WriteRune(r)
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inQuote = false
			}
		case r == '#' && cur.Len() == 0:
			// comment to end of line
			break scan
		case r == '"':
			inQuote = true
			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string")
	}
	flush()
	return fields, nil
}

func parseInstruction(fields []string) (Instruction, error) {
	var in Instruction
	if len(fields) >= 2 && fields[1] == ":=" {
		in.Register = fields[0]
		fields = fields[2:]
	}
	if len(fields) == 0 {
		return in, fmt.Errorf("missing instruction name")
	}
	in.Name = fields[0]
	if IsPseudo(in.Name) && in.Register != "" {
		return in, fmt.Errorf("pseudo-instruction %s cannot have a destination", in.Name)
	}
	rest := fields[1:]
	for i, f := range rest {
		if f == ";" {
			in.Labels = append(in.Labels, rest[i+1:]...)
			break
		}
		in.Args = append(in.Args, f)
	}
	return in, nil
}

func parseDirective(fields []string) (Binding, error) {
	var b Binding
	var lit []string
	switch fields[0] {
	case directiveConst:
		if len(fields) < 3 {
			return b, fmt.Errorf("usage: .const NAME LITERAL")
		}
		b.Name, lit = fields[1], fields[2:]
	case directiveLet:
		if len(fields) < 4 {
			return b, fmt.Errorf("usage: .let NAME TYPE LITERAL")
		}
		b.Name, b.Type, lit = fields[1], fields[2], fields[3:]
	}
	v, rest, err := parseLiteral(lit)
	if err != nil {
		return b, err
	}
	if len(rest) > 0 {
		return b, fmt.Errorf("trailing fields after literal: %v", rest)
	}
	b.Value = v
	return b, nil
}

// parseLiteral consumes one literal from fields: a number, a quoted string,
// true, false, null, or a bracketed list of literals.
func parseLiteral(fields []string) (Literal, []string, error) {
	if len(fields) == 0 {
		return Literal{}, nil, fmt.Errorf("missing literal")
	}
	f := fields[0]
	switch {
	case f == "null":
		return Literal{Kind: LitNull}, fields[1:], nil
	case f == "true" || f == "false":
		return Literal{Kind: LitBool, Bool: f == "true"}, fields[1:], nil
	case strings.HasPrefix(f, `"`):
		s, err := strconv.Unquote(f)
		if err != nil {
			return Literal{}, nil, fmt.Errorf("bad string %s: %w", f, err)
		}
		return Literal{Kind: LitString, Text: s}, fields[1:], nil
	case f == "[":
		list := Literal{Kind: LitList}
		rest := fields[1:]
		for {
			if len(rest) == 0 {
				return Literal{}, nil, fmt.Errorf("unterminated list")
			}
			if rest[0] == "]" {
				return list, rest[1:], nil
			}
			item, more, err := parseLiteral(rest)
			if err != nil {
				return Literal{}, nil, err
			}
			list.Items = append(list.Items, item)
			rest = more
		}
	}
	n, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return Literal{}, nil, fmt.Errorf("bad literal %q", f)
	}
	return Literal{Kind: LitNumber, Number: n}, fields[1:], nil
}

// Format renders a program back to assembly text.
func Format(p *Program) string {
	var sb strings.Builder
	for _, b := range p.Namespace {
		if b.Type != "" {
			fmt.Fprintf(&sb, "%s %s %s %s\n", directiveLet, b.Name, b.Type, formatLiteral(b.Value))
		} else {
			fmt.Fprintf(&sb, "%s %s %s\n", directiveConst, b.Name, formatLiteral(b.Value))
		}
	}
	for _, in := range p.Instructions {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatLiteral(l Literal) string {
	switch l.Kind {
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitNumber:
		return strconv.FormatFloat(l.Number, 'g', -1, 64)
	case LitString:
		return strconv.Quote(l.Text)
	case LitList:
		parts := []string{"["}
		for _, it := range l.Items {
			parts = append(parts, formatLiteral(it))
		}
		parts = append(parts, "]")
		return strings.Join(parts, " ")
	}
	return "null"
}
