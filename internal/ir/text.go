package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders the module in the textual format accepted by Parse.
//
// Helper computations print before the entry computation so that call
// targets are always declared before their callers.
func Print(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s {\n", m.Name)
	for _, c := range m.Computations {
		if c == m.Entry() {
			continue
		}
		printComputation(&b, c, "computation")
	}
	if entry := m.Entry(); entry != nil {
		printComputation(&b, entry, "entry")
	}
	b.WriteString("}\n")
	return b.String()
}

func printComputation(b *strings.Builder, c *Computation, keyword string) {
	fmt.Fprintf(b, "  %s %s {\n", keyword, c.Name)
	for _, in := range c.Instructions {
		b.WriteString("    ")
		if in == c.Root {
			b.WriteString("ROOT ")
		}
		b.WriteString(printInstruction(in))
		b.WriteByte('\n')
	}
	b.WriteString("  }\n")
}

func printInstruction(in *Instruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s %s(", in.Name, in.Shape, in.Op)
	switch in.Op {
	case OpParameter:
		fmt.Fprintf(&b, "%d", in.Parameter)
	case OpConstant:
		for i, v := range in.Literal {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	default:
		for i, op := range in.Operands {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(op.Name)
		}
	}
	b.WriteByte(')')

	if len(in.Dimensions) > 0 {
		b.WriteString(", dimensions={")
		for i, d := range in.Dimensions {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", d)
		}
		b.WriteByte('}')
	}
	if in.Op == OpGetTupleElement {
		fmt.Fprintf(&b, ", index=%d", in.TupleIndex)
	}
	if in.CustomCallTarget != "" {
		fmt.Fprintf(&b, ", target=%q", in.CustomCallTarget)
	}
	if in.Window != nil {
		b.WriteString(", window={")
		b.WriteString("size=" + joinX(in.Window.Sizes))
		b.WriteString(" stride=" + joinX(in.Window.Strides))
		b.WriteString(" pad_low=" + joinX(in.Window.PadLow))
		b.WriteString(" pad_high=" + joinX(in.Window.PadHigh))
		b.WriteByte('}')
	}
	if len(in.Padding) > 0 {
		b.WriteString(", padding={")
		for i, p := range in.Padding {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d_%d_%d", p.Low, p.High, p.Interior)
		}
		b.WriteByte('}')
	}
	if in.ToApply != nil {
		fmt.Fprintf(&b, ", to_apply=%s", in.ToApply.Name)
	}
	if in.Lower {
		b.WriteString(", lower=true")
	}
	return b.String()
}

func joinX(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, "x")
}

// ParseError describes a textual-format parse failure.
type ParseError struct {
	Line    int
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Parse reads a module from its textual format. Call targets must be
// declared before their callers, which Print guarantees.
func Parse(text string) (*Module, error) {
	p := &parser{lines: strings.Split(text, "\n")}
	return p.parseModule()
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Line: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return line, true
	}
	return "", false
}

func (p *parser) parseModule() (*Module, error) {
	line, ok := p.next()
	if !ok {
		return nil, p.errf("empty input")
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "module" || fields[2] != "{" {
		return nil, p.errf("expected 'module <name> {', got %q", line)
	}
	m := NewModule(fields[1])
	m.entry = nil

	for {
		line, ok := p.next()
		if !ok {
			return nil, p.errf("unexpected end of input in module body")
		}
		if line == "}" {
			break
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[2] != "{" {
			return nil, p.errf("expected computation header, got %q", line)
		}
		keyword, name := fields[0], fields[1]
		if keyword != "entry" && keyword != "computation" {
			return nil, p.errf("expected 'entry' or 'computation', got %q", keyword)
		}
		c := NewComputation(name)
		if err := p.parseBody(m, c); err != nil {
			return nil, err
		}
		m.Computations = append(m.Computations, c)
		if keyword == "entry" {
			if m.entry != nil {
				return nil, p.errf("module has two entry computations")
			}
			m.entry = c
		}
	}
	if m.entry == nil {
		return nil, p.errf("module has no entry computation")
	}
	return m, nil
}

func (p *parser) parseBody(m *Module, c *Computation) error {
	for {
		line, ok := p.next()
		if !ok {
			return p.errf("unexpected end of input in computation %s", c.Name)
		}
		if line == "}" {
			if c.Root == nil {
				return p.errf("computation %s has no ROOT instruction", c.Name)
			}
			return nil
		}
		isRoot := false
		if strings.HasPrefix(line, "ROOT ") {
			isRoot = true
			line = strings.TrimPrefix(line, "ROOT ")
		}
		in, err := p.parseInstruction(m, c, line)
		if err != nil {
			return err
		}
		if c.Find(in.Name) != nil {
			return p.errf("duplicate instruction name %s", in.Name)
		}
		c.Instructions = append(c.Instructions, in)
		if isRoot {
			c.Root = in
		}
	}
}

func (p *parser) parseInstruction(m *Module, c *Computation, line string) (*Instruction, error) {
	name, rest, found := strings.Cut(line, " = ")
	if !found {
		return nil, p.errf("expected '<name> = ...', got %q", line)
	}

	shapeText, rest, err := p.cutShape(rest)
	if err != nil {
		return nil, err
	}
	shape, err := p.parseShape(shapeText)
	if err != nil {
		return nil, err
	}

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return nil, p.errf("missing operand list in %q", line)
	}
	opName := strings.TrimSpace(rest[:open])
	op, ok := OpcodeFromString(opName)
	if !ok {
		return nil, p.errf("unknown opcode %q", opName)
	}
	close := matchParen(rest, open)
	if close < 0 {
		return nil, p.errf("unbalanced parentheses in %q", line)
	}
	args := rest[open+1 : close]
	attrText := strings.TrimSpace(rest[close+1:])
	attrText = strings.TrimPrefix(attrText, ",")

	in := &Instruction{Name: strings.TrimSpace(name), Op: op, Shape: shape}

	switch op {
	case OpParameter:
		idx, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return nil, p.errf("bad parameter index %q", args)
		}
		in.Parameter = idx
	case OpConstant:
		for _, tok := range strings.Fields(args) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, p.errf("bad constant literal %q", tok)
			}
			in.Literal = append(in.Literal, v)
		}
	default:
		for _, tok := range splitTopLevel(args) {
			operand := c.Find(strings.TrimSpace(tok))
			if operand == nil {
				return nil, p.errf("unknown operand %q", strings.TrimSpace(tok))
			}
			in.Operands = append(in.Operands, operand)
		}
	}

	if attrText != "" {
		if err := p.parseAttrs(m, in, attrText); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// cutShape splits the leading shape token (which may contain spaces inside
// tuple parentheses) from the rest of the instruction text.
func (p *parser) cutShape(s string) (shape, rest string, err error) {
	s = strings.TrimSpace(s)
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ' ':
			if depth == 0 {
				return s[:i], strings.TrimSpace(s[i:]), nil
			}
		}
	}
	return "", "", p.errf("missing opcode after shape in %q", s)
}

func (p *parser) parseShape(s string) (Shape, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return Shape{}, p.errf("unterminated tuple shape %q", s)
		}
		var tuple []Shape
		inner := s[1 : len(s)-1]
		if strings.TrimSpace(inner) != "" {
			for _, part := range splitTopLevel(inner) {
				elem, err := p.parseShape(part)
				if err != nil {
					return Shape{}, err
				}
				tuple = append(tuple, elem)
			}
		}
		return MakeTupleShape(tuple...), nil
	}

	bracket := strings.IndexByte(s, '[')
	if bracket < 0 {
		return Shape{}, p.errf("bad shape %q", s)
	}
	element, ok := ElementTypeFromString(s[:bracket])
	if !ok {
		return Shape{}, p.errf("unknown element type %q", s[:bracket])
	}
	closeBracket := strings.IndexByte(s, ']')
	if closeBracket < 0 {
		return Shape{}, p.errf("unterminated dimensions in %q", s)
	}
	shape := Shape{Element: element}
	dimsText := s[bracket+1 : closeBracket]
	if strings.TrimSpace(dimsText) != "" {
		for _, tok := range strings.Split(dimsText, ",") {
			d, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
			if err != nil {
				return Shape{}, p.errf("bad dimension %q", tok)
			}
			shape.Dims = append(shape.Dims, d)
		}
	}
	layoutText := strings.TrimSpace(s[closeBracket+1:])
	if layoutText != "" {
		if !strings.HasPrefix(layoutText, "{") || !strings.HasSuffix(layoutText, "}") {
			return Shape{}, p.errf("bad layout %q", layoutText)
		}
		for _, tok := range strings.Split(layoutText[1:len(layoutText)-1], ",") {
			l, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				return Shape{}, p.errf("bad layout dimension %q", tok)
			}
			shape.Layout = append(shape.Layout, l)
		}
	}
	return shape, nil
}

func (p *parser) parseAttrs(m *Module, in *Instruction, text string) error {
	for _, attr := range splitTopLevel(text) {
		key, value, found := strings.Cut(strings.TrimSpace(attr), "=")
		if !found {
			return p.errf("bad attribute %q", attr)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "dimensions":
			dims, err := p.parseBracedInts(value)
			if err != nil {
				return err
			}
			in.Dimensions = dims
		case "index":
			idx, err := strconv.Atoi(value)
			if err != nil {
				return p.errf("bad index %q", value)
			}
			in.TupleIndex = idx
		case "target":
			target, err := strconv.Unquote(value)
			if err != nil {
				return p.errf("bad target %q", value)
			}
			in.CustomCallTarget = target
		case "window":
			window, err := p.parseWindow(value)
			if err != nil {
				return err
			}
			in.Window = window
		case "padding":
			padding, err := p.parsePadding(value)
			if err != nil {
				return err
			}
			in.Padding = padding
		case "to_apply":
			target := m.FindComputation(value)
			if target == nil {
				return p.errf("unknown computation %q", value)
			}
			in.ToApply = target
		case "lower":
			in.Lower = value == "true"
		default:
			return p.errf("unknown attribute %q", key)
		}
	}
	return nil
}

func (p *parser) parseBracedInts(value string) ([]int64, error) {
	if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return nil, p.errf("expected braced list, got %q", value)
	}
	inner := value[1 : len(value)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	var out []int64
	for _, tok := range strings.Split(inner, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
		if err != nil {
			return nil, p.errf("bad integer %q", tok)
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *parser) parseWindow(value string) (*Window, error) {
	if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return nil, p.errf("bad window %q", value)
	}
	window := &Window{}
	for _, field := range strings.Fields(value[1 : len(value)-1]) {
		key, val, found := strings.Cut(field, "=")
		if !found {
			return nil, p.errf("bad window field %q", field)
		}
		var vals []int64
		for _, tok := range strings.Split(val, "x") {
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, p.errf("bad window value %q", tok)
			}
			vals = append(vals, v)
		}
		switch key {
		case "size":
			window.Sizes = vals
		case "stride":
			window.Strides = vals
		case "pad_low":
			window.PadLow = vals
		case "pad_high":
			window.PadHigh = vals
		default:
			return nil, p.errf("unknown window field %q", key)
		}
	}
	return window, nil
}

func (p *parser) parsePadding(value string) ([]PadDim, error) {
	if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return nil, p.errf("bad padding %q", value)
	}
	var out []PadDim
	for _, tok := range strings.Split(value[1:len(value)-1], ",") {
		parts := strings.Split(strings.TrimSpace(tok), "_")
		if len(parts) != 3 {
			return nil, p.errf("bad padding entry %q", tok)
		}
		var dim PadDim
		var err error
		if dim.Low, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return nil, p.errf("bad padding entry %q", tok)
		}
		if dim.High, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return nil, p.errf("bad padding entry %q", tok)
		}
		if dim.Interior, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return nil, p.errf("bad padding entry %q", tok)
		}
		out = append(out, dim)
	}
	return out, nil
}

// splitTopLevel splits on commas that are not nested inside brackets,
// braces, parentheses, or string quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if i == 0 || s[i-1] != '\\' {
				inString = !inString
			}
		case '(', '[', '{':
			if !inString {
				depth++
			}
		case ')', ']', '}':
			if !inString {
				depth--
			}
		case ',':
			if depth == 0 && !inString {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, s[start:])
	}
	return parts
}

// matchParen returns the index of the parenthesis matching the one at
// open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"':
			if s[i-1] != '\\' {
				inString = !inString
			}
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
