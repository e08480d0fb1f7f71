package i18n

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMissingArgument = errors.New("missing message argument")
)

// Message is a parsed message. The supported syntax is the ICU subset:
//
//	Hello {name}
//	{count, plural, =0 {no posts} one {# post} other {# posts}}
//	{count, plural, offset:1 =0 {nobody} other {you and # others}}
//	{rank, selectordinal, one {#st} two {#nd} few {#rd} other {#th}}
//	{gender, select, male {he} female {she} other {they}}
//	{total, number}
//
// A quote escapes syntax characters ('{' or '#'), two quotes are a literal one.
type Message struct {
	source string
	nodes  []node
}

type node interface {
	format(f *formatter, b *strings.Builder) error
}

type formatter struct {
	tag     language.Tag
	printer *message.Printer
	data    map[string]any

	// value of the innermost plural, # prints it
	hash    float64
	hashSet bool
}

// ParseMessage parses source once, the result can be formatted many times
func ParseMessage(source string) (*Message, error) {
	p := &parser{src: []rune(source)}

	nodes, err := p.parseNodes(0, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidMessage, p.src[p.pos], p.pos)
	}

	return &Message{source: source, nodes: nodes}, nil
}

func (m *Message) String() string { return m.source }

// Format renders the message for the locale
func (m *Message) Format(tag language.Tag, data map[string]any) (string, error) {
	f := &formatter{tag: tag, printer: message.NewPrinter(tag), data: data}

	var b strings.Builder
	for _, n := range m.nodes {
		if err := n.format(f, &b); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

type textNode string

func (n textNode) format(_ *formatter, b *strings.Builder) error {
	b.WriteString(string(n))
	return nil
}

type hashNode struct{}

func (hashNode) format(f *formatter, b *strings.Builder) error {
	if !f.hashSet {
		b.WriteByte('#')
		return nil
	}
	b.WriteString(f.printer.Sprint(number.Decimal(f.hash)))
	return nil
}

type argNode struct {
	name string
}

func (n argNode) format(f *formatter, b *strings.Builder) error {
	v, ok := f.data[n.name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArgument, n.name)
	}
	b.WriteString(fmt.Sprint(v))
	return nil
}

type numberNode struct {
	name string
}

func (n numberNode) format(f *formatter, b *strings.Builder) error {
	v, err := f.number(n.name)
	if err != nil {
		return err
	}
	b.WriteString(f.printer.Sprint(number.Decimal(v)))
	return nil
}

type selectNode struct {
	name  string
	cases map[string][]node
}

func (n selectNode) format(f *formatter, b *strings.Builder) error {
	v, ok := f.data[n.name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArgument, n.name)
	}

	nodes, ok := n.cases[fmt.Sprint(v)]
	if !ok {
		nodes = n.cases["other"]
	}
	return formatNodes(f, b, nodes)
}

type pluralNode struct {
	name    string
	offset  float64
	ordinal bool
	cases   map[string][]node
}

var pluralKeywords = map[plural.Form]string{
	plural.Other: "other",
	plural.Zero:  "zero",
	plural.One:   "one",
	plural.Two:   "two",
	plural.Few:   "few",
	plural.Many:  "many",
}

func (n pluralNode) format(f *formatter, b *strings.Builder) error {
	v, err := f.number(n.name)
	if err != nil {
		return err
	}

	// exact matches compare the value before the offset
	nodes, ok := n.cases["="+formatOperand(v)]
	if !ok {
		rules := plural.Cardinal
		if n.ordinal {
			rules = plural.Ordinal
		}

		i, vd, w, fd, t := operands(v - n.offset)
		keyword := pluralKeywords[rules.MatchPlural(f.tag, i, vd, w, fd, t)]

		if nodes, ok = n.cases[keyword]; !ok {
			nodes = n.cases["other"]
		}
	}

	prev, prevSet := f.hash, f.hashSet
	f.hash, f.hashSet = v-n.offset, true
	defer func() { f.hash, f.hashSet = prev, prevSet }()

	return formatNodes(f, b, nodes)
}

func formatNodes(f *formatter, b *strings.Builder, nodes []node) error {
	for _, n := range nodes {
		if err := n.format(f, b); err != nil {
			return err
		}
	}
	return nil
}

func (f *formatter) number(name string) (float64, error) {
	v, ok := f.data[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return toFloat(v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("%v (%T) is not a number", v, v)
}

func formatOperand(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// operands returns the CLDR plural operands i, v, w, f and t of n
func operands(n float64) (i, v, w, f, t int) {
	s := formatOperand(math.Abs(n))

	intPart, frac, _ := strings.Cut(s, ".")
	i, _ = strconv.Atoi(intPart)

	if frac == "" {
		return i, 0, 0, 0, 0
	}

	v = len(frac)
	f, _ = strconv.Atoi(frac)

	trimmed := strings.TrimRight(frac, "0")
	w = len(trimmed)
	t, _ = strconv.Atoi(trimmed)

	return i, v, w, f, t
}

type parser struct {
	src []rune
	pos int
}

// parseNodes reads until the end of input or the closing brace of the
// enclosing case when depth > 0
func (p *parser) parseNodes(depth int, inPlural bool) ([]node, error) {
	var (
		nodes []node
		text  strings.Builder
	)

	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, textNode(text.String()))
			text.Reset()
		}
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]

		switch {
		case c == '\'':
			p.readQuoted(&text)

		case c == '{':
			flush()
			n, err := p.parsePlaceholder(depth, inPlural)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)

		case c == '}':
			if depth == 0 {
				return nil, fmt.Errorf("unexpected '}' at %d", p.pos)
			}
			flush()
			return nodes, nil

		case c == '#' && inPlural:
			flush()
			nodes = append(nodes, hashNode{})
			p.pos++

		default:
			text.WriteRune(c)
			p.pos++
		}
	}

	if depth > 0 {
		return nil, errors.New("unclosed '{'")
	}

	flush()
	return nodes, nil
}

// readQuoted handles '' and quoted syntax characters
func (p *parser) readQuoted(text *strings.Builder) {
	p.pos++

	if p.pos < len(p.src) && p.src[p.pos] == '\'' {
		text.WriteRune('\'')
		p.pos++
		return
	}

	if p.pos >= len(p.src) || !strings.ContainsRune("{}#", p.src[p.pos]) {
		text.WriteRune('\'')
		return
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++

		if c != '\'' {
			text.WriteRune(c)
			continue
		}
		if p.pos < len(p.src) && p.src[p.pos] == '\'' {
			text.WriteRune('\'')
			p.pos++
			continue
		}
		return
	}
}

func (p *parser) parsePlaceholder(depth int, inPlural bool) (node, error) {
	p.pos++ // {

	name := p.readWord()
	if name == "" {
		return nil, fmt.Errorf("missing argument name at %d", p.pos)
	}

	p.skipSpaces()
	if p.consume('}') {
		return argNode{name: name}, nil
	}

	if !p.consume(',') {
		return nil, fmt.Errorf("expected ',' or '}' after %s", name)
	}

	kind := p.readWord()
	p.skipSpaces()

	switch kind {
	case "number":
		if !p.consume('}') {
			return nil, fmt.Errorf("expected '}' after %s, number", name)
		}
		return numberNode{name: name}, nil

	case "select":
		if !p.consume(',') {
			return nil, fmt.Errorf("expected ',' after %s, select", name)
		}
		cases, err := p.parseCases(depth, inPlural)
		if err != nil {
			return nil, err
		}
		return selectNode{name: name, cases: cases}, nil

	case "plural", "selectordinal":
		if !p.consume(',') {
			return nil, fmt.Errorf("expected ',' after %s, %s", name, kind)
		}

		n := pluralNode{name: name, ordinal: kind == "selectordinal"}

		p.skipSpaces()
		if strings.HasPrefix(string(p.src[p.pos:]), "offset:") {
			p.pos += len("offset:")
			offset, err := strconv.ParseFloat(p.readWord(), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid offset of %s: %w", name, err)
			}
			n.offset = offset
		}

		cases, err := p.parseCases(depth, true)
		if err != nil {
			return nil, err
		}
		n.cases = cases
		return n, nil
	}

	return nil, fmt.Errorf("unsupported argument type %q of %s", kind, name)
}

// parseCases reads `key {message}` pairs up to the closing brace of the placeholder
func (p *parser) parseCases(depth int, inPlural bool) (map[string][]node, error) {
	cases := make(map[string][]node)

	for {
		p.skipSpaces()

		if p.consume('}') {
			break
		}

		key := p.readWord()
		if key == "" {
			return nil, fmt.Errorf("expected a case key at %d", p.pos)
		}

		p.skipSpaces()
		if !p.consume('{') {
			return nil, fmt.Errorf("expected '{' after case %s", key)
		}

		nodes, err := p.parseNodes(depth+1, inPlural)
		if err != nil {
			return nil, err
		}
		p.pos++ // }

		cases[key] = nodes
	}

	if _, ok := cases["other"]; !ok {
		return nil, errors.New("missing other case")
	}

	return cases, nil
}

func (p *parser) readWord() string {
	p.skipSpaces()

	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if unicode.IsSpace(c) || strings.ContainsRune("{},", c) {
			break
		}
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) consume(c rune) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}
