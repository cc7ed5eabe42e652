package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	m "fracture.dev/pkg/fracture/internal/model"
)

// dslNode is one term of a rule expression: a call, a bracketed list or an
// atom (a field path, a placeholder or a constant).
type dslNode struct {
	name string
	args []dslNode
	list []string
	atom string
	call bool
}

type dslParser struct {
	text string
	pos  int
}

func (p *dslParser) skip() {
	for p.pos < len(p.text) && strings.ContainsRune(" \t\r\n", rune(p.text[p.pos])) {
		p.pos++
	}
}

func (p *dslParser) peek() byte {
	p.skip()

	if p.pos >= len(p.text) {
		return 0
	}

	return p.text[p.pos]
}

func (p *dslParser) expect(b byte) error {
	if p.peek() != b {
		return fmt.Errorf("expected %q at offset %d", b, p.pos)
	}

	p.pos++

	return nil
}

func (p *dslParser) word() string {
	p.skip()

	start := p.pos
	quote := byte(0)

	for p.pos < len(p.text) {
		c := p.text[p.pos]

		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.IndexByte("(),[]{}", c) >= 0:
			return strings.TrimSpace(p.text[start:p.pos])
		}

		p.pos++
	}

	return strings.TrimSpace(p.text[start:p.pos])
}

func (p *dslParser) term() (dslNode, error) {
	if p.peek() == '[' {
		p.pos++

		var list []string

		for {
			list = append(list, p.word())

			switch p.peek() {
			case ',':
				p.pos++
			case ']':
				p.pos++
				return dslNode{list: list}, nil
			default:
				return dslNode{}, fmt.Errorf("unterminated list at offset %d", p.pos)
			}
		}
	}

	word := p.word()
	if word == "" {
		return dslNode{}, fmt.Errorf("expected a term at offset %d", p.pos)
	}

	if p.peek() != '(' {
		return dslNode{atom: word}, nil
	}

	p.pos++

	n := dslNode{name: strings.ToUpper(word), call: true}

	if p.peek() == ')' {
		p.pos++
		return n, nil
	}

	for {
		arg, err := p.term()
		if err != nil {
			return dslNode{}, err
		}

		n.args = append(n.args, arg)

		if p.peek() == ',' {
			p.pos++
			continue
		}

		if err := p.expect(')'); err != nil {
			return dslNode{}, err
		}

		return n, nil
	}
}

// ParseDSL turns a rule expression into a constraint. The placeholders
// field1 and field2 stand for subjectPath and objectPath. Supported forms:
//
//	EQ(a,b) NE(a,b) LT(a,b) GT(a,b) MATCH(a,b) ASSOCIATED(a,b)
//	LE(a,n) GE(a,n)
//	WITHIN(a,[lo,hi])
//	IMPLIES(PRESENT(a),PRESENT(b)) IMPLIES(PRESENT(a),ABSENT(b))
//	IMPLIES(EQ(a,v),PRESENT(b)) IMPLIES(EQ(a,v),ABSENT(b))
//
// where b is either a field path or a constant and n an integer constant.
func ParseDSL(text, subjectPath, objectPath string) (m.Constraint, error) {
	p := &dslParser{text: strings.TrimSpace(text)}

	root, err := p.term()
	if err == nil && p.peek() != 0 {
		err = fmt.Errorf("trailing input at offset %d", p.pos)
	}

	if err != nil {
		return m.Constraint{}, unsupported(text, err.Error())
	}

	r := dslResolver{text: text, field1: subjectPath, field2: objectPath}

	return r.constraint(root)
}

func unsupported(text, reason string) error {
	err := fmt.Errorf("%w: %s: %q", m.ErrUnsupportedRule, reason, text)
	return &m.ValidationError{Reason: err.Error(), Err: err}
}

type dslResolver struct {
	text   string
	field1 string
	field2 string
}

var comparisons = map[string]m.PredicateKind{
	"EQ":         m.Equals,
	"MATCH":      m.Equals,
	"ASSOCIATED": m.Equals,
	"NE":         m.NotEquals,
	"LT":         m.LessThan,
	"GT":         m.GreaterThan,
}

func (r dslResolver) constraint(n dslNode) (m.Constraint, error) {
	if !n.call {
		return m.Constraint{}, unsupported(r.text, "expected an operator")
	}

	if kind, ok := comparisons[n.name]; ok {
		return r.comparison(kind, n)
	}

	switch n.name {
	case "LE", "GE":
		return r.inclusive(n)
	case "WITHIN":
		return r.within(n)
	case "IMPLIES":
		return r.implies(n)
	case "IN":
		return m.Constraint{}, unsupported(r.text, "set membership IN has no predicate kind, use WITHIN for contiguous values")
	}

	return m.Constraint{}, unsupported(r.text, "unsupported operator "+n.name)
}

func (r dslResolver) path(n dslNode) (m.FieldPath, bool, error) {
	if n.call || n.list != nil {
		return nil, false, nil
	}

	text := strings.Trim(n.atom, `'"`)

	switch text {
	case "field1":
		text = r.field1
	case "field2":
		text = r.field2
	default:
		if n.atom != text || !strings.Contains(text, ".") {
			return nil, false, nil
		}
	}

	path, err := m.ParsePath(text)
	if err != nil {
		return nil, false, err
	}

	return path, true, nil
}

func (r dslResolver) subject(n dslNode) (m.FieldPath, error) {
	path, ok, err := r.path(n)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, unsupported(r.text, "expected a field, got "+n.atom)
	}

	return path, nil
}

func (r dslResolver) comparison(kind m.PredicateKind, n dslNode) (m.Constraint, error) {
	if len(n.args) != 2 {
		return m.Constraint{}, unsupported(r.text, fmt.Sprintf("%s takes 2 operands, got %d", n.name, len(n.args)))
	}

	subject, err := r.subject(n.args[0])
	if err != nil {
		return m.Constraint{}, err
	}

	c := m.Constraint{Kind: kind, Subject: subject}

	object, ok, err := r.path(n.args[1])
	if err != nil {
		return m.Constraint{}, err
	}

	switch {
	case ok:
		c.Object = object
	case n.args[1].call || n.args[1].list != nil:
		return m.Constraint{}, unsupported(r.text, "nested operand in "+n.name)
	default:
		c.Literal = &m.Literal{Value: strings.Trim(n.args[1].atom, `'"`)}
	}

	return c, nil
}

// inclusive rewrites LE(a,v) as lessThan(a,v+1) and GE(a,v) as
// greaterThan(a,v-1). Only integer constants can be shifted.
func (r dslResolver) inclusive(n dslNode) (m.Constraint, error) {
	kind, step, bound := m.LessThan, int64(1), int64(math.MaxInt64)
	if n.name == "GE" {
		kind, step, bound = m.GreaterThan, -1, math.MinInt64
	}

	c, err := r.comparison(kind, n)
	if err != nil {
		return m.Constraint{}, err
	}

	if c.Literal == nil {
		return m.Constraint{}, unsupported(r.text, n.name+" between two fields has no strict form")
	}

	v, err := strconv.ParseInt(c.Literal.Value, 10, 64)
	if err != nil {
		return m.Constraint{}, unsupported(r.text, n.name+" needs an integer constant, got "+c.Literal.Value)
	}

	if v == bound {
		return m.Constraint{}, unsupported(r.text, n.name+" constant "+c.Literal.Value+" cannot be shifted")
	}

	c.Literal = &m.Literal{Value: strconv.FormatInt(v+step, 10)}

	return c, nil
}

func (r dslResolver) within(n dslNode) (m.Constraint, error) {
	if len(n.args) != 2 || len(n.args[1].list) != 2 {
		return m.Constraint{}, unsupported(r.text, "WITHIN takes a field and [lo,hi]")
	}

	subject, err := r.subject(n.args[0])
	if err != nil {
		return m.Constraint{}, err
	}

	literal, err := rangeOf(n.args[1].list[0], n.args[1].list[1])
	if err != nil {
		return m.Constraint{}, unsupported(r.text, err.Error())
	}

	return m.Constraint{Kind: m.RangeMembership, Subject: subject, Literal: literal}, nil
}

func (r dslResolver) implies(n dslNode) (m.Constraint, error) {
	if len(n.args) != 2 {
		return m.Constraint{}, unsupported(r.text, "IMPLIES takes a condition and a requirement")
	}

	cond, req := n.args[0], n.args[1]

	var c m.Constraint

	switch {
	case cond.call && cond.name == "PRESENT" && len(cond.args) == 1:
		subject, err := r.subject(cond.args[0])
		if err != nil {
			return m.Constraint{}, err
		}

		c.Subject = subject
	case cond.call && cond.name == "EQ" && len(cond.args) == 2:
		eq, err := r.comparison(m.Equals, cond)
		if err != nil {
			return m.Constraint{}, err
		}

		if eq.Literal == nil {
			return m.Constraint{}, unsupported(r.text, "IMPLIES condition must compare with a constant")
		}

		c.Subject, c.Literal = eq.Subject, eq.Literal
	default:
		return m.Constraint{}, unsupported(r.text, "unsupported operator "+cond.name+" in IMPLIES condition")
	}

	if !req.call || len(req.args) != 1 {
		return m.Constraint{}, unsupported(r.text, "unsupported operator "+req.name+" in IMPLIES requirement")
	}

	switch req.name {
	case "PRESENT":
		c.Kind = m.ImpliesPresence
	case "ABSENT":
		c.Kind = m.ImpliesAbsence
	default:
		return m.Constraint{}, unsupported(r.text, "unsupported operator "+req.name+" in IMPLIES requirement")
	}

	object, err := r.subject(req.args[0])
	if err != nil {
		return m.Constraint{}, err
	}

	c.Object = object

	return c, nil
}
