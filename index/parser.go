package index

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// QueryParser turns query text into a Query.
//
// Grammar, loosest binding first:
//
//	a OR b          either side
//	a AND b, a b    both sides
//	NOT a, -a       exclude; +a requires
//	(a), field:value, field:(a b), "a phrase", *
//
// Values of numeric and date fields also accept >N, >=N, <N, <=N,
// [a TO b] and {a TO b} with * as an open bound. Dates are RFC 3339
// timestamps or YYYY-MM-DD. Keywords are recognized in upper case only.
type QueryParser struct {
	schema   *Schema
	defaults []Field
}

// NewQueryParser returns a parser that searches unqualified values in
// defaultFields.
func NewQueryParser(schema *Schema, defaultFields []Field) *QueryParser {
	return &QueryParser{schema: schema, defaults: slices.Clone(defaultFields)}
}

// Parse parses text. Errors are *SyntaxError values.
func (qp *QueryParser) Parse(text string) (Query, error) {
	p := &parser{src: text, schema: qp.schema, defaults: qp.defaults}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf(0, "empty query")
	}
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		if p.peek() == ')' {
			return nil, p.errorf(p.pos, "unbalanced ')'")
		}
		return nil, p.errorf(p.pos, "unexpected %q", p.peek())
	}
	return q, nil
}

type parser struct {
	src      string
	pos      int
	schema   *Schema
	defaults []Field
}

func (p *parser) errorf(offset int, format string, args ...any) error {
	return &SyntaxError{Query: p.src, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() {
		r, n := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += n
	}
}

// atKeyword reports whether the next bare word is kw.
func (p *parser) atKeyword(kw string) bool {
	if !strings.HasPrefix(p.src[p.pos:], kw) {
		return false
	}
	end := p.pos + len(kw)
	return end == len(p.src) || isTerminator(p.src[end])
}

// atClauseEnd reports whether no further operand follows.
func (p *parser) atClauseEnd() bool {
	return p.eof() || p.peek() == ')' || p.atKeyword("OR") || p.atKeyword("AND")
}

func isTerminator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' || c == '"'
}

func (p *parser) parseOr() (Query, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	alts := []Query{first}
	for {
		p.skipSpace()
		if !p.atKeyword("OR") {
			break
		}
		at := p.pos
		p.pos += len("OR")
		p.skipSpace()
		if p.atClauseEnd() {
			return nil, p.errorf(at, "OR without right operand")
		}
		q, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		alts = append(alts, q)
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	clauses := make([]Clause, len(alts))
	for i, q := range alts {
		clauses[i] = Clause{Occur: Should, Query: q}
	}
	return NewBooleanQuery(clauses...), nil
}

func (p *parser) parseAnd() (Query, error) {
	var clauses []Clause
	for {
		p.skipSpace()
		if p.atKeyword("AND") || p.atKeyword("OR") {
			return nil, p.errorf(p.pos, "operator without left operand")
		}
		q, neg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		occur := Must
		if neg {
			occur = MustNot
		}
		clauses = append(clauses, Clause{Occur: occur, Query: q})

		p.skipSpace()
		if p.atKeyword("AND") {
			at := p.pos
			p.pos += len("AND")
			p.skipSpace()
			if p.atClauseEnd() {
				return nil, p.errorf(at, "AND without right operand")
			}
			continue
		}
		if p.eof() || p.peek() == ')' || p.atKeyword("OR") {
			break
		}
	}
	if len(clauses) == 1 && clauses[0].Occur == Must {
		return clauses[0].Query, nil
	}
	return NewBooleanQuery(clauses...), nil
}

// parseUnary returns the operand and whether it is negated.
func (p *parser) parseUnary() (Query, bool, error) {
	p.skipSpace()
	if p.eof() {
		return nil, false, p.errorf(p.pos, "missing operand")
	}
	at := p.pos
	switch {
	case p.atKeyword("NOT"):
		p.pos += len("NOT")
	case p.peek() == '-':
		p.pos++
	case p.peek() == '+':
		p.pos++
		p.skipSpace()
		if p.atClauseEnd() {
			return nil, false, p.errorf(at, "'+' without operand")
		}
		return p.parseUnary()
	default:
		q, err := p.parsePrimary()
		return q, false, err
	}
	p.skipSpace()
	if p.atClauseEnd() {
		return nil, false, p.errorf(at, "NOT without operand")
	}
	q, neg, err := p.parseUnary()
	return q, !neg, err
}

func (p *parser) parsePrimary() (Query, error) {
	at := p.pos
	switch p.peek() {
	case '(':
		return p.parseGroup()
	case ')':
		return nil, p.errorf(at, "unbalanced ')'")
	case '"':
		phrase, err := p.readQuoted()
		if err != nil {
			return nil, err
		}
		return p.defaultQuery(phrase, at)
	}

	word := p.readWord()
	if word == "*" {
		return NewAllQuery(), nil
	}
	if i := strings.IndexByte(word, ':'); i > 0 {
		name, rest := word[:i], word[i+1:]
		f, ok := p.schema.Field(name)
		if !ok {
			return nil, p.errorf(at, "unknown field %q", name)
		}
		// re-scan the value: it may be a group, phrase or range
		p.pos = at + i + 1
		if rest == "" && (p.eof() || isSpaceByte(p.peek())) {
			return nil, p.errorf(at, "missing value for field %q", name)
		}
		return p.parseFieldValue(f, at)
	}
	return p.defaultQuery(word, at)
}

func isSpaceByte(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (p *parser) parseGroup() (Query, error) {
	open := p.pos
	p.pos++
	p.skipSpace()
	if !p.eof() && p.peek() == ')' {
		return nil, p.errorf(open, "empty group")
	}
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.eof() || p.peek() != ')' {
		return nil, p.errorf(open, "unbalanced '('")
	}
	p.pos++
	return q, nil
}

// readWord consumes a bare word.
func (p *parser) readWord() string {
	start := p.pos
	for !p.eof() && !isTerminator(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// readQuoted consumes a double-quoted string. \" and \\ are escapes.
func (p *parser) readQuoted() (string, error) {
	open := p.pos
	p.pos++
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			sb.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case c == '"':
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf(open, "unbalanced '\"'")
}

// defaultQuery searches value in every default field.
func (p *parser) defaultQuery(value string, at int) (Query, error) {
	if len(p.defaults) == 0 {
		return nil, p.errorf(at, "no default fields for unqualified value %q", value)
	}
	var alts []Query
	var firstErr error
	for _, f := range p.defaults {
		q, err := p.valueQuery(f, value, at)
		if err != nil {
			// numeric defaults only match values of their type
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		alts = append(alts, q)
	}
	switch len(alts) {
	case 0:
		return nil, firstErr
	case 1:
		return alts[0], nil
	}
	clauses := make([]Clause, len(alts))
	for i, q := range alts {
		clauses[i] = Clause{Occur: Should, Query: q}
	}
	return NewBooleanQuery(clauses...), nil
}

// valueQuery builds the query for one value of f.
func (p *parser) valueQuery(f Field, value string, at int) (Query, error) {
	e := p.schema.Entry(f)
	if e.Type == FieldText {
		tokens := Analyze(e.Tokenizer, value)
		switch len(tokens) {
		case 0:
			return NewBooleanQuery(), nil
		case 1:
			return NewTermQuery(TextTerm(f, tokens[0].Text)), nil
		default:
			return NewPhraseQuery(f, tokens), nil
		}
	}
	v, err := p.numericValue(e, value, at)
	if err != nil {
		return nil, err
	}
	return NewTermQuery(Term{Field: f, Value: v}), nil
}

func (p *parser) numericValue(e FieldEntry, s string, at int) (Value, error) {
	v, err := parseValue(e.Type, s)
	if err != nil {
		return Value{}, p.errorf(at, "field %q expects a %s value, got %q", e.Name, e.Type, s)
	}
	return v, nil
}

// parseFieldValue parses the value of the field qualifier starting at at.
func (p *parser) parseFieldValue(f Field, at int) (Query, error) {
	e := p.schema.Entry(f)
	valueAt := p.pos
	switch c := p.peek(); {
	case c == '(':
		saved := p.defaults
		p.defaults = []Field{f}
		defer func() { p.defaults = saved }()
		return p.parseGroup()
	case c == '"':
		value, err := p.readQuoted()
		if err != nil {
			return nil, err
		}
		return p.valueQuery(f, value, valueAt)
	case c == '[' || c == '{':
		return p.parseRange(f, e, at)
	case c == '>' || c == '<':
		return p.parseComparison(f, e, at)
	}

	word := p.readWord()
	if word == "*" {
		if !e.Type.Numeric() {
			return nil, p.errorf(at, "wildcard on text field %q", e.Name)
		}
		return NewRangeQuery(f, nil, nil), nil
	}
	return p.valueQuery(f, word, valueAt)
}

func (p *parser) parseComparison(f Field, e FieldEntry, at int) (Query, error) {
	if !e.Type.Numeric() {
		return nil, p.errorf(at, "comparison on text field %q", e.Name)
	}
	op := string(p.peek())
	p.pos++
	if !p.eof() && p.peek() == '=' {
		op += "="
		p.pos++
	}
	valueAt := p.pos
	word := p.readWord()
	if word == "" {
		return nil, p.errorf(at, "missing value after %q", op)
	}
	v, err := p.numericValue(e, word, valueAt)
	if err != nil {
		return nil, err
	}
	switch op {
	case ">":
		return NewRangeQuery(f, Exclusive(v), nil), nil
	case ">=":
		return NewRangeQuery(f, Inclusive(v), nil), nil
	case "<":
		return NewRangeQuery(f, nil, Exclusive(v)), nil
	default:
		return NewRangeQuery(f, nil, Inclusive(v)), nil
	}
}

func (p *parser) parseRange(f Field, e FieldEntry, at int) (Query, error) {
	open := p.pos
	lowerInclusive := p.peek() == '['
	end := strings.IndexAny(p.src[open+1:], "]}")
	if end < 0 {
		return nil, p.errorf(open, "unbalanced range")
	}
	end += open + 1
	upperInclusive := p.src[end] == ']'
	body := strings.Fields(p.src[open+1 : end])
	p.pos = end + 1

	if len(body) != 3 || body[1] != "TO" {
		return nil, p.errorf(open, "range must look like [a TO b]")
	}
	if !e.Type.Numeric() {
		return nil, p.errorf(at, "range on text field %q", e.Name)
	}

	bound := func(s string, inclusive bool) (*Bound, error) {
		if s == "*" {
			return nil, nil
		}
		v, err := p.numericValue(e, s, open)
		if err != nil {
			return nil, err
		}
		return &Bound{Value: v, Inclusive: inclusive}, nil
	}
	lo, err := bound(body[0], lowerInclusive)
	if err != nil {
		return nil, err
	}
	hi, err := bound(body[2], upperInclusive)
	if err != nil {
		return nil, err
	}
	return NewRangeQuery(f, lo, hi), nil
}
