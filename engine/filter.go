package engine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ============================================================================
// FILTER — Row predicate expressions
// ============================================================================
// Small expression language for the `filter` option of a summary:
//
//	county == "X" and vehicles >= 1
//	mode != "SCHOOL_BUS" or (distance < 2 and purpose == "work")
//
// Comparisons are column OP literal with OP in == != < <= > >=. String
// literals are quoted (single or double), numeric literals bare. `and`/`or`
// (or &&/||) combine, `not`/! negates, parentheses group. A row with a
// missing cell in a compared column fails the comparison.
// ============================================================================

// Predicate is a compiled filter expression bound to no particular table.
type Predicate struct {
	expr string
	root predNode
}

// CompilePredicate parses a filter expression. Column existence is checked
// later, when the predicate is bound to a concrete table.
func CompilePredicate(expr string) (*Predicate, error) {
	toks, err := lexPredicate(expr)
	if err != nil {
		return nil, err
	}
	p := &predParser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("unexpected %q", p.peek().text)
	}
	return &Predicate{expr: expr, root: root}, nil
}

// Columns returns every column the expression references.
func (p *Predicate) Columns() []string {
	seen := make(map[string]bool)
	var out []string
	p.root.columns(func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	})
	return out
}

// Eval evaluates the predicate against one row.
func (p *Predicate) Eval(t *Table, row int) bool {
	return p.root.eval(t, row)
}

// ── AST ─────────────────────────────────────────────────────────────────────

type predNode interface {
	eval(t *Table, row int) bool
	columns(visit func(string))
}

type boolNode struct {
	and      bool
	children []predNode
}

func (n *boolNode) eval(t *Table, row int) bool {
	for _, c := range n.children {
		v := c.eval(t, row)
		if n.and && !v {
			return false
		}
		if !n.and && v {
			return true
		}
	}
	return n.and
}

func (n *boolNode) columns(visit func(string)) {
	for _, c := range n.children {
		c.columns(visit)
	}
}

type notNode struct{ child predNode }

func (n *notNode) eval(t *Table, row int) bool { return !n.child.eval(t, row) }
func (n *notNode) columns(visit func(string))  { n.child.columns(visit) }

type cmpNode struct {
	column string
	op     string
	isNum  bool
	num    float64
	str    string
}

func (n *cmpNode) columns(visit func(string)) { visit(n.column) }

func (n *cmpNode) eval(t *Table, row int) bool {
	col := t.Column(n.column)
	if col == nil || !col.IsValid(row) {
		return false
	}
	if n.isNum {
		var v float64
		switch col.Kind {
		case KindNumeric:
			v = col.Num[row]
		case KindText:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(col.Text[row]), 64)
			if err != nil {
				return false
			}
			v = parsed
		}
		return compareFloat(v, n.op, n.num)
	}
	cell, _ := col.Cell(row)
	return compareString(cell, n.op, n.str)
}

func compareFloat(a float64, op string, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func compareString(a, op, b string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

// ── Lexer ───────────────────────────────────────────────────────────────────

type predToken struct {
	kind string // "ident", "num", "str", "op", "lparen", "rparen", "and", "or", "not"
	text string
	num  float64
}

func lexPredicate(expr string) ([]predToken, error) {
	var toks []predToken
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, predToken{kind: "lparen", text: "("})
			i++
		case r == ')':
			toks = append(toks, predToken{kind: "rparen", text: ")"})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, predToken{kind: "str", text: string(runes[i+1 : j])})
			i = j + 1
		case strings.ContainsRune("=!<>", r):
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			i++
			switch op {
			case "=":
				return nil, fmt.Errorf("single '=' is not an operator, use '=='")
			case "!":
				toks = append(toks, predToken{kind: "not", text: "!"})
			default:
				toks = append(toks, predToken{kind: "op", text: op})
			}
		case r == '&' || r == '|':
			if i+1 >= len(runes) || runes[i+1] != r {
				return nil, fmt.Errorf("unexpected %q", string(r))
			}
			kind := "and"
			if r == '|' {
				kind = "or"
			}
			toks = append(toks, predToken{kind: kind, text: string([]rune{r, r})})
			i += 2
		case unicode.IsDigit(r) || r == '-' || r == '+' || r == '.':
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == 'e' || runes[j] == 'E' ||
				((runes[j] == '-' || runes[j] == '+') && (runes[j-1] == 'e' || runes[j-1] == 'E'))) {
				j++
			}
			text := string(runes[i:j])
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			toks = append(toks, predToken{kind: "num", text: text, num: v})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, predToken{kind: "and", text: word})
			case "or":
				toks = append(toks, predToken{kind: "or", text: word})
			case "not":
				toks = append(toks, predToken{kind: "not", text: word})
			default:
				toks = append(toks, predToken{kind: "ident", text: word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}
	return toks, nil
}

// ── Parser ──────────────────────────────────────────────────────────────────

type predParser struct {
	toks []predToken
	pos  int
}

func (p *predParser) eof() bool       { return p.pos >= len(p.toks) }
func (p *predParser) peek() predToken { return p.toks[p.pos] }
func (p *predParser) next() predToken { t := p.toks[p.pos]; p.pos++; return t }

func (p *predParser) accept(kind string) bool {
	if !p.eof() && p.peek().kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *predParser) parseOr() (predNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []predNode{left}
	for p.accept("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &boolNode{and: false, children: children}, nil
}

func (p *predParser) parseAnd() (predNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []predNode{left}
	for p.accept("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &boolNode{and: true, children: children}, nil
}

func (p *predParser) parseNot() (predNode, error) {
	if p.accept("not") {
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	}
	return p.parsePrimary()
}

func (p *predParser) parsePrimary() (predNode, error) {
	if p.accept("lparen") {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept("rparen") {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	}
	if p.eof() || p.peek().kind != "ident" {
		return nil, fmt.Errorf("expected column name")
	}
	column := p.next().text
	if p.eof() || p.peek().kind != "op" {
		return nil, fmt.Errorf("expected comparison operator after %q", column)
	}
	op := p.next().text
	if p.eof() {
		return nil, fmt.Errorf("expected literal after %q %s", column, op)
	}
	lit := p.next()
	switch lit.kind {
	case "num":
		return &cmpNode{column: column, op: op, isNum: true, num: lit.num}, nil
	case "str":
		return &cmpNode{column: column, op: op, str: lit.text}, nil
	case "ident":
		// Bare words compare as strings; lets configs write mode == walk.
		return &cmpNode{column: column, op: op, str: lit.text}, nil
	}
	return nil, fmt.Errorf("expected literal after %q %s, got %q", column, op, lit.text)
}
