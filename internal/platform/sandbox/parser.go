package sandbox

import (
	"strings"

	"github.com/shopspring/decimal"
)

// forbiddenKeywords never parse; they are refused as violations so rule
// authors get a clear message instead of a syntax error.
var forbiddenKeywords = map[string]string{
	"import":   "import statement",
	"from":     "import statement",
	"while":    "while loop",
	"def":      "function definition",
	"class":    "class definition",
	"lambda":   "lambda expression",
	"global":   "global statement",
	"nonlocal": "nonlocal statement",
	"with":     "with statement",
	"try":      "try statement",
	"except":   "try statement",
	"finally":  "try statement",
	"raise":    "raise statement",
	"del":      "del statement",
	"yield":    "yield expression",
	"return":   "return statement",
	"async":    "async construct",
	"await":    "await expression",
	"assert":   "assert statement",
	"exec":     "exec call",
	"eval":     "eval call",
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"if": true, "elif": true, "else": true, "for": true,
	"pass": true, "break": true, "continue": true,
	"True": true, "False": true, "None": true,
}

var augmented = map[string]string{
	"+=": "+", "-=": "-", "*=": "*", "/=": "/", "//=": "//", "%=": "%", "**=": "**",
}

// MaxDepth bounds how deeply expressions and blocks may nest. Long operator
// chains count too since they build equally deep trees.
const MaxDepth = 200

type parser struct {
	toks  []token
	p     int
	loops int
	depth int
}

// descend counts one more level of nesting at pos.
func (ps *parser) descend(pos Pos) error {
	ps.depth++
	if ps.depth > MaxDepth {
		return &Violation{Pos: pos, Construct: "nesting too deep"}
	}
	return nil
}

func (ps *parser) restore(depth int) {
	ps.depth = depth
}

func (ps *parser) peek() token {
	return ps.toks[ps.p]
}

func (ps *parser) peekAt(offset int) token {
	if ps.p+offset < len(ps.toks) {
		return ps.toks[ps.p+offset]
	}
	return ps.toks[len(ps.toks)-1]
}

func (ps *parser) next() token {
	t := ps.toks[ps.p]
	if ps.p < len(ps.toks)-1 {
		ps.p++
	}
	return t
}

func (ps *parser) isOp(op string) bool {
	t := ps.peek()
	return t.kind == tokOp && t.text == op
}

func (ps *parser) isKeyword(word string) bool {
	t := ps.peek()
	return t.kind == tokName && t.text == word
}

func (ps *parser) expectOp(op string) (token, error) {
	t := ps.peek()
	if t.kind != tokOp || t.text != op {
		return t, ps.unexpected(t, "expected "+op)
	}
	return ps.next(), nil
}

func (ps *parser) unexpected(t token, msg string) error {
	if v := forbidden(t); v != nil {
		return v
	}
	found := t.text
	switch t.kind {
	case tokEOF:
		found = "end of input"
	case tokNewline:
		found = "end of line"
	case tokIndent:
		found = "indent"
	case tokDedent:
		found = "dedent"
	}
	return &SyntaxError{Pos: t.pos, Msg: msg + ", found " + found}
}

func forbidden(t token) error {
	if t.kind != tokName {
		return nil
	}
	if construct, ok := forbiddenKeywords[t.text]; ok {
		return &Violation{Pos: t.pos, Construct: construct}
	}
	return nil
}

// checkIdent refuses dunder-style and private names.
func checkIdent(t token) error {
	if strings.HasPrefix(t.text, "_") || strings.HasSuffix(t.text, "_") {
		return &Violation{Pos: t.pos, Construct: "underscore name " + t.text}
	}
	return nil
}

func (ps *parser) skipNewlines() {
	for ps.peek().kind == tokNewline {
		ps.next()
	}
}

func parseExpression(toks []token) (expr, error) {
	ps := &parser{toks: toks}
	ps.skipNewlines()
	x, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	ps.skipNewlines()
	if t := ps.peek(); t.kind != tokEOF {
		return nil, ps.unexpected(t, "expected end of expression")
	}
	return x, nil
}

func parseBlock(toks []token) ([]stmt, error) {
	ps := &parser{toks: toks}
	var body []stmt
	for {
		ps.skipNewlines()
		t := ps.peek()
		if t.kind == tokEOF {
			return body, nil
		}
		if t.kind == tokIndent {
			return nil, &SyntaxError{Pos: t.pos, Msg: "unexpected indent"}
		}
		stmts, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
}

func (ps *parser) parseStatement() ([]stmt, error) {
	t := ps.peek()
	if v := forbidden(t); v != nil {
		return nil, v
	}
	if t.kind == tokName {
		switch t.text {
		case "if":
			s, err := ps.parseIf()
			if err != nil {
				return nil, err
			}
			return []stmt{s}, nil
		case "for":
			s, err := ps.parseFor()
			if err != nil {
				return nil, err
			}
			return []stmt{s}, nil
		}
	}
	return ps.parseSimpleLine()
}

func (ps *parser) parseSimpleLine() ([]stmt, error) {
	var out []stmt
	for {
		s, err := ps.parseSmall()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if !ps.isOp(";") {
			break
		}
		ps.next()
		if k := ps.peek().kind; k == tokNewline || k == tokEOF {
			break
		}
	}
	switch t := ps.peek(); t.kind {
	case tokNewline:
		ps.next()
	case tokEOF, tokDedent:
	default:
		return nil, ps.unexpected(t, "expected end of statement")
	}
	return out, nil
}

func (ps *parser) parseSmall() (stmt, error) {
	t := ps.peek()
	if v := forbidden(t); v != nil {
		return nil, v
	}
	if t.kind == tokName {
		switch t.text {
		case "pass":
			ps.next()
			return passStmt{}, nil
		case "break", "continue":
			ps.next()
			if ps.loops == 0 {
				return nil, &SyntaxError{Pos: t.pos, Msg: "'" + t.text + "' outside loop"}
			}
			if t.text == "break" {
				return breakStmt{}, nil
			}
			return continueStmt{}, nil
		}
	}

	x, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	op := ps.peek()
	if op.kind != tokOp {
		return &exprStmt{x: x}, nil
	}
	arith, isAug := augmented[op.text]
	if op.text != "=" && !isAug {
		return &exprStmt{x: x}, nil
	}
	target, ok := x.(*nameExpr)
	if !ok {
		return nil, &SyntaxError{Pos: x.position(), Msg: "only simple names can be assigned"}
	}
	ps.next()
	value, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	if ps.isOp("=") {
		return nil, &SyntaxError{Pos: ps.peek().pos, Msg: "chained assignment is not supported"}
	}
	return &assignStmt{pos: target.pos, name: target.name, op: arith, value: value}, nil
}

func (ps *parser) parseSuite() ([]stmt, error) {
	if _, err := ps.expectOp(":"); err != nil {
		return nil, err
	}
	if ps.peek().kind != tokNewline {
		return ps.parseSimpleLine()
	}
	ps.next()
	ps.skipNewlines()
	if t := ps.peek(); t.kind != tokIndent {
		return nil, &SyntaxError{Pos: t.pos, Msg: "expected an indented block"}
	}
	ps.next()
	var body []stmt
	for {
		ps.skipNewlines()
		t := ps.peek()
		if t.kind == tokDedent {
			ps.next()
			return body, nil
		}
		if t.kind == tokEOF {
			return body, nil
		}
		stmts, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
}

func (ps *parser) parseIf() (stmt, error) {
	defer ps.restore(ps.depth)
	if err := ps.descend(ps.next().pos); err != nil {
		return nil, err
	}
	s := &ifStmt{}
	for {
		cond, err := ps.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		s.conds = append(s.conds, cond)
		s.bodies = append(s.bodies, body)
		if !ps.isKeyword("elif") {
			break
		}
		ps.next()
	}
	if ps.isKeyword("else") {
		ps.next()
		els, err := ps.parseSuite()
		if err != nil {
			return nil, err
		}
		s.els = els
	}
	return s, nil
}

func (ps *parser) parseFor() (stmt, error) {
	defer ps.restore(ps.depth)
	start := ps.next()
	if err := ps.descend(start.pos); err != nil {
		return nil, err
	}
	target := ps.next()
	if target.kind != tokName || keywords[target.text] {
		return nil, ps.unexpected(target, "expected loop variable")
	}
	if err := checkIdent(target); err != nil {
		return nil, err
	}
	if !ps.isKeyword("in") {
		return nil, ps.unexpected(ps.peek(), "expected in")
	}
	ps.next()
	iter, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	ps.loops++
	body, err := ps.parseSuite()
	ps.loops--
	if err != nil {
		return nil, err
	}
	return &forStmt{pos: start.pos, name: target.text, iter: iter, body: body}, nil
}

func (ps *parser) parseExpr() (expr, error) {
	defer ps.restore(ps.depth)
	if err := ps.descend(ps.peek().pos); err != nil {
		return nil, err
	}
	x, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if !ps.isKeyword("if") {
		return x, nil
	}
	pos := ps.next().pos
	cond, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if !ps.isKeyword("else") {
		return nil, ps.unexpected(ps.peek(), "expected else")
	}
	ps.next()
	els, err := ps.parseExpr()
	if err != nil {
		return nil, err
	}
	return &condExpr{pos: pos, cond: cond, then: x, els: els}, nil
}

func (ps *parser) parseOr() (expr, error) {
	defer ps.restore(ps.depth)
	x, err := ps.parseAnd()
	if err != nil {
		return nil, err
	}
	for ps.isKeyword("or") {
		pos := ps.next().pos
		if err := ps.descend(pos); err != nil {
			return nil, err
		}
		y, err := ps.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &logicExpr{pos: pos, op: "or", x: x, y: y}
	}
	return x, nil
}

func (ps *parser) parseAnd() (expr, error) {
	defer ps.restore(ps.depth)
	x, err := ps.parseNot()
	if err != nil {
		return nil, err
	}
	for ps.isKeyword("and") {
		pos := ps.next().pos
		if err := ps.descend(pos); err != nil {
			return nil, err
		}
		y, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		x = &logicExpr{pos: pos, op: "and", x: x, y: y}
	}
	return x, nil
}

func (ps *parser) parseNot() (expr, error) {
	if ps.isKeyword("not") {
		defer ps.restore(ps.depth)
		pos := ps.next().pos
		if err := ps.descend(pos); err != nil {
			return nil, err
		}
		x, err := ps.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: pos, op: "not", x: x}, nil
	}
	return ps.parseComparison()
}

func (ps *parser) compareOp() (string, bool) {
	t := ps.peek()
	if t.kind == tokOp {
		switch t.text {
		case "<", ">", "==", ">=", "<=", "!=":
			ps.next()
			return t.text, true
		}
		return "", false
	}
	if t.kind != tokName {
		return "", false
	}
	switch t.text {
	case "in":
		ps.next()
		return "in", true
	case "not":
		if n := ps.peekAt(1); n.kind == tokName && n.text == "in" {
			ps.next()
			ps.next()
			return "not in", true
		}
	case "is":
		ps.next()
		if ps.isKeyword("not") {
			ps.next()
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (ps *parser) parseComparison() (expr, error) {
	defer ps.restore(ps.depth)
	first, err := ps.parseArith()
	if err != nil {
		return nil, err
	}
	var cmp *compareExpr
	for {
		pos := ps.peek().pos
		op, ok := ps.compareOp()
		if !ok {
			break
		}
		if err := ps.descend(pos); err != nil {
			return nil, err
		}
		y, err := ps.parseArith()
		if err != nil {
			return nil, err
		}
		if cmp == nil {
			cmp = &compareExpr{pos: first.position(), first: first}
		}
		cmp.ops = append(cmp.ops, op)
		cmp.rest = append(cmp.rest, y)
	}
	if cmp == nil {
		return first, nil
	}
	return cmp, nil
}

func (ps *parser) parseArith() (expr, error) {
	defer ps.restore(ps.depth)
	x, err := ps.parseTerm()
	if err != nil {
		return nil, err
	}
	for ps.isOp("+") || ps.isOp("-") {
		op := ps.next()
		if err := ps.descend(op.pos); err != nil {
			return nil, err
		}
		y, err := ps.parseTerm()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: y}
	}
	return x, nil
}

func (ps *parser) parseTerm() (expr, error) {
	defer ps.restore(ps.depth)
	x, err := ps.parseFactor()
	if err != nil {
		return nil, err
	}
	for ps.isOp("*") || ps.isOp("/") || ps.isOp("//") || ps.isOp("%") {
		op := ps.next()
		if err := ps.descend(op.pos); err != nil {
			return nil, err
		}
		y, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: y}
	}
	return x, nil
}

func (ps *parser) parseFactor() (expr, error) {
	if ps.isOp("-") || ps.isOp("+") {
		defer ps.restore(ps.depth)
		op := ps.next()
		if err := ps.descend(op.pos); err != nil {
			return nil, err
		}
		x, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: op.pos, op: op.text, x: x}, nil
	}
	return ps.parsePower()
}

func (ps *parser) parsePower() (expr, error) {
	x, err := ps.parsePrimary()
	if err != nil {
		return nil, err
	}
	if ps.isOp("**") {
		defer ps.restore(ps.depth)
		op := ps.next()
		if err := ps.descend(op.pos); err != nil {
			return nil, err
		}
		y, err := ps.parseFactor()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{pos: op.pos, op: "**", x: x, y: y}, nil
	}
	return x, nil
}

func (ps *parser) parsePrimary() (expr, error) {
	defer ps.restore(ps.depth)
	x, err := ps.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		if ps.isOp(".") || ps.isOp("[") || ps.isOp("(") {
			if err := ps.descend(ps.peek().pos); err != nil {
				return nil, err
			}
		}
		switch {
		case ps.isOp("."):
			ps.next()
			name := ps.next()
			if name.kind != tokName {
				return nil, ps.unexpected(name, "expected attribute name")
			}
			if err := checkIdent(name); err != nil {
				return nil, err
			}
			x = &attrExpr{pos: name.pos, obj: x, name: name.text}
		case ps.isOp("["):
			open := ps.next()
			key, err := ps.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := ps.expectOp("]"); err != nil {
				return nil, err
			}
			x = &indexExpr{pos: open.pos, obj: x, key: key}
		case ps.isOp("("):
			open := ps.next()
			call := &callExpr{pos: open.pos, fn: x}
			if err := ps.parseArgs(call); err != nil {
				return nil, err
			}
			x = call
		default:
			return x, nil
		}
	}
}

func (ps *parser) parseArgs(call *callExpr) error {
	for !ps.isOp(")") {
		if t, n := ps.peek(), ps.peekAt(1); t.kind == tokName && n.kind == tokOp && n.text == "=" {
			if err := checkIdent(t); err != nil {
				return err
			}
			ps.next()
			ps.next()
			val, err := ps.parseExpr()
			if err != nil {
				return err
			}
			call.kwargs = append(call.kwargs, kwarg{name: t.text, val: val})
		} else {
			if len(call.kwargs) > 0 {
				return &SyntaxError{Pos: t.pos, Msg: "positional argument follows keyword argument"}
			}
			arg, err := ps.parseExpr()
			if err != nil {
				return err
			}
			call.args = append(call.args, arg)
		}
		if !ps.isOp(",") {
			break
		}
		ps.next()
	}
	_, err := ps.expectOp(")")
	return err
}

func (ps *parser) parseAtom() (expr, error) {
	t := ps.peek()
	switch t.kind {
	case tokNumber:
		ps.next()
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: "invalid number " + t.text}
		}
		if err := checkNumber(t.pos, d); err != nil {
			return nil, err
		}
		return &literal{pos: t.pos, val: d}, nil
	case tokString:
		ps.next()
		return &literal{pos: t.pos, val: t.text}, nil
	case tokName:
		if v := forbidden(t); v != nil {
			return nil, v
		}
		switch t.text {
		case "True":
			ps.next()
			return &literal{pos: t.pos, val: true}, nil
		case "False":
			ps.next()
			return &literal{pos: t.pos, val: false}, nil
		case "None":
			ps.next()
			return &literal{pos: t.pos, val: nil}, nil
		}
		if keywords[t.text] {
			return nil, ps.unexpected(t, "unexpected keyword")
		}
		if err := checkIdent(t); err != nil {
			return nil, err
		}
		ps.next()
		return &nameExpr{pos: t.pos, name: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			ps.next()
			x, err := ps.parseExpr()
			if err != nil {
				return nil, err
			}
			if ps.isOp(",") {
				return nil, &SyntaxError{Pos: ps.peek().pos, Msg: "tuples are not supported"}
			}
			if _, err := ps.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return ps.parseList()
		}
	}
	return nil, ps.unexpected(t, "expected expression")
}

func (ps *parser) parseList() (expr, error) {
	open := ps.next()
	list := &listExpr{pos: open.pos}
	for !ps.isOp("]") {
		x, err := ps.parseExpr()
		if err != nil {
			return nil, err
		}
		if ps.isKeyword("for") {
			return nil, &Violation{Pos: ps.peek().pos, Construct: "comprehension"}
		}
		list.elems = append(list.elems, x)
		if !ps.isOp(",") {
			break
		}
		ps.next()
	}
	if _, err := ps.expectOp("]"); err != nil {
		return nil, err
	}
	return list, nil
}
