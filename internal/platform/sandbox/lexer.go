package sandbox

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  Pos
}

// Longest operators first so "**=" wins over "**" and "*".
var operators = []string{
	"**=", "//=",
	"**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=",
	"+", "-", "*", "/", "%", "<", ">", "=", "(", ")", "[", "]", ",", ":", ".", ";",
}

type lexer struct {
	src         string
	i           int
	line        int
	col         int
	depth       int
	indents     []int
	toks        []token
	atLineStart bool
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1, col: 1, indents: []int{0}, atLineStart: true}
	for {
		if lx.atLineStart && lx.depth == 0 {
			if err := lx.indentation(); err != nil {
				return nil, err
			}
		}
		if lx.i >= len(lx.src) {
			break
		}
		c := lx.src[lx.i]
		switch {
		case c == '\n':
			if lx.depth == 0 {
				lx.newline()
				lx.atLineStart = true
			}
			lx.advance()
		case c == ' ' || c == '\t' || c == '\r':
			lx.advance()
		case c == '#':
			for lx.i < len(lx.src) && lx.src[lx.i] != '\n' {
				lx.advance()
			}
		case c == '\\' && lx.peekAt(1) == '\n':
			lx.advance()
			lx.advance()
		case isDigit(c) || (c == '.' && isDigit(lx.peekAt(1))):
			lx.number()
		case isIdentStart(c):
			lx.name()
		case c == '\'' || c == '"':
			if err := lx.str(c); err != nil {
				return nil, err
			}
		default:
			if err := lx.operator(); err != nil {
				return nil, err
			}
		}
	}
	if lx.depth > 0 {
		return nil, &SyntaxError{Pos: lx.pos(), Msg: "unexpected end of input inside brackets"}
	}
	lx.newline()
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.emit(tokDedent, "")
	}
	lx.emit(tokEOF, "")
	return lx.toks, nil
}

func (lx *lexer) pos() Pos {
	return Pos{Line: lx.line, Col: lx.col}
}

func (lx *lexer) peekAt(offset int) byte {
	if lx.i+offset < len(lx.src) {
		return lx.src[lx.i+offset]
	}
	return 0
}

func (lx *lexer) advance() {
	if lx.src[lx.i] == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	lx.i++
}

func (lx *lexer) emit(kind tokenKind, text string) {
	lx.toks = append(lx.toks, token{kind: kind, text: text, pos: lx.pos()})
}

func (lx *lexer) emitAt(kind tokenKind, text string, pos Pos) {
	lx.toks = append(lx.toks, token{kind: kind, text: text, pos: pos})
}

func (lx *lexer) newline() {
	if len(lx.toks) == 0 {
		return
	}
	switch lx.toks[len(lx.toks)-1].kind {
	case tokNewline, tokIndent, tokDedent:
		return
	}
	lx.emit(tokNewline, "")
}

// indentation measures the leading whitespace of a logical line and emits
// INDENT/DEDENT tokens. Blank and comment-only lines are ignored.
func (lx *lexer) indentation() error {
	width := 0
scan:
	for lx.i < len(lx.src) {
		switch lx.src[lx.i] {
		case ' ':
			width++
		case '\t':
			width += 8 - width%8
		case '\r':
		default:
			break scan
		}
		lx.advance()
	}
	lx.atLineStart = false
	if lx.i >= len(lx.src) || lx.src[lx.i] == '\n' || lx.src[lx.i] == '#' {
		return nil
	}
	top := lx.indents[len(lx.indents)-1]
	if width > top {
		lx.indents = append(lx.indents, width)
		lx.emit(tokIndent, "")
		return nil
	}
	for width < lx.indents[len(lx.indents)-1] {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.emit(tokDedent, "")
	}
	if width != lx.indents[len(lx.indents)-1] {
		return &SyntaxError{Pos: lx.pos(), Msg: "unindent does not match any outer indentation level"}
	}
	return nil
}

func (lx *lexer) number() {
	start, pos := lx.i, lx.pos()
	for lx.i < len(lx.src) && isDigit(lx.src[lx.i]) {
		lx.advance()
	}
	if lx.i < len(lx.src) && lx.src[lx.i] == '.' {
		lx.advance()
		for lx.i < len(lx.src) && isDigit(lx.src[lx.i]) {
			lx.advance()
		}
	}
	if lx.i < len(lx.src) && (lx.src[lx.i] == 'e' || lx.src[lx.i] == 'E') {
		next := lx.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(lx.peekAt(2))) {
			lx.advance()
			if next == '+' || next == '-' {
				lx.advance()
			}
			for lx.i < len(lx.src) && isDigit(lx.src[lx.i]) {
				lx.advance()
			}
		}
	}
	lx.emitAt(tokNumber, lx.src[start:lx.i], pos)
}

func (lx *lexer) name() {
	start, pos := lx.i, lx.pos()
	for lx.i < len(lx.src) && isIdentPart(lx.src[lx.i]) {
		lx.advance()
	}
	lx.emitAt(tokName, lx.src[start:lx.i], pos)
}

func (lx *lexer) str(quote byte) error {
	pos := lx.pos()
	lx.advance()
	var b strings.Builder
	for {
		if lx.i >= len(lx.src) || lx.src[lx.i] == '\n' {
			return &SyntaxError{Pos: pos, Msg: "unterminated string literal"}
		}
		c := lx.src[lx.i]
		if c == quote {
			lx.advance()
			break
		}
		if c == '\\' && lx.i+1 < len(lx.src) {
			lx.advance()
			switch e := lx.src[lx.i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			lx.advance()
			continue
		}
		b.WriteByte(c)
		lx.advance()
	}
	lx.emitAt(tokString, b.String(), pos)
	return nil
}

func (lx *lexer) operator() error {
	pos := lx.pos()
	rest := lx.src[lx.i:]
	for _, op := range operators {
		if !strings.HasPrefix(rest, op) {
			continue
		}
		for range op {
			lx.advance()
		}
		switch op {
		case "(", "[":
			lx.depth++
		case ")", "]":
			if lx.depth == 0 {
				return &SyntaxError{Pos: pos, Msg: "unmatched " + op}
			}
			lx.depth--
		}
		lx.emitAt(tokOp, op, pos)
		return nil
	}
	return &SyntaxError{Pos: pos, Msg: "unexpected character " + string(rest[0])}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// dedent strips the whitespace prefix shared by every non-blank line so
// scripts pasted with a uniform indent still parse.
func dedent(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	lines := strings.Split(src, "\n")
	prefix := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		n := len(line) - len(trimmed)
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return src
	}
	for i, line := range lines {
		if len(line) >= prefix && strings.TrimLeft(line[:prefix], " \t") == "" {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
