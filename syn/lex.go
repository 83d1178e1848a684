// Package syn is the front end of the query language. It turns source text into ast trees.
package syn

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smackem/redis-q-sub000/ast"
)

// Error is a compilation error with the source position it was detected at.
type Error struct {
	Pos ast.Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos.Loc(), e.Msg)
}

type tokType uint8

const (
	tEOF tokType = iota
	tIdent
	tInt
	tReal
	tStr
	tChar
	tPunct
)

type token struct {
	typ tokType
	txt string
	pos ast.Pos
}

func (t token) String() string {
	switch t.typ {
	case tEOF:
		return "end of input"
	case tStr:
		return fmt.Sprintf("string %q", t.txt)
	}
	return fmt.Sprintf("%q", t.txt)
}

// puncts lists the operator tokens, longer tokens first.
var puncts = []string{
	"..", "??", "==", "!=", "<=", ">=", "=~", "!~", "&&", "||",
	"(", ")", "[", "]", ",", ".", ":", "?", "+", "-", "*", "/", "%", "<", ">", "!", "~", "=",
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var res []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
		if t.typ == tEOF {
			return res, nil
		}
	}
}

func (l *lexer) peek(n int) byte {
	if l.off+n < len(l.src) {
		return l.src[l.off+n]
	}
	return 0
}

func (l *lexer) adv(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		if l.src[l.off] == '\n' {
			l.line++
			l.col = 1
		} else if l.src[l.off]&0xC0 != 0x80 {
			l.col++
		}
		l.off++
	}
}

func (l *lexer) errf(pos ast.Pos, f string, args ...interface{}) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(f, args...)}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	pos := ast.Pos{Line: l.line, Col: l.col}
	if l.off >= len(l.src) {
		return token{typ: tEOF, pos: pos}, nil
	}
	c := l.src[l.off]
	switch {
	case c == '"' || c == '\'':
		s, err := l.quoted(pos, c)
		return token{tStr, s, pos}, err
	case c == 'c' && l.peek(1) == '\'':
		l.adv(1)
		s, err := l.quoted(pos, '\'')
		if err != nil {
			return token{}, err
		}
		if utf8.RuneCountInString(s) != 1 {
			return token{}, l.errf(pos, "char literal must contain exactly one character")
		}
		return token{tChar, s, pos}, nil
	case isDigit(c):
		return l.number(pos)
	case c == '_' || c < utf8.RuneSelf && unicode.IsLetter(rune(c)):
		start := l.off
		for l.off < len(l.src) {
			c := l.src[l.off]
			if c >= utf8.RuneSelf || c != '_' && !isDigit(c) && !unicode.IsLetter(rune(c)) {
				break
			}
			l.adv(1)
		}
		return token{tIdent, l.src[start:l.off], pos}, nil
	}
	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.off:], p) {
			l.adv(len(p))
			return token{tPunct, p, pos}, nil
		}
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	return token{}, l.errf(pos, "unexpected character %q", r)
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == '#':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.adv(1)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.adv(1)
		default:
			return
		}
	}
}

func (l *lexer) number(pos ast.Pos) (token, error) {
	start, typ := l.off, tInt
	for isDigit(l.peek(0)) {
		l.adv(1)
	}
	// a single dot followed by a digit continues the number, two dots are the range operator
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		typ = tReal
		l.adv(1)
		for isDigit(l.peek(0)) {
			l.adv(1)
		}
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		n := 1
		if s := l.peek(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peek(n)) {
			typ = tReal
			l.adv(n)
			for isDigit(l.peek(0)) {
				l.adv(1)
			}
		}
	}
	if c := l.peek(0); c == '_' || c < utf8.RuneSelf && unicode.IsLetter(rune(c)) {
		return token{}, l.errf(pos, "invalid number literal %s%c", l.src[start:l.off], c)
	}
	return token{typ, l.src[start:l.off], pos}, nil
}

func (l *lexer) quoted(pos ast.Pos, q byte) (string, error) {
	l.adv(1)
	var b strings.Builder
	for {
		if l.off >= len(l.src) {
			return "", l.errf(pos, "unterminated string literal")
		}
		c := l.src[l.off]
		switch c {
		case q:
			l.adv(1)
			return b.String(), nil
		case '\\':
			e := l.peek(1)
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				return "", l.errf(ast.Pos{Line: l.line, Col: l.col}, "invalid escape \\%c", e)
			}
			l.adv(2)
		default:
			b.WriteByte(c)
			l.adv(1)
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
