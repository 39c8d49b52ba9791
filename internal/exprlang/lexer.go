// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exprlang implements the EM-√ scalar expression language (§4.B):
// column references, literals, binary/unary operators, evaluated against
// a row batch and row index. Per the §9 redesign note, parsing is a
// Pratt parser with the stated precedence table and parenthesis support
// (not the reference implementation's first-operator-wins parser).
package exprlang

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/logannye/emsqrt/internal/emerrors"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokIs
	tokNull
	tokLParen
	tokRParen
	tokEq
	tokNeq
	tokLt
	tokLte
	tokGt
	tokGte
	tokPlus
	tokMinus
	tokStar
	tokSlash
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src  []rune
	pos  int
}

func newLexer(src string) *lexer { return &lexer{src: []rune(src)} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
}

// next returns the next token in the stream.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case c == '+':
		l.pos++
		return token{kind: tokPlus}, nil
	case c == '-':
		l.pos++
		return token{kind: tokMinus}, nil
	case c == '*':
		l.pos++
		return token{kind: tokStar}, nil
	case c == '/':
		l.pos++
		return token{kind: tokSlash}, nil
	case c == '=':
		l.pos++
		if l.peekRune() == '=' {
			l.pos++
		}
		return token{kind: tokEq}, nil
	case c == '!':
		l.pos++
		if l.peekRune() == '=' {
			l.pos++
			return token{kind: tokNeq}, nil
		}
		return token{}, emerrors.New(emerrors.KindPlan, "unexpected character '!' in expression")
	case c == '<':
		l.pos++
		if l.peekRune() == '=' {
			l.pos++
			return token{kind: tokLte}, nil
		}
		return token{kind: tokLt}, nil
	case c == '>':
		l.pos++
		if l.peekRune() == '=' {
			l.pos++
			return token{kind: tokGte}, nil
		}
		return token{kind: tokGt}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	case unicode.IsDigit(c):
		return l.lexNumber()
	case unicode.IsLetter(c) || c == '_':
		return l.lexIdentOrKeyword()
	default:
		return token{}, emerrors.New(emerrors.KindPlan, "unexpected character %q in expression", c)
	}
}

func (l *lexer) lexString(quote rune) (token, error) {
	l.pos++ // consume opening quote
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{}, emerrors.New(emerrors.KindPlan, "unterminated string literal")
	}
	s := string(l.src[start:l.pos])
	l.pos++ // consume closing quote
	return token{kind: tokString, text: s}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: string(l.src[start:l.pos])}, nil
}

func (l *lexer) lexIdentOrKeyword() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	word := string(l.src[start:l.pos])
	switch strings.ToUpper(word) {
	case "AND":
		return token{kind: tokAnd}, nil
	case "OR":
		return token{kind: tokOr}, nil
	case "NOT":
		return token{kind: tokNot}, nil
	case "IS":
		return token{kind: tokIs}, nil
	case "NULL":
		return token{kind: tokNull}, nil
	case "TRUE":
		return token{kind: tokTrue}, nil
	case "FALSE":
		return token{kind: tokFalse}, nil
	default:
		return token{kind: tokIdent, text: word}, nil
	}
}

func (k tokenKind) String() string {
	return fmt.Sprintf("tok(%d)", k)
}
