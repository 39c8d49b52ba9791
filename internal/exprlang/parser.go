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

package exprlang

import (
	"strconv"

	"github.com/logannye/emsqrt/internal/emerrors"
	"github.com/logannye/emsqrt/internal/types"
)

// precedence table per §9's redesign note:
//   unary > *,/ > +,- > comparisons > AND > OR
// Larger numbers bind tighter.
const (
	precLowest = iota
	precOr
	precAnd
	precComparison
	precAdditive
	precMultiplicative
	precUnary
)

func binOpPrecedence(k tokenKind) (BinOp, int, bool) {
	switch k {
	case tokOr:
		return OpOr, precOr, true
	case tokAnd:
		return OpAnd, precAnd, true
	case tokEq:
		return OpEq, precComparison, true
	case tokNeq:
		return OpNeq, precComparison, true
	case tokLt:
		return OpLt, precComparison, true
	case tokLte:
		return OpLte, precComparison, true
	case tokGt:
		return OpGt, precComparison, true
	case tokGte:
		return OpGte, precComparison, true
	case tokPlus:
		return OpAdd, precAdditive, true
	case tokMinus:
		return OpSub, precAdditive, true
	case tokStar:
		return OpMul, precMultiplicative, true
	case tokSlash:
		return OpDiv, precMultiplicative, true
	default:
		return 0, 0, false
	}
}

// Parser is a hand-written Pratt parser over the expression language of
// §4.B, replacing the reference implementation's first-operator-wins
// scheme per the §9 redesign note.
type Parser struct {
	lex *lexer
	cur token
}

// Parse parses src as a complete expression, returning an error if
// trailing tokens remain.
func Parse(src string) (Expr, error) {
	p := &Parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr(precLowest)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, emerrors.New(emerrors.KindPlan, "unexpected trailing token at position %d", p.lex.pos)
	}
	return expr, nil
}

func (p *Parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		// `IS [NOT] NULL` binds at comparison precedence and is postfix,
		// so it is handled here rather than in binOpPrecedence.
		if p.cur.kind == tokIs && precComparison >= minPrec {
			if err := p.advance(); err != nil {
				return nil, err
			}
			negated := false
			if p.cur.kind == tokNot {
				negated = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if p.cur.kind != tokNull {
				return nil, emerrors.New(emerrors.KindPlan, "expected NULL after IS[ NOT]")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			left = IsNullCheck{Operand: left, Negated: negated}
			continue
		}
		op, prec, ok := binOpPrecedence(p.cur.kind)
		if !ok || prec < minPrec {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return Unary{Operand: operand}, nil
	}
	if p.cur.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return Binary{Op: OpSub, Left: Literal{Value: types.I64(0)}, Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, emerrors.New(emerrors.KindPlan, "expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ColumnRef{Name: name}, nil
	case tokNumber:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return parseNumberLiteral(text)
	case tokString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: types.Utf8(text)}, nil
	case tokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: types.Bool(true)}, nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: types.Bool(false)}, nil
	case tokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Literal{Value: types.Null()}, nil
	default:
		return nil, emerrors.New(emerrors.KindPlan, "unexpected token while parsing expression")
	}
}

func parseNumberLiteral(text string) (Expr, error) {
	for _, r := range text {
		if r == '.' {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, emerrors.New(emerrors.KindPlan, "invalid float literal %q", text)
			}
			return Literal{Value: types.F64(f)}, nil
		}
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, emerrors.New(emerrors.KindPlan, "invalid integer literal %q", text)
	}
	return Literal{Value: types.I64(i)}, nil
}
