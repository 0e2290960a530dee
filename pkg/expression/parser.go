package expression

import (
	"strconv"
)

// precedence levels, lowest to highest binding.
const (
	precNone = iota
	precTernary
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

var binaryPrec = map[TokenKind]int{
	TokOrOr:    precOr,
	TokAndAnd:  precAnd,
	TokPipe:    precBitOr,
	TokCaret:   precBitXor,
	TokAmp:     precBitAnd,
	TokEq:      precEquality,
	TokNeq:     precEquality,
	TokLt:      precRelational,
	TokGt:      precRelational,
	TokLe:      precRelational,
	TokGe:      precRelational,
	TokShl:     precShift,
	TokShr:     precShift,
	TokPlus:    precAdditive,
	TokMinus:   precAdditive,
	TokStar:    precMultiplicative,
	TokSlash:   precMultiplicative,
	TokPercent: precMultiplicative,
}

var binaryOpFor = map[TokenKind]BinaryOp{
	TokOrOr:    OpOr,
	TokAndAnd:  OpAnd,
	TokPipe:    OpBitOr,
	TokCaret:   OpBitXor,
	TokAmp:     OpBitAnd,
	TokEq:      OpEq,
	TokNeq:     OpNeq,
	TokLt:      OpLt,
	TokGt:      OpGt,
	TokLe:      OpLe,
	TokGe:      OpGe,
	TokShl:     OpShl,
	TokShr:     OpShr,
	TokPlus:    OpAdd,
	TokMinus:   OpSub,
	TokStar:    OpMul,
	TokSlash:   OpDiv,
	TokPercent: OpMod,
}

// Parser is a hand-written precedence-climbing (Pratt) parser over the
// token stream produced by Lexer. It parses a single expression and
// reports a SyntaxError if trailing tokens remain.
type Parser struct {
	lex  *Lexer
	cur  Token
	peek Token
}

// Parse compiles an expression string into an AST.
func Parse(src string) (Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	expr, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != TokEOF {
		return nil, &SyntaxError{Msg: "unexpected trailing input", At: p.cur.At}
	}
	return expr, nil
}

func newParser(src string) (*Parser, error) {
	p := &Parser{lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.cur.Kind != k {
		return Token{}, &SyntaxError{Msg: "expected " + what, At: p.cur.At}
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// parseExpr implements precedence climbing: parse a unary/primary operand,
// then fold in binary operators whose precedence is >= minPrec.
func (p *Parser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		if p.cur.Kind == TokQuestion && minPrec <= precTernary {
			left, err = p.parseTernary(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		opPrec, ok := binaryPrec[p.cur.Kind]
		if !ok || opPrec < minPrec {
			return left, nil
		}
		opTok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(opPrec + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: binaryOpFor[opTok.Kind], Left: left, Right: right, At: opTok.At}
	}
}

func (p *Parser) parseTernary(cond Expr) (Expr, error) {
	qAt := p.cur.At
	if err := p.advance(); err != nil { // consume '?'
		return nil, err
	}
	thenExpr, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon, "':' in ternary expression"); err != nil {
		return nil, err
	}
	elseExpr, err := p.parseExpr(precTernary)
	if err != nil {
		return nil, err
	}
	return &Ternary{Cond: cond, Then: thenExpr, Else: elseExpr, At: qAt}, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur.Kind {
	case TokBang:
		at := p.cur.At
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, Expr: e, At: at}, nil
	case TokTilde:
		at := p.cur.At
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpBitNot, Expr: e, At: at}, nil
	case TokMinus:
		at := p.cur.At
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNeg, Expr: e, At: at}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.Kind {
		case TokDot:
			dotAt := p.cur.At
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.expect(TokIdent, "identifier after '.'")
			if err != nil {
				return nil, err
			}
			if name.Text == "as" && p.cur.Kind == TokLt {
				typeName, err := p.parseCastType()
				if err != nil {
					return nil, err
				}
				expr = &Cast{Value: expr, TypeName: typeName, At: dotAt}
				// `.as<Type>()` is followed by an empty call in the surface
				// syntax; consume it if present.
				if p.cur.Kind == TokLParen {
					if err := p.advance(); err != nil {
						return nil, err
					}
					if _, err := p.expect(TokRParen, "')' after as<Type>("); err != nil {
						return nil, err
					}
				}
				continue
			}
			expr = &Attr{Value: expr, Name: name.Text, At: dotAt}
		case TokLParen:
			at := p.cur.At
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &Call{Callee: expr, Args: args, At: at}
		case TokLBracket:
			at := p.cur.At
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr(precTernary)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "']'"); err != nil {
				return nil, err
			}
			expr = &Index{Value: expr, Idx: idx, At: at}
		default:
			return expr, nil
		}
	}
}

// parseCastType parses the `<TypeName>` portion of `.as<TypeName>`. The
// lexer tokenizes `<` as TokLt; type names are a single identifier,
// possibly with `::`-style nested scoping collapsed into dotted access
// upstream by the schema compiler.
func (p *Parser) parseCastType() (string, error) {
	if _, err := p.expect(TokLt, "'<' in as<Type> cast"); err != nil {
		return "", err
	}
	name, err := p.expect(TokIdent, "type name in as<Type> cast")
	if err != nil {
		return "", err
	}
	if _, err := p.expect(TokGt, "'>' closing as<Type> cast"); err != nil {
		return "", err
	}
	return name.Text, nil
}

func (p *Parser) parseArgs() ([]Expr, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Expr
	if p.cur.Kind == TokRParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return args, nil
	}
	for {
		arg, err := p.parseExpr(precTernary)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.Kind == TokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur
	switch tok.Kind {
	case TokInt:
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := ParseIntLiteral(tok.Text)
		if err != nil {
			return nil, &SyntaxError{Msg: "invalid integer literal " + tok.Text, At: tok.At}
		}
		return &IntLit{Value: v, At: tok.At}, nil
	case TokFloat:
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &SyntaxError{Msg: "invalid float literal " + tok.Text, At: tok.At}
		}
		return &FloatLit{Value: v, At: tok.At}, nil
	case TokString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StringLit{Value: tok.Text, At: tok.At}, nil
	case TokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &BoolLit{Value: true, At: tok.At}, nil
	case TokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &BoolLit{Value: false, At: tok.At}, nil
	case TokNull:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NullLit{At: tok.At}, nil
	case TokIdent:
		return p.parseIdentOrBuiltin(tok)
	case TokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(precTernary)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, &SyntaxError{Msg: "unexpected token in expression", At: tok.At}
}

func (p *Parser) parseIdentOrBuiltin(tok Token) (Expr, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	switch tok.Text {
	case "_":
		return &Self{At: tok.At}, nil
	case "_io":
		return &Io{At: tok.At}, nil
	case "_parent":
		return &Parent{At: tok.At}, nil
	case "_root":
		return &Root{At: tok.At}, nil
	case "_bytes_remaining":
		return &BytesRemaining{At: tok.At}, nil
	case "sizeof":
		if p.cur.Kind == TokLt {
			// sizeof<type> form: treat the bracketed name as a bare ident arg.
			typeName, err := p.parseCastType()
			if err != nil {
				return nil, err
			}
			return &SizeOf{Value: &Ident{Name: typeName, At: tok.At}, At: tok.At}, nil
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, &SyntaxError{Msg: "sizeof() takes exactly one argument", At: tok.At}
		}
		return &SizeOf{Value: args[0], At: tok.At}, nil
	case "alignof":
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, &SyntaxError{Msg: "alignof() takes exactly one argument", At: tok.At}
		}
		return &AlignOf{Value: args[0], At: tok.At}, nil
	}
	return &Ident{Name: tok.Text, At: tok.At}, nil
}
