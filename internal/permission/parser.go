package permission

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token in a condition.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	TokenIdent  // column name
	TokenVar    // {userId}, {organizationId}, {roles}
	TokenString // 'hello'
	TokenNumber // 123, 45.67

	TokenEq // =
	TokenNe // != or <>
	TokenLt // <
	TokenLe // <=
	TokenGt // >
	TokenGe // >=

	TokenLParen // (
	TokenRParen // )

	TokenAnd   // AND
	TokenOr    // OR
	TokenIs    // IS
	TokenNot   // NOT
	TokenNull  // NULL
	TokenTrue  // TRUE
	TokenFalse // FALSE
)

// String renders the operator form of a token for error messages and
// expression formatting.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of condition"
	case TokenEq:
		return "="
	case TokenNe:
		return "!="
	case TokenLt:
		return "<"
	case TokenLe:
		return "<="
	case TokenGt:
		return ">"
	case TokenGe:
		return ">="
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenIs:
		return "IS"
	case TokenNot:
		return "NOT"
	case TokenNull:
		return "NULL"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenIdent:
		return "identifier"
	case TokenVar:
		return "variable"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	}
	return "illegal"
}

type token struct {
	typ TokenType
	lit string
	pos int
}

var conditionKeywords = map[string]TokenType{
	"AND":   TokenAnd,
	"OR":    TokenOr,
	"IS":    TokenIs,
	"NOT":   TokenNot,
	"NULL":  TokenNull,
	"TRUE":  TokenTrue,
	"FALSE": TokenFalse,
}

// lexCondition tokenizes a condition string. Keywords are case-insensitive;
// identifiers keep their original case.
func lexCondition(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{TokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{TokenRParen, ")", i})
			i++
		case c == '=':
			tokens = append(tokens, token{TokenEq, "=", i})
			i++
		case c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{TokenNe, "!=", i})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
		case c == '<':
			switch {
			case i+1 < len(input) && input[i+1] == '=':
				tokens = append(tokens, token{TokenLe, "<=", i})
				i += 2
			case i+1 < len(input) && input[i+1] == '>':
				tokens = append(tokens, token{TokenNe, "<>", i})
				i += 2
			default:
				tokens = append(tokens, token{TokenLt, "<", i})
				i++
			}
		case c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{TokenGe, ">=", i})
				i += 2
			} else {
				tokens = append(tokens, token{TokenGt, ">", i})
				i++
			}
		case c == '{':
			end := strings.IndexByte(input[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated variable at position %d", i)
			}
			name := input[i+1 : i+end]
			tokens = append(tokens, token{TokenVar, name, i})
			i += end + 1
		case c == '\'':
			lit, consumed, err := lexString(input[i:])
			if err != nil {
				return nil, fmt.Errorf("%w at position %d", err, i)
			}
			tokens = append(tokens, token{TokenString, lit, i})
			i += consumed
		case unicode.IsDigit(c):
			start := i
			for i < len(input) && (unicode.IsDigit(rune(input[i])) || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{TokenNumber, input[start:i], start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || unicode.IsDigit(rune(input[i])) || input[i] == '_') {
				i++
			}
			word := input[start:i]
			if kw, ok := conditionKeywords[strings.ToUpper(word)]; ok {
				tokens = append(tokens, token{kw, word, start})
			} else {
				tokens = append(tokens, token{TokenIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	tokens = append(tokens, token{TokenEOF, "", len(input)})
	return tokens, nil
}

// lexString consumes a single-quoted string literal with '' escaping.
// Returns the unescaped value and the number of input bytes consumed.
func lexString(input string) (string, int, error) {
	var sb strings.Builder
	i := 1 // skip opening quote
	for i < len(input) {
		if input[i] == '\'' {
			if i+1 < len(input) && input[i+1] == '\'' {
				sb.WriteByte('\'')
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(input[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

// parser is a recursive-descent parser over the condition token stream.
// Grammar (precedence low to high):
//
//	or      := and (OR and)*
//	and     := cmp (AND cmp)*
//	cmp     := operand (op operand | IS [NOT] NULL)
//	operand := column | variable | literal | '(' or ')'
type parser struct {
	tokens []token
	pos    int
}

// ParseCondition parses a custom permission condition into its typed AST.
// Parsing happens once at schema load; errors are configuration errors.
func ParseCondition(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("condition is empty")
	}
	tokens, err := lexCondition(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().typ != TokenEOF {
		return nil, fmt.Errorf("unexpected %s after condition", p.peek().typ)
	}
	return expr, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.typ != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenOr, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == TokenAnd {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenAnd, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.typ {
	case TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Op: tok.typ, Right: right}, nil
	case TokenIs:
		p.next()
		negated := false
		if p.peek().typ == TokenNot {
			p.next()
			negated = true
		}
		if tok := p.next(); tok.typ != TokenNull {
			return nil, fmt.Errorf("expected NULL after IS, got %s", tok.typ)
		}
		return &NullCheck{Operand: left, Negated: negated}, nil
	}

	// A bare parenthesized boolean sub-expression is valid on its own.
	if isBoolean(left) {
		return left, nil
	}
	return nil, fmt.Errorf("expected comparison operator after %s", FormatExpr(left))
}

func (p *parser) parseOperand() (Expr, error) {
	switch tok := p.next(); tok.typ {
	case TokenIdent:
		return &ColumnRef{Name: tok.lit}, nil
	case TokenVar:
		switch tok.lit {
		case VarUserID, VarOrganizationID, VarRoles:
			return &VarRef{Name: tok.lit}, nil
		}
		return nil, fmt.Errorf("unknown variable {%s} (expected {userId}, {organizationId}, or {roles})", tok.lit)
	case TokenString:
		return &Literal{Type: LiteralString, String: tok.lit}, nil
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.lit, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.lit)
		}
		return &Literal{Type: LiteralNumber, Number: n}, nil
	case TokenTrue:
		return &Literal{Type: LiteralBool, Bool: true}, nil
	case TokenFalse:
		return &Literal{Type: LiteralBool}, nil
	case TokenNull:
		return &Literal{Type: LiteralNull}, nil
	case TokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.typ != TokenRParen {
			return nil, fmt.Errorf("expected ), got %s", tok.typ)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected %s", tok.typ)
	}
}

func isBoolean(e Expr) bool {
	switch n := e.(type) {
	case *NullCheck:
		return true
	case *BinaryExpr:
		return true
	case *Literal:
		return n.Type == LiteralBool
	}
	return false
}
