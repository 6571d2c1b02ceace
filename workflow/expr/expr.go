package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrUndefinedVariable is returned when an expression references a name absent from vars.
var ErrUndefinedVariable = errors.New("undefined variable")

// Evaluate evaluates a condition expression against vars and returns its truthiness.
// Supported operators: || && ! == != === !== > < >= <= + - * / %
// Supported literals: numbers, quoted strings ("..." or '...'), true, false, null
// Variables are bare dot paths (lease.status) or placeholders (${status}).
// Nothing outside this grammar is ever executed.
func Evaluate(expr string, vars map[string]any) (bool, error) {
	val, err := Eval(expr, vars)
	if err != nil {
		return false, err
	}
	return toBool(val), nil
}

// Eval evaluates an expression and returns its raw value.
func Eval(expr string, vars map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, vars: vars}
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].value, p.pos)
	}
	return val, nil
}

// Check reports whether expr is well formed without evaluating it.
// Variables are not resolved and arithmetic is not performed.
func Check(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("empty expression")
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return err
	}
	p := &parser{tokens: tokens, check: true}
	if _, err := p.parseOr(); err != nil {
		return err
	}
	if p.pos < len(p.tokens) {
		return fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].value, p.pos)
	}
	return nil
}

// --- Token types ---

type tokenKind int

const (
	tkNumber tokenKind = iota // 42, 0.8
	tkString                  // "hello", 'hello'
	tkIdent                   // variable path or true/false/null
	tkOp                      // operators
	tkLParen                  // (
	tkRParen                  // )
)

type token struct {
	kind  tokenKind
	value string
}

// --- Tokenizer ---

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		switch ch {
		case '(':
			tokens = append(tokens, token{tkLParen, "("})
			i++
			continue
		case ')':
			tokens = append(tokens, token{tkRParen, ")"})
			i++
			continue
		case '"', '\'':
			s, n, err := readString(runes, i, ch)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s})
			i = n
			continue
		}

		// ${name} placeholder
		if ch == '$' {
			if i+1 >= len(runes) || runes[i+1] != '{' {
				return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
			}
			end := i + 2
			for end < len(runes) && runes[end] != '}' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("unterminated placeholder at position %d", i)
			}
			name := strings.TrimSpace(string(runes[i+2 : end]))
			if name == "" {
				return nil, fmt.Errorf("empty placeholder at position %d", i)
			}
			tokens = append(tokens, token{tkIdent, name})
			i = end + 1
			continue
		}

		if i+2 < len(runes) {
			three := string(runes[i : i+3])
			if three == "===" || three == "!==" {
				tokens = append(tokens, token{tkOp, three[:2]})
				i += 3
				continue
			}
		}

		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			switch two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tkOp, two})
				i += 2
				continue
			}
		}

		switch ch {
		case '>', '<', '!', '+', '-', '*', '/', '%':
			tokens = append(tokens, token{tkOp, string(ch)})
			i++
			continue
		}

		if isDigit(ch) {
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num})
			i = n
			continue
		}

		if isIdentStart(ch) {
			ident, n := readIdent(runes, i)
			tokens = append(tokens, token{tkIdent, ident})
			i = n
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}

	return tokens, nil
}

func readString(runes []rune, start int, quote rune) (string, int, error) {
	i := start + 1
	var sb strings.Builder
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

// --- Recursive descent parser ---

type parser struct {
	tokens []token
	pos    int
	vars   map[string]any
	// check 只做语法检查
	check bool
}

func (p *parser) peekOp(ops ...string) (string, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tkOp {
		return "", false
	}
	v := p.tokens[p.pos].value
	for _, op := range ops {
		if v == op {
			return v, true
		}
	}
	return "", false
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// parseOr handles: expr || expr
func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.advance()
		if !p.check && toBool(left) {
			// 短路：右侧只做语法检查
			if err := p.skip(p.parseAnd); err != nil {
				return nil, err
			}
			left = true
			continue
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = toBool(left) || toBool(right)
	}
}

// parseAnd handles: expr && expr
func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.advance()
		if !p.check && !toBool(left) {
			if err := p.skip(p.parseComparison); err != nil {
				return nil, err
			}
			left = false
			continue
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = toBool(left) && toBool(right)
	}
}

// skip 在检查模式下解析一个已被短路的操作数
func (p *parser) skip(parse func() (any, error)) error {
	p.check = true
	defer func() { p.check = false }()
	_, err := parse()
	return err
}

// parseComparison handles: sum (==|!=|>|<|>=|<=) sum
func (p *parser) parseComparison() (any, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=")
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return compare(left, op, right), nil
}

// parseSum handles: term ((+|-) term)*
func (p *parser) parseSum() (any, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+", "-")
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if p.check {
			continue
		}
		left, err = arithmetic(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

// parseTerm handles: unary ((*|/|%) unary)*
func (p *parser) parseTerm() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if p.check {
			continue
		}
		left, err = arithmetic(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

// parseUnary handles: !expr, -expr, primary
func (p *parser) parseUnary() (any, error) {
	if op, ok := p.peekOp("!", "-"); ok {
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == "!" {
			return !toBool(val), nil
		}
		if p.check {
			return nil, nil
		}
		f, ok := toFloat64(val)
		if !ok {
			return nil, fmt.Errorf("cannot negate non-numeric value %v", val)
		}
		return -f, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles: literals, identifiers, parenthesized expressions
func (p *parser) parsePrimary() (any, error) {
	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	t := p.tokens[p.pos]

	switch t.kind {
	case tkNumber:
		p.advance()
		return strconv.ParseFloat(t.value, 64)

	case tkString:
		p.advance()
		return t.value, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "nil":
			return nil, nil
		}
		if p.check {
			return nil, nil
		}
		return resolveVar(t.value, p.vars)

	case tkLParen:
		p.advance()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return val, nil

	default:
		return nil, fmt.Errorf("unexpected token %q", t.value)
	}
}

// --- Evaluation helpers ---

// resolveVar resolves a dot path. A missing name at any level is an error.
func resolveVar(path string, vars map[string]any) (any, error) {
	if v, ok := vars[path]; ok {
		return v, nil
	}
	var current any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndefinedVariable, path)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndefinedVariable, path)
		}
	}
	return current, nil
}

func arithmetic(left any, op string, right any) (any, error) {
	if op == "+" {
		if ls, ok := left.(string); ok {
			return ls + fmt.Sprint(right), nil
		}
		if rs, ok := right.(string); ok {
			if _, isNum := toFloat64(left); !isNum {
				return fmt.Sprint(left) + rs, nil
			}
		}
	}

	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s requires numeric operands, got %v and %v", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

// compare evaluates a comparison between two values.
// nil is treated as less than any non-nil value; two nils are equal.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func toBool(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
