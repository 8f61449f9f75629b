package constraint

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// exprNode is a parsed type expression.
type exprNode struct {
	// name is a primitive or format name; empty for arrays, enums and unions.
	name     string
	elem     *exprNode
	literals []any
	alts     []exprNode
}

var typeAliases = map[string]string{
	"int":   "integer",
	"float": "number",
	"str":   "string",
	"bool":  "boolean",
	"list":  "array",
	"map":   "object",
	"dict":  "object",
}

var primitiveNames = map[string]Kind{
	"integer": KindInteger,
	"number":  KindNumber,
	"string":  KindString,
	"boolean": KindBoolean,
	"object":  KindObject,
	"array":   KindArray,
	"any":     KindAny,
}

// formatNames are semantic string formats usable both as a type name and in
// the format field.
var formatNames = map[string]struct{}{
	"email":     {},
	"uri":       {},
	"uuid":      {},
	"date":      {},
	"date-time": {},
	"hostname":  {},
	"ipv4":      {},
	"ipv6":      {},
}

// parseTypeExpr parses expressions such as "string|null", "array<integer>"
// and "enum(asc, desc)".
func parseTypeExpr(src string) (exprNode, error) {
	p := &exprParser{src: src}
	node, err := p.parseUnion()
	if err != nil {
		return exprNode{}, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return exprNode{}, fmt.Errorf("type %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return node, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parseUnion() (exprNode, error) {
	first, err := p.parseAlt()
	if err != nil {
		return exprNode{}, err
	}
	alts := []exprNode{first}
	for {
		p.skipSpace()
		if !p.consume('|') {
			break
		}
		next, err := p.parseAlt()
		if err != nil {
			return exprNode{}, err
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return first, nil
	}
	return exprNode{alts: alts}, nil
}

func (p *exprParser) parseAlt() (exprNode, error) {
	p.skipSpace()
	word := p.word()
	if word == "" {
		return exprNode{}, p.errorf("expected a type name")
	}
	lower := strings.ToLower(word)
	if alias, ok := typeAliases[lower]; ok {
		lower = alias
	}

	switch lower {
	case "array":
		p.skipSpace()
		if !p.consume('<') {
			return exprNode{name: "array"}, nil
		}
		elem, err := p.parseUnion()
		if err != nil {
			return exprNode{}, err
		}
		p.skipSpace()
		if !p.consume('>') {
			return exprNode{}, p.errorf("expected '>'")
		}
		return exprNode{elem: &elem}, nil
	case "enum", "literal":
		p.skipSpace()
		if !p.consume('(') && !p.consume('[') {
			return exprNode{}, p.errorf("expected '(' after enum")
		}
		literals, err := p.literals()
		if err != nil {
			return exprNode{}, err
		}
		return exprNode{literals: literals}, nil
	case "null", "none":
		return exprNode{name: "null"}, nil
	}

	if _, ok := primitiveNames[lower]; ok {
		return exprNode{name: lower}, nil
	}
	if _, ok := formatNames[lower]; ok {
		return exprNode{name: lower}, nil
	}
	return exprNode{}, fmt.Errorf("type %q: unknown type name %q", p.src, word)
}

func (p *exprParser) literals() ([]any, error) {
	var out []any
	for {
		p.skipSpace()
		if p.consume(')') || p.consume(']') {
			break
		}
		if len(out) > 0 {
			if !p.consume(',') {
				return nil, p.errorf("expected ',' between enum values")
			}
			p.skipSpace()
		}
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		out = append(out, lit)
	}
	if len(out) == 0 {
		return nil, p.errorf("enum needs at least one value")
	}
	return out, nil
}

func (p *exprParser) literal() (any, error) {
	if p.pos < len(p.src) && (p.src[p.pos] == '"' || p.src[p.pos] == '\'') {
		quote := p.src[p.pos]
		end := strings.IndexByte(p.src[p.pos+1:], quote)
		if end < 0 {
			return nil, p.errorf("unterminated string literal")
		}
		s := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return s, nil
	}
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(",)] ", rune(p.src[p.pos])) {
		p.pos++
	}
	raw := p.src[start:p.pos]
	if raw == "" {
		return nil, p.errorf("expected enum value")
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, nil
	}
	return raw, nil
}

func (p *exprParser) word() string {
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *exprParser) consume(b byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("type %q: %s at offset %d", p.src, fmt.Sprintf(format, args...), p.pos)
}
