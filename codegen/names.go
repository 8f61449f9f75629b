package codegen

import (
	"go/token"
	"go/types"
	"strings"
	"unicode"
)

var initialisms = map[string]string{
	"api":  "API",
	"http": "HTTP",
	"id":   "ID",
	"ip":   "IP",
	"json": "JSON",
	"uri":  "URI",
	"url":  "URL",
	"uuid": "UUID",
	"sql":  "SQL",
}

// splitWords breaks snake_case, kebab-case and camelCase names into
// lower-case words.
func splitWords(name string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && len(cur) > 0) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// GoName converts a configuration name into an exported Go identifier:
// "create_item" and "createItem" both become "CreateItem"; "user_id"
// becomes "UserID".
func GoName(name string) string {
	var b strings.Builder
	for _, w := range splitWords(name) {
		if up, ok := initialisms[w]; ok {
			b.WriteString(up)
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// unexported lower-cases the first word of an exported identifier.
func unexported(name string) string {
	words := splitWords(name)
	if len(words) == 0 {
		return ""
	}
	return words[0] + strings.TrimPrefix(GoName(name), GoName(words[0]))
}

// SnakeName converts a configuration name into a file-name stem.
func SnakeName(name string) string {
	return strings.Join(splitWords(name), "_")
}

// identifierProblem explains why name cannot be used for generated code,
// or returns "" when it can.
func identifierProblem(name string) string {
	switch {
	case strings.TrimSpace(name) == "":
		return "name is empty"
	case token.IsKeyword(name):
		return "collides with Go keyword"
	case types.Universe.Lookup(name) != nil:
		return "collides with Go predeclared identifier"
	}
	ident := GoName(name)
	if ident == "" || !token.IsIdentifier(ident) {
		return "does not yield a valid Go identifier"
	}
	return ""
}
