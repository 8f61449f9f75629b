package constraint

import "testing"

func TestParseTypeExpr(t *testing.T) {
	tests := []struct {
		src     string
		check   func(exprNode) bool
		wantErr bool
	}{
		{src: "integer", check: func(n exprNode) bool { return n.name == "integer" }},
		{src: "Bool", check: func(n exprNode) bool { return n.name == "boolean" }},
		{src: "array", check: func(n exprNode) bool { return n.name == "array" && n.elem == nil }},
		{src: "array<array<int>>", check: func(n exprNode) bool {
			return n.elem != nil && n.elem.elem != nil && n.elem.elem.name == "integer"
		}},
		{src: "string | null", check: func(n exprNode) bool { return len(n.alts) == 2 && n.alts[1].name == "null" }},
		{src: `enum("a b", 'c', 3, true, bare)`, check: func(n exprNode) bool {
			return len(n.literals) == 5 && n.literals[0] == "a b" && n.literals[2] == 3.0 && n.literals[3] == true && n.literals[4] == "bare"
		}},
		{src: "literal[x]", check: func(n exprNode) bool { return len(n.literals) == 1 }},
		{src: "date-time", check: func(n exprNode) bool { return n.name == "date-time" }},
		{src: "array<string", wantErr: true},
		{src: "enum()", wantErr: true},
		{src: "enum(a b)", wantErr: true},
		{src: "string|", wantErr: true},
		{src: "widget", wantErr: true},
		{src: "string extra", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			node, err := parseTypeExpr(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTypeExpr(%q) error = %v, wantErr %v", tt.src, err, tt.wantErr)
			}
			if err == nil && !tt.check(node) {
				t.Fatalf("parseTypeExpr(%q) = %+v", tt.src, node)
			}
		})
	}
}
