package consolidate

import (
	"fmt"
	"slices"

	"github.com/petal-labs/toolforge/inventory"
)

// Coverage relates methods to the enabled tools that expose them.
type Coverage struct {
	Methods int `json:"methods"`
	Tools   int `json:"tools"`
	// Uncovered lists methods that no enabled tool binds.
	Uncovered []string `json:"uncovered"`
	// ToolsByMethod lists the enabled tools bound to each method.
	ToolsByMethod map[string][]string `json:"tools_by_method"`
	// Unbound lists enabled tools without a method binding.
	Unbound []string `json:"unbound,omitempty"`
	// Dangling lists tools bound to a method that does not exist.
	Dangling []string `json:"dangling,omitempty"`
	Disabled []string `json:"disabled,omitempty"`
}

// ComputeCoverage derives coverage from a catalog.
func ComputeCoverage(cat *inventory.Catalog) Coverage {
	cov := Coverage{Uncovered: []string{}, ToolsByMethod: map[string][]string{}}
	if cat == nil {
		return cov
	}
	methods := cat.Methods.Names()
	cov.Methods = len(methods)
	for _, m := range methods {
		cov.ToolsByMethod[m] = []string{}
	}

	for _, t := range cat.Tools.All() {
		cov.Tools++
		switch {
		case !t.IsEnabled():
			cov.Disabled = append(cov.Disabled, t.Name)
		case !t.Bound():
			cov.Unbound = append(cov.Unbound, t.Name)
		case !cat.Methods.Has(t.Method):
			cov.Dangling = append(cov.Dangling, t.Name)
		default:
			cov.ToolsByMethod[t.Method] = append(cov.ToolsByMethod[t.Method], t.Name)
		}
	}
	for _, m := range methods {
		if len(cov.ToolsByMethod[m]) == 0 {
			cov.Uncovered = append(cov.Uncovered, m)
		}
	}
	slices.Sort(cov.Uncovered)
	return cov
}

// Ratio is the share of methods with at least one tool; 1 when there are
// no methods.
func (c Coverage) Ratio() float64 {
	if c.Methods == 0 {
		return 1
	}
	return float64(c.Methods-len(c.Uncovered)) / float64(c.Methods)
}

// String is the one-line coverage summary.
func (c Coverage) String() string {
	n := len(c.Uncovered)
	noun := "methods have"
	if n == 1 {
		noun = "method has"
	}
	return fmt.Sprintf("%d %s zero tool coverage (%d of %d covered)", n, noun, c.Methods-n, c.Methods)
}
