package policyopa

import "github.com/open-policy-agent/opa/ast"

// Status policies only compare strings and booleans. Anything that reaches
// outside the input document is left out.
var allowedBuiltins = map[string]struct{}{
	"assign":     {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"lower":      {},
	"neq":        {},
	"object.get": {},
	"split":      {},
	"sprintf":    {},
	"startswith": {},
	"trim":       {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
