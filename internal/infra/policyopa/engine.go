package policyopa

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"sigqueue/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const decisionQuery = "data.sigqueue.status.decision"

//go:embed default_status.rego
var defaultStatusPolicy string

type Engine struct {
	query rego.PreparedEvalQuery
}

// NewDefaultEngine binds a transaction's status to the account that
// submitted it. Transactions without a recorded owner stay visible.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, "default_status.rego", defaultStatusPolicy)
}

func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status policy: %w", err)
	}
	return NewEngine(ctx, path, string(src))
}

func NewEngine(ctx context.Context, name, module string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(decisionQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, module),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare status policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input domain.StatusAccessInput) (domain.StatusAccessDecision, error) {
	if e == nil {
		return domain.StatusAccessDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.StatusAccessDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.StatusAccessDecision{}, errors.New("empty policy result")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.StatusAccessDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.StatusAccessDecision{}, err
	}
	var decision domain.StatusAccessDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.StatusAccessDecision{}, err
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
