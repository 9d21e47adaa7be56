package authz

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/vyrodovalexey/langgate/internal/auth"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// Built-in policy expressions.
const (
	ExprAdminOnly    = `identity.role == "admin"`
	ExprOwnerOrAdmin = `identity.role == "admin" || (identity.id != "" && "id" in params && identity.id == params.id)`
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func celEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("identity", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("params", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("method", cel.StringType),
		)
	})
	return env, envErr
}

// Policy is a compiled authorization rule.
type Policy struct {
	name       string
	expression string
	program    cel.Program
}

// Compile parses and type-checks expression.
func Compile(name, expression string) (*Policy, error) {
	if name == "" {
		return nil, util.NewConfigError("authz.policy.name", "is required")
	}
	e, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	ast, issues := e.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, util.NewConfigErrorWithCause("authz.policy."+name, "failed to compile expression", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, util.NewConfigError("authz.policy."+name,
			fmt.Sprintf("expression must return bool, got %s", ast.OutputType()))
	}

	prg, err := e.Program(ast)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("authz.policy."+name, "failed to build program", err)
	}
	return &Policy{name: name, expression: expression, program: prg}, nil
}

// MustCompile is Compile that panics on error, for built-in policies.
func MustCompile(name, expression string) *Policy {
	p, err := Compile(name, expression)
	if err != nil {
		panic(err)
	}
	return p
}

// AdminOnly admits administrators.
func AdminOnly() *Policy {
	return MustCompile("admin_only", ExprAdminOnly)
}

// OwnerOrAdmin admits administrators and the user named by the ":id" path
// parameter.
func OwnerOrAdmin() *Policy {
	return MustCompile("owner_or_admin", ExprOwnerOrAdmin)
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.name
}

// Expression returns the source expression.
func (p *Policy) Expression() string {
	return p.expression
}

// Evaluate runs the policy. An evaluation error denies.
func (p *Policy) Evaluate(id auth.Identity, params map[string]string, method string) (bool, error) {
	if params == nil {
		params = map[string]string{}
	}
	out, _, err := p.program.Eval(map[string]any{
		"identity": map[string]string{
			"id":    id.ID,
			"role":  id.Role,
			"name":  id.Name,
			"email": id.Email,
		},
		"params": params,
		"method": method,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating policy %s: %w", p.name, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy %s returned %T, want bool", p.name, out.Value())
	}
	return allowed, nil
}
