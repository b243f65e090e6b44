package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"pkm-prototype/backend/internal/user/domain"
)

const menuQuery = "data.pkm.menu.menu"

// DefaultMenuPolicy maps roles to their menu. Master data is admin-only.
const DefaultMenuPolicy = `package pkm.menu

menus := {
	"admin": [
		{"id": "master", "title": "Master Data", "modules": ["items", "customers", "students"]},
		{"id": "report", "title": "Reports"},
		{"id": "profile", "title": "Profile"}
	],
	"user": [
		{"id": "report", "title": "Reports"},
		{"id": "profile", "title": "Profile"}
	]
}

default menu = [{"id": "profile", "title": "Profile"}]

menu = items if {
	items := menus[input.role]
}
`

// ErrNoResult is returned when the policy does not define a menu for the query.
var ErrNoResult = errors.New("policy query returned no result")

// OPAEvaluator evaluates the menu policy with an in-process OPA Rego engine. The policy is
// compiled once; Menu is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultMenuPolicy when empty) and prepares the menu query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = DefaultMenuPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"menu.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile menu policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(menuQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare menu query: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path yields DefaultMenuPolicy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultMenuPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read menu policy: %w", err)
	}
	return string(b), nil
}

// HealthCheck evaluates the prepared query for a known role. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Menu(ctx, domain.RoleUser)
	return err
}

// Menu evaluates the policy for role.
func (e *OPAEvaluator) Menu(ctx context.Context, role domain.Role) ([]MenuItem, error) {
	input := map[string]interface{}{"role": string(role)}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("eval menu policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, ErrNoResult
	}
	// Round-trip through JSON to map the generic Rego value onto MenuItem.
	raw, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("encode menu result: %w", err)
	}
	var items []MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode menu result: %w", err)
	}
	return items, nil
}
