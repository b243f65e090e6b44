package engine

import (
	"context"

	"pkm-prototype/backend/internal/user/domain"
)

// MenuItem is one entry of the role-filtered main menu.
type MenuItem struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Modules []string `json:"modules,omitempty"`
}

// Evaluator evaluates the menu permission policy using OPA or other engines.
type Evaluator interface {
	// Menu returns the menu entries visible to role. Unknown roles get the guest menu.
	Menu(ctx context.Context, role domain.Role) ([]MenuItem, error)
}
