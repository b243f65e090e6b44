package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkm-prototype/backend/internal/user/domain"
)

func newEvaluator(t *testing.T, policy string) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func ids(items []MenuItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := newEvaluator(t, "").HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_MenuByRole(t *testing.T) {
	e := newEvaluator(t, "")
	cases := []struct {
		role domain.Role
		want []string
	}{
		{domain.RoleAdmin, []string{"master", "report", "profile"}},
		{domain.RoleUser, []string{"report", "profile"}},
		{domain.Role("guest"), []string{"profile"}},
		{domain.Role(""), []string{"profile"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			items, err := e.Menu(context.Background(), tc.role)
			if err != nil {
				t.Fatalf("Menu: %v", err)
			}
			got := ids(items)
			if len(got) != len(tc.want) {
				t.Fatalf("menu = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("menu = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestOPAEvaluator_AdminModules(t *testing.T) {
	items, err := newEvaluator(t, "").Menu(context.Background(), domain.RoleAdmin)
	if err != nil {
		t.Fatalf("Menu: %v", err)
	}
	if len(items[0].Modules) != 3 || items[0].Title != "Master Data" {
		t.Errorf("master entry = %+v", items[0])
	}
	if items[1].Modules != nil {
		t.Errorf("reports entry should have no modules: %+v", items[1])
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	custom := `package pkm.menu

default menu = []

menu = [{"id": "report", "title": "Reports"}] if {
	input.role == "admin"
}
`
	e := newEvaluator(t, custom)
	items, err := e.Menu(context.Background(), domain.RoleAdmin)
	if err != nil || len(items) != 1 || items[0].ID != "report" {
		t.Fatalf("admin: items=%+v err=%v", items, err)
	}
	items, err = e.Menu(context.Background(), domain.RoleUser)
	if err != nil || len(items) != 0 {
		t.Fatalf("user: items=%+v err=%v", items, err)
	}
}

func TestOPAEvaluator_UndefinedMenu(t *testing.T) {
	e := newEvaluator(t, "package pkm.menu\n\nother = true\n")
	if _, err := e.Menu(context.Background(), domain.RoleAdmin); !errors.Is(err, ErrNoResult) {
		t.Fatalf("err = %v, want ErrNoResult", err)
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package pkm.menu\n\nmenu = {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	p, err := LoadPolicyFile("")
	if err != nil || p != DefaultMenuPolicy {
		t.Fatalf("empty path: err=%v", err)
	}
	path := filepath.Join(t.TempDir(), "menu.rego")
	if err := os.WriteFile(path, []byte("package pkm.menu\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if p, err := LoadPolicyFile(path); err != nil || p != "package pkm.menu\n" {
		t.Fatalf("file: %q %v", p, err)
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Fatal("missing file should fail")
	}
}
