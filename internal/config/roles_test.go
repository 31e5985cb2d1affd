package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRoles_Defaults(t *testing.T) {
	roles, err := LoadRoles("")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}

	if !roles.Valid("admin") || !roles.Valid("hr_staff") {
		t.Error("built-in roles missing")
	}
	if roles.Valid("intern") {
		t.Error("Valid(intern) = true, want false")
	}
	if !roles.ValidCategory("hr") || roles.ValidCategory("secret") {
		t.Error("ValidCategory mismatch for built-in categories")
	}

	cats, ok := roles.Permitted("developer")
	if !ok {
		t.Fatal("Permitted(developer) = not found")
	}
	want := map[string]bool{"service": true, "rnd": true}
	if len(cats) != 2 {
		t.Fatalf("developer categories = %v, want 2", cats)
	}
	for _, c := range cats {
		if !want[c] {
			t.Errorf("unexpected category %q", c)
		}
	}
}

func TestRoles_RateLimits(t *testing.T) {
	roles, err := LoadRoles("")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}
	if got := roles.RateLimit("admin"); got != 50 {
		t.Errorf("RateLimit(admin) = %d, want 50", got)
	}
	// Unknown roles get the conservative default.
	if got := roles.RateLimit("nobody"); got != 5 {
		t.Errorf("RateLimit(nobody) = %d, want 5", got)
	}
}

func TestLoadRoles_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	content := `{
		"categories": ["docs", "internal"],
		"permissions": {
			"reader": ["docs"],
			"editor": ["docs", "internal"]
		},
		"rate_limits": {"editor": 30}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing roles file: %v", err)
	}

	roles, err := LoadRoles(path)
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}

	// Custom file replaces the built-ins entirely.
	if roles.Valid("admin") {
		t.Error("built-in role survived a custom roles file")
	}
	if !roles.Valid("reader") || !roles.Valid("editor") {
		t.Error("custom roles missing")
	}
	if got := roles.RateLimit("editor"); got != 30 {
		t.Errorf("RateLimit(editor) = %d, want 30", got)
	}
}

func TestLoadRoles_RejectsUndeclaredCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	content := `{
		"categories": ["docs"],
		"permissions": {"reader": ["docs", "secret"]}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing roles file: %v", err)
	}

	if _, err := LoadRoles(path); err == nil {
		t.Error("LoadRoles with undeclared category succeeded, want error")
	}
}

func TestLoadRoles_RejectsRateLimitForUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	content := `{
		"categories": ["docs"],
		"permissions": {"reader": ["docs"]},
		"rate_limits": {"ghost": 10}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing roles file: %v", err)
	}

	if _, err := LoadRoles(path); err == nil {
		t.Error("LoadRoles with rate limit for unknown role succeeded, want error")
	}
}

func TestRoles_Names(t *testing.T) {
	roles, err := LoadRoles("")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}
	names := roles.Names()
	if len(names) != 10 {
		t.Errorf("Names = %d roles, want 10", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names not sorted: %q before %q", names[i-1], names[i])
		}
	}
}
