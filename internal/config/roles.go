package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Roles is the validated role→permission mapping loaded at startup.
// It is immutable after Load; query serving only reads it.
type Roles struct {
	permissions map[string][]string
	rateLimits  map[string]int
	categories  map[string]bool
}

// rolesFile is the on-disk JSON shape for a custom roles file.
type rolesFile struct {
	Categories  []string            `json:"categories"`
	Permissions map[string][]string `json:"permissions"`
	RateLimits  map[string]int      `json:"rate_limits"`
}

// defaultRolesFile returns the built-in role set. Deployments with custom
// departments override it with a roles file.
func defaultRolesFile() rolesFile {
	return rolesFile{
		Categories: []string{"service", "rnd", "archive", "hr", "finance", "legal", "marketing"},
		Permissions: map[string][]string{
			"admin":           {"service", "rnd", "archive", "hr", "finance", "legal", "marketing"},
			"developer":       {"service", "rnd"},
			"service":         {"service"},
			"hr_manager":      {"service", "hr"},
			"hr_staff":        {"hr"},
			"finance_user":    {"service", "finance"},
			"finance_manager": {"service", "finance", "legal"},
			"legal_counsel":   {"service", "legal"},
			"marketing_lead":  {"service", "marketing", "rnd"},
			"executive":       {"service", "finance", "hr", "legal", "marketing"},
		},
		RateLimits: map[string]int{
			"admin":           50,
			"developer":       15,
			"service":         5,
			"hr_manager":      10,
			"hr_staff":        8,
			"finance_user":    8,
			"finance_manager": 12,
			"legal_counsel":   12,
			"marketing_lead":  15,
			"executive":       25,
		},
	}
}

// LoadRoles builds the role mapping. When path is empty the built-in
// defaults are used; otherwise the JSON file at path replaces them entirely.
// The mapping is validated: every permitted category must be declared, every
// role must have at least one category, and rate limits may only reference
// declared roles.
func LoadRoles(path string) (*Roles, error) {
	rf := defaultRolesFile()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading roles file: %w", err)
		}
		rf = rolesFile{}
		if err := json.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("parsing roles file %s: %w", path, err)
		}
	}
	return newRoles(rf)
}

func newRoles(rf rolesFile) (*Roles, error) {
	if len(rf.Categories) == 0 {
		return nil, fmt.Errorf("roles config declares no document categories")
	}
	if len(rf.Permissions) == 0 {
		return nil, fmt.Errorf("roles config declares no roles")
	}

	categories := make(map[string]bool, len(rf.Categories))
	for _, c := range rf.Categories {
		if c == "" {
			return nil, fmt.Errorf("roles config contains an empty category name")
		}
		categories[c] = true
	}

	permissions := make(map[string][]string, len(rf.Permissions))
	for role, cats := range rf.Permissions {
		if role == "" {
			return nil, fmt.Errorf("roles config contains an empty role name")
		}
		if len(cats) == 0 {
			return nil, fmt.Errorf("role %q has no permitted categories", role)
		}
		for _, c := range cats {
			if !categories[c] {
				return nil, fmt.Errorf("role %q permits undeclared category %q", role, c)
			}
		}
		permissions[role] = append([]string(nil), cats...)
	}

	for role := range rf.RateLimits {
		if _, ok := permissions[role]; !ok {
			return nil, fmt.Errorf("rate limit configured for unknown role %q", role)
		}
	}

	return &Roles{
		permissions: permissions,
		rateLimits:  rf.RateLimits,
		categories:  categories,
	}, nil
}

// Valid reports whether role is a declared role.
func (r *Roles) Valid(role string) bool {
	_, ok := r.permissions[role]
	return ok
}

// Permitted returns the closed set of document categories the role may see.
// The returned slice must not be mutated.
func (r *Roles) Permitted(role string) ([]string, bool) {
	cats, ok := r.permissions[role]
	return cats, ok
}

// RateLimit returns the requests-per-minute budget for role.
// Roles without an explicit limit get the most restrictive default.
func (r *Roles) RateLimit(role string) int {
	if limit, ok := r.rateLimits[role]; ok && limit > 0 {
		return limit
	}
	return 5
}

// ValidCategory reports whether cat is a declared document category.
func (r *Roles) ValidCategory(cat string) bool {
	return r.categories[cat]
}

// Names returns all declared role names in sorted order.
func (r *Roles) Names() []string {
	names := make([]string, 0, len(r.permissions))
	for role := range r.permissions {
		names = append(names, role)
	}
	sort.Strings(names)
	return names
}
