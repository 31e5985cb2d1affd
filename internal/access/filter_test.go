package access

import (
	"testing"

	"github.com/aneven/knowd/internal/config"
	"github.com/aneven/knowd/internal/storage"
)

func defaultFilter(t *testing.T) *Filter {
	t.Helper()
	roles, err := config.LoadRoles("")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}
	return NewFilter(roles)
}

func TestValidRole(t *testing.T) {
	f := defaultFilter(t)
	if !f.ValidRole("hr_staff") {
		t.Error("ValidRole(hr_staff) = false, want true")
	}
	if f.ValidRole("intern") {
		t.Error("ValidRole(intern) = true, want false")
	}
}

func TestAllowed(t *testing.T) {
	f := defaultFilter(t)
	tests := []struct {
		role     string
		category string
		want     bool
	}{
		{"hr_staff", "hr", true},
		{"hr_staff", "finance", false},
		{"hr_manager", "service", true},
		{"hr_manager", "hr", true},
		{"hr_manager", "rnd", false},
		{"admin", "legal", true},
		{"service", "service", true},
		{"service", "hr", false},
		{"unknown_role", "service", false},
	}
	for _, tt := range tests {
		if got := f.Allowed(tt.role, tt.category); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.role, tt.category, got, tt.want)
		}
	}
}

func TestFilterChunks_RemovesForbiddenPreservesOrder(t *testing.T) {
	f := defaultFilter(t)
	chunks := []storage.Chunk{
		{ID: "1", Category: "hr"},
		{ID: "2", Category: "finance"},
		{ID: "3", Category: "service"},
		{ID: "4", Category: "hr"},
	}

	got := f.FilterChunks("hr_manager", chunks)
	if len(got) != 3 {
		t.Fatalf("filtered = %d chunks, want 3", len(got))
	}
	wantIDs := []string{"1", "3", "4"}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("filtered[%d].ID = %s, want %s (order must be preserved)", i, got[i].ID, id)
		}
	}
}

func TestFilterChunks_NeverGrows(t *testing.T) {
	f := defaultFilter(t)
	chunks := []storage.Chunk{
		{ID: "1", Category: "service"},
		{ID: "2", Category: "rnd"},
	}
	for _, role := range []string{"admin", "developer", "service", "hr_staff", "unknown"} {
		got := f.FilterChunks(role, chunks)
		if len(got) > len(chunks) {
			t.Errorf("FilterChunks(%s) grew the set: %d > %d", role, len(got), len(chunks))
		}
	}
}

func TestFilterChunks_UnknownRoleSeesNothing(t *testing.T) {
	f := defaultFilter(t)
	got := f.FilterChunks("nobody", []storage.Chunk{{ID: "1", Category: "service"}})
	if len(got) != 0 {
		t.Errorf("unknown role saw %d chunks, want 0", len(got))
	}
}

func TestCategories(t *testing.T) {
	f := defaultFilter(t)
	cats := f.Categories("finance_manager")
	want := map[string]bool{"service": true, "finance": true, "legal": true}
	if len(cats) != len(want) {
		t.Fatalf("Categories(finance_manager) = %v, want 3 categories", cats)
	}
	for _, c := range cats {
		if !want[c] {
			t.Errorf("unexpected category %q", c)
		}
	}
	if got := f.Categories("nobody"); got != nil {
		t.Errorf("Categories(nobody) = %v, want nil", got)
	}
}
