package feedback

import (
	"errors"
	"testing"

	"github.com/aneven/knowd/internal/storage"
)

type mockRoles struct {
	validFn func(role string) bool
}

func (m *mockRoles) ValidRole(role string) bool { return m.validFn(role) }

func knownRoles() *mockRoles {
	return &mockRoles{validFn: func(role string) bool {
		return role == "hr_staff" || role == "admin" || role == "service"
	}}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCollect_Valid(t *testing.T) {
	s := NewStore(openStore(t), knownRoles(), nil)

	rec, err := s.Collect(Submission{
		Query:    "vacation policy",
		Response: "20 days per year",
		Rating:   4,
		Role:     "hr_staff",
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if rec.ID == "" {
		t.Error("record has no ID")
	}
	if rec.State != storage.StateCreated {
		t.Errorf("state = %s, want %s", rec.State, storage.StateCreated)
	}

	stored, err := s.db.GetFeedback(rec.ID)
	if err != nil {
		t.Fatalf("GetFeedback failed: %v", err)
	}
	if stored.Rating != 4 || stored.Query != "vacation policy" {
		t.Errorf("stored = %+v, want rating 4 and original query", stored)
	}
}

func TestCollect_Invalid(t *testing.T) {
	s := NewStore(openStore(t), knownRoles(), nil)

	tests := []struct {
		name string
		sub  Submission
	}{
		{"empty query", Submission{Response: "r", Rating: 3, Role: "admin"}},
		{"empty response", Submission{Query: "q", Rating: 3, Role: "admin"}},
		{"rating too low", Submission{Query: "q", Response: "r", Rating: 0, Role: "admin"}},
		{"rating too high", Submission{Query: "q", Response: "r", Rating: 6, Role: "admin"}},
		{"unknown role", Submission{Query: "q", Response: "r", Rating: 3, Role: "intern"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Collect(tt.sub); !errors.Is(err, ErrInvalid) {
				t.Errorf("Collect = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCollect_RatingBoundsAccepted(t *testing.T) {
	s := NewStore(openStore(t), knownRoles(), nil)
	for _, rating := range []int{1, 5} {
		if _, err := s.Collect(Submission{Query: "q", Response: "r", Rating: rating, Role: "admin"}); err != nil {
			t.Errorf("Collect with rating %d failed: %v", rating, err)
		}
	}
}
