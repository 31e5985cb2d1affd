package feedback

import (
	"testing"
	"time"

	"github.com/aneven/knowd/internal/storage"
)

func savePair(t *testing.T, db *storage.Store, pair storage.TrainingPair) {
	t.Helper()
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = time.Now().UTC()
	}
	if pair.Source == "" {
		pair.Source = storage.SourceFeedback
	}
	if err := db.SaveTrainingPair(pair); err != nil {
		t.Fatalf("SaveTrainingPair failed: %v", err)
	}
}

func TestImprove_SubstitutesCloseMatch(t *testing.T) {
	db := openStore(t)
	savePair(t, db, storage.TrainingPair{
		ID: "p1", Input: "how many vacation days do employees get",
		Output: "25 days per year", QualityScore: 5.0,
	})
	im := NewImprover(db, 0.8, 4.0)

	// Identical wording up to case and spacing.
	got, ok, err := im.Improve("How many VACATION days do employees get")
	if err != nil {
		t.Fatalf("Improve failed: %v", err)
	}
	if !ok {
		t.Fatal("Improve = no substitution, want match")
	}
	if got != "25 days per year" {
		t.Errorf("Improve = %q, want the corrected output", got)
	}
}

func TestImprove_BelowThresholdNoSubstitution(t *testing.T) {
	db := openStore(t)
	savePair(t, db, storage.TrainingPair{
		ID: "p1", Input: "how many vacation days do employees get",
		Output: "25 days per year", QualityScore: 5.0,
	})
	im := NewImprover(db, 0.8, 4.0)

	_, ok, err := im.Improve("what is the expense report deadline")
	if err != nil {
		t.Fatalf("Improve failed: %v", err)
	}
	if ok {
		t.Error("Improve substituted for an unrelated query")
	}
}

func TestImprove_LowQualityExcluded(t *testing.T) {
	db := openStore(t)
	savePair(t, db, storage.TrainingPair{
		ID: "p1", Input: "office parking rules",
		Output: "poorly rated answer", QualityScore: 2.0, NeedsReview: true,
	})
	im := NewImprover(db, 0.8, 4.0)

	_, ok, err := im.Improve("office parking rules")
	if err != nil {
		t.Fatalf("Improve failed: %v", err)
	}
	if ok {
		t.Error("Improve substituted a low-quality pair")
	}
}

func TestImprove_PicksClosestMatch(t *testing.T) {
	db := openStore(t)
	savePair(t, db, storage.TrainingPair{
		ID: "exact", Input: "remote work equipment stipend policy",
		Output: "exact answer", QualityScore: 4.5,
	})
	savePair(t, db, storage.TrainingPair{
		ID: "close", Input: "remote work equipment stipend policy details",
		Output: "close answer", QualityScore: 5.0,
	})
	im := NewImprover(db, 0.8, 4.0)

	got, ok, err := im.Improve("remote work equipment stipend policy")
	if err != nil {
		t.Fatalf("Improve failed: %v", err)
	}
	if !ok {
		t.Fatal("Improve = no substitution, want match")
	}
	if got != "exact answer" {
		t.Errorf("Improve = %q, want the closest pair's output", got)
	}
}

func TestImprove_EmptyStore(t *testing.T) {
	im := NewImprover(openStore(t), 0.8, 4.0)
	_, ok, err := im.Improve("anything")
	if err != nil {
		t.Fatalf("Improve failed: %v", err)
	}
	if ok {
		t.Error("Improve substituted with no stored pairs")
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("how many vacation days")
	b := wordSet("how many vacation days total")
	got := jaccard(a, b)
	if got != 0.8 {
		t.Errorf("jaccard = %v, want 0.8", got)
	}

	if jaccard(a, wordSet("")) != 0 {
		t.Error("jaccard with empty set != 0")
	}
	if jaccard(a, a) != 1.0 {
		t.Error("jaccard of identical sets != 1.0")
	}
}
