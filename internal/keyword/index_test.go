package keyword

import "testing"

func buildIndex(t *testing.T, docs ...Document) *Index {
	t.Helper()
	ix := NewIndex()
	ix.Rebuild(docs)
	return ix
}

func TestScore_ExactMatchRanksHighest(t *testing.T) {
	ix := buildIndex(t,
		Document{ID: "a", Text: "vacation policy for employees"},
		Document{ID: "b", Text: "expense report submission process"},
		Document{ID: "c", Text: "office parking rules"},
	)

	scores := ix.Score("vacation policy")
	if len(scores) == 0 {
		t.Fatal("Score returned no results")
	}
	if scores["a"] <= scores["b"] {
		t.Errorf("scores[a] = %v, want > scores[b] = %v", scores["a"], scores["b"])
	}
	if _, ok := scores["c"]; ok {
		t.Errorf("scores[c] = %v, want no entry for unrelated doc", scores["c"])
	}
}

func TestScore_BoundedZeroOne(t *testing.T) {
	ix := buildIndex(t,
		Document{ID: "a", Text: "database backup schedule"},
		Document{ID: "b", Text: "backup schedule database backup"},
	)

	for id, s := range ix.Score("database backup schedule") {
		if s < 0 || s > 1 {
			t.Errorf("score for %s = %v, want in [0, 1]", id, s)
		}
	}
}

func TestScore_MoreOverlapScoresHigher(t *testing.T) {
	ix := buildIndex(t,
		Document{ID: "full", Text: "remote work equipment stipend"},
		Document{ID: "partial", Text: "remote work guidelines"},
	)

	scores := ix.Score("remote work equipment stipend")
	if scores["full"] <= scores["partial"] {
		t.Errorf("full overlap score %v, want > partial overlap score %v", scores["full"], scores["partial"])
	}
}

func TestScore_EmptyIndex(t *testing.T) {
	ix := NewIndex()
	if !ix.Empty() {
		t.Error("Empty() = false for new index, want true")
	}
	if scores := ix.Score("anything"); scores != nil {
		t.Errorf("Score on empty index = %v, want nil", scores)
	}
}

func TestScore_StopwordOnlyQuery(t *testing.T) {
	ix := buildIndex(t, Document{ID: "a", Text: "the quick brown fox"})
	if scores := ix.Score("the is of"); scores != nil {
		t.Errorf("Score for stopword-only query = %v, want nil", scores)
	}
}

func TestScore_UnseenTermsNoSignal(t *testing.T) {
	ix := buildIndex(t, Document{ID: "a", Text: "payroll calendar"})
	if scores := ix.Score("kubernetes ingress"); scores != nil {
		t.Errorf("Score for unseen terms = %v, want nil", scores)
	}
}

func TestRebuild_SwapsSnapshot(t *testing.T) {
	ix := buildIndex(t, Document{ID: "a", Text: "old content here"})
	if ix.Size() != 1 {
		t.Fatalf("Size = %d, want 1", ix.Size())
	}

	ix.Rebuild([]Document{
		{ID: "b", Text: "new content entirely"},
		{ID: "c", Text: "another new document"},
	})
	if ix.Size() != 2 {
		t.Errorf("Size after rebuild = %d, want 2", ix.Size())
	}
	// "content" survives in doc b, but doc a must be gone.
	if _, ok := ix.Score("old content")["a"]; ok {
		t.Error("old doc still scored after rebuild")
	}
}

func TestTokenize_Bigrams(t *testing.T) {
	tokens := tokenize("vacation policy update")
	want := map[string]bool{
		"vacation": true, "policy": true, "update": true,
		"vacation policy": true, "policy update": true,
	}
	if len(tokens) != len(want) {
		t.Fatalf("tokenize returned %d tokens (%v), want %d", len(tokens), tokens, len(want))
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

func TestTokenize_DropsShortAndStopwords(t *testing.T) {
	tokens := tokenize("a I the expense")
	if len(tokens) != 1 || tokens[0] != "expense" {
		t.Errorf("tokenize = %v, want [expense]", tokens)
	}
}
