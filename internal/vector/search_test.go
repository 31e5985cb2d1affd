package vector

import (
	"context"
	"testing"
	"time"

	"github.com/aneven/knowd/internal/storage"
)

func seedIndex(t *testing.T, chunks []storage.Chunk) *SQLIndex {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for i := range chunks {
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now().UTC()
		}
	}
	if err := store.SaveChunks(chunks); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}
	return NewSQLIndex(store.DB())
}

func TestNearestNeighbors_RanksBySimilarity(t *testing.T) {
	idx := seedIndex(t, []storage.Chunk{
		{ID: "same", Category: "service", Embedding: []float32{1, 0, 0}},
		{ID: "close", Category: "service", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Category: "service", Embedding: []float32{0, 0, 1}},
	})

	got, err := idx.NearestNeighbors(context.Background(), []float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("NearestNeighbors failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("results = %d, want 3", len(got))
	}
	if got[0].ChunkID != "same" || got[1].ChunkID != "close" || got[2].ChunkID != "far" {
		t.Errorf("order = [%s %s %s], want [same close far]", got[0].ChunkID, got[1].ChunkID, got[2].ChunkID)
	}
	if got[0].Score < 0.999 {
		t.Errorf("identical vector score = %v, want ~1.0", got[0].Score)
	}
	for _, n := range got {
		if n.Score < 0 || n.Score > 1 {
			t.Errorf("score for %s = %v, want in [0, 1]", n.ChunkID, n.Score)
		}
		if n.CreatedAt.IsZero() {
			t.Errorf("neighbor %s has no created_at", n.ChunkID)
		}
	}
}

func TestNearestNeighbors_TopK(t *testing.T) {
	idx := seedIndex(t, []storage.Chunk{
		{ID: "a", Category: "service", Embedding: []float32{1, 0}},
		{ID: "b", Category: "service", Embedding: []float32{0.8, 0.2}},
		{ID: "c", Category: "service", Embedding: []float32{0.5, 0.5}},
	})

	got, err := idx.NearestNeighbors(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("NearestNeighbors failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want k=2", len(got))
	}
	if got[0].ChunkID != "a" || got[1].ChunkID != "b" {
		t.Errorf("top-2 = [%s %s], want [a b]", got[0].ChunkID, got[1].ChunkID)
	}
}

func TestNearestNeighbors_CategoryFilter(t *testing.T) {
	idx := seedIndex(t, []storage.Chunk{
		{ID: "hr1", Category: "hr", Embedding: []float32{1, 0}},
		{ID: "fin1", Category: "finance", Embedding: []float32{1, 0}},
		{ID: "svc1", Category: "service", Embedding: []float32{1, 0}},
	})

	got, err := idx.NearestNeighbors(context.Background(), []float32{1, 0}, 10, []string{"hr", "service"})
	if err != nil {
		t.Fatalf("NearestNeighbors failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 within permitted categories", len(got))
	}
	for _, n := range got {
		if n.ChunkID == "fin1" {
			t.Error("finance chunk returned despite category filter")
		}
	}
}

func TestNearestNeighbors_SkipsUnembedded(t *testing.T) {
	idx := seedIndex(t, []storage.Chunk{
		{ID: "embedded", Category: "service", Embedding: []float32{1, 0}},
		{ID: "pending", Category: "service"},
	})

	got, err := idx.NearestNeighbors(context.Background(), []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("NearestNeighbors failed: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "embedded" {
		t.Errorf("results = %+v, want only the embedded chunk", got)
	}
}

func TestNearestNeighbors_ZeroVectorAndZeroK(t *testing.T) {
	idx := seedIndex(t, []storage.Chunk{
		{ID: "a", Category: "service", Embedding: []float32{1, 0}},
	})

	if got, err := idx.NearestNeighbors(context.Background(), []float32{0, 0}, 5, nil); err != nil || got != nil {
		t.Errorf("zero query vector = (%v, %v), want (nil, nil)", got, err)
	}
	if got, err := idx.NearestNeighbors(context.Background(), []float32{1, 0}, 0, nil); err != nil || got != nil {
		t.Errorf("k=0 = (%v, %v), want (nil, nil)", got, err)
	}
}
