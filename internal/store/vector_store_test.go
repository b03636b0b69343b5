package store

import (
	"math"
	"testing"
	"time"
)

func TestStoreCaseVectorIdempotent(t *testing.T) {
	s := newTestStore(t)

	c := newTestCase("case-1", "user-1")
	if err := s.CreateCase(c, time.Hour); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	if err := s.StoreCaseVector("case-1", "ev-1", "first", []float32{1, 0, 0}); err != nil {
		t.Fatalf("StoreCaseVector failed: %v", err)
	}
	if err := s.StoreCaseVector("case-1", "ev-1", "second", []float32{0, 1, 0}); err != nil {
		t.Fatalf("re-store failed: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats["case_vectors"] != 1 {
		t.Errorf("expected 1 vector row after upsert, got %d", stats["case_vectors"])
	}

	hits, err := s.SearchCaseVectors("case-1", []float32{0, 1, 0}, 5)
	if err != nil {
		t.Fatalf("SearchCaseVectors failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "second" {
		t.Errorf("upsert should have replaced the content: %+v", hits)
	}
}

func TestSearchCaseVectorsRanksBySimilarity(t *testing.T) {
	s := newTestStore(t)

	docs := map[string][]float32{
		"close":   {0.9, 0.1, 0},
		"far":     {0, 0, 1},
		"closest": {1, 0, 0},
	}
	for id, emb := range docs {
		if err := s.StoreCaseVector("case-1", id, id, emb); err != nil {
			t.Fatalf("StoreCaseVector %s failed: %v", id, err)
		}
	}

	hits, err := s.SearchCaseVectors("case-1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchCaseVectors failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top-2, got %d", len(hits))
	}
	if hits[0].SourceID != "closest" || hits[1].SourceID != "close" {
		t.Errorf("wrong ranking: %s, %s", hits[0].SourceID, hits[1].SourceID)
	}
}

func TestSearchCaseVectorsScopedToCase(t *testing.T) {
	s := newTestStore(t)

	if err := s.StoreCaseVector("case-1", "a", "mine", []float32{1, 0}); err != nil {
		t.Fatalf("StoreCaseVector failed: %v", err)
	}
	if err := s.StoreCaseVector("case-2", "b", "theirs", []float32{1, 0}); err != nil {
		t.Fatalf("StoreCaseVector failed: %v", err)
	}

	hits, err := s.SearchCaseVectors("case-1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchCaseVectors failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "mine" {
		t.Errorf("search leaked across cases: %+v", hits)
	}
}

func TestCosineSimilarity32(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		got := cosineSimilarity32(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: got %f, want %f", tc.name, got, tc.want)
		}
	}
}
