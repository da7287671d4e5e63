package passage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryServiceSeeded(t *testing.T) {
	s := NewMemoryService()
	defer s.Close()

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(seedPassages) {
		t.Fatalf("count = %d, want %d", n, len(seedPassages))
	}

	p, err := s.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Text != seedPassages[0] {
		t.Fatalf("passage 0 text = %q", p.Text)
	}
	if p.Length() == 0 {
		t.Fatal("seed passage has zero length")
	}
}

func TestMemoryServiceGetUnknown(t *testing.T) {
	s := NewMemoryService()
	defer s.Close()

	if _, err := s.Get(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryServiceRandomDrawsFromCatalog(t *testing.T) {
	s := NewMemoryService()
	defer s.Close()

	for i := 0; i < 20; i++ {
		p, err := s.Random(context.Background())
		if err != nil {
			t.Fatalf("random: %v", err)
		}
		got, err := s.Get(context.Background(), p.Index)
		if err != nil {
			t.Fatalf("get %d: %v", p.Index, err)
		}
		if got.Text != p.Text {
			t.Fatalf("random returned entry not in catalog: %+v", p)
		}
	}
}

func TestMemoryServicePut(t *testing.T) {
	s := NewMemoryService()
	defer s.Close()

	before, _ := s.Count(context.Background())
	s.Put(Passage{Index: 100, Text: "the quick brown fox"})

	after, _ := s.Count(context.Background())
	if after != before+1 {
		t.Fatalf("count = %d, want %d", after, before+1)
	}

	// Replacing keeps the count stable.
	s.Put(Passage{Index: 100, Text: "jumps over the lazy dog"})
	again, _ := s.Count(context.Background())
	if again != after {
		t.Fatalf("count = %d after replace, want %d", again, after)
	}

	p, err := s.Get(context.Background(), 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Text != "jumps over the lazy dog" {
		t.Fatalf("text = %q", p.Text)
	}
}

func TestPassageLengthCountsRunes(t *testing.T) {
	p := Passage{Text: "héllo wörld"}
	if got := p.Length(); got != 11 {
		t.Fatalf("length = %d, want 11", got)
	}
}
