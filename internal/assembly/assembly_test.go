package assembly

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/pavelanni/quizhall/internal/model"
)

func pool(ids ...string) []model.Question {
	qs := make([]model.Question, len(ids))
	for i, id := range ids {
		qs[i] = model.Question{ID: id, Text: "question " + id, Key: model.TextKey{Text: id}}
	}
	return qs
}

func seeded(seed uint64) IntN {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).IntN
}

func TestResolveFixedKeepsOrderAndSkipsMissing(t *testing.T) {
	exam := model.Exam{QuestionIDs: []string{"x", "y", "z"}}
	got := IDs(Resolve(exam, pool("y"), nil))
	if !slices.Equal(got, []string{"y"}) {
		t.Errorf("Resolve() = %v, want [y]", got)
	}

	exam = model.Exam{QuestionIDs: []string{"c", "a", "b"}, RandomCount: 1}
	got = IDs(Resolve(exam, pool("a", "b", "c"), nil))
	if !slices.Equal(got, []string{"c", "a", "b"}) {
		t.Errorf("Resolve() = %v, want [c a b]", got)
	}
}

func TestResolveAllReturnsPoolOrder(t *testing.T) {
	p := pool("a", "b", "c")
	got := Resolve(model.Exam{}, p, nil)
	if !slices.Equal(IDs(got), []string{"a", "b", "c"}) {
		t.Errorf("Resolve() = %v", IDs(got))
	}
	got[0].ID = "changed"
	if p[0].ID != "a" {
		t.Error("Resolve must not alias the pool")
	}
}

func TestResolveRandomIsPermutation(t *testing.T) {
	p := pool("a", "b", "c", "d", "e")
	intN := seeded(7)
	for trial := 0; trial < 200; trial++ {
		count := len(p) + trial%3
		got := IDs(Resolve(model.Exam{RandomCount: count}, p, intN))
		if len(got) != len(p) {
			t.Fatalf("trial %d: got %d questions, want %d", trial, len(got), len(p))
		}
		sorted := slices.Sorted(slices.Values(got))
		if !slices.Equal(sorted, []string{"a", "b", "c", "d", "e"}) {
			t.Fatalf("trial %d: %v is not a permutation of the pool", trial, got)
		}
	}
	if !slices.Equal(IDs(p), []string{"a", "b", "c", "d", "e"}) {
		t.Error("Resolve must not shuffle the pool in place")
	}
}

func TestResolveRandomSamplesWithoutReplacement(t *testing.T) {
	p := pool("a", "b", "c", "d", "e", "f")
	intN := seeded(11)
	seen := map[string]int{}
	for trial := 0; trial < 600; trial++ {
		got := IDs(Resolve(model.Exam{RandomCount: 2}, p, intN))
		if len(got) != 2 || got[0] == got[1] {
			t.Fatalf("trial %d: bad sample %v", trial, got)
		}
		for _, id := range got {
			seen[id]++
		}
	}
	for _, q := range p {
		if seen[q.ID] == 0 {
			t.Errorf("question %s never drawn", q.ID)
		}
	}
}

func TestResolveRandomSeedIsReproducible(t *testing.T) {
	p := pool("a", "b", "c", "d", "e", "f", "g")
	first := IDs(Resolve(model.Exam{RandomCount: 4}, p, seeded(42)))
	second := IDs(Resolve(model.Exam{RandomCount: 4}, p, seeded(42)))
	if !slices.Equal(first, second) {
		t.Errorf("same seed gave %v and %v", first, second)
	}
}

func TestShuffleFisherYatesSwaps(t *testing.T) {
	// Always picking j = 0 rotates the head element through every position.
	got := IDs(Shuffle(pool("a", "b", "c"), func(int) int { return 0 }))
	if !slices.Equal(got, []string{"b", "c", "a"}) {
		t.Errorf("Shuffle() = %v, want [b c a]", got)
	}
	// Picking j = i never swaps.
	calls := 0
	got = IDs(Shuffle(pool("a", "b", "c"), func(n int) int { calls++; return n - 1 }))
	if !slices.Equal(got, []string{"a", "b", "c"}) || calls != 2 {
		t.Errorf("Shuffle() = %v after %d draws", got, calls)
	}
}

func TestReconstructUsesRecordedIDs(t *testing.T) {
	p := pool("a", "b", "c", "d")
	exam := model.Exam{RandomCount: 2}
	attempt := model.Attempt{QuestionIDs: []string{"d", "gone", "a"}}

	slots, err := Reconstruct(attempt, exam, p)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if slots[0].Question.ID != "d" || !slots[0].Found {
		t.Errorf("slot 0 = %+v", slots[0])
	}
	if slots[1].Found || slots[1].ID != "gone" {
		t.Errorf("slot 1 should be a missing placeholder, got %+v", slots[1])
	}
	if slots[2].Question.ID != "a" {
		t.Errorf("slot 2 = %+v", slots[2])
	}
}

func TestReconstructLegacyAttempts(t *testing.T) {
	p := pool("a", "b", "c")

	slots, err := Reconstruct(model.Attempt{}, model.Exam{QuestionIDs: []string{"c", "a"}}, p)
	if err != nil {
		t.Fatalf("Reconstruct fixed: %v", err)
	}
	if len(slots) != 2 || slots[0].ID != "c" || slots[1].ID != "a" {
		t.Errorf("unexpected slots %+v", slots)
	}

	_, err = Reconstruct(model.Attempt{}, model.Exam{RandomCount: 2}, p)
	if !errors.Is(err, ErrNotReplayable) {
		t.Errorf("expected ErrNotReplayable, got %v", err)
	}
}
