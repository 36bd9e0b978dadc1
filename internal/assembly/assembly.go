// Package assembly turns an exam definition and a question pool into the
// ordered question list of one attempt, and rebuilds that list for review.
package assembly

import (
	"errors"
	"math/rand/v2"

	"github.com/pavelanni/quizhall/internal/model"
)

// ErrNotReplayable is returned when a random-mode attempt carries no recorded
// question ids, so its question order cannot be rebuilt.
var ErrNotReplayable = errors.New("attempt question order was not recorded")

// IntN returns a uniform int in [0, n).
type IntN func(n int) int

// DefaultIntN draws from the global math/rand/v2 source.
var DefaultIntN IntN = rand.IntN

// Resolve returns the questions to present for exam. The pool is not modified.
//
// Fixed mode looks the listed ids up in order and skips ids missing from the pool.
// Random mode takes the first RandomCount questions of a Fisher–Yates
// permutation of the pool. All mode returns the pool as given.
func Resolve(exam model.Exam, pool []model.Question, intN IntN) []model.Question {
	switch exam.Mode() {
	case model.ModeFixed:
		byID := index(pool)
		out := make([]model.Question, 0, len(exam.QuestionIDs))
		for _, id := range exam.QuestionIDs {
			if q, ok := byID[id]; ok {
				out = append(out, q)
			}
		}
		return out
	case model.ModeRandom:
		if intN == nil {
			intN = DefaultIntN
		}
		out := Shuffle(pool, intN)
		if exam.RandomCount < len(out) {
			out = out[:exam.RandomCount]
		}
		return out
	default:
		return append([]model.Question(nil), pool...)
	}
}

// Shuffle returns a uniformly random permutation of qs.
func Shuffle(qs []model.Question, intN IntN) []model.Question {
	out := append([]model.Question(nil), qs...)
	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// IDs returns the ids of qs in order.
func IDs(qs []model.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// Slot is one position of a rebuilt question list. Found is false when the
// question was deleted after the attempt.
type Slot struct {
	ID       string
	Question model.Question
	Found    bool
}

// Lookup maps ids onto pool keeping every position, found or not.
func Lookup(ids []string, pool []model.Question) []Slot {
	byID := index(pool)
	slots := make([]Slot, len(ids))
	for i, id := range ids {
		q, ok := byID[id]
		slots[i] = Slot{ID: id, Question: q, Found: ok}
	}
	return slots
}

// Reconstruct rebuilds the question list an attempt was answered against.
// Attempts record their resolved ids; older records without them are
// re-resolved only when the exam mode is deterministic.
func Reconstruct(a model.Attempt, exam model.Exam, pool []model.Question) ([]Slot, error) {
	if len(a.QuestionIDs) > 0 {
		return Lookup(a.QuestionIDs, pool), nil
	}
	if exam.Mode() == model.ModeRandom {
		return nil, ErrNotReplayable
	}
	return Lookup(IDs(Resolve(exam, pool, nil)), pool), nil
}

func index(pool []model.Question) map[string]model.Question {
	byID := make(map[string]model.Question, len(pool))
	for _, q := range pool {
		byID[q.ID] = q
	}
	return byID
}
