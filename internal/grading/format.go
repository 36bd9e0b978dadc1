package grading

import (
	"fmt"
	"strings"

	"github.com/pavelanni/quizhall/internal/model"
)

// NoAnswer is the display form of an unanswered question.
const NoAnswer = "—"

// FormatAnswer renders a user's answer for the review screen.
func FormatAnswer(q model.Question, answer any) string {
	if answer == nil {
		return NoAnswer
	}
	switch q.Key.(type) {
	case model.ChoiceKey:
		s, _ := stringForm(answer)
		for i, opt := range q.Options {
			if s == formatInt(i) {
				return opt
			}
		}
		return s
	case model.TruthKey:
		if truthy(answer) {
			return "True"
		}
		return "False"
	case model.OrderKey:
		if items, ok := sequence(answer); ok {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i], _ = stringForm(item)
			}
			return strings.Join(parts, " → ")
		}
	}
	if s, ok := stringForm(answer); ok {
		return s
	}
	return fmt.Sprint(answer)
}

// FormatKey renders the correct answer of q, or "" for an unknown kind.
func FormatKey(q model.Question) string {
	switch k := q.Key.(type) {
	case model.ChoiceKey:
		if k.Index >= 0 && k.Index < len(q.Options) {
			return q.Options[k.Index]
		}
		return formatInt(k.Index)
	case model.TruthKey:
		return FormatAnswer(q, k.Value)
	case model.TextKey:
		return k.Text
	case model.OrderKey:
		return strings.Join(k.Items, " → ")
	default:
		return ""
	}
}
