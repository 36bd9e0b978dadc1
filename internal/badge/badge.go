// Package badge computes achievement badges earned by an exam attempt.
package badge

import "slices"

// Badge identifiers.
const (
	FirstAttempt = "first_attempt"
	HighScore    = "high_score"
)

// HighScoreThreshold is the minimum percentage that earns HighScore.
const HighScoreThreshold = 80

// Input is what every rule sees about the attempt being awarded.
type Input struct {
	Score         int
	Current       []string
	PriorAttempts int
}

// Rule awards Badge when Earned holds. Rules are pure and independent of each other.
type Rule struct {
	Badge  string
	Earned func(Input) bool
}

// DefaultRules is the ordered rule list used by NewBadges.
var DefaultRules = []Rule{
	{Badge: FirstAttempt, Earned: func(in Input) bool { return in.PriorAttempts == 0 }},
	{Badge: HighScore, Earned: func(in Input) bool { return in.Score >= HighScoreThreshold }},
}

// Engine evaluates an ordered list of rules.
type Engine struct {
	rules []Rule
}

// New creates an engine. Without rules it uses DefaultRules.
func New(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules}
}

// Award returns the badges earned by in that are not already held, in rule order.
func (e *Engine) Award(in Input) []string {
	earned := []string{}
	for _, r := range e.rules {
		if slices.Contains(in.Current, r.Badge) || slices.Contains(earned, r.Badge) {
			continue
		}
		if r.Earned(in) {
			earned = append(earned, r.Badge)
		}
	}
	return earned
}

var defaultEngine = New()

// NewBadges returns the default badges earned by an attempt scoring score by a
// user holding current badges after priorAttempts earlier attempts.
func NewBadges(score int, current []string, priorAttempts int) []string {
	return defaultEngine.Award(Input{Score: score, Current: current, PriorAttempts: priorAttempts})
}

// Merge appends earned badges to current without duplicates.
func Merge(current, earned []string) []string {
	out := make([]string, 0, len(current)+len(earned))
	for _, b := range slices.Concat(current, earned) {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}
