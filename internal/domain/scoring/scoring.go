// Package scoring folds hit results into a running score.
//
// Engine.Apply is a pure reducer: the same sequence of results always
// yields the same ScoreState. Points for a hit are the kind's base points
// times the combo multiplier before the hit, rounded to the nearest integer.
package scoring

import (
	"math"
	"sort"

	"github.com/okian/cadence/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultComboStep      = 10
	defaultComboIncrement = 0.5
	defaultMaxMultiplier  = 4
	defaultFallbackGrade  = "D"
)

// Rule is the scoring policy for one hit kind.
type Rule struct {
	Points         int
	MaintainsCombo bool
	// Weight is the kind's contribution to accuracy, in [0, 1].
	Weight float64
}

// Multiplier maps the combo before a hit to a score multiplier.
// Implementations must be non-decreasing in combo.
type Multiplier func(combo uint32) float64

// Staircase adds increment to the multiplier every step combo, up to maxMul.
func Staircase(step uint32, increment, maxMul float64) Multiplier {
	return func(combo uint32) float64 {
		if step == 0 {
			return 1
		}
		return math.Min(1+increment*float64(combo/step), math.Max(maxMul, 1))
	}
}

// Doubling doubles the multiplier every step combo, up to maxMul.
func Doubling(step uint32, maxMul float64) Multiplier {
	return func(combo uint32) float64 {
		if step == 0 {
			return 1
		}
		return math.Min(math.Exp2(float64(combo/step)), math.Max(maxMul, 1))
	}
}

// Threshold is the minimum accuracy for a grade.
type Threshold struct {
	Grade       string
	MinAccuracy float64
}

// Engine applies hit results to score state.
type Engine struct {
	rules      [model.Miss + 1]Rule
	multiplier Multiplier
	grades     []Threshold
	fallback   string
}

// New creates an Engine with stock rules, then applies opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		multiplier: Staircase(defaultComboStep, defaultComboIncrement, defaultMaxMultiplier),
		grades:     sortThresholds(map[string]float64{"S": 95, "A": 90, "B": 80, "C": 70}),
		fallback:   defaultFallbackGrade,
	}
	e.rules[model.Perfect] = Rule{Points: 300, MaintainsCombo: true, Weight: 1}
	e.rules[model.Good] = Rule{Points: 100, MaintainsCombo: true, Weight: 0.5}
	e.rules[model.Bad] = Rule{Points: 50, MaintainsCombo: false, Weight: 0.25}
	e.rules[model.Miss] = Rule{Points: 0, MaintainsCombo: false, Weight: 0}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rule returns the policy for kind.
func (e *Engine) Rule(kind model.HitKind) Rule {
	if int(kind) >= len(e.rules) {
		return Rule{}
	}
	return e.rules[kind]
}

// Apply returns state with r counted. Results without a judged kind leave
// state unchanged.
func (e *Engine) Apply(r model.HitResult, state model.ScoreState) model.ScoreState {
	if r.Kind == model.KindNone || int(r.Kind) >= len(e.rules) {
		return state
	}
	rule := e.rules[r.Kind]

	points := math.Round(float64(rule.Points) * e.multiplier(state.Combo))
	if points > 0 {
		add := uint64(points)
		if state.Score > math.MaxUint64-add {
			state.Score = math.MaxUint64
		} else {
			state.Score += add
		}
	}

	switch r.Kind {
	case model.Perfect:
		state.Perfects++
	case model.Good:
		state.Goods++
	case model.Bad:
		state.Bads++
	case model.Miss:
		state.Misses++
	}

	if rule.MaintainsCombo {
		state.Combo++
		state.MaxCombo = max(state.MaxCombo, state.Combo)
	} else {
		state.Combo = 0
	}
	return state
}

// Replay folds results into a fresh state.
func (e *Engine) Replay(results []model.HitResult) model.ScoreState {
	var s model.ScoreState
	for _, r := range results {
		s = e.Apply(r, s)
	}
	return s
}

// Accuracy returns the weighted share of judged circles as a percentage in
// [0, 100]. It is 0 when nothing has been judged.
func (e *Engine) Accuracy(state model.ScoreState) float64 {
	total := state.Judged()
	if total == 0 {
		return 0
	}
	var weighted float64
	for _, kind := range model.Kinds {
		weighted += e.rules[kind].Weight * float64(state.Count(kind))
	}
	return math.Min(math.Max(weighted/float64(total)*100, 0), 100)
}

// Grade returns the best grade whose threshold accuracy reaches.
func (e *Engine) Grade(accuracy float64) string {
	for _, t := range e.grades {
		if accuracy >= t.MinAccuracy {
			return t.Grade
		}
	}
	return e.fallback
}

// Grades returns the grade table, best first.
func (e *Engine) Grades() []Threshold {
	return append([]Threshold(nil), e.grades...)
}

// sortThresholds orders grades by descending accuracy, then by name.
func sortThresholds(m map[string]float64) []Threshold {
	out := make([]Threshold, 0, len(m))
	for g, acc := range m {
		out = append(out, Threshold{Grade: g, MinAccuracy: acc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MinAccuracy != out[j].MinAccuracy {
			return out[i].MinAccuracy > out[j].MinAccuracy
		}
		return out[i].Grade < out[j].Grade
	})
	return out
}
