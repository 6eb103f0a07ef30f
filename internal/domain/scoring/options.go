package scoring

import (
	"github.com/okian/cadence/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRule replaces the rule for one kind. Rules with negative points or a
// weight outside [0, 1] are ignored.
func WithRule(kind model.HitKind, r Rule) Option {
	return func(e *Engine) {
		if kind == model.KindNone || int(kind) >= len(e.rules) {
			return
		}
		if r.Points < 0 || r.Weight < 0 || r.Weight > 1 {
			return
		}
		e.rules[kind] = r
	}
}

// WithRulesFromConfig overlays per-kind settings keyed by kind name
// ("perfect", "good", "bad", "miss"). Unknown keys are ignored and kinds
// missing from a map keep their current value.
func WithRulesFromConfig(points map[string]int, maintainsCombo map[string]bool, weights map[string]float64) Option {
	return func(e *Engine) {
		for _, kind := range model.Kinds {
			r := e.rules[kind]
			if p, ok := points[kind.String()]; ok && p >= 0 {
				r.Points = p
			}
			if m, ok := maintainsCombo[kind.String()]; ok {
				r.MaintainsCombo = m
			}
			if w, ok := weights[kind.String()]; ok && w >= 0 && w <= 1 {
				r.Weight = w
			}
			e.rules[kind] = r
		}
	}
}

// WithMultiplier sets the combo multiplier curve.
func WithMultiplier(m Multiplier) Option {
	return func(e *Engine) {
		if m != nil {
			e.multiplier = m
		}
	}
}

// WithGrades replaces the grade table. thresholds maps grade to the minimum
// accuracy percentage; fallback is awarded below every threshold.
func WithGrades(thresholds map[string]float64, fallback string) Option {
	return func(e *Engine) {
		if len(thresholds) > 0 {
			e.grades = sortThresholds(thresholds)
		}
		if fallback != "" {
			e.fallback = fallback
		}
	}
}
