// Package model contains domain models passed between layers.
package model

// Beat is a detected rhythmic onset.
type Beat struct {
	TimestampMs float64 // position in the track
	Strength    float32 // normalized onset strength in [0, 1]
}

// AnalysisResult is the output of beat detection for one track.
type AnalysisResult struct {
	BPM   float64
	Beats []Beat // strictly ascending by TimestampMs
}

// CircleState is the lifecycle stage of a hit circle. It only moves forward.
type CircleState uint8

// Circle states.
const (
	Pending CircleState = iota
	Active
	Resolved
)

func (s CircleState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// HitKind classifies how a circle was resolved.
type HitKind uint8

// Hit kinds. KindNone marks a circle that has not been judged yet.
const (
	KindNone HitKind = iota
	Perfect
	Good
	Bad
	Miss
)

// Kinds lists every judgeable kind, tightest first.
var Kinds = [...]HitKind{Perfect, Good, Bad, Miss} //nolint:gochecknoglobals // fixed enumeration

func (k HitKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case Perfect:
		return "perfect"
	case Good:
		return "good"
	case Bad:
		return "bad"
	case Miss:
		return "miss"
	default:
		return "unknown"
	}
}

// ParseHitKind maps a configuration key to a kind.
func ParseHitKind(s string) (HitKind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return KindNone, false
}

// HitCircle is a positioned, time-windowed target derived from one beat.
type HitCircle struct {
	ID              uint64
	BeatTimestampMs float64
	SpawnTimeMs     float64 // never after BeatTimestampMs, never negative
	X               float32
	Y               float32
	Radius          float32
	State           CircleState
	Result          HitKind // KindNone until resolved
}

// Cursor is one tracked pointer position for a single tick.
type Cursor struct {
	X          float32
	Y          float32
	TrackingID uint32
}

// HitResult is emitted exactly once per circle when it resolves.
type HitResult struct {
	CircleID uint64
	Kind     HitKind
	AtMs     float64
}

// ScoreState is the running score of a session.
type ScoreState struct {
	Score    uint64
	Combo    uint32
	MaxCombo uint32
	Perfects uint32
	Goods    uint32
	Bads     uint32
	Misses   uint32
}

// Judged returns the number of circles counted so far.
func (s ScoreState) Judged() uint32 {
	return s.Perfects + s.Goods + s.Bads + s.Misses
}

// Count returns the counter for kind.
func (s ScoreState) Count(kind HitKind) uint32 {
	switch kind {
	case Perfect:
		return s.Perfects
	case Good:
		return s.Goods
	case Bad:
		return s.Bads
	case Miss:
		return s.Misses
	default:
		return 0
	}
}
