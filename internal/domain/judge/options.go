package judge

import "github.com/okian/cadence/pkg/logger"

// Windows are the timing tolerances in ms, measured from the beat in either
// direction. A circle still unresolved LateMs after its beat is a miss.
type Windows struct {
	PerfectMs float64
	GoodMs    float64
	BadMs     float64
	LateMs    float64
}

// DefaultWindows returns the stock tolerances.
func DefaultWindows() Windows {
	return Windows{PerfectMs: 50, GoodMs: 100, BadMs: 150, LateMs: 150}
}

// Valid reports whether 0 < perfect <= good <= bad <= late. A late window
// shorter than bad would expire circles before the bad tier could match.
func (w Windows) Valid() bool {
	return w.PerfectMs > 0 && w.GoodMs >= w.PerfectMs && w.BadMs >= w.GoodMs && w.LateMs >= w.BadMs
}

// Option applies a configuration option to the Judge.
type Option func(*Judge)

// WithWindows replaces the timing windows. Invalid windows are ignored.
func WithWindows(w Windows) Option {
	return func(j *Judge) {
		if w.Valid() {
			j.windows = w
		}
	}
}

// WithClampHook registers fn to be told whenever an input is corrected.
// input is "time", "cursor" or "cursor_dropped".
func WithClampHook(fn func(input string)) Option {
	return func(j *Judge) {
		if fn != nil {
			j.onClamp = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(j *Judge) {
		if l != nil {
			j.logger = l
		}
	}
}
