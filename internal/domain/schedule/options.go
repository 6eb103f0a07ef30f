package schedule

import "github.com/okian/cadence/pkg/logger"

// Default layout configuration constants.
const (
	defaultLeadTimeMs = 1200
	defaultRadius     = 60
	defaultMargin     = 20
	defaultSeed       = 42
	placementAttempts = 8
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithLeadTime sets how long before its beat a circle appears.
func WithLeadTime(ms float64) Option {
	return func(s *Scheduler) {
		if ms >= 0 {
			s.leadTimeMs = ms
		}
	}
}

// WithRadius sets the radius of every circle.
func WithRadius(r float32) Option {
	return func(s *Scheduler) {
		if r > 0 {
			s.radius = r
		}
	}
}

// WithMargin sets the gap kept between a circle and the field edge.
func WithMargin(m float32) Option {
	return func(s *Scheduler) {
		if m >= 0 {
			s.margin = m
		}
	}
}

// WithSeed sets the layout seed. The same seed and beats give the same layout.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) {
		s.seed = seed
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
