package repository

import "time"

// Option applies a configuration option to the LatestStore.
type Option func(*LatestStore)

// WithClock sets the time source used to stamp outcomes.
func WithClock(now func() time.Time) Option {
	return func(s *LatestStore) {
		if now != nil {
			s.now = now
		}
	}
}
