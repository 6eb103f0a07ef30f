package dedupe

// Option applies a configuration option to the Ledger.
type Option func(*ledger)

// WithCapacity preallocates room for n circle ids.
func WithCapacity(n int) Option {
	return func(l *ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}
