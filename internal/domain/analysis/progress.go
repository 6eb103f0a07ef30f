package analysis

// progress forwards percentages to a callback, dropping anything that would
// not move forward.
type progress struct {
	fn   func(int)
	last int
}

func newProgress(fn func(int)) *progress {
	return &progress{fn: fn, last: -1}
}

func (p *progress) report(pct int) {
	if p.fn == nil {
		return
	}
	pct = min(max(pct, 0), 100)
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

// span maps step/total onto the [from, to) slice of the percentage range.
func (p *progress) span(from, to, step, total int) {
	if total <= 0 {
		return
	}
	p.report(from + (to-from)*step/total)
}
