package analysis

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// gridBeat is a detected beat frame and its position on the beat grid.
type gridBeat struct {
	frame int
	index int
}

// estimatePeriod returns the beat period in frames and its periodicity: how
// far the normalized autocorrelation at that period rises above the median
// over the tempo range. A pulse train correlates almost as well at twice its
// period as at the period itself, so the winning lag is halved while the
// half lag keeps at least halfCorrRatio of its correlation.
func (d *Detector) estimatePeriod(
	ctx context.Context,
	env []float64,
	sampleRate int,
	p *progress,
) (float64, float64, error) {
	framesPerMinute := 60 * float64(sampleRate) / float64(d.hopSize)
	minLag := max(2, int(math.Floor(framesPerMinute/d.maxBPM)))
	maxLag := int(math.Ceil(framesPerMinute / d.minBPM))
	if maxLag+1 >= len(env) {
		return 0, 0, fmt.Errorf("%w: %d frames cannot hold a %.0f BPM period", ErrTooShort, len(env), d.minBPM)
	}

	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))

	x := make([]float64, len(env))
	var energy float64
	for i, v := range env {
		x[i] = v - mean
		energy += x[i] * x[i]
	}
	if energy == 0 {
		return 0, 0, nil
	}

	corr := make([]float64, maxLag+2)
	total := maxLag - minLag + 3
	for lag := minLag - 1; lag <= maxLag+1; lag++ {
		if lag%16 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, 0, fmt.Errorf("tempo estimation: %w", err)
			}
		}
		var s float64
		for t := 0; t+lag < len(x); t++ {
			s += x[t] * x[t+lag]
		}
		corr[lag] = s / energy
		p.span(60, 80, lag-minLag+1, total)
	}

	best := minLag
	for lag := minLag + 1; lag <= maxLag; lag++ {
		if corr[lag] > corr[best] {
			best = lag
		}
	}

	best = preferShorter(corr, best, minLag, maxLag)

	period := float64(best) + parabolicOffset(corr[best-1], corr[best], corr[best+1])
	return period, corr[best] - median(corr[minLag:maxLag+1]), nil
}

// fraction of the winning correlation a half-period lag must keep to replace it
const halfCorrRatio = 0.5

// preferShorter walks from best down through its halves, stopping at the
// first half lag that no longer correlates well enough.
func preferShorter(corr []float64, best, minLag, maxLag int) int {
	for corr[best] > 0 {
		h := float64(best) / 2
		lo := max(minLag, int(math.Floor(h))-1)
		hi := min(maxLag, int(math.Ceil(h))+1)
		if lo > hi {
			break
		}
		cand := lo
		for lag := lo + 1; lag <= hi; lag++ {
			if corr[lag] > corr[cand] {
				cand = lag
			}
		}
		if cand >= best || corr[cand] < halfCorrRatio*corr[best] {
			break
		}
		best = cand
	}
	return best
}

func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// parabolicOffset locates the vertex of the parabola through three
// neighbouring samples, relative to the middle one.
func parabolicOffset(a, b, c float64) float64 {
	den := a - 2*b + c
	if den >= 0 {
		return 0
	}
	return min(max(0.5*(a-c)/den, -0.5), 0.5)
}

// trackBeats anchors a grid of the given period on the envelope and snaps
// each grid point to the strongest onset within the snap tolerance. After a
// successful snap the grid continues from the snapped frame, so slow drift
// in the estimated period does not accumulate.
func (d *Detector) trackBeats(env []float64, period float64) []gridBeat {
	phase := bestPhase(env, period)
	tol := max(1, int(math.Round(d.snapTolerance*period)))

	var out []gridBeat
	last := -1
	expected := float64(phase)
	for k := 0; ; k++ {
		center := int(math.Round(expected))
		if center >= len(env) {
			break
		}
		frame := snap(env, center, tol)
		if frame > last {
			out = append(out, gridBeat{frame: frame, index: k})
			last = frame
		}
		if env[frame] > 0 {
			expected = float64(frame) + period
		} else {
			expected += period
		}
	}
	return out
}

// bestPhase picks the first-period offset whose grid collects the most onset energy.
func bestPhase(env []float64, period float64) int {
	best, bestSum := 0, -1.0
	limit := min(len(env), int(math.Ceil(period)))
	for phase := 0; phase < limit; phase++ {
		var sum float64
		for pos := float64(phase); ; pos += period {
			i := int(math.Round(pos))
			if i >= len(env) {
				break
			}
			sum += env[i]
		}
		if sum > bestSum {
			best, bestSum = phase, sum
		}
	}
	return best
}

// snap returns the frame with the largest envelope within tol of center.
// Ties go to the frame closest to center.
func snap(env []float64, center, tol int) int {
	best := center
	for dist := 1; dist <= tol; dist++ {
		for _, i := range [2]int{center - dist, center + dist} {
			if i >= 0 && i < len(env) && env[i] > env[best] {
				best = i
			}
		}
	}
	return best
}
