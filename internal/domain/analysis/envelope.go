package analysis

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// band magnitudes are compressed as log(1 + compression*|X|)
	compression = 100
	// frames on either side used for the local mean
	detrendRadius = 8
	// frames between cancellation checks
	ctxCheckEvery = 64

	// log-spaced bands the spectrum is pooled into
	bandCount = 24
	bandMinHz = 30
	bandMaxHz = 16000

	// width of the Gaussian applied to the envelope, in frames; onsets are
	// a single frame wide and the beat period is rarely a whole frame count
	smoothSigma = 1.0
)

// band is a half-open range of FFT bins.
type band struct{ lo, hi int }

// onsetEnvelope returns one smoothed, rectified band-flux value per frame.
// Pooling bins into bands before taking the flux averages out broadband
// noise, which would otherwise swamp the onsets bin by bin.
func (d *Detector) onsetEnvelope(ctx context.Context, samples []float32, sampleRate int, p *progress) ([]float64, error) {
	n := d.frameSize
	frames := 1 + (len(samples)-n)/d.hopSize

	window := hann(n)
	fft := fourier.NewFFT(n)
	bands := bandLayout(n, sampleRate)
	buf := make([]float64, n)
	var coeffs []complex128
	prev := make([]float64, len(bands))
	cur := make([]float64, len(bands))
	flux := make([]float64, frames)

	for f := 0; f < frames; f++ {
		if f%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("onset envelope: %w", err)
			}
			p.span(1, 60, f, frames)
		}

		off := f * d.hopSize
		for i := range buf {
			buf[i] = sanitize(samples[off+i]) * window[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)

		var sum float64
		for b, bd := range bands {
			var mag float64
			for _, c := range coeffs[bd.lo:bd.hi] {
				mag += cmplx.Abs(c)
			}
			m := math.Log1p(compression * mag / float64(bd.hi-bd.lo))
			if diff := m - prev[b]; diff > 0 {
				sum += diff
			}
			cur[b] = m
		}
		flux[f] = sum
		prev, cur = cur, prev
	}

	return smooth(detrend(flux, detrendRadius), smoothSigma), nil
}

// bandLayout splits the bins of an n-point FFT into log-spaced bands
// between bandMinHz and bandMaxHz (or Nyquist). Every band holds at least
// one bin and bands never overlap.
func bandLayout(n, sampleRate int) []band {
	bins := n/2 + 1
	toBin := func(hz float64) int {
		return max(1, int(math.Round(hz*float64(n)/float64(sampleRate))))
	}

	top := math.Min(bandMaxHz, float64(sampleRate)/2)
	if top <= bandMinHz {
		return []band{{lo: 1, hi: bins}}
	}

	var out []band
	lo := toBin(bandMinHz)
	for i := 1; i <= bandCount; i++ {
		hz := bandMinHz * math.Pow(top/bandMinHz, float64(i)/bandCount)
		hi := min(max(toBin(hz), lo+1), bins)
		if hi > lo {
			out = append(out, band{lo: lo, hi: hi})
		}
		lo = hi
	}
	if len(out) == 0 {
		return []band{{lo: 1, hi: bins}}
	}
	return out
}

// detrend subtracts the local mean and keeps only the positive part.
func detrend(x []float64, radius int) []float64 {
	prefix := make([]float64, len(x)+1)
	for i, v := range x {
		prefix[i+1] = prefix[i] + v
	}
	out := make([]float64, len(x))
	for t, v := range x {
		lo := max(0, t-radius)
		hi := min(len(x)-1, t+radius)
		mean := (prefix[hi+1] - prefix[lo]) / float64(hi-lo+1)
		if v > mean {
			out[t] = v - mean
		}
	}
	return out
}

// smooth convolves x with a normalized Gaussian kernel. Samples beyond the
// ends count as zero.
func smooth(x []float64, sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var total float64
	for i := range kernel {
		d := float64(i-radius) / sigma
		kernel[i] = math.Exp(-0.5 * d * d)
		total += kernel[i]
	}

	out := make([]float64, len(x))
	for t := range x {
		var acc float64
		for i, w := range kernel {
			if j := t + i - radius; j >= 0 && j < len(x) {
				acc += w * x[j]
			}
		}
		out[t] = acc / total
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}
