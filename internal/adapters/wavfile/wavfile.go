// Package wavfile converts between PCM WAV files and mono float samples.
package wavfile

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmFormat      = 1
	encodeBitDepth = 16
)

// Track is a decoded, downmixed track.
type Track struct {
	Samples    []float32 // mono, in [-1, 1]
	SampleRate int
	Channels   int // channel count of the source
	BitDepth   int
}

// DurationMs returns the track length in milliseconds.
func (t Track) DurationMs() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.SampleRate) * 1000
}

// Load decodes the WAV file at path.
func Load(path string) (Track, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return Track{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := Decode(f)
	if err != nil {
		return Track{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

// Decode reads an integer PCM WAV stream and downmixes it to mono.
func Decode(r io.ReadSeeker) (Track, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Track{}, ErrInvalidFile
	}
	if d.WavAudioFormat != pcmFormat {
		return Track{}, fmt.Errorf("%w: audio format %d", ErrUnsupported, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Track{}, fmt.Errorf("read pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return Track{}, fmt.Errorf("%w: missing format chunk", ErrInvalidFile)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth < 8 || depth > 32 {
		return Track{}, fmt.Errorf("%w: bit depth %d", ErrUnsupported, depth)
	}

	return Track{
		Samples:    Downmix(buf.Data, buf.Format.NumChannels, depth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   depth,
	}, nil
}

// Downmix averages interleaved integer frames into mono samples scaled to
// [-1, 1]. A trailing partial frame is dropped.
func Downmix(interleaved []int, channels, bitDepth int) []float32 {
	if channels < 1 {
		return nil
	}
	scale := float64(int64(1) << (bitDepth - 1))
	// 8-bit WAV is unsigned
	var bias float64
	if bitDepth == 8 {
		bias = 128
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[f*channels+c]) - bias
		}
		v := sum / float64(channels) / scale
		out[f] = float32(math.Max(-1, math.Min(1, v)))
	}
	return out
}

// Encode writes mono samples as a 16-bit PCM WAV stream.
func Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupported, sampleRate)
	}
	enc := wav.NewEncoder(w, sampleRate, encodeBitDepth, 1, pcmFormat)

	const peak = 1<<(encodeBitDepth-1) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		data[i] = int(math.Round(math.Max(-1, math.Min(1, v)) * peak))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: encodeBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// Save writes samples to path as a 16-bit mono WAV file.
func Save(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, samples, sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
