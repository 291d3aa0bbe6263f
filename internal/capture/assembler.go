package capture

import (
	"errors"
	"time"

	"github.com/nwehr/confab/pkg/audio"
)

// Default windowing parameters. A 3 s window with 1.5 s overlap means every
// sample (except the first and last half-window) is transcribed twice, so a
// word cut off at a window boundary is still recognised whole in the
// neighbouring window.
const (
	DefaultWindow   = 3 * time.Second
	DefaultOverlap  = 1500 * time.Millisecond
	DefaultMinFlush = time.Second
)

// Window is a fixed-size slice of session audio handed to the transcription
// worker.
type Window struct {
	// Index is the window sequence number, starting at 0.
	Index uint64

	// Samples is the mono float32 audio for this window.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Offset is the position of the window's first sample within the session
	// audio stream.
	Offset time.Duration

	// Partial marks a final flushed window that is shorter than the
	// configured window duration.
	Partial bool
}

// Assembler slices a stream of variable-size chunks into fixed-size windows
// with the configured overlap. It is not safe for concurrent use; the
// transcription worker owns it exclusively.
type Assembler struct {
	sampleRate     int
	windowSamples  int
	overlapSamples int
	minFlush       int

	buf       []float32
	bufOffset int64 // absolute index of buf[0] in the session stream
	nextIndex uint64
}

// AssemblerConfig configures window slicing. Zero durations fall back to the
// defaults above.
type AssemblerConfig struct {
	SampleRate int
	Window     time.Duration
	Overlap    time.Duration
	MinFlush   time.Duration
}

// NewAssembler validates cfg and creates an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("capture: sample rate must be positive")
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.MinFlush == 0 {
		cfg.MinFlush = DefaultMinFlush
	}
	if cfg.Overlap >= cfg.Window {
		return nil, errors.New("capture: overlap must be shorter than window")
	}

	samplesFor := func(d time.Duration) int {
		return int(d * time.Duration(cfg.SampleRate) / time.Second)
	}
	return &Assembler{
		sampleRate:     cfg.SampleRate,
		windowSamples:  samplesFor(cfg.Window),
		overlapSamples: samplesFor(cfg.Overlap),
		minFlush:       samplesFor(cfg.MinFlush),
	}, nil
}

// Push appends a chunk and returns any windows that became complete. The
// returned windows own their sample slices; the assembler never aliases them.
func (a *Assembler) Push(c audio.Chunk) []Window {
	a.buf = append(a.buf, c.Samples...)

	var out []Window
	for len(a.buf) >= a.windowSamples {
		samples := make([]float32, a.windowSamples)
		copy(samples, a.buf[:a.windowSamples])
		out = append(out, a.window(samples, false))

		// Retain the overlap tail; everything before it is consumed.
		hop := a.windowSamples - a.overlapSamples
		a.buf = a.buf[hop:]
		a.bufOffset += int64(hop)
	}
	return out
}

// Flush returns the remaining buffered audio as a final partial window, or
// ok == false when the remainder is too short to be worth transcribing
// (shorter than the min-flush duration). The assembler is empty afterwards
// either way.
func (a *Assembler) Flush() (Window, bool) {
	defer func() {
		a.buf = nil
	}()

	if len(a.buf) <= a.minFlush {
		return Window{}, false
	}
	samples := make([]float32, len(a.buf))
	copy(samples, a.buf)
	return a.window(samples, true), true
}

// Buffered returns the duration of audio currently held back.
func (a *Assembler) Buffered() time.Duration {
	return time.Duration(len(a.buf)) * time.Second / time.Duration(a.sampleRate)
}

func (a *Assembler) window(samples []float32, partial bool) Window {
	w := Window{
		Index:      a.nextIndex,
		Samples:    samples,
		SampleRate: a.sampleRate,
		Offset:     time.Duration(a.bufOffset) * time.Second / time.Duration(a.sampleRate),
		Partial:    partial,
	}
	a.nextIndex++
	return w
}
