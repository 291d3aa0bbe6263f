package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nwehr/confab/pkg/audio"
)

const (
	defaultSampleRate    = 16000
	defaultChunkDuration = 100 * time.Millisecond
)

// Compile-time assertion that ReaderSource implements Source.
var _ Source = (*ReaderSource)(nil)

// ReaderOption is a functional option for configuring a ReaderSource.
type ReaderOption func(*ReaderSource)

// WithReaderSampleRate sets the sample rate of the incoming PCM stream in Hz.
// Defaults to 16000.
func WithReaderSampleRate(rate int) ReaderOption {
	return func(s *ReaderSource) { s.sampleRate = rate }
}

// WithReaderChannels sets the channel count of the incoming PCM stream.
// Multi-channel input is down-mixed to mono. Defaults to 1.
func WithReaderChannels(channels int) ReaderOption {
	return func(s *ReaderSource) { s.channels = channels }
}

// WithReaderChunkDuration sets how much audio each emitted chunk carries.
// Defaults to 100 ms.
func WithReaderChunkDuration(d time.Duration) ReaderOption {
	return func(s *ReaderSource) { s.chunkDuration = d }
}

// ReaderSource captures 16-bit signed little-endian PCM from an io.Reader —
// typically a pipe fed by a recording tool (e.g., arecord, sox, ffmpeg) or a
// file for replay. It emits fixed-duration chunks until EOF.
type ReaderSource struct {
	r             io.Reader
	sampleRate    int
	channels      int
	chunkDuration time.Duration

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu      sync.Mutex
	readErr error

	started bool
}

// NewReaderSource creates a ReaderSource reading from r.
func NewReaderSource(r io.Reader, opts ...ReaderOption) (*ReaderSource, error) {
	if r == nil {
		return nil, errors.New("capture: reader must not be nil")
	}
	s := &ReaderSource{
		r:             r,
		sampleRate:    defaultSampleRate,
		channels:      1,
		chunkDuration: defaultChunkDuration,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", s.sampleRate)
	}
	if s.channels <= 0 {
		return nil, fmt.Errorf("capture: invalid channel count %d", s.channels)
	}
	return s, nil
}

// Start implements Source.
func (s *ReaderSource) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if s.started {
		return nil, errors.New("capture: source already started")
	}
	s.started = true

	out := make(chan audio.Chunk, 16)
	s.wg.Add(1)
	go s.readLoop(ctx, out)
	return out, nil
}

// Err implements Source. EOF and short reads are a clean end of input; any
// other read error is a capture failure.
func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Close implements Source. It stops the read loop; the chunk channel closes
// once the loop exits.
func (s *ReaderSource) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *ReaderSource) readLoop(ctx context.Context, out chan<- audio.Chunk) {
	defer s.wg.Done()
	defer close(out)

	bytesPerChunk := int(s.chunkDuration*time.Duration(s.sampleRate)/time.Second) * s.channels * 2
	buf := make([]byte, bytesPerChunk)
	var elapsed time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			samples := audio.PCMToFloat32Mono(buf[:n], s.channels)
			chunk := audio.Chunk{
				Samples:    samples,
				SampleRate: s.sampleRate,
				Timestamp:  elapsed,
			}
			elapsed += chunk.Duration()

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		if err != nil {
			// EOF and short reads end the stream cleanly.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.mu.Lock()
				s.readErr = fmt.Errorf("capture: read audio: %w", err)
				s.mu.Unlock()
			}
			return
		}
	}
}
