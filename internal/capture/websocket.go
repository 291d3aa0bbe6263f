package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nwehr/confab/pkg/audio"
)

// Compile-time assertion that WebsocketSource implements Source.
var _ Source = (*WebsocketSource)(nil)

// WebsocketOption is a functional option for configuring a WebsocketSource.
type WebsocketOption func(*WebsocketSource)

// WithWebsocketSampleRate sets the sample rate of the incoming PCM stream in
// Hz. Defaults to 16000.
func WithWebsocketSampleRate(rate int) WebsocketOption {
	return func(s *WebsocketSource) { s.sampleRate = rate }
}

// WithWebsocketChannels sets the channel count of the incoming PCM stream.
// Multi-channel input is down-mixed to mono. Defaults to 1.
func WithWebsocketChannels(channels int) WebsocketOption {
	return func(s *WebsocketSource) { s.channels = channels }
}

// WithWebsocketHeader sets extra HTTP headers sent with the dial request,
// e.g. an Authorization token.
func WithWebsocketHeader(h http.Header) WebsocketOption {
	return func(s *WebsocketSource) { s.header = h }
}

// WebsocketSource captures audio pushed over a WebSocket connection. Each
// binary message carries raw 16-bit signed little-endian PCM; text messages
// are ignored. The stream ends when the peer closes the connection.
type WebsocketSource struct {
	url        string
	sampleRate int
	channels   int
	header     http.Header

	mu      sync.Mutex
	conn    *websocket.Conn
	readErr error

	done chan struct{}
	once sync.Once

	started bool
}

// NewWebsocketSource creates a source that dials wsURL on Start.
func NewWebsocketSource(wsURL string, opts ...WebsocketOption) (*WebsocketSource, error) {
	if wsURL == "" {
		return nil, errors.New("capture: websocket URL must not be empty")
	}
	s := &WebsocketSource{
		url:        wsURL,
		sampleRate: defaultSampleRate,
		channels:   1,
		done:       make(chan struct{}),
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

// Start implements Source. It dials the WebSocket endpoint and begins
// receiving audio messages.
func (s *WebsocketSource) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if s.started {
		return nil, errors.New("capture: source already started")
	}
	s.started = true

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: s.header,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: dial %s: %w", s.url, err)
	}
	// The 32 KiB default read limit is under a second of 16 kHz PCM; allow a
	// few seconds per message.
	conn.SetReadLimit(1 << 22)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	out := make(chan audio.Chunk, 16)
	go s.readLoop(ctx, conn, out)
	return out, nil
}

// Err implements Source. A peer-initiated normal closure or a local Close is
// a clean end of stream; anything else is a capture failure.
func (s *WebsocketSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// Close implements Source. It closes the connection, which unblocks the read
// loop and closes the chunk channel.
func (s *WebsocketSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "capture stopped")
		}
	})
	return nil
}

func (s *WebsocketSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- audio.Chunk) {
	defer close(out)
	defer conn.Close(websocket.StatusNormalClosure, "capture stopped")

	var elapsed time.Duration
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Local Close; clean end of stream.
			case <-ctx.Done():
			default:
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					s.mu.Lock()
					s.readErr = fmt.Errorf("capture: read websocket: %w", err)
					s.mu.Unlock()
				}
			}
			return
		}
		if typ != websocket.MessageBinary || len(data) == 0 {
			continue
		}

		samples := audio.PCMToFloat32Mono(data, s.channels)
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
}
