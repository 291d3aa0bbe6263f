// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcription results to the
// pipeline without a live STT backend.
package mock

import (
	"context"
	"sync"

	"github.com/nwehr/confab/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
// Zero values for response fields cause Transcribe to return nil, nil.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Segments is returned by Transcribe when Responses is empty.
	Segments []stt.Segment

	// Responses, when non-empty, is consumed one element per call in order.
	// After the slice is exhausted Transcribe falls back to Segments.
	Responses [][]stt.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if non-nil, overrides all other response fields and is
	// invoked directly. The call is still recorded.
	TranscribeFunc func(ctx context.Context, req stt.Request) ([]stt.Segment, error)

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	fn := p.TranscribeFunc
	var segs []stt.Segment
	var err error
	if fn == nil {
		if len(p.Responses) > 0 {
			segs = p.Responses[0]
			p.Responses = p.Responses[1:]
		} else {
			segs = p.Segments
		}
		err = p.Err
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return segs, err
}

// Calls returns a snapshot of all recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
