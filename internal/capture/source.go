// Package capture moves audio from an input source into fixed-size,
// overlapping windows ready for batch transcription.
//
// The pipeline is: a Source produces raw chunks, the Queue decouples capture
// timing from transcription latency, and the Assembler slices the queued
// audio into windows with enough overlap that words spanning a window
// boundary are recognised in at least one of the two windows.
package capture

import (
	"context"

	"github.com/nwehr/confab/pkg/audio"
)

// Source produces audio chunks from some input: a file or pipe, a WebSocket
// stream, or a test fixture.
type Source interface {
	// Start begins capture and returns the chunk channel. The channel is
	// closed when the source reaches end of input, when ctx is cancelled, or
	// when Close is called. Start must be called at most once.
	Start(ctx context.Context) (<-chan audio.Chunk, error)

	// Err reports why the chunk channel closed. It returns nil while the
	// source is running and after a clean end of input or Close; a non-nil
	// error means capture failed mid-session (device lost, connection
	// dropped). Only valid to read once the chunk channel has closed.
	Err() error

	// Close stops capture and releases resources. Calling Close more than
	// once is safe and returns nil.
	Close() error
}
