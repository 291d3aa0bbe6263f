package audio

import "time"

// Chunk represents a block of mono audio samples flowing through the capture
// pipeline. Chunks are the atomic unit of audio transport — produced by a
// capture source, queued for windowing, and assembled into overlapping
// transcription windows.
type Chunk struct {
	// Samples holds normalised float32 samples in the range [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Timestamp marks when this chunk was captured, relative to session start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}
