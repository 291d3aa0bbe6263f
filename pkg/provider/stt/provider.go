// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (e.g., a local
// whisper.cpp model, a whisper-server binary, or the Deepgram REST API) and
// exposes a uniform request/response interface. The capture pipeline hands
// each assembled audio window to Transcribe and appends the returned segments
// to the session transcript.
//
// Implementations must be safe for concurrent use. Multiple windows may be in
// flight simultaneously when the pipeline is configured with more than one
// transcription worker.
package stt

import "context"

// Request describes a single batch transcription call. Samples must be mono
// float32 audio normalised to [-1.0, 1.0].
type Request struct {
	// Samples is the audio window to transcribe.
	Samples []float32

	// SampleRate is the sample rate of Samples in Hz. Common value: 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe runs speech recognition over the audio in req and returns the
	// recognised segments in order. An empty slice (with nil error) means the
	// window contained no recognisable speech.
	//
	// Transcribe must respect ctx cancellation; long-running native inference
	// should check ctx between decoding passes where the backend allows it.
	Transcribe(ctx context.Context, req Request) ([]Segment, error)
}
