package stt

import "time"

// Segment represents one recognised span of speech within a transcription
// request. Offsets are relative to the start of the submitted audio window,
// not the session.
type Segment struct {
	// Text is the transcribed speech content.
	Text string

	// Start is the offset of the segment within the submitted window.
	Start time.Duration

	// End is the offset at which the segment ends.
	End time.Duration

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the backend does not report confidence.
	Confidence float64
}
