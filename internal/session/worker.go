package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nwehr/confab/internal/capture"
	"github.com/nwehr/confab/internal/observe"
	"github.com/nwehr/confab/internal/transcript"
	"github.com/nwehr/confab/pkg/audio"
	"github.com/nwehr/confab/pkg/provider/stt"
)

// captureLoop moves chunks from the audio source into the session queue.
// When the source's channel closes (source closed or capture failed) the
// queue is closed so the worker knows no more audio is coming.
func (o *Orchestrator) captureLoop(ctx context.Context, sess *session, chunks <-chan audio.Chunk) error {
	defer sess.queue.Close()

	for {
		select {
		case <-ctx.Done():
			// The source keeps producing until Close finishes; drain its
			// channel so it never blocks on a send.
			go audio.Drain(chunks)
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				// Clean end of input returns nil; a mid-session capture
				// failure propagates so the summary reports it.
				return sess.source.Err()
			}
			sess.queue.Push(chunk)
			o.cfg.Metrics.QueueBacklog.Add(ctx, 1)
		}
	}
}

// workerLoop is the transcription worker: it pops chunks off the queue,
// slices them into overlapping windows, transcribes each window, appends the
// text to the ledger, and feeds the analysis engine. It owns the assembler
// and the engine exclusively.
//
// The loop ends when the queue is closed and fully drained; the assembler
// remainder is then flushed so trailing audio shorter than a full window is
// still transcribed.
func (o *Orchestrator) workerLoop(ctx context.Context, sess *session) error {
	assembler, err := capture.NewAssembler(capture.AssemblerConfig{
		SampleRate: o.cfg.SampleRate,
		Window:     o.cfg.Window,
		Overlap:    o.cfg.Overlap,
		MinFlush:   o.cfg.MinFlush,
	})
	if err != nil {
		return fmt.Errorf("session: create assembler: %w", err)
	}

	for {
		chunk, ok := sess.queue.Pop(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			break
		}
		o.cfg.Metrics.QueueBacklog.Add(ctx, -1)

		for _, w := range assembler.Push(chunk) {
			o.cfg.Metrics.WindowsAssembled.Add(ctx, 1)
			o.processWindow(ctx, sess, w)
		}
	}

	// Queue closed and drained: flush whatever is left in the assembler.
	if w, ok := assembler.Flush(); ok {
		o.cfg.Metrics.WindowsAssembled.Add(ctx, 1)
		o.processWindow(ctx, sess, w)
	}
	return nil
}

// processWindow transcribes one window and routes the text into the ledger
// and the analysis engine. Transcription failures are logged and the window
// is skipped; the overlap with neighbouring windows limits what is lost.
func (o *Orchestrator) processWindow(ctx context.Context, sess *session, w capture.Window) {
	ctx, span := observe.StartSpan(ctx, "session.window",
		trace.WithAttributes(
			attribute.String("session.id", sess.id),
			attribute.Int("window.index", int(w.Index)),
		),
	)
	defer span.End()

	log := observe.Logger(ctx, o.cfg.Logger)
	log.Debug("transcribing window",
		"session", sess.id, "window", w.Index,
		"samples", len(w.Samples), "rms", audio.RMS(w.Samples))

	started := time.Now()
	sttCtx, sttSpan := observe.StartSpan(ctx, "stt.transcribe")
	segments, err := o.cfg.STT.Transcribe(sttCtx, stt.Request{
		Samples:    w.Samples,
		SampleRate: w.SampleRate,
		Language:   o.cfg.Language,
	})
	sttSpan.End()
	o.cfg.Metrics.STTDuration.Record(ctx, time.Since(started).Seconds())
	if err != nil {
		log.Warn("transcription failed, skipping window",
			"session", sess.id, "window", w.Index, "error", err)
		o.cfg.Metrics.WindowsDropped.Add(ctx, 1)
		o.cfg.Metrics.RecordProviderError(ctx, o.cfg.STTName, "stt")
		return
	}

	text := joinSegments(segments)
	if text == "" {
		return
	}

	sess.ledger.Append(transcript.Entry{
		WindowIndex: w.Index,
		Text:        text,
		Offset:      w.Offset,
		ReceivedAt:  time.Now(),
	})
	o.cfg.Metrics.SegmentsTranscribed.Add(ctx, 1)

	if result := sess.engine.Ingest(ctx, text); result != nil && result.IsError() {
		log.Warn("analysis pass degraded",
			"session", sess.id, "window", w.Index, "analysis", result.TechnicalAnalysis)
	}
}

// joinSegments concatenates segment texts into one transcript entry.
func joinSegments(segments []stt.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
