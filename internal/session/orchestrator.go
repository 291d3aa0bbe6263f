// Package session coordinates the live meeting pipeline: audio capture,
// window assembly, transcription, and progressive analysis.
//
// An [Orchestrator] owns at most one recording session at a time and moves
// through idle → recording → stopping → idle. Stopping is graceful: capture
// ends first, then the transcription worker drains every queued chunk and
// flushes the assembler remainder so no captured audio is lost, then the
// final analysis runs over the complete transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nwehr/confab/internal/analysis"
	"github.com/nwehr/confab/internal/capture"
	"github.com/nwehr/confab/internal/observe"
	"github.com/nwehr/confab/internal/transcript"
	"github.com/nwehr/confab/pkg/provider/llm"
	"github.com/nwehr/confab/pkg/provider/stt"
)

// DefaultStopTimeout bounds how long Stop waits for the pipeline to drain.
const DefaultStopTimeout = 5 * time.Second

var (
	// ErrAlreadyRecording is returned by Start when a session is active.
	ErrAlreadyRecording = errors.New("session: already recording")

	// ErrNotRecording is returned by Stop when no session is active, which
	// makes a doubled stop request harmless.
	ErrNotRecording = errors.New("session: not recording")

	// errPipelineStuck marks a summary whose worker never exited, typically a
	// provider call that ignores context cancellation.
	errPipelineStuck = errors.New("session: pipeline unresponsive after cancel, abandoned")
)

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config configures an [Orchestrator].
type Config struct {
	// NewSource creates a fresh audio source for each session. Required.
	NewSource func() (capture.Source, error)

	// STT transcribes audio windows. Required.
	STT stt.Provider

	// LLM runs the analysis passes. Required.
	LLM llm.Provider

	// SampleRate of the captured audio in Hz. Defaults to 16000.
	SampleRate int

	// Window, Overlap, and MinFlush configure window slicing. Zero values use
	// the capture package defaults.
	Window   time.Duration
	Overlap  time.Duration
	MinFlush time.Duration

	// Language hint passed to the STT provider. Empty uses its default.
	Language string

	// STTName is the configured STT provider name, used in error metrics.
	STTName string

	// SessionName is embedded in generated session IDs
	// (session-<name>-<UTC timestamp>). Empty omits the name part.
	SessionName string

	// Analysis holds the progressive-summarization thresholds. Its Provider,
	// Logger, and Metrics fields are filled in by the orchestrator.
	Analysis analysis.Config

	// StopTimeout bounds how long Stop waits for the pipeline to drain.
	// Defaults to [DefaultStopTimeout].
	StopTimeout time.Duration

	// Logger receives session log records. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives pipeline counters. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Summary is the outcome of a completed session.
type Summary struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time

	// NoSpeech is true when the session produced no transcript at all, in
	// which case Final is nil.
	NoSpeech bool

	// Err is non-nil when capture or the pipeline failed mid-session. The
	// transcript gathered before the failure is still summarised.
	Err error

	// Transcript is the full session transcript.
	Transcript string

	// Segments and Words describe the transcript ledger.
	Segments int
	Words    int

	// Final is the comprehensive end-of-session analysis.
	Final *analysis.Result

	Stats analysis.Stats
}

// Orchestrator drives the capture → transcribe → analyse pipeline for one
// session at a time. It is safe for concurrent use.
type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	state State
	sess  *session
	last  *Summary
}

// session bundles everything owned by one recording.
type session struct {
	id        string
	startedAt time.Time

	source capture.Source
	queue  *capture.Queue
	ledger *transcript.Ledger
	engine *analysis.Engine

	cancel context.CancelFunc
	group  *errgroup.Group
	span   trace.Span
}

// NewOrchestrator validates cfg, applies defaults, and creates an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.NewSource == nil {
		return nil, errors.New("session: NewSource must not be nil")
	}
	if cfg.STT == nil {
		return nil, errors.New("session: STT must not be nil")
	}
	if cfg.LLM == nil {
		return nil, errors.New("session: LLM must not be nil")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.STTName == "" {
		cfg.STTName = "stt"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Start begins a new recording session and returns its ID. It fails with
// [ErrAlreadyRecording] when a session is active.
//
// The supplied ctx scopes the whole session: cancelling it aborts capture
// and transcription without the graceful drain that Stop performs.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return "", ErrAlreadyRecording
	}

	id := "session-"
	if o.cfg.SessionName != "" {
		id += o.cfg.SessionName + "-"
	}
	id += time.Now().UTC().Format("20060102-150405")

	engCfg := o.cfg.Analysis
	engCfg.Provider = o.cfg.LLM
	engCfg.Logger = o.cfg.Logger.With("session", id)
	engCfg.Metrics = o.cfg.Metrics
	engine, err := analysis.New(engCfg)
	if err != nil {
		return "", fmt.Errorf("session: create analysis engine: %w", err)
	}

	source, err := o.cfg.NewSource()
	if err != nil {
		return "", fmt.Errorf("session: create source: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	// The session span roots every STT and LLM span below it; its trace ID
	// correlates all log records and provider calls of this recording.
	sessCtx, span := observe.StartSpan(sessCtx, "session",
		trace.WithAttributes(attribute.String("session.id", id)))
	chunks, err := source.Start(sessCtx)
	if err != nil {
		span.End()
		cancel()
		_ = source.Close()
		return "", fmt.Errorf("session: start capture: %w", err)
	}

	group, groupCtx := errgroup.WithContext(sessCtx)
	sess := &session{
		id:        id,
		startedAt: time.Now(),
		source:    source,
		queue:     capture.NewQueue(),
		ledger:    transcript.NewLedger(),
		engine:    engine,
		cancel:    cancel,
		group:     group,
		span:      span,
	}

	group.Go(func() error {
		return o.captureLoop(groupCtx, sess, chunks)
	})
	group.Go(func() error {
		return o.workerLoop(groupCtx, sess)
	})

	o.sess = sess
	o.state = StateRecording
	o.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	o.cfg.Logger.Info("session started",
		"session", id,
		"sample_rate", o.cfg.SampleRate,
		"trace_id", observe.CorrelationID(sessCtx),
	)

	// Surface a mid-session pipeline failure immediately; Stop still
	// collects the partial transcript.
	go func() {
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			o.cfg.Logger.Error("capture pipeline failed", "session", id, "error", err)
		}
	}()

	return id, nil
}

// Stop ends the active session gracefully and returns its [Summary]. Capture
// stops first; the worker then drains every queued chunk and flushes the
// assembler remainder before the final analysis runs. The drain is bounded
// by StopTimeout; past it the pipeline is cancelled and whatever transcript
// exists is summarised. A worker that survives cancellation for another
// StopTimeout is abandoned, with the abandonment reported in [Summary.Err].
//
// Stop is idempotent in effect: with no active session it returns
// [ErrNotRecording] and changes nothing.
func (o *Orchestrator) Stop(ctx context.Context) (*Summary, error) {
	o.mu.Lock()
	if o.state != StateRecording {
		o.mu.Unlock()
		return nil, ErrNotRecording
	}
	sess := o.sess
	o.state = StateStopping
	o.mu.Unlock()

	o.cfg.Logger.Info("session stopping", "session", sess.id, "backlog", sess.queue.Len())

	// Stop capture. The source closes its chunk channel, the capture loop
	// closes the queue, and the worker drains what remains.
	if err := sess.source.Close(); err != nil {
		o.cfg.Logger.Warn("closing audio source", "session", sess.id, "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.group.Wait() }()

	var joinErr error
	select {
	case joinErr = <-done:
	case <-time.After(o.cfg.StopTimeout):
		o.cfg.Logger.Warn("session drain timed out, cancelling pipeline",
			"session", sess.id, "timeout", o.cfg.StopTimeout)
		sess.cancel()
		// A provider that ignores its context can wedge the worker even
		// after cancellation; abandon it rather than hold Stop forever.
		select {
		case joinErr = <-done:
		case <-time.After(o.cfg.StopTimeout):
			o.cfg.Logger.Error("pipeline did not exit after cancel, abandoning it",
				"session", sess.id)
			joinErr = errPipelineStuck
		}
	}
	if errors.Is(joinErr, context.Canceled) {
		joinErr = nil
	}
	if joinErr != nil {
		o.cfg.Logger.Error("session pipeline error", "session", sess.id, "error", joinErr)
	}

	summary := o.summarise(ctx, sess)
	summary.Err = joinErr

	sess.span.End()
	sess.cancel()
	o.mu.Lock()
	o.sess = nil
	o.state = StateIdle
	o.last = summary
	o.mu.Unlock()
	o.cfg.Metrics.ActiveSessions.Add(ctx, -1)

	o.cfg.Logger.Info("session stopped",
		"session", sess.id,
		"segments", summary.Segments,
		"words", summary.Words,
		"no_speech", summary.NoSpeech,
	)
	return summary, nil
}

// summarise runs the final analysis pass and assembles the session summary.
func (o *Orchestrator) summarise(ctx context.Context, sess *session) *Summary {
	summary := &Summary{
		SessionID:  sess.id,
		StartedAt:  sess.startedAt,
		EndedAt:    time.Now(),
		Transcript: sess.ledger.Text(),
		Segments:   sess.ledger.Len(),
		Words:      sess.ledger.Words(),
		Stats:      sess.engine.Stats(),
	}
	if summary.Segments == 0 {
		summary.NoSpeech = true
		return summary
	}
	summary.Final = sess.engine.Finalize(ctx)
	return summary
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID returns the active session's ID, or "" when idle.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return ""
	}
	return o.sess.id
}

// Latest returns the most recent analysis result of the active session, or
// nil when idle or before the first pass.
func (o *Orchestrator) Latest() *analysis.Result {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.engine.Latest()
}

// Transcript returns the active session's transcript so far, or "" when idle.
func (o *Orchestrator) Transcript() string {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil {
		return ""
	}
	return sess.ledger.Text()
}

// Snapshot is a point-in-time view of the orchestrator for status queries.
type Snapshot struct {
	State     State
	SessionID string
	Words     int
	Segments  int
	Duration  time.Duration
}

// Snapshot returns the current orchestrator status. While idle, the counts
// are zero and SessionID is empty.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	state, sess := o.state, o.sess
	o.mu.Unlock()

	snap := Snapshot{State: state}
	if sess == nil {
		return snap
	}
	snap.SessionID = sess.id
	snap.Words = sess.ledger.Words()
	snap.Segments = sess.ledger.Len()
	snap.Duration = time.Since(sess.startedAt)
	return snap
}

// FinalReport returns the summary of the most recently completed session, or
// nil if no session has finished yet.
func (o *Orchestrator) FinalReport() *Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// SetAnalysisConfig replaces the analysis thresholds used for sessions
// started after this call. The running session, if any, keeps its current
// thresholds. Provider, Logger, and Metrics fields are still filled in by
// the orchestrator and may be left zero.
func (o *Orchestrator) SetAnalysisConfig(cfg analysis.Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Analysis = cfg
}

// Backlog returns the number of captured chunks waiting for transcription.
func (o *Orchestrator) Backlog() int {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil {
		return 0
	}
	return sess.queue.Len()
}
