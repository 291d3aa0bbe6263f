// Package analysis implements progressive summarization of a live meeting
// transcript.
//
// The engine accumulates transcript segments and triggers an LLM analysis
// pass every WordsPerAnalysis words. Before a pass, if WordsPerSummary words
// have arrived since the last compression, the recent discussion is first
// compressed into a rolling summary; the summaries form the long-term context
// so prompts stay bounded no matter how long the meeting runs. Old summaries
// are evicted oldest-first once their combined word count exceeds
// MaxSummaryWords.
//
// Every pass yields a fixed-shape Result. LLM failures are shaped into an
// error Result rather than propagated, so a flaky backend degrades the
// quality of feedback without breaking the session.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nwehr/confab/internal/observe"
	"github.com/nwehr/confab/pkg/provider/llm"
)

// Defaults for Config fields left zero.
const (
	DefaultWordsPerAnalysis = 50
	DefaultWordsPerSummary  = 300
	DefaultMaxSummaryWords  = 1000

	defaultRecentSegments   = 3
	defaultCompressSegments = 5
	defaultDedupLookback    = 10

	defaultTemperature          = 0.3
	defaultAnalysisMaxTokens    = 1500
	defaultSummaryMaxTokens     = 200
	defaultFinalMaxTokens       = 2500
	defaultFinalTranscriptWords = 1000
)

// Config configures an Engine. Provider is required; zero values elsewhere
// fall back to the defaults above.
type Config struct {
	// Provider is the LLM backend used for all passes.
	Provider llm.Provider

	// Logger receives pass-level log records. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives pass counters and LLM latency. Defaults to
	// observe.DefaultMetrics().
	Metrics *observe.Metrics

	// WordsPerAnalysis is the number of new words that triggers an analysis
	// pass.
	WordsPerAnalysis int

	// WordsPerSummary is the number of new words that triggers a rolling
	// summary compression before the next analysis pass.
	WordsPerSummary int

	// MaxSummaryWords caps the combined word count of retained rolling
	// summaries. The oldest summaries are evicted beyond it.
	MaxSummaryWords int

	// RecentSegments is how many trailing transcript segments are quoted
	// verbatim in the analysis context.
	RecentSegments int

	// CompressSegments is how many trailing segments feed a compression pass.
	CompressSegments int

	// DedupLookback is how many recent issues/recommendations are checked
	// when filtering repeats out of a new result.
	DedupLookback int

	// Temperature for all LLM passes.
	Temperature float64

	// AnalysisMaxTokens caps incremental analysis replies.
	AnalysisMaxTokens int

	// SummaryMaxTokens caps compression replies.
	SummaryMaxTokens int

	// FinalMaxTokens caps the final analysis reply.
	FinalMaxTokens int

	// FinalTranscriptWords caps how much raw transcript the final pass sees.
	FinalTranscriptWords int
}

// Stats is a point-in-time snapshot of engine activity.
type Stats struct {
	Duration             time.Duration
	WordCount            int
	SummaryCount         int
	TranscriptSegments   int
	IssuesIdentified     int
	RecommendationsGiven int
}

// Engine is the progressive summarization pipeline for one session.
//
// Ingest and Finalize must be called from a single goroutine (the
// transcription worker owns the engine). Latest and Snapshot accessors are
// safe to call concurrently from other goroutines.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	segments  []string
	wordCount int

	lastAnalysisWords int
	lastSummaryWords  int

	summaries []string

	prevIssues []string
	prevRecs   []string

	latest *Result
	start  time.Time
}

// New validates cfg, applies defaults, and creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, errors.New("analysis: Provider must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.WordsPerAnalysis <= 0 {
		cfg.WordsPerAnalysis = DefaultWordsPerAnalysis
	}
	if cfg.WordsPerSummary <= 0 {
		cfg.WordsPerSummary = DefaultWordsPerSummary
	}
	if cfg.MaxSummaryWords <= 0 {
		cfg.MaxSummaryWords = DefaultMaxSummaryWords
	}
	if cfg.RecentSegments <= 0 {
		cfg.RecentSegments = defaultRecentSegments
	}
	if cfg.CompressSegments <= 0 {
		cfg.CompressSegments = defaultCompressSegments
	}
	if cfg.DedupLookback <= 0 {
		cfg.DedupLookback = defaultDedupLookback
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.AnalysisMaxTokens <= 0 {
		cfg.AnalysisMaxTokens = defaultAnalysisMaxTokens
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = defaultSummaryMaxTokens
	}
	if cfg.FinalMaxTokens <= 0 {
		cfg.FinalMaxTokens = defaultFinalMaxTokens
	}
	if cfg.FinalTranscriptWords <= 0 {
		cfg.FinalTranscriptWords = defaultFinalTranscriptWords
	}

	return &Engine{
		cfg:   cfg,
		start: time.Now(),
	}, nil
}

// Ingest adds a transcript segment. When enough new words have accumulated it
// runs an analysis pass (preceded by a compression pass when due) and returns
// its Result; otherwise it returns nil. LLM failures on the analysis pass are
// returned as an error-shaped Result, never as nil.
func (e *Engine) Ingest(ctx context.Context, text string) *Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	e.segments = append(e.segments, text)
	e.wordCount += len(strings.Fields(text))
	words := e.wordCount

	compressDue := words-e.lastSummaryWords >= e.cfg.WordsPerSummary
	if compressDue {
		e.lastSummaryWords = words
	}
	analysisDue := words-e.lastAnalysisWords >= e.cfg.WordsPerAnalysis
	if analysisDue {
		e.lastAnalysisWords = words
	}
	e.mu.Unlock()

	// Compression runs first so a same-segment analysis pass sees the
	// freshly compressed context.
	if compressDue {
		e.compress(ctx)
	}
	if !analysisDue {
		return nil
	}

	e.cfg.Logger.Debug("analysis pass triggered", "total_words", words, "compressed", compressDue)

	return e.analyse(ctx, e.buildContext(), analysisPrompt, e.cfg.AnalysisMaxTokens, defaultAnalysisText, "analysis")
}

// Finalize produces a comprehensive analysis of the whole session. It may be
// called at most once, after the last Ingest.
func (e *Engine) Finalize(ctx context.Context) *Result {
	return e.analyse(ctx, e.buildFinalContext(), analysisPrompt+finalPromptSuffix, e.cfg.FinalMaxTokens, defaultFinalText, "final")
}

// Latest returns the most recent successful or error-shaped Result, or nil
// before the first pass.
func (e *Engine) Latest() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// Stats returns a snapshot of engine activity.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Duration:             time.Since(e.start),
		WordCount:            e.wordCount,
		SummaryCount:         len(e.summaries),
		TranscriptSegments:   len(e.segments),
		IssuesIdentified:     len(e.prevIssues),
		RecommendationsGiven: len(e.prevRecs),
	}
}

// Summaries returns a copy of the retained rolling summaries, oldest first.
func (e *Engine) Summaries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.summaries))
	copy(out, e.summaries)
	return out
}

// ─── passes ──────────────────────────────────────────────────────────────────

// compress folds the recent discussion into a rolling summary and evicts the
// oldest summaries past the word ceiling. Failures are logged and skipped;
// the analysis pass proceeds on the uncompressed context.
func (e *Engine) compress(ctx context.Context) {
	e.mu.Lock()
	n := len(e.segments)
	if n > e.cfg.CompressSegments {
		n = e.cfg.CompressSegments
	}
	recent := strings.Join(e.segments[len(e.segments)-n:], " ")
	e.mu.Unlock()

	if recent == "" {
		return
	}

	ctx, span := observe.StartSpan(ctx, "llm.summary")
	defer span.End()

	started := time.Now()
	resp, err := e.cfg.Provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: compressionPrompt,
		Messages:     []llm.Message{{Role: "user", Content: recent}},
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.SummaryMaxTokens,
	})
	if err != nil {
		e.cfg.Logger.Warn("rolling summary failed", "error", err)
		e.cfg.Metrics.SummaryPasses.Add(ctx, 1, statusAttr("error"))
		return
	}
	e.cfg.Metrics.RecordLLMCall(ctx, "summary", time.Since(started).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	e.cfg.Metrics.SummaryPasses.Add(ctx, 1, statusAttr("ok"))

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return
	}

	e.mu.Lock()
	e.summaries = append(e.summaries, summary)
	evicted := 0
	for len(e.summaries) > 0 && totalWords(e.summaries) > e.cfg.MaxSummaryWords {
		e.summaries = e.summaries[1:]
		evicted++
	}
	count := len(e.summaries)
	e.mu.Unlock()

	if evicted > 0 {
		e.cfg.Metrics.SummariesEvicted.Add(ctx, int64(evicted))
		e.cfg.Logger.Debug("evicted old summaries", "evicted", evicted, "retained", count)
	}
	e.cfg.Logger.Debug("rolling summary created", "total", count)
}

// analyse runs one structured pass over the given context and applies
// dedup filtering plus result bookkeeping.
func (e *Engine) analyse(ctx context.Context, prompt, system string, maxTokens int, missingText, pass string) *Result {
	ctx, span := observe.StartSpan(ctx, "llm."+pass,
		trace.WithAttributes(attribute.String("pass", pass)))
	defer span.End()

	started := time.Now()
	resp, err := e.cfg.Provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  e.cfg.Temperature,
		MaxTokens:    maxTokens,
		Format:       llm.FormatJSON,
	})
	if err != nil {
		e.cfg.Logger.Error("analysis call failed", "pass", pass, "error", err)
		e.cfg.Metrics.AnalysisPasses.Add(ctx, 1, statusAttr("error"))
		return e.store(errorResult(err.Error()))
	}
	e.cfg.Metrics.RecordLLMCall(ctx, pass, time.Since(started).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	result, err := parseResult(resp.Content, missingText)
	if err != nil {
		e.cfg.Logger.Error("analysis reply was not valid JSON", "pass", pass, "error", err)
		e.cfg.Metrics.AnalysisPasses.Add(ctx, 1, statusAttr("error"))
		return e.store(errorResult("invalid JSON from model"))
	}
	e.cfg.Metrics.AnalysisPasses.Add(ctx, 1, statusAttr("ok"))
	e.cfg.Logger.Info("analysis pass complete",
		"pass", pass,
		"issues", len(result.PotentialIssues),
		"recommendations", len(result.Recommendations),
		"tokens", resp.Usage.TotalTokens,
	)

	e.mu.Lock()
	result.PotentialIssues = dropDuplicates(result.PotentialIssues, e.prevIssues, e.cfg.DedupLookback)
	result.Recommendations = dropDuplicates(result.Recommendations, e.prevRecs, e.cfg.DedupLookback)
	e.prevIssues = append(e.prevIssues, result.PotentialIssues...)
	e.prevRecs = append(e.prevRecs, result.Recommendations...)
	e.latest = result
	e.mu.Unlock()

	return result
}

// store records an error-shaped result as the latest and returns it.
func (e *Engine) store(r *Result) *Result {
	e.mu.Lock()
	e.latest = r
	e.mu.Unlock()
	return r
}

// ─── context building ────────────────────────────────────────────────────────

// buildContext assembles the prompt for an incremental analysis pass:
// session metadata, recent issues the model must not repeat, the rolling
// summaries, and the most recent raw segments.
func (e *Engine) buildContext() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var parts []string

	minutes := int(time.Since(e.start).Minutes())
	parts = append(parts, fmt.Sprintf(
		"MEETING METADATA:\n- Duration: %d minutes\n- Total words: %d\n- Type: IT Technical Discussion\n",
		minutes, e.wordCount,
	))

	if len(e.prevIssues) > 0 {
		n := len(e.prevIssues)
		if n > 5 {
			n = 5
		}
		var sb strings.Builder
		sb.WriteString("\n--- PREVIOUSLY IDENTIFIED ISSUES (DON'T REPEAT) ---\n")
		for i, issue := range e.prevIssues[len(e.prevIssues)-n:] {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("- " + issue)
		}
		parts = append(parts, sb.String())
	}

	if len(e.summaries) > 0 {
		parts = append(parts, "\n--- PREVIOUS DISCUSSION (SUMMARIES) ---")
		for i, summary := range e.summaries {
			parts = append(parts, fmt.Sprintf("\nPhase %d:\n%s", i+1, summary))
		}
	}

	n := len(e.segments)
	if n > e.cfg.RecentSegments {
		n = e.cfg.RecentSegments
	}
	if n > 0 {
		parts = append(parts, "\n--- CURRENT DISCUSSION ---")
		parts = append(parts, strings.Join(e.segments[len(e.segments)-n:], " "))
	}

	return strings.Join(parts, "\n")
}

// buildFinalContext assembles the prompt for the end-of-session pass: the
// whole meeting progression plus the trailing raw transcript, capped at
// FinalTranscriptWords.
func (e *Engine) buildFinalContext() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var parts []string

	minutes := int(time.Since(e.start).Minutes())
	parts = append(parts, fmt.Sprintf(
		"MEETING COMPLETED - FINAL ANALYSIS\nDuration: %d minutes\nTotal words: %d\n",
		minutes, e.wordCount,
	))

	if len(e.summaries) > 0 {
		parts = append(parts, "\n--- MEETING PROGRESSION ---")
		for i, summary := range e.summaries {
			parts = append(parts, fmt.Sprintf("\nPhase %d:\n%s", i+1, summary))
		}
	}

	full := strings.Join(e.segments, " ")
	words := strings.Fields(full)
	if len(words) > e.cfg.FinalTranscriptWords {
		full = strings.Join(words[len(words)-e.cfg.FinalTranscriptWords:], " ")
		parts = append(parts, fmt.Sprintf("\n--- RECENT TRANSCRIPT (LAST %d WORDS) ---", e.cfg.FinalTranscriptWords))
	} else {
		parts = append(parts, "\n--- FULL TRANSCRIPT ---")
	}
	parts = append(parts, full)

	return strings.Join(parts, "\n")
}

// totalWords sums the word counts of all summaries.
func totalWords(summaries []string) int {
	total := 0
	for _, s := range summaries {
		total += len(strings.Fields(s))
	}
	return total
}

// statusAttr builds the standard pass-status attribute option.
func statusAttr(status string) metric.AddOption {
	return metric.WithAttributes(observe.Attr("status", status))
}
