package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nwehr/confab/internal/observe"
	"github.com/nwehr/confab/pkg/provider/llm"
	"github.com/nwehr/confab/pkg/provider/llm/mock"
)

// newTestEngine builds an Engine backed by the mock provider with metrics
// routed to a no-op meter.
func newTestEngine(t *testing.T, p *mock.Provider, mutate func(*Config)) *Engine {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg := Config{Provider: p, Metrics: met}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// wordsN returns a segment of n distinct words.
func wordsN(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

// analysisJSON builds a well-formed model reply.
func analysisJSON(analysis string, issues, recs []string) *llm.CompletionResponse {
	quote := func(items []string) string {
		if len(items) == 0 {
			return "[]"
		}
		q := make([]string, len(items))
		for i, s := range items {
			q[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(q, ",") + "]"
	}
	content := fmt.Sprintf(
		`{"technical_analysis": %q, "potential_issues": %s, "recommendations": %s, "clarifying_questions": [], "action_items": []}`,
		analysis, quote(issues), quote(recs),
	)
	return &llm.CompletionResponse{
		Content: content,
		Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestIngestBelowThresholdSkipsLLM(t *testing.T) {
	p := &mock.Provider{}
	e := newTestEngine(t, p, nil)

	if res := e.Ingest(context.Background(), wordsN(10)); res != nil {
		t.Fatalf("expected nil result below threshold, got %+v", res)
	}
	if got := len(p.Calls()); got != 0 {
		t.Fatalf("expected no LLM calls, got %d", got)
	}
}

func TestIngestEmptySegmentIgnored(t *testing.T) {
	p := &mock.Provider{}
	e := newTestEngine(t, p, nil)

	if res := e.Ingest(context.Background(), "   \n\t"); res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
	if st := e.Stats(); st.TranscriptSegments != 0 || st.WordCount != 0 {
		t.Fatalf("expected empty stats, got %+v", st)
	}
}

func TestIngestTriggersAnalysisAtThreshold(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: analysisJSON("Discussion about DNS.", []string{"Split-horizon DNS misconfigured"}, []string{"Check resolv.conf"}),
	}
	e := newTestEngine(t, p, nil)

	res := e.Ingest(context.Background(), wordsN(50))
	if res == nil {
		t.Fatal("expected a result at 50 words")
	}
	if res.TechnicalAnalysis != "Discussion about DNS." {
		t.Errorf("TechnicalAnalysis = %q", res.TechnicalAnalysis)
	}
	if len(res.PotentialIssues) != 1 || len(res.Recommendations) != 1 {
		t.Errorf("unexpected lists: %+v", res)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Format != llm.FormatJSON {
		t.Errorf("Format = %q, want %q", req.Format, llm.FormatJSON)
	}
	if req.MaxTokens != defaultAnalysisMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, defaultAnalysisMaxTokens)
	}
	if req.Temperature != defaultTemperature {
		t.Errorf("Temperature = %v, want %v", req.Temperature, defaultTemperature)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(req.Messages))
	}
	if !strings.Contains(req.Messages[0].Content, "CURRENT DISCUSSION") {
		t.Errorf("prompt missing current discussion section:\n%s", req.Messages[0].Content)
	}
	if !strings.Contains(req.Messages[0].Content, "Total words: 50") {
		t.Errorf("prompt missing word count:\n%s", req.Messages[0].Content)
	}

	if got := e.Latest(); got != res {
		t.Error("Latest should return the last result")
	}
}

func TestIngestAccumulatesAcrossSegments(t *testing.T) {
	p := &mock.Provider{CompleteResponse: analysisJSON("ok", nil, nil)}
	e := newTestEngine(t, p, nil)
	ctx := context.Background()

	if res := e.Ingest(ctx, wordsN(20)); res != nil {
		t.Fatal("20 words should not trigger")
	}
	if res := e.Ingest(ctx, wordsN(20)); res != nil {
		t.Fatal("40 words should not trigger")
	}
	if res := e.Ingest(ctx, wordsN(20)); res == nil {
		t.Fatal("60 words should trigger")
	}
	if got := len(p.Calls()); got != 1 {
		t.Fatalf("expected 1 LLM call, got %d", got)
	}
}

func TestCompressionRunsBeforeAnalysis(t *testing.T) {
	p := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: "They debated the firewall rules."},
			analysisJSON("ok", nil, nil),
		},
	}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 50
		cfg.WordsPerSummary = 50
	})

	if res := e.Ingest(context.Background(), wordsN(50)); res == nil {
		t.Fatal("expected a result")
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected compression + analysis, got %d calls", len(calls))
	}
	if calls[0].Req.SystemPrompt != compressionPrompt {
		t.Error("first call should be the compression pass")
	}
	if calls[0].Req.Format == llm.FormatJSON {
		t.Error("compression pass must not request JSON mode")
	}
	if calls[0].Req.MaxTokens != defaultSummaryMaxTokens {
		t.Errorf("compression MaxTokens = %d, want %d", calls[0].Req.MaxTokens, defaultSummaryMaxTokens)
	}
	prompt := calls[1].Req.Messages[0].Content
	if !strings.Contains(prompt, "PREVIOUS DISCUSSION (SUMMARIES)") {
		t.Errorf("analysis prompt missing summaries section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Phase 1:\nThey debated the firewall rules.") {
		t.Errorf("analysis prompt missing phase summary:\n%s", prompt)
	}
	if got := e.Summaries(); len(got) != 1 {
		t.Fatalf("Summaries() = %v", got)
	}
}

func TestCompressionTriggersWithoutAnalysis(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "They set up the VPN."},
	}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 100
		cfg.WordsPerSummary = 30
	})

	if res := e.Ingest(context.Background(), wordsN(30)); res != nil {
		t.Fatalf("expected nil result below analysis threshold, got %+v", res)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Req.SystemPrompt != compressionPrompt {
		t.Fatalf("expected exactly one compression call, got %d calls", len(calls))
	}
	if got := e.Summaries(); len(got) != 1 {
		t.Errorf("Summaries() = %v", got)
	}
}

func TestSummaryEvictionFIFO(t *testing.T) {
	p := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.SystemPrompt == compressionPrompt {
				// Five words per summary.
				return &llm.CompletionResponse{Content: "summary alpha beta gamma delta"}, nil
			}
			return analysisJSON("ok", nil, nil), nil
		},
	}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 10
		cfg.WordsPerSummary = 10
		cfg.MaxSummaryWords = 12
	})
	ctx := context.Background()

	// Three compression passes of 5 words each; ceiling of 12 retains two.
	for i := 0; i < 3; i++ {
		if res := e.Ingest(ctx, wordsN(10)); res == nil {
			t.Fatalf("pass %d: expected a result", i)
		}
	}

	got := e.Summaries()
	if len(got) != 2 {
		t.Fatalf("expected 2 retained summaries, got %d: %v", len(got), got)
	}
}

func TestSummaryEvictionDropsOversizedSummary(t *testing.T) {
	p := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.SystemPrompt == compressionPrompt {
				return &llm.CompletionResponse{Content: wordsN(20)}, nil
			}
			return analysisJSON("ok", nil, nil), nil
		},
	}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 10
		cfg.WordsPerSummary = 10
		cfg.MaxSummaryWords = 12
	})

	// A single 20-word summary already exceeds the 12-word ceiling; the
	// ceiling wins and the summary is dropped outright.
	if res := e.Ingest(context.Background(), wordsN(10)); res == nil {
		t.Fatal("expected a result")
	}
	if got := e.Summaries(); len(got) != 0 {
		t.Fatalf("retained summaries exceed the word ceiling: %v", got)
	}
}

func TestDedupFiltersRepeatedFindings(t *testing.T) {
	p := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			analysisJSON("first", []string{"DNS cache poisoning risk"}, []string{"Rotate the API keys"}),
			analysisJSON("second",
				[]string{"dns cache poisoning risk", "Disk nearly full"},
				[]string{"Rotate the API keys immediately", "Enable MFA"},
			),
		},
	}
	e := newTestEngine(t, p, nil)
	ctx := context.Background()

	first := e.Ingest(ctx, wordsN(50))
	if first == nil || len(first.PotentialIssues) != 1 {
		t.Fatalf("first pass: %+v", first)
	}

	second := e.Ingest(ctx, wordsN(50))
	if second == nil {
		t.Fatal("second pass: expected a result")
	}
	if len(second.PotentialIssues) != 1 || second.PotentialIssues[0] != "Disk nearly full" {
		t.Errorf("issues not deduplicated: %v", second.PotentialIssues)
	}
	if len(second.Recommendations) != 1 || second.Recommendations[0] != "Enable MFA" {
		t.Errorf("recommendations not deduplicated: %v", second.Recommendations)
	}

	prompt := p.Calls()[1].Req.Messages[0].Content
	if !strings.Contains(prompt, "PREVIOUSLY IDENTIFIED ISSUES (DON'T REPEAT)") {
		t.Errorf("second prompt missing prior-issues section:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- DNS cache poisoning risk") {
		t.Errorf("second prompt missing prior issue:\n%s", prompt)
	}
}

func TestAnalysisLLMErrorShapedResult(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: analysisJSON("unused", nil, nil),
		CompleteErr:      errors.New("backend unavailable"),
	}
	e := newTestEngine(t, p, nil)

	res := e.Ingest(context.Background(), wordsN(50))
	if res == nil {
		t.Fatal("expected an error-shaped result, got nil")
	}
	if !res.IsError() {
		t.Fatalf("IsError() = false for %+v", res)
	}
	if !strings.Contains(res.TechnicalAnalysis, "backend unavailable") {
		t.Errorf("TechnicalAnalysis = %q", res.TechnicalAnalysis)
	}
	if res.PotentialIssues == nil || len(res.PotentialIssues) != 0 {
		t.Errorf("expected empty non-nil issues, got %v", res.PotentialIssues)
	}
	if got := e.Latest(); got != res {
		t.Error("error-shaped result should still be retained as latest")
	}

	// The backend comes back; the next triggered pass proceeds as if the
	// failure never happened.
	p.CompleteErr = nil
	p.CompleteResponse = analysisJSON("Back to normal.", []string{"Stale DNS entry"}, nil)

	next := e.Ingest(context.Background(), wordsN(50))
	if next == nil {
		t.Fatal("expected a result once the backend recovered")
	}
	if next.IsError() {
		t.Fatalf("IsError() = true after recovery: %+v", next)
	}
	if next.TechnicalAnalysis != "Back to normal." {
		t.Errorf("TechnicalAnalysis = %q", next.TechnicalAnalysis)
	}
	if got := len(p.Calls()); got != 2 {
		t.Errorf("LLM calls = %d, want 2", got)
	}
	if got := e.Latest(); got != next {
		t.Error("recovered result should replace the error-shaped latest")
	}
}

func TestAnalysisMalformedJSONShapedResult(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I think the network is fine."},
	}
	e := newTestEngine(t, p, nil)

	res := e.Ingest(context.Background(), wordsN(50))
	if res == nil || !res.IsError() {
		t.Fatalf("expected error-shaped result, got %+v", res)
	}
}

func TestCompressionFailureDoesNotBlockAnalysis(t *testing.T) {
	p := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.SystemPrompt == compressionPrompt {
				return nil, errors.New("rate limited")
			}
			return analysisJSON("ok", nil, nil), nil
		},
	}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 50
		cfg.WordsPerSummary = 50
	})

	res := e.Ingest(context.Background(), wordsN(50))
	if res == nil || res.IsError() {
		t.Fatalf("analysis should succeed despite compression failure, got %+v", res)
	}
	if got := e.Summaries(); len(got) != 0 {
		t.Errorf("failed compression must not store a summary, got %v", got)
	}
}

func TestFinalizeFullTranscript(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: analysisJSON("Final wrap-up.", nil, []string{"Document the runbook"}),
	}
	e := newTestEngine(t, p, nil)
	ctx := context.Background()

	e.Ingest(ctx, "the backup job failed twice")
	e.Ingest(ctx, "restore from the secondary site")

	res := e.Finalize(ctx)
	if res == nil || res.TechnicalAnalysis != "Final wrap-up." {
		t.Fatalf("Finalize: %+v", res)
	}

	calls := p.Calls()
	req := calls[len(calls)-1].Req
	if req.MaxTokens != defaultFinalMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, defaultFinalMaxTokens)
	}
	if !strings.Contains(req.SystemPrompt, "FINAL SUMMARY") {
		t.Error("final pass should use the final system prompt")
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "--- FULL TRANSCRIPT ---") {
		t.Errorf("short transcript should be included in full:\n%s", prompt)
	}
	if !strings.Contains(prompt, "the backup job failed twice restore from the secondary site") {
		t.Errorf("transcript missing from final prompt:\n%s", prompt)
	}
}

func TestFinalizeCapsTranscript(t *testing.T) {
	p := &mock.Provider{CompleteResponse: analysisJSON("ok", nil, nil)}
	e := newTestEngine(t, p, func(cfg *Config) {
		cfg.WordsPerAnalysis = 1000 // keep incremental passes out of the way
		cfg.FinalTranscriptWords = 10
	})
	ctx := context.Background()

	e.Ingest(ctx, wordsN(30))
	e.Finalize(ctx)

	prompt := p.Calls()[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "--- RECENT TRANSCRIPT (LAST 10 WORDS) ---") {
		t.Fatalf("expected capped transcript header:\n%s", prompt)
	}
	if strings.Contains(prompt, "w19") {
		t.Fatalf("transcript not capped to last 10 words:\n%s", prompt)
	}
	if !strings.Contains(prompt, "w20") || !strings.Contains(prompt, "w29") {
		t.Errorf("capped transcript missing trailing words:\n%s", prompt)
	}
}

func TestStats(t *testing.T) {
	p := &mock.Provider{
		CompleteResponse: analysisJSON("ok", []string{"issue a", "issue b"}, []string{"rec a"}),
	}
	e := newTestEngine(t, p, nil)
	ctx := context.Background()

	e.Ingest(ctx, wordsN(30))
	e.Ingest(ctx, wordsN(30))

	st := e.Stats()
	if st.WordCount != 60 {
		t.Errorf("WordCount = %d, want 60", st.WordCount)
	}
	if st.TranscriptSegments != 2 {
		t.Errorf("TranscriptSegments = %d, want 2", st.TranscriptSegments)
	}
	if st.IssuesIdentified != 2 {
		t.Errorf("IssuesIdentified = %d, want 2", st.IssuesIdentified)
	}
	if st.RecommendationsGiven != 1 {
		t.Errorf("RecommendationsGiven = %d, want 1", st.RecommendationsGiven)
	}
	if st.Duration < 0 {
		t.Errorf("Duration = %v", st.Duration)
	}
}
