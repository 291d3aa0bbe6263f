// Command confab records a meeting audio stream, transcribes it in
// overlapping windows, and runs progressive LLM analysis over the growing
// transcript. It prints a final technical report when the session ends.
//
// A session starts as soon as the process comes up and ends on SIGINT or
// SIGTERM. SIGUSR1 ends the current session, prints its report, and starts
// a fresh one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/nwehr/confab/internal/analysis"
	"github.com/nwehr/confab/internal/capture"
	"github.com/nwehr/confab/internal/config"
	"github.com/nwehr/confab/internal/health"
	"github.com/nwehr/confab/internal/observe"
	"github.com/nwehr/confab/internal/resilience"
	"github.com/nwehr/confab/internal/session"
	"github.com/nwehr/confab/pkg/provider/llm"
	"github.com/nwehr/confab/pkg/provider/llm/anyllm"
	llmopenai "github.com/nwehr/confab/pkg/provider/llm/openai"
	"github.com/nwehr/confab/pkg/provider/stt"
	"github.com/nwehr/confab/pkg/provider/stt/deepgram"
	"github.com/nwehr/confab/pkg/provider/stt/whisper"
)

// Default endpoints for hosted APIs that speak the OpenAI wire protocol.
const (
	xaiBaseURL       = "https://api.x.ai/v1"
	sambanovaBaseURL = "https://api.sambanova.ai/v1"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	sessionName := flag.String("session", "", "optional name embedded in generated session IDs")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "confab: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "confab: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it without
	// rebuilding the handler.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("confab starting",
		"config", *configPath,
		"source", cfg.Capture.Source,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metrics := observe.DefaultMetrics()
	if cfg.Server.MetricsAddr != "" {
		shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "confab"})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOtel(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()

		metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			slog.Error("failed to create metrics", "err", err)
			return 1
		}
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	orch, err := session.NewOrchestrator(session.Config{
		NewSource:   newSourceFactory(cfg.Capture),
		STT:         providers.stt,
		LLM:         providers.llm,
		SampleRate:  cfg.Capture.SampleRate,
		Window:      cfg.Capture.Window.Std(),
		Overlap:     cfg.Capture.Overlap.Std(),
		MinFlush:    cfg.Capture.MinFlush.Std(),
		Language:    optString(cfg.Providers.STT.Options, "language"),
		STTName:     cfg.Providers.STT.Name,
		SessionName: *sessionName,
		Analysis:    analysisConfig(cfg.Analysis),
		StopTimeout: cfg.Session.StopTimeout.Std(),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		return 1
	}

	// ── Metrics & health listener ─────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(nil, health.WithSessionState(func() string {
			return orch.State().String()
		})).Register(mux)

		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}()
		slog.Info("metrics listener started", "addr", cfg.Server.MetricsAddr)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			levelVar.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level updated", "log_level", diff.NewLogLevel)
		}
		if diff.AnalysisChanged {
			orch.SetAnalysisConfig(analysisConfig(new.Analysis))
			slog.Info("analysis thresholds updated — next session picks them up")
		}
		if diff.ProvidersChanged || diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Run ───────────────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// The session runs on its own context so a shutdown signal does not
	// cancel the pipeline before Stop can drain it gracefully.
	id, err := orch.Start(context.Background())
	if err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}
	slog.Info("recording — press Ctrl+C to stop", "session", id)

	rotate := make(chan os.Signal, 1)
	signal.Notify(rotate, syscall.SIGUSR1)
	defer signal.Stop(rotate)

	for {
		select {
		case <-rotate:
			if err := stopAndReport(orch); err != nil {
				slog.Error("failed to stop session", "err", err)
			}
			id, err := orch.Start(context.Background())
			if err != nil {
				slog.Error("failed to start session", "err", err)
				return 1
			}
			slog.Info("recording", "session", id)

		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping…")
			if err := stopAndReport(orch); err != nil {
				slog.Error("failed to stop session", "err", err)
				return 1
			}
			slog.Info("goodbye")
			return 0
		}
	}
}

// stopAndReport ends the active session and prints its final report.
func stopAndReport(orch *session.Orchestrator) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	summary, err := orch.Stop(stopCtx)
	if err != nil {
		return err
	}
	printFinalReport(summary)
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providerSet holds the instantiated providers the pipeline runs on.
type providerSet struct {
	stt stt.Provider
	llm llm.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai and xai share the official OpenAI client; xai only differs in
	// its default base URL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("xai", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = xaiBaseURL
		}
		return llmopenai.New(entry.APIKey, entry.Model, llmopenai.WithBaseURL(baseURL))
	})

	reg.RegisterLLM("sambanova", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = sambanovaBaseURL
		}
		return llmopenai.New(entry.APIKey, entry.Model, llmopenai.WithBaseURL(baseURL))
	})

	// The remaining hosted backends all share the same pattern: optional
	// APIKey + optional BaseURL through any-llm-go.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek",
		"mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})
}

// buildProviders instantiates the STT and LLM providers named in cfg, wrapping
// each in a circuit-breaking fallback chain when fallbacks are configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	sttEntry := cfg.Providers.STT
	sttPrimary, err := reg.CreateSTT(sttEntry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", sttEntry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", sttEntry.Name)

	sttProvider := sttPrimary
	if len(sttEntry.Fallbacks) > 0 {
		fb := resilience.NewSTTFallback(sttPrimary, sttEntry.Name, resilience.FallbackConfig{})
		for _, fe := range sttEntry.Fallbacks {
			p, err := reg.CreateSTT(fe)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fe.Name, err)
			}
			fb.AddFallback(fe.Name, p)
			slog.Info("fallback provider created", "kind", "stt", "name", fe.Name)
		}
		sttProvider = fb
	}

	llmEntry := cfg.Providers.LLM
	llmPrimary, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", llmEntry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", llmEntry.Name)

	llmProvider := llmPrimary
	if len(llmEntry.Fallbacks) > 0 {
		fb := resilience.NewLLMFallback(llmPrimary, llmEntry.Name, resilience.FallbackConfig{})
		for _, fe := range llmEntry.Fallbacks {
			p, err := reg.CreateLLM(fe)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", fe.Name, err)
			}
			fb.AddFallback(fe.Name, p)
			slog.Info("fallback provider created", "kind", "llm", "name", fe.Name)
		}
		llmProvider = fb
	}

	return &providerSet{stt: sttProvider, llm: llmProvider}, nil
}

// newSourceFactory returns a constructor for the configured audio source.
// Each session gets a fresh source instance.
func newSourceFactory(cfg config.CaptureConfig) func() (capture.Source, error) {
	if cfg.Source == config.SourceWebsocket {
		return func() (capture.Source, error) {
			var opts []capture.WebsocketOption
			if cfg.SampleRate > 0 {
				opts = append(opts, capture.WithWebsocketSampleRate(cfg.SampleRate))
			}
			if cfg.Channels > 0 {
				opts = append(opts, capture.WithWebsocketChannels(cfg.Channels))
			}
			if len(cfg.WebsocketHeaders) > 0 {
				h := http.Header{}
				for k, v := range cfg.WebsocketHeaders {
					h.Set(k, v)
				}
				opts = append(opts, capture.WithWebsocketHeader(h))
			}
			return capture.NewWebsocketSource(cfg.WebsocketURL, opts...)
		}
	}

	return func() (capture.Source, error) {
		var opts []capture.ReaderOption
		if cfg.SampleRate > 0 {
			opts = append(opts, capture.WithReaderSampleRate(cfg.SampleRate))
		}
		if cfg.Channels > 0 {
			opts = append(opts, capture.WithReaderChannels(cfg.Channels))
		}
		return capture.NewReaderSource(os.Stdin, opts...)
	}
}

// analysisConfig maps the YAML analysis section onto engine thresholds.
// Zero values fall through to the engine defaults.
func analysisConfig(cfg config.AnalysisConfig) analysis.Config {
	return analysis.Config{
		WordsPerAnalysis: cfg.WordsPerAnalysis,
		WordsPerSummary:  cfg.WordsPerSummary,
		MaxSummaryWords:  cfg.MaxSummaryWords,
		DedupLookback:    cfg.DedupLookback,
		Temperature:      cfg.Temperature,
	}
}

// ── Report rendering ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Confab — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Source          : %-19s ║\n", cfg.Capture.Source)
	fmt.Printf("║  Window          : %-19s ║\n", cfg.Capture.Window.Std())
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// printFinalReport renders a completed session summary to stdout.
func printFinalReport(s *session.Summary) {
	fmt.Printf("\n=== Session %s ===\n", s.SessionID)
	fmt.Printf("Duration: %s • Words: %d • Segments: %d\n",
		s.EndedAt.Sub(s.StartedAt).Round(time.Second), s.Words, s.Segments)

	if s.Err != nil {
		fmt.Printf("Capture failed mid-session: %v\n", s.Err)
	}
	if s.NoSpeech {
		fmt.Println("\nNo speech captured.")
		return
	}

	if s.Final != nil {
		fmt.Printf("\n%s\n", s.Final.TechnicalAnalysis)
		printList("Potential issues", s.Final.PotentialIssues)
		printList("Recommendations", s.Final.Recommendations)
		printList("Action items", s.Final.ActionItems)
		printList("Clarifying questions", s.Final.ClarifyingQuestions)
	}

	fmt.Printf("\nRolling summaries: %d • Issues identified: %d • Recommendations: %d\n",
		s.Stats.SummaryCount, s.Stats.IssuesIdentified, s.Stats.RecommendationsGiven)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
