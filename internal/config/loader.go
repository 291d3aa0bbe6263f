package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram"},
	"llm": {"openai", "xai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "sambanova"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	for _, fb := range cfg.Providers.STT.Fallbacks {
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; sessions will transcribe but never analyse")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; sessions cannot transcribe audio")
	}

	// Capture
	if cfg.Capture.Source != "" && !cfg.Capture.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: stdin, websocket", cfg.Capture.Source))
	}
	if cfg.Capture.Source == SourceWebsocket && cfg.Capture.WebsocketURL == "" {
		errs = append(errs, errors.New("capture.websocket_url is required when capture.source is websocket"))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels < 0 {
		errs = append(errs, fmt.Errorf("capture.channels %d must not be negative", cfg.Capture.Channels))
	}
	if cfg.Capture.Window < 0 || cfg.Capture.Overlap < 0 || cfg.Capture.MinFlush < 0 {
		errs = append(errs, errors.New("capture durations must not be negative"))
	}
	if cfg.Capture.Window > 0 && cfg.Capture.Overlap >= cfg.Capture.Window {
		errs = append(errs, fmt.Errorf("capture.overlap %s must be shorter than capture.window %s",
			cfg.Capture.Overlap.Std(), cfg.Capture.Window.Std()))
	}
	if cfg.Capture.Window > 0 && cfg.Capture.MinFlush > cfg.Capture.Window {
		errs = append(errs, fmt.Errorf("capture.min_flush %s must not exceed capture.window %s",
			cfg.Capture.MinFlush.Std(), cfg.Capture.Window.Std()))
	}

	// Analysis
	if cfg.Analysis.WordsPerAnalysis < 0 || cfg.Analysis.WordsPerSummary < 0 ||
		cfg.Analysis.MaxSummaryWords < 0 || cfg.Analysis.DedupLookback < 0 {
		errs = append(errs, errors.New("analysis thresholds must not be negative"))
	}
	if cfg.Analysis.WordsPerAnalysis > 0 && cfg.Analysis.WordsPerSummary > 0 &&
		cfg.Analysis.WordsPerSummary < cfg.Analysis.WordsPerAnalysis {
		slog.Warn("analysis.words_per_summary is below analysis.words_per_analysis; every pass will also compress",
			"words_per_summary", cfg.Analysis.WordsPerSummary,
			"words_per_analysis", cfg.Analysis.WordsPerAnalysis,
		)
	}
	if cfg.Analysis.Temperature < 0 || cfg.Analysis.Temperature > 2 {
		errs = append(errs, fmt.Errorf("analysis.temperature %.2f is out of range [0.0, 2.0]", cfg.Analysis.Temperature))
	}

	// Session
	if cfg.Session.StopTimeout < 0 {
		errs = append(errs, errors.New("session.stop_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
