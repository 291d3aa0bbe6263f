// Package config provides the configuration schema, loader, and provider
// registry for the Confab meeting-analysis server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Confab server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureSource selects where session audio comes from.
type CaptureSource string

const (
	// SourceStdin reads raw PCM16 audio from standard input.
	SourceStdin CaptureSource = "stdin"

	// SourceWebsocket receives binary PCM16 frames over a WebSocket.
	SourceWebsocket CaptureSource = "websocket"
)

// IsValid reports whether s is a recognised capture source.
func (s CaptureSource) IsValid() bool {
	return s == SourceStdin || s == SourceWebsocket
}

// Duration wraps time.Duration with YAML decoding from strings like "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Confab.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Capture   CaptureConfig   `yaml:"capture"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds network and logging settings for the Confab server.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint listens
	// on. Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper", "deepgram", "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-2", "ggml-base.en.bin").
	Model string `yaml:"model"`

	// Fallbacks lists providers tried in order when this one fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// CaptureConfig holds audio capture and windowing settings.
type CaptureConfig struct {
	// Source selects where session audio comes from.
	Source CaptureSource `yaml:"source"`

	// SampleRate is the PCM sample rate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the PCM channel count; multi-channel input is downmixed to
	// mono. Defaults to 1.
	Channels int `yaml:"channels"`

	// Window is the duration of each transcription window. Defaults to 3s.
	Window Duration `yaml:"window"`

	// Overlap is how much consecutive windows share. Defaults to 1.5s.
	Overlap Duration `yaml:"overlap"`

	// MinFlush is the smallest remainder flushed when capture stops.
	// Defaults to 1s.
	MinFlush Duration `yaml:"min_flush"`

	// WebsocketURL is the audio feed endpoint when Source is "websocket".
	WebsocketURL string `yaml:"websocket_url"`

	// WebsocketHeaders are extra HTTP headers sent on the WebSocket
	// handshake (e.g., authentication).
	WebsocketHeaders map[string]string `yaml:"websocket_headers"`
}

// AnalysisConfig holds progressive-summarization thresholds. Zero values use
// the engine defaults.
type AnalysisConfig struct {
	// WordsPerAnalysis is the new-word count that triggers an analysis pass.
	WordsPerAnalysis int `yaml:"words_per_analysis"`

	// WordsPerSummary is the new-word count that triggers a rolling-summary
	// compression.
	WordsPerSummary int `yaml:"words_per_summary"`

	// MaxSummaryWords caps the combined word count of retained summaries.
	MaxSummaryWords int `yaml:"max_summary_words"`

	// DedupLookback is how many recent findings are checked when filtering
	// repeats.
	DedupLookback int `yaml:"dedup_lookback"`

	// Temperature for all LLM passes, in [0.0, 2.0].
	Temperature float64 `yaml:"temperature"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// StopTimeout bounds how long Stop waits for the pipeline to drain
	// before giving up on the final analysis. Defaults to 5s.
	StopTimeout Duration `yaml:"stop_timeout"`
}
