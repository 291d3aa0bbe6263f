// Package whisper provides whisper.cpp-backed STT providers.
//
// Two implementations are available: Provider talks to a running
// whisper-server binary (which exposes a REST API at POST /inference), and
// NativeProvider runs inference in-process through the whisper.cpp CGO
// bindings. Both accept normalised float32 audio windows and return the
// recognised segments as a batch.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	segs, err := p.Transcribe(ctx, stt.Request{Samples: window, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nwehr/confab/pkg/audio"
	"github.com/nwehr/confab/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout). Useful for
// tests and for callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
// It is safe for concurrent use; each Transcribe call issues an independent
// inference request.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		model:      "",
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe encodes the window as WAV, POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data, and returns the result as a
// single segment spanning the window. An empty transcription yields an empty
// slice with nil error.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	if len(req.Samples) == 0 {
		return nil, nil
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	wav := audio.EncodeWAV(req.Samples, sr, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	// Optional hint fields.
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return nil, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, nil
	}

	end := time.Duration(len(req.Samples)) * time.Second / time.Duration(sr)
	return []stt.Segment{{Text: text, Start: 0, End: end}}, nil
}
