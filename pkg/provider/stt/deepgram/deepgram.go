// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram pre-recorded REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nwehr/confab/pkg/audio"
	"github.com/nwehr/confab/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the Deepgram API endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a
// pre-recorded transcription request.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe encodes the window as WAV and submits it to the Deepgram
// pre-recorded endpoint. The response's word timings are collapsed into a
// single segment spanning the recognised speech.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	if len(req.Samples) == 0 {
		return nil, nil
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = 16000
	}

	endpoint, err := p.buildURL(req.Language)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	wav := audio.EncodeWAV(req.Samples, sr, 1)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}

	var dgResp deepgramResponse
	if err := json.Unmarshal(data, &dgResp); err != nil {
		return nil, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	return parseSegments(dgResp), nil
}

// buildURL constructs the pre-recorded endpoint URL with query parameters.
func (p *Provider) buildURL(language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseSegments converts a Deepgram response into stt segments. Returns nil
// when no speech was recognised.
func parseSegments(resp deepgramResponse) []stt.Segment {
	if len(resp.Results.Channels) == 0 {
		return nil
	}
	alts := resp.Results.Channels[0].Alternatives
	if len(alts) == 0 || alts[0].Transcript == "" {
		return nil
	}

	alt := alts[0]
	seg := stt.Segment{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
	}
	if n := len(alt.Words); n > 0 {
		seg.Start = time.Duration(alt.Words[0].Start * float64(time.Second))
		seg.End = time.Duration(alt.Words[n-1].End * float64(time.Second))
	}
	return []stt.Segment{seg}
}
