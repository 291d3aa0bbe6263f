package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/nwehr/confab/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL("")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()
	if got := q.Get("model"); got != defaultModel {
		t.Errorf("model = %q; want %q", got, defaultModel)
	}
	if got := q.Get("language"); got != defaultLanguage {
		t.Errorf("language = %q; want %q", got, defaultLanguage)
	}
	if got := q.Get("punctuate"); got != "true" {
		t.Errorf("punctuate = %q; want true", got)
	}
}

func TestBuildURL_RequestLanguageWins(t *testing.T) {
	p, _ := New("key", WithLanguage("en"))
	raw, err := p.buildURL("de-DE")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if got := u.Query().Get("language"); got != "de-DE" {
		t.Errorf("language = %q; want de-DE", got)
	}
}

func TestParseSegments_WordTimings(t *testing.T) {
	var resp deepgramResponse
	payload := `{"results":{"channels":[{"alternatives":[{
		"transcript":"hello there",
		"confidence":0.97,
		"words":[
			{"word":"hello","start":0.25,"end":0.75,"confidence":0.98},
			{"word":"there","start":0.80,"end":1.20,"confidence":0.96}
		]}]}]}}`
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	segs := parseSegments(resp)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "hello there" {
		t.Errorf("text = %q; want %q", segs[0].Text, "hello there")
	}
	if segs[0].Start != 250*time.Millisecond {
		t.Errorf("start = %v; want 250ms", segs[0].Start)
	}
	if segs[0].End != 1200*time.Millisecond {
		t.Errorf("end = %v; want 1.2s", segs[0].End)
	}
	if segs[0].Confidence != 0.97 {
		t.Errorf("confidence = %v; want 0.97", segs[0].Confidence)
	}
}

func TestParseSegments_EmptyTranscript(t *testing.T) {
	var resp deepgramResponse
	payload := `{"results":{"channels":[{"alternatives":[{"transcript":""}]}]}}`
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if segs := parseSegments(resp); segs != nil {
		t.Errorf("expected nil segments, got %+v", segs)
	}
}

func TestParseSegments_NoChannels(t *testing.T) {
	if segs := parseSegments(deepgramResponse{}); segs != nil {
		t.Errorf("expected nil segments, got %+v", segs)
	}
}

func TestTranscribe_SetsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hi"}]}]}}`))
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL))
	segs, err := p.Transcribe(context.Background(), stt.Request{
		Samples:    make([]float32, 1600),
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q; want %q", gotAuth, "Token secret")
	}
	if len(segs) != 1 || segs[0].Text != "hi" {
		t.Errorf("segments = %+v; want single %q segment", segs, "hi")
	}
}
