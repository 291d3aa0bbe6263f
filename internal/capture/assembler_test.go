package capture

import (
	"testing"
	"time"

	"github.com/nwehr/confab/pkg/audio"
)

// newTestAssembler builds an assembler at 1000 Hz so sample counts map
// directly to milliseconds.
func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	a, err := NewAssembler(AssemblerConfig{
		SampleRate: 1000,
		Window:     3 * time.Second,
		Overlap:    1500 * time.Millisecond,
		MinFlush:   time.Second,
	})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return a
}

// ramp produces n samples whose values encode their absolute stream position,
// so window contents can be asserted exactly.
func ramp(start, n int) audio.Chunk {
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(start + i)
	}
	return audio.Chunk{Samples: samples, SampleRate: 1000}
}

func TestNewAssembler_Validation(t *testing.T) {
	if _, err := NewAssembler(AssemblerConfig{SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := NewAssembler(AssemblerConfig{
		SampleRate: 1000,
		Window:     time.Second,
		Overlap:    time.Second,
	}); err == nil {
		t.Error("expected error for overlap >= window")
	}
}

func TestPush_BelowWindowSize_EmitsNothing(t *testing.T) {
	a := newTestAssembler(t)
	if got := a.Push(ramp(0, 2999)); len(got) != 0 {
		t.Errorf("emitted %d windows below window size; want 0", len(got))
	}
	if got := a.Buffered(); got != 2999*time.Millisecond {
		t.Errorf("Buffered = %v; want 2.999s", got)
	}
}

func TestPush_ExactWindow_EmitsOne(t *testing.T) {
	a := newTestAssembler(t)
	ws := a.Push(ramp(0, 3000))
	if len(ws) != 1 {
		t.Fatalf("emitted %d windows; want 1", len(ws))
	}
	w := ws[0]
	if w.Index != 0 {
		t.Errorf("Index = %d; want 0", w.Index)
	}
	if len(w.Samples) != 3000 {
		t.Errorf("window has %d samples; want 3000", len(w.Samples))
	}
	if w.Offset != 0 {
		t.Errorf("Offset = %v; want 0", w.Offset)
	}
	if w.Partial {
		t.Error("full window marked partial")
	}
	// The overlap tail must remain buffered.
	if got := a.Buffered(); got != 1500*time.Millisecond {
		t.Errorf("Buffered after emit = %v; want 1.5s", got)
	}
}

func TestPush_ConsecutiveWindowsOverlap(t *testing.T) {
	a := newTestAssembler(t)

	first := a.Push(ramp(0, 3000))
	second := a.Push(ramp(3000, 1500))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("window counts = %d, %d; want 1, 1", len(first), len(second))
	}

	w0, w1 := first[0], second[0]
	if w1.Index != 1 {
		t.Errorf("second window Index = %d; want 1", w1.Index)
	}
	if w1.Offset != 1500*time.Millisecond {
		t.Errorf("second window Offset = %v; want 1.5s (hop = window − overlap)", w1.Offset)
	}
	// The second window must start with the last 1500 samples of the first.
	for i := range 1500 {
		if w1.Samples[i] != w0.Samples[1500+i] {
			t.Fatalf("overlap mismatch at %d: %v != %v", i, w1.Samples[i], w0.Samples[1500+i])
		}
	}
}

func TestPush_LargeChunk_EmitsMultipleWindows(t *testing.T) {
	a := newTestAssembler(t)
	// 7500 samples: windows at offsets 0, 1500, 3000, leaving 3000 buffered… plus
	// hop consumption: after 3 windows, 7500 − 3·1500 = 3000 ≥ 3000 → 4th window.
	ws := a.Push(ramp(0, 7500))
	if len(ws) != 4 {
		t.Fatalf("emitted %d windows; want 4", len(ws))
	}
	for i, w := range ws {
		wantOffset := time.Duration(i) * 1500 * time.Millisecond
		if w.Offset != wantOffset {
			t.Errorf("window %d Offset = %v; want %v", i, w.Offset, wantOffset)
		}
		if w.Samples[0] != float32(i*1500) {
			t.Errorf("window %d starts with sample %v; want %d", i, w.Samples[0], i*1500)
		}
	}
}

func TestFlush_RemainderAboveMinimum(t *testing.T) {
	a := newTestAssembler(t)
	a.Push(ramp(0, 1001)) // just over 1 s buffered

	w, ok := a.Flush()
	if !ok {
		t.Fatal("Flush returned ok=false for 1.001s of audio")
	}
	if !w.Partial {
		t.Error("flushed window not marked partial")
	}
	if len(w.Samples) != 1001 {
		t.Errorf("flushed %d samples; want 1001", len(w.Samples))
	}
	if a.Buffered() != 0 {
		t.Errorf("Buffered after flush = %v; want 0", a.Buffered())
	}
}

func TestFlush_RemainderTooShort_Discarded(t *testing.T) {
	a := newTestAssembler(t)
	a.Push(ramp(0, 1000)) // exactly 1 s: not strictly more than the minimum

	if _, ok := a.Flush(); ok {
		t.Error("Flush returned ok=true for audio at the min-flush boundary")
	}
	if a.Buffered() != 0 {
		t.Errorf("Buffered after flush = %v; want 0", a.Buffered())
	}
}

func TestFlush_Empty(t *testing.T) {
	a := newTestAssembler(t)
	if _, ok := a.Flush(); ok {
		t.Error("Flush on empty assembler returned ok=true")
	}
}

func TestFlush_IndexContinuesSequence(t *testing.T) {
	a := newTestAssembler(t)
	a.Push(ramp(0, 3000))
	a.Push(ramp(3000, 1500)) // second full window

	w, ok := a.Flush() // overlap remainder: 1500 samples > 1000 min
	if !ok {
		t.Fatal("Flush returned ok=false")
	}
	if w.Index != 2 {
		t.Errorf("flushed window Index = %d; want 2", w.Index)
	}
}

func TestDefaults_Applied(t *testing.T) {
	a, err := NewAssembler(AssemblerConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	ws := a.Push(audio.Chunk{Samples: make([]float32, 48000), SampleRate: 16000})
	if len(ws) != 1 {
		t.Fatalf("emitted %d windows for 3s at 16kHz; want 1", len(ws))
	}
	if got := a.Buffered(); got != 1500*time.Millisecond {
		t.Errorf("Buffered = %v; want default 1.5s overlap", got)
	}
}
