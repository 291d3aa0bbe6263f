// Package transcript maintains the ordered record of recognised speech for a
// recording session.
//
// The ledger is append-mostly: transcription results usually arrive in window
// order because a single worker drains the capture queue sequentially, but
// when the pipeline runs multiple workers a slow inference call can finish
// after its successor. Entries therefore carry the index of the audio window
// they came from, and the ledger keeps itself sorted by that index so readers
// always observe capture order.
package transcript

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one transcribed span of speech.
type Entry struct {
	// WindowIndex is the sequence number of the audio window that produced
	// this entry. Indexes start at 0 and increase in capture order.
	WindowIndex uint64

	// Text is the recognised speech.
	Text string

	// Offset is the position of the window within the session audio stream.
	Offset time.Duration

	// ReceivedAt is the wall-clock time the transcription result arrived.
	ReceivedAt time.Time
}

// Ledger is the thread-safe, ordered transcript of a session.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	words   int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records a transcription result. Entries may arrive out of window
// order; the ledger inserts them at the right position. Empty text is
// ignored.
func (l *Ledger) Append(e Entry) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return
	}
	e.Text = text

	l.mu.Lock()
	defer l.mu.Unlock()

	l.words += countWords(text)

	// Fast path: in-order arrival.
	if n := len(l.entries); n == 0 || l.entries[n-1].WindowIndex <= e.WindowIndex {
		l.entries = append(l.entries, e)
		return
	}

	// Late arrival: insert before the first entry with a greater index.
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].WindowIndex > e.WindowIndex
	})
	l.entries = append(l.entries, Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Words returns the total word count across all entries.
func (l *Ledger) Words() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.words
}

// Snapshot returns a copy of all entries in window order.
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Tail returns a copy of the last n entries in window order. If n exceeds the
// ledger length the whole transcript is returned.
func (l *Ledger) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Text returns the full transcript joined with single spaces.
func (l *Ledger) Text() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	parts := make([]string, len(l.entries))
	for i, e := range l.entries {
		parts[i] = e.Text
	}
	return strings.Join(parts, " ")
}

// LastWords returns at most n words from the end of the transcript, joined
// with single spaces. Used to bound the amount of raw transcript sent to the
// final analysis pass.
func (l *Ledger) LastWords(n int) string {
	full := l.Text()
	words := strings.Fields(full)
	if len(words) <= n {
		return full
	}
	return strings.Join(words[len(words)-n:], " ")
}

// countWords counts whitespace-separated words.
func countWords(s string) int {
	return len(strings.Fields(s))
}
