package mcp

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/ashita-ai/hikyaku/internal/mail"
)

// sendTracker remembers recent successful sends so handleSendEmail can warn
// an agent that is about to deliver the same message twice.
//
// Entries are keyed on (caller, message digest) and expire after window.
// The tracker is in-memory and per-process; the nudge is advisory and never
// blocks a send.
type sendTracker struct {
	mu     sync.Mutex
	sends  map[sendKey]time.Time
	window time.Duration
}

type sendKey struct {
	caller string
	digest [sha256.Size]byte
}

func newSendTracker(window time.Duration) *sendTracker {
	return &sendTracker{
		sends:  make(map[sendKey]time.Time),
		window: window,
	}
}

func keyFor(caller string, e mail.Email) sendKey {
	h := sha256.New()
	for _, part := range []string{e.To, e.From, e.Subject, e.Body} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	var k sendKey
	k.caller = caller
	copy(k.digest[:], h.Sum(nil))
	return k
}

// Record notes that caller sent e at now.
func (t *sendTracker) Record(caller string, e mail.Email, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends[keyFor(caller, e)] = now

	// Lazy cleanup keeps the map bounded under many distinct messages.
	if len(t.sends) > 1000 {
		t.purgeStale(now)
	}
}

// LastSent reports when caller last sent an identical e, if within window.
func (t *sendTracker) LastSent(caller string, e mail.Email, now time.Time) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyFor(caller, e)
	ts, ok := t.sends[k]
	if !ok {
		return time.Time{}, false
	}
	if now.Sub(ts) > t.window {
		delete(t.sends, k)
		return time.Time{}, false
	}
	return ts, true
}

// purgeStale removes entries older than the window. Must be called with mu held.
func (t *sendTracker) purgeStale(now time.Time) {
	for k, ts := range t.sends {
		if now.Sub(ts) > t.window {
			delete(t.sends, k)
		}
	}
}
