package pipeline

import (
	"sync"
	"time"
)

// Window is one token-bucket policy overlay of a TokenBucketGrouper; a key
// must be admitted by ALL configured windows to be kept (spec.md §4.4
// "ALL must admit").
type Window struct {
	Name  string
	Rate  float64 // tokens per second
	Burst float64 // max tokens (bucket capacity)
}

type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketGrouper implements the per-(class,dimension) token bucket
// grouper described in spec.md §4.4: refill tokens at Rate per second up to
// Burst, admit iff tokens >= 1 after refill, decrementing on admit. Ported
// from the from-scratch refill math of resilience/ratelimiter.go's
// Limiter.refill, generalized to per-key state and multi-window overlay.
type TokenBucketGrouper struct {
	mu      sync.Mutex
	windows map[string][]Window // class -> overlaid windows
	state   map[string]*bucketState // "class\x00dimension\x00windowName" -> state
	now     func() time.Time
}

// NewTokenBucketGrouper builds a grouper from a class -> windows mapping. A
// class with no configured windows is treated as pass-through (always KEEP).
func NewTokenBucketGrouper(windows map[string][]Window) *TokenBucketGrouper {
	return &TokenBucketGrouper{windows: windows, state: map[string]*bucketState{}, now: time.Now}
}

func (g *TokenBucketGrouper) Admit(class, dimension string, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	wins, ok := g.windows[class]
	if !ok || len(wins) == 0 {
		return Keep
	}

	// Evaluate every window first so a later window's rejection does not
	// leave an earlier window's token already spent (all-or-nothing admit).
	type slot struct {
		st   *bucketState
		win  Window
		pass bool
	}
	slots := make([]slot, len(wins))
	for i, w := range wins {
		key := class + "\x00" + dimension + "\x00" + w.Name
		st, ok := g.state[key]
		if !ok {
			st = &bucketState{tokens: w.Burst, lastRefill: now}
			g.state[key] = st
		}
		refill(st, w, now)
		slots[i] = slot{st: st, win: w, pass: st.tokens >= 1}
	}

	admit := true
	for _, s := range slots {
		if !s.pass {
			admit = false
			break
		}
	}
	if !admit {
		return Drop
	}
	for _, s := range slots {
		s.st.tokens--
	}
	return Keep
}

func refill(st *bucketState, w Window, now time.Time) {
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	st.tokens += elapsed * w.Rate
	if st.tokens > w.Burst {
		st.tokens = w.Burst
	}
	st.lastRefill = now
}
