// Package nudge implements the keyword-driven, cooldown-gated advisory
// engine that attaches a contextual product nudge to pipeline replies.
//
// A nudge fires when the evaluated text mentions a configured keyword and
// the session's cooldown has elapsed. Cooldown is counted in interactions,
// not wall-clock time: every evaluated LLM turn increments the session's
// interaction index by exactly one, and a nudge may fire only when at least
// CooldownInteractions turns have passed since the last one fired.
//
// Because the evaluated text often originates from speech recognition,
// keyword matching optionally tolerates STT noise: with a fuzzy threshold
// configured, a word whose Jaro-Winkler similarity to a keyword reaches the
// threshold ("golld" vs "gold") counts as a hit.
package nudge

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// Payload is the advisory attached to a reply when a nudge fires.
type Payload struct {
	Message     string `json:"message"`
	Link        string `json:"link"`
	DisplayText string `json:"display_text"`
}

// Config holds the engine's static settings, read once at startup.
type Config struct {
	// Keywords trigger the nudge (matched case-insensitively).
	Keywords []string

	// Message, Link, and DisplayText form the emitted Payload.
	Message     string
	Link        string
	DisplayText string

	// CooldownInteractions is the minimum number of interactions between
	// fires within one session.
	CooldownInteractions int

	// FuzzyThreshold in (0.0, 1.0] enables Jaro-Winkler matching of
	// individual words against keywords. 0 disables fuzzy matching.
	FuzzyThreshold float64
}

// sessionState tracks per-session cooldown progress.
type sessionState struct {
	mu sync.Mutex

	// interactions is the total number of evaluated turns for this session.
	interactions int

	// lastNudge is the interaction index at which a nudge last fired,
	// 0 when none has fired yet.
	lastNudge int
}

// Engine evaluates reply text for nudge triggers. Safe for concurrent use;
// each session's state carries its own lock so unrelated sessions never
// serialize on one another.
type Engine struct {
	cfg Config

	// keywords holds the configured keywords pre-lowered.
	keywords []string

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewEngine creates an Engine from cfg. A zero CooldownInteractions means
// every triggering turn may fire.
func NewEngine(cfg Config) *Engine {
	lowered := make([]string, len(cfg.Keywords))
	for i, k := range cfg.Keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Engine{
		cfg:      cfg,
		keywords: lowered,
		sessions: make(map[string]*sessionState),
	}
}

// Evaluate inspects text for one session turn. It always increments the
// session's interaction counter, and returns a non-nil Payload only when a
// keyword matched and the cooldown has elapsed. sessionID must be non-empty;
// callers use a synthetic id for anonymous requests.
func (e *Engine) Evaluate(sessionID, text string) *Payload {
	st := e.state(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.interactions++

	if !e.matches(text) {
		return nil
	}
	if st.lastNudge != 0 && st.interactions-st.lastNudge < e.cfg.CooldownInteractions {
		// Suppressed: the counter advanced above, but lastNudge stays put
		// so the cooldown window is measured from the fire that started it.
		return nil
	}

	st.lastNudge = st.interactions
	return &Payload{
		Message:     e.cfg.Message,
		Link:        e.cfg.Link,
		DisplayText: e.cfg.DisplayText,
	}
}

// Interactions returns the session's evaluated turn count. Intended for
// tests and diagnostics.
func (e *Engine) Interactions(sessionID string) int {
	e.mu.RLock()
	st, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.interactions
}

// state returns the session's state, creating it on first use.
func (e *Engine) state(sessionID string) *sessionState {
	e.mu.RLock()
	st, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.sessions[sessionID]; ok {
		return st
	}
	st = &sessionState{}
	e.sessions[sessionID] = st
	return st
}

// matches reports whether text mentions any configured keyword,
// case-insensitively, with optional fuzzy matching of individual words.
func (e *Engine) matches(text string) bool {
	if len(e.keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)

	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if e.cfg.FuzzyThreshold <= 0 {
		return false
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		for _, kw := range e.keywords {
			if matchr.JaroWinkler(word, kw, false) >= e.cfg.FuzzyThreshold {
				return true
			}
		}
	}
	return false
}
