package tracking

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/basket/decoy/internal/config"
)

// MissingHeaderSentinel is the fallback value the request layer substitutes
// when a header is genuinely absent. A user-agent that *equals* the sentinel
// therefore means "no user-agent was observable", the strongest automated-
// probe signal we have.
const MissingHeaderSentinel = "Unknown"

// Visit is the request metadata a single classification runs on. Fields
// hold the sentinel when the header was absent. Err records a failure to
// read request metadata at all; such visits are tracked (fail open) rather
// than silently dropped.
type Visit struct {
	UserAgent string
	Referrer  string
	Host      string
	Err       error
}

// defaultDenylist marks user-agents of crawlers, health probes and HTTP
// client libraries. Matched case-insensitively as substrings.
var defaultDenylist = []string{
	"bot", "crawler", "spider", "scraper",
	"health", "check", "monitor", "ping",
	"uptime", "status", "test", "probe",
	"python-requests", "curl", "wget",
	"axios", "fetch", "httpx",
}

// referrerDenylist marks health-check paths that leak into the referrer.
var referrerDenylist = []string{
	"healthz", "health-check", "ping", "status",
}

// simpleClientNames are whole user-agent values (trimmed, lowercased) that
// no real browser sends.
var simpleClientNames = []string{
	"python", "requests", "urllib", "go-http-client",
}

// Classifier decides whether a page view is a genuine visitor or an
// automated probe. The decision is an OR of independent rules; any match
// rejects the visit. It keeps one piece of session-local state, the
// last-classification timestamp, for the frequency rule.
type Classifier struct {
	mu sync.Mutex

	strictAgent     bool
	strictFrequency bool
	denylist        []string
	minAgentLength  int
	minDwell        time.Duration

	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewClassifier builds a classifier from config, applying the built-in
// denylist when none is configured.
func NewClassifier(cfg config.FilterConfig) *Classifier {
	c := &Classifier{
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	c.Reconfigure(cfg)
	return c
}

// Reconfigure swaps the rule set, keeping session-local state. Called on
// config hot-reload.
func (c *Classifier) Reconfigure(cfg config.FilterConfig) {
	denylist := cfg.Denylist
	if len(denylist) == 0 {
		denylist = defaultDenylist
	}
	minLen := cfg.MinAgentLength
	if minLen <= 0 {
		minLen = 10
	}
	dwell := time.Duration(cfg.MinDwellSeconds) * time.Second
	if dwell <= 0 {
		dwell = 2 * time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.strictAgent = cfg.StrictAgent
	c.strictFrequency = cfg.StrictFrequency
	c.denylist = denylist
	c.minAgentLength = minLen
	c.minDwell = dwell
}

// ShouldTrack reports whether the visit should be persisted. The caller
// must still render the page normally on false: rejection only skips
// persistence, never the UI.
func (c *Classifier) ShouldTrack(sessionID string, v Visit) bool {
	if v.Err != nil {
		return true
	}
	if v.UserAgent == MissingHeaderSentinel {
		return false
	}
	if lacksBrowserContext(v) {
		return false
	}

	c.mu.Lock()
	strictAgent, strictFrequency := c.strictAgent, c.strictFrequency
	c.mu.Unlock()

	if strictAgent && c.looksAutomated(v) {
		return false
	}
	if strictFrequency && c.tooFrequent(sessionID) {
		return false
	}
	return true
}

// lacksBrowserContext fires when user-agent, referrer and host are all
// simultaneously absent-ish: a stronger corroborating signal than any one
// missing header alone.
func lacksBrowserContext(v Visit) bool {
	return isAbsentValue(v.UserAgent) && isAbsentValue(v.Referrer) && isAbsentValue(v.Host)
}

func isAbsentValue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "none", "undefined", "-":
		return true
	}
	return false
}

// looksAutomated applies the strict user-agent heuristics: denylist
// substrings, implausibly short agents, exact non-browser client names,
// and health-check paths leaking into the referrer.
func (c *Classifier) looksAutomated(v Visit) bool {
	ua := strings.ToLower(v.UserAgent)

	c.mu.Lock()
	denylist := c.denylist
	minLen := c.minAgentLength
	c.mu.Unlock()

	for _, pattern := range denylist {
		if strings.Contains(ua, pattern) {
			return true
		}
	}

	referrer := strings.ToLower(v.Referrer)
	if !isAbsentValue(referrer) {
		for _, pattern := range referrerDenylist {
			if strings.Contains(referrer, pattern) {
				return true
			}
		}
	}

	if len(ua) < minLen {
		return true
	}

	trimmed := strings.TrimSpace(ua)
	for _, name := range simpleClientNames {
		if trimmed == name {
			return true
		}
	}
	return false
}

// tooFrequent reports whether this session was classified within the
// minimum dwell window. The timestamp is only advanced on accepted checks,
// so a polling probe stays rejected until it backs off for a full window.
func (c *Classifier) tooFrequent(sessionID string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastSeen[sessionID]; ok && now.Sub(last) < c.minDwell {
		return true
	}
	c.lastSeen[sessionID] = now
	return false
}

// StartEviction launches a background goroutine that periodically drops
// last-seen entries older than maxAge, bounding memory across long
// campaigns with many sessions.
func (c *Classifier) StartEviction(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.EvictStale(maxAge)
			}
		}
	}()
}

// EvictStale removes last-seen entries not touched within maxAge.
func (c *Classifier) EvictStale(maxAge time.Duration) {
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, seen := range c.lastSeen {
		if seen.Before(cutoff) {
			delete(c.lastSeen, id)
		}
	}
}

// SessionCount returns the number of tracked last-seen entries (for tests).
func (c *Classifier) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lastSeen)
}
