package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/decoy/internal/tracking"
)

const sessionCookieName = "decoy_session"

// sessionStore keeps the server-side view of each visitor's record. The
// grid is the durable store; this map exists so the final page and the
// data download can show the visitor what they handed over without a
// grid round-trip, and so a grid outage degrades to in-memory tracking
// instead of losing the demo flow.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	record   tracking.SessionRecord
	lastSeen time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]sessionEntry)}
}

// Get returns the current view of a session. ok is false for unknown ids.
func (ss *sessionStore) Get(id string) (tracking.SessionRecord, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	entry, ok := ss.sessions[id]
	return entry.record, ok
}

// Apply merges upd into the stored view and returns the merged record.
func (ss *sessionStore) Apply(id string, upd tracking.SessionRecord) tracking.SessionRecord {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	entry := ss.sessions[id]
	entry.record = entry.record.Merge(upd)
	entry.lastSeen = time.Now()
	ss.sessions[id] = entry
	return entry.record
}

// Drop removes a session, used by the restart flow.
func (ss *sessionStore) Drop(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Count returns the number of live sessions.
func (ss *sessionStore) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// EvictStale removes sessions idle longer than maxAge.
func (ss *sessionStore) EvictStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for id, entry := range ss.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(ss.sessions, id)
		}
	}
}

// sessionID returns the visitor's session id from the cookie, minting and
// setting a fresh one when absent. The second return reports whether the
// session is new to this request.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value, false
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, true
}

// clearSession expires the session cookie.
func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
