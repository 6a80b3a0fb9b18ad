// Package tracking holds the visit-tracking core: the session record and
// its fixed wire schema, the bot/health-check classifier that gates
// persistence, and the session-keyed upsert into the row grid.
package tracking

import (
	"strings"
	"time"
)

// Status is the furthest funnel stage a session has reached.
type Status string

const (
	StatusPageOpened     Status = "page_opened"
	StatusFormStarted    Status = "form_started"
	StatusStep2Completed Status = "step2_completed"
	StatusFullyCompleted Status = "fully_completed"
)

// statusRank orders statuses so a late-arriving early step can never
// downgrade a session.
var statusRank = map[Status]int{
	StatusPageOpened:     1,
	StatusFormStarted:    2,
	StatusStep2Completed: 3,
	StatusFullyCompleted: 4,
}

// Header is the canonical schema of the row grid: exactly these 14 columns,
// in this order, always. Every consumer of the grid treats this as the
// contract; EnsureSchema destructively restores it when it drifts.
var Header = []string{
	"Session_ID",
	"Timestamp_Apertura",
	"Timestamp_Inizio_Form",
	"Timestamp_Step2",
	"Timestamp_Completamento",
	"Dove_Trovato_QR",
	"Fascia_Eta",
	"Sesso",
	"Provincia_Nascita",
	"Titolo_Studio",
	"Status_Finale",
	"Completato",
	"User_Agent",
	"Data_Creazione",
}

const (
	completedYes = "Sì"
	completedNo  = "No"

	createdAtLayout = "2006-01-02 15:04:05"
)

// SessionRecord is the single logical row of collected data for one
// visitor session. Zero-valued timestamps and empty strings mean
// "not yet supplied"; they render as empty cells and never overwrite
// previously written values.
type SessionRecord struct {
	SessionID     string
	PageOpenedAt  time.Time
	FormStartedAt time.Time
	Step2At       time.Time
	CompletedAt   time.Time
	QRLocation    string
	AgeRange      string
	Gender        string
	BirthProvince string
	Education     string
	Status        Status
	Completed     bool
	UserAgent     string
	CreatedAt     time.Time
}

// Reached reports whether s is at or past min in the funnel order. An
// unknown status never reaches anything.
func (s Status) Reached(min Status) bool {
	return statusRank[s] >= statusRank[min]
}

// AdvanceStatus moves the record to s unless it already reached a later
// stage. Completed follows the status ratchet.
func (r *SessionRecord) AdvanceStatus(s Status) {
	if statusRank[s] > statusRank[r.Status] {
		r.Status = s
	}
	if r.Status == StatusFullyCompleted {
		r.Completed = true
	}
}

// Merge returns r with every non-empty field of upd applied on top.
// This is the same non-empty-wins rule the store applies per cell, used
// for the in-memory session fallback when the grid is unreachable.
func (r SessionRecord) Merge(upd SessionRecord) SessionRecord {
	out := r
	if upd.SessionID != "" {
		out.SessionID = upd.SessionID
	}
	if !upd.PageOpenedAt.IsZero() {
		out.PageOpenedAt = upd.PageOpenedAt
	}
	if !upd.FormStartedAt.IsZero() {
		out.FormStartedAt = upd.FormStartedAt
	}
	if !upd.Step2At.IsZero() {
		out.Step2At = upd.Step2At
	}
	if !upd.CompletedAt.IsZero() {
		out.CompletedAt = upd.CompletedAt
	}
	if upd.QRLocation != "" {
		out.QRLocation = upd.QRLocation
	}
	if upd.AgeRange != "" {
		out.AgeRange = upd.AgeRange
	}
	if upd.Gender != "" {
		out.Gender = upd.Gender
	}
	if upd.BirthProvince != "" {
		out.BirthProvince = upd.BirthProvince
	}
	if upd.Education != "" {
		out.Education = upd.Education
	}
	if upd.UserAgent != "" {
		out.UserAgent = upd.UserAgent
	}
	out.AdvanceStatus(upd.Status)
	return out
}

// Row renders the record as the fixed 14-cell grid row. Unknown fields
// render as empty strings so the column count never varies. createdAt is
// the write timestamp for the Data_Creazione column.
func (r SessionRecord) Row(createdAt time.Time) []string {
	completed := completedNo
	if r.Completed {
		completed = completedYes
	}
	return []string{
		r.SessionID,
		formatTimestamp(r.PageOpenedAt),
		formatTimestamp(r.FormStartedAt),
		formatTimestamp(r.Step2At),
		formatTimestamp(r.CompletedAt),
		r.QRLocation,
		r.AgeRange,
		r.Gender,
		r.BirthProvince,
		r.Education,
		string(r.Status),
		completed,
		r.UserAgent,
		createdAt.Format(createdAtLayout),
	}
}

// RecordFromRow parses a grid row back into a record. Rows without a
// session id (blank padding rows left by external edits) report ok=false
// and are skipped by readers.
func RecordFromRow(cells []string) (SessionRecord, bool) {
	if len(cells) == 0 || strings.TrimSpace(cells[0]) == "" {
		return SessionRecord{}, false
	}
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}

	rec := SessionRecord{
		SessionID:     cell(0),
		PageOpenedAt:  parseTimestamp(cell(1)),
		FormStartedAt: parseTimestamp(cell(2)),
		Step2At:       parseTimestamp(cell(3)),
		CompletedAt:   parseTimestamp(cell(4)),
		QRLocation:    cell(5),
		AgeRange:      cell(6),
		Gender:        cell(7),
		BirthProvince: cell(8),
		Education:     cell(9),
		Status:        Status(cell(10)),
		Completed:     parseCompleted(cell(11)),
		UserAgent:     cell(12),
		CreatedAt:     parseCreatedAt(cell(13)),
	}
	return rec, true
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTimestamp coerces a cell to a timestamp, zero on failure. Externally
// edited cells may hold garbage; the loader drops them rather than failing
// the whole read.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, createdAtLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseCreatedAt(s string) time.Time {
	return parseTimestamp(s)
}

// parseCompleted recognizes the localized boolean token plus the loose
// spellings older rows carried.
func parseCompleted(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sì", "si", "yes", "true":
		return true
	}
	return false
}
