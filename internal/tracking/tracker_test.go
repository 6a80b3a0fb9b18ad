package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/basket/decoy/internal/sheet"
	"github.com/basket/decoy/internal/tracking"
)

func newTestTracker(t *testing.T) (*tracking.Tracker, *sheet.MemoryGrid) {
	t.Helper()
	grid := sheet.NewMemoryGrid()
	return tracking.NewTracker(grid, nil), grid
}

func TestEnsureSchema_EmptyGridGetsHeader(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 header row, got %d rows", len(rows))
	}
	if len(rows[0]) != 14 {
		t.Fatalf("expected 14 header columns, got %d", len(rows[0]))
	}
	if rows[0][0] != "Session_ID" || rows[0][13] != "Data_Creazione" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
}

func TestEnsureSchema_IsIdempotent(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := tracker.Upsert(ctx, tracking.SessionRecord{SessionID: "s1", Status: tracking.StatusPageOpened}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Second call must not clear the data row.
	if err := tracker.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema again: %v", err)
	}
	rows, _ := grid.Rows(ctx)
	if len(rows) != 2 {
		t.Fatalf("idempotent EnsureSchema destroyed data: %d rows", len(rows))
	}
}

func TestEnsureSchema_HealsCorruptedHeader(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	// Simulate an external edit that mangled the header and left data.
	_ = grid.AppendRow(ctx, []string{"Session_ID", "Wrong_Column"})
	_ = grid.AppendRow(ctx, []string{"stale-session", "data"})

	if err := tracker.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("healing should wipe the grid, got %d rows", len(rows))
	}
	for i, col := range tracking.Header {
		if rows[0][i] != col {
			t.Fatalf("column %d: expected %q, got %q", i, col, rows[0][i])
		}
	}
}

func TestUpsert_NewSessionAppendsOneFullRow(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	rec := tracking.SessionRecord{
		SessionID:    "s1",
		PageOpenedAt: time.Now(),
		Status:       tracking.StatusPageOpened,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
	}
	if err := tracker.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if len(rows[1]) != 14 {
		t.Fatalf("row must always have 14 columns, got %d", len(rows[1]))
	}
	if rows[1][0] != "s1" {
		t.Fatalf("first column should be session id, got %q", rows[1][0])
	}
	if rows[1][11] != "No" {
		t.Fatalf("incomplete session should render Completato=No, got %q", rows[1][11])
	}
	if rows[1][13] == "" {
		t.Fatal("Data_Creazione should be stamped on write")
	}
}

func TestUpsert_MergeNeverBlanksExistingCells(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	first := tracking.SessionRecord{
		SessionID:  "s1",
		QRLocation: "Bar/Ristorante",
		Status:     tracking.StatusFormStarted,
	}
	if err := tracker.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Later partial update: no QR location this time.
	second := tracking.SessionRecord{
		SessionID: "s1",
		AgeRange:  "24-29",
		Status:    tracking.StatusStep2Completed,
	}
	if err := tracker.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 2 {
		t.Fatalf("upsert must not duplicate the session row: %d rows", len(rows))
	}
	row := rows[1]
	if row[5] != "Bar/Ristorante" {
		t.Fatalf("empty update blanked QR location: %q", row[5])
	}
	if row[6] != "24-29" {
		t.Fatalf("age range not merged: %q", row[6])
	}
	if row[10] != "step2_completed" {
		t.Fatalf("status not advanced: %q", row[10])
	}
	if row[11] != "No" {
		t.Fatalf("session not completed, Completato should be No: %q", row[11])
	}
}

func TestUpsert_TwoSessionsTwoRows(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		rec := tracking.SessionRecord{SessionID: id, Status: tracking.StatusPageOpened}
		if err := tracker.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 data rows, got %d", len(rows))
	}
}

func TestUpsert_FirstDuplicateWins(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	// Two rows with the same id, planted by hand (should not happen under
	// correct use). Only the first may be touched.
	_ = grid.AppendRow(ctx, tracking.SessionRecord{SessionID: "dup"}.Row(time.Now()))
	_ = grid.AppendRow(ctx, tracking.SessionRecord{SessionID: "dup", QRLocation: "Macchina"}.Row(time.Now()))

	upd := tracking.SessionRecord{SessionID: "dup", QRLocation: "Altro"}
	if err := tracker.Upsert(ctx, upd); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if rows[1][5] != "Altro" {
		t.Fatalf("first duplicate should be updated, got %q", rows[1][5])
	}
	if rows[2][5] != "Macchina" {
		t.Fatalf("later duplicate must stay stale, got %q", rows[2][5])
	}
}

func TestUpsert_CompletedSessionRendersYes(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	rec := tracking.SessionRecord{SessionID: "s1"}
	rec.AdvanceStatus(tracking.StatusFullyCompleted)
	rec.CompletedAt = time.Now()
	if err := tracker.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if rows[1][11] != "Sì" {
		t.Fatalf("completed session should render Completato=Sì, got %q", rows[1][11])
	}
}

func TestUpsert_EmptySessionIDRejected(t *testing.T) {
	tracker, _ := newTestTracker(t)
	if err := tracker.Upsert(context.Background(), tracking.SessionRecord{}); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestReadAll_SkipsBlankRows(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Upsert(ctx, tracking.SessionRecord{SessionID: "s1", Status: tracking.StatusPageOpened}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Blank padding row left by an external edit.
	_ = grid.AppendRow(ctx, []string{"", "", ""})

	recs, err := tracker.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(recs) != 1 || recs[0].SessionID != "s1" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestReset_WipesAndRewritesHeader(t *testing.T) {
	tracker, grid := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Upsert(ctx, tracking.SessionRecord{SessionID: "s1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tracker.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("reset should leave only the header, got %d rows", len(rows))
	}
	if rows[0][0] != "Session_ID" {
		t.Fatalf("header not rewritten: %v", rows[0])
	}
}

func TestScenario_PartialStepsAccumulate(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	s1 := tracking.SessionRecord{
		SessionID:     "s1",
		QRLocation:    "Bar/Ristorante",
		FormStartedAt: time.Now(),
	}
	s1.AdvanceStatus(tracking.StatusFormStarted)
	if err := tracker.Upsert(ctx, s1); err != nil {
		t.Fatalf("step1 upsert: %v", err)
	}

	s2 := tracking.SessionRecord{
		SessionID: "s1",
		AgeRange:  "24-29",
		Step2At:   time.Now(),
	}
	s2.AdvanceStatus(tracking.StatusStep2Completed)
	if err := tracker.Upsert(ctx, s2); err != nil {
		t.Fatalf("step2 upsert: %v", err)
	}

	recs, err := tracker.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.QRLocation != "Bar/Ristorante" || rec.AgeRange != "24-29" {
		t.Fatalf("fields not unioned: %+v", rec)
	}
	if rec.Status != tracking.StatusStep2Completed {
		t.Fatalf("status should be step2_completed, got %q", rec.Status)
	}
	if rec.Completed {
		t.Fatal("session should not be marked completed")
	}
}
