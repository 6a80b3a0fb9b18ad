package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/decoy/internal/audit"
	"github.com/basket/decoy/internal/sheet"
)

// Tracker persists session records into a Grid with at-most-one-row-per-
// session semantics. All failures are reported as errors and never
// escalate: callers log them and let the UI advance, durability stays
// best-effort.
//
// The upsert is a scan-then-write sequence with no transactional isolation
// across the two calls. Concurrent upserts for different sessions are
// independent; two concurrent upserts for the same session race (last
// writer wins per cell). A single browser session issues its steps
// sequentially, so the race is accepted rather than locked away.
type Tracker struct {
	grid   sheet.Grid
	logger *slog.Logger
	now    func() time.Time

	// onHeal, when set, fires once per destructive schema heal.
	onHeal func()
}

func NewTracker(grid sheet.Grid, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		grid:   grid,
		logger: logger,
		now:    time.Now,
	}
}

// SetHealHook registers a callback fired on each destructive schema heal,
// used to feed the heal counter.
func (t *Tracker) SetHealHook(fn func()) {
	t.onHeal = fn
}

// EnsureSchema verifies the first row of the grid is exactly the canonical
// header. An empty grid or a mismatched first row triggers the self-healing
// path: the ENTIRE grid is cleared and the header rewritten. This recovers
// from corrupted external edits at the cost of all existing data. Blunt on
// purpose, and loudly logged so operators notice.
//
// Calling it again when the header is already correct does nothing.
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	rows, err := t.grid.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read grid for schema check: %w", err)
	}
	if len(rows) > 0 && headerMatches(rows[0]) {
		return nil
	}

	if len(rows) > 0 {
		t.logger.Warn("grid header mismatch, clearing store and rewriting schema",
			"existing_rows", len(rows))
		audit.Record(audit.EventSchemaHeal, "",
			fmt.Sprintf("header mismatch, %d rows destroyed", len(rows)))
		if t.onHeal != nil {
			t.onHeal()
		}
	}
	if err := t.grid.Clear(ctx); err != nil {
		return fmt.Errorf("clear grid: %w", err)
	}
	header := make([]string, len(Header))
	copy(header, Header)
	if err := t.grid.AppendRow(ctx, header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	return nil
}

func headerMatches(row []string) bool {
	if len(row) != len(Header) {
		return false
	}
	for i, col := range Header {
		if row[i] != col {
			return false
		}
	}
	return true
}

// Upsert creates or merge-updates the row for rec's session id.
//
// When a row already exists, each cell is overwritten only if the new
// row's value for that column is non-empty: a later partial update never
// blanks out previously written fields. When no row exists, a full
// 14-column row is appended.
//
// If several rows somehow carry the same session id, only the first
// (lowest index) is updated; later duplicates stay stale.
func (t *Tracker) Upsert(ctx context.Context, rec SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("upsert: empty session id")
	}
	if err := t.EnsureSchema(ctx); err != nil {
		return err
	}

	row := rec.Row(t.now())

	rows, err := t.grid.Rows(ctx)
	if err != nil {
		return fmt.Errorf("scan grid: %w", err)
	}

	existing := -1
	for i, r := range rows[1:] {
		if len(r) > 0 && r[0] == rec.SessionID {
			existing = i + 1
			break
		}
	}

	if existing < 0 {
		if err := t.grid.AppendRow(ctx, row); err != nil {
			return fmt.Errorf("append session row: %w", err)
		}
		return nil
	}

	for col, value := range row {
		if value == "" {
			continue
		}
		if err := t.grid.UpdateCell(ctx, existing, col, value); err != nil {
			return fmt.Errorf("update session cell %d: %w", col, err)
		}
	}
	return nil
}

// ReadAll returns every parseable session record in the grid, skipping the
// header and blank padding rows.
func (t *Tracker) ReadAll(ctx context.Context) ([]SessionRecord, error) {
	if err := t.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := t.grid.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}

	var out []SessionRecord
	for _, r := range rows[1:] {
		if rec, ok := RecordFromRow(r); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Reset destructively wipes every session row and rewrites the canonical
// header. Operator-invoked only.
func (t *Tracker) Reset(ctx context.Context) error {
	t.logger.Warn("resetting grid: all session data will be destroyed")
	audit.Record(audit.EventStoreWipe, "", "operator reset")
	if err := t.grid.Clear(ctx); err != nil {
		return fmt.Errorf("clear grid: %w", err)
	}
	header := make([]string, len(Header))
	copy(header, Header)
	if err := t.grid.AppendRow(ctx, header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}
	return nil
}
