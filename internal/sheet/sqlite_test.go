package sheet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/basket/decoy/internal/sheet"
)

func openTestGrid(t *testing.T) *sheet.SQLiteGrid {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decoy.db")
	grid, err := sheet.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open grid: %v", err)
	}
	t.Cleanup(func() {
		_ = grid.Close()
	})
	return grid
}

func TestSQLiteGrid_OpenConfiguresWAL(t *testing.T) {
	grid := openTestGrid(t)

	var journal string
	if err := grid.DB().QueryRow("PRAGMA journal_mode;").Scan(&journal); err != nil {
		t.Fatalf("pragma journal_mode: %v", err)
	}
	if journal != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journal)
	}
}

func TestSQLiteGrid_AppendPreservesOrder(t *testing.T) {
	grid := openTestGrid(t)
	ctx := context.Background()

	for _, row := range [][]string{{"header"}, {"a", "1"}, {"b", "2"}} {
		if err := grid.AppendRow(ctx, row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1][0] != "a" || rows[2][0] != "b" {
		t.Fatalf("rows out of order: %v", rows)
	}
}

func TestSQLiteGrid_RaggedRowsRoundTrip(t *testing.T) {
	grid := openTestGrid(t)
	ctx := context.Background()

	if err := grid.AppendRow(ctx, []string{"only-one-cell"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := grid.AppendRow(ctx, []string{"a", "b", "c", "d"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows[0]) != 1 || len(rows[1]) != 4 {
		t.Fatalf("ragged widths lost: %d, %d", len(rows[0]), len(rows[1]))
	}
}

func TestSQLiteGrid_UpdateCellExtendsRow(t *testing.T) {
	grid := openTestGrid(t)
	ctx := context.Background()

	if err := grid.AppendRow(ctx, []string{"s1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := grid.UpdateCell(ctx, 0, 3, "late"); err != nil {
		t.Fatalf("update cell: %v", err)
	}

	rows, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	want := []string{"s1", "", "", "late"}
	if len(rows[0]) != len(want) {
		t.Fatalf("expected %d cells, got %v", len(want), rows[0])
	}
	for i, cell := range want {
		if rows[0][i] != cell {
			t.Fatalf("cell %d: expected %q, got %q", i, cell, rows[0][i])
		}
	}
}

func TestSQLiteGrid_UpdateCellOutOfRange(t *testing.T) {
	grid := openTestGrid(t)
	ctx := context.Background()

	if err := grid.UpdateCell(ctx, 0, 0, "x"); err != sheet.ErrRowOutOfRange {
		t.Fatalf("expected ErrRowOutOfRange, got %v", err)
	}
}

func TestSQLiteGrid_ClearRemovesEverything(t *testing.T) {
	grid := openTestGrid(t)
	ctx := context.Background()

	if err := grid.AppendRow(ctx, []string{"a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := grid.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rows, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty grid, got %d rows", len(rows))
	}

	// Appends after Clear restart from the top.
	if err := grid.AppendRow(ctx, []string{"fresh"}); err != nil {
		t.Fatalf("append after clear: %v", err)
	}
	rows, err = grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "fresh" {
		t.Fatalf("unexpected grid after clear+append: %v", rows)
	}
}
