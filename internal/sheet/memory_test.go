package sheet_test

import (
	"context"
	"testing"

	"github.com/basket/decoy/internal/sheet"
)

func TestMemoryGrid_RowsReturnsCopies(t *testing.T) {
	grid := sheet.NewMemoryGrid()
	ctx := context.Background()

	if err := grid.AppendRow(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	rows[0][0] = "mutated"

	again, err := grid.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if again[0][0] != "a" {
		t.Fatalf("caller mutation leaked into grid: %v", again[0])
	}
}

func TestMemoryGrid_UpdateCell(t *testing.T) {
	grid := sheet.NewMemoryGrid()
	ctx := context.Background()

	if err := grid.AppendRow(ctx, []string{"s1", "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := grid.UpdateCell(ctx, 0, 1, "y"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := grid.UpdateCell(ctx, 5, 0, "z"); err != sheet.ErrRowOutOfRange {
		t.Fatalf("expected ErrRowOutOfRange, got %v", err)
	}

	rows, _ := grid.Rows(ctx)
	if rows[0][1] != "y" {
		t.Fatalf("expected updated cell, got %v", rows[0])
	}
}
