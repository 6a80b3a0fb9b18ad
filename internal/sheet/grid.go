// Package sheet provides the tabular row store the tracker persists into.
// The Grid interface mirrors the small surface we consume from a remote
// spreadsheet: read the whole grid, append a row, update a single cell,
// and clear everything. Backends: SQLite (durable) and in-memory (tests,
// demo runs without a data directory).
package sheet

import (
	"context"
	"errors"
)

// ErrRowOutOfRange is returned by UpdateCell when the row index does not
// refer to an existing row.
var ErrRowOutOfRange = errors.New("sheet: row index out of range")

// Grid is a flat tabular store. Row 0 is the header row by convention of
// the callers; the grid itself has no notion of a schema.
//
// Indices are zero-based. UpdateCell on a column beyond the current width
// of the row extends the row with empty cells, matching how spreadsheet
// backends behave.
type Grid interface {
	// Rows returns every row in order, including the header row.
	// The returned slices are owned by the caller.
	Rows(ctx context.Context) ([][]string, error)

	// AppendRow adds a row after the last existing row.
	AppendRow(ctx context.Context, cells []string) error

	// UpdateCell overwrites one cell of an existing row.
	UpdateCell(ctx context.Context, row, col int, value string) error

	// Clear removes every row, header included.
	Clear(ctx context.Context) error
}
