package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteGrid stores the grid in a single SQLite table, one record per row,
// cells JSON-encoded so ragged rows survive round-trips. Positional
// semantics (ordering, single-cell update) match a remote sheet: appends
// only, no row deletion outside Clear.
type SQLiteGrid struct {
	db *sql.DB
}

// DefaultDBPath returns the grid database path under the decoy home dir.
func DefaultDBPath(homeDir string) string {
	return filepath.Join(homeDir, "decoy.db")
}

// OpenSQLite opens (creating if needed) the grid database at path.
func OpenSQLite(path string) (*SQLiteGrid, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	g := &SQLiteGrid{db: db}
	if err := g.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := g.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// DB exposes the underlying handle for diagnostics and tests.
func (g *SQLiteGrid) DB() *sql.DB {
	return g.db
}

func (g *SQLiteGrid) Close() error {
	return g.db.Close()
}

func (g *SQLiteGrid) configurePragmas(ctx context.Context) error {
	pragma := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragma {
		if _, err := g.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (g *SQLiteGrid) initSchema(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS grid_rows (
			pos   INTEGER PRIMARY KEY,
			cells TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create grid_rows: %w", err)
	}
	return nil
}

// retryOnBusy retries f when SQLite returns BUSY or LOCKED, using
// exponential backoff with bounded jitter on top of the driver's
// busy_timeout.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") || // SQLITE_BUSY
		strings.Contains(msg, "(6)") // SQLITE_LOCKED
}

func (g *SQLiteGrid) Rows(ctx context.Context) ([][]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT cells FROM grid_rows ORDER BY pos ASC;`)
	if err != nil {
		return nil, fmt.Errorf("query grid rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan grid row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode grid row: %w", err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grid rows: %w", err)
	}
	return out, nil
}

func (g *SQLiteGrid) AppendRow(ctx context.Context, cells []string) error {
	raw, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("encode grid row: %w", err)
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := g.db.ExecContext(ctx, `
			INSERT INTO grid_rows (pos, cells)
			VALUES ((SELECT COALESCE(MAX(pos), -1) + 1 FROM grid_rows), ?);
		`, string(raw))
		if err != nil {
			return fmt.Errorf("append grid row: %w", err)
		}
		return nil
	})
}

func (g *SQLiteGrid) UpdateCell(ctx context.Context, row, col int, value string) error {
	if row < 0 || col < 0 {
		return ErrRowOutOfRange
	}
	return retryOnBusy(ctx, 5, func() error {
		tx, err := g.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin update tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var pos int64
		var raw string
		err = tx.QueryRowContext(ctx, `
			SELECT pos, cells FROM grid_rows ORDER BY pos ASC LIMIT 1 OFFSET ?;
		`, row).Scan(&pos, &raw)
		if err == sql.ErrNoRows {
			return ErrRowOutOfRange
		}
		if err != nil {
			return fmt.Errorf("read grid row: %w", err)
		}

		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return fmt.Errorf("decode grid row: %w", err)
		}
		for len(cells) <= col {
			cells = append(cells, "")
		}
		cells[col] = value

		enc, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("encode grid row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE grid_rows SET cells = ? WHERE pos = ?;`, string(enc), pos); err != nil {
			return fmt.Errorf("write grid row: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit update tx: %w", err)
		}
		return nil
	})
}

func (g *SQLiteGrid) Clear(ctx context.Context) error {
	return retryOnBusy(ctx, 5, func() error {
		if _, err := g.db.ExecContext(ctx, `DELETE FROM grid_rows;`); err != nil {
			return fmt.Errorf("clear grid: %w", err)
		}
		return nil
	})
}
