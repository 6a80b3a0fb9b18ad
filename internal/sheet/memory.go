package sheet

import (
	"context"
	"sync"
)

// MemoryGrid is an in-process Grid. Used by tests and by the "memory"
// backend for throwaway demo runs; data does not survive a restart.
type MemoryGrid struct {
	mu   sync.Mutex
	rows [][]string
}

func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{}
}

func (g *MemoryGrid) Rows(_ context.Context) ([][]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]string, len(g.rows))
	for i, r := range g.rows {
		cp := make([]string, len(r))
		copy(cp, r)
		out[i] = cp
	}
	return out, nil
}

func (g *MemoryGrid) AppendRow(_ context.Context, cells []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]string, len(cells))
	copy(cp, cells)
	g.rows = append(g.rows, cp)
	return nil
}

func (g *MemoryGrid) UpdateCell(_ context.Context, row, col int, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if row < 0 || col < 0 || row >= len(g.rows) {
		return ErrRowOutOfRange
	}
	for len(g.rows[row]) <= col {
		g.rows[row] = append(g.rows[row], "")
	}
	g.rows[row][col] = value
	return nil
}

func (g *MemoryGrid) Clear(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = nil
	return nil
}
