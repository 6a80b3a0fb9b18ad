package report

import (
	"encoding/csv"
	"io"

	"github.com/basket/decoy/internal/tracking"
)

// anonymizedToken replaces personally identifying cells in exports.
const anonymizedToken = "ANONIMIZZATO"

// Columns masked before any data leaves the grid.
var sensitiveColumns = map[string]bool{
	"Session_ID": true,
	"User_Agent": true,
}

// WriteCSV writes the record set as an anonymized CSV: the canonical
// header followed by one row per record, with session ids and user
// agents masked.
func WriteCSV(w io.Writer, records []tracking.SessionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tracking.Header); err != nil {
		return err
	}
	for _, rec := range records {
		row := rec.Row(rec.CreatedAt)
		for i, col := range tracking.Header {
			if sensitiveColumns[col] {
				row[i] = anonymizedToken
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
