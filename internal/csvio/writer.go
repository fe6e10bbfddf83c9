package csvio

import (
	"encoding/csv"
	"io"
	"strconv"

	"paycore.org/internal/engine"
)

// WriteReport renders the end-of-stream account report: one row per
// account, balances at exactly four decimal places.
func WriteReport(w io.Writer, snapshots []engine.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}
	for _, s := range snapshots {
		row := []string{
			strconv.FormatUint(uint64(s.Client), 10),
			s.Available.String(),
			s.Held.String(),
			s.Total.String(),
			strconv.FormatBool(s.Locked),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
