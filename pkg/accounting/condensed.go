package accounting

import (
	"fmt"
	"io"
)

const condensedFormat = "%16s %16s %8s %8s %10s %8s %10s %12s %12s\n"

// WriteCondensed writes rows as the fixed-width per-job table saved next to
// the raw dump.
func WriteCondensed(w io.Writer, rows []AccountingRow) error {
	if _, err := fmt.Fprintf(w, condensedFormat,
		colJobID, colNodeList, colReqMem, colMaxRSS, colMaxVMSize,
		colAveRSS, colAveVMSize, colElapsed, colState); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, condensedFormat,
			r.TaskID, r.NodeList, r.ReqMem, r.MaxRSS, r.MaxVMSize,
			r.AveRSS, r.AveVMSize, r.ElapsedRaw, r.State); err != nil {
			return err
		}
	}
	return nil
}

// MaxUsage returns the index of the row with the largest MaxRSS, the first
// one on ties, or -1 for no rows.
func MaxUsage(rows []AccountingRow) int {
	best := -1
	for i, r := range rows {
		if best < 0 || r.MaxRSSBytes > rows[best].MaxRSSBytes {
			best = i
		}
	}
	return best
}
