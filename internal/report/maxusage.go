package report

import (
	"fmt"
	"io"
	"strconv"

	"stagecost/pkg/accounting"
)

const maxUsageFormat = "%7s %32s %20s %10s %10s %10s %12s\n"

// WriteMaxUsage writes one line per stage with its largest-memory task.
// Stages without accounting rows are marked FAILED.
func WriteMaxUsage(w io.Writer, usages []accounting.StageUsage) error {
	if _, err := fmt.Fprintln(w, "# Maximum memory usage for each stage in the processing"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, maxUsageFormat,
		"JobSeq", "stageName", "JobID_arrayNo", "ReqMem", "MaxRSS", "AveRSS", "Elapsed"); err != nil {
		return err
	}
	for _, u := range usages {
		var err error
		if u.Failed() {
			_, err = fmt.Fprintf(w, maxUsageFormat, strconv.Itoa(u.Seq), u.Stage, u.JobID, "-", "-", "-", "FAILED")
		} else {
			m := u.Max
			_, err = fmt.Fprintf(w, maxUsageFormat, strconv.Itoa(u.Seq), u.Stage, m.TaskID, m.ReqMem, m.MaxRSS, m.AveRSS, m.ElapsedRaw)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
