package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"stagecost/pkg/billing"
	"stagecost/pkg/timing"
)

const banner = "#####################################################"

// Summary is everything the timing report prints.
type Summary struct {
	Timeline *timing.Timeline
	Estimate *billing.Estimate // nil when the cost could not be computed
	CostErr  error
	Location *time.Location
	ZoneName string
	Currency string
}

// WriteSummary writes the header block followed by the per-stage table.
func WriteSummary(w io.Writer, s Summary) error {
	var b strings.Builder
	writeHeader(&b, s)
	b.WriteString("\n")
	writeTable(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteHeader writes only the header block, as printed to the terminal.
func WriteHeader(w io.Writer, s Summary) error {
	var b strings.Builder
	writeHeader(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeader(b *strings.Builder, s Summary) {
	tl := s.Timeline
	zone := s.ZoneName
	if zone == "" && s.Location != nil {
		zone = s.Location.String()
	}

	cost := "unavailable"
	if s.Estimate != nil {
		cost = s.Currency + s.Estimate.Total.StringFixed(2)
	} else if s.CostErr != nil {
		cost = "unavailable (" + s.CostErr.Error() + ")"
	}

	fmt.Fprintln(b, banner)
	fmt.Fprintln(b, "# Summary timings")
	fmt.Fprintf(b, "# Job submitted at:    %s (UTC)\n", FormatTime(tl.Submitted, time.UTC))
	fmt.Fprintf(b, "# Job submitted at:    %s (%s)\n", FormatTime(tl.Submitted, s.Location), zone)
	fmt.Fprintf(b, "# Total time:          %s\n", FormatDuration(tl.TotalTime()))
	fmt.Fprintf(b, "# Total run time:      %s\n", FormatDuration(tl.TotalRunTime()))
	fmt.Fprintf(b, "# Total queue time:    %s\n", FormatDuration(tl.TotalQueueTime()))
	fmt.Fprintf(b, "# Estimated cost:      %s\n", cost)
	fmt.Fprintln(b, banner)
}

func writeTable(b *strings.Builder, s Summary) {
	currency := strings.TrimSpace(s.Currency)
	if currency == "" {
		currency = "$"
	}
	header := []string{
		"Step", "Num jobs", "Start", "Finish", "Total elapsed", "Queue time",
		"Array mean", "Array std", "CPUs", "GPUs", "Cost (" + currency + ")",
	}

	rows := make([][]string, 0, len(s.Timeline.Stages))
	for i, st := range s.Timeline.Stages {
		cpus, gpus, cost := "-", "-", "-"
		if s.Estimate != nil {
			e := s.Estimate.Entries[i]
			cpus = strconv.Itoa(e.CPUs)
			gpus = strconv.Itoa(e.GPUs)
			cost = e.Cost.StringFixed(2)
		}
		rows = append(rows, []string{
			st.Stage,
			strconv.Itoa(st.TaskCount),
			FormatTime(st.Start, time.UTC),
			FormatTime(st.Finish, time.UTC),
			FormatDuration(st.TotalElapsed),
			FormatDuration(st.QueueTime),
			FormatDuration(st.ArrayMean),
			FormatDuration(st.ArrayStd),
			cpus,
			gpus,
			cost,
		})
	}
	writeAligned(b, header, rows)
}

// writeAligned right-aligns every column to its widest cell, except the
// first which is left-aligned.
func writeAligned(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == 0 {
				parts[i] = fmt.Sprintf("%-*s", widths[i], c)
			} else {
				parts[i] = fmt.Sprintf("%*s", widths[i], c)
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteString("\n")
	}
	line(header)
	for _, r := range rows {
		line(r)
	}
}
