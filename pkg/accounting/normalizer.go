package accounting

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stagecost/pkg/sizeunit"
)

// Columns a dump must carry.
const (
	colJobID     = "JobID"
	colNodeList  = "NodeList"
	colReqMem    = "ReqMem"
	colMaxRSS    = "MaxRSS"
	colMaxVMSize = "MaxVMSize"
	colAveRSS    = "AveRSS"
	colAveVMSize = "AveVMSize"
	colElapsed   = "Elapsed"
	colState     = "State"
)

var requiredColumns = []string{
	colJobID, colNodeList, colReqMem, colMaxRSS, colMaxVMSize,
	colAveRSS, colAveVMSize, colElapsed, colState,
}

// rawRow is one data line keyed by column name.
type rawRow map[string]string

// pending is the element currently being scanned.
type pending struct {
	id     string
	reqMem string
	step   rawRow
}

// Normalize reduces one sacct dump to one AccountingRow per array element,
// in input order. Elements whose selected step has an unreadable MaxRSS, or
// that have no step matching mode, produce no row. A dump without data rows
// yields an empty slice; a dump missing a required column is an error.
func Normalize(text string, mode StepMode) ([]AccountingRow, Stats, error) {
	var stats Stats
	rows, err := splitTable(text)
	if err != nil {
		return []AccountingRow{}, stats, err
	}

	out := make([]AccountingRow, 0)
	var cur *pending
	var sawNumeric, sawBatch bool

	flush := func() {
		if cur == nil {
			return
		}
		if cur.step == nil {
			stats.DroppedNoStep++
			return
		}
		row, ok := buildRow(cur)
		if !ok {
			stats.DroppedBadSize++
			return
		}
		out = append(out, row)
	}

	for _, r := range rows {
		id := r[colJobID]
		if id == "" {
			continue
		}
		dot := strings.LastIndexByte(id, '.')
		if dot < 0 {
			flush()
			stats.Elements++
			cur = &pending{id: id, reqMem: r[colReqMem]}
			continue
		}

		suffix := id[dot+1:]
		switch {
		case isNumericStep(suffix):
			sawNumeric = true
		case suffix == "batch":
			sawBatch = true
		}
		// a step is only a candidate for the element it belongs to
		if cur == nil || id[:dot] != cur.id {
			continue
		}
		if mode.matches(suffix) {
			cur.step = r
		}
	}
	flush()

	stats.Rows = len(out)
	stats.MixedSteps = sawNumeric && sawBatch
	return out, stats, nil
}

func buildRow(p *pending) (AccountingRow, bool) {
	s := p.step
	maxRSS, maxRSSBytes, ok := sizeunit.Convert(s[colMaxRSS])
	if !ok {
		return AccountingRow{}, false
	}
	maxVM, _, _ := sizeunit.Convert(s[colMaxVMSize])
	aveRSS, _, _ := sizeunit.Convert(s[colAveRSS])
	aveVM, _, _ := sizeunit.Convert(s[colAveVMSize])

	elapsedRaw := s[colElapsed]
	elapsed, err := ParseElapsed(elapsedRaw)
	if err != nil {
		elapsed = 0
	}

	return AccountingRow{
		TaskID:      s[colJobID],
		NodeList:    s[colNodeList],
		ReqMem:      p.reqMem,
		MaxRSS:      maxRSS,
		MaxRSSBytes: maxRSSBytes,
		MaxVMSize:   maxVM,
		AveRSS:      aveRSS,
		AveVMSize:   aveVM,
		Elapsed:     elapsed,
		ElapsedRaw:  elapsedRaw,
		State:       s[colState],
	}, true
}

// splitTable returns the data rows of a sacct table. Column spans come from
// the dashed separator line under the header when there is one; otherwise
// they are inferred from the right-aligned header names.
func splitTable(text string) ([]rawRow, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	headerIdx := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil
	}
	header := lines[headerIdx]
	body := lines[headerIdx+1:]

	if len(body) > 0 && isSeparator(body[0]) {
		return cutRows(header, dashSpans(body[0]), body[1:])
	}

	// sacct right-aligns every column under its header name
	spans := headerSpans(header)
	return cutRows(header, spans, body)
}

func cutRows(header string, spans []span, body []string) ([]rawRow, error) {
	names := make([]string, len(spans))
	for i, sp := range spans {
		names[i] = cut(header, sp)
	}
	if err := checkColumns(names); err != nil {
		return nil, err
	}
	rows := make([]rawRow, 0, len(body))
	for _, l := range body {
		if strings.TrimSpace(l) == "" {
			continue
		}
		r := make(rawRow, len(names))
		for i, sp := range spans {
			r[names[i]] = cut(l, sp)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

type span struct{ start, end int }

// headerSpans gives each column the text between the end of the previous
// header name and the end of its own.
func headerSpans(header string) []span {
	var spans []span
	prev := 0
	inName := false
	for i := 0; i <= len(header); i++ {
		blank := i == len(header) || header[i] == ' ' || header[i] == '\t'
		switch {
		case !blank && !inName:
			inName = true
		case blank && inName:
			spans = append(spans, span{prev, i})
			prev = i
			inName = false
		}
	}
	// the last column takes the rest of the line
	if n := len(spans); n > 0 {
		spans[n-1].end = int(^uint(0) >> 1)
	}
	return spans
}

func isSeparator(line string) bool {
	t := strings.TrimSpace(line)
	return t != "" && strings.Trim(t, "- ") == ""
}

func dashSpans(line string) []span {
	var spans []span
	start := -1
	for i := 0; i <= len(line); i++ {
		dash := i < len(line) && line[i] == '-'
		switch {
		case dash && start < 0:
			start = i
		case !dash && start >= 0:
			spans = append(spans, span{start, i})
			start = -1
		}
	}
	return spans
}

func cut(line string, sp span) string {
	if sp.start >= len(line) {
		return ""
	}
	end := sp.end
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[sp.start:end])
}

func checkColumns(names []string) error {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("accounting dump is missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

var errElapsed = errors.New("invalid slurm elapsed time")

// ParseElapsed parses a Slurm duration of the form [D-][HH:]MM:SS[.frac].
// The fractional part is dropped.
func ParseElapsed(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errElapsed
	}

	var days int64
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil || d < 0 {
			return 0, errElapsed
		}
		days = d
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if _, err := strconv.ParseUint(s[i+1:], 10, 64); err != nil {
			return 0, errElapsed
		}
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errElapsed
	}
	var secs int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, errElapsed
		}
		secs = secs*60 + n
	}
	return time.Duration(days*86400+secs) * time.Second, nil
}
