package timing

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Log is the content of one timing source.
type Log struct {
	Submitted time.Time
	Records   []TaskRecord
	// Skipped holds one entry per malformed line, in file order
	Skipped []*ParseError
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, submitOffset int) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open timing file: %w", err)
	}
	defer f.Close()
	return Read(f, submitOffset)
}

// Read parses a timing source. The first line carries the submission time
// as epoch seconds starting at submitOffset; it is never a record. Blank
// lines and everything after a "#" are ignored. Lines that do not parse are
// collected in Skipped and do not stop the scan.
func Read(r io.Reader, submitOffset int) (*Log, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read timing source: %w", err)
		}
		return nil, fmt.Errorf("timing source is empty")
	}
	submitted, err := parseSubmitLine(scanner.Text(), submitOffset)
	if err != nil {
		return nil, err
	}

	log := &Log{Submitted: submitted}
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := ParseRecord(text)
		if err != nil {
			log.Skipped = append(log.Skipped, &ParseError{Line: lineNo, Text: scanner.Text(), Reason: err.Error()})
			continue
		}
		log.Records = append(log.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timing source: %w", err)
	}
	return log, nil
}

func parseSubmitLine(line string, offset int) (time.Time, error) {
	line = strings.TrimRight(line, "\r\n")
	if offset > len(line) {
		return time.Time{}, fmt.Errorf("first timing line is shorter than submit offset %d: %q", offset, line)
	}
	raw := strings.TrimSpace(line[offset:])
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("invalid submission time %q on first timing line", raw)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
}
