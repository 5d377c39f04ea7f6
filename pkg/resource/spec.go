// Package resource reads the per-stage resource table (nodes, tasks, CPUs,
// GPUs, memory and walltime requested for each stage) and checks it against
// the cluster's node limits.
package resource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names of the resource table, matched case-insensitively.
const (
	colStep        = "step"
	colNodes       = "nodes"
	colNtasks      = "ntasks"
	colCPUsPerTask = "ncpus_per_task"
	colGres        = "gres"
	colMemPerCPU   = "mem_per_cpu"
	colTime        = "time"
)

var requiredColumns = []string{colStep, colNodes, colNtasks, colCPUsPerTask, colGres, colMemPerCPU}

// Spec is one row of the resource table.
type Spec struct {
	Stage       string        `json:"stage"`
	Nodes       int           `json:"nodes"`
	NTasks      int           `json:"ntasks"`
	CPUsPerTask int           `json:"cpus_per_task"`
	GPUs        int           `json:"gpus"`
	MemPerCPU   string        `json:"mem_per_cpu"`
	Walltime    time.Duration `json:"walltime,omitempty"` // zero when the table has no Time column
	WalltimeRaw string        `json:"walltime_raw,omitempty"`
}

// LoadFile reads the resource table at path.
func LoadFile(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open resource table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a whitespace-separated table whose first non-blank line is the
// header; a leading "#" on the header is ignored. Later lines starting with
// "#" are comments. Rows keep file order.
func Load(r io.Reader) ([]Spec, error) {
	scanner := bufio.NewScanner(r)
	var index map[string]int
	var specs []Spec
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if index == nil {
			var err error
			if index, err = parseHeader(text); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		spec, err := parseRow(strings.Fields(text), index)
		if err != nil {
			return nil, fmt.Errorf("resource table line %d: %w", lineNo, err)
		}
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read resource table: %w", err)
	}
	if index == nil {
		return nil, fmt.Errorf("resource table is empty")
	}
	return specs, nil
}

func parseHeader(line string) (map[string]int, error) {
	fields := strings.Fields(strings.ReplaceAll(line, "#", " "))
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[strings.ToLower(f)] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("resource table header is missing columns %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(fields []string, index map[string]int) (Spec, error) {
	if len(fields) != len(index) {
		return Spec{}, fmt.Errorf("expected %d fields, got %d", len(index), len(fields))
	}
	field := func(name string) string { return fields[index[name]] }

	spec := Spec{
		Stage:     field(colStep),
		MemPerCPU: field(colMemPerCPU),
	}
	var err error
	if spec.Nodes, err = parseCount(colNodes, field(colNodes)); err != nil {
		return Spec{}, err
	}
	if spec.NTasks, err = parseCount(colNtasks, field(colNtasks)); err != nil {
		return Spec{}, err
	}
	if spec.CPUsPerTask, err = parseCount(colCPUsPerTask, field(colCPUsPerTask)); err != nil {
		return Spec{}, err
	}
	if spec.GPUs, err = ParseGres(field(colGres)); err != nil {
		return Spec{}, err
	}
	if _, ok := index[colTime]; ok {
		spec.WalltimeRaw = field(colTime)
		if spec.Walltime, err = ParseWalltime(spec.WalltimeRaw); err != nil {
			return Spec{}, err
		}
	}
	return spec, nil
}

func parseCount(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s %q is not a non-negative integer", name, s)
	}
	return n, nil
}

// ParseGres returns the GPU count of a Gres value: a bare count ("2"), a
// typed request ("gpu:2", "gpu:a100:2"), or "none"/"-" for no GPUs.
func ParseGres(s string) (int, error) {
	switch strings.ToLower(s) {
	case "", "none", "-", "0":
		return 0, nil
	}
	count := s
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		count = s[i+1:]
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("gres %q has no GPU count", s)
	}
	return n, nil
}

// ParseWalltime parses an sbatch --time value: "MM", "MM:SS", "HH:MM:SS",
// "D-HH", "D-HH:MM" or "D-HH:MM:SS".
func ParseWalltime(s string) (time.Duration, error) {
	bad := fmt.Errorf("walltime %q is not a Slurm time", s)
	if s == "" {
		return 0, bad
	}

	var days int
	rest := s
	hasDays := false
	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.Atoi(s[:i])
		if err != nil || d < 0 {
			return 0, bad
		}
		days, rest, hasDays = d, s[i+1:], true
	}

	parts := strings.Split(rest, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, bad
		}
		nums[i] = n
	}

	var h, m, sec int
	switch {
	case hasDays && len(nums) == 1:
		h = nums[0]
	case hasDays && len(nums) == 2:
		h, m = nums[0], nums[1]
	case len(nums) == 3:
		h, m, sec = nums[0], nums[1], nums[2]
	case !hasDays && len(nums) == 1:
		m = nums[0]
	case !hasDays && len(nums) == 2:
		m, sec = nums[0], nums[1]
	default:
		return 0, bad
	}

	total := ((days*24+h)*60+m)*60 + sec
	return time.Duration(total) * time.Second, nil
}

// CPUsPerNode is the CPU load a stage puts on each of its nodes.
func (s Spec) CPUsPerNode() float64 {
	if s.Nodes == 0 {
		return 0
	}
	return float64(s.NTasks*s.CPUsPerTask) / float64(s.Nodes)
}

// Check returns one message per stage that cannot fit the node limit.
func Check(specs []Spec, cpusPerNodeLimit int) []string {
	var problems []string
	for _, s := range specs {
		if s.Nodes == 0 {
			problems = append(problems, fmt.Sprintf("stage %s requests zero nodes", s.Stage))
			continue
		}
		if per := s.CPUsPerNode(); per > float64(cpusPerNodeLimit) {
			problems = append(problems, fmt.Sprintf("stage %s needs %.1f CPUs per node, limit is %d", s.Stage, per, cpusPerNodeLimit))
		}
	}
	return problems
}

// WalltimeReached reports whether a task that ran maxElapsed hit the stage's
// requested walltime. Stages without a walltime never do.
func (s Spec) WalltimeReached(maxElapsed time.Duration) bool {
	return s.Walltime > 0 && maxElapsed >= s.Walltime
}

// Names lists the stage names in order.
func Names(specs []Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Stage
	}
	return names
}
