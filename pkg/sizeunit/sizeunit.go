// Package sizeunit converts the human-readable byte sizes printed by Slurm
// accounting ("512K", "2.30G", "0") to and from exact byte counts.
package sizeunit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Units in 1024 steps. The empty unit and "B" both mean bytes.
var unitNames = []string{"B", "K", "M", "G", "T", "P", "E", "Z", "Y"}

// FormatError reports a size string that cannot be interpreted.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid size %q: %s", e.Input, e.Reason)
}

// Size is a parsed size: the canonical display form and the byte count.
type Size struct {
	Display string
	Bytes   int64
}

// Parse converts a string such as "512K" into its canonical display form and
// byte count. A bare "0" maps to "0K".
func Parse(s string) (Size, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return Size{}, &FormatError{Input: s, Reason: "empty"}
	}

	exp := 0
	number := in
	last := in[len(in)-1]
	if last < '0' || last > '9' {
		exp = unitIndex(last)
		if exp < 0 {
			return Size{}, &FormatError{Input: s, Reason: fmt.Sprintf("unknown unit %q", string(last))}
		}
		number = in[:len(in)-1]
	}

	mantissa, err := strconv.ParseFloat(number, 64)
	if err != nil || math.IsNaN(mantissa) || math.IsInf(mantissa, 0) {
		return Size{}, &FormatError{Input: s, Reason: "bad magnitude"}
	}
	if mantissa < 0 {
		return Size{}, &FormatError{Input: s, Reason: "negative"}
	}

	bytes := math.Round(mantissa * math.Pow(1024, float64(exp)))
	if bytes >= math.MaxInt64 {
		return Size{}, &FormatError{Input: s, Reason: "too large"}
	}
	n := int64(bytes)
	return Size{Display: Format(n), Bytes: n}, nil
}

// Format renders a byte count with the smallest unit that keeps the mantissa
// below 1024, always with two decimals. Zero renders as "0K".
func Format(bytes int64) string {
	if bytes <= 0 {
		return "0K"
	}
	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if exp >= len(unitNames) {
		exp = len(unitNames) - 1
	}
	mantissa := float64(bytes) / math.Pow(1024, float64(exp))
	// log rounding can land one step low or high at exact powers of 1024
	if mantissa >= 1024 && exp < len(unitNames)-1 {
		exp++
		mantissa /= 1024
	} else if mantissa < 1 && exp > 0 {
		exp--
		mantissa *= 1024
	}
	// 1023.999K would print as 1024.00K
	if math.Round(mantissa*100) >= 1024*100 && exp < len(unitNames)-1 {
		exp++
		mantissa /= 1024
	}
	return fmt.Sprintf("%.2f%s", mantissa, unitNames[exp])
}

// Convert is Parse with the absent-on-error contract: a malformed input
// yields ok=false and zero values instead of an error.
func Convert(s string) (display string, bytes int64, ok bool) {
	size, err := Parse(s)
	if err != nil {
		return "", 0, false
	}
	return size.Display, size.Bytes, true
}

func unitIndex(c byte) int {
	for i, name := range unitNames {
		if name[0] == c {
			return i
		}
	}
	return -1
}
