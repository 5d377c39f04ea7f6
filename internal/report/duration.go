// Package report renders analysis results as the text tables written next
// to a run and as JSON.
package report

import (
	"fmt"
	"time"
)

// FormatDuration renders d truncated to whole seconds as "H:MM:SS", with a
// "N day(s), " prefix past 24 hours and a leading "-" when negative.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	hms := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)

	switch days {
	case 0:
		return sign + hms
	case 1:
		return fmt.Sprintf("%s1 day, %s", sign, hms)
	default:
		return fmt.Sprintf("%s%d days, %s", sign, days, hms)
	}
}

const timestampLayout = "2006-01-02 15:04:05"

// FormatTime renders t in loc without a zone suffix.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}
