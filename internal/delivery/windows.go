package delivery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window is a daily service interval in local wall-clock time.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Windows holds the service intervals for weekdays and weekends.
type Windows struct {
	Weekdays []Window `json:"weekdays"`
	Weekends []Window `json:"weekends"`
}

// DefaultWindows is the single source of truth for service hours.
var DefaultWindows = Windows{
	Weekdays: []Window{
		{Start: "07:30", End: "12:00"},
		{Start: "14:00", End: "17:00"},
	},
	Weekends: []Window{
		{Start: "08:00", End: "11:00"},
	},
}

func (w Windows) clone() Windows {
	return Windows{
		Weekdays: append([]Window(nil), w.Weekdays...),
		Weekends: append([]Window(nil), w.Weekends...),
	}
}

// span is a window in minutes after midnight, end exclusive.
type span struct {
	start int
	end   int
}

func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func parseSpans(windows []Window) ([]span, error) {
	spans := make([]span, 0, len(windows))
	for _, w := range windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("window %s-%s must end after it starts", w.Start, w.End)
		}
		spans = append(spans, span{start: start, end: end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return nil, fmt.Errorf("windows %s and %s overlap", formatClock(spans[i-1].start), formatClock(spans[i].start))
		}
	}
	return spans, nil
}

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}
