package agenda

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseClock converts "HH:MM" (also "H:MM", "HH:MM:SS" and RFC 3339
// timestamps) to minutes since midnight.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.ContainsRune(s, 'T') {
		if t, ok := parseTimestamp(s); ok {
			return ClockOf(t), true
		}
		return 0, false
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock returns s as zero-padded 24-hour "HH:MM".
func NormalizeClock(s string) (string, bool) {
	m, ok := ParseClock(s)
	if !ok {
		return "", false
	}
	return FormatClock(m), true
}

// ClockOf returns the wall-clock minutes of t in its own location.
func ClockOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SlotKey is the grouping key of an appointment: its start in minutes
// since midnight.
func SlotKey(a Appointment) (int, bool) {
	return ParseClock(a.StartTime)
}

// ValidDate reports whether s is an ISO "YYYY-MM-DD" calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// NormalizeDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp and returns
// the ISO date.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if ValidDate(s) {
		return s, true
	}
	if t, ok := parseTimestamp(s); ok {
		return t.Format(dateLayout), true
	}
	return "", false
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
