package agenda

import (
	"sort"
	"strings"
)

// DayFilter narrows the day view. Both matches are case-insensitive
// substring matches; empty fields match everything.
type DayFilter struct {
	NameContains   string `query:"nome"`
	StatusContains string `query:"status"`
}

func (f DayFilter) normalized() DayFilter {
	return DayFilter{
		NameContains:   strings.ToLower(strings.TrimSpace(f.NameContains)),
		StatusContains: strings.ToLower(strings.TrimSpace(f.StatusContains)),
	}
}

// match expects a normalized filter. Blocks have no patient name, so they
// never pass a non-empty name filter.
func (f DayFilter) match(a Appointment) bool {
	if f.NameContains != "" && !strings.Contains(strings.ToLower(a.PatientName), f.NameContains) {
		return false
	}
	if f.StatusContains != "" && !strings.Contains(strings.ToLower(string(a.Status)), f.StatusContains) {
		return false
	}
	return true
}

// DaySlot is every appointment and block starting at the same time.
type DaySlot struct {
	Time         string        `json:"hora"`
	Appointments []Appointment `json:"agendamentos"`
}

// DaySchedule is ordered by start time and never holds an empty slot.
type DaySchedule []DaySlot

// AggregateDay groups appts by start time, applies the filter to each
// appointment, drops slots the filter empties and orders the rest. appts is
// not modified, so the same cache can be filtered again and again.
func AggregateDay(appts []Appointment, filter DayFilter) DaySchedule {
	f := filter.normalized()

	buckets := make(map[int][]Appointment)
	for _, a := range appts {
		key, ok := SlotKey(a)
		if !ok {
			continue
		}
		if !f.match(a) {
			continue
		}
		buckets[key] = append(buckets[key], a)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	schedule := make(DaySchedule, 0, len(keys))
	for _, k := range keys {
		items := buckets[k]
		label := strings.TrimSpace(items[0].StartTime)
		if label == "" {
			label = FormatClock(k)
		}
		schedule = append(schedule, DaySlot{Time: label, Appointments: items})
	}
	return schedule
}
