package agenda

// BuildGrid returns the evenly spaced "HH:MM" labels from cfg.StartTime to
// cfg.EndTime, both inclusive. When the end is not after the start the grid
// spans one hour. The grid is a visual scaffold only; day slots come from
// the bookings themselves.
func BuildGrid(cfg AgendaConfig) []string {
	start, ok := ParseClock(cfg.StartTime)
	if !ok {
		start, _ = ParseClock(DefaultStartTime)
	}
	end, ok := ParseClock(cfg.EndTime)
	if !ok {
		end, _ = ParseClock(DefaultEndTime)
	}
	step := cfg.SlotMinutes
	if step <= 0 {
		step = DefaultSlotMinutes
	}
	if end <= start {
		end = start + 60
	}

	labels := make([]string, 0, (end-start)/step+1)
	for t := start; t <= end; t += step {
		labels = append(labels, FormatClock(t))
	}
	return labels
}
