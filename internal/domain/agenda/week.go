package agenda

import (
	"sort"
	"strings"
	"time"
)

// WeekDay is one column of input: a date and everything booked on it.
type WeekDay struct {
	Date         string        `json:"data"`
	Appointments []Appointment `json:"agendamentos"`
}

// WeekColumn describes a date column of the week matrix.
type WeekColumn struct {
	Date    string `json:"data"`
	Weekday string `json:"dia_semana"`
	Label   string `json:"label"`
}

// WeekItem is an appointment placed in the matrix with its one-line summary.
type WeekItem struct {
	Appointment
	Summary string `json:"resumo"`
}

// WeekSchedule is a sparse hour × date matrix. Rows only exist for hours
// booked on at least one day. Empty is set when nothing in the week has a
// usable time, which the view renders differently from a grid with rows.
type WeekSchedule struct {
	Empty bool           `json:"vazia"`
	Hours []string       `json:"horas"`
	Days  []WeekColumn   `json:"dias"`
	Cells [][][]WeekItem `json:"celulas"`
}

// Cell returns the items at (row, col), or nil when out of range.
func (w WeekSchedule) Cell(row, col int) []WeekItem {
	if row < 0 || row >= len(w.Cells) || col < 0 || col >= len(w.Cells[row]) {
		return nil
	}
	return w.Cells[row][col]
}

var weekdayLabels = [...]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

// AggregateWeek builds the week matrix. Dates sort lexicographically, which
// is chronological for ISO dates; repeated dates are merged into one column.
func AggregateWeek(days []WeekDay) WeekSchedule {
	type placed struct {
		clock string
		item  WeekItem
	}

	byDate := make(map[string][]placed)
	var dates []string
	hours := make(map[string]int)

	for _, d := range days {
		if _, seen := byDate[d.Date]; !seen {
			byDate[d.Date] = nil
			dates = append(dates, d.Date)
		}
		for _, a := range d.Appointments {
			minutes, ok := SlotKey(a)
			if !ok {
				continue
			}
			clock := FormatClock(minutes)
			hours[clock] = minutes
			byDate[d.Date] = append(byDate[d.Date], placed{
				clock: clock,
				item:  WeekItem{Appointment: a, Summary: weekSummary(a)},
			})
		}
	}
	sort.Strings(dates)

	columns := make([]WeekColumn, len(dates))
	for i, d := range dates {
		columns[i] = weekColumn(d)
	}

	if len(hours) == 0 {
		return WeekSchedule{Empty: true, Hours: []string{}, Days: columns, Cells: [][][]WeekItem{}}
	}

	rows := make([]string, 0, len(hours))
	for h := range hours {
		rows = append(rows, h)
	}
	sort.Slice(rows, func(i, j int) bool { return hours[rows[i]] < hours[rows[j]] })

	cells := make([][][]WeekItem, len(rows))
	for r, hour := range rows {
		cells[r] = make([][]WeekItem, len(dates))
		for c, date := range dates {
			cell := []WeekItem{}
			for _, p := range byDate[date] {
				if p.clock == hour {
					cell = append(cell, p.item)
				}
			}
			cells[r][c] = cell
		}
	}

	return WeekSchedule{Hours: rows, Days: columns, Cells: cells}
}

func weekColumn(date string) WeekColumn {
	col := WeekColumn{Date: date, Label: date}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return col
	}
	col.Weekday = weekdayLabels[t.Weekday()]
	col.Label = t.Format("02/01")
	return col
}

func weekSummary(a Appointment) string {
	if a.IsBlock {
		return "Bloqueado"
	}
	name := strings.TrimSpace(a.PatientName)
	if name == "" {
		name = "(sem nome)"
	}
	parts := []string{name}
	if a.Type != "" {
		parts = append(parts, a.Type)
	}
	if a.Status != "" {
		parts = append(parts, string(a.Status))
	}
	return strings.Join(parts, " • ")
}
