package agenda

import (
	"encoding/json"
	"testing"
)

func TestAggregateWeek_SingleHourOnTwoDates(t *testing.T) {
	days := []WeekDay{
		{Date: "2024-03-05", Appointments: []Appointment{appt("2", "Bob", "09:00", StatusScheduled)}},
		{Date: "2024-03-04", Appointments: []Appointment{appt("1", "Ana", "09:00", StatusConfirmed)}},
	}

	w := AggregateWeek(days)
	if w.Empty {
		t.Fatal("expected a non-empty week")
	}
	if len(w.Hours) != 1 || w.Hours[0] != "09:00" {
		t.Fatalf("expected exactly one row 09:00, got %v", w.Hours)
	}
	if len(w.Days) != 2 || w.Days[0].Date != "2024-03-04" || w.Days[1].Date != "2024-03-05" {
		t.Fatalf("expected dates in order, got %+v", w.Days)
	}
	if c := w.Cell(0, 0); len(c) != 1 || c[0].PatientName != "Ana" {
		t.Errorf("expected Ana on Monday, got %+v", c)
	}
	if c := w.Cell(0, 1); len(c) != 1 || c[0].PatientName != "Bob" {
		t.Errorf("expected Bob on Tuesday, got %+v", c)
	}
}

func TestAggregateWeek_NoHours(t *testing.T) {
	days := []WeekDay{
		{Date: "2024-03-04"},
		{Date: "2024-03-05", Appointments: []Appointment{appt("1", "Ana", "", StatusScheduled)}},
	}

	w := AggregateWeek(days)
	if !w.Empty {
		t.Fatal("expected an empty week")
	}
	if len(w.Hours) != 0 || len(w.Cells) != 0 {
		t.Errorf("expected no rows, got %v", w.Hours)
	}
	if len(w.Days) != 2 {
		t.Errorf("expected the columns to be kept, got %d", len(w.Days))
	}

	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(b, &raw)
	if _, ok := raw["horas"].([]interface{}); !ok {
		t.Errorf("expected horas to encode as an array, got %s", b)
	}
}

func TestAggregateWeek_NoEmptyRows(t *testing.T) {
	days := []WeekDay{
		{Date: "2024-03-04", Appointments: []Appointment{
			appt("1", "Ana", "08:00", StatusScheduled),
			appt("2", "Bob", "10:30", StatusScheduled),
		}},
		{Date: "2024-03-06", Appointments: []Appointment{
			block("b1", "13:00"),
			appt("3", "Caio", "8:00", StatusScheduled),
		}},
	}

	w := AggregateWeek(days)
	want := []string{"08:00", "10:30", "13:00"}
	if len(w.Hours) != len(want) {
		t.Fatalf("expected rows %v, got %v", want, w.Hours)
	}
	for r, hour := range w.Hours {
		if hour != want[r] {
			t.Errorf("row %d: expected %s, got %s", r, want[r], hour)
		}
		total := 0
		for c := range w.Days {
			cell := w.Cell(r, c)
			if cell == nil {
				t.Errorf("cell (%d,%d) is nil", r, c)
			}
			total += len(cell)
		}
		if total == 0 {
			t.Errorf("row %s has no bookings", hour)
		}
	}
	if c := w.Cell(0, 1); len(c) != 1 || c[0].ID != "3" {
		t.Errorf("expected Caio normalized into 08:00, got %+v", c)
	}
}

func TestAggregateWeek_MergesRepeatedDates(t *testing.T) {
	days := []WeekDay{
		{Date: "2024-03-04", Appointments: []Appointment{appt("1", "Ana", "08:00", StatusScheduled)}},
		{Date: "2024-03-04", Appointments: []Appointment{appt("2", "Bob", "08:00", StatusScheduled)}},
	}

	w := AggregateWeek(days)
	if len(w.Days) != 1 {
		t.Fatalf("expected one column, got %d", len(w.Days))
	}
	if c := w.Cell(0, 0); len(c) != 2 {
		t.Errorf("expected both bookings in one cell, got %d", len(c))
	}
}

func TestAggregateWeek_ColumnsAndSummaries(t *testing.T) {
	a := appt("1", "Ana", "08:00", StatusConfirmed)
	a.Type = "Consulta"
	nameless := appt("2", "", "09:00", StatusScheduled)
	days := []WeekDay{
		{Date: "2024-03-03", Appointments: []Appointment{a, nameless, block("b", "10:00")}},
	}

	w := AggregateWeek(days)
	col := w.Days[0]
	if col.Weekday != "Dom" || col.Label != "03/03" {
		t.Errorf("expected Dom 03/03, got %s %s", col.Weekday, col.Label)
	}

	tests := []struct {
		row  int
		want string
	}{
		{0, "Ana • Consulta • Confirmado"},
		{1, "(sem nome) • Agendado"},
		{2, "Bloqueado"},
	}
	for _, tt := range tests {
		c := w.Cell(tt.row, 0)
		if len(c) != 1 {
			t.Fatalf("row %d: expected one item, got %d", tt.row, len(c))
		}
		if c[0].Summary != tt.want {
			t.Errorf("row %d: expected %q, got %q", tt.row, tt.want, c[0].Summary)
		}
	}
}

func TestWeekSchedule_CellOutOfRange(t *testing.T) {
	var w WeekSchedule
	if w.Cell(0, 0) != nil || w.Cell(-1, 3) != nil {
		t.Error("expected nil for out-of-range cells")
	}
}
