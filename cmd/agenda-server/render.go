package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prontio/agenda/internal/domain/agenda"
	"github.com/prontio/agenda/internal/platform/db"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printGrid(w io.Writer, cfg agenda.AgendaConfig, slots []string) error {
	fmt.Fprintf(w, "Grade %s-%s a cada %d min (%d horários)\n", cfg.StartTime, cfg.EndTime, cfg.SlotMinutes, len(slots))
	tw := newTable(w)
	for i, s := range slots {
		sep := "\t"
		if (i+1)%8 == 0 || i == len(slots)-1 {
			sep = "\n"
		}
		fmt.Fprint(tw, s+sep)
	}
	return tw.Flush()
}

func appointmentLine(a agenda.Appointment) string {
	if a.IsBlock {
		return "BLOQUEIO"
	}
	name := a.PatientName
	if name == "" {
		name = "(sem paciente)"
	}
	return name
}

func printDay(w io.Writer, v agenda.DayView) error {
	s := v.Summary
	fmt.Fprintf(w, "Agenda de %s: %d agendamento(s), %d confirmado(s), %d falta(s), %d cancelado(s), %d concluído(s), %d em atendimento\n",
		v.Date, s.Total, s.Confirmed, s.NoShows, s.Cancelled, s.Completed, s.InProgress)
	if v.Empty {
		fmt.Fprintln(w, "Nenhum agendamento para os filtros atuais.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "HORA\tID\tPACIENTE\tDURAÇÃO\tSTATUS\tTIPO")
	for _, slot := range v.Slots {
		for i, a := range slot.Appointments {
			hour := ""
			if i == 0 {
				hour = slot.Time
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d min\t%s\t%s\n",
				hour, a.ID, appointmentLine(a), a.DurationMinutes, a.Status, a.Type)
		}
	}
	return tw.Flush()
}

func printWeek(w io.Writer, week agenda.WeekSchedule) error {
	if week.Empty {
		fmt.Fprintln(w, "Nenhum agendamento na semana.")
		return nil
	}

	tw := newTable(w)
	header := []string{"HORA"}
	for _, d := range week.Days {
		header = append(header, d.Label)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for row, hour := range week.Hours {
		cols := []string{hour}
		for col := range week.Days {
			var parts []string
			for _, it := range week.Cell(row, col) {
				parts = append(parts, it.Summary)
			}
			cols = append(cols, strings.Join(parts, "; "))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

func printMigrations(w io.Writer, statuses []db.MigrationStatus) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	return tw.Flush()
}
