package agenda

import (
	"fmt"
	"strings"
)

// Status is the closed set of appointment states the clinic uses.
type Status string

const (
	StatusScheduled  Status = "Agendado"
	StatusConfirmed  Status = "Confirmado"
	StatusInProgress Status = "Em atendimento"
	StatusNoShow     Status = "Faltou"
	StatusCancelled  Status = "Cancelado"
	StatusCompleted  Status = "Concluído"
)

// Statuses lists every status in the order the view offers them.
var Statuses = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusNoShow,
	StatusCancelled,
	StatusCompleted,
}

// ParseStatus matches s against the known statuses, ignoring case and
// surrounding spaces.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the appointment's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusNoShow || s == StatusCancelled || s == StatusCompleted
}

// AgendaConfig holds the clinic hours used to draw the grid.
type AgendaConfig struct {
	StartTime   string `json:"hora_inicio_padrao"`
	EndTime     string `json:"hora_fim_padrao"`
	SlotMinutes int    `json:"duracao_grade_minutos"`
}

const (
	DefaultStartTime   = "08:00"
	DefaultEndTime     = "18:00"
	DefaultSlotMinutes = 15
)

// DefaultConfig is used until, and whenever, the backend cannot provide one.
func DefaultConfig() AgendaConfig {
	return AgendaConfig{
		StartTime:   DefaultStartTime,
		EndTime:     DefaultEndTime,
		SlotMinutes: DefaultSlotMinutes,
	}
}

// merge overlays the non-empty fields of o on c.
func (c AgendaConfig) merge(o AgendaConfig) AgendaConfig {
	if o.StartTime != "" {
		c.StartTime = o.StartTime
	}
	if o.EndTime != "" {
		c.EndTime = o.EndTime
	}
	if o.SlotMinutes > 0 {
		c.SlotMinutes = o.SlotMinutes
	}
	return c
}

// Appointment is a booking or, when IsBlock is set, a blocked interval with
// no patient.
type Appointment struct {
	ID              string  `json:"ID_Agenda"`
	PatientID       *string `json:"ID_Paciente,omitempty"`
	PatientName     string  `json:"nome_paciente,omitempty"`
	PatientDocument string  `json:"documento_paciente,omitempty"`
	PatientPhone    string  `json:"telefone_paciente,omitempty"`
	Date            string  `json:"data,omitempty"`
	StartTime       string  `json:"hora_inicio"`
	DurationMinutes int     `json:"duracao_minutos"`
	Type            string  `json:"tipo,omitempty"`
	Reason          string  `json:"motivo,omitempty"`
	Origin          string  `json:"origem,omitempty"`
	Channel         string  `json:"canal,omitempty"`
	Status          Status  `json:"status,omitempty"`
	IsBlock         bool    `json:"bloqueio"`
	Class           string  `json:"status_class"`
}

// DaySummary is the per-status count the backend returns with a day.
type DaySummary struct {
	Total      int `json:"total"`
	Confirmed  int `json:"confirmados"`
	NoShows    int `json:"faltas"`
	Cancelled  int `json:"cancelados"`
	Completed  int `json:"concluidos"`
	InProgress int `json:"em_atendimento"`
}

// BlockClass is the presentation class of a blocked interval.
const BlockClass = "bloqueio"

// StatusClass maps a free-text status to its card class. The backend may
// send variants ("Encaixe", "Confirmado pelo paciente"), so matching is by
// substring.
func StatusClass(status Status) string {
	s := strings.ToLower(string(status))
	switch {
	case s == "":
		return "status-agendado"
	case strings.Contains(s, "confirm"):
		return "status-confirmado"
	case strings.Contains(s, "falt"):
		return "status-falta"
	case strings.Contains(s, "cancel"):
		return "status-cancelado"
	case strings.Contains(s, "encaixe"):
		return "status-encaixe"
	case strings.Contains(s, "atendimento"):
		return "status-em-atendimento"
	case strings.Contains(s, "conclu"):
		return "status-concluido"
	default:
		return "status-agendado"
	}
}
