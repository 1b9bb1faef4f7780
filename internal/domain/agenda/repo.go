package agenda

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prontio/agenda/pkg/pagination"
)

// TransitionRecord is one settled mutation request sent on behalf of a view
// session. It is an audit trail of what the view asked for, not a copy of
// the appointment.
type TransitionRecord struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Token         uuid.UUID `json:"token"`
	AppointmentID string    `json:"ID_Agenda"`
	Action        string    `json:"action"`
	FromStatus    string    `json:"status_anterior,omitempty"`
	ToStatus      string    `json:"novo_status,omitempty"`
	Succeeded     bool      `json:"sucesso"`
	ErrorCode     string    `json:"codigo_erro,omitempty"`
	ErrorMessage  string    `json:"mensagem_erro,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	SettledAt     time.Time `json:"settled_at"`
}

type TransitionRecorder interface {
	Record(ctx context.Context, rec *TransitionRecord) error
}

type TransitionReader interface {
	ListByAppointment(ctx context.Context, appointmentID string, p pagination.Params) ([]*TransitionRecord, int, error)
}

type TransitionRepository interface {
	TransitionRecorder
	TransitionReader
}

// LogRecorder writes records to the structured log. It is used when no
// journal database is configured.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, rec *TransitionRecord) error {
	ev := r.logger.Info()
	if !rec.Succeeded {
		ev = r.logger.Warn()
	}
	ev.Str("session_id", rec.SessionID.String()).
		Str("token", rec.Token.String()).
		Str("appointment_id", rec.AppointmentID).
		Str("action", rec.Action).
		Str("from_status", rec.FromStatus).
		Str("to_status", rec.ToStatus).
		Bool("succeeded", rec.Succeeded).
		Str("error_code", rec.ErrorCode).
		Dur("elapsed", rec.SettledAt.Sub(rec.StartedAt)).
		Msg("agenda transition")
	return nil
}
