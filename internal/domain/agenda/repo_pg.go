package agenda

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prontio/agenda/pkg/pagination"
)

type transitionRepoPG struct{ pool *pgxpool.Pool }

// NewTransitionRepoPG stores transition records in agenda_transition_log.
func NewTransitionRepoPG(pool *pgxpool.Pool) TransitionRepository {
	return &transitionRepoPG{pool: pool}
}

const transitionCols = `id, session_id, token, appointment_id, action,
	from_status, to_status, succeeded, error_code, error_message, started_at, settled_at`

func (r *transitionRepoPG) scanRecord(row pgx.Row) (*TransitionRecord, error) {
	var rec TransitionRecord
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Token, &rec.AppointmentID, &rec.Action,
		&rec.FromStatus, &rec.ToStatus, &rec.Succeeded, &rec.ErrorCode, &rec.ErrorMessage,
		&rec.StartedAt, &rec.SettledAt)
	return &rec, err
}

func (r *transitionRepoPG) Record(ctx context.Context, rec *TransitionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agenda_transition_log (`+transitionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.SessionID, rec.Token, rec.AppointmentID, rec.Action,
		rec.FromStatus, rec.ToStatus, rec.Succeeded, rec.ErrorCode, rec.ErrorMessage,
		rec.StartedAt, rec.SettledAt)
	if err != nil {
		return fmt.Errorf("insert transition %s: %w", rec.Token, err)
	}
	return nil
}

func (r *transitionRepoPG) ListByAppointment(ctx context.Context, appointmentID string, p pagination.Params) ([]*TransitionRecord, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agenda_transition_log WHERE appointment_id = $1`, appointmentID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transitions for %s: %w", appointmentID, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+transitionCols+` FROM agenda_transition_log
		WHERE appointment_id = $1 ORDER BY settled_at DESC `+p.SQL(), appointmentID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*TransitionRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
