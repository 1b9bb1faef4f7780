package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prontio/agenda/internal/platform/backend"
	"github.com/prontio/agenda/internal/platform/websocket"
)

// Backend is what the controller needs from the clinic backend. Gateway
// implements it.
type Backend interface {
	ListDay(ctx context.Context, date string) (DayListing, error)
	ListWeek(ctx context.Context, ref string) ([]WeekDay, error)
	ChangeStatus(ctx context.Context, id string, status Status) error
	RemoveBlock(ctx context.Context, id string) error
	Create(ctx context.Context, form AppointmentForm) error
	Update(ctx context.Context, form AppointmentForm) error
	Block(ctx context.Context, form BlockForm) error
}

// Controller loads schedules into a session and runs the user's actions
// against the backend.
type Controller struct {
	backend   Backend
	table     TransitionTable
	recorder  TransitionRecorder
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

// NewController creates a controller. A nil recorder logs transitions
// instead of storing them.
func NewController(b Backend, table TransitionTable, recorder TransitionRecorder, logger zerolog.Logger) *Controller {
	if recorder == nil {
		recorder = NewLogRecorder(logger)
	}
	return &Controller{backend: b, table: table, recorder: recorder, logger: logger}
}

func (c *Controller) Table() TransitionTable { return c.table }

// WithPublisher makes the controller announce every accepted mutation on
// the topics of the dates it touched.
func (c *Controller) WithPublisher(p websocket.EventPublisher) *Controller {
	c.publisher = p
	return c
}

// DayView is a filtered day ready to render.
type DayView struct {
	Date    string      `json:"data"`
	Summary DaySummary  `json:"resumo"`
	Grid    []string    `json:"grade"`
	Slots   DaySchedule `json:"horarios"`
	Empty   bool        `json:"vazia"`
}

// LoadDay fetches date and replaces the session's day cache. On failure
// the previous cache is kept.
func (c *Controller) LoadDay(ctx context.Context, s *Session, date string) error {
	s.Config.EnsureLoaded(ctx)

	listing, err := c.backend.ListDay(ctx, date)
	if err != nil {
		return &LoadError{View: ViewDay, Err: err}
	}
	s.replaceDay(date, listing.Appointments, listing.Summary)
	return nil
}

// LoadWeek fetches the week around ref and replaces the session's week.
func (c *Controller) LoadWeek(ctx context.Context, s *Session, ref string) error {
	s.Config.EnsureLoaded(ctx)

	days, err := c.backend.ListWeek(ctx, ref)
	if err != nil {
		return &LoadError{View: ViewWeek, Err: err}
	}
	s.replaceWeek(ref, AggregateWeek(days))
	return nil
}

// DayView returns date (the session date when empty) filtered by f. The
// cached list is reused when it already holds that date, so changing the
// filter never goes back to the backend unless refresh is set. The session
// date moves to date only once the day is available.
func (c *Controller) DayView(ctx context.Context, s *Session, date string, f DayFilter, refresh bool) (DayView, error) {
	if date == "" {
		date = s.Date()
	} else if !ValidDate(date) {
		return DayView{}, ErrInvalidDate
	}
	s.Config.EnsureLoaded(ctx)

	cached, _, _, ok := s.DayCache()
	if refresh || !ok || cached != date {
		if err := c.LoadDay(ctx, s, date); err != nil {
			return DayView{}, err
		}
	}

	_ = s.SetDate(date)

	_, appts, summary, _ := s.DayCache()
	slots := AggregateDay(appts, f)
	return DayView{
		Date:    date,
		Summary: summary,
		Grid:    BuildGrid(s.Config.Config()),
		Slots:   slots,
		Empty:   len(slots) == 0,
	}, nil
}

// WeekView returns the week around ref (the session date when empty).
// Like DayView, the session date only moves once the week is available.
func (c *Controller) WeekView(ctx context.Context, s *Session, ref string, refresh bool) (WeekSchedule, error) {
	if ref == "" {
		ref = s.Date()
	} else if !ValidDate(ref) {
		return WeekSchedule{}, ErrInvalidDate
	}

	cached, week := s.Week()
	if refresh || week == nil || cached != ref {
		if err := c.LoadWeek(ctx, s, ref); err != nil {
			return WeekSchedule{}, err
		}
		_, week = s.Week()
	}
	_ = s.SetDate(ref)
	return *week, nil
}

// Reload re-fetches the session's active view on its current date.
func (c *Controller) Reload(ctx context.Context, s *Session) error {
	return c.reload(ctx, s, s.View())
}

func (c *Controller) reload(ctx context.Context, s *Session, view ViewMode) error {
	if view == ViewWeek {
		return c.LoadWeek(ctx, s, s.Date())
	}
	return c.LoadDay(ctx, s, s.Date())
}

// ChangeStatus asks the backend to move an appointment to status and
// reloads the active view when it accepts. A rejected change leaves the
// loaded schedule untouched and returns an *ActionError.
func (c *Controller) ChangeStatus(ctx context.Context, s *Session, id string, status Status) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	from, date, ok := s.cachedAppointment(id)
	if !ok {
		date = s.Date()
	}
	if !c.table.Allows(from, status) {
		return fmt.Errorf("%w: %s → %s", ErrTransitionNotAllowed, from, status)
	}

	return c.mutate(ctx, s, mutation{
		op:            OpStatus,
		appointmentID: id,
		from:          from,
		to:            status,
		dates:         []string{date},
		reload:        s.View(),
		call: func(ctx context.Context) error {
			return c.backend.ChangeStatus(ctx, id, status)
		},
	})
}

// RemoveBlock deletes a block. Nothing is sent unless the user confirmed.
func (c *Controller) RemoveBlock(ctx context.Context, s *Session, id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	_, date, ok := s.cachedAppointment(id)
	if !ok {
		date = s.Date()
	}

	return c.mutate(ctx, s, mutation{
		op:            OpRemoveBlock,
		appointmentID: id,
		dates:         []string{date},
		reload:        s.View(),
		call: func(ctx context.Context) error {
			return c.backend.RemoveBlock(ctx, id)
		},
	})
}

// Create books a new appointment and reloads the day.
func (c *Controller) Create(ctx context.Context, s *Session, form AppointmentForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return c.mutate(ctx, s, mutation{
		op:     OpCreate,
		dates:  []string{form.Date},
		reload: ViewDay,
		call: func(ctx context.Context) error {
			return c.backend.Create(ctx, form)
		},
	})
}

// Update reschedules or edits an appointment and reloads the active view.
func (c *Controller) Update(ctx context.Context, s *Session, form AppointmentForm) error {
	if err := form.ValidateUpdate(); err != nil {
		return err
	}
	from, oldDate, ok := s.cachedAppointment(form.ID)
	if !ok {
		oldDate = s.Date()
	}
	return c.mutate(ctx, s, mutation{
		op:            OpUpdate,
		appointmentID: form.ID,
		from:          from,
		dates:         []string{oldDate, form.Date},
		reload:        s.View(),
		call: func(ctx context.Context) error {
			return c.backend.Update(ctx, form)
		},
	})
}

// Block blocks an interval and reloads the active view.
func (c *Controller) Block(ctx context.Context, s *Session, form BlockForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return c.mutate(ctx, s, mutation{
		op:     OpBlock,
		dates:  []string{form.Date},
		reload: s.View(),
		call: func(ctx context.Context) error {
			return c.backend.Block(ctx, form)
		},
	})
}

type mutation struct {
	op            Operation
	appointmentID string
	from, to      Status
	dates         []string // announced to other views on success
	reload        ViewMode
	call          func(ctx context.Context) error
}

// mutate runs one backend mutation between Begin and Settle. The marker is
// cleared whatever happens. A successful call marks both cached views stale
// and reloads m.reload; if only the reload fails the mutation still stands
// and ErrReloadFailed is returned.
func (c *Controller) mutate(ctx context.Context, s *Session, m mutation) error {
	tok := s.InFlight.Begin(m.appointmentID, m.op.Action())

	if err := m.call(ctx); err != nil {
		c.record(ctx, s, m, s.InFlight.Settle(tok, err))
		return &ActionError{Op: m.op, Message: ClassifyFor(m.op, err), Err: err}
	}

	c.publish(ctx, s, m)
	s.invalidate()
	reloadErr := c.reload(ctx, s, m.reload)
	c.record(ctx, s, m, s.InFlight.Settle(tok, nil))
	if reloadErr != nil {
		return fmt.Errorf("%w: %w", ErrReloadFailed, reloadErr)
	}
	return nil
}

func (c *Controller) record(ctx context.Context, s *Session, m mutation, st Settlement) {
	rec := &TransitionRecord{
		SessionID:     s.ID,
		Token:         st.Token.ID,
		AppointmentID: m.appointmentID,
		Action:        st.Token.Action,
		FromStatus:    string(m.from),
		ToStatus:      string(m.to),
		Succeeded:     st.OK(),
		StartedAt:     st.Token.StartedAt,
		SettledAt:     st.SettledAt,
	}
	if st.Err != nil {
		rec.ErrorMessage = st.Err.Error()
		var be *backend.Error
		if errors.As(st.Err, &be) {
			rec.ErrorCode = be.Code
		}
	}

	if err := c.recorder.Record(ctx, rec); err != nil {
		c.logger.Warn().Err(err).
			Str("token", rec.Token.String()).
			Str("action", rec.Action).
			Msg("failed to record agenda transition")
	}
}

// EventChanged is published on DateTopic(date) after the backend accepts a
// change to that date.
const EventChanged = "agenda.alterada"

func DateTopic(date string) string { return "agenda:" + date }

type changeNotice struct {
	Date   string `json:"data"`
	Action string `json:"action"`
}

func (c *Controller) publish(ctx context.Context, s *Session, m mutation) {
	if c.publisher == nil {
		return
	}
	seen := make(map[string]bool, len(m.dates))
	for _, raw := range m.dates {
		date, ok := NormalizeDate(raw)
		if !ok || seen[date] {
			continue
		}
		seen[date] = true

		data, _ := json.Marshal(changeNotice{Date: date, Action: m.op.Action()})
		err := c.publisher.Publish(ctx, websocket.Event{
			Type:       EventChanged,
			Topic:      DateTopic(date),
			ResourceID: m.appointmentID,
			Origin:     s.ID.String(),
			Data:       data,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("date", date).Msg("failed to publish agenda change")
		}
	}
}
