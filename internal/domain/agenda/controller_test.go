package agenda

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prontio/agenda/internal/platform/backend"
	"github.com/prontio/agenda/internal/platform/websocket"
)

// mockBackend serves canned days and weeks and records mutations.
type mockBackend struct {
	mu        sync.Mutex
	days      map[string]DayListing
	weeks     map[string][]WeekDay
	dayErr    error
	weekErr   error
	mutateErr error
	dayLoads  int
	weekLoads int
	mutations []string

	// gate, when set, holds ChangeStatus until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newMockBackend() *mockBackend {
	return &mockBackend{days: map[string]DayListing{}, weeks: map[string][]WeekDay{}}
}

func (m *mockBackend) ListDay(_ context.Context, date string) (DayListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayLoads++
	if m.dayErr != nil {
		return DayListing{}, m.dayErr
	}
	l := m.days[date]
	l.Date = date
	return l, nil
}

func (m *mockBackend) ListWeek(_ context.Context, ref string) ([]WeekDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weekLoads++
	if m.weekErr != nil {
		return nil, m.weekErr
	}
	return m.weeks[ref], nil
}

func (m *mockBackend) mutate(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, name)
	return m.mutateErr
}

func (m *mockBackend) ChangeStatus(_ context.Context, id string, status Status) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	return m.mutate("status:" + id + ":" + string(status))
}

func (m *mockBackend) RemoveBlock(_ context.Context, id string) error {
	return m.mutate("unblock:" + id)
}

func (m *mockBackend) Create(_ context.Context, f AppointmentForm) error {
	return m.mutate("create:" + f.StartTime)
}

func (m *mockBackend) Update(_ context.Context, f AppointmentForm) error {
	return m.mutate("update:" + f.ID)
}

func (m *mockBackend) Block(_ context.Context, f BlockForm) error {
	return m.mutate("block:" + f.StartTime)
}

func (m *mockBackend) counts() (days, weeks int, mutations []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayLoads, m.weekLoads, append([]string(nil), m.mutations...)
}

type memRecorder struct {
	mu      sync.Mutex
	records []*TransitionRecord
	err     error
}

func (r *memRecorder) Record(_ context.Context, rec *TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

func (r *memRecorder) all() []*TransitionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*TransitionRecord(nil), r.records...)
}

const testDate = "2024-03-04"

func newTestController(t *testing.T) (*Controller, *mockBackend, *memRecorder, *Session) {
	t.Helper()
	be := newMockBackend()
	be.days[testDate] = DayListing{
		Summary: DaySummary{Total: 3, Confirmed: 1},
		Appointments: []Appointment{
			appt("A1", "Ana", "14:00", StatusScheduled),
			appt("A2", "Bob", "14:00", StatusConfirmed),
			appt("A3", "Caio", "09:15", StatusCompleted),
			block("B1", "12:00"),
		},
	}
	rec := &memRecorder{}
	ctrl := NewController(be, AllowAllTransitions(), rec, zerolog.Nop())
	s := NewSession(uuid.New(), testDate, newTestResolver())
	return ctrl, be, rec, s
}

func TestController_DayView(t *testing.T) {
	ctrl, be, _, s := newTestController(t)

	v, err := ctrl.DayView(context.Background(), s, "", DayFilter{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Date != testDate || v.Summary.Total != 3 || v.Empty {
		t.Errorf("unexpected view %+v", v)
	}
	if len(v.Slots) != 3 || v.Slots[0].Time != "09:15" || v.Slots[2].Time != "14:00" {
		t.Errorf("unexpected slots %+v", v.Slots)
	}
	if len(v.Grid) != 41 {
		t.Errorf("expected the default 15 minute grid, got %d labels", len(v.Grid))
	}
	if !s.Config.Loaded() {
		t.Error("expected the config to be resolved before aggregation")
	}

	// changing the filter reuses the cached day
	v, err = ctrl.DayView(context.Background(), s, testDate, DayFilter{NameContains: "an"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Slots) != 1 || v.Slots[0].Appointments[0].ID != "A1" {
		t.Errorf("expected only Ana, got %+v", v.Slots)
	}
	if days, _, _ := be.counts(); days != 1 {
		t.Errorf("expected a single load, got %d", days)
	}

	if _, err := ctrl.DayView(context.Background(), s, testDate, DayFilter{}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days, _, _ := be.counts(); days != 2 {
		t.Errorf("expected refresh to reload, got %d loads", days)
	}
}

func TestController_DayView_NoMatches(t *testing.T) {
	ctrl, _, _, s := newTestController(t)
	v, err := ctrl.DayView(context.Background(), s, "", DayFilter{NameContains: "zzz"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Empty || v.Slots == nil || len(v.Slots) != 0 {
		t.Errorf("expected an empty view, got %+v", v)
	}
}

func TestController_DayView_InvalidDate(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	_, err := ctrl.DayView(context.Background(), s, "ontem", DayFilter{}, false)
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
	if days, _, _ := be.counts(); days != 0 {
		t.Error("expected no request")
	}
}

func TestController_LoadFailureKeepsCache(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	if err := ctrl.LoadDay(context.Background(), s, testDate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, before, _, _ := s.DayCache()

	be.dayErr = &backend.Error{Kind: backend.TransportFailure, Message: "Não foi possível se comunicar com o servidor."}
	err := ctrl.LoadDay(context.Background(), s, testDate)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected a LoadError, got %v", err)
	}
	want := "Não foi possível carregar a agenda do dia: Não foi possível se comunicar com o servidor."
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	_, after, _, _ := s.DayCache()
	if !reflect.DeepEqual(before, after) {
		t.Error("expected the cache to survive a failed load")
	}
}

func TestController_WeekView(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	be.weeks[testDate] = []WeekDay{
		{Date: "2024-03-04", Appointments: []Appointment{appt("A1", "Ana", "09:00", StatusScheduled)}},
		{Date: "2024-03-05", Appointments: []Appointment{appt("A4", "Dora", "09:00", StatusScheduled)}},
	}

	w, err := ctrl.WeekView(context.Background(), s, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Hours) != 1 || len(w.Days) != 2 {
		t.Errorf("unexpected week %+v", w)
	}
	if _, err := ctrl.WeekView(context.Background(), s, testDate, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, weeks, _ := be.counts(); weeks != 1 {
		t.Errorf("expected the cached week to be reused, got %d loads", weeks)
	}

	be.weekErr = errors.New("down")
	_, err = ctrl.WeekView(context.Background(), s, testDate, true)
	if err == nil || err.Error() != "Não foi possível carregar a semana: down" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestController_ChangeStatus_ReloadsActiveView(t *testing.T) {
	ctrl, be, rec, s := newTestController(t)
	ctx := context.Background()
	if err := ctrl.LoadDay(ctx, s, testDate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ctrl.ChangeStatus(ctx, s, "A1", StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	days, weeks, muts := be.counts()
	if days != 2 || weeks != 0 {
		t.Errorf("expected a day reload, got days=%d weeks=%d", days, weeks)
	}
	if len(muts) != 1 || muts[0] != "status:A1:Confirmado" {
		t.Errorf("unexpected mutations %v", muts)
	}
	if s.InFlight.IsPending("A1") {
		t.Error("expected the marker to be cleared")
	}

	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if !r.Succeeded || r.FromStatus != "Agendado" || r.ToStatus != "Confirmado" || r.Action != ActionChangeStatus || r.SessionID != s.ID {
		t.Errorf("unexpected record %+v", r)
	}

	_ = s.SetView(ViewWeek)
	if err := ctrl.ChangeStatus(ctx, s, "A1", StatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, weeks, _ := be.counts(); weeks != 1 {
		t.Errorf("expected a week reload, got %d", weeks)
	}
}

func TestController_ChangeStatus_FailureLeavesScheduleUnchanged(t *testing.T) {
	ctrl, be, rec, s := newTestController(t)
	ctx := context.Background()
	before, err := ctrl.DayView(ctx, s, "", DayFilter{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	be.mutateErr = &backend.Error{Kind: backend.ApplicationFailure, Code: "X", Message: "Status bloqueado."}
	err = ctrl.ChangeStatus(ctx, s, "A1", StatusCancelled)

	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected an ActionError, got %v", err)
	}
	if ae.Message.Text != "Erro ao mudar status do agendamento: Status bloqueado." {
		t.Errorf("unexpected message %q", ae.Message.Text)
	}
	if s.InFlight.IsPending("A1") {
		t.Error("expected the marker to be cleared after failure")
	}

	after, err := ctrl.DayView(ctx, s, "", DayFilter{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("expected the loaded schedule to be unchanged")
	}
	if days, _, _ := be.counts(); days != 1 {
		t.Errorf("expected no reload after failure, got %d loads", days)
	}

	records := rec.all()
	if len(records) != 1 || records[0].Succeeded || records[0].ErrorCode != "X" {
		t.Errorf("unexpected records %+v", records)
	}
}

func TestController_ChangeStatus_Validation(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()

	if err := ctrl.ChangeStatus(ctx, s, " ", StatusConfirmed); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if err := ctrl.ChangeStatus(ctx, s, "A1", "Remarcado"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, _, muts := be.counts(); len(muts) != 0 {
		t.Errorf("expected no request, got %v", muts)
	}
}

func TestController_ChangeStatus_LockedTable(t *testing.T) {
	_, be, rec, s := newTestController(t)
	ctrl := NewController(be, LockTerminalTransitions(), rec, zerolog.Nop())
	ctx := context.Background()
	if err := ctrl.LoadDay(ctx, s, testDate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ctrl.ChangeStatus(ctx, s, "A3", StatusInProgress)
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("expected ErrTransitionNotAllowed, got %v", err)
	}
	if _, _, muts := be.counts(); len(muts) != 0 {
		t.Errorf("expected no request, got %v", muts)
	}

	// unknown appointments cannot be judged
	if err := ctrl.ChangeStatus(ctx, s, "Z9", StatusInProgress); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestController_ConcurrentChangesForSameAppointment(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	be.gate = make(chan struct{})
	be.entered = make(chan struct{}, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, st := range []Status{StatusConfirmed, StatusCancelled} {
		wg.Add(1)
		go func(st Status) {
			defer wg.Done()
			errs <- ctrl.ChangeStatus(context.Background(), s, "A1", st)
		}(st)
	}

	<-be.entered
	<-be.entered
	if n := len(s.InFlight.Pending()); n != 2 {
		t.Errorf("expected 2 in-flight tokens, got %d", n)
	}
	close(be.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if s.InFlight.IsPending("A1") {
		t.Error("expected all markers to be cleared")
	}
}

func TestController_RemoveBlock_RequiresConfirmation(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()

	if err := ctrl.RemoveBlock(ctx, s, "B1", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("expected ErrConfirmationRequired, got %v", err)
	}
	if _, _, muts := be.counts(); len(muts) != 0 {
		t.Errorf("expected no request, got %v", muts)
	}

	if err := ctrl.RemoveBlock(ctx, s, "B1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	days, _, muts := be.counts()
	if len(muts) != 1 || muts[0] != "unblock:B1" || days != 1 {
		t.Errorf("unexpected calls muts=%v days=%d", muts, days)
	}
}

func TestController_RemoveBlock_Failure(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	be.mutateErr = &backend.Error{Kind: backend.TransportFailure, Message: "Tempo de resposta da API excedido. Tente novamente."}

	err := ctrl.RemoveBlock(context.Background(), s, "B1", true)
	var ae *ActionError
	if !errors.As(err, &ae) || ae.Message.Text != "Erro ao remover bloqueio: Tempo de resposta da API excedido. Tente novamente." {
		t.Errorf("unexpected error %v", err)
	}
}

func TestController_Create(t *testing.T) {
	ctrl, be, rec, s := newTestController(t)
	ctx := context.Background()
	_ = s.SetView(ViewWeek)

	err := ctrl.Create(ctx, s, AppointmentForm{Date: testDate, StartTime: "", DurationMinutes: 15})
	if !errors.Is(err, ErrIncompleteForm) {
		t.Errorf("expected ErrIncompleteForm, got %v", err)
	}

	if err := ctrl.Create(ctx, s, AppointmentForm{Date: testDate, StartTime: "8:30", DurationMinutes: 15}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	days, weeks, muts := be.counts()
	if len(muts) != 1 || muts[0] != "create:08:30" {
		t.Errorf("unexpected mutations %v", muts)
	}
	if days != 1 || weeks != 0 {
		t.Errorf("expected create to reload the day, got days=%d weeks=%d", days, weeks)
	}
	if r := rec.all(); len(r) != 1 || r[0].Action != ActionCreate {
		t.Errorf("unexpected records %+v", r)
	}
}

func TestController_Create_Conflict(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	be.mutateErr = &backend.Error{
		Kind: backend.ApplicationFailure,
		Code: CodeAppointmentConflict,
		Details: map[string]interface{}{
			"hora_inicio": "09:00", "hora_fim": "09:30", "nome_paciente": "Maria",
		},
	}

	err := ctrl.Create(context.Background(), s, AppointmentForm{Date: testDate, StartTime: "09:00", DurationMinutes: 30})
	var ae *ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected an ActionError, got %v", err)
	}
	want := "Não é possível agendar: já existe consulta das 09:00 às 09:30 (Maria)."
	if ae.Message.Text != want || !ae.Message.Conflict {
		t.Errorf("expected %q, got %+v", want, ae.Message)
	}
}

func TestController_Update(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()

	form := AppointmentForm{Date: testDate, StartTime: "10:00", DurationMinutes: 30}
	if err := ctrl.Update(ctx, s, form); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}

	be.mutateErr = &backend.Error{Kind: backend.ApplicationFailure, Code: CodeBlockConflict}
	form.ID = "A1"
	err := ctrl.Update(ctx, s, form)
	if err == nil || err.Error() != "Não é possível reagendar: horário está bloqueado nesse intervalo." {
		t.Errorf("unexpected error %v", err)
	}

	be.mutateErr = nil
	if err := ctrl.Update(ctx, s, form); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestController_Block(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()

	if err := ctrl.Block(ctx, s, BlockForm{Date: testDate}); !errors.Is(err, ErrIncompleteBlock) {
		t.Errorf("expected ErrIncompleteBlock, got %v", err)
	}
	if err := ctrl.Block(ctx, s, BlockForm{Date: testDate, StartTime: "12:00", DurationMinutes: 60}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, muts := be.counts(); len(muts) != 1 || muts[0] != "block:12:00" {
		t.Errorf("unexpected mutations %v", muts)
	}
}

func TestController_ReloadFailureAfterSuccess(t *testing.T) {
	ctrl, be, rec, s := newTestController(t)
	be.dayErr = errors.New("down")

	err := ctrl.ChangeStatus(context.Background(), s, "A1", StatusConfirmed)
	if !errors.Is(err, ErrReloadFailed) {
		t.Fatalf("expected ErrReloadFailed, got %v", err)
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Error("expected the load error to be kept")
	}
	if r := rec.all(); len(r) != 1 || !r[0].Succeeded {
		t.Errorf("expected the mutation to be recorded as successful, got %+v", r)
	}
	if s.InFlight.IsPending("A1") {
		t.Error("expected the marker to be cleared")
	}
}

func TestController_RecorderFailureIsNotFatal(t *testing.T) {
	ctrl, _, rec, s := newTestController(t)
	rec.err = errors.New("journal down")

	if err := ctrl.ChangeStatus(context.Background(), s, "A1", StatusConfirmed); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewController_DefaultsToLogRecorder(t *testing.T) {
	ctrl := NewController(newMockBackend(), AllowAllTransitions(), nil, zerolog.Nop())
	if _, ok := ctrl.recorder.(*LogRecorder); !ok {
		t.Errorf("expected a LogRecorder, got %T", ctrl.recorder)
	}
}

type memPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *memPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestController_PublishesAcceptedChanges(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	pub := &memPublisher{}
	ctrl.WithPublisher(pub)
	ctx := context.Background()

	be.mutateErr = errors.New("rejected")
	_ = ctrl.ChangeStatus(ctx, s, "A1", StatusConfirmed)
	if len(pub.events) != 0 {
		t.Fatalf("expected nothing published for a rejected change, got %d", len(pub.events))
	}

	be.mutateErr = nil
	if err := ctrl.ChangeStatus(ctx, s, "A1", StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != EventChanged || ev.Topic != DateTopic(testDate) || ev.ResourceID != "A1" || ev.Origin != s.ID.String() {
		t.Errorf("unexpected event %+v", ev)
	}

	// moving an appointment to another day touches both dates
	form := AppointmentForm{ID: "A1", Date: "2024-03-06", StartTime: "10:00", DurationMinutes: 30}
	if err := ctrl.Update(ctx, s, form); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 3 || pub.events[2].Topic != DateTopic("2024-03-06") {
		t.Errorf("expected events for both dates, got %+v", pub.events[1:])
	}

	form.Date = testDate
	_ = ctrl.Update(ctx, s, form)
	if len(pub.events) != 4 {
		t.Errorf("expected a single event for a same-day update, got %d", len(pub.events)-3)
	}
}

func TestController_MutationRefreshesTheOtherView(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()
	be.weeks[testDate] = []WeekDay{
		{Date: testDate, Appointments: []Appointment{appt("A1", "Ana", "14:00", StatusScheduled)}},
	}

	if _, err := ctrl.DayView(ctx, s, "", DayFilter{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.SetView(ViewWeek)
	if _, err := ctrl.WeekView(ctx, s, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listing := be.days[testDate]
	listing.Appointments = []Appointment{appt("A1", "Ana", "14:00", StatusConfirmed)}
	be.days[testDate] = listing

	if err := ctrl.ChangeStatus(ctx, s, "A1", StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days, weeks, _ := be.counts(); days != 1 || weeks != 2 {
		t.Fatalf("expected only the week to reload, got days=%d weeks=%d", days, weeks)
	}

	_ = s.SetView(ViewDay)
	v, err := ctrl.DayView(ctx, s, testDate, DayFilter{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days, _, _ := be.counts(); days != 2 {
		t.Errorf("expected the day to be refetched, got %d loads", days)
	}
	if len(v.Slots) != 1 || v.Slots[0].Appointments[0].Status != StatusConfirmed {
		t.Errorf("expected A1 Confirmado, got %+v", v.Slots)
	}

	// create reloads the day; the week must not be served from before it
	if err := ctrl.Create(ctx, s, AppointmentForm{Date: testDate, StartTime: "10:00", DurationMinutes: 15}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ctrl.WeekView(ctx, s, testDate, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, weeks, _ := be.counts(); weeks != 3 {
		t.Errorf("expected the week to be refetched after create, got %d loads", weeks)
	}
}

func TestController_PublishesTheAppointmentDateInWeekView(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	pub := &memPublisher{}
	ctrl.WithPublisher(pub)
	ctx := context.Background()
	be.weeks[testDate] = []WeekDay{
		{Date: testDate, Appointments: []Appointment{block("B2", "08:00")}},
		{Date: "2024-03-07", Appointments: []Appointment{
			appt("W1", "Wagner", "09:00", StatusScheduled),
			block("B3", "12:00"),
		}},
	}

	_ = s.SetView(ViewWeek)
	if _, err := ctrl.WeekView(ctx, s, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ctrl.ChangeStatus(ctx, s, "W1", StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctrl.RemoveBlock(ctx, s, "B3", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// not in any loaded view: falls back to the session date
	if err := ctrl.ChangeStatus(ctx, s, "Z9", StatusConfirmed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{DateTopic("2024-03-07"), DateTopic("2024-03-07"), DateTopic(testDate)}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(pub.events))
	}
	for i, topic := range want {
		if pub.events[i].Topic != topic {
			t.Errorf("event %d: expected topic %s, got %s", i, topic, pub.events[i].Topic)
		}
	}
}

func TestController_FailedLoadKeepsSessionDate(t *testing.T) {
	ctrl, be, _, s := newTestController(t)
	ctx := context.Background()
	if _, err := ctrl.DayView(ctx, s, "", DayFilter{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	be.dayErr = errors.New("down")
	if _, err := ctrl.DayView(ctx, s, "2024-03-05", DayFilter{}, false); err == nil {
		t.Fatal("expected the load to fail")
	}
	if s.Date() != testDate {
		t.Errorf("expected the session to stay on %s, got %s", testDate, s.Date())
	}
	if cached, _, _, ok := s.DayCache(); !ok || cached != testDate {
		t.Errorf("expected the cached day to stay on %s, got %s", testDate, cached)
	}

	be.weekErr = errors.New("down")
	if _, err := ctrl.WeekView(ctx, s, "2024-03-11", false); err == nil {
		t.Fatal("expected the week load to fail")
	}
	if s.Date() != testDate {
		t.Errorf("expected the session to stay on %s, got %s", testDate, s.Date())
	}

	be.dayErr = nil
	if _, err := ctrl.DayView(ctx, s, "2024-03-05", DayFilter{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Date() != "2024-03-05" {
		t.Errorf("expected the session to move after a successful load, got %s", s.Date())
	}
}
