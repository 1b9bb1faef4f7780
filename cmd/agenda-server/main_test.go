package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prontio/agenda/internal/config"
	"github.com/prontio/agenda/internal/domain/agenda"
	"github.com/prontio/agenda/internal/platform/db"
	"github.com/prontio/agenda/internal/platform/websocket"
)

func testApp() *app {
	cfg := &config.Config{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		BodyLimit:      "1K",
		RequestTimeout: time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	store := agenda.NewSessionStore(func() *agenda.ConfigResolver {
		return agenda.NewConfigResolver(nil, agenda.DefaultConfig(), zerolog.Nop())
	}, time.Hour)
	hub := websocket.NewHub(zerolog.Nop())
	return &app{
		cfg:    cfg,
		logger: zerolog.Nop(),
		store:  store,
		hub:    hub,
		ctrl:   agenda.NewController(nil, agenda.AllowAllTransitions(), nil, zerolog.Nop()).WithPublisher(hub),
	}
}

func TestNewServer_Health(t *testing.T) {
	e := newServer(testApp())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request ID header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected security headers")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("expected disabled journal, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewServer_CreateSession(t *testing.T) {
	a := testApp()
	e := newServer(a)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agenda/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		ID   string `json:"session_id"`
		View string `json:"visao"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID == "" || body.View != "dia" {
		t.Errorf("unexpected session %+v", body)
	}
	if a.store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", a.store.Len())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agenda/session", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without the session header, got %d", rec.Code)
	}
}

func TestTransitionTable(t *testing.T) {
	cfg := &config.Config{}
	if got := transitionTable(cfg).Name(); got != agenda.AllowAllTransitions().Name() {
		t.Errorf("expected all-to-all, got %s", got)
	}
	cfg.AgendaLockTerminalStatus = true
	if got := transitionTable(cfg).Name(); got != agenda.LockTerminalTransitions().Name() {
		t.Errorf("expected locked table, got %s", got)
	}
}

func TestNewLogger_Level(t *testing.T) {
	l := newLogger(&config.Config{Env: "production", LogLevel: "WARN"})
	if l.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn, got %s", l.GetLevel())
	}
	l = newLogger(&config.Config{Env: "production", LogLevel: "loud"})
	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", l.GetLevel())
	}
}

func TestPrintGrid(t *testing.T) {
	cfg := agenda.AgendaConfig{StartTime: "08:00", EndTime: "09:00", SlotMinutes: 15}
	var buf bytes.Buffer
	if err := printGrid(&buf, cfg, agenda.BuildGrid(cfg)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "08:00") || !strings.Contains(out, "08:45") {
		t.Errorf("unexpected grid output:\n%s", out)
	}
}

func TestPrintDay(t *testing.T) {
	appts := []agenda.Appointment{
		{ID: "A1", PatientName: "Ana", StartTime: "14:00", DurationMinutes: 30, Status: agenda.StatusScheduled},
		{ID: "B1", StartTime: "12:00", DurationMinutes: 60, IsBlock: true},
	}
	view := agenda.DayView{
		Date:    "2024-03-04",
		Summary: agenda.DaySummary{Total: 1},
		Slots:   agenda.AggregateDay(appts, agenda.DayFilter{}),
	}

	var buf bytes.Buffer
	if err := printDay(&buf, view); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "BLOQUEIO") || !strings.Contains(out, "Ana") {
		t.Errorf("unexpected day output:\n%s", out)
	}
	if strings.Index(out, "12:00") > strings.Index(out, "14:00") {
		t.Error("expected slots in time order")
	}

	buf.Reset()
	view.Slots, view.Empty = nil, true
	_ = printDay(&buf, view)
	if !strings.Contains(buf.String(), "Nenhum agendamento") {
		t.Errorf("expected the empty message, got %s", buf.String())
	}
}

func TestPrintWeek(t *testing.T) {
	week := agenda.AggregateWeek([]agenda.WeekDay{
		{Date: "2024-03-04", Appointments: []agenda.Appointment{{ID: "A1", PatientName: "Ana", StartTime: "09:00"}}},
		{Date: "2024-03-05", Appointments: []agenda.Appointment{{ID: "B1", StartTime: "09:00", IsBlock: true}}},
	})
	var buf bytes.Buffer
	if err := printWeek(&buf, week); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"04/03", "05/03", "Ana", "Bloqueado"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestPrintMigrations(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := printMigrations(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_agenda_transition_log.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "2024-03-04 09:00:00") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}
