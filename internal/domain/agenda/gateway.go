package agenda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/prontio/agenda/internal/platform/backend"
)

// Backend actions used by the agenda.
const (
	ActionGetConfig    = "AgendaConfig.Obter"
	ActionListDay      = "Agenda.ListarDia"
	ActionListWeek     = "Agenda.ListarSemana"
	ActionChangeStatus = "Agenda.MudarStatus"
	ActionRemoveBlock  = "Agenda.RemoverBloqueio"
	ActionCreate       = "Agenda.Criar"
	ActionUpdate       = "Agenda.Atualizar"
	ActionBlock        = "Agenda.BloquearHorario"
)

// Gateway is the only place that knows the backend's payload shapes. It
// tolerates the variations the backend produces (numbers as strings, flat
// or slotted appointment lists, timestamps instead of "HH:MM") and hands
// the rest of the package canonical values.
type Gateway struct {
	req backend.Requester
}

func NewGateway(req backend.Requester) *Gateway {
	return &Gateway{req: req}
}

// DayListing is the canonical Agenda.ListarDia result.
type DayListing struct {
	Date         string
	Summary      DaySummary
	Appointments []Appointment
}

// FetchConfig implements ConfigSource.
func (g *Gateway) FetchConfig(ctx context.Context) (AgendaConfig, error) {
	data, err := g.req.Request(ctx, ActionGetConfig, struct{}{})
	if err != nil {
		return AgendaConfig{}, err
	}
	if len(data) == 0 {
		return AgendaConfig{}, nil
	}

	var raw struct {
		Start  flexString       `json:"hora_inicio_padrao"`
		End    flexString       `json:"hora_fim_padrao"`
		Step   flexInt          `json:"duracao_grade_minutos"`
		Nested *json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return AgendaConfig{}, formatError(ActionGetConfig, err)
	}
	if raw.Start == "" && raw.End == "" && raw.Step == 0 && raw.Nested != nil {
		if err := json.Unmarshal(*raw.Nested, &raw); err != nil {
			return AgendaConfig{}, formatError(ActionGetConfig, err)
		}
	}

	cfg := AgendaConfig{SlotMinutes: int(raw.Step)}
	if t, ok := NormalizeClock(string(raw.Start)); ok {
		cfg.StartTime = t
	}
	if t, ok := NormalizeClock(string(raw.End)); ok {
		cfg.EndTime = t
	}
	return cfg, nil
}

// ListDay fetches one date.
func (g *Gateway) ListDay(ctx context.Context, date string) (DayListing, error) {
	data, err := g.req.Request(ctx, ActionListDay, map[string]string{"data": date})
	if err != nil {
		return DayListing{}, err
	}
	listing := DayListing{Date: date, Appointments: []Appointment{}}
	if len(data) == 0 {
		return listing, nil
	}

	var raw struct {
		Summary      *rawSummary      `json:"resumo"`
		Slots        []rawSlot        `json:"horarios"`
		Appointments []rawAppointment `json:"agendamentos"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return DayListing{}, formatError(ActionListDay, err)
	}
	if raw.Summary != nil {
		listing.Summary = raw.Summary.normalize()
	}
	listing.Appointments = flattenSlots(date, raw.Slots, raw.Appointments)
	return listing, nil
}

// ListWeek fetches the week containing ref.
func (g *Gateway) ListWeek(ctx context.Context, ref string) ([]WeekDay, error) {
	data, err := g.req.Request(ctx, ActionListWeek, map[string]string{"data_referencia": ref})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []WeekDay{}, nil
	}

	var raw struct {
		Days []struct {
			Date         flexString       `json:"data"`
			Slots        []rawSlot        `json:"horarios"`
			Appointments []rawAppointment `json:"agendamentos"`
		} `json:"dias"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, formatError(ActionListWeek, err)
	}

	days := make([]WeekDay, 0, len(raw.Days))
	for _, d := range raw.Days {
		date := string(d.Date)
		if iso, ok := NormalizeDate(date); ok {
			date = iso
		}
		days = append(days, WeekDay{
			Date:         date,
			Appointments: flattenSlots(date, d.Slots, d.Appointments),
		})
	}
	return days, nil
}

func (g *Gateway) ChangeStatus(ctx context.Context, id string, status Status) error {
	_, err := g.req.Request(ctx, ActionChangeStatus, statusPayload{ID: id, NewStatus: status})
	return err
}

func (g *Gateway) RemoveBlock(ctx context.Context, id string) error {
	_, err := g.req.Request(ctx, ActionRemoveBlock, idPayload{ID: id})
	return err
}

func (g *Gateway) Create(ctx context.Context, form AppointmentForm) error {
	_, err := g.req.Request(ctx, ActionCreate, form.createPayload())
	return err
}

func (g *Gateway) Update(ctx context.Context, form AppointmentForm) error {
	_, err := g.req.Request(ctx, ActionUpdate, form.updatePayload())
	return err
}

func (g *Gateway) Block(ctx context.Context, form BlockForm) error {
	_, err := g.req.Request(ctx, ActionBlock, form)
	return err
}

type statusPayload struct {
	ID        string `json:"ID_Agenda"`
	NewStatus Status `json:"novo_status"`
}

type idPayload struct {
	ID string `json:"ID_Agenda"`
}

func formatError(action string, err error) error {
	return &backend.Error{
		Kind:    backend.FormatFailure,
		Action:  action,
		Message: "Resposta inesperada do servidor.",
		Err:     fmt.Errorf("decode %s: %w", action, err),
	}
}

// -- raw backend shapes --

type rawSlot struct {
	Time         flexString       `json:"hora"`
	Appointments []rawAppointment `json:"agendamentos"`
}

type rawSummary struct {
	Total      flexInt `json:"total"`
	Confirmed  flexInt `json:"confirmados"`
	NoShows    flexInt `json:"faltas"`
	Cancelled  flexInt `json:"cancelados"`
	Completed  flexInt `json:"concluidos"`
	InProgress flexInt `json:"em_atendimento"`
}

func (r rawSummary) normalize() DaySummary {
	return DaySummary{
		Total:      int(r.Total),
		Confirmed:  int(r.Confirmed),
		NoShows:    int(r.NoShows),
		Cancelled:  int(r.Cancelled),
		Completed:  int(r.Completed),
		InProgress: int(r.InProgress),
	}
}

type rawAppointment struct {
	ID              flexString `json:"ID_Agenda"`
	PatientID       flexString `json:"ID_Paciente"`
	PatientName     flexString `json:"nome_paciente"`
	PatientDocument flexString `json:"documento_paciente"`
	PatientPhone    flexString `json:"telefone_paciente"`
	Date            flexString `json:"data"`
	StartTime       flexString `json:"hora_inicio"`
	Duration        flexInt    `json:"duracao_minutos"`
	Type            flexString `json:"tipo"`
	Reason          flexString `json:"motivo"`
	Origin          flexString `json:"origem"`
	Channel         flexString `json:"canal"`
	Status          flexString `json:"status"`
	Block           flexBool   `json:"bloqueio"`
}

// flattenSlots collects slotted and flat appointment lists into one list.
// An appointment without its own start time inherits its slot's time.
func flattenSlots(date string, slots []rawSlot, flat []rawAppointment) []Appointment {
	out := make([]Appointment, 0, len(flat))
	for _, sl := range slots {
		for _, ra := range sl.Appointments {
			out = append(out, ra.normalize(date, string(sl.Time)))
		}
	}
	for _, ra := range flat {
		out = append(out, ra.normalize(date, ""))
	}
	return out
}

func (r rawAppointment) normalize(date, slotTime string) Appointment {
	a := Appointment{
		ID:              string(r.ID),
		Date:            string(r.Date),
		DurationMinutes: int(r.Duration),
		Type:            string(r.Type),
		Reason:          string(r.Reason),
		Origin:          string(r.Origin),
		Channel:         string(r.Channel),
		Status:          Status(strings.TrimSpace(string(r.Status))),
		IsBlock:         bool(r.Block),
	}
	if iso, ok := NormalizeDate(a.Date); ok {
		a.Date = iso
	} else if a.Date == "" {
		a.Date = date
	}

	start := strings.TrimSpace(string(r.StartTime))
	if start == "" {
		start = strings.TrimSpace(slotTime)
	}
	if clock, ok := NormalizeClock(start); ok {
		start = clock
	}
	a.StartTime = start

	if a.IsBlock {
		a.Class = BlockClass
		return a
	}
	if id := strings.TrimSpace(string(r.PatientID)); id != "" {
		a.PatientID = &id
	}
	a.PatientName = string(r.PatientName)
	a.PatientDocument = string(r.PatientDocument)
	a.PatientPhone = string(r.PatientPhone)
	a.Class = StatusClass(a.Status)
	return a
}

// flexString accepts JSON strings, numbers, booleans and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return fmt.Errorf("expected scalar, got %s", b)
	}
	*f = flexString(b)
	return nil
}

// flexInt accepts JSON numbers and numeric strings; anything else is 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(str); err == nil {
		*f = flexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(str, 64); err == nil {
		*f = flexInt(int(v))
		return nil
	}
	*f = 0
	return nil
}

// flexBool accepts true/false, 1/0 and "sim"/"true" style strings.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "1", "sim", "s", "yes", "x":
		*f = true
	default:
		*f = false
	}
	return nil
}
