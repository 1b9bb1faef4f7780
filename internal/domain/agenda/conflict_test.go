package agenda

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prontio/agenda/internal/platform/backend"
)

func appErr(code, msg string, details map[string]interface{}) *backend.Error {
	return &backend.Error{Kind: backend.ApplicationFailure, Code: code, Message: msg, Details: details}
}

func TestClassify_AppointmentConflictWithPatient(t *testing.T) {
	err := appErr(CodeAppointmentConflict, "conflito", map[string]interface{}{
		"hora_inicio": "09:00", "hora_fim": "09:30", "nome_paciente": "Maria",
	})

	got := Classify(err)
	want := "Não é possível agendar: já existe consulta das 09:00 às 09:30 (Maria)."
	if got.Text != want {
		t.Errorf("expected %q, got %q", want, got.Text)
	}
	if !got.Conflict || got.Code != CodeAppointmentConflict {
		t.Errorf("expected a conflict with code, got %+v", got)
	}
}

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "appointment conflict without patient",
			err:  appErr(CodeAppointmentConflict, "", map[string]interface{}{"hora_inicio": "09:00", "hora_fim": "09:30"}),
			want: "Não é possível agendar: já existe consulta das 09:00 às 09:30.",
		},
		{
			name: "appointment conflict without times",
			err:  appErr(CodeAppointmentConflict, "", map[string]interface{}{"hora_inicio": "09:00"}),
			want: "Não é possível agendar: já existe consulta neste horário.",
		},
		{
			name: "block conflict with times",
			err:  appErr(CodeBlockConflict, "", map[string]interface{}{"hora_inicio": "12:00", "hora_fim": "13:00"}),
			want: "Não é possível agendar: horário está bloqueado das 12:00 às 13:00.",
		},
		{
			name: "block conflict without details",
			err:  appErr(CodeBlockConflict, "", nil),
			want: "Não é possível agendar: horário está bloqueado nesse intervalo.",
		},
		{
			name: "other code",
			err:  appErr("AGENDA_ID_OBRIGATORIO", "ID_Agenda é obrigatório.", nil),
			want: "ID_Agenda é obrigatório.",
		},
		{
			name: "no message",
			err:  appErr("", "", nil),
			want: "Erro ao processar a requisição no servidor.",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "boom",
		},
		{
			name: "wrapped backend error",
			err:  fmt.Errorf("call: %w", appErr(CodeBlockConflict, "", nil)),
			want: "Não é possível agendar: horário está bloqueado nesse intervalo.",
		},
		{
			name: "nil",
			err:  nil,
			want: "Erro ao processar a requisição no servidor.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got.Text != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Text)
			}
		})
	}
}

func TestClassifyFor_UpdateSaysReagendar(t *testing.T) {
	err := appErr(CodeBlockConflict, "", map[string]interface{}{"hora_inicio": "12:00", "hora_fim": "13:00"})
	got := ClassifyFor(OpUpdate, err)
	want := "Não é possível reagendar: horário está bloqueado das 12:00 às 13:00."
	if got.Text != want {
		t.Errorf("expected %q, got %q", want, got.Text)
	}
}

func TestClassifyFor_PrefixesGenericFailures(t *testing.T) {
	err := appErr("X", "Falha qualquer.", nil)
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "Erro ao salvar agendamento: Falha qualquer."},
		{OpUpdate, "Erro ao atualizar agendamento: Falha qualquer."},
		{OpStatus, "Erro ao mudar status do agendamento: Falha qualquer."},
		{OpRemoveBlock, "Erro ao remover bloqueio: Falha qualquer."},
		{OpBlock, "Erro ao salvar bloqueio: Falha qualquer."},
	}
	for _, tt := range tests {
		if got := ClassifyFor(tt.op, err); got.Text != tt.want {
			t.Errorf("op %d: expected %q, got %q", tt.op, tt.want, got.Text)
		}
	}
}

func TestClassify_NumericDetails(t *testing.T) {
	err := appErr(CodeAppointmentConflict, "", map[string]interface{}{
		"hora_inicio": "09:00", "hora_fim": "09:30", "nome_paciente": float64(42),
	})
	want := "Não é possível agendar: já existe consulta das 09:00 às 09:30 (42)."
	if got := Classify(err); got.Text != want {
		t.Errorf("expected %q, got %q", want, got.Text)
	}
}

func TestOperation_Action(t *testing.T) {
	if OpStatus.Action() != ActionChangeStatus || OpRemoveBlock.Action() != ActionRemoveBlock {
		t.Error("unexpected action mapping")
	}
	if Operation(99).Action() != "" {
		t.Error("expected unknown operation to have no action")
	}
}
