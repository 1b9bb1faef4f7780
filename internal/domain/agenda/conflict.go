package agenda

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prontio/agenda/internal/platform/backend"
)

// Conflict codes the backend attaches to rejected bookings.
const (
	CodeBlockConflict       = "AGENDA_CONFLITO_BLOQUEIO"
	CodeAppointmentConflict = "AGENDA_CONFLITO_CONSULTA"
)

const defaultErrorMessage = "Erro ao processar a requisição no servidor."

// Operation names the user action a backend failure belongs to.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpStatus
	OpRemoveBlock
	OpBlock
)

// Action is the backend action the operation sends.
func (op Operation) Action() string {
	switch op {
	case OpCreate:
		return ActionCreate
	case OpUpdate:
		return ActionUpdate
	case OpStatus:
		return ActionChangeStatus
	case OpRemoveBlock:
		return ActionRemoveBlock
	case OpBlock:
		return ActionBlock
	default:
		return ""
	}
}

func (op Operation) verb() string {
	if op == OpUpdate {
		return "reagendar"
	}
	return "agendar"
}

func (op Operation) failurePrefix() string {
	switch op {
	case OpCreate:
		return "Erro ao salvar agendamento: "
	case OpUpdate:
		return "Erro ao atualizar agendamento: "
	case OpStatus:
		return "Erro ao mudar status do agendamento: "
	case OpRemoveBlock:
		return "Erro ao remover bloqueio: "
	case OpBlock:
		return "Erro ao salvar bloqueio: "
	default:
		return ""
	}
}

// UserMessage is what the view shows after a failed action.
type UserMessage struct {
	Text     string `json:"message"`
	Code     string `json:"code,omitempty"`
	Conflict bool   `json:"conflict,omitempty"`
}

func (m UserMessage) String() string {
	return m.Text
}

// Classify turns a backend failure into the message shown to the user.
// Conflict codes get a scheduling-specific sentence; anything else falls
// back to the error's own message.
func Classify(err error) UserMessage {
	return classify(OpCreate, err, "")
}

// ClassifyFor is Classify worded for op: updates say "reagendar" and
// non-conflict failures are prefixed with the failed action.
func ClassifyFor(op Operation, err error) UserMessage {
	return classify(op, err, op.failurePrefix())
}

func classify(op Operation, err error, prefix string) UserMessage {
	if err == nil {
		return UserMessage{Text: prefix + defaultErrorMessage}
	}

	var be *backend.Error
	if !errors.As(err, &be) {
		return UserMessage{Text: prefix + messageOr(err.Error())}
	}

	start, end := be.Detail("hora_inicio"), be.Detail("hora_fim")
	verb := op.verb()

	switch be.Code {
	case CodeBlockConflict:
		text := fmt.Sprintf("Não é possível %s: horário está bloqueado nesse intervalo.", verb)
		if start != "" && end != "" {
			text = fmt.Sprintf("Não é possível %s: horário está bloqueado das %s às %s.", verb, start, end)
		}
		return UserMessage{Text: text, Code: be.Code, Conflict: true}

	case CodeAppointmentConflict:
		text := fmt.Sprintf("Não é possível %s: já existe consulta neste horário.", verb)
		if start != "" && end != "" {
			text = fmt.Sprintf("Não é possível %s: já existe consulta das %s às %s", verb, start, end)
			if name := be.Detail("nome_paciente"); name != "" {
				text += fmt.Sprintf(" (%s).", name)
			} else {
				text += "."
			}
		}
		return UserMessage{Text: text, Code: be.Code, Conflict: true}
	}

	return UserMessage{Text: prefix + messageOr(be.Message), Code: be.Code}
}

func messageOr(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return defaultErrorMessage
	}
	return msg
}
