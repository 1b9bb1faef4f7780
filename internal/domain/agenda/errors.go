package agenda

import "errors"

var (
	ErrInvalidStatus        = errors.New("status inválido")
	ErrInvalidDate          = errors.New("data inválida, use AAAA-MM-DD")
	ErrInvalidView          = errors.New("visão inválida, use \"dia\" ou \"semana\"")
	ErrMissingID            = errors.New("ID_Agenda não informado")
	ErrIncompleteForm       = errors.New("Preencha pelo menos data, hora inicial e duração.")
	ErrIncompleteBlock      = errors.New("Preencha pelo menos data (acima), hora inicial e duração.")
	ErrConfirmationRequired = errors.New("remoção de bloqueio exige confirmação do usuário")
	ErrTransitionNotAllowed = errors.New("mudança de status não permitida")
	ErrSessionNotFound      = errors.New("sessão da agenda não encontrada")
	ErrReloadFailed         = errors.New("operação concluída, mas a agenda não pôde ser recarregada")
)

// ActionError is returned when the backend rejects a mutation. Message is
// the classified text the view shows; Err is the backend failure.
type ActionError struct {
	Op      Operation
	Message UserMessage
	Err     error
}

func (e *ActionError) Error() string {
	return e.Message.Text
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// LoadError is returned when a day or week cannot be fetched. The cached
// schedule is left as it was.
type LoadError struct {
	View ViewMode
	Err  error
}

func (e *LoadError) Error() string {
	prefix := "Não foi possível carregar a agenda do dia: "
	if e.View == ViewWeek {
		prefix = "Não foi possível carregar a semana: "
	}
	return prefix + messageOr(e.Err.Error())
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
