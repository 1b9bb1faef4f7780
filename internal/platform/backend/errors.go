package backend

import (
	"fmt"
	"strconv"
)

// ErrorKind classifies why a backend request failed.
type ErrorKind int

const (
	// TransportFailure covers network errors, timeouts and non-2xx replies.
	TransportFailure ErrorKind = iota + 1
	// FormatFailure means the reply was not JSON or lacked the envelope.
	FormatFailure
	// ApplicationFailure means the backend answered success=false.
	ApplicationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case FormatFailure:
		return "format"
	case ApplicationFailure:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the single failure shape returned by a Requester. Message is
// always user-presentable; Code and Details are only set for application
// failures that carry them (e.g. AGENDA_CONFLITO_CONSULTA).
type Error struct {
	Kind    ErrorKind
	Action  string
	Code    string
	Message string
	Details map[string]interface{}
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns details[key] rendered as a string, or "" when absent.
func (e *Error) Detail(key string) string {
	if e == nil || e.Details == nil {
		return ""
	}
	switch v := e.Details[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
