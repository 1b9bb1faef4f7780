package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prontio/agenda/internal/platform/middleware"
)

const (
	// DefaultTimeout matches the browser client the backend was built for.
	DefaultTimeout = 20 * time.Second

	// DefaultActionSeparator is what the Apps Script backend expects between
	// the resource and the verb ("Agenda_ListarDia").
	DefaultActionSeparator = "_"

	maxResponseBytes = 8 << 20
)

// User-facing messages for each failure kind.
const (
	msgTimeout       = "Tempo de resposta da API excedido. Tente novamente."
	msgUnreachable   = "Não foi possível se comunicar com o servidor."
	msgHTTPStatus    = "Erro de comunicação com o servidor (HTTP %d)."
	msgInvalidJSON   = "Resposta inválida do servidor (JSON esperado)."
	msgNoEnvelope    = "Resposta inesperada do servidor."
	msgAppDefault    = "Erro ao processar a requisição no servidor."
	msgMissingAction = "parâmetro \"action\" é obrigatório."
)

// HTTPOptions tunes an HTTPRequester.
type HTTPOptions struct {
	Timeout         time.Duration
	ActionSeparator string
	Client          *http.Client
}

// HTTPRequester speaks the {action, payload} / {success, data, errors}
// envelope over a single POST endpoint.
type HTTPRequester struct {
	baseURL   string
	separator string
	client    *http.Client
	logger    zerolog.Logger
}

type requestEnvelope struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

type responseEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Errors  []responseError `json:"errors"`
}

type responseError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// NewHTTPRequester creates a requester posting to baseURL.
func NewHTTPRequester(baseURL string, opts HTTPOptions, logger zerolog.Logger) *HTTPRequester {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ActionSeparator == "" {
		opts.ActionSeparator = DefaultActionSeparator
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPRequester{
		baseURL:   baseURL,
		separator: opts.ActionSeparator,
		client:    client,
		logger:    logger.With().Str("component", "backend").Logger(),
	}
}

// WireAction converts a logical action name ("Agenda.ListarDia") to the
// name the backend routes on.
func (r *HTTPRequester) WireAction(action string) string {
	if r.separator == "." {
		return action
	}
	return strings.ReplaceAll(action, ".", r.separator)
}

func (r *HTTPRequester) Request(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	if strings.TrimSpace(action) == "" {
		return nil, &Error{Kind: TransportFailure, Message: msgMissingAction}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	wire := r.WireAction(action)
	body, err := json.Marshal(requestEnvelope{Action: wire, Payload: payload})
	if err != nil {
		return nil, &Error{Kind: FormatFailure, Action: action, Message: msgNoEnvelope, Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: TransportFailure, Action: action, Message: msgUnreachable, Err: err}
	}
	// text/plain keeps the Apps Script deployment free of CORS preflights.
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	if rid := middleware.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(middleware.RequestIDHeader, rid)
	}

	r.logger.Debug().Str("action", wire).Msg("calling backend")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		msg := msgUnreachable
		if isTimeout(err) {
			msg = msgTimeout
		}
		r.logger.Error().Err(err).Str("action", wire).Dur("latency", time.Since(start)).Msg("backend unreachable")
		return nil, &Error{Kind: TransportFailure, Action: action, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error pages from the backend are usually HTML; don't try to decode.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		r.logger.Error().Str("action", wire).Int("status", resp.StatusCode).Msg("backend http error")
		return nil, &Error{
			Kind:    TransportFailure,
			Action:  action,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf(msgHTTPStatus, resp.StatusCode),
		}
	}

	var env responseEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		r.logger.Error().Err(err).Str("action", wire).Msg("backend reply is not JSON")
		return nil, &Error{Kind: FormatFailure, Action: action, Message: msgInvalidJSON, Err: err}
	}
	if env.Success == nil {
		r.logger.Error().Str("action", wire).Msg("backend reply without success field")
		return nil, &Error{Kind: FormatFailure, Action: action, Message: msgNoEnvelope}
	}

	if !*env.Success {
		appErr := &Error{Kind: ApplicationFailure, Action: action, Message: msgAppDefault}
		if len(env.Errors) > 0 {
			first := env.Errors[0]
			appErr.Code = first.Code
			appErr.Details = first.Details
			if first.Message != "" {
				appErr.Message = first.Message
			}
		}
		r.logger.Warn().Str("action", wire).Str("code", appErr.Code).Msg(appErr.Message)
		return nil, appErr
	}

	r.logger.Debug().Str("action", wire).Dur("latency", time.Since(start)).Msg("backend ok")

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
