package agenda

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prontio/agenda/internal/platform/middleware"
	"github.com/prontio/agenda/pkg/pagination"
)

type Handler struct {
	sessions *SessionStore
	ctrl     *Controller
	history  TransitionReader
}

// NewHandler creates the agenda HTTP handler. history may be nil when no
// journal database is configured.
func NewHandler(sessions *SessionStore, ctrl *Controller, history TransitionReader) *Handler {
	return &Handler{sessions: sessions, ctrl: ctrl, history: history}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.CreateSession)

	g.GET("/session", h.GetSession)
	g.PUT("/session", h.UpdateSession)
	g.GET("/config", h.GetConfig)
	g.GET("/grid", h.GetGrid)
	g.GET("/statuses", h.ListStatuses)
	g.GET("/day", h.GetDay)
	g.GET("/week", h.GetWeek)
	g.GET("/inflight", h.ListInFlight)

	g.POST("/appointments", h.CreateAppointment)
	g.PUT("/appointments/:id", h.UpdateAppointment)
	g.POST("/appointments/:id/status", h.ChangeStatus)
	g.GET("/appointments/:id/history", h.History)
	g.POST("/blocks", h.CreateBlock)
	g.DELETE("/blocks/:id", h.RemoveBlock)
}

type sessionResponse struct {
	ID   uuid.UUID `json:"session_id"`
	Date string    `json:"data"`
	View ViewMode  `json:"visao"`
}

func newSessionResponse(s *Session) sessionResponse {
	return sessionResponse{ID: s.ID, Date: s.Date(), View: s.View()}
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(middleware.SessionHeader))
	if raw == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cabeçalho "+middleware.SessionHeader+" ausente")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "sessão inválida")
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, httpError(err)
	}
	return s, nil
}

func (h *Handler) CreateSession(c echo.Context) error {
	s := h.sessions.Create()
	c.Response().Header().Set(middleware.SessionHeader, s.ID.String())
	return c.JSON(http.StatusCreated, newSessionResponse(s))
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(s))
}

type sessionUpdate struct {
	Date *string   `json:"data"`
	View *ViewMode `json:"visao"`
}

func (h *Handler) UpdateSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var body sessionUpdate
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}
	if body.Date != nil {
		if err := s.SetDate(strings.TrimSpace(*body.Date)); err != nil {
			return httpError(err)
		}
	}
	if body.View != nil {
		if err := s.SetView(*body.View); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusOK, newSessionResponse(s))
}

func (h *Handler) GetConfig(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.Config.EnsureLoaded(c.Request().Context())
	return c.JSON(http.StatusOK, s.Config.Config())
}

func (h *Handler) GetGrid(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	s.Config.EnsureLoaded(c.Request().Context())
	cfg := s.Config.Config()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"config": cfg,
		"grade":  BuildGrid(cfg),
	})
}

type statusOption struct {
	Status  Status   `json:"status"`
	Class   string   `json:"status_class"`
	Targets []Status `json:"permitidos"`
}

func (h *Handler) ListStatuses(c echo.Context) error {
	table := h.ctrl.Table()
	out := make([]statusOption, 0, len(Statuses))
	for _, from := range Statuses {
		opt := statusOption{Status: from, Class: StatusClass(from), Targets: []Status{}}
		for _, to := range Statuses {
			if table.Allows(from, to) {
				opt.Targets = append(opt.Targets, to)
			}
		}
		out = append(out, opt)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tabela":   table.Name(),
		"statuses": out,
	})
}

func (h *Handler) GetDay(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var f DayFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &f); err != nil {
		return bindError(err)
	}
	refresh, err := queryBool(c, "refresh")
	if err != nil {
		return err
	}

	view, err := h.ctrl.DayView(c.Request().Context(), s, strings.TrimSpace(c.QueryParam("data")), f, refresh)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetWeek(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	refresh, err := queryBool(c, "refresh")
	if err != nil {
		return err
	}

	week, err := h.ctrl.WeekView(c.Request().Context(), s, strings.TrimSpace(c.QueryParam("data_referencia")), refresh)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, week)
}

func (h *Handler) ListInFlight(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pendentes": s.InFlight.Pending(),
	})
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var form StatusForm
	if err := c.Bind(&form); err != nil {
		return bindError(err)
	}
	status, err := form.Status()
	if err != nil {
		return httpError(err)
	}
	err = h.ctrl.ChangeStatus(c.Request().Context(), s, c.Param("id"), status)
	return mutationResult(c, err)
}

type removeBlockRequest struct {
	Confirmed bool `json:"confirmado" query:"confirmado"`
}

func (h *Handler) RemoveBlock(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var body removeBlockRequest
	if err := c.Bind(&body); err != nil {
		return bindError(err)
	}
	err = h.ctrl.RemoveBlock(c.Request().Context(), s, c.Param("id"), body.Confirmed)
	return mutationResult(c, err)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var form AppointmentForm
	if err := c.Bind(&form); err != nil {
		return bindError(err)
	}
	err = h.ctrl.Create(c.Request().Context(), s, form)
	return mutationResult(c, err)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var form AppointmentForm
	if err := c.Bind(&form); err != nil {
		return bindError(err)
	}
	form.ID = c.Param("id")
	err = h.ctrl.Update(c.Request().Context(), s, form)
	return mutationResult(c, err)
}

func (h *Handler) CreateBlock(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var form BlockForm
	if err := c.Bind(&form); err != nil {
		return bindError(err)
	}
	err = h.ctrl.Block(c.Request().Context(), s, form)
	return mutationResult(c, err)
}

func (h *Handler) History(c echo.Context) error {
	if h.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "histórico de transições não configurado")
	}
	p := pagination.FromContext(c)
	items, total, err := h.history.ListByAppointment(c.Request().Context(), c.Param("id"), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*TransitionRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

// mutationResult writes the response of a settled mutation. A mutation the
// backend accepted is a success even when the follow-up reload failed; the
// view is told to reload by hand.
func mutationResult(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
	case errors.Is(err, ErrReloadFailed):
		var le *LoadError
		msg := ErrReloadFailed.Error()
		if errors.As(err, &le) {
			msg = le.Error()
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "aviso": msg})
	default:
		return httpError(err)
	}
}

// httpError maps agenda errors to HTTP errors.
func httpError(err error) error {
	var ae *ActionError
	if errors.As(err, &ae) {
		status := http.StatusBadGateway
		if ae.Message.Conflict {
			status = http.StatusConflict
		}
		return echo.NewHTTPError(status, ae.Message)
	}
	var le *LoadError
	if errors.As(err, &le) {
		return echo.NewHTTPError(http.StatusBadGateway, le.Error())
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConfirmationRequired):
		return echo.NewHTTPError(http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, ErrTransitionNotAllowed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrIncompleteForm):
		return echo.NewHTTPError(http.StatusBadRequest, ErrIncompleteForm.Error())
	case errors.Is(err, ErrIncompleteBlock):
		return echo.NewHTTPError(http.StatusBadRequest, ErrIncompleteBlock.Error())
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidView),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrMissingID):
		return bindError(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// bindError keeps err as the internal cause so outer middleware can still
// recognise it (an oversized body, for one).
func bindError(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
}

func queryBool(c echo.Context, name string) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, name+" inválido")
	}
	return b, nil
}
