package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SessionHeader identifies the agenda view session a request belongs to.
const SessionHeader = "X-Agenda-Session"

func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			rid, _ := c.Get("request_id").(string)
			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
				// Let echo write the error response first so the logged status
				// matches what the client sees.
				c.Error(err)
				err = nil
			}
			if sid := req.Header.Get(SessionHeader); sid != "" {
				evt = evt.Str("session_id", sid)
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
