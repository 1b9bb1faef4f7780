package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var errGatewayTimeout = echo.NewHTTPError(http.StatusGatewayTimeout, "tempo de resposta excedido")

// RequestTimeout puts a deadline on the request context. The handler runs
// inline and is expected to honour ctx; when it returns after the deadline
// without having written a response, the client gets 504 in place of
// whatever error the handler produced.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			parent := c.Request().Context()
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed || parent.Err() != nil {
				return err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errGatewayTimeout
			}
			return err
		}
	}
}
