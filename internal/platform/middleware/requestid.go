package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header used to propagate request IDs between the
// browser, this server, and the clinic backend.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID assigns every request an ID, reusing the caller's X-Request-ID
// when present. The ID is stored on the echo context under "request_id" and
// on the request context so that outbound backend calls can forward it.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}

			c.Set("request_id", rid)
			c.SetRequest(req.WithContext(WithRequestID(req.Context(), rid)))
			c.Response().Header().Set(RequestIDHeader, rid)

			return next(c)
		}
	}
}

// WithRequestID returns a copy of ctx carrying the request ID.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}
