package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 256 << 10

// BodyLimit caps request bodies at limit ("64K", "1M" or a byte count).
// A declared length over the cap is refused before the handler runs; an
// undeclared body is cut off while it is read and the handler's error is
// replaced with 413.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.ContentLength > max {
				return payloadTooLarge(max)
			}
			if req.Body != nil && req.Body != http.NoBody {
				req.Body = http.MaxBytesReader(c.Response(), req.Body, max)
			}

			err := next(c)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return payloadTooLarge(max)
			}
			return err
		}
	}
}

func payloadTooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("corpo da requisição excede o limite de %d bytes", limit))
}

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"KB", 10}, {"K", 10},
	{"MB", 20}, {"M", 20},
}

// parseLimit returns defaultBodyLimit for empty or malformed input.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, shift = strings.TrimSuffix(s, u.suffix), u.shift
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n << shift
}
