package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout(t *testing.T) {
	errBackend := errors.New("backend indisponível")

	tests := []struct {
		name     string
		timeout  time.Duration
		handler  echo.HandlerFunc
		wantCode int
		wantErr  error
	}{
		{
			name:    "fast handler",
			timeout: time.Second,
			handler: func(c echo.Context) error {
				if _, ok := c.Request().Context().Deadline(); !ok {
					return errors.New("no deadline")
				}
				return nil
			},
		},
		{
			name:    "handler error before the deadline",
			timeout: time.Second,
			handler: func(c echo.Context) error { return errBackend },
			wantErr: errBackend,
		},
		{
			name:    "deadline passes",
			timeout: 20 * time.Millisecond,
			handler: func(c echo.Context) error {
				<-c.Request().Context().Done()
				return errBackend
			},
			wantCode: http.StatusGatewayTimeout,
		},
		{
			name:    "response already written",
			timeout: 20 * time.Millisecond,
			handler: func(c echo.Context) error {
				<-c.Request().Context().Done()
				return c.NoContent(http.StatusOK)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

			err := RequestTimeout(tt.timeout)(tt.handler)(c)
			switch {
			case tt.wantCode != 0:
				he, ok := err.(*echo.HTTPError)
				if !ok || he.Code != tt.wantCode {
					t.Fatalf("expected %d, got %v", tt.wantCode, err)
				}
			case err != tt.wantErr:
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestTimeout_ClientGone(t *testing.T) {
	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())
	cancel()

	err := RequestTimeout(time.Second)(func(c echo.Context) error {
		return c.Request().Context().Err()
	})(c)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
