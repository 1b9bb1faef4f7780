// Package backend is the single request/response contract between the agenda
// core and the clinic backend.
package backend

import (
	"context"
	"encoding/json"
)

// Requester sends one action to the backend. It returns the unwrapped
// success payload (nil when the backend sent no data) or an *Error.
type Requester interface {
	Request(ctx context.Context, action string, payload interface{}) (json.RawMessage, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, action string, payload interface{}) (json.RawMessage, error)

func (f RequesterFunc) Request(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	return f(ctx, action, payload)
}
