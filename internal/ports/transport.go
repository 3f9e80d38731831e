package ports

import (
	"context"
	"encoding/json"
)

// Transport carries one named command with its JSON payload to the backend and
// returns the raw reply.
type Transport interface {
	Name() string
	Send(ctx context.Context, command string, payload json.RawMessage) (json.RawMessage, error)
}

// TokenSource yields the current access token, or "" when anonymous.
type TokenSource interface {
	AccessToken() string
}

type TokenSourceFunc func() string

func (f TokenSourceFunc) AccessToken() string {
	return f()
}
