package domain

import "errors"

var (
	ErrKeyNotFound          = errors.New("key not found")
	ErrStoreUnavailable     = errors.New("store backend unavailable")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrSocketTimeout        = errors.New("socket request timed out")
	ErrSocketClosed         = errors.New("socket closed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrNoRefreshToken       = errors.New("no refresh token")
)
