package domain

import "time"

type SessionEventKind string

const (
	EventLogin          SessionEventKind = "login"
	EventLogout         SessionEventKind = "logout"
	EventSessionExpired SessionEventKind = "session_expired"
	EventTokenRefresh   SessionEventKind = "token_refresh"
	EventUserUpdate     SessionEventKind = "user_update"
)

type SessionEvent struct {
	Kind SessionEventKind
	At   time.Time
	// Source names the publisher. Events from outside the auth service leave
	// it empty.
	Source  string
	Payload any
}
