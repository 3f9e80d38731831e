package domain

import "time"

type TransportMode string

const (
	TransportHostChannel TransportMode = "host-channel"
	TransportNetwork     TransportMode = "network"
)

func (m TransportMode) Valid() bool {
	switch m {
	case TransportHostChannel, TransportNetwork:
		return true
	default:
		return false
	}
}

// TransportConfig is resolved once at startup and never changes afterwards.
type TransportConfig struct {
	Mode           TransportMode
	BaseURL        string
	SocketURL      string
	HostSocket     string
	Timeout        time.Duration
	Retries        int
	RetryBackoff   time.Duration
	RateLimit      float64
	ReconnectDelay time.Duration
}
