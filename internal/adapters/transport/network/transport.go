// Package network sends commands to the backend's HTTP command endpoint.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	Name           = "network"
	CommandPath    = "/api/command"
	defaultTimeout = 30 * time.Second
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
	maxBodyBytes   = 16 << 20
)

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("command endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("command endpoint returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries is the number of extra attempts one call may make after the
	// first. Every call starts with the full budget.
	Retries      int
	RetryBackoff time.Duration
	// RateLimit caps outgoing requests per second; zero disables pacing.
	RateLimit float64
	Tokens    ports.TokenSource
	Client    *http.Client
	Logger    *zap.Logger
}

type Transport struct {
	baseURL string
	timeout time.Duration
	retries int
	backoff time.Duration
	tokens  ports.TokenSource
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

var _ ports.Transport = (*Transport)(nil)

func New(cfg Config) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.RetryBackoff,
		tokens:  cfg.Tokens,
		client:  cfg.Client,
		log:     cfg.Logger,
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	if t.retries < 0 {
		t.retries = 0
	}
	if t.backoff <= 0 {
		t.backoff = defaultBackoff
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	t.log = t.log.Named("network")
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return t
}

func (t *Transport) Name() string { return Name }

type commandRequest struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

func (t *Transport) Send(ctx context.Context, command string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	body, err := json.Marshal(commandRequest{Command: command, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode command %q: %w", command, err)
	}

	delay := t.backoff
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			t.log.Warn("retrying command",
				zap.String("command", command),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, maxBackoff)
		}

		reply, err := t.attempt(ctx, body)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	if t.retries > 0 {
		return nil, fmt.Errorf("command %q failed after %d attempts: %w", command, t.retries+1, lastErr)
	}
	return nil, fmt.Errorf("command %q: %w", command, lastErr)
}

func (t *Transport) attempt(ctx context.Context, body []byte) (json.RawMessage, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+CommandPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.tokens != nil {
		if token := t.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read command response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			t.log.Warn("command endpoint rejected credentials")
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`null`), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("command endpoint returned invalid JSON")
	}
	return json.RawMessage(data), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
