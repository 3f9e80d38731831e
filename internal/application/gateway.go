package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

type GatewayConfig struct {
	Transport ports.Transport
	// Socket is optional. SendOverSocket falls back to Execute without it.
	Socket  ports.Transport
	Clock   ports.Clock
	Logger  *zap.Logger
	Metrics *Metrics
	// Timeout bounds one shared transport call. Zero leaves it to the transport.
	Timeout time.Duration
}

// Gateway is the single entry point for backend commands. Identical commands
// in flight share one transport call, and every reply is normalized into a
// domain.Result.
type Gateway struct {
	transport ports.Transport
	socket    ports.Transport
	cache     *ResponseCache
	group     singleflight.Group
	log       *zap.Logger
	metrics   *Metrics
	timeout   time.Duration
}

func NewGateway(cfg GatewayConfig) *Gateway {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		transport: cfg.Transport,
		socket:    cfg.Socket,
		cache:     NewResponseCache(clock.Now),
		log:       logger.Named("gateway"),
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
	}
}

func (g *Gateway) TransportName() string {
	return g.transport.Name()
}

// Execute sends command through the active transport. The returned error is
// non-nil only when no transport can be reached or ctx ends first; every other
// failure comes back as a Result with Success false.
func (g *Gateway) Execute(ctx context.Context, command string, payload any) (domain.Result, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return domain.Failure(err.Error()), nil
	}
	return g.execute(ctx, g.transport, dedupKey(command, raw), command, raw)
}

// ExecuteCached serves a successful result younger than ttl from the cache,
// otherwise executes and caches the outcome when it succeeds.
func (g *Gateway) ExecuteCached(ctx context.Context, command string, payload any, ttl time.Duration) (domain.Result, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return domain.Failure(err.Error()), nil
	}
	key := dedupKey(command, raw)

	if data, ok := g.cache.Get(key, ttl); ok {
		g.metrics.CacheHit()
		return domain.Result{Success: true, Data: data}, nil
	}
	g.metrics.CacheMiss()

	result, err := g.execute(ctx, g.transport, key, command, raw)
	if err != nil || !result.Success {
		return result, err
	}

	if len(result.Data) > 0 && !json.Valid(result.Data) {
		g.log.Warn("dropping malformed payload instead of caching it", zap.String("command", command))
		return result, nil
	}
	g.cache.Put(key, result.Data)
	return result, nil
}

// SendOverSocket routes command over the persistent socket. The socket itself
// falls back to the gateway transport while disconnected.
func (g *Gateway) SendOverSocket(ctx context.Context, command string, payload any) (domain.Result, error) {
	if g.socket == nil {
		return g.Execute(ctx, command, payload)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return domain.Failure(err.Error()), nil
	}
	return g.execute(ctx, g.socket, g.socket.Name()+"|"+dedupKey(command, raw), command, raw)
}

func (g *Gateway) ClearCache(pattern string) int {
	return g.cache.Clear(pattern)
}

func (g *Gateway) execute(ctx context.Context, transport ports.Transport, key, command string, payload json.RawMessage) (domain.Result, error) {
	ch := g.group.DoChan(key, func() (any, error) {
		// The shared call outlives any single caller's cancellation.
		callCtx := context.WithoutCancel(ctx)
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, g.timeout)
			defer cancel()
		}

		reply, err := transport.Send(callCtx, command, payload)
		g.metrics.TransportRequest(transport.Name(), err)
		if err != nil {
			return nil, err
		}
		return normalizeReply(reply), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.metrics.DedupShared()
		}
		if res.Err != nil {
			if errors.Is(res.Err, domain.ErrTransportUnavailable) {
				return domain.Result{}, res.Err
			}
			g.log.Debug("command failed",
				zap.String("command", command),
				zap.String("transport", transport.Name()),
				zap.Error(res.Err))
			return domain.Failure(res.Err.Error()), nil
		}
		return res.Val.(domain.Result), nil
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode command payload: %w", err)
	}
	if string(raw) == "null" {
		return json.RawMessage("{}"), nil
	}
	return raw, nil
}

func dedupKey(command string, payload json.RawMessage) string {
	return command + ":" + string(payload)
}

type replyEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// normalizeReply passes through replies that already carry a success field
// and wraps anything else as successful data.
func normalizeReply(reply json.RawMessage) domain.Result {
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env replyEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Success != nil {
			return domain.Result{
				Success: *env.Success,
				Data:    env.Data,
				Error:   errorText(env.Error),
				Message: env.Message,
				Raw:     reply,
			}
		}
	}
	return domain.Result{Success: true, Data: reply}
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
