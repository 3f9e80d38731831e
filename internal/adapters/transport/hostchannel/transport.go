// Package hostchannel talks to the embedding host process over its unix
// socket using length-prefixed JSON frames.
package hostchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	Name           = "host-channel"
	defaultTimeout = 30 * time.Second
)

type Config struct {
	SocketPath string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Transport keeps one lazily dialed connection. Calls are serialized on it;
// a broken connection is dropped and redialled by the next call.
type Transport struct {
	path    string
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	newID func() string
}

var _ ports.Transport = (*Transport)(nil)

func New(cfg Config) *Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		path:    cfg.SocketPath,
		timeout: timeout,
		log:     logger.Named("hostchannel"),
		newID:   uuid.NewString,
	}
}

// Available reports whether a host socket exists at path.
func Available(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Send(ctx context.Context, command string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureConnLocked(ctx); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	_ = t.conn.SetDeadline(deadline)
	conn := t.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	id := t.newID()
	req := requestFrame{Type: frameTypeRequest, Command: command, CorrelationID: id, Payload: payload}
	if err := writeFrame(t.writer, req); err != nil {
		t.dropLocked()
		return nil, t.ioError(ctx, "write request", err)
	}

	raw, err := readFrame(t.reader)
	if err != nil {
		t.dropLocked()
		return nil, t.ioError(ctx, "read response", err)
	}
	_ = t.conn.SetDeadline(time.Time{})

	var resp responseFrame
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.dropLocked()
		return nil, fmt.Errorf("hostchannel: decode response: %w", err)
	}
	if resp.CorrelationID != id {
		// The stream is out of step; nothing read after this point can be trusted.
		t.dropLocked()
		return nil, fmt.Errorf("hostchannel: correlation mismatch: sent %s, got %s", id, resp.CorrelationID)
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "host rejected command"
		}
		return nil, fmt.Errorf("hostchannel: %s: %s", command, msg)
	}
	if len(resp.Body) == 0 {
		return json.RawMessage(`null`), nil
	}
	return resp.Body, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *Transport) ensureConnLocked(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	if t.path == "" {
		return fmt.Errorf("hostchannel: no socket configured: %w", domain.ErrTransportUnavailable)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("hostchannel: dial %s: %w: %w", t.path, domain.ErrTransportUnavailable, err)
		}
		return fmt.Errorf("hostchannel: dial %s: %w", t.path, err)
	}

	t.log.Debug("connected", zap.String("socket", t.path))
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.writer = bufio.NewWriter(conn)
	return nil
}

func (t *Transport) dropLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("hostchannel: %s: %w", op, ctxErr)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("hostchannel: %s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("hostchannel: %s: %w", op, err)
}
