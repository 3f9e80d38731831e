// Package socket keeps the persistent backend WebSocket alive and carries
// correlated command round trips over it.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	Name = "socket"

	DefaultReconnectDelay = 5 * time.Second
	DefaultTimeout        = 30 * time.Second
	DefaultDialTimeout    = 15 * time.Second

	maxMessageBytes = 32 << 20
	writeTimeout    = 10 * time.Second
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Metrics receives socket lifecycle counts. Nil disables them.
type Metrics interface {
	SocketReconnectScheduled()
	SocketMessageDropped()
}

type Config struct {
	URL            string
	Timeout        time.Duration
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// Fallback serves Send while the socket is down.
	Fallback ports.Transport
	Tokens   ports.TokenSource
	Clock    ports.Clock
	Logger   *zap.Logger
	Metrics  Metrics
}

type reply struct {
	data json.RawMessage
	err  error
}

type subscription struct {
	id int
	fn func(json.RawMessage)
}

type Manager struct {
	url            string
	timeout        time.Duration
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	fallback       ports.Transport
	tokens         ports.TokenSource
	clock          ports.Clock
	log            *zap.Logger
	metrics        Metrics
	newID          func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	reconnect ports.Timer
	pending   map[string]chan reply
	started   bool
	closed    bool
	stopWatch func() bool

	subsMu sync.Mutex
	subs   []subscription
	nextID int
}

var _ ports.Transport = (*Manager)(nil)

func NewManager(cfg Config) *Manager {
	m := &Manager{
		url:            cfg.URL,
		timeout:        cfg.Timeout,
		reconnectDelay: cfg.ReconnectDelay,
		dialTimeout:    cfg.DialTimeout,
		fallback:       cfg.Fallback,
		tokens:         cfg.Tokens,
		clock:          cfg.Clock,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		newID:          uuid.NewString,
		pending:        make(map[string]chan reply),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.reconnectDelay <= 0 {
		m.reconnectDelay = DefaultReconnectDelay
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = DefaultDialTimeout
	}
	if m.clock == nil {
		m.clock = ports.SystemClock{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("socket")
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

func (m *Manager) Name() string { return Name }

// Start dials the socket. A failed dial is returned but the manager keeps
// retrying in the background until Close or until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrSocketClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stopWatch = context.AfterFunc(ctx, func() { _ = m.Close() })
	m.mu.Unlock()

	return m.connect()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == Connected
}

// Subscribe registers fn for every valid JSON message, correlated replies
// included. Handlers run on the read goroutine in arrival order.
func (m *Manager) Subscribe(fn func(json.RawMessage)) (unsubscribe func()) {
	m.subsMu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

type outbound struct {
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id"`
}

// Send runs one correlated round trip over the socket, or hands the command to
// the fallback transport while the socket is not open.
func (m *Manager) Send(ctx context.Context, command string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	m.mu.Lock()
	conn := m.conn
	if m.state != Connected || conn == nil {
		m.mu.Unlock()
		if m.fallback == nil {
			return nil, fmt.Errorf("socket not connected: %w", domain.ErrTransportUnavailable)
		}
		return m.fallback.Send(ctx, command, payload)
	}
	id := m.newID()
	ch := make(chan reply, 1)
	m.pending[id] = ch
	m.mu.Unlock()
	defer m.removePending(id)

	frame, err := json.Marshal(outbound{Command: command, Payload: payload, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("encode socket frame: %w", err)
	}

	writeCtx, cancelWrite := context.WithTimeout(m.ctx, writeTimeout)
	err = conn.Write(writeCtx, websocket.MessageText, frame)
	cancelWrite()
	if err != nil {
		return nil, fmt.Errorf("socket write %q: %w", command, err)
	}

	expired := make(chan struct{})
	timer := m.clock.AfterFunc(m.timeout, func() { close(expired) })
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, fmt.Errorf("%s after %s: %w", command, m.timeout, domain.ErrSocketTimeout)
	}
}

// Close tears the socket down for good. Pending round trips fail with
// domain.ErrSocketClosed and no reconnect is scheduled afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.stopWatch != nil {
		m.stopWatch()
	}
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.failPendingLocked(domain.ErrSocketClosed)
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	m.cancel()
	m.wg.Wait()
	return err
}

func (m *Manager) connect() error {
	m.mu.Lock()
	if m.closed || m.state != Disconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = Connecting
	m.mu.Unlock()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if m.tokens != nil {
		if token := m.tokens.AccessToken(); token != "" {
			opts.HTTPHeader.Set("Authorization", "Bearer "+token)
		}
	}

	dialCtx, cancel := context.WithTimeout(m.ctx, m.dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, m.url, opts)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.log.Info("socket dial failed", zap.String("url", m.url), zap.Error(err))
		m.handleClose(nil)
		return fmt.Errorf("dial %s: %w", m.url, err)
	}
	conn.SetReadLimit(maxMessageBytes)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return domain.ErrSocketClosed
	}
	m.conn = conn
	m.state = Connected
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("socket connected", zap.String("url", m.url))
	go m.readLoop(conn)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		_, data, err := conn.Read(m.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				m.log.Info("socket closed", zap.Error(err))
			}
			_ = conn.CloseNow()
			m.handleClose(conn)
			return
		}
		m.handleMessage(data)
	}
}

func (m *Manager) handleMessage(data []byte) {
	if !json.Valid(data) {
		m.log.Warn("dropping malformed socket message", zap.Int("bytes", len(data)))
		if m.metrics != nil {
			m.metrics.SocketMessageDropped()
		}
		return
	}

	var envelope struct {
		RequestID string `json:"request_id"`
	}
	// Non-object messages have no correlation id; they still go to subscribers.
	_ = json.Unmarshal(data, &envelope)

	// Subscribers see a reply before its sender is woken.
	m.publish(json.RawMessage(data))

	if envelope.RequestID != "" {
		m.mu.Lock()
		ch, ok := m.pending[envelope.RequestID]
		if ok {
			delete(m.pending, envelope.RequestID)
		}
		m.mu.Unlock()
		if ok {
			ch <- reply{data: json.RawMessage(data)}
		}
	}
}

func (m *Manager) publish(msg json.RawMessage) {
	m.subsMu.Lock()
	subs := append([]subscription(nil), m.subs...)
	m.subsMu.Unlock()

	for _, s := range subs {
		m.deliver(s.fn, msg)
	}
}

func (m *Manager) deliver(fn func(json.RawMessage), msg json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("socket subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(msg)
}

// handleClose marks the socket down and arms the reconnect timer unless one is
// already pending. conn is the connection that failed, or nil for a failed dial.
func (m *Manager) handleClose(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn != nil && m.conn != conn {
		return
	}
	m.conn = nil
	m.state = Disconnected
	m.failPendingLocked(domain.ErrSocketClosed)

	if m.closed || m.reconnect != nil {
		return
	}
	m.log.Debug("reconnect scheduled", zap.Duration("delay", m.reconnectDelay))
	m.reconnect = m.clock.AfterFunc(m.reconnectDelay, m.fireReconnect)
	if m.metrics != nil {
		m.metrics.SocketReconnectScheduled()
	}
}

func (m *Manager) fireReconnect() {
	m.mu.Lock()
	m.reconnect = nil
	m.mu.Unlock()
	_ = m.connect()
}

func (m *Manager) removePending(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) failPendingLocked(err error) {
	for id, ch := range m.pending {
		ch <- reply{err: err}
		delete(m.pending, id)
	}
}
