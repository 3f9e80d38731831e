package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"nhooyr.io/websocket"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
	portmocks "github.com/victor2025PH/tgkz2026-sub003/internal/ports/mocks"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports/portstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type inbound struct {
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id"`
}

// backend is a scripted WebSocket peer.
type backend struct {
	server *httptest.Server

	mu      sync.Mutex
	auth    []string
	conns   []*websocket.Conn
	accepts int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

func (b *backend) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.conns = append(b.conns, conn)
	b.accepts++
	b.mu.Unlock()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Command {
		case "silent":
		case "push-then-reply":
			_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"event":"monitoring.tick"}`))
			fallthrough
		default:
			out, _ := json.Marshal(map[string]any{
				"request_id": msg.RequestID,
				"success":    true,
				"data":       msg.Payload,
			})
			_ = conn.Write(ctx, websocket.MessageText, out)
		}
	}
}

func (b *backend) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.Close(websocket.StatusGoingAway, "restart")
	}
	b.conns = nil
}

func (b *backend) acceptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepts
}

func startManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(cfg)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSendCorrelatesReply(t *testing.T) {
	b := newBackend(t)
	m := startManager(t, Config{
		URL:    b.url(),
		Tokens: ports.TokenSourceFunc(func() string { return "tok" }),
		Clock:  portstest.NewFakeClock(time.Unix(0, 0)),
	})

	assert.True(t, m.Connected())
	assert.Equal(t, "connected", m.State().String())

	reply, err := m.Send(context.Background(), "get-accounts", json.RawMessage(`{"page":1}`))
	require.NoError(t, err)

	var got struct {
		RequestID string          `json:"request_id"`
		Data      json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(reply, &got))
	assert.NotEmpty(t, got.RequestID)
	assert.JSONEq(t, `{"page":1}`, string(got.Data))
	assert.Zero(t, m.pendingCount())

	b.mu.Lock()
	assert.Equal(t, []string{"Bearer tok"}, b.auth)
	b.mu.Unlock()
}

func TestSendTimeoutRemovesPendingAndKeepsSocket(t *testing.T) {
	b := newBackend(t)
	clock := portstest.NewFakeClock(time.Unix(0, 0))
	m := startManager(t, Config{
		URL:     b.url(),
		Timeout: 5 * time.Second,
		Clock:   clock,
	})

	errs := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "silent", nil)
		errs <- err
	}()

	require.Eventually(t, func() bool {
		return m.pendingCount() == 1 && len(clock.Pending()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.Pending())

	clock.Advance(5*time.Second - time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("send returned before its deadline: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	var err error
	select {
	case err = <-errs:
	case <-time.After(time.Second):
		t.Fatal("send did not time out")
	}
	require.ErrorIs(t, err, domain.ErrSocketTimeout)
	assert.Zero(t, m.pendingCount())
	assert.True(t, m.Connected())

	_, err = m.Send(context.Background(), "get-settings", nil)
	require.NoError(t, err)
}

func TestSendFallsBackWhenDisconnected(t *testing.T) {
	fallback := portmocks.NewMockTransport(t)
	fallback.EXPECT().
		Send(mock.Anything, "get-accounts", json.RawMessage(`{}`)).
		Return(json.RawMessage(`{"success":true,"data":[]}`), nil).
		Once()

	m := NewManager(Config{URL: "ws://127.0.0.1:1/ws", Fallback: fallback, Clock: portstest.NewFakeClock(time.Unix(0, 0))})
	t.Cleanup(func() { _ = m.Close() })

	reply, err := m.Send(context.Background(), "get-accounts", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[]}`, string(reply))
}

func TestSendWithoutFallbackIsUnavailable(t *testing.T) {
	m := NewManager(Config{URL: "ws://127.0.0.1:1/ws"})
	t.Cleanup(func() { _ = m.Close() })

	_, err := m.Send(context.Background(), "get-accounts", nil)
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
}

func TestSubscribersSeeMessagesInOrderAndMalformedAreDropped(t *testing.T) {
	b := newBackend(t)
	m := startManager(t, Config{URL: b.url(), Clock: portstest.NewFakeClock(time.Unix(0, 0))})

	var mu sync.Mutex
	var seen []string
	m.Subscribe(func(json.RawMessage) { panic("boom") })
	unsubscribe := m.Subscribe(func(msg json.RawMessage) {
		mu.Lock()
		seen = append(seen, string(msg))
		mu.Unlock()
	})

	_, err := m.Send(context.Background(), "push-then-reply", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 2)
	assert.JSONEq(t, `{"event":"monitoring.tick"}`, seen[0])
	assert.Contains(t, seen[1], `"request_id"`)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	_, err = m.Send(context.Background(), "get-settings", nil)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestRepeatedClosesScheduleOneReconnect(t *testing.T) {
	clock := portstest.NewFakeClock(time.Unix(0, 0))
	m := NewManager(Config{URL: "ws://127.0.0.1:1/ws", Clock: clock})
	t.Cleanup(func() { _ = m.Close() })

	m.handleClose(nil)
	m.handleClose(nil)
	m.handleClose(nil)

	assert.Equal(t, []time.Duration{DefaultReconnectDelay}, clock.Pending())
}

func TestReconnectsAfterServerDrop(t *testing.T) {
	b := newBackend(t)
	clock := portstest.NewFakeClock(time.Unix(0, 0))
	m := startManager(t, Config{URL: b.url(), Clock: clock})
	_, err := m.Send(context.Background(), "get-settings", nil)
	require.NoError(t, err)

	b.dropAll()
	require.Eventually(t, func() bool { return len(clock.Pending()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, m.Connected())

	clock.Advance(DefaultReconnectDelay - time.Millisecond)
	assert.Equal(t, 1, b.acceptCount())

	clock.Advance(time.Millisecond)
	assert.True(t, m.Connected())
	require.Eventually(t, func() bool { return b.acceptCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, clock.Pending())
}

func TestCloseStopsReconnects(t *testing.T) {
	clock := portstest.NewFakeClock(time.Unix(0, 0))
	m := NewManager(Config{URL: "ws://127.0.0.1:1/ws", Clock: clock, DialTimeout: time.Second})

	require.Error(t, m.Start(context.Background()))
	assert.Len(t, clock.Pending(), 1)

	require.NoError(t, m.Close())
	assert.Empty(t, clock.Pending())
	require.ErrorIs(t, m.Start(context.Background()), domain.ErrSocketClosed)
}
