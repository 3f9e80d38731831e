package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports/mocks"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports/portstest"
)

func newTestTransport(t *testing.T, name string) *mocks.MockTransport {
	t.Helper()
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().Name().Return(name).Maybe()
	return tr
}

func TestGatewayExecuteWrapsPlainReply(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "accounts.list", json.RawMessage(`{"page":1}`)).
		Return(json.RawMessage(`{"items":[1,2]}`), nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	result, err := gw.Execute(context.Background(), "accounts.list", map[string]int{"page": 1})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"items":[1,2]}`, string(result.Data))
	assert.Empty(t, result.Raw)
}

func TestGatewayExecutePassesThroughEnvelope(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "host-channel")
	reply := json.RawMessage(`{"success":false,"error":"account locked","message":"try later"}`)
	tr.EXPECT().Send(mockAnyContext(), "accounts.login", mock.Anything).Return(reply, nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	result, err := gw.Execute(context.Background(), "accounts.login", map[string]string{"phone": "+1"})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "account locked", result.Error)
	assert.Equal(t, "try later", result.Message)
	assert.Equal(t, reply, result.Raw)
}

func TestGatewayExecuteNilPayloadSendsEmptyObject(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "ping", json.RawMessage(`{}`)).
		Return(json.RawMessage(`{"success":true,"data":"pong"}`), nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	result, err := gw.Execute(context.Background(), "ping", nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
	var data string
	require.NoError(t, result.Decode(&data))
	assert.Equal(t, "pong", data)
}

func TestGatewayExecuteTransportFailureBecomesResult(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "stats", mock.Anything).Return(nil, errors.New("status 502")).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	result, err := gw.Execute(context.Background(), "stats", nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "status 502")
}

func TestGatewayExecuteUnavailableTransportIsError(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "host-channel")
	tr.EXPECT().Send(mockAnyContext(), "stats", mock.Anything).
		Return(nil, domain.ErrTransportUnavailable).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	_, err := gw.Execute(context.Background(), "stats", nil)

	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
}

func TestGatewayDeduplicatesInFlightCommands(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	started := make(chan struct{})
	release := make(chan struct{})
	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "stats", json.RawMessage(`{"range":"day"}`)).
		RunAndReturn(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`{"sent":7}`), nil
		}).Once()

	gw := NewGateway(GatewayConfig{Transport: tr, Metrics: metrics})

	const callers = 4
	results := make([]domain.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = gw.Execute(context.Background(), "stats", map[string]string{"range": "day"})
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success)
		assert.JSONEq(t, `{"sent":7}`, string(results[i].Data))
	}
	assert.Equal(t, float64(callers), testutil.ToFloat64(metrics.dedupShared))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.transportRequests.WithLabelValues("network", "ok")))
}

func TestGatewayCallerCancellationLeavesSharedCallRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	sendCtxErr := make(chan error, 1)
	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "stats", mock.Anything).
		RunAndReturn(func(ctx context.Context, _ string, _ json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-release
			sendCtxErr <- ctx.Err()
			return json.RawMessage(`{}`), nil
		}).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := gw.Execute(ctx, "stats", nil)
		done <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.NoError(t, <-sendCtxErr)
}

func TestGatewayExecuteCachedServesWithinTTL(t *testing.T) {
	t.Parallel()

	clock := portstest.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	metrics := NewMetrics(prometheus.NewRegistry())
	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "groups.list", mock.Anything).
		Return(json.RawMessage(`{"success":true,"data":["a"]}`), nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr, Clock: clock, Metrics: metrics})
	ctx := context.Background()

	first, err := gw.ExecuteCached(ctx, "groups.list", nil, time.Minute)
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, string(first.Data))

	clock.Advance(30 * time.Second)
	second, err := gw.ExecuteCached(ctx, "groups.list", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.JSONEq(t, `["a"]`, string(second.Data))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))

	tr.EXPECT().Send(mockAnyContext(), "groups.list", mock.Anything).
		Return(json.RawMessage(`{"success":true,"data":["a","b"]}`), nil).Once()

	clock.Advance(30 * time.Second)
	third, err := gw.ExecuteCached(ctx, "groups.list", nil, time.Minute)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(third.Data))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.cacheMisses))
}

func TestGatewayExecuteCachedDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "groups.list", mock.Anything).
		Return(json.RawMessage(`{"success":false,"error":"busy"}`), nil).Twice()

	gw := NewGateway(GatewayConfig{Transport: tr})
	for i := 0; i < 2; i++ {
		result, err := gw.ExecuteCached(context.Background(), "groups.list", nil, time.Hour)
		require.NoError(t, err)
		assert.False(t, result.Success)
	}
}

func TestGatewayClearCacheByPattern(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), mock.Anything, mock.Anything).
		Return(json.RawMessage(`{"ok":true}`), nil).Times(3)

	gw := NewGateway(GatewayConfig{Transport: tr})
	ctx := context.Background()
	for _, cmd := range []string{"groups.list", "groups.members", "accounts.list"} {
		_, err := gw.ExecuteCached(ctx, cmd, nil, time.Hour)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, gw.ClearCache("groups."))
	assert.Equal(t, 1, gw.ClearCache(""))
	assert.Equal(t, 0, gw.ClearCache(""))
}

func TestGatewaySendOverSocket(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	sock := newTestTransport(t, "socket")
	sock.EXPECT().Send(mockAnyContext(), "monitor.start", json.RawMessage(`{}`)).
		Return(json.RawMessage(`{"request_id":"r1","success":true,"data":{"running":true}}`), nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr, Socket: sock})
	result, err := gw.SendOverSocket(context.Background(), "monitor.start", nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"running":true}`, string(result.Data))
}

func TestGatewaySendOverSocketWithoutSocketUsesTransport(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, "network")
	tr.EXPECT().Send(mockAnyContext(), "monitor.start", mock.Anything).
		Return(json.RawMessage(`{"running":true}`), nil).Once()

	gw := NewGateway(GatewayConfig{Transport: tr})
	result, err := gw.SendOverSocket(context.Background(), "monitor.start", nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestNormalizeReplyErrorObject(t *testing.T) {
	t.Parallel()

	result := normalizeReply(json.RawMessage(`{"success":false,"error":{"code":"E1"}}`))
	assert.False(t, result.Success)
	assert.JSONEq(t, `{"code":"E1"}`, result.Error)

	plain := normalizeReply(json.RawMessage(`[1,2]`))
	assert.True(t, plain.Success)
	assert.Equal(t, `[1,2]`, string(plain.Data))
}

func mockAnyContext() interface{} {
	return mock.Anything
}
