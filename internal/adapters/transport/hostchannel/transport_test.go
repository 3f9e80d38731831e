package hostchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

// socketPath returns a short path; unix socket paths are capped near 108 bytes.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "tgkz")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "host.sock")
}

// serveHost answers every request frame with the reply built by handle.
func serveHost(t *testing.T, path string, handle func(req requestFrame) responseFrame) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				w := bufio.NewWriter(conn)
				for {
					raw, err := readFrame(r)
					if err != nil {
						return
					}
					var req requestFrame
					if err := json.Unmarshal(raw, &req); err != nil {
						return
					}
					if err := writeFrame(w, handle(req)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func TestSendRoundTrip(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	serveHost(t, path, func(req requestFrame) responseFrame {
		assert.Equal(t, frameTypeRequest, req.Type)
		assert.Equal(t, "get-accounts", req.Command)
		assert.JSONEq(t, `{"group":"vip"}`, string(req.Payload))
		return responseFrame{Type: frameTypeResponse, CorrelationID: req.CorrelationID, OK: true, Body: json.RawMessage(`{"success":true,"data":[1,2]}`)}
	})

	tr := New(Config{SocketPath: path, Timeout: time.Second})
	t.Cleanup(func() { _ = tr.Close() })

	assert.True(t, Available(path))

	for i := 0; i < 2; i++ {
		body, err := tr.Send(context.Background(), "get-accounts", json.RawMessage(`{"group":"vip"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"data":[1,2]}`, string(body))
	}
}

func TestSendReportsHostError(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	serveHost(t, path, func(req requestFrame) responseFrame {
		return responseFrame{Type: frameTypeResponse, CorrelationID: req.CorrelationID, OK: false, Error: "account locked"}
	})

	tr := New(Config{SocketPath: path, Timeout: time.Second})
	t.Cleanup(func() { _ = tr.Close() })

	_, err := tr.Send(context.Background(), "login-account", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "account locked")
	assert.NotErrorIs(t, err, domain.ErrTransportUnavailable)
}

func TestSendRejectsCorrelationMismatch(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	serveHost(t, path, func(req requestFrame) responseFrame {
		return responseFrame{Type: frameTypeResponse, CorrelationID: "someone-else", OK: true}
	})

	tr := New(Config{SocketPath: path, Timeout: time.Second})
	t.Cleanup(func() { _ = tr.Close() })

	_, err := tr.Send(context.Background(), "get-settings", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "correlation mismatch")
}

func TestSendWithoutHostIsUnavailable(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	assert.False(t, Available(path))

	tr := New(Config{SocketPath: path, Timeout: time.Second})
	_, err := tr.Send(context.Background(), "get-initial-state", nil)
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)

	_, err = New(Config{}).Send(context.Background(), "get-initial-state", nil)
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
}

func TestSendTimesOutWhenHostIsSilent(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadString(0)
	}()

	tr := New(Config{SocketPath: path, Timeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = tr.Close() })

	_, err = tr.Send(context.Background(), "get-monitoring-status", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
