package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

type watchLine struct {
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Event   string          `json:"event,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

func newWatchCmd(app *app) *cobra.Command {
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live socket messages and session events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.socket == nil {
				return fmt.Errorf("watch needs the network transport, current transport is %s", app.transport.Mode)
			}

			ctx := cmd.Context()
			if metricsListen != "" {
				stop, addr, err := serveMetrics(app, metricsListen)
				if err != nil {
					return err
				}
				defer stop()
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "metrics on http://%s/metrics\n", addr)
			}

			out := &lineWriter{w: cmd.OutOrStdout()}
			unsubscribeSocket := app.socket.Subscribe(func(msg json.RawMessage) {
				out.write(watchLine{Kind: "message", At: app.now(), Message: msg})
			})
			defer unsubscribeSocket()
			unsubscribeBus := app.bus.Subscribe(func(ev domain.SessionEvent) {
				out.write(watchLine{Kind: "session", At: ev.At, Event: string(ev.Kind)})
			})
			defer unsubscribeBus()

			app.startSocket(ctx)
			<-ctx.Done()
			return out.err()
		},
	}

	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")

	return cmd
}

// lineWriter serializes JSON lines from the socket reader and the event bus.
type lineWriter struct {
	mu       sync.Mutex
	w        io.Writer
	firstErr error
}

func (l *lineWriter) write(v watchLine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.firstErr != nil {
		return
	}
	if err := json.NewEncoder(l.w).Encode(v); err != nil {
		l.firstErr = err
	}
}

func (l *lineWriter) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstErr
}

func serveMetrics(app *app, listen string) (stop func(), addr string, err error) {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, "", fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, listener.Addr().String(), nil
}
