package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/authapi"
	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/config"
	chainstore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/chain"
	filestore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/file"
	memorystore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/memory"
	passstore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/pass"
	sqlitestore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/sqlite"
	statusadapter "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/render/status"
	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/transport/hostchannel"
	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/transport/network"
	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/transport/socket"
	"github.com/victor2025PH/tgkz2026-sub003/internal/application"
	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

type app struct {
	home      string
	cfg       config.Config
	transport domain.TransportConfig
	log       *zap.Logger

	store      ports.KeyValueStore
	closeStore func() error

	registry *prometheus.Registry
	metrics  *application.Metrics
	bus      *application.EventBus
	auth     *application.AuthService
	gateway  *application.Gateway
	// socket is nil in host-channel mode.
	socket   *socket.Manager
	host     *hostchannel.Transport
	network  *network.Transport

	statusRenderer func(application.SessionStatus, statusadapter.RenderOptions) (string, error)
	oauthTimeout   time.Duration
	now            func() time.Time
	spinner        bool

	closeOnce sync.Once
	closeErr  error
}

func wireApp() (*app, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(viper.New(), home)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("wire %s store: %w", cfg.Store.Backend, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := application.NewMetrics(registry)
	clock := ports.SystemClock{}
	bus := application.NewEventBus(clock, logger)

	api, err := authapi.New(authapi.Config{
		BaseURL:        cfg.Transport.BaseURL,
		RequestTimeout: cfg.Transport.Timeout,
		Logger:         logger,
	})
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("wire auth api: %w", err)
	}

	authService := application.NewAuthService(application.AuthServiceConfig{
		API:     api,
		Store:   store,
		Bus:     bus,
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	})

	resolved := cfg.Resolve(hostchannel.Available)
	httpTransport := network.New(network.Config{
		BaseURL:      resolved.BaseURL,
		Timeout:      resolved.Timeout,
		Retries:      resolved.Retries,
		RetryBackoff: resolved.RetryBackoff,
		RateLimit:    resolved.RateLimit,
		Tokens:       authService,
		Logger:       logger,
	})

	a := &app{
		home:           home,
		cfg:            cfg,
		transport:      resolved,
		log:            logger,
		store:          store,
		closeStore:     closeStore,
		registry:       registry,
		metrics:        metrics,
		bus:            bus,
		auth:           authService,
		network:        httpTransport,
		statusRenderer: statusadapter.Render,
		oauthTimeout:   5 * time.Minute,
		now:            time.Now,
	}

	gatewayCfg := application.GatewayConfig{
		Transport: httpTransport,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}
	switch resolved.Mode {
	case domain.TransportHostChannel:
		a.host = hostchannel.New(hostchannel.Config{
			SocketPath: resolved.HostSocket,
			Timeout:    resolved.Timeout,
			Logger:     logger,
		})
		gatewayCfg.Transport = a.host
	default:
		a.socket = socket.NewManager(socket.Config{
			URL:            resolved.SocketURL,
			Timeout:        resolved.Timeout,
			ReconnectDelay: resolved.ReconnectDelay,
			Fallback:       httpTransport,
			Tokens:         authService,
			Clock:          clock,
			Logger:         logger,
			Metrics:        metrics,
		})
		gatewayCfg.Socket = a.socket
	}
	a.gateway = application.NewGateway(gatewayCfg)

	logger.Debug("wired client",
		zap.String("transport", string(resolved.Mode)),
		zap.String("store", cfg.Store.Backend),
		zap.String("config", cfg.Path))

	return a, nil
}

func (a *app) restore(ctx context.Context) error {
	if err := a.auth.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// startSocket connects the persistent socket when the network path is in
// use. A failed dial is only logged: Send falls back to HTTP meanwhile.
func (a *app) startSocket(ctx context.Context) {
	if a.socket == nil {
		return
	}
	if err := a.socket.Start(ctx); err != nil {
		a.log.Info("socket not connected, using http until it is", zap.Error(err))
	}
}

func (a *app) socketState() string {
	if a.socket == nil {
		return ""
	}
	return a.socket.State().String()
}

func (a *app) close() error {
	a.closeOnce.Do(func() {
		a.auth.Close()
		var errs []error
		if a.socket != nil {
			errs = append(errs, a.socket.Close())
		}
		if a.host != nil {
			errs = append(errs, a.host.Close())
		}
		errs = append(errs, a.closeStore())
		_ = a.log.Sync()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openStore(section config.StoreSection) (ports.KeyValueStore, func() error, error) {
	noClose := func() error { return nil }

	switch section.Backend {
	case config.StoreFile:
		return filestore.NewStore(section.Path), noClose, nil
	case config.StorePass:
		return passstore.New(), noClose, nil
	case config.StoreMemory:
		return memorystore.NewStore(), noClose, nil
	case config.StoreSQLite:
		store, err := sqlitestore.Open(section.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := chainstore.NewPassWithFileFallback(section.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, noClose, nil
	}
}
