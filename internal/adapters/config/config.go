// Package config loads tgkz settings from $HOME/.tgkz/config.toml and the
// TGKZ_* environment, and resolves them into the startup transport choice.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".tgkz"
	configFile = "config.toml"

	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreChain  = "chain"
	StoreFile   = "file"
	StorePass   = "pass"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	defaultBaseURL        = "http://localhost:8000"
	developmentSocketURL  = "ws://localhost:8000/ws"
	defaultTimeout        = 30 * time.Second
	defaultRetries        = 3
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultReconnectDelay = 5 * time.Second
)

const (
	keyMode           = "transport.mode"
	keyBaseURL        = "transport.base_url"
	keySocketURL      = "transport.socket_url"
	keyTimeout        = "transport.timeout"
	keyRetries        = "transport.retries"
	keyRetryBackoff   = "transport.retry_backoff"
	keyRateLimit      = "transport.rate_limit"
	keyHostSocket     = "transport.host_socket"
	keyReconnectDelay = "transport.reconnect_delay"
	keyStoreBackend   = "store.backend"
	keyStorePath      = "store.path"
	keyLogLevel       = "log.level"
	keyAppEnv         = "app.env"
	keyOAuthAuthURL   = "oauth.auth_url"
	keyOAuthClientID  = "oauth.client_id"
	keyOAuthListen    = "oauth.listen"
)

var configKeys = []string{
	keyMode, keyBaseURL, keySocketURL, keyTimeout, keyRetries, keyRetryBackoff,
	keyRateLimit, keyHostSocket, keyReconnectDelay, keyStoreBackend, keyStorePath,
	keyLogLevel, keyAppEnv, keyOAuthAuthURL, keyOAuthClientID, keyOAuthListen,
}

type Config struct {
	Transport TransportSection
	Store     StoreSection
	Log       LogSection
	App       AppSection
	OAuth     OAuthSection
	// Path is the config file location, whether or not it exists.
	Path string
}

type TransportSection struct {
	Mode           string
	BaseURL        string
	SocketURL      string
	Timeout        time.Duration
	Retries        int
	RetryBackoff   time.Duration
	RateLimit      float64
	HostSocket     string
	ReconnectDelay time.Duration
}

type StoreSection struct {
	Backend string
	Path    string
}

type LogSection struct {
	Level string
}

type AppSection struct {
	Env string
}

type OAuthSection struct {
	AuthURL  string
	ClientID string
	Listen   string
}

// DefaultPath returns $HOME/.tgkz/config.toml.
func DefaultPath(home string) string {
	return filepath.Join(home, configDir, configFile)
}

// Load reads the optional config file below home and overlays the
// environment. Environment values are read once, here.
func Load(v *viper.Viper, home string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	if home == "" {
		return Config{}, errors.New("home directory is empty")
	}

	setDefaults(v, home)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(filepath.Join(home, configDir))

	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Path: DefaultPath(home),
		Transport: TransportSection{
			Mode:           strings.TrimSpace(v.GetString(keyMode)),
			BaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString(keyBaseURL)), "/"),
			SocketURL:      strings.TrimSpace(v.GetString(keySocketURL)),
			Timeout:        v.GetDuration(keyTimeout),
			Retries:        v.GetInt(keyRetries),
			RetryBackoff:   v.GetDuration(keyRetryBackoff),
			RateLimit:      v.GetFloat64(keyRateLimit),
			HostSocket:     strings.TrimSpace(v.GetString(keyHostSocket)),
			ReconnectDelay: v.GetDuration(keyReconnectDelay),
		},
		Store: StoreSection{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString(keyStoreBackend))),
			Path:    expandHome(v.GetString(keyStorePath), home),
		},
		Log: LogSection{Level: strings.ToLower(strings.TrimSpace(v.GetString(keyLogLevel)))},
		App: AppSection{Env: strings.ToLower(strings.TrimSpace(v.GetString(keyAppEnv)))},
		OAuth: OAuthSection{
			AuthURL:  v.GetString(keyOAuthAuthURL),
			ClientID: v.GetString(keyOAuthClientID),
			Listen:   v.GetString(keyOAuthListen),
		},
	}
	if used := v.ConfigFileUsed(); used != "" {
		cfg.Path = used
	}
	if cfg.Transport.HostSocket == "" {
		cfg.Transport.HostSocket = defaultHostSocket(home)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Defaults(home string) Config {
	return Config{
		Path: DefaultPath(home),
		Transport: TransportSection{
			BaseURL:        defaultBaseURL,
			Timeout:        defaultTimeout,
			Retries:        defaultRetries,
			RetryBackoff:   defaultRetryBackoff,
			ReconnectDelay: defaultReconnectDelay,
		},
		Store: StoreSection{Backend: StoreChain, Path: filepath.Join(home, configDir, "store")},
		Log:   LogSection{Level: "warn"},
		App:   AppSection{Env: EnvProduction},
		OAuth: OAuthSection{Listen: "127.0.0.1:0"},
	}
}

func setDefaults(v *viper.Viper, home string) {
	d := Defaults(home)
	v.SetDefault(keyMode, "")
	v.SetDefault(keyBaseURL, d.Transport.BaseURL)
	v.SetDefault(keySocketURL, "")
	v.SetDefault(keyTimeout, d.Transport.Timeout)
	v.SetDefault(keyRetries, d.Transport.Retries)
	v.SetDefault(keyRetryBackoff, d.Transport.RetryBackoff)
	v.SetDefault(keyRateLimit, 0)
	v.SetDefault(keyHostSocket, "")
	v.SetDefault(keyReconnectDelay, d.Transport.ReconnectDelay)
	v.SetDefault(keyStoreBackend, d.Store.Backend)
	v.SetDefault(keyStorePath, d.Store.Path)
	v.SetDefault(keyLogLevel, d.Log.Level)
	v.SetDefault(keyAppEnv, d.App.Env)
	v.SetDefault(keyOAuthAuthURL, "")
	v.SetDefault(keyOAuthClientID, "")
	v.SetDefault(keyOAuthListen, d.OAuth.Listen)
}

// envAliases are the short names used by the desktop host when it launches
// the client. They are checked before the TGKZ_<SECTION>_<KEY> name.
var envAliases = map[string][]string{
	keyMode:       {"TGKZ_TRANSPORT"},
	keyBaseURL:    {"TGKZ_API_BASE_URL"},
	keyHostSocket: {"TGKZ_HOST_SOCKET"},
	keyAppEnv:     {"TGKZ_ENV"},
}

// bindEnv binds every key explicitly. AutomaticEnv is not used: with the
// TGKZ prefix it would read TGKZ_TRANSPORT as a value for the whole
// transport section and hide every transport.* key.
func bindEnv(v *viper.Viper) {
	for _, key := range configKeys {
		names := append([]string{}, envAliases[key]...)
		names = append(names, "TGKZ_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

func (c Config) Validate() error {
	if c.Transport.Mode != "" && !domain.TransportMode(c.Transport.Mode).Valid() {
		return fmt.Errorf("transport.mode %q: want %q or %q", c.Transport.Mode, domain.TransportNetwork, domain.TransportHostChannel)
	}
	if c.Transport.Retries < 0 {
		return fmt.Errorf("transport.retries must not be negative, got %d", c.Transport.Retries)
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("transport.rate_limit must not be negative, got %v", c.Transport.RateLimit)
	}
	switch c.Store.Backend {
	case StoreChain, StoreFile, StorePass, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not supported", c.Log.Level)
	}
	return nil
}

// Resolve picks the active transport. An explicit mode wins; otherwise the
// host channel is used when hostAvailable reports its socket.
func (c Config) Resolve(hostAvailable func(path string) bool) domain.TransportConfig {
	mode := domain.TransportMode(c.Transport.Mode)
	if mode == "" {
		mode = domain.TransportNetwork
		if hostAvailable != nil && hostAvailable(c.Transport.HostSocket) {
			mode = domain.TransportHostChannel
		}
	}

	return domain.TransportConfig{
		Mode:           mode,
		BaseURL:        c.Transport.BaseURL,
		SocketURL:      c.SocketURL(),
		HostSocket:     c.Transport.HostSocket,
		Timeout:        c.Transport.Timeout,
		Retries:        c.Transport.Retries,
		RetryBackoff:   c.Transport.RetryBackoff,
		RateLimit:      c.Transport.RateLimit,
		ReconnectDelay: c.Transport.ReconnectDelay,
	}
}

// SocketURL is the explicit socket_url, the local backend in development,
// or the base URL's origin with a ws/wss scheme and /ws path.
func (c Config) SocketURL() string {
	if c.Transport.SocketURL != "" {
		return c.Transport.SocketURL
	}
	if c.App.Env == EnvDevelopment {
		return developmentSocketURL
	}

	parsed, err := url.Parse(c.Transport.BaseURL)
	if err != nil || parsed.Host == "" {
		return developmentSocketURL
	}
	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: parsed.Host, Path: "/ws"}).String()
}

func defaultHostSocket(home string) string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "tgkz", "host.sock")
	}
	return filepath.Join(home, configDir, "host.sock")
}

func expandHome(path, home string) string {
	path = strings.TrimSpace(path)
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
