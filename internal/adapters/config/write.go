package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

var ErrConfigExists = errors.New("config file already exists")

type fileSchema struct {
	Transport transportSchema `toml:"transport"`
	Store     storeSchema     `toml:"store"`
	Log       logSchema       `toml:"log"`
	App       appSchema       `toml:"app"`
	OAuth     oauthSchema     `toml:"oauth"`
}

type transportSchema struct {
	Mode           string  `toml:"mode"`
	BaseURL        string  `toml:"base_url"`
	SocketURL      string  `toml:"socket_url"`
	Timeout        string  `toml:"timeout"`
	Retries        int     `toml:"retries"`
	RetryBackoff   string  `toml:"retry_backoff"`
	RateLimit      float64 `toml:"rate_limit"`
	HostSocket     string  `toml:"host_socket"`
	ReconnectDelay string  `toml:"reconnect_delay"`
}

type storeSchema struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type logSchema struct {
	Level string `toml:"level"`
}

type appSchema struct {
	Env string `toml:"env"`
}

type oauthSchema struct {
	AuthURL  string `toml:"auth_url"`
	ClientID string `toml:"client_id"`
	Listen   string `toml:"listen"`
}

func toSchema(c Config) fileSchema {
	return fileSchema{
		Transport: transportSchema{
			Mode:           c.Transport.Mode,
			BaseURL:        c.Transport.BaseURL,
			SocketURL:      c.Transport.SocketURL,
			Timeout:        c.Transport.Timeout.String(),
			Retries:        c.Transport.Retries,
			RetryBackoff:   c.Transport.RetryBackoff.String(),
			RateLimit:      c.Transport.RateLimit,
			HostSocket:     c.Transport.HostSocket,
			ReconnectDelay: c.Transport.ReconnectDelay.String(),
		},
		Store: storeSchema{Backend: c.Store.Backend, Path: c.Store.Path},
		Log:   logSchema{Level: c.Log.Level},
		App:   appSchema{Env: c.App.Env},
		OAuth: oauthSchema{AuthURL: c.OAuth.AuthURL, ClientID: c.OAuth.ClientID, Listen: c.OAuth.Listen},
	}
}

// Encode renders c as TOML in the config file layout.
func Encode(c Config) ([]byte, error) {
	data, err := toml.Marshal(toSchema(c))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// Write stores c at path through a temp file and rename. An existing file is
// only replaced when overwrite is set.
func Write(path string, c Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
	}

	data, err := Encode(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	cleanup = false

	return nil
}
