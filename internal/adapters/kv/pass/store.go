// Package pass stores keys in the user's pass(1) password store.
package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	defaultBinary = "pass"
	notInStore    = "is not in the password store"
)

var ErrUnavailable = fmt.Errorf("pass command: %w", domain.ErrStoreUnavailable)

type runner func(ctx context.Context, stdin string, args ...string) (stdout, stderr string, err error)

type Store struct {
	run runner
}

var _ ports.KeyValueStore = (*Store)(nil)

type Option func(*options)

type options struct {
	binary string
}

// WithBinary runs name instead of pass from PATH.
func WithBinary(name string) Option {
	return func(o *options) { o.binary = name }
}

func New(opts ...Option) *Store {
	o := options{binary: defaultBinary}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{run: execRunner(o)}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	_, err := s.call(ctx, "put", key, value+"\n", "insert", "--multiline", "--force", key)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	out, err := s.call(ctx, "get", key, "", "show", key)
	if errors.Is(err, errMissing) {
		return "", fmt.Errorf("pass key %q: %w", key, domain.ErrKeyNotFound)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\r\n"), nil
}

// Delete succeeds when the key is already absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.call(ctx, "delete", key, "", "rm", "--force", key)
	if errors.Is(err, errMissing) {
		return nil
	}
	return err
}

var errMissing = errors.New("entry missing")

func (s *Store) call(ctx context.Context, op, key, stdin string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out, stderr, err := s.run(ctx, stdin, args...)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "", err
	case strings.Contains(stderr, notInStore):
		return "", errMissing
	case stderr == "":
		return "", fmt.Errorf("pass %s %q: %w", op, key, err)
	default:
		return "", fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
	}
}

func execRunner(o options) runner {
	return func(ctx context.Context, stdin string, args ...string) (string, string, error) {
		path, err := exec.LookPath(o.binary)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return "", "", ErrUnavailable
			}
			return "", "", fmt.Errorf("locate %s: %w", o.binary, err)
		}

		cmd := exec.CommandContext(ctx, path, args...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err = cmd.Run()
		return stdout.String(), strings.TrimSpace(stderr.String()), err
	}
}
