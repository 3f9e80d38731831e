// Package chain layers a primary key-value backend over a fallback one.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	filestore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/file"
	passstore "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/kv/pass"
	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

var (
	errNilPrimaryStore  = errors.New("primary store is nil")
	errNilFallbackStore = errors.New("fallback store is nil")
	errPrimarySkipped   = errors.New("primary backend reported unavailable earlier")
)

type Store struct {
	primary  ports.KeyValueStore
	fallback ports.KeyValueStore

	// Set once the primary returns domain.ErrStoreUnavailable. Later calls
	// go to the fallback only.
	primaryGone atomic.Bool
}

var _ ports.KeyValueStore = (*Store)(nil)

func New(primary, fallback ports.KeyValueStore) (*Store, error) {
	switch {
	case primary == nil:
		return nil, errNilPrimaryStore
	case fallback == nil:
		return nil, errNilFallbackStore
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

// NewPassWithFileFallback prefers the pass password store and falls back to
// private files under fileRoot when pass is missing or failing.
func NewPassWithFileFallback(fileRoot string) (*Store, error) {
	return New(passstore.New(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.onPrimary(func(p ports.KeyValueStore) error {
		return p.Put(ctx, key, value)
	})
	if err == nil || interrupted(err) {
		return err
	}

	if fallbackErr := s.fallback.Put(ctx, key, value); fallbackErr != nil {
		return bothFailed("put", err, fallbackErr)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.onPrimary(func(p ports.KeyValueStore) error {
		var getErr error
		value, getErr = p.Get(ctx, key)
		return getErr
	})
	if err == nil {
		return value, nil
	}
	if interrupted(err) {
		return "", err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr != nil {
		return "", bothFailed("get", err, fallbackErr)
	}
	return value, nil
}

// Delete removes the key from both backends. A value left in the fallback
// would be served again by Get, so a fallback failure is always reported.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.onPrimary(func(p ports.KeyValueStore) error {
		return p.Delete(ctx, key)
	})
	if interrupted(err) {
		return err
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	switch {
	case fallbackErr == nil:
		return nil
	case err != nil:
		return bothFailed("delete", err, fallbackErr)
	default:
		return fmt.Errorf("fallback backend delete failed: %w", fallbackErr)
	}
}

func (s *Store) onPrimary(op func(ports.KeyValueStore) error) error {
	if s.primaryGone.Load() {
		return errPrimarySkipped
	}
	err := op(s.primary)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		s.primaryGone.Store(true)
	}
	return err
}

func bothFailed(op string, primaryErr, fallbackErr error) error {
	return fmt.Errorf("primary backend %s failed: %w; fallback backend %s failed: %w", op, primaryErr, op, fallbackErr)
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
