package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	KeyAccessToken  = "tgkz/auth/access_token"
	KeyRefreshToken = "tgkz/auth/refresh_token"
	// KeyLegacyToken mirrors the access token for older readers.
	KeyLegacyToken = "tgkz/auth/token"
	KeyUser        = "tgkz/auth/user"
	KeySessionID   = "tgkz/auth/session_id"
	KeyRememberMe  = "tgkz/auth/remember_me"
)

const (
	RefreshInterval           = 55 * time.Minute
	RememberedRefreshInterval = 23 * time.Hour
	DefaultRefreshTimeout     = 30 * time.Second
)

var sessionKeys = []string{KeyAccessToken, KeyLegacyToken, KeyRefreshToken, KeyUser, KeySessionID, KeyRememberMe}

// SessionStatus is a read-only view of the session for display.
type SessionStatus struct {
	User          *domain.UserProfile
	Authenticated bool
	Remember      bool
	SessionID     string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	RefreshDueAt  time.Time
	Transport     domain.TransportMode
	SocketState   string
}

type AuthServiceConfig struct {
	API            ports.AuthAPI
	Store          ports.KeyValueStore
	Bus            *EventBus
	Clock          ports.Clock
	Logger         *zap.Logger
	Metrics        *Metrics
	RefreshTimeout time.Duration
}

// AuthService owns the authenticated session: it holds the tokens in memory,
// mirrors them into the key-value store, and keeps one refresh timer armed
// while a refresh token exists.
type AuthService struct {
	api            ports.AuthAPI
	store          ports.KeyValueStore
	bus            *EventBus
	clock          ports.Clock
	log            *zap.Logger
	metrics        *Metrics
	refreshTimeout time.Duration
	source         string

	state *State[domain.AuthState]

	// mu serializes session transitions together with their persistence and
	// guards the refresh timer.
	mu           sync.Mutex
	refreshTimer ports.Timer
	refreshDueAt time.Time
	closed       bool
	wg           sync.WaitGroup

	unsubscribe func()
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = NewEventBus(clock, logger)
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	s := &AuthService{
		api:            cfg.API,
		store:          cfg.Store,
		bus:            bus,
		clock:          clock,
		log:            logger.Named("auth"),
		metrics:        cfg.Metrics,
		refreshTimeout: timeout,
		state:          NewState(domain.AuthState{}),
		source:         "auth/" + uuid.NewString(),
	}
	s.unsubscribe = bus.Subscribe(func(ev domain.SessionEvent) {
		// Logout clears the session itself after publishing.
		if ev.Kind != domain.EventLogout || ev.Source == s.source {
			return
		}
		if err := s.ClearSession(context.Background()); err != nil {
			s.log.Warn("clear session on logout event", zap.Error(err))
		}
	})
	return s
}

func (s *AuthService) Bus() *EventBus {
	return s.bus
}

func (s *AuthService) State() domain.AuthState {
	return s.state.Get()
}

// SubscribeState registers fn for every state change. fn must not call back
// into session-mutating methods synchronously.
func (s *AuthService) SubscribeState(fn func(domain.AuthState)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

func (s *AuthService) AccessToken() string {
	return s.state.Get().AccessToken
}

func (s *AuthService) Status() SessionStatus {
	st := s.state.Get()

	s.mu.Lock()
	due := s.refreshDueAt
	s.mu.Unlock()

	status := SessionStatus{
		User:          st.User,
		Authenticated: st.Authenticated(),
		Remember:      st.Remember,
		SessionID:     st.SessionID,
		RefreshDueAt:  due,
	}
	if st.AccessToken != "" {
		status.IssuedAt, status.ExpiresAt = tokenLifetime(st.AccessToken)
	}
	return status
}

// Restore rebuilds the session from the store without writing back to it.
// A stored access token that fails local validation clears everything and
// emits session_expired.
func (s *AuthService) Restore(ctx context.Context) error {
	s.state.Update(func(st domain.AuthState) domain.AuthState {
		st.IsLoading = true
		return st
	})

	restored, err := s.loadStored(ctx)
	if err != nil {
		s.setLoading(false)
		return err
	}

	if restored.AccessToken == "" && restored.RefreshToken == "" {
		s.state.Set(domain.AuthState{})
		return nil
	}

	if restored.AccessToken != "" {
		if _, err := ValidateToken(restored.AccessToken, s.clock.Now()); err != nil {
			s.log.Info("stored access token rejected", zap.Error(err))
			if clearErr := s.ClearSession(ctx); clearErr != nil {
				s.log.Warn("clear rejected session", zap.Error(clearErr))
			}
			s.publish(domain.EventSessionExpired, nil)
			return nil
		}
	}

	s.mu.Lock()
	s.state.Set(restored)
	if restored.RefreshToken != "" {
		s.scheduleRefreshLocked(restored.Remember)
	}
	s.mu.Unlock()

	if restored.AccessToken != "" && restored.User == nil {
		s.fetchProfileInBackground()
	}
	return nil
}

func (s *AuthService) loadStored(ctx context.Context) (domain.AuthState, error) {
	var st domain.AuthState
	var err error

	if st.AccessToken, err = s.get(ctx, KeyAccessToken); err != nil {
		return st, err
	}
	if st.AccessToken == "" {
		if st.AccessToken, err = s.get(ctx, KeyLegacyToken); err != nil {
			return st, err
		}
	}
	if st.RefreshToken, err = s.get(ctx, KeyRefreshToken); err != nil {
		return st, err
	}
	if st.SessionID, err = s.get(ctx, KeySessionID); err != nil {
		return st, err
	}

	remember, err := s.get(ctx, KeyRememberMe)
	if err != nil {
		return st, err
	}
	st.Remember, _ = strconv.ParseBool(remember)

	userJSON, err := s.get(ctx, KeyUser)
	if err != nil {
		return st, err
	}
	if userJSON != "" {
		var user domain.UserProfile
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			s.log.Warn("dropping malformed stored user profile", zap.Error(err))
		} else {
			st.User = &user
		}
	}
	return st, nil
}

func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) error {
	s.setLoading(true)
	session, err := s.api.Login(ctx, req)
	if err != nil {
		s.setLoading(false)
		return fmt.Errorf("login: %w", err)
	}
	return s.startSession(ctx, session, req.Remember)
}

func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) error {
	s.setLoading(true)
	session, err := s.api.Register(ctx, req)
	if err != nil {
		s.setLoading(false)
		return fmt.Errorf("register: %w", err)
	}
	return s.startSession(ctx, session, req.Remember)
}

func (s *AuthService) OAuthLogin(ctx context.Context, req domain.OAuthRequest) error {
	s.setLoading(true)
	session, err := s.api.OAuthLogin(ctx, req)
	if err != nil {
		s.setLoading(false)
		return fmt.Errorf("oauth login with %s: %w", req.Provider, err)
	}
	return s.startSession(ctx, session, req.Remember)
}

func (s *AuthService) startSession(ctx context.Context, session domain.AuthSession, remember bool) error {
	next := domain.AuthState{
		User:         session.User,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		SessionID:    session.SessionID,
		Remember:     remember,
	}

	s.mu.Lock()
	s.state.Set(next)
	err := s.persistLocked(ctx, next)
	s.scheduleRefreshLocked(remember)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.publish(domain.EventLogin, session.User)
	if session.User == nil {
		s.fetchProfileInBackground()
	}
	return nil
}

// Refresh exchanges the refresh token for a new access token. A result that
// arrives after the session changed underneath it is discarded.
func (s *AuthService) Refresh(ctx context.Context) error {
	current := s.state.Get()
	if current.RefreshToken == "" {
		return domain.ErrNoRefreshToken
	}

	session, err := s.api.Refresh(ctx, current.RefreshToken)
	s.metrics.RefreshOutcome(err)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	s.mu.Lock()
	st := s.state.Get()
	if st.RefreshToken != current.RefreshToken {
		s.mu.Unlock()
		return fmt.Errorf("refresh session: %w", domain.ErrNotAuthenticated)
	}

	st.AccessToken = session.AccessToken
	if session.RefreshToken != "" {
		st.RefreshToken = session.RefreshToken
	}
	if session.User != nil {
		st.User = session.User
	}
	if session.SessionID != "" {
		st.SessionID = session.SessionID
	}
	s.state.Set(st)
	err = s.persistLocked(ctx, st)
	s.scheduleRefreshLocked(st.Remember)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persist refreshed session: %w", err)
	}
	s.publish(domain.EventTokenRefresh, nil)
	return nil
}

// Logout tells the backend on a best-effort basis, broadcasts logout, and
// clears the local session.
func (s *AuthService) Logout(ctx context.Context) error {
	if token := s.AccessToken(); token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.log.Debug("backend logout failed", zap.Error(err))
		}
	}
	s.publish(domain.EventLogout, nil)
	return s.ClearSession(ctx)
}

// ClearSession cancels the refresh timer, resets the state to anonymous, and
// deletes every stored session key. It is safe to call repeatedly.
func (s *AuthService) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopRefreshLocked()
	s.state.Set(domain.AuthState{})

	var errs error
	for _, key := range sessionKeys {
		if err := s.store.Delete(ctx, key); err != nil {
			errs = errors.Join(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errs
}

// Close stops the refresh timer and waits for background work.
func (s *AuthService) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopRefreshLocked()
	s.mu.Unlock()

	s.unsubscribe()
	s.wg.Wait()
}

func (s *AuthService) FetchProfile(ctx context.Context) (domain.UserProfile, error) {
	token, err := s.requireToken()
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, err := s.api.Me(ctx, token)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	if err := s.setUser(ctx, token, profile); err != nil {
		return profile, err
	}
	return profile, nil
}

// UpdateProfile sends patch and merges the returned and then the patched
// fields into the in-memory profile.
func (s *AuthService) UpdateProfile(ctx context.Context, patch map[string]any) (domain.UserProfile, error) {
	token, err := s.requireToken()
	if err != nil {
		return domain.UserProfile{}, err
	}
	returned, err := s.api.UpdateMe(ctx, token, patch)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}

	merged, err := mergeProfile(s.state.Get().User, patch, returned)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("merge profile: %w", err)
	}
	if err := s.setUser(ctx, token, merged); err != nil {
		return merged, err
	}
	return merged, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	token, err := s.requireToken()
	if err != nil {
		return err
	}
	if err := s.api.ChangePassword(ctx, token, currentPassword, newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := s.api.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := s.api.ResetPassword(ctx, resetToken, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.verifyEmail(ctx, domain.VerifyEmailRequest{Token: token})
}

func (s *AuthService) VerifyEmailCode(ctx context.Context, email, code string) error {
	return s.verifyEmail(ctx, domain.VerifyEmailRequest{Email: email, Code: code})
}

func (s *AuthService) verifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error {
	if err := s.api.VerifyEmail(ctx, req); err != nil {
		return fmt.Errorf("verify email: %w", err)
	}

	st := s.state.Get()
	if st.User == nil || st.User.EmailVerified {
		return nil
	}
	if req.Email != "" && req.Email != st.User.Email {
		return nil
	}
	verified := *st.User
	verified.EmailVerified = true
	return s.setUser(ctx, st.AccessToken, verified)
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	if err := s.api.ResendVerification(ctx, email); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	return nil
}

func (s *AuthService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	token, err := s.requireToken()
	if err != nil {
		return nil, err
	}
	devices, err := s.api.ListDevices(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

func (s *AuthService) RevokeDevice(ctx context.Context, deviceID string) error {
	token, err := s.requireToken()
	if err != nil {
		return err
	}
	if err := s.api.RevokeDevice(ctx, token, deviceID); err != nil {
		return fmt.Errorf("revoke device %s: %w", deviceID, err)
	}
	return nil
}

// RevokeOtherSessions ends every session except the current one and returns
// how many were revoked.
func (s *AuthService) RevokeOtherSessions(ctx context.Context) (int, error) {
	token, err := s.requireToken()
	if err != nil {
		return 0, err
	}
	n, err := s.api.RevokeOtherSessions(ctx, token, s.state.Get().SessionID)
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}
	return n, nil
}

func (s *AuthService) UsageStats(ctx context.Context) (json.RawMessage, error) {
	token, err := s.requireToken()
	if err != nil {
		return nil, err
	}
	raw, err := s.api.UsageStats(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	return raw, nil
}

func (s *AuthService) ActivateLicense(ctx context.Context, licenseKey string) (json.RawMessage, error) {
	token, err := s.requireToken()
	if err != nil {
		return nil, err
	}
	raw, err := s.api.ActivateLicense(ctx, token, licenseKey)
	if err != nil {
		return nil, fmt.Errorf("activate license: %w", err)
	}
	return raw, nil
}

func (s *AuthService) InviteRewards(ctx context.Context) (json.RawMessage, error) {
	token, err := s.requireToken()
	if err != nil {
		return nil, err
	}
	raw, err := s.api.InviteRewards(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invite rewards: %w", err)
	}
	return raw, nil
}

func (s *AuthService) requireToken() (string, error) {
	token := s.AccessToken()
	if token == "" {
		return "", domain.ErrNotAuthenticated
	}
	return token, nil
}

// setUser stores profile if the session that requested it is still current.
func (s *AuthService) setUser(ctx context.Context, token string, profile domain.UserProfile) error {
	s.mu.Lock()
	st := s.state.Get()
	if st.AccessToken != token {
		s.mu.Unlock()
		return nil
	}
	st.User = &profile
	s.state.Set(st)
	err := s.persistLocked(ctx, st)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	s.publish(domain.EventUserUpdate, &profile)
	return nil
}

func (s *AuthService) persistLocked(ctx context.Context, st domain.AuthState) error {
	var userJSON string
	if st.User != nil {
		data, err := json.Marshal(st.User)
		if err != nil {
			return fmt.Errorf("encode user profile: %w", err)
		}
		userJSON = string(data)
	}
	remember := ""
	if st.Remember {
		remember = "true"
	}

	values := []struct{ key, value string }{
		{KeyAccessToken, st.AccessToken},
		{KeyLegacyToken, st.AccessToken},
		{KeyRefreshToken, st.RefreshToken},
		{KeyUser, userJSON},
		{KeySessionID, st.SessionID},
		{KeyRememberMe, remember},
	}

	var errs error
	for _, kv := range values {
		var err error
		if kv.value == "" {
			err = s.store.Delete(ctx, kv.key)
		} else {
			err = s.store.Put(ctx, kv.key, kv.value)
		}
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("write %s: %w", kv.key, err))
		}
	}
	return errs
}

func (s *AuthService) scheduleRefreshLocked(remember bool) {
	s.stopRefreshLocked()
	if s.closed {
		return
	}
	delay := RefreshInterval
	if remember {
		delay = RememberedRefreshInterval
	}
	s.refreshDueAt = s.clock.Now().Add(delay)
	s.refreshTimer = s.clock.AfterFunc(delay, s.onRefreshTimer)
}

func (s *AuthService) stopRefreshLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.refreshDueAt = time.Time{}
}

func (s *AuthService) onRefreshTimer() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.refreshTimer = nil
	s.refreshDueAt = time.Time{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("scheduled token refresh failed", zap.Error(err))
	}
}

func (s *AuthService) fetchProfileInBackground() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()
		if _, err := s.FetchProfile(ctx); err != nil {
			s.log.Warn("background profile fetch failed", zap.Error(err))
		}
	}()
}

func (s *AuthService) publish(kind domain.SessionEventKind, payload any) {
	s.bus.Publish(domain.SessionEvent{Kind: kind, Source: s.source, Payload: payload})
}

func (s *AuthService) setLoading(loading bool) {
	s.state.Update(func(st domain.AuthState) domain.AuthState {
		st.IsLoading = loading
		return st
	})
}

func (s *AuthService) get(ctx context.Context, key string) (string, error) {
	value, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// mergeProfile layers the non-empty fields of returned and then patch over
// base.
func mergeProfile(base *domain.UserProfile, patch map[string]any, returned domain.UserProfile) (domain.UserProfile, error) {
	fields := map[string]any{}
	if base != nil {
		if err := overlayJSON(fields, base); err != nil {
			return domain.UserProfile{}, err
		}
	}

	returnedFields := map[string]any{}
	if err := overlayJSON(returnedFields, returned); err != nil {
		return domain.UserProfile{}, err
	}
	for k, v := range returnedFields {
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			if typed == "" {
				continue
			}
		case bool:
			if !typed {
				continue
			}
		}
		fields[k] = v
	}
	for k, v := range patch {
		fields[k] = v
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return domain.UserProfile{}, err
	}
	var merged domain.UserProfile
	if err := json.Unmarshal(data, &merged); err != nil {
		return domain.UserProfile{}, err
	}
	return merged, nil
}

func overlayJSON(dst map[string]any, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &dst)
}
