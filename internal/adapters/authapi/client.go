// Package authapi is the HTTP client for the backend's versioned auth
// endpoints under /api/v1/auth.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
	"github.com/victor2025PH/tgkz2026-sub003/internal/ports"
)

const (
	BasePath         = "/api/v1/auth/"
	maxResponseBytes = 1 << 20
	defaultTimeout   = 30 * time.Second
)

type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("auth api %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("auth api %d: %s", e.StatusCode, msg)
}

func (e *StatusError) Is(target error) bool {
	return target == domain.ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type Config struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	log     *zap.Logger
}

var _ ports.AuthAPI = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url host is required")
	}

	c := &Client{base: parsed, http: cfg.HTTPClient, timeout: cfg.RequestTimeout, log: cfg.Logger}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("authapi")
	return c, nil
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthSession, error) {
	var out domain.AuthSession
	err := c.do(ctx, http.MethodPost, "login", "", req, &out)
	return out, c.sessionOrError("login", out, err)
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthSession, error) {
	var out domain.AuthSession
	err := c.do(ctx, http.MethodPost, "register", "", req, &out)
	return out, c.sessionOrError("register", out, err)
}

func (c *Client) OAuthLogin(ctx context.Context, req domain.OAuthRequest) (domain.AuthSession, error) {
	if req.Provider == "" {
		return domain.AuthSession{}, errors.New("oauth provider is required")
	}
	var out domain.AuthSession
	err := c.do(ctx, http.MethodPost, "oauth/"+url.PathEscape(req.Provider), "", req, &out)
	return out, c.sessionOrError("oauth login", out, err)
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "logout", accessToken, struct{}{}, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.AuthSession, error) {
	var out domain.AuthSession
	body := map[string]string{"refresh_token": refreshToken}
	err := c.do(ctx, http.MethodPost, "refresh", "", body, &out)
	return out, c.sessionOrError("refresh", out, err)
}

func (c *Client) Me(ctx context.Context, accessToken string) (domain.UserProfile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "me", accessToken, nil, &raw); err != nil {
		return domain.UserProfile{}, err
	}
	return decodeProfile(raw)
}

func (c *Client) UpdateMe(ctx context.Context, accessToken string, patch map[string]any) (domain.UserProfile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, "me", accessToken, patch, &raw); err != nil {
		return domain.UserProfile{}, err
	}
	return decodeProfile(raw)
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	body := map[string]string{"old_password": currentPassword, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "change-password", accessToken, body, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "forgot-password", "", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	body := map[string]string{"token": resetToken, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "reset-password", "", body, nil)
}

func (c *Client) VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error {
	if req.Token == "" && (req.Email == "" || req.Code == "") {
		return errors.New("verify email needs a token or an email and code")
	}
	return c.do(ctx, http.MethodPost, "verify-email", "", req, nil)
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "resend-verification", "", map[string]string{"email": email}, nil)
}

func (c *Client) ListDevices(ctx context.Context, accessToken string) ([]domain.Device, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "devices", accessToken, nil, &raw); err != nil {
		return nil, err
	}

	var devices []domain.Device
	if err := json.Unmarshal(raw, &devices); err == nil {
		return devices, nil
	}
	var wrapped struct {
		Devices []domain.Device `json:"devices"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return wrapped.Devices, nil
}

func (c *Client) RevokeDevice(ctx context.Context, accessToken, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	return c.do(ctx, http.MethodDelete, "devices/"+url.PathEscape(deviceID), accessToken, nil, nil)
}

func (c *Client) RevokeOtherSessions(ctx context.Context, accessToken, keepSessionID string) (int, error) {
	var out struct {
		Revoked int `json:"revoked"`
	}
	body := map[string]string{}
	if keepSessionID != "" {
		body["keep_session_id"] = keepSessionID
	}
	if err := c.do(ctx, http.MethodPost, "sessions/revoke-others", accessToken, body, &out); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

func (c *Client) UsageStats(ctx context.Context, accessToken string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "usage", accessToken, nil, &raw)
	return raw, err
}

func (c *Client) ActivateLicense(ctx context.Context, accessToken, licenseKey string) (json.RawMessage, error) {
	if licenseKey == "" {
		return nil, errors.New("license key is required")
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "license/activate", accessToken, map[string]string{"license_key": licenseKey}, &raw)
	return raw, err
}

func (c *Client) InviteRewards(ctx context.Context, accessToken string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "invite-rewards", accessToken, nil, &raw)
	return raw, err
}

func (c *Client) sessionOrError(op string, s domain.AuthSession, err error) error {
	if err != nil {
		return err
	}
	if s.AccessToken == "" {
		return fmt.Errorf("%s response missing access token", op)
	}
	return nil
}

// do sends one request and decodes the reply into out. Replies wrapped as
// {"success": ..., "data": ...} are unwrapped first.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body any, out any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	endpoint := c.base.JoinPath(BasePath, path).String()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := decodeError(resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized {
			c.log.Warn("auth endpoint returned 401", zap.String("path", path))
		}
		return statusErr
	}

	payload, err := unwrapEnvelope(resp.StatusCode, data)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], payload...)
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Code    string `json:"code"`
}

func (b errorBody) text() string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Message != "":
		return b.Message
	default:
		return b.Detail
	}
}

func decodeError(status int, data []byte) *StatusError {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return &StatusError{StatusCode: status, Message: strings.TrimSpace(string(data))}
	}
	return &StatusError{StatusCode: status, Message: body.text(), Code: body.Code}
}

func unwrapEnvelope(status int, data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}

	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		errorBody
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || envelope.Success == nil {
		return trimmed, nil
	}
	if !*envelope.Success {
		return nil, &StatusError{StatusCode: status, Message: envelope.text(), Code: envelope.Code}
	}
	if len(envelope.Data) == 0 {
		return trimmed, nil
	}
	return envelope.Data, nil
}

func decodeProfile(raw json.RawMessage) (domain.UserProfile, error) {
	var wrapped struct {
		User *domain.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, nil
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}
