package ports

import (
	"context"
	"encoding/json"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

// AuthAPI is the backend's versioned auth REST surface. Calls that need a
// session take the access token explicitly; the adapter holds no session state.
type AuthAPI interface {
	Login(ctx context.Context, req domain.LoginRequest) (domain.AuthSession, error)
	Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthSession, error)
	OAuthLogin(ctx context.Context, req domain.OAuthRequest) (domain.AuthSession, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (domain.AuthSession, error)

	Me(ctx context.Context, accessToken string) (domain.UserProfile, error)
	UpdateMe(ctx context.Context, accessToken string, patch map[string]any) (domain.UserProfile, error)
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	VerifyEmail(ctx context.Context, req domain.VerifyEmailRequest) error
	ResendVerification(ctx context.Context, email string) error

	ListDevices(ctx context.Context, accessToken string) ([]domain.Device, error)
	RevokeDevice(ctx context.Context, accessToken, deviceID string) error
	RevokeOtherSessions(ctx context.Context, accessToken, keepSessionID string) (int, error)

	UsageStats(ctx context.Context, accessToken string) (json.RawMessage, error)
	ActivateLicense(ctx context.Context, accessToken, licenseKey string) (json.RawMessage, error)
	InviteRewards(ctx context.Context, accessToken string) (json.RawMessage, error)
}
