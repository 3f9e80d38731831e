package domain

import "time"

type UserProfile struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username,omitempty"`
	DisplayName      string     `json:"display_name,omitempty"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	Role             string     `json:"role,omitempty"`
	SubscriptionTier string     `json:"subscription_tier,omitempty"`
	EmailVerified    bool       `json:"email_verified"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

// AuthState is the in-memory authenticated session. Empty tokens mean anonymous.
type AuthState struct {
	User         *UserProfile
	AccessToken  string
	RefreshToken string
	SessionID    string
	Remember     bool
	IsLoading    bool
}

func (s AuthState) Authenticated() bool {
	return s.AccessToken != ""
}

// AuthSession is what the backend hands out on login, register, OAuth login and refresh.
type AuthSession struct {
	User         *UserProfile `json:"user,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	SessionID    string       `json:"session_id,omitempty"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name,omitempty"`
	Remember   bool   `json:"remember"`
}

type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Username   string `json:"username,omitempty"`
	InviteCode string `json:"invite_code,omitempty"`
	Remember   bool   `json:"-"`
}

type OAuthRequest struct {
	Provider     string `json:"-"`
	Code         string `json:"code,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	Remember     bool   `json:"-"`
}

type VerifyEmailRequest struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email,omitempty"`
	Code  string `json:"code,omitempty"`
}

type Device struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id,omitempty"`
	Name         string     `json:"name"`
	Platform     string     `json:"platform,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
	Current      bool       `json:"current"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}
