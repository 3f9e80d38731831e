package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victor2025PH/tgkz2026-sub003/internal/adapters/authapi"
	statusadapter "github.com/victor2025PH/tgkz2026-sub003/internal/adapters/render/status"
	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, manage the session and the account profile",
	}

	cmd.AddCommand(
		newAuthLoginCmd(app),
		newAuthRegisterCmd(app),
		newAuthOAuthCmd(app),
		newAuthLogoutCmd(app),
		newAuthRefreshCmd(app),
		newAuthStatusCmd(app),
		newAuthMeCmd(app),
		newAuthUpdateCmd(app),
		newAuthChangePasswordCmd(app),
		newAuthForgotPasswordCmd(app),
		newAuthResetPasswordCmd(app),
		newAuthVerifyEmailCmd(app),
		newAuthResendVerificationCmd(app),
	)

	return cmd
}

func newAuthLoginCmd(app *app) *cobra.Command {
	var req domain.LoginRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := passwordOrStdin(cmd.InOrStdin(), req.Password)
			if err != nil {
				return err
			}
			req.Password = password

			if err := app.auth.Login(cmd.Context(), req); err != nil {
				return err
			}
			return printSignedIn(cmd, app)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (read from stdin when empty)")
	cmd.Flags().StringVar(&req.DeviceName, "device-name", "tgkz-cli", "Name shown in the device list")
	cmd.Flags().BoolVar(&req.Remember, "remember", false, "Keep the session for a day between refreshes")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAuthRegisterCmd(app *app) *cobra.Command {
	var req domain.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := passwordOrStdin(cmd.InOrStdin(), req.Password)
			if err != nil {
				return err
			}
			req.Password = password

			if err := app.auth.Register(cmd.Context(), req); err != nil {
				return err
			}
			return printSignedIn(cmd, app)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Account password (read from stdin when empty)")
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.InviteCode, "invite-code", "", "Invite code")
	cmd.Flags().BoolVar(&req.Remember, "remember", false, "Keep the session for a day between refreshes")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAuthOAuthCmd(app *app) *cobra.Command {
	var provider string
	var remember bool

	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in through an OAuth provider in the browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowserLogin(cmd, app, provider, remember)
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "OAuth provider (google, github, telegram, ...)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Keep the session for a day between refreshes")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func runBrowserLogin(cmd *cobra.Command, app *app, provider string, remember bool) error {
	if app.cfg.OAuth.AuthURL == "" || app.cfg.OAuth.ClientID == "" {
		return errors.New("oauth.auth_url and oauth.client_id must be configured")
	}

	pkce, err := authapi.NewPKCEPair()
	if err != nil {
		return fmt.Errorf("generate pkce: %w", err)
	}
	state, err := authapi.NewState()
	if err != nil {
		return fmt.Errorf("generate oauth state: %w", err)
	}

	server, err := authapi.StartCallbackServer(app.cfg.OAuth.Listen, state)
	if err != nil {
		return fmt.Errorf("start callback server: %w", err)
	}
	defer func() { _ = server.Close() }()

	authURL, err := authapi.BuildAuthorizationURL(authapi.AuthorizationRequest{
		AuthURL:       app.cfg.OAuth.AuthURL,
		ClientID:      app.cfg.OAuth.ClientID,
		RedirectURI:   server.RedirectURI(),
		Scopes:        []string{"openid", "profile", "email"},
		State:         state,
		CodeChallenge: pkce.Challenge,
	})
	if err != nil {
		return fmt.Errorf("build authorization url: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to sign in with %s:\n%s\n", provider, authURL)

	code, err := server.WaitForCode(app.oauthTimeout)
	if err != nil {
		return fmt.Errorf("wait for oauth callback: %w", err)
	}

	if err := app.auth.OAuthLogin(cmd.Context(), domain.OAuthRequest{
		Provider:     provider,
		Code:         code,
		CodeVerifier: pkce.Verifier,
		RedirectURI:  server.RedirectURI(),
		Remember:     remember,
	}); err != nil {
		return err
	}
	return printSignedIn(cmd, app)
}

func newAuthLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return err
		},
	}
}

func newAuthRefreshCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.Refresh(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed")
			return err
		},
	}
}

func newAuthStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := app.auth.Status()
			status.Transport = app.transport.Mode
			status.SocketState = app.socketState()

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func newAuthMeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Fetch the signed-in user's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := app.auth.FetchProfile(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}
}

func newAuthUpdateCmd(app *app) *cobra.Command {
	var displayName, username, avatarURL string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update profile fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("display-name") {
				patch["display_name"] = displayName
			}
			if flags.Changed("username") {
				patch["username"] = username
			}
			if flags.Changed("avatar-url") {
				patch["avatar_url"] = avatarURL
			}
			if len(patch) == 0 {
				return errors.New("nothing to update: set --display-name, --username or --avatar-url")
			}

			profile, err := app.auth.UpdateProfile(cmd.Context(), patch)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name")
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&avatarURL, "avatar-url", "", "Avatar URL")

	return cmd
}

func newAuthChangePasswordCmd(app *app) *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the account password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return err
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")

	return cmd
}

func newAuthForgotPasswordCmd(app *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a password reset link",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Reset instructions sent to %s\n", email)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAuthResetPasswordCmd(app *app) *cobra.Command {
	var token, next string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.ResetPassword(cmd.Context(), token, next); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Password reset")
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Reset token from the email")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("new")

	return cmd
}

func newAuthVerifyEmailCmd(app *app) *cobra.Command {
	var token, email, code string

	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Verify the account email with a link token or a code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			switch {
			case token != "":
				err = app.auth.VerifyEmail(cmd.Context(), token)
			case email != "" && code != "":
				err = app.auth.VerifyEmailCode(cmd.Context(), email, code)
			default:
				return errors.New("set --token, or --email with --code")
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Email verified")
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Verification token from the email link")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&code, "code", "", "Verification code")
	cmd.MarkFlagsMutuallyExclusive("token", "code")

	return cmd
}

func newAuthResendVerificationCmd(app *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the verification email again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.auth.ResendVerification(cmd.Context(), email); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Verification email sent to %s\n", email)
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func printSignedIn(cmd *cobra.Command, app *app) error {
	who := "user"
	if user := app.auth.State().User; user != nil && user.Email != "" {
		who = user.Email
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", who)
	return err
}

// passwordOrStdin returns flagValue, or the first line of stdin when it is
// empty.
func passwordOrStdin(stdin io.Reader, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
