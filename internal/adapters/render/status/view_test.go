package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor2025PH/tgkz2026-sub003/internal/application"
	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

func TestRenderSignedInSession(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(application.SessionStatus{
		Authenticated: true,
		User: &domain.UserProfile{
			ID:               "u1",
			Email:            "neo@example.com",
			DisplayName:      "Neo",
			Role:             "admin",
			SubscriptionTier: "pro",
			EmailVerified:    true,
		},
		SessionID:    "s-42",
		IssuedAt:     now.Add(-30 * time.Minute),
		ExpiresAt:    now.Add(30 * time.Minute),
		RefreshDueAt: now.Add(25 * time.Minute),
		Transport:    domain.TransportNetwork,
		SocketState:  "connected",
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "transport: network  socket: connected")
	assert.Contains(t, output, "Neo <neo@example.com>")
	assert.Contains(t, output, "plan: pro  role: admin")
	assert.Contains(t, output, "session: s-42")
	assert.Contains(t, output, "50% left")
	assert.Contains(t, output, "expires in 30 minutes")
	assert.Contains(t, output, "55m refresh, due in 25 minutes")
	assert.NotContains(t, output, "not verified")
}

func TestRenderRememberedSessionWithoutProfile(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(application.SessionStatus{
		Authenticated: true,
		Remember:      true,
		ExpiresAt:     now.Add(-time.Minute),
		RefreshDueAt:  now.Add(23 * time.Hour),
		Transport:     domain.TransportHostChannel,
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "Signed in")
	assert.Contains(t, output, "profile not loaded")
	assert.Contains(t, output, "expired")
	assert.Contains(t, output, "23h refresh (remembered), due in 23 hours (10:00)")
	assert.Contains(t, output, "socket: n/a")
}

func TestRenderAnonymous(t *testing.T) {
	output, err := Render(application.SessionStatus{Transport: domain.TransportNetwork}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "Not signed in")
}

func TestRenderUnverifiedEmailWarning(t *testing.T) {
	output, err := Render(application.SessionStatus{
		Authenticated: true,
		User:          &domain.UserProfile{ID: "u1", Email: "a@b.c"},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "a@b.c")
	assert.Contains(t, output, "email not verified")
	assert.Contains(t, output, "no expiry")
	assert.Contains(t, output, "not scheduled")
}
