package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/victor2025PH/tgkz2026-sub003/internal/application"
	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

type RenderOptions struct {
	Now time.Time
}

func renderView(st application.SessionStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("tgkz session"),
		s.header.Render(fmt.Sprintf("transport: %s  socket: %s", orNA(string(st.Transport)), orNA(st.SocketState))),
	}

	if !st.Authenticated {
		lines = append(lines, s.section.Render(s.empty.Render("Not signed in. Run `tgkz auth login`.")))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	parts := []string{s.user.Render(userTitle(st.User))}
	if st.User != nil {
		parts = append(parts, s.detail.Render(fmt.Sprintf("plan: %s  role: %s", orNA(st.User.SubscriptionTier), orNA(st.User.Role))))
		if !st.User.EmailVerified {
			parts = append(parts, s.warning.Render("email not verified"))
		}
	} else {
		parts = append(parts, s.empty.Render("profile not loaded"))
	}
	if st.SessionID != "" {
		parts = append(parts, s.detail.Render("session: "+st.SessionID))
	}
	parts = append(parts, tokenLine(st, opts, s))
	parts = append(parts, refreshLine(st, opts, s))

	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func userTitle(user *domain.UserProfile) string {
	if user == nil {
		return "Signed in"
	}
	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name = strings.TrimSpace(user.Username)
	}
	switch {
	case name != "" && user.Email != "":
		return fmt.Sprintf("%s <%s>", name, user.Email)
	case user.Email != "":
		return user.Email
	case name != "":
		return name
	default:
		return user.ID
	}
}

func tokenLine(st application.SessionStatus, opts RenderOptions, s styles) string {
	label := s.key.Render("access token:")
	if st.ExpiresAt.IsZero() {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.detail.Render("no expiry"))
	}

	now := opts.Now
	if now.IsZero() {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.detail.Render("expires "+st.ExpiresAt.Format(time.RFC3339)))
	}
	if !st.ExpiresAt.After(now) {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.warning.Render("expired"))
	}

	left := 100.0
	if !st.IssuedAt.IsZero() && st.ExpiresAt.After(st.IssuedAt) {
		lifetime := st.ExpiresAt.Sub(st.IssuedAt).Seconds()
		left = clampPercent(st.ExpiresAt.Sub(now).Seconds() / lifetime * 100)
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		label,
		" ",
		renderProgressBar(left, 24, s),
		" ",
		s.detail.Render(fmt.Sprintf("%2.0f%% left", left)),
		" ",
		s.detail.Render("("+formatRelative("expires", st.ExpiresAt, now)+")"),
	)
}

func refreshLine(st application.SessionStatus, opts RenderOptions, s styles) string {
	policy := "55m refresh"
	if st.Remember {
		policy = "23h refresh (remembered)"
	}
	if st.RefreshDueAt.IsZero() {
		return s.key.Render("refresh: ") + s.empty.Render(policy+", not scheduled")
	}
	if opts.Now.IsZero() {
		return s.key.Render("refresh: ") + s.good.Render(policy+" at "+st.RefreshDueAt.Format(time.RFC3339))
	}
	return s.key.Render("refresh: ") + s.good.Render(policy+", "+formatRelative("due", st.RefreshDueAt, opts.Now))
}

func renderProgressBar(leftPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(float64(width) * clampPercent(leftPercent) / 100))
	filled = max(0, min(filled, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatRelative(verb string, at, now time.Time) string {
	if !at.After(now) {
		return verb + " now"
	}
	remaining := at.Sub(now)
	if remaining < time.Hour {
		minutes := max(1, int(math.Ceil(remaining.Minutes())))
		return fmt.Sprintf("%s in %d %s", verb, minutes, plural(minutes, "minute"))
	}
	if remaining < 24*time.Hour {
		hours := max(1, int(math.Ceil(remaining.Hours())))
		return fmt.Sprintf("%s in %d %s (%s)", verb, hours, plural(hours, "hour"), at.Format("15:04"))
	}
	days := max(1, int(math.Ceil(remaining.Hours()/24)))
	return fmt.Sprintf("%s in %d %s (%s)", verb, days, plural(days, "day"), at.Format("15:04 on 02 Jan"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func orNA(v string) string {
	if v == "" {
		return "n/a"
	}
	return v
}
