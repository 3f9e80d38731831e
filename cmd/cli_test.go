package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

func TestVersionPrintsBuildVersion(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestConfigShowReflectsEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TGKZ_API_BASE_URL", "https://api.example.test")

	stdout, _, err := executeCLI(t, home, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://api.example.test")
	assert.Contains(t, stdout, "socket: wss://api.example.test/ws")
	assert.Contains(t, stdout, "transport in use: network")
}

func TestConfigInitRefusesToOverwrite(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, filepath.Join(home, ".tgkz", "config.toml"))

	info, err := os.Stat(filepath.Join(home, ".tgkz", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, _, err = executeCLI(t, home, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, _, err = executeCLI(t, home, "config", "init", "--force")
	require.NoError(t, err)
}

func TestInvalidConfigSurfacesOnRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TGKZ_TRANSPORT", "carrier-pigeon")

	_, _, err := executeCLI(t, home, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport.mode")
}

func TestExecPrintsNormalizedResult(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(t)

	stdout, _, err := executeCLI(t, home, "exec", "accounts.list", "--payload", `{"page":2}`)
	require.NoError(t, err)

	var result domain.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"command":"accounts.list","payload":{"page":2}}`, string(result.Data))
	assert.Empty(t, backend.lastAuthorization())
}

func TestExecFailedResultReturnsError(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	stdout, _, err := executeCLI(t, home, "exec", "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail failed: backend refused")
	assert.Contains(t, stdout, `"success": false`)
}

func TestExecRejectsInvalidPayload(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	_, _, err := executeCLI(t, home, "exec", "accounts.list", "--payload", "{nope")
	require.ErrorIs(t, err, errInvalidPayload)
}

func TestAuthLoginStatusExecLogoutFlow(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(t)

	stdout, _, err := executeCLI(t, home, "auth", "login", "--email", "neo@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed in as neo@example.com")

	stdout, _, err = executeCLI(t, home, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Neo <neo@example.com>")
	assert.Contains(t, stdout, "session: s-1")

	_, _, err = executeCLI(t, home, "exec", "accounts.list")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+backend.accessToken, backend.lastAuthorization())

	stdout, _, err = executeCLI(t, home, "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out")

	stdout, _, err = executeCLI(t, home, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not signed in")
}

func TestAuthLoginReadsPasswordFromStdin(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(t)

	_, _, err := executeCLIWithInput(t, home, "s3cret\n", "auth", "login", "--email", "neo@example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", backend.lastPassword())
}

func TestAuthStatusJSONWhenAnonymous(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	stdout, _, err := executeCLI(t, home, "auth", "status", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, `"Authenticated": false`)
	assert.Contains(t, stdout, `"Transport": "network"`)
}

func TestDevicesListRequiresSession(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	_, _, err := executeCLI(t, home, "devices", "list")
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestDevicesListAfterLogin(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	_, _, err := executeCLI(t, home, "auth", "login", "--email", "neo@example.com", "--password", "pw")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "devices", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Laptop")
	assert.Contains(t, stdout, "(this device)")
}

func TestAuthUpdateRequiresAField(t *testing.T) {
	home := t.TempDir()
	newFakeBackend(t)

	_, _, err := executeCLI(t, home, "auth", "update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

type fakeBackend struct {
	server      *httptest.Server
	accessToken string

	mu            sync.Mutex
	authorization string
	password      string
}

// newFakeBackend serves the command and auth endpoints and points the CLI at
// it through the environment.
func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	b := &fakeBackend{accessToken: token}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/command", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string          `json:"command"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.authorization = r.Header.Get("Authorization")
		b.mu.Unlock()

		if req.Command == "fail" {
			writeTestJSON(w, map[string]any{"success": false, "error": "backend refused"})
			return
		}
		writeTestJSON(w, map[string]any{"command": req.Command, "payload": req.Payload})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.password = req.Password
		b.mu.Unlock()

		writeTestJSON(w, map[string]any{
			"success": true,
			"data": map[string]any{
				"access_token":  token,
				"refresh_token": "refresh-1",
				"session_id":    "s-1",
				"user":          map[string]any{"id": "u1", "email": req.Email, "display_name": "Neo", "email_verified": true},
			},
		})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/v1/auth/devices", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, map[string]any{"devices": []map[string]any{
			{"id": "d1", "name": "Laptop", "platform": "linux", "current": true},
		}})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)

	t.Setenv("TGKZ_TRANSPORT", "network")
	t.Setenv("TGKZ_API_BASE_URL", b.server.URL)
	return b
}

func (b *fakeBackend) lastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authorization
}

func (b *fakeBackend) lastPassword() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.password
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, "", args...)
}

func executeCLIWithInput(t *testing.T, home, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(home, "run"))
	t.Setenv("TGKZ_STORE_BACKEND", "file")
	t.Setenv("TGKZ_LOG_LEVEL", "error")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
