package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportModeValid(t *testing.T) {
	tests := []struct {
		name string
		mode TransportMode
		want bool
	}{
		{name: "host channel", mode: TransportHostChannel, want: true},
		{name: "network", mode: TransportNetwork, want: true},
		{name: "empty", mode: "", want: false},
		{name: "unknown", mode: "carrier-pigeon", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mode.Valid())
		})
	}
}

func TestAuthStateAuthenticated(t *testing.T) {
	assert.False(t, AuthState{}.Authenticated())
	assert.False(t, AuthState{RefreshToken: "r"}.Authenticated())
	assert.True(t, AuthState{AccessToken: "a"}.Authenticated())
}

func TestResultDecode(t *testing.T) {
	r := Result{Success: true, Data: json.RawMessage(`{"accounts":[{"phone":"+100"}]}`)}

	var got struct {
		Accounts []struct {
			Phone string `json:"phone"`
		} `json:"accounts"`
	}
	require.NoError(t, r.Decode(&got))
	require.Len(t, got.Accounts, 1)
	assert.Equal(t, "+100", got.Accounts[0].Phone)

	assert.NoError(t, Result{Success: true}.Decode(&got))
}

func TestFailure(t *testing.T) {
	r := Failure("boom")
	assert.False(t, r.Success)
	assert.Equal(t, "boom", r.Error)
}
