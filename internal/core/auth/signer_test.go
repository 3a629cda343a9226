package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretHash(t *testing.T) {
	tests := []struct {
		name     string
		username string
		clientID string
		secret   string
		want     string
	}{
		{
			name:     "known vector",
			username: "alice",
			clientID: "client-id",
			secret:   "client-secret",
			want:     "qROqM+PMKX09MK8ulDVm8LCWdCRqQQEUG9HcF+N7/S4=",
		},
		{
			name: "empty inputs still produce a digest",
			want: "thNnmggU2ex3L5XXeMNfxf8Wl8STcVZTxscSFEKSxa0=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SecretHash(tt.username, tt.clientID, tt.secret))
		})
	}
}

func TestSecretHashDependsOnAllInputs(t *testing.T) {
	base := SecretHash("alice", "client", "secret")
	assert.NotEqual(t, base, SecretHash("bob", "client", "secret"))
	assert.NotEqual(t, base, SecretHash("alice", "other", "secret"))
	assert.NotEqual(t, base, SecretHash("alice", "client", "other"))
}
