package holdtoken

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	signer := NewSigner("test-secret")
	expiresAt := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	token, err := signer.Generate("slot-1", "client-1", 3, expiresAt)
	require.NoError(t, err)

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "slot-1", claims.SlotID)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, int64(3), claims.Version)
	assert.True(t, claims.ExpiresAt.Equal(expiresAt))
}

func TestParseRejectsTamperedToken(t *testing.T) {
	signer := NewSigner("test-secret")
	token, err := signer.Generate("slot-1", "client-1", 3, time.Now().Add(time.Minute))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[2] = "4" // bump the version without re-signing
	_, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer := NewSigner("test-secret")
	token, err := signer.Generate("slot-1", "client-1", 1, time.Now().Add(time.Minute))
	require.NoError(t, err)

	other := NewSigner("other-secret")
	_, err = other.Parse(token)
	require.Error(t, err)
}

func TestGenerateRequiresIdentity(t *testing.T) {
	signer := NewSigner("test-secret")
	_, err := signer.Generate("", "client-1", 1, time.Now())
	require.Error(t, err)
	_, err = signer.Generate("slot-1", "", 1, time.Now())
	require.Error(t, err)
}
