package secretary

import (
	"testing"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSecretary(t *testing.T) *Secretary {
	sec, err := NewSecretaryService(&config.SecretConfig{SecretKey: "test-key"})
	require.NoError(t, err)
	return sec
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	sec := newTestSecretary(t)
	encoded := sec.Encode("sensitive payout details")
	assert.NotEqual(t, "sensitive payout details", encoded)
	decoded, err := sec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "sensitive payout details", decoded)
}

func TestDecode_ForeignKey(t *testing.T) {
	sec := newTestSecretary(t)
	other, err := NewSecretaryService(&config.SecretConfig{SecretKey: "another-key"})
	require.NoError(t, err)
	_, err = other.Decode(sec.Encode("secret"))
	assert.Error(t, err)
}

func TestTokenRoundtrip(t *testing.T) {
	sec := newTestSecretary(t)
	token, userID, err := sec.NewToken()
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	parsedID, isAdmin, err := sec.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsedID)
	assert.False(t, isAdmin)
}

func TestTokenCarriesAdminFlag(t *testing.T) {
	sec := newTestSecretary(t)
	token, err := sec.GetTokenForUser("admin-1", true)
	require.NoError(t, err)
	userID, isAdmin, err := sec.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", userID)
	assert.True(t, isAdmin)
}

func TestValidateToken_ForeignSignature(t *testing.T) {
	sec := newTestSecretary(t)
	other, err := NewSecretaryService(&config.SecretConfig{SecretKey: "another-key"})
	require.NoError(t, err)
	token, err := other.GetTokenForUser("user-1", false)
	require.NoError(t, err)
	_, _, err = sec.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	sec := newTestSecretary(t)
	_, _, err := sec.ValidateToken("not-a-token")
	assert.Error(t, err)
}
