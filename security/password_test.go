package security

import (
	"testing"

	"gamelend/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	HashCost = bcrypt.MinCost
	m.Run()
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, VerifyPassword("hunter22", hash))
	assert.False(t, VerifyPassword("hunter23", hash))
	assert.False(t, VerifyPassword("hunter22", ""))

	_, err = HashPassword("")
	require.Error(t, err)
}

func TestCheckNewPassword(t *testing.T) {
	require.NoError(t, CheckNewPassword("secret", "secret"))

	err := CheckNewPassword("short", "short")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	err = CheckNewPassword("secret1", "secret2")
	require.Error(t, err)
	assert.Equal(t, "passwords do not match", apperr.As(err).Message())
}

func TestCheckName(t *testing.T) {
	require.NoError(t, CheckName("first name", "Al"))
	err := CheckName("last name", " x ")
	require.Error(t, err)
	assert.Equal(t, "last name must be at least 2 characters", apperr.As(err).Message())
}
