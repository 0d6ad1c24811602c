package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateNumericCode(t *testing.T) {
	for _, length := range []int{4, 6, 10} {
		code, err := GenerateNumericCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		assert.Equal(t, "", strings.Trim(code, "0123456789"))
	}

	_, err := GenerateNumericCode(0)
	assert.Error(t, err)
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken(32)
	require.NoError(t, err)
	b, err := GenerateOpaqueToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestHashCodeAndVerify(t *testing.T) {
	stored, err := HashCode("123456")
	require.NoError(t, err)

	assert.NotContains(t, stored, "123456")
	assert.True(t, VerifyCode("123456", stored))
	assert.False(t, VerifyCode("654321", stored))
	assert.False(t, VerifyCode("123456", "malformed"))

	again, err := HashCode("123456")
	require.NoError(t, err)
	assert.NotEqual(t, stored, again)
}

func TestHashTokenIsDeterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.Len(t, HashToken("abc"), 64)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pw123456", 4)
	require.NoError(t, err)

	ok, err := ComparePassword("pw123456", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComparePasswordMalformedHash(t *testing.T) {
	ok, err := ComparePassword("pw123456", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestHashPasswordOutOfRangeCost(t *testing.T) {
	hash, err := HashPassword("pw123456", 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestEmailHelpers(t *testing.T) {
	assert.True(t, ValidateEmail("alice@x.com"))
	assert.False(t, ValidateEmail("alice"))
	assert.Equal(t, "alice@x.com", SanitizeEmail("  Alice@X.com "))
	assert.True(t, EmailInList("ALICE@x.com", []string{"bob@x.com", " alice@X.COM"}))
	assert.False(t, EmailInList("carol@x.com", []string{"bob@x.com"}))
}

func TestValidateUsername(t *testing.T) {
	for _, name := range []string{"alice", "j.doe-admin", "user_01", "Łukasz"} {
		assert.True(t, ValidateUsername(name), name)
	}
	for _, name := range []string{"", "eve\r\nReply-To: x@y.z", "with space", "a<b>"} {
		assert.False(t, ValidateUsername(name), name)
	}
}
