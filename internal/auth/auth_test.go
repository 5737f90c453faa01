package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)

	tok, err := GenerateToken(secret, "user_1", "alice", time.Hour)
	req.NoError(err)

	claims, err := ValidateToken(secret, tok)
	req.NoError(err)
	req.Equal("user_1", claims.UserID)
	req.Equal("alice", claims.Username)
	req.Equal("chattrix", claims.Issuer)
}

func TestToken_ExpiredIsRejected(t *testing.T) {
	req := require.New(t)

	tok, err := GenerateToken(secret, "user_1", "alice", -time.Minute)
	req.NoError(err)

	_, err = ValidateToken(secret, tok)
	req.Error(err)
}

func TestToken_WrongSecretIsRejected(t *testing.T) {
	req := require.New(t)

	tok, err := GenerateToken(secret, "user_1", "alice", time.Hour)
	req.NoError(err)

	_, err = ValidateToken([]byte("other-secret"), tok)
	req.Error(err)
}

func TestPassword_HashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("hunter22")
	req.NoError(err)
	req.NotEqual("hunter22", hash)

	req.True(ComparePassword("hunter22", hash))
	req.False(ComparePassword("wrong", hash))
}
