package wsgateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthManager_ValidateToken(t *testing.T) {
	authManager := NewAuthManager("test-secret-key")

	token := signToken(t, "test-secret-key", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	userID, err := authManager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAuthManager_ValidateToken_InvalidSecret(t *testing.T) {
	authManager := NewAuthManager("test-secret-key")

	token := signToken(t, "wrong-secret", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	_, err := authManager.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthManager_ValidateToken_Expired(t *testing.T) {
	authManager := NewAuthManager("test-secret-key")

	token := signToken(t, "test-secret-key", jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})

	_, err := authManager.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthManager_ValidateToken_NoSecret(t *testing.T) {
	authManager := NewAuthManager("")
	assert.False(t, authManager.Enabled())

	userID, err := authManager.ValidateToken("any-token")
	require.NoError(t, err)
	assert.Equal(t, AnonymousUser, userID)
}

func TestAuthManager_ValidateToken_SubjectClaim(t *testing.T) {
	authManager := NewAuthManager("test-secret-key")

	token := signToken(t, "test-secret-key", jwt.MapClaims{
		"sub": "user-2",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	userID, err := authManager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", userID)
}

func TestAuthManager_ValidateToken_NoUser(t *testing.T) {
	authManager := NewAuthManager("test-secret-key")

	token := signToken(t, "test-secret-key", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := authManager.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthManager_ExtractTokenFromHeader(t *testing.T) {
	authManager := NewAuthManager("test-secret")

	token, err := authManager.ExtractTokenFromHeader("Bearer test-token")
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)

	token, err = authManager.ExtractTokenFromHeader("test-token")
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)

	_, err = authManager.ExtractTokenFromHeader("")
	assert.Error(t, err)

	_, err = authManager.ExtractTokenFromHeader("Basic abc")
	assert.Error(t, err)
}

func TestAuthManager_IssueToken(t *testing.T) {
	authManager := NewAuthManager("test-secret")

	token, err := authManager.IssueToken("user-9", time.Hour)
	require.NoError(t, err)

	userID, err := authManager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", userID)

	_, err = NewAuthManager("").IssueToken("user-9", time.Hour)
	assert.Error(t, err)
}

func TestAuthManager_Authenticate(t *testing.T) {
	authManager := NewAuthManager("test-secret")
	token, err := authManager.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	t.Run("header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		userID, err := authManager.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		userID, err := authManager.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		_, err := authManager.Authenticate(r)
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("disabled", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		userID, err := NewAuthManager("").Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, AnonymousUser, userID)
	})
}
