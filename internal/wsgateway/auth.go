package wsgateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when auth is enabled and the request carries no token
var ErrMissingToken = errors.New("missing token")

// AnonymousUser is the user ID assigned when auth is disabled
const AnonymousUser = "anonymous"

// AuthManager handles JWT authentication
type AuthManager struct {
	jwtSecret []byte
}

// NewAuthManager creates a new auth manager; an empty secret disables auth
func NewAuthManager(jwtSecret string) *AuthManager {
	return &AuthManager{
		jwtSecret: []byte(jwtSecret),
	}
}

// Enabled reports whether tokens are required
func (a *AuthManager) Enabled() bool {
	return len(a.jwtSecret) > 0
}

// Authenticate resolves the user of an upgrade request from the
// Authorization header or the "token" query parameter
func (a *AuthManager) Authenticate(r *http.Request) (string, error) {
	if !a.Enabled() {
		return AnonymousUser, nil
	}

	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		extracted, err := a.ExtractTokenFromHeader(header)
		if err != nil {
			return "", err
		}
		token = extracted
	}
	if token == "" {
		return "", ErrMissingToken
	}

	return a.ValidateToken(token)
}

// ValidateToken validates a JWT token and returns the user ID
func (a *AuthManager) ValidateToken(tokenString string) (string, error) {
	if !a.Enabled() {
		return AnonymousUser, nil
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("user_id not found in token")
}

// IssueToken signs a token for userID, used by operators and tests
func (a *AuthManager) IssueToken(userID string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("auth is disabled")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ExtractTokenFromHeader extracts JWT token from Authorization header
func (a *AuthManager) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is empty")
	}

	// Support both "Bearer <token>" and just "<token>"
	parts := strings.Fields(authHeader)
	switch len(parts) {
	case 1:
		return parts[0], nil
	case 2:
		if !strings.EqualFold(parts[0], "bearer") {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return parts[1], nil
	default:
		return "", fmt.Errorf("invalid authorization header format")
	}
}
