package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session token validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("session token expired")
)

// SessionClaims binds a user ID to issuance and expiry timestamps. The token
// is an HS256 JWT, so a session proves identity without any server-side
// session state while remaining unforgeable without the signing secret.
type SessionClaims struct {
	UserID uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// IssueSession signs a session token for the user, valid for ttl from now.
func IssueSession(secret string, userID uint64, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSession validates a session token and returns its claims.
func ParseSession(secret, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateSession decodes a session token and reports whether it is valid.
// It never panics on malformed input. Expiry is exclusive: a token whose
// lifetime has elapsed exactly is already invalid.
func ValidateSession(secret, tokenString string) (uint64, bool) {
	claims, err := ParseSession(secret, tokenString)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}
