package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth failure codes sent to the client before teardown.
const (
	CodeTokenMissing   = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid   = "AUTH_TOKEN_INVALID"
	CodeTokenExpired   = "AUTH_TOKEN_EXPIRED"
	CodeTokenNotActive = "AUTH_TOKEN_NOT_ACTIVE"
	CodeFailed         = "AUTH_FAILED"
)

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseBearerToken strips the Bearer scheme from an Authorization header.
func ParseBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// ParseAndValidateToken verifies signature and time claims against the
// configured HMAC secret.
func ParseAndValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// ClassifyError maps a verification failure onto the wire-level auth code.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return CodeTokenNotActive
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return CodeTokenInvalid
	default:
		return CodeFailed
	}
}
