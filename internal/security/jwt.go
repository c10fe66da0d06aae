package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sssdapp/commerce-api/internal/models"
)

// ErrInvalidToken indicates a token that failed signature or claim checks.
var ErrInvalidToken = errors.New("security: invalid token")

// UserClaims carries the identity payload embedded in issued tokens.
type UserClaims struct {
	UserID      uint64 `json:"user_id"`
	FullName    string `json:"full_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	jwt.RegisteredClaims
}

// IssueUserToken signs a JWT for the user with the given lifetime. The
// returned JTI identifies the token for persisted session tracking.
func IssueUserToken(secret string, user *models.User, lifetime time.Duration, now time.Time) (token string, jti string, expiresAt time.Time, err error) {
	if strings.TrimSpace(secret) == "" {
		return "", "", time.Time{}, fmt.Errorf("security: empty jwt secret")
	}
	if user == nil {
		return "", "", time.Time{}, fmt.Errorf("security: nil user")
	}
	if lifetime <= 0 {
		return "", "", time.Time{}, fmt.Errorf("security: non-positive lifetime")
	}

	now = now.UTC()
	expiresAt = now.Add(lifetime)
	jti = uuid.NewString()

	claims := UserClaims{
		UserID:      user.ID,
		FullName:    user.FullName,
		Username:    user.Username,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", "", time.Time{}, fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, jti, expiresAt, nil
}

// ParseUserToken verifies a signed token and returns its claims.
func ParseUserToken(secret, token string) (*UserClaims, error) {
	claims := &UserClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if errParse != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
