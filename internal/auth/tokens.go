package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/models"
)

type Claims struct {
	UserID int64       `json:"id"`
	Role   models.Role `json:"role"`
	jwt.StandardClaims
}

// Manager issues and verifies HS256 access tokens.
type Manager struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewManager(signingKey string, ttl time.Duration) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("empty signing key")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Manager{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

func (m *Manager) Issue(user *models.User) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of accessToken and returns the
// identity it carries.
func (m *Manager) Verify(accessToken string) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid or expired token")
	}

	if claims.UserID <= 0 {
		return models.Identity{}, apperr.New(apperr.KindUnauthorized, "token carries no user")
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil || claims.Role == "" {
		return models.Identity{}, apperr.New(apperr.KindUnauthorized, "token carries an unknown role")
	}

	return models.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
