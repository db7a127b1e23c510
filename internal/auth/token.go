package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the user id the storefront signs into its access tokens.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue signs an HS256 access token for user.
func (m *TokenManager) Issue(user model.UserID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: string(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Parse verifies token and returns the user it was issued for.
func (m *TokenManager) Parse(token string) (model.UserID, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	user := claims.UserID
	if user == "" {
		user = claims.Subject
	}
	if user == "" {
		return "", fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	return model.UserID(user), nil
}
