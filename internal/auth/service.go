// Package auth issues and verifies the bearer tokens the gateway requires on
// mutating endpoints. Tokens are HMAC-signed JWTs bound to a player address.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pda-labs/gamecore/pkg/ledger"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims bind a token to a player address and an optional role
type Claims struct {
	Player string `json:"player"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with a shared HMAC secret
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. ttl bounds token lifetime.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token for a player address
func (s *Service) Issue(player ledger.Address, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Player: player.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a bearer token and returns its claims. Accepts the raw token
// or an Authorization header value with the "Bearer " prefix.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Player == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
