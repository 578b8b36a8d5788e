package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims issued at login.
type Claims struct {
	AccountID  int    `json:"account_id"`
	TenantID   int    `json:"tenant_id"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	CustomerID *int   `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the identity that expires after ttl.
func IssueToken(id Identity, secret string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("auth: empty secret")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		AccountID:  id.AccountID,
		TenantID:   id.TenantID,
		Role:       string(id.Role),
		Email:      id.Email,
		CustomerID: id.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates a JWT and returns the caller identity.
func ParseToken(tokenString string, secret string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("auth: empty token")
	}
	if secret == "" {
		return Identity{}, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("auth: invalid token")
	}
	if claims.AccountID <= 0 || claims.TenantID <= 0 {
		return Identity{}, errors.New("auth: missing account or tenant")
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, errors.New("auth: invalid role")
	}
	return Identity{
		AccountID:  claims.AccountID,
		TenantID:   claims.TenantID,
		Role:       role,
		Email:      claims.Email,
		CustomerID: claims.CustomerID,
	}, nil
}
