package auth

import (
	"errors"
	jwt "github.com/golang-jwt/jwt/v5"
	"time"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Sub       string `json:"sub"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with one secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

func (i *Issuer) CreateAccessToken(sub, role, email string) (string, error) {
	return i.create(sub, role, email, TokenAccess, i.accessTTL)
}

func (i *Issuer) CreateRefreshToken(sub, role, email string) (string, error) {
	return i.create(sub, role, email, TokenRefresh, i.refreshTTL)
}

func (i *Issuer) create(sub, role, email, typ string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Sub:       sub,
		Role:      role,
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ParseValidate verifies signature, expiry and token type.
func (i *Issuer) ParseValidate(tokenStr, wantType string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return c, nil
}
