package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints and verifies HS256 principal tokens on the sync server.
type Issuer struct {
	Secret []byte
	Name   string
	TTL    time.Duration
	Now    func() time.Time
}

func (i *Issuer) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

// Issue creates a principal with a fresh uid.
func (i *Issuer) Issue() (Principal, error) {
	if len(i.Secret) == 0 {
		return Principal{}, errors.New("token issuer has no secret")
	}
	uid := uuid.NewString()
	now := i.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    i.Name,
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	if i.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.TTL))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to sign principal token: %w", err)
	}
	return Principal{Token: token, UID: uid}, nil
}

// Verify returns the uid carried by token.
func (i *Issuer) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.Name),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
