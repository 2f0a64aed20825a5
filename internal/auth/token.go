package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	appErrors "github.com/frahmantamala/backoffice/internal"
)

const DefaultTokenTTL = 24 * time.Hour

type JWTTokenGenerator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTTokenGenerator(secret, issuer string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTTokenGenerator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source; used by tests.
func (j *JWTTokenGenerator) WithClock(fn func() time.Time) *JWTTokenGenerator {
	j.now = fn
	return j
}

func (j *JWTTokenGenerator) TTL() time.Duration {
	return j.ttl
}

// Generate signs an HS256 token for the identity. Every token carries a
// random jti so two tokens issued in the same second still differ.
func (j *JWTTokenGenerator) Generate(id *Identity) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := &Claims{
		Email:       id.Email,
		Roles:       id.Roles,
		Permissions: id.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Parse checks signature, issuer and expiry. Failures map to ErrTokenExpired
// or ErrInvalidToken.
func (j *JWTTokenGenerator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.ErrTokenExpired.WithCause(err)
		}
		return nil, appErrors.ErrInvalidToken.WithCause(err)
	}
	if !token.Valid {
		return nil, appErrors.ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, appErrors.ErrInvalidToken.WithCause(err)
	}
	return claims, nil
}
