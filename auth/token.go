// Package auth verifies the handshake token a client presents when it
// registers its identity.
package auth

import (
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier signs and validates HS256 tokens with a shared secret.
// A nil *Verifier accepts every registration.
type Verifier struct {
	secret []byte
}

// NewVerifier returns nil when secret is empty, which disables authentication.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return v != nil
}

// GenerateToken creates a signed JWT for a specific user.
func (v *Verifier) GenerateToken(userID string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (v *Verifier) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// Authorize checks that token was issued for userID.
// It always succeeds when the verifier is disabled.
func (v *Verifier) Authorize(userID, token string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: missing token", errors.ErrUnauthorized)
	}
	claims, err := v.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}
	if claims.UserID != userID {
		return fmt.Errorf("%w: token issued for another user", errors.ErrUnauthorized)
	}
	return nil
}
