package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/suchitj2702/algo-irl/pkg/errors"
)

// CallbackSigner issues and checks the per-submission tokens embedded in
// judge callback URLs, so a forged callback cannot complete someone else's
// submission.
type CallbackSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewCallbackSigner creates a signer. TTL bounds how long a callback URL
// stays valid; zero means 24h.
func NewCallbackSigner(secret string, ttl time.Duration) (*CallbackSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("callback signing secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CallbackSigner{secret: []byte(secret), ttl: ttl}, nil
}

// Sign returns a token bound to the submission id.
func (s *CallbackSigner) Sign(submissionID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   submissionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign callback token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the submission id it was bound to.
func (s *CallbackSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		})
	if err != nil || !token.Valid {
		return "", apperrors.New(apperrors.CallbackRejected).WithMessage("invalid callback token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", apperrors.New(apperrors.CallbackRejected).WithMessage("callback token has no subject")
	}
	return claims.Subject, nil
}
