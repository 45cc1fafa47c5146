package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks the credentials a participant presents when registering.
type Verifier interface {
	Verify(participantID, credentials string) error
}

// JoinCodeVerifier accepts any participant presenting the shared join code.
type JoinCodeVerifier struct {
	code []byte
}

// NewJoinCodeVerifier creates a verifier for the shared join code. An empty
// code rejects everyone.
func NewJoinCodeVerifier(code string) *JoinCodeVerifier {
	return &JoinCodeVerifier{code: []byte(code)}
}

func (v *JoinCodeVerifier) Verify(_ string, credentials string) error {
	if len(v.code) == 0 || subtle.ConstantTimeCompare(v.code, []byte(credentials)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// TokenVerifier accepts HS256 tokens whose subject is the registering
// participant.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify checks the token signature, expiry, issuer and subject.
func (v *TokenVerifier) Verify(participantID, credentials string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(participantID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.ParseWithClaims(credentials, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return nil
}

// Issue signs a token for participantID valid for ttl.
func (v *TokenVerifier) Issue(participantID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   participantID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// anyVerifier accepts credentials that satisfy at least one verifier.
type anyVerifier []Verifier

// Any combines verifiers; an empty set rejects everything.
func Any(verifiers ...Verifier) Verifier {
	return anyVerifier(verifiers)
}

func (a anyVerifier) Verify(participantID, credentials string) error {
	errs := make([]error, 0, len(a))
	for _, v := range a {
		err := v.Verify(participantID, credentials)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrInvalidCredentials
	}
	return errors.Join(errs...)
}
