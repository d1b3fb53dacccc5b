// Package magiclink issues and verifies the signed tokens embedded in
// email sign-in links.
package magiclink

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/ports"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid sign-in link")

// MinSecretLength is the shortest HMAC secret accepted.
const MinSecretLength = 32

// keyInfo binds derived keys to this token type; bump it to invalidate every outstanding link.
const keyInfo = "portal sign-in link v1"

// Signer issues HS256 link tokens whose jti is the login attempt ID.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Ensure Signer implements the LinkSigner port.
var _ ports.LinkSigner = (*Signer)(nil)

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner constructs a signer with the provided secret and issuer.
func NewSigner(secret, issuer string, opts ...Option) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("link secret must be at least %d bytes", MinSecretLength)
	}
	key, err := deriveKey(secret, issuer)
	if err != nil {
		return nil, err
	}
	s := &Signer{secret: key, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Claims represents link token claims.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Sign creates a token for attempt that expires after ttl.
func (s *Signer) Sign(attempt domainauth.LoginAttempt, ttl time.Duration) (string, error) {
	if attempt.ID == "" {
		return "", errors.New("attempt ID is required")
	}
	now := s.now().UTC()
	claims := Claims{
		Email: attempt.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        attempt.ID,
			Issuer:    s.issuer,
			Subject:   attempt.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses tokenString and returns its claims when the signature,
// issuer, and expiry check out.
func (s *Signer) Verify(tokenString string) (ports.LinkClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return ports.LinkClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return ports.LinkClaims{}, ErrInvalidToken
	}
	return ports.LinkClaims{
		AttemptID: claims.ID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// deriveKey expands the configured secret into a 32-byte HMAC key salted with the issuer.
func deriveKey(secret, issuer string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive link key: %w", err)
	}
	return key, nil
}
