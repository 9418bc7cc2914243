// Package auth issues and checks credentials: JWT access/refresh pairs,
// bcrypt password hashes, bearer-token middleware, and the identity
// providers (password, Google, Facebook) that turn client credentials into
// a VerifiedIdentity.
//
// TOKEN PAIR:
// Login returns two HS256 JWTs. The access token is short-lived and sent as
// "Authorization: Bearer <token>" on API calls. The refresh token lives longer
// and is only accepted by the refresh endpoint, which mints a new access
// token. A "token_type" claim keeps one from being used as the other.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "jamspace"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// TokenPair is what every login flow returns to the client.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenService handles JWT creation and validation with one HMAC secret.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService. Zero TTLs fall back to the defaults.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// claims is the JWT payload. "sub" holds the account ID and "jti" a random
// UUID so two tokens issued in the same second still differ.
type claims struct {
	jwt.RegisteredClaims
	TokenType TokenKind `json:"token_type"`
}

// IssuePair creates a fresh access/refresh pair for accountID.
func (s *TokenService) IssuePair(accountID string) (*TokenPair, error) {
	access, err := s.GenerateWithDuration(accountID, AccessToken, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateWithDuration(accountID, RefreshToken, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// GenerateWithDuration signs a token of the given kind with a custom expiry.
// Used by IssuePair and by tests that need already-expired tokens.
func (s *TokenService) GenerateWithDuration(accountID string, kind TokenKind, d time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("auth: token subject must not be empty")
	}
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		TokenType: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// ValidateAccess returns the account ID of a valid access token.
func (s *TokenService) ValidateAccess(tokenStr string) (string, error) {
	return s.validate(tokenStr, AccessToken)
}

// Refresh checks a refresh token and mints a new access token for its
// subject. The refresh token itself is not rotated.
func (s *TokenService) Refresh(refreshToken string) (string, error) {
	accountID, err := s.validate(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}
	return s.GenerateWithDuration(accountID, AccessToken, s.accessTTL)
}

// validate verifies signature, algorithm, issuer, expiry and token kind.
// jwt.WithValidMethods rejects "none" and any non-HS256 token.
func (s *TokenService) validate(tokenStr string, kind TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.TokenType != kind {
		return "", fmt.Errorf("auth: token type %q, want %q", c.TokenType, kind)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
