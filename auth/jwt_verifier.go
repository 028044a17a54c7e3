// Package auth verifies the bearer tokens the product's identity provider
// issues to signed-in users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("auth: invalid bearer token")
	ErrTokenExpired = errors.New("auth: bearer token has expired")
)

// Claims carries the user id in sub. session_id and email are optional.
type Claims struct {
	SessionID string `json:"session_id,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
	clock      core.Clock
}

type VerifierOption func(*JWTVerifier)

func WithIssuer(issuer string) VerifierOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

func WithAudience(audience string) VerifierOption {
	return func(v *JWTVerifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *JWTVerifier) {
		if leeway >= 0 {
			v.leeway = leeway
		}
	}
}

func WithClock(clock core.Clock) VerifierOption {
	return func(v *JWTVerifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func NewJWTVerifier(signingKey string, opts ...VerifierOption) (*JWTVerifier, error) {
	signingKey = strings.TrimSpace(signingKey)
	if signingKey == "" {
		return nil, fmt.Errorf("auth: jwt signing key is required")
	}
	verifier := &JWTVerifier{
		signingKey: []byte(signingKey),
		leeway:     30 * time.Second,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// NewJWTVerifierFromConfig reads the secret, issuer and audience from cfg.
func NewJWTVerifierFromConfig(cfg core.AuthConfig, opts ...VerifierOption) (*JWTVerifier, error) {
	base := []VerifierOption{WithIssuer(cfg.JWTIssuer), WithAudience(cfg.JWTAudience)}
	return NewJWTVerifier(cfg.JWTSecret, append(base, opts...)...)
}

func (v *JWTVerifier) VerifyBearer(_ context.Context, token string) (core.Identity, error) {
	if v == nil {
		return core.Identity{}, fmt.Errorf("auth: verifier is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Identity{}, ErrTokenInvalid
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.signingKey, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.Identity{}, ErrTokenExpired
		}
		return core.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return core.Identity{}, ErrTokenInvalid
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return core.Identity{}, fmt.Errorf("%w: subject is required", ErrTokenInvalid)
	}
	return core.Identity{
		UserID:    subject,
		SessionID: strings.TrimSpace(claims.SessionID),
		Email:     strings.TrimSpace(claims.Email),
	}, nil
}

// Issuer mints HS256 tokens that a JWTVerifier with the same settings
// accepts. It backs local development and tests.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
	clock      core.Clock
}

func NewIssuer(signingKey string, issuer string, audience string) (*Issuer, error) {
	signingKey = strings.TrimSpace(signingKey)
	if signingKey == "" {
		return nil, fmt.Errorf("auth: jwt signing key is required")
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     strings.TrimSpace(issuer),
		audience:   strings.TrimSpace(audience),
		clock:      time.Now,
	}, nil
}

func (i *Issuer) Issue(userID string, ttl time.Duration) (string, error) {
	if i == nil {
		return "", fmt.Errorf("auth: issuer is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("auth: user id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := i.clock()
	registered := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
	}
	if i.audience != "" {
		registered.Audience = jwt.ClaimStrings{i.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID:        uuid.NewString(),
		RegisteredClaims: registered,
	})
	return token.SignedString(i.signingKey)
}

var _ core.IdentityVerifier = (*JWTVerifier)(nil)
