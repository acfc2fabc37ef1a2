// Package token issues and parses the HS256 session and refresh tokens.
//
// A session token carries the subject's user id and role. A refresh token
// carries only the user id and is marked with typ=refresh so the two can never
// be used interchangeably. Parsing checks the signature and the claim shape;
// expiry is a separate step so callers can tell an expired credential from a
// forged one.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	typeSession = "access"
	typeRefresh = "refresh"
)

// Reason says why a token was rejected.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
)

// Subject is who a session token is issued for.
type Subject struct {
	UserID   kernel.UserID
	RoleID   kernel.RoleID
	RoleName string
}

// Claims is the decoded content of a session token.
type Claims struct {
	UserID    kernel.UserID `json:"user_id"`
	RoleID    kernel.RoleID `json:"role_id"`
	RoleName  string        `json:"role_name"`
	IssuedAt  time.Time     `json:"iat"`
	ExpiresAt time.Time     `json:"exp"`
}

// Subject returns the identity the claims were issued for
func (c Claims) Subject() Subject {
	return Subject{UserID: c.UserID, RoleID: c.RoleID, RoleName: c.RoleName}
}

// RefreshClaims is the decoded content of a refresh token.
type RefreshClaims struct {
	UserID    kernel.UserID `json:"user_id"`
	ExpiresAt time.Time     `json:"exp"`
}

// Pair is the result of Issue.
type Pair struct {
	SessionToken string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Claims       Claims `json:"-"`
}

// sessionJWT is the wire form of a session token
type sessionJWT struct {
	RoleID   string `json:"role_id"`
	RoleName string `json:"role_name"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a shared HMAC secret.
type Codec struct {
	secret     []byte
	sessionTTL time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for issue and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a codec. Both lifetimes must be positive.
func NewCodec(secret string, sessionTTL, refreshTTL time.Duration, opts ...Option) *Codec {
	c := &Codec{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		// Expiry is checked by Validate, not by the parser, so the two
		// failure reasons stay distinguishable.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionTTL is the lifetime of issued session tokens
func (c *Codec) SessionTTL() time.Duration { return c.sessionTTL }

// RefreshTTL is the lifetime of issued refresh tokens
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs a new session token for subject. When existingRefresh is empty
// a new refresh token is minted, otherwise it is returned unchanged.
func (c *Codec) Issue(subject Subject, existingRefresh string) (*Pair, error) {
	if subject.UserID.IsEmpty() || subject.RoleID.IsEmpty() {
		return nil, ErrIssueFailed().WithDetail("error", "subject requires user id and role id")
	}

	now := c.now().Truncate(time.Second)
	claims := Claims{
		UserID:    subject.UserID,
		RoleID:    subject.RoleID,
		RoleName:  subject.RoleName,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.sessionTTL),
	}

	session, err := c.sign(sessionJWT{
		RoleID:   claims.RoleID.String(),
		RoleName: claims.RoleName,
		Type:     typeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh := existingRefresh
	if refresh == "" {
		refresh, err = c.sign(refreshJWT{
			Type: typeRefresh,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   claims.UserID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return &Pair{SessionToken: session, RefreshToken: refresh, Claims: claims}, nil
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", ErrIssueFailed().WithDetail("error", err.Error())
	}
	return signed, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}

// Parse verifies the signature and claim shape of a session token without
// checking expiry.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	var raw sessionJWT
	if _, err := c.parser.ParseWithClaims(tokenString, &raw, c.keyFunc); err != nil {
		return nil, malformed(err.Error())
	}
	if raw.Type != typeSession {
		return nil, malformed("not a session token")
	}
	if raw.Subject == "" || raw.RoleID == "" {
		return nil, malformed("missing subject or role")
	}
	if raw.ExpiresAt == nil || raw.IssuedAt == nil {
		return nil, malformed("missing iat or exp")
	}

	return &Claims{
		UserID:    kernel.NewUserID(raw.Subject),
		RoleID:    kernel.NewRoleID(raw.RoleID),
		RoleName:  raw.RoleName,
		IssuedAt:  raw.IssuedAt.Time,
		ExpiresAt: raw.ExpiresAt.Time,
	}, nil
}

// Validate parses a session token and rejects it once expires-at <= now.
func (c *Codec) Validate(tokenString string) (*Claims, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if !c.now().Before(claims.ExpiresAt) {
		return nil, expired(claims.ExpiresAt)
	}
	return claims, nil
}

// ParseRefresh verifies the signature and claim shape of a refresh token
// without checking expiry.
func (c *Codec) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	var raw refreshJWT
	if _, err := c.parser.ParseWithClaims(tokenString, &raw, c.keyFunc); err != nil {
		return nil, malformed(err.Error())
	}
	if raw.Type != typeRefresh {
		return nil, malformed("not a refresh token")
	}
	if raw.Subject == "" || raw.ExpiresAt == nil {
		return nil, malformed("missing subject or exp")
	}
	return &RefreshClaims{
		UserID:    kernel.NewUserID(raw.Subject),
		ExpiresAt: raw.ExpiresAt.Time,
	}, nil
}

// ValidateRefresh parses a refresh token and rejects it once expired.
func (c *Codec) ValidateRefresh(tokenString string) (*RefreshClaims, error) {
	claims, err := c.ParseRefresh(tokenString)
	if err != nil {
		return nil, err
	}
	if !c.now().Before(claims.ExpiresAt) {
		return nil, expired(claims.ExpiresAt)
	}
	return claims, nil
}

// ReasonOf extracts the rejection reason from an error returned by this
// package. It returns "" for any other error.
func ReasonOf(err error) Reason {
	var e *errx.Error
	if !errors.As(err, &e) {
		return ""
	}
	switch e.Code {
	case iam.CodeTokenExpired.Code:
		return ReasonExpired
	case iam.CodeTokenMalformed.Code:
		return ReasonMalformed
	default:
		return ""
	}
}

func malformed(why string) *errx.Error {
	return iam.ErrTokenMalformed().
		WithDetail("reason", string(ReasonMalformed)).
		WithDetail("error", why)
}

func expired(at time.Time) *errx.Error {
	return iam.ErrTokenExpired().
		WithDetail("reason", string(ReasonExpired)).
		WithDetail("expired_at", at.UTC().Format(time.RFC3339))
}
