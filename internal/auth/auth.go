// Package auth issues and validates the bearer tokens clients present when
// opening a voice connection.
//
// Tokens are HMAC-SHA256 JWTs carrying {user_id, iat, exp}. A connection
// without a token gets a generated guest identity instead of being rejected;
// an invalid or expired token likewise downgrades to a guest with a warning,
// so a stale browser tab reconnects as a new anonymous user rather than
// failing. Deployments that need hard rejection front the endpoint with their
// own gateway.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultValidity is the token lifetime when none is configured.
const DefaultValidity = 24 * time.Hour

// ErrInvalidToken is reported for tokens that fail structural or signature
// checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrExpiredToken is reported for well-formed tokens past their expiry.
var ErrExpiredToken = errors.New("auth: token expired")

var headerJSON = mustJSON(map[string]string{"alg": "HS256", "typ": "JWT"})

// Claims is the JWT payload.
type Claims struct {
	UserID   string `json:"user_id"`
	IssuedAt int64  `json:"iat"`
	Expires  int64  `json:"exp"`
}

// Issuer signs and validates tokens with a shared HMAC secret.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithValidity overrides the token lifetime.
func WithValidity(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.validity = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer for the given signing secret.
func NewIssuer(secret string, opts ...Option) *Issuer {
	i := &Issuer{
		secret:   []byte(secret),
		validity: DefaultValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Validity returns the configured token lifetime.
func (i *Issuer) Validity() time.Duration { return i.validity }

// Token mints a signed token for userID.
func (i *Issuer) Token(userID string) (string, error) {
	now := i.now().Unix()
	payload, err := json.Marshal(Claims{
		UserID:   userID,
		IssuedAt: now,
		Expires:  now + int64(i.validity.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}

	signing := b64(headerJSON) + "." + b64(payload)
	return signing + "." + i.sign(signing), nil
}

// GuestToken mints a fresh guest identity and a token for it.
func (i *Issuer) GuestToken() (token, userID string, err error) {
	userID = GuestUserID()
	token, err = i.Token(userID)
	return token, userID, err
}

// GuestUserID mints an anonymous user identity: "guest_" plus the first eight
// hex characters of a UUID.
func GuestUserID() string {
	return "guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Validate checks the token's structure, signature, and expiry, returning the
// embedded user ID.
func (i *Issuer) Validate(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}

	signing := parts[0] + "." + parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidToken
	}
	want, _ := base64.RawURLEncoding.DecodeString(i.sign(signing))
	if !hmac.Equal(sig, want) {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", ErrInvalidToken
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	if i.now().Unix() >= claims.Expires {
		return "", ErrExpiredToken
	}
	return claims.UserID, nil
}

// Identity resolves the user for a connection attempt. A missing token yields
// a guest; a bad token is downgraded to a guest with a warning rather than
// closing the connection.
func (i *Issuer) Identity(token string) string {
	if token == "" {
		return GuestUserID()
	}
	userID, err := i.Validate(token)
	if err != nil {
		slog.Warn("token rejected, downgrading to guest", "err", err)
		return GuestUserID()
	}
	return userID
}

func (i *Issuer) sign(data string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
