// Package auth defines the boundary the core depends on for authentication;
// token issuance and verification are an external collaborator's concern, so
// only the interface and a minimal HMAC-based implementation live here.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalidToken covers any malformed, expired, or tampered token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Authenticator verifies a bearer token and resolves it to a user id.
type Authenticator interface {
	Verify(token string) (userID string, err error)
}

type claims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

// hmacAuthenticator implements a minimal signed-token scheme: base64url
// payload + base64url HMAC-SHA256 signature, joined by a dot. It is not a
// general JWT implementation; no pack example carries a JWT library and this
// collaborator is explicitly out of the core's scope (spec §1), so a small
// hand-rolled signer stands in for whatever the real auth service issues.
type hmacAuthenticator struct {
	secret []byte
}

// NewHMACAuthenticator builds an Authenticator that verifies tokens signed
// with secret.
func NewHMACAuthenticator(secret string) Authenticator {
	return &hmacAuthenticator{secret: []byte(secret)}
}

func (a *hmacAuthenticator) Verify(token string) (string, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return "", ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", ErrInvalidToken
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payloadPart))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", ErrInvalidToken
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", ErrInvalidToken
	}
	if c.Exp != 0 && time.Now().Unix() > c.Exp {
		return "", ErrInvalidToken
	}

	return c.Sub, nil
}

// Issue signs a token for userID, expiring after ttl. Included for
// completeness and for tests; real deployments issue tokens from the
// external auth service using PW_SECRET_KEY, not this package.
func Issue(secret string, userID string, ttl time.Duration) string {
	c := claims{Sub: userID}
	if ttl != 0 {
		c.Exp = time.Now().Add(ttl).Unix()
	}
	payload, _ := json.Marshal(c)
	payloadPart := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadPart))
	sigPart := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadPart + "." + sigPart
}
