// Package session seals and verifies the identity cookie. The token is
// the user id plus an HMAC-SHA256 signature; the room core never sees
// the signing step, only the verified id.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strings"
)

const (
	CookieName = "__sess_id"
	delimiter  = "."
)

var ErrInvalidToken = errors.New("invalid signed session id")

// Signer produces and verifies tamper-evident session tokens of the
// form `id.base64(hmac-sha256(id))`.
type Signer struct {
	secret []byte
	secure bool
	domain string
}

func NewSigner(secret string, secure bool, domain string) *Signer {
	return &Signer{secret: []byte(secret), secure: secure, domain: domain}
}

// NewSignerFromEnv builds the signer from SESSION_SECRET. Cookies are
// marked Secure unless APP_ENV=development; SESSION_COOKIE_DOMAIN may
// scope them to a host.
func NewSignerFromEnv() (*Signer, error) {
	secret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if secret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	domain := strings.TrimSpace(os.Getenv("SESSION_COOKIE_DOMAIN"))
	return NewSigner(secret, env != "development", domain), nil
}

func (s *Signer) sign(id string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return mac.Sum(nil)
}

// Sign seals an id into a token.
func (s *Signer) Sign(id string) string {
	return id + delimiter + base64.RawURLEncoding.EncodeToString(s.sign(id))
}

// Verify checks a token and returns the id it seals.
func (s *Signer) Verify(token string) (string, error) {
	i := strings.LastIndex(token, delimiter)
	if i < 0 {
		return "", ErrInvalidToken
	}
	id := token[:i]
	sig, err := base64.RawURLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal(sig, s.sign(id)) {
		return "", ErrInvalidToken
	}
	return id, nil
}

// Cookie builds the response cookie carrying a sealed id.
func (s *Signer) Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    s.Sign(id),
		Path:     "/",
		Domain:   s.domain,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// FromRequest extracts and verifies the session cookie. An absent
// cookie yields an empty id with no error; a present but invalid one
// yields ErrInvalidToken.
func (s *Signer) FromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", nil
	}
	return s.Verify(c.Value)
}
