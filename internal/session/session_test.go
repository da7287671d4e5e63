package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("test-secret", false, "")

	id := "a3f8c1d2-0000-4000-8000-000000000001"
	token := s.Sign(id)

	if !strings.HasPrefix(token, id+".") {
		t.Fatalf("token %q does not start with the id", token)
	}

	got, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != id {
		t.Fatalf("verified id = %q, want %q", got, id)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner("test-secret", false, "")
	token := s.Sign("user-a")

	for name, bad := range map[string]string{
		"swapped id":   "user-b" + token[strings.LastIndex(token, "."):],
		"no delimiter": "user-a",
		"bad base64":   "user-a.!!!",
		"empty":        "",
		"wrong secret": NewSigner("other-secret", false, "").Sign("user-a"),
	} {
		if _, err := s.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestIDMayContainDelimiter(t *testing.T) {
	// The signature is split on the last delimiter, so dots inside the
	// id itself survive the round trip.
	s := NewSigner("test-secret", false, "")
	id := "user.with.dots"
	got, err := s.Verify(s.Sign(id))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != id {
		t.Fatalf("verified id = %q, want %q", got, id)
	}
}

func TestCookieAttributes(t *testing.T) {
	s := NewSigner("test-secret", true, "race.example.com")
	c := s.Cookie("user-a")

	if c.Name != CookieName {
		t.Fatalf("name = %q, want %q", c.Name, CookieName)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatalf("cookie not HttpOnly+Secure: %+v", c)
	}
	if c.Path != "/" || c.Domain != "race.example.com" {
		t.Fatalf("scope = %q %q", c.Path, c.Domain)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("samesite = %v", c.SameSite)
	}
	if _, err := s.Verify(c.Value); err != nil {
		t.Fatalf("cookie value does not verify: %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	s := NewSigner("test-secret", false, "")

	// Absent cookie: anonymous, not an error.
	r := httptest.NewRequest(http.MethodGet, "/game/abc12/me", nil)
	id, err := s.FromRequest(r)
	if err != nil || id != "" {
		t.Fatalf("absent cookie: id=%q err=%v", id, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/game/abc12/me", nil)
	r.AddCookie(s.Cookie("user-a"))
	id, err = s.FromRequest(r)
	if err != nil || id != "user-a" {
		t.Fatalf("valid cookie: id=%q err=%v", id, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/game/abc12/me", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "user-a.forged"})
	if _, err = s.FromRequest(r); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged cookie: err = %v, want ErrInvalidToken", err)
	}
}

func TestNewSignerFromEnv(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	if _, err := NewSignerFromEnv(); err == nil {
		t.Fatal("missing SESSION_SECRET accepted")
	}

	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("APP_ENV", "development")
	s, err := NewSignerFromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if s.Cookie("user-a").Secure {
		t.Fatal("development cookies should not be Secure")
	}

	t.Setenv("APP_ENV", "production")
	s, err = NewSignerFromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if !s.Cookie("user-a").Secure {
		t.Fatal("production cookies should be Secure")
	}
}
