package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var testSession = Session{
	Login:       "octocat",
	AvatarURL:   "https://avatars/octocat",
	AccessToken: "gho_secret_token",
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short"); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	if _, err := NewTokenService("this-is-16-chars"); err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// ISSUE / PARSE
// =========================================================================

func TestIssue_RejectsIncompleteSession(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Issue(Session{AccessToken: "x"}); err == nil {
		t.Error("Issue() should reject a session without login")
	}
	if _, err := ts.Issue(Session{Login: "octocat"}); err == nil {
		t.Error("Issue() should reject a session without access token")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(testSession)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("Issue() token doesn't look like a JWT: %q", token)
	}

	got, err := ts.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Login != testSession.Login || got.AvatarURL != testSession.AvatarURL || got.AccessToken != testSession.AccessToken {
		t.Errorf("Parse() = %+v, want %+v", got, testSession)
	}
	if time.Until(got.ExpiresAt) <= 0 {
		t.Errorf("ExpiresAt = %v, want in the future", got.ExpiresAt)
	}
}

func TestIssue_AccessTokenIsNotReadable(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(testSession)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	// The payload is only base64url; a plaintext token would survive in it.
	if strings.Contains(token, testSession.AccessToken) {
		t.Error("session token contains the access token in clear")
	}
}

func TestParse_ExpiredSession(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithDuration(testSession, -time.Second)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}
	if _, err := ts.Parse(token); err != ErrSessionExpired {
		t.Fatalf("Parse() error = %v, want ErrSessionExpired", err)
	}
}

func TestParse_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue(testSession)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Parse(tampered); err == nil {
		t.Fatal("Parse() should reject a tampered token")
	}
}

func TestParse_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Issue(testSession)
	if _, err := ts2.Parse(token); err == nil {
		t.Fatal("Parse() should fail under a different secret")
	}
}

func TestParse_EmptyAndGarbage(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Parse(""); err != ErrNoSession {
		t.Errorf("Parse(\"\") error = %v, want ErrNoSession", err)
	}
	if _, err := ts.Parse("not.a.jwt.token"); err == nil {
		t.Error("Parse() should reject a garbage string")
	}
}

// =========================================================================
// SEALING
// =========================================================================

func TestSealer_RoundTripAndNonce(t *testing.T) {
	key, err := deriveKey("test-secret-at-least-16-chars!!", "test")
	if err != nil {
		t.Fatalf("deriveKey() error = %v", err)
	}
	s := newSealer(key)

	a, _ := s.seal("hello")
	b, _ := s.seal("hello")
	if a == b {
		t.Error("seal() produced identical output twice; nonce is not random")
	}

	got, err := s.open(a)
	if err != nil || got != "hello" {
		t.Errorf("open() = %q, %v; want %q, nil", got, err, "hello")
	}

	raw, _ := base64.RawURLEncoding.DecodeString(a)
	raw[len(raw)-1] ^= 0xff
	if _, err := s.open(base64.RawURLEncoding.EncodeToString(raw)); err == nil {
		t.Error("open() should reject a modified box")
	}
	if _, err := s.open("short"); err == nil {
		t.Error("open() should reject a truncated box")
	}
}

func TestDeriveKey_PurposesDiffer(t *testing.T) {
	a, _ := deriveKey("test-secret-at-least-16-chars!!", "one")
	b, _ := deriveKey("test-secret-at-least-16-chars!!", "two")
	if *a == *b {
		t.Error("deriveKey() returned the same key for different purposes")
	}
}
