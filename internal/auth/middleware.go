package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CookieName is the cookie holding the session JWT.
const CookieName = "session"

// contextKey is unexported so only this package can set or read the session
// stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// Sessions reads and writes session cookies.
type Sessions struct {
	tokens *TokenService
	secure bool
}

// NewSessions creates Sessions. secure marks cookies HTTPS-only and should be
// set in production.
func NewSessions(tokens *TokenService, secure bool) *Sessions {
	return &Sessions{tokens: tokens, secure: secure}
}

// Tokens returns the underlying TokenService.
func (s *Sessions) Tokens() *TokenService {
	return s.tokens
}

// SetCookie stores a signed session token on the response.
func (s *Sessions) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest parses the session cookie of r.
func (s *Sessions) FromRequest(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return s.tokens.Parse(cookie.Value)
}

// Authenticated reports whether r carries a session cookie signed by us.
func (s *Sessions) Authenticated(r *http.Request) bool {
	sess, err := s.FromRequest(r)
	return err == nil && sess != nil
}

// FreshSession re-reads the session at the moment of the call, so a cookie
// that expired between two checks is caught. It never writes the cookie.
func (s *Sessions) FreshSession(r *http.Request) (*Session, error) {
	sess, err := s.FromRequest(r)
	if err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, ErrNoSession
	}
	return sess, nil
}

// RequireSession rejects requests without a valid session with 401 and puts
// the Session in the context of the rest.
func RequireSession(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.FromRequest(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","message":"Not authenticated"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// OptionalSession adds the Session to the context when one is present and
// lets every request through. Handlers that answer anonymous callers with a
// typed result (verify-access, create-pr) sit behind this.
func OptionalSession(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, err := sessions.FromRequest(r); err == nil {
				r = r.WithContext(WithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session stored by the middlewares.
//
//	sess, ok := auth.SessionFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	return sess, ok && sess != nil
}

// AccessToken returns the GitHub token of the session in ctx, or "".
func AccessToken(ctx context.Context) string {
	if sess, ok := SessionFromContext(ctx); ok {
		return sess.AccessToken
	}
	return ""
}
