package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/service"
)

const stateCookie = "oauth_state"

// Where the browser lands after the OAuth round trip.
const (
	afterLogin        = "/admin"
	loginDenied       = "/admin/login?error=access-denied"
	loginFailed       = "/admin/login?error=auth-failed"
	stateCookieMaxAge = 600
)

// LoginCompleter finishes a sign-in once the code has been exchanged and
// looks up the stored operator record.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, accessToken string) (*service.LoginResult, error)
	Operator(ctx context.Context, login string) (*model.Operator, error)
}

// AuthHandler manages the GitHub OAuth login flow and the session cookie.
//
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → exchange the code, start a session
//   - HandleLogout         → clear the session cookie
//   - HandleSession        → who is signed in
type AuthHandler struct {
	github   *auth.GitHubProvider
	logins   LoginCompleter
	sessions *auth.Sessions
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	github *auth.GitHubProvider,
	logins LoginCompleter,
	sessions *auth.Sessions,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:   github,
		logins:   logins,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state (32 bytes from crypto/rand) goes into a short-lived
// HttpOnly cookie; the callback must echo it back.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := oauth2.GenerateVerifier()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
//  1. Validate the state parameter
//  2. Exchange the code for an access token
//  3. Resolve and upsert the operator, issue the session
//  4. Set the session cookie and redirect to the admin area
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, loginDenied, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	accessToken, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, loginFailed, http.StatusSeeOther)
		return
	}

	result, err := h.logins.CompleteLogin(r.Context(), accessToken)
	if err != nil {
		h.logger.Error("auth callback: completing login failed", slog.String("error", err.Error()))
		http.Redirect(w, r, loginFailed, http.StatusSeeOther)
		return
	}

	h.sessions.SetCookie(w, result.Session)
	http.Redirect(w, r, afterLogin, http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// The session is stateless; the JWT stays valid until it expires, but the
// browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// SessionResponse describes the signed-in operator. The access token is
// never echoed.
type SessionResponse struct {
	Login     string          `json:"login"`
	AvatarURL string          `json:"avatarUrl,omitempty"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Operator  *model.Operator `json:"operator,omitempty"`
}

// HandleSession returns the current session and, when one is stored, the
// operator record (first and last sign-in).
//
// HTTP: GET /api/session (RequireSession)
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "Not authenticated"})
		return
	}

	resp := SessionResponse{
		Login:     sess.Login,
		AvatarURL: sess.AvatarURL,
		ExpiresAt: sess.ExpiresAt,
	}
	op, err := h.logins.Operator(r.Context(), sess.Login)
	switch {
	case err == nil:
		resp.Operator = op
	case !errors.Is(err, apperror.ErrNotFound):
		h.logger.Warn("session: loading operator record",
			slog.String("login", sess.Login),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}
