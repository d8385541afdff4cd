package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gobwas/glob"

	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/model"
)

// Default guard paths.
const (
	LoginPath = "/admin/login"

	loginUnauthorized       = LoginPath + "?error=unauthorized"
	loginVerificationFailed = LoginPath + "?error=verification-failed"
)

// DefaultProtected are the path patterns guarded by default.
var DefaultProtected = []string{"/admin", "/admin/**"}

// SessionSource answers the two session questions the guard asks.
// *auth.Sessions implements it.
type SessionSource interface {
	Authenticated(r *http.Request) bool
	FreshSession(r *http.Request) (*auth.Session, error)
}

// AccessChecker decides whether a token may use the admin surface. An error
// means the check itself could not be carried out.
type AccessChecker interface {
	CheckAccess(ctx context.Context, token string) (model.AccessDecision, error)
}

// CheckerFunc adapts a function to AccessChecker.
type CheckerFunc func(ctx context.Context, token string) (model.AccessDecision, error)

// CheckAccess calls f.
func (f CheckerFunc) CheckAccess(ctx context.Context, token string) (model.AccessDecision, error) {
	return f(ctx, token)
}

// Decision is the guard's answer for one request.
type Decision struct {
	Allow    bool
	Location string // redirect target when !Allow
}

func allow() Decision { return Decision{Allow: true} }
func redirect(location string) Decision { return Decision{Location: location} }

// Guard protects the admin pages.
//
// The login page is always reachable. In development every page is; publishing
// still needs a real token, so the bypass opens pages, not write access.
// Otherwise a request needs a session, a fresh read of that session, and a
// positive access decision. The guard only decides where the browser goes;
// it never touches the session.
type Guard struct {
	mode      config.RuntimeMode
	protected []glob.Glob
	sessions  SessionSource
	checker   AccessChecker
	logger    *slog.Logger
}

// NewGuard compiles patterns (DefaultProtected when empty). Patterns use '/'
// as separator: "*" stays within a segment, "**" spans segments.
func NewGuard(mode config.RuntimeMode, sessions SessionSource, checker AccessChecker, logger *slog.Logger, patterns ...string) (*Guard, error) {
	if len(patterns) == 0 {
		patterns = DefaultProtected
	}

	g := &Guard{
		mode:     mode,
		sessions: sessions,
		checker:  checker,
		logger:   logger,
	}
	for _, p := range patterns {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("middleware: compiling guard pattern %q: %w", p, err)
		}
		g.protected = append(g.protected, compiled)
	}
	return g, nil
}

func (g *Guard) isProtected(path string) bool {
	if path == LoginPath {
		return false
	}
	for _, p := range g.protected {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Decide evaluates r without side effects.
func (g *Guard) Decide(r *http.Request) Decision {
	if !g.isProtected(r.URL.Path) {
		return allow()
	}
	if !g.mode.IsProduction() {
		return allow()
	}

	if !g.sessions.Authenticated(r) {
		return redirect(LoginPath)
	}

	sess, err := g.sessions.FreshSession(r)
	if err != nil || sess == nil {
		return redirect(LoginPath)
	}

	decision, err := g.checker.CheckAccess(r.Context(), sess.AccessToken)
	if err != nil {
		g.logger.Warn("guard: access check failed",
			slog.String("path", r.URL.Path),
			slog.String("login", sess.Login),
			slog.String("error", err.Error()),
		)
		return redirect(loginVerificationFailed)
	}
	if !decision.HasAccess {
		g.logger.Info("guard: access denied",
			slog.String("path", r.URL.Path),
			slog.String("login", sess.Login),
			slog.String("reason", decision.Error),
		)
		return redirect(loginUnauthorized)
	}
	return allow()
}

// Middleware redirects requests Decide refuses.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		if !d.Allow {
			http.Redirect(w, r, d.Location, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
