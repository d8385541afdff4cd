package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/hosting"
	"github.com/sakif/portfolio-admin/internal/metrics"
	"github.com/sakif/portfolio-admin/internal/model"
)

// publishPermissions are the collaborator levels allowed to publish.
var publishPermissions = map[string]bool{
	"admin":    true,
	"write":    true,
	"maintain": true,
}

// AccessVerifier decides whether the bearer of a token may publish to the
// content repository.
//
// Verify never returns an error: remote failures are folded into the
// decision so callers can render a specific message. Nothing is cached; a
// permission revoked a second ago is already honoured.
type AccessVerifier struct {
	clients ClientFactory
	repo    config.Repository
	logger  *slog.Logger
}

// NewAccessVerifier creates an AccessVerifier for repo.
func NewAccessVerifier(clients ClientFactory, repo config.Repository, logger *slog.Logger) *AccessVerifier {
	return &AccessVerifier{
		clients: clients,
		repo:    repo,
		logger:  logger,
	}
}

// Verify checks token against the repository:
//
//  1. no token → "Not authenticated" (no remote call)
//  2. resolve the identity; failure → "Verification failed"
//  3. identity is the owner (case-insensitive) → granted, isOwner
//  4. read the collaborator permission; failure → "Not a collaborator"
//  5. admin/write/maintain → granted with that level, anything else →
//     "Insufficient permissions"
func (v *AccessVerifier) Verify(ctx context.Context, token string) model.AccessDecision {
	decision := v.decide(ctx, token)

	result := decision.Error
	switch {
	case decision.IsOwner:
		result = "owner"
	case decision.HasAccess:
		result = decision.Permission
	}
	metrics.ObserveAccess(result)

	v.logger.Info("access verified",
		slog.String("username", decision.Username),
		slog.Bool("hasAccess", decision.HasAccess),
		slog.String("result", result),
	)
	return decision
}

func (v *AccessVerifier) decide(ctx context.Context, token string) model.AccessDecision {
	if token == "" {
		return model.Denied(model.AccessNotAuthenticated)
	}

	client := v.clients(ctx, token)

	identity, err := client.AuthenticatedUser(ctx)
	if err != nil {
		v.logger.Warn("access verification: resolving identity failed", slog.String("error", err.Error()))
		return model.Denied(model.AccessVerificationFail)
	}

	if strings.EqualFold(identity.Login, v.repo.Owner) {
		return model.AccessDecision{
			HasAccess: true,
			Username:  identity.Login,
			Avatar:    identity.AvatarURL,
			IsOwner:   true,
		}
	}

	level, err := client.PermissionLevel(ctx, v.repo, identity.Login)
	if err != nil {
		// A 404 is the ordinary answer for someone outside the repository.
		level := slog.LevelWarn
		if hosting.IsNotFound(err) {
			level = slog.LevelInfo
		}
		v.logger.Log(ctx, level, "access verification: permission lookup failed",
			slog.String("username", identity.Login),
			slog.String("error", err.Error()),
		)
		return model.Denied(model.AccessNotCollaborator)
	}

	if !publishPermissions[level] {
		v.logger.Info("access verification: permission too low",
			slog.String("username", identity.Login),
			slog.String("permission", level),
		)
		return model.Denied(model.AccessInsufficientPerms)
	}

	return model.AccessDecision{
		HasAccess:  true,
		Username:   identity.Login,
		Avatar:     identity.AvatarURL,
		Permission: level,
	}
}
