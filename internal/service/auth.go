package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

// AuthService finishes a GitHub sign-in.
//
//	AuthHandler (HTTP) → AuthService → OperatorRepository (SQLite)
//	                                 ↘ RepoClient (profile)
//	                                 ↘ TokenService (session JWT)
type AuthService struct {
	operators repository.OperatorRepository
	tokens    *auth.TokenService
	clients   ClientFactory
	logger    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	operators repository.OperatorRepository,
	tokens *auth.TokenService,
	clients ClientFactory,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		operators: operators,
		tokens:    tokens,
		clients:   clients,
		logger:    logger,
	}
}

// LoginResult bundles the operator record and the signed session so the
// handler can set the cookie and redirect in one step.
type LoginResult struct {
	Operator *model.Operator
	Session  string
}

// CompleteLogin resolves the profile behind accessToken, upserts the operator
// and issues a session carrying the token.
//
// Signing in does not grant publishing rights; the Access Verifier decides
// that on every request.
func (s *AuthService) CompleteLogin(ctx context.Context, accessToken string) (*LoginResult, error) {
	if accessToken == "" {
		return nil, errors.New("service/auth: access token must not be empty")
	}

	identity, err := s.clients(ctx, accessToken).AuthenticatedUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving profile: %w", err)
	}

	op := &model.Operator{
		GitHubID:  identity.ID,
		Login:     identity.Login,
		AvatarURL: identity.AvatarURL,
	}
	if err := s.operators.Upsert(ctx, op); err != nil {
		return nil, fmt.Errorf("service/auth: upserting operator (githubID=%d): %w", identity.ID, err)
	}

	s.logger.Info("operator signed in",
		slog.String("operatorID", op.ID),
		slog.String("login", op.Login),
	)

	token, err := s.tokens.Issue(auth.Session{
		Login:       op.Login,
		AvatarURL:   op.AvatarURL,
		AccessToken: accessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for %s: %w", op.Login, err)
	}

	return &LoginResult{Operator: op, Session: token}, nil
}

// Operator returns the stored record of login.
func (s *AuthService) Operator(ctx context.Context, login string) (*model.Operator, error) {
	op, err := s.operators.GetByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching operator %s: %w", login, err)
	}
	return op, nil
}
