package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Scopes requested from GitHub:
//   - "read:user"  → profile (login, avatar)
//   - "user:email" → email addresses
//   - "repo"       → create branches, blobs, commits and pull requests on the
//     content repository as the operator
var Scopes = []string{"read:user", "user:email", "repo"}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code
// flow. The code-for-token exchange happens server to server with the client
// secret; the token never reaches the browser unsealed.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// "Authorization callback URL" of the OAuth app exactly, e.g.
// "http://localhost:8080/auth/github/callback".
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       Scopes,
			Endpoint:     github.Endpoint,
		},
	}
}

// WithEndpoint points the provider at another authorization server. Used by
// tests and GitHub Enterprise deployments.
func (p *GitHubProvider) WithEndpoint(endpoint oauth2.Endpoint) *GitHubProvider {
	cfg := *p.config
	cfg.Endpoint = endpoint
	return &GitHubProvider{config: &cfg}
}

// AuthURL returns the GitHub authorization URL. state must be echoed back on
// the callback; the handler keeps it in a short-lived cookie to reject forged
// callbacks.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("auth: empty OAuth code")
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("auth: GitHub returned an empty access token")
	}
	return token.AccessToken, nil
}
