// Package service contains the business logic of the admin panel.
//
// THE LAYERS:
//
//	Handler (HTTP)   → parses requests, writes responses
//	Service          → validates, enforces rules, orchestrates remote calls
//	Repository/Hosting → SQLite log, GitHub REST API
//
// Services never see *http.Request. They take plain values, return domain
// errors from internal/apperror, and talk to GitHub through RepoClient so tests
// can point them at an in-memory fake.
package service

import (
	"context"

	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/model"
)

// RepoClient is the slice of the hosting API the services use. Every value is
// bound to one access token. *hosting.Client implements it.
type RepoClient interface {
	AuthenticatedUser(ctx context.Context) (*model.Identity, error)
	PermissionLevel(ctx context.Context, repo config.Repository, login string) (string, error)

	DefaultBranch(ctx context.Context, repo config.Repository) (string, error)
	BranchHead(ctx context.Context, repo config.Repository, branch string) (string, error)
	CreateBranch(ctx context.Context, repo config.Repository, branch, sha string) error
	CommitTree(ctx context.Context, repo config.Repository, commitSHA string) (string, error)
	CreateBlob(ctx context.Context, repo config.Repository, content string, encoding model.Encoding) (string, error)
	CreateTree(ctx context.Context, repo config.Repository, baseTree string, entries []model.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, repo config.Repository, message, tree string, parents []string) (string, error)
	UpdateBranch(ctx context.Context, repo config.Repository, branch, sha string) error
	CreatePullRequest(ctx context.Context, repo config.Repository, spec model.PullRequestSpec) (*model.PullRequest, error)
}

// ClientFactory returns a RepoClient that acts with token's authority.
type ClientFactory func(ctx context.Context, token string) RepoClient

// List paging limits shared by the listing services.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)
