// Package hosting talks to the GitHub REST API on behalf of a signed-in
// operator. Every Client is bound to one access token; the token decides what
// the calls are allowed to do, so there is no shared privileged client.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v48/github"
	"golang.org/x/oauth2"

	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/metrics"
	"github.com/sakif/portfolio-admin/internal/model"
)

// Factory builds token-scoped clients. It is safe for concurrent use.
type Factory struct {
	baseURL *url.URL
	timeout time.Duration
	base    *http.Client
	logger  *slog.Logger
}

// Options configures a Factory.
type Options struct {
	// APIURL overrides https://api.github.com/ (Enterprise, tests).
	APIURL string
	// Timeout bounds each API call; zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient is the transport underneath the token injector.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewFactory validates the options and returns a Factory.
func NewFactory(opts Options) (*Factory, error) {
	f := &Factory{timeout: opts.Timeout, base: opts.HTTPClient, logger: opts.Logger}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if opts.APIURL != "" {
		u, err := url.Parse(opts.APIURL)
		if err != nil {
			return nil, fmt.Errorf("hosting: parsing API URL %q: %w", opts.APIURL, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return nil, fmt.Errorf("hosting: API URL %q must be http(s)", opts.APIURL)
		}
		// go-github resolves relative paths, so the base must end in a slash.
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		f.baseURL = u
	}
	return f, nil
}

// ForToken returns a client that authenticates every request with token.
func (f *Factory) ForToken(ctx context.Context, token string) *Client {
	if f.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.base)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = f.timeout

	gh := github.NewClient(httpClient)
	if f.baseURL != nil {
		u := *f.baseURL
		gh.BaseURL = &u
	}
	return &Client{gh: gh, logger: f.logger}
}

// Client is a token-scoped hosting API client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// AuthenticatedUser resolves the identity that owns the token.
func (c *Client) AuthenticatedUser(ctx context.Context) (_ *model.Identity, err error) {
	defer c.observe("get_user", time.Now(), &err)

	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("hosting: resolving authenticated user: %w", err)
	}
	return &model.Identity{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// PermissionLevel returns the permission login holds on repo: "admin",
// "write", "read" or "none" (GitHub folds maintain/triage into these, but a
// "maintain" answer is passed through unchanged).
func (c *Client) PermissionLevel(ctx context.Context, repo config.Repository, login string) (_ string, err error) {
	defer c.observe("get_permission", time.Now(), &err)

	level, _, err := c.gh.Repositories.GetPermissionLevel(ctx, repo.Owner, repo.Name, login)
	if err != nil {
		return "", fmt.Errorf("hosting: reading permission of %s on %s: %w", login, repo.FullName(), err)
	}
	return level.GetPermission(), nil
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, repo config.Repository) (_ string, err error) {
	defer c.observe("get_repository", time.Now(), &err)

	r, _, err := c.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", fmt.Errorf("hosting: reading repository %s: %w", repo.FullName(), err)
	}
	if r.GetDefaultBranch() == "" {
		return "", fmt.Errorf("hosting: repository %s reports no default branch", repo.FullName())
	}
	return r.GetDefaultBranch(), nil
}

// BranchHead returns the commit SHA the branch currently points at.
func (c *Client) BranchHead(ctx context.Context, repo config.Repository, branch string) (_ string, err error) {
	defer c.observe("get_ref", time.Now(), &err)

	ref, _, err := c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("hosting: reading branch %s: %w", branch, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates refs/heads/{branch} pointing at sha.
func (c *Client) CreateBranch(ctx context.Context, repo config.Repository, branch, sha string) (err error) {
	defer c.observe("create_ref", time.Now(), &err)

	_, _, err = c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	if err != nil {
		return fmt.Errorf("hosting: creating branch %s: %w", branch, err)
	}
	return nil
}

// CommitTree returns the tree SHA of a commit.
func (c *Client) CommitTree(ctx context.Context, repo config.Repository, commitSHA string) (_ string, err error) {
	defer c.observe("get_commit", time.Now(), &err)

	commit, _, err := c.gh.Git.GetCommit(ctx, repo.Owner, repo.Name, commitSHA)
	if err != nil {
		return "", fmt.Errorf("hosting: reading commit %s: %w", commitSHA, err)
	}
	return commit.GetTree().GetSHA(), nil
}

// CreateBlob uploads one file body and returns its blob SHA.
func (c *Client) CreateBlob(ctx context.Context, repo config.Repository, content string, encoding model.Encoding) (_ string, err error) {
	defer c.observe("create_blob", time.Now(), &err)

	blob, _, err := c.gh.Git.CreateBlob(ctx, repo.Owner, repo.Name, &github.Blob{
		Content:  github.String(content),
		Encoding: github.String(string(encoding)),
	})
	if err != nil {
		return "", fmt.Errorf("hosting: creating blob: %w", err)
	}
	return blob.GetSHA(), nil
}

// CreateTree creates a tree equal to baseTree with entries overriding paths.
func (c *Client) CreateTree(ctx context.Context, repo config.Repository, baseTree string, entries []model.TreeEntry) (_ string, err error) {
	defer c.observe("create_tree", time.Now(), &err)

	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String(e.Mode),
			Type: github.String(e.Type),
			SHA:  github.String(e.SHA),
		})
	}

	tree, _, err := c.gh.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTree, ghEntries)
	if err != nil {
		return "", fmt.Errorf("hosting: creating tree on %s: %w", baseTree, err)
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit of tree with the given parents.
func (c *Client) CreateCommit(ctx context.Context, repo config.Repository, message, tree string, parents []string) (_ string, err error) {
	defer c.observe("create_commit", time.Now(), &err)

	parentCommits := make([]*github.Commit, 0, len(parents))
	for _, p := range parents {
		parentCommits = append(parentCommits, &github.Commit{SHA: github.String(p)})
	}

	commit, _, err := c.gh.Git.CreateCommit(ctx, repo.Owner, repo.Name, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: github.String(tree)},
		Parents: parentCommits,
	})
	if err != nil {
		return "", fmt.Errorf("hosting: creating commit: %w", err)
	}
	return commit.GetSHA(), nil
}

// UpdateBranch moves refs/heads/{branch} to sha. The update is a
// fast-forward: the hosting service rejects it if sha does not descend from
// the current head.
func (c *Client) UpdateBranch(ctx context.Context, repo config.Repository, branch, sha string) (err error) {
	defer c.observe("update_ref", time.Now(), &err)

	_, _, err = c.gh.Git.UpdateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	}, false)
	if err != nil {
		return fmt.Errorf("hosting: updating branch %s: %w", branch, err)
	}
	return nil
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, repo config.Repository, spec model.PullRequestSpec) (_ *model.PullRequest, err error) {
	defer c.observe("create_pull", time.Now(), &err)

	pr, _, err := c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.String(spec.Title),
		Head:  github.String(spec.Head),
		Base:  github.String(spec.Base),
		Body:  github.String(spec.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("hosting: opening pull request %s -> %s: %w", spec.Head, spec.Base, err)
	}
	return &model.PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Title:  pr.GetTitle(),
	}, nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	metrics.ObserveHosting(operation, start, *err)
	if *err != nil {
		c.logger.Debug("hosting call failed",
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", (*err).Error()),
		)
	}
}

// IsNotFound reports whether err is a 404 from the hosting API.
func IsNotFound(err error) bool {
	var resp *github.ErrorResponse
	return errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusNotFound
}
