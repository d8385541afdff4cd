package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/metrics"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

const (
	// DefaultDescription is the pull request body used when none is given.
	DefaultDescription = "Changes submitted via Admin Panel"

	// maxConcurrentBlobs bounds the blob fan-out against the hosting API.
	maxConcurrentBlobs = 8
)

// Publisher turns a set of file changes into a pull request on the content
// repository.
//
// THE PIPELINE (strictly ordered, nothing retried):
//
//	resolve base branch → base commit → create branch → base tree
//	  → blobs (parallel, joined) → tree → commit → move branch → pull request
//
// The branch ref is created pointing at the base commit and only moved once
// the new commit exists, so it never names a missing object. A failure part
// way leaves the branch and blobs behind; they are inert until a ref points
// at a finished commit, so no rollback is attempted.
type Publisher struct {
	clients ClientFactory
	repo    config.Repository
	pubs    repository.PublicationRepository
	logger  *slog.Logger

	now    func() time.Time
	suffix func() string
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

// WithClock replaces time.Now for branch naming.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// WithBranchSuffix replaces the random suffix appended to branch names.
func WithBranchSuffix(suffix func() string) PublisherOption {
	return func(p *Publisher) { p.suffix = suffix }
}

// NewPublisher creates a Publisher for repo. pubs may be nil, in which case
// successful publishes are not recorded.
func NewPublisher(
	clients ClientFactory,
	repo config.Repository,
	pubs repository.PublicationRepository,
	logger *slog.Logger,
	opts ...PublisherOption,
) *Publisher {
	p := &Publisher{
		clients: clients,
		repo:    repo,
		pubs:    pubs,
		logger:  logger,
		now:     time.Now,
		suffix:  func() string { return xid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs the pipeline for req using token's authority and returns the
// opened pull request.
//
// Errors: Unauthenticated for an empty token, ValidationFailed for a bad
// request (both before any remote call), Upstream carrying the hosting
// service's message for everything after.
func (p *Publisher) Publish(ctx context.Context, req model.PublishRequest, token string) (*model.PullRequest, error) {
	start := time.Now()
	outcome := metrics.OutcomeFailed
	defer func() { metrics.ObservePublish(outcome, start) }()

	if token == "" {
		outcome = metrics.OutcomeUnauthenticated
		return nil, apperror.Unauthenticated("Not authenticated")
	}
	if err := validatePublishRequest(&req); err != nil {
		outcome = metrics.OutcomeInvalid
		return nil, err
	}

	run := &publishRun{
		client: p.clients(ctx, token),
		repo:   p.repo,
		req:    req,
	}
	pr, err := run.execute(ctx, p.branchName(req.Category))
	if err != nil {
		p.logger.Error("publish failed",
			slog.String("repo", p.repo.FullName()),
			slog.String("branch", run.branch),
			slog.String("step", run.step),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream(err.Error(), err)
	}

	outcome = metrics.OutcomeSuccess
	p.logger.Info("pull request opened",
		slog.String("repo", p.repo.FullName()),
		slog.Int("number", pr.Number),
		slog.String("branch", run.branch),
		slog.Int("files", len(req.Files)),
		slog.Duration("duration", time.Since(start)),
	)
	p.record(ctx, run, pr)

	return pr, nil
}

// branchName is admin/{category}-update-{unixMillis}-{suffix}. The suffix
// keeps two same-millisecond publishes of one category apart.
func (p *Publisher) branchName(category model.Category) string {
	return fmt.Sprintf("admin/%s-update-%d-%s", category, p.now().UnixMilli(), p.suffix())
}

// record stores the publication. A storage failure is logged, not returned:
// the pull request already exists.
func (p *Publisher) record(ctx context.Context, run *publishRun, pr *model.PullRequest) {
	if p.pubs == nil {
		return
	}
	pub := &model.Publication{
		Number:     pr.Number,
		URL:        pr.URL,
		Title:      pr.Title,
		Category:   run.req.Category,
		Branch:     run.branch,
		BaseBranch: run.baseBranch,
		CommitSHA:  run.commitSHA,
		FileCount:  len(run.req.Files),
	}
	if sess, ok := auth.SessionFromContext(ctx); ok {
		pub.Operator = sess.Login
	}
	if err := p.pubs.Record(ctx, pub); err != nil {
		p.logger.Warn("recording publication failed",
			slog.Int("number", pr.Number),
			slog.String("error", err.Error()),
		)
	}
}

// validatePublishRequest defaults empty encodings and rejects anything the
// hosting service would refuse half way through the pipeline. The title is
// kept exactly as sent.
func validatePublishRequest(req *model.PublishRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return apperror.ValidationFailed("title", "Missing required fields: title, files")
	}
	if len(req.Files) == 0 {
		return apperror.ValidationFailed("files", "Missing required fields: title, files")
	}
	if !req.Category.Valid() {
		return apperror.ValidationFailed("category",
			fmt.Sprintf("category must be one of %s", joinCategories()))
	}

	seen := make(map[string]bool, len(req.Files))
	files := make([]model.FileChange, len(req.Files))
	for i, f := range req.Files {
		field := fmt.Sprintf("files[%d]", i)
		if !validRepoPath(f.Path) {
			return apperror.ValidationFailed(field+".path",
				fmt.Sprintf("%s.path %q must be a relative repository path", field, f.Path))
		}
		if seen[f.Path] {
			return apperror.ValidationFailed(field+".path",
				fmt.Sprintf("%s.path %q appears more than once", field, f.Path))
		}
		seen[f.Path] = true

		f.Encoding = f.EncodingOrDefault()
		if !f.Encoding.Valid() {
			return apperror.ValidationFailed(field+".encoding",
				fmt.Sprintf("%s.encoding must be %q or %q", field, model.EncodingBase64, model.EncodingUTF8))
		}
		files[i] = f
	}
	req.Files = files
	return nil
}

// validRepoPath accepts clean, relative, slash-separated paths.
func validRepoPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || path.Clean(p) != p {
		return false
	}
	return p != "." && p != ".." && !strings.HasPrefix(p, "../")
}

func joinCategories() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// publishRun holds the identifiers produced by one invocation. Each step
// reads only what earlier steps of the same run wrote, so concurrent
// publishes never see each other's commits.
type publishRun struct {
	client RepoClient
	repo   config.Repository
	req    model.PublishRequest

	step       string
	baseBranch string
	baseCommit string
	branch     string
	baseTree   string
	tree       string
	commitSHA  string
}

func (r *publishRun) execute(ctx context.Context, branch string) (*model.PullRequest, error) {
	var err error

	r.step = "resolve base branch"
	r.baseBranch = r.repo.Branch
	if r.baseBranch == "" {
		if r.baseBranch, err = r.client.DefaultBranch(ctx, r.repo); err != nil {
			return nil, err
		}
	}

	r.step = "resolve base commit"
	if r.baseCommit, err = r.client.BranchHead(ctx, r.repo, r.baseBranch); err != nil {
		return nil, err
	}

	r.step = "create branch"
	r.branch = branch
	if err = r.client.CreateBranch(ctx, r.repo, r.branch, r.baseCommit); err != nil {
		return nil, err
	}

	r.step = "resolve base tree"
	if r.baseTree, err = r.client.CommitTree(ctx, r.repo, r.baseCommit); err != nil {
		return nil, err
	}

	r.step = "create blobs"
	entries, err := r.createBlobs(ctx)
	if err != nil {
		return nil, err
	}

	r.step = "create tree"
	if r.tree, err = r.client.CreateTree(ctx, r.repo, r.baseTree, entries); err != nil {
		return nil, err
	}

	r.step = "create commit"
	if r.commitSHA, err = r.client.CreateCommit(ctx, r.repo, r.req.Title, r.tree, []string{r.baseCommit}); err != nil {
		return nil, err
	}

	r.step = "update branch"
	if err = r.client.UpdateBranch(ctx, r.repo, r.branch, r.commitSHA); err != nil {
		return nil, err
	}

	r.step = "open pull request"
	body := r.req.Description
	if strings.TrimSpace(body) == "" {
		body = DefaultDescription
	}
	return r.client.CreatePullRequest(ctx, r.repo, model.PullRequestSpec{
		Title: r.req.Title,
		Body:  body,
		Head:  r.branch,
		Base:  r.baseBranch,
	})
}

// createBlobs uploads every file concurrently and returns the tree entries in
// request order. The first failure cancels the rest.
func (r *publishRun) createBlobs(ctx context.Context) ([]model.TreeEntry, error) {
	entries := make([]model.TreeEntry, len(r.req.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBlobs)
	for i, f := range r.req.Files {
		g.Go(func() error {
			sha, err := r.client.CreateBlob(gctx, r.repo, f.Content, f.Encoding)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			entries[i] = model.TreeEntry{
				Path: f.Path,
				SHA:  sha,
				Mode: model.FileModeRegular,
				Type: model.ObjectTypeBlob,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
