package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/hosting"
	"github.com/sakif/portfolio-admin/internal/hosting/fakegithub"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

const (
	ownerToken        = "tok-owner"
	writerToken       = "tok-writer"
	maintainerToken   = "tok-maintainer"
	readerToken       = "tok-reader"
	strangerToken     = "tok-stranger"
	testOwner         = "Portfolio-Owner"
	testRepoName      = "portfolio"
	testDefaultBranch = "main"
)

var testRepo = config.Repository{Owner: testOwner, Name: testRepoName}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFakeHosting starts an in-memory GitHub with one repository and a user
// per permission level, and returns a ClientFactory pointed at it.
func newFakeHosting(t *testing.T) (*fakegithub.GitHub, ClientFactory) {
	t.Helper()

	fake := fakegithub.New()
	fake.AddRepository(testOwner, testRepoName, testDefaultBranch, map[string]string{
		"src/data/artworks.json": "[]",
	})
	fake.AddUser(ownerToken, fakegithub.User{ID: 1, Login: "portfolio-owner", AvatarURL: "https://avatars/owner"})
	fake.AddUser(writerToken, fakegithub.User{ID: 2, Login: "writer", AvatarURL: "https://avatars/writer"})
	fake.AddUser(maintainerToken, fakegithub.User{ID: 3, Login: "maintainer"})
	fake.AddUser(readerToken, fakegithub.User{ID: 4, Login: "reader"})
	fake.AddUser(strangerToken, fakegithub.User{ID: 5, Login: "stranger"})
	fake.SetPermission(testOwner, testRepoName, "writer", "write")
	fake.SetPermission(testOwner, testRepoName, "maintainer", "maintain")
	fake.SetPermission(testOwner, testRepoName, "reader", "read")

	srv := fake.Start()
	t.Cleanup(srv.Close)

	factory, err := hosting.NewFactory(hosting.Options{APIURL: srv.URL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("hosting.NewFactory: %v", err)
	}
	return fake, func(ctx context.Context, token string) RepoClient {
		return factory.ForToken(ctx, token)
	}
}

// fakePublicationRepo is an in-memory repository.PublicationRepository.
type fakePublicationRepo struct {
	mu        sync.Mutex
	pubs      []model.Publication
	recordErr error
	listOpts  repository.ListOptions
}

func (f *fakePublicationRepo) Record(_ context.Context, pub *model.Publication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.pubs = append(f.pubs, *pub)
	return nil
}

func (f *fakePublicationRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = opts
	return append([]model.Publication{}, f.pubs...), nil
}

func (f *fakePublicationRepo) recorded() []model.Publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Publication(nil), f.pubs...)
}

// fakeOperatorRepo is an in-memory repository.OperatorRepository keyed by
// GitHub ID.
type fakeOperatorRepo struct {
	byGHID    map[int64]*model.Operator
	upsertErr error
}

func newFakeOperatorRepo() *fakeOperatorRepo {
	return &fakeOperatorRepo{byGHID: make(map[int64]*model.Operator)}
}

func (f *fakeOperatorRepo) Upsert(_ context.Context, op *model.Operator) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[op.GitHubID]; ok {
		existing.Login = op.Login
		existing.AvatarURL = op.AvatarURL
		*op = *existing
		return nil
	}
	op.ID = "op-" + op.Login
	copied := *op
	f.byGHID[op.GitHubID] = &copied
	return nil
}

func (f *fakeOperatorRepo) GetByLogin(_ context.Context, login string) (*model.Operator, error) {
	for _, op := range f.byGHID {
		if op.Login == login {
			return op, nil
		}
	}
	return nil, apperror.NotFound("operator", login)
}
