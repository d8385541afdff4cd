package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/auth"
)

// newTestAuthService wires an AuthService to the fake hosting service and an
// in-memory operator store.
func newTestAuthService(t *testing.T, repo *fakeOperatorRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	_, clients := newFakeHosting(t)

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, tokens, clients, discardLogger()), tokens
}

// =========================================================================
// CompleteLogin
// =========================================================================

func TestCompleteLogin_NewOperator(t *testing.T) {
	repo := newFakeOperatorRepo()
	svc, tokens := newTestAuthService(t, repo)

	result, err := svc.CompleteLogin(context.Background(), writerToken)
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}

	if result.Operator.ID == "" {
		t.Error("Operator.ID should be set after upsert")
	}
	if result.Operator.Login != "writer" {
		t.Errorf("Login = %q, want %q", result.Operator.Login, "writer")
	}
	if result.Operator.GitHubID != 2 {
		t.Errorf("GitHubID = %d, want 2", result.Operator.GitHubID)
	}

	// The session must round-trip and carry the GitHub token.
	sess, err := tokens.Parse(result.Session)
	if err != nil {
		t.Fatalf("Parse(session) error = %v", err)
	}
	if sess.Login != "writer" || sess.AccessToken != writerToken {
		t.Errorf("session = %+v, want login writer with the access token", sess)
	}
	if sess.AvatarURL != "https://avatars/writer" {
		t.Errorf("AvatarURL = %q", sess.AvatarURL)
	}
}

func TestCompleteLogin_ReturningOperatorKeepsID(t *testing.T) {
	repo := newFakeOperatorRepo()
	svc, _ := newTestAuthService(t, repo)

	first, err := svc.CompleteLogin(context.Background(), writerToken)
	if err != nil {
		t.Fatalf("first CompleteLogin() error = %v", err)
	}
	second, err := svc.CompleteLogin(context.Background(), writerToken)
	if err != nil {
		t.Fatalf("second CompleteLogin() error = %v", err)
	}
	if first.Operator.ID != second.Operator.ID {
		t.Errorf("operator ID changed between logins: %q → %q", first.Operator.ID, second.Operator.ID)
	}
}

func TestCompleteLogin_Errors(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		svc, _ := newTestAuthService(t, newFakeOperatorRepo())
		if _, err := svc.CompleteLogin(context.Background(), ""); err == nil {
			t.Fatal("CompleteLogin() should reject an empty token")
		}
	})

	t.Run("profile lookup fails", func(t *testing.T) {
		svc, _ := newTestAuthService(t, newFakeOperatorRepo())
		if _, err := svc.CompleteLogin(context.Background(), "revoked"); err == nil {
			t.Fatal("CompleteLogin() should fail for a token GitHub rejects")
		}
	})

	t.Run("upsert fails", func(t *testing.T) {
		repo := newFakeOperatorRepo()
		repo.upsertErr = errors.New("database is locked")
		svc, _ := newTestAuthService(t, repo)

		_, err := svc.CompleteLogin(context.Background(), writerToken)
		if err == nil {
			t.Fatal("CompleteLogin() should propagate upsert errors")
		}
		if !errors.Is(err, repo.upsertErr) {
			t.Errorf("error chain lost the cause: %v", err)
		}
	})
}

func TestOperator_NotFound(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeOperatorRepo())

	_, err := svc.Operator(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Operator() error = %v, want ErrNotFound", err)
	}
}
