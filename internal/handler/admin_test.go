package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/handler"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// MockVerifier returns a fixed decision and records the token.
type MockVerifier struct {
	Decision    model.AccessDecision
	CapturedTok string
}

func (m *MockVerifier) Verify(_ context.Context, token string) model.AccessDecision {
	m.CapturedTok = token
	return m.Decision
}

// MockPublisher records the request it was given.
type MockPublisher struct {
	CapturedReq model.PublishRequest
	CapturedTok string
	ReturnPR    *model.PullRequest
	ReturnErr   error
	Calls       int
}

func (m *MockPublisher) Publish(_ context.Context, req model.PublishRequest, token string) (*model.PullRequest, error) {
	m.Calls++
	m.CapturedReq = req
	m.CapturedTok = token
	return m.ReturnPR, m.ReturnErr
}

// MockStager records the uploaded files.
type MockStager struct {
	ItemID, Folder string
	Files          []service.UploadFile
	ReturnErr      error
}

func (m *MockStager) Stage(_ context.Context, itemID, folder string, files []service.UploadFile) (*service.StageResult, error) {
	m.ItemID, m.Folder, m.Files = itemID, folder, files
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	res := &service.StageResult{}
	for _, f := range files {
		p := service.ImagePath(folder, itemID, service.SanitizeFilename(f.Name))
		res.Paths = append(res.Paths, p)
	}
	return res, nil
}

// MockCleaner records the cleanup call.
type MockCleaner struct {
	Folder, ItemID string
	Paths          []string
	ReturnErr      error
}

func (m *MockCleaner) Cleanup(_ context.Context, folder, itemID string, paths []string) (*service.CleanupReport, error) {
	m.Folder, m.ItemID, m.Paths = folder, itemID, paths
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &service.CleanupReport{}, nil
}

// MockLister returns fixed publications.
type MockLister struct {
	Limit, Offset int
	Pubs          []model.Publication
	ReturnErr     error
}

func (m *MockLister) List(_ context.Context, limit, offset int) ([]model.Publication, error) {
	m.Limit, m.Offset = limit, offset
	return m.Pubs, m.ReturnErr
}

type mocks struct {
	verifier  *MockVerifier
	publisher *MockPublisher
	stager    *MockStager
	cleaner   *MockCleaner
	lister    *MockLister
}

func newAdminHandler() (*handler.AdminHandler, *mocks) {
	m := &mocks{
		verifier:  &MockVerifier{},
		publisher: &MockPublisher{},
		stager:    &MockStager{},
		cleaner:   &MockCleaner{},
		lister:    &MockLister{},
	}
	h := handler.NewAdminHandler(handler.AdminServices{
		Verifier:     m.verifier,
		Publisher:    m.publisher,
		Stager:       m.stager,
		Cleaner:      m.cleaner,
		Publications: m.lister,
	}, testLogger)
	return h, m
}

func withToken(r *http.Request, token string) *http.Request {
	sess := &auth.Session{Login: "writer", AccessToken: token}
	return r.WithContext(auth.WithSession(r.Context(), sess))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestAdminHandler_HandleVerifyAccess(t *testing.T) {
	t.Run("anonymous caller still gets 200", func(t *testing.T) {
		h, m := newAdminHandler()
		m.verifier.Decision = model.Denied(model.AccessNotAuthenticated)

		rr := httptest.NewRecorder()
		h.HandleVerifyAccess(rr, httptest.NewRequest(http.MethodPost, "/api/admin/verify-access", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"hasAccess":false,"error":"Not authenticated"}`, rr.Body.String())
		assert.Empty(t, m.verifier.CapturedTok)
	})

	t.Run("session token is forwarded", func(t *testing.T) {
		h, m := newAdminHandler()
		m.verifier.Decision = model.AccessDecision{HasAccess: true, Username: "writer", Permission: "write"}

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/verify-access", nil), "gho_writer")
		h.HandleVerifyAccess(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "gho_writer", m.verifier.CapturedTok)
		assert.JSONEq(t, `{"hasAccess":true,"username":"writer","permission":"write"}`, rr.Body.String())
	})
}

func TestAdminHandler_HandleCreatePR(t *testing.T) {
	body := `{"title":"Add artwork","category":"artworks","files":[{"path":"src/data/artworks.json","content":"[]"}]}`

	t.Run("success", func(t *testing.T) {
		h, m := newAdminHandler()
		m.publisher.ReturnPR = &model.PullRequest{Number: 7, URL: "https://github.com/o/r/pull/7", Title: "Add artwork"}

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(body)), "gho_writer")
		h.HandleCreatePR(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true,"pullRequest":{"number":7,"url":"https://github.com/o/r/pull/7","title":"Add artwork"}}`, rr.Body.String())
		assert.Equal(t, "gho_writer", m.publisher.CapturedTok)
		assert.Equal(t, model.Category("artworks"), m.publisher.CapturedReq.Category)
		require.Len(t, m.publisher.CapturedReq.Files, 1)
		assert.Equal(t, "src/data/artworks.json", m.publisher.CapturedReq.Files[0].Path)
	})

	t.Run("no session", func(t *testing.T) {
		h, m := newAdminHandler()

		rr := httptest.NewRecorder()
		h.HandleCreatePR(rr, httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Not authenticated", decodeError(t, rr).Message)
		assert.Zero(t, m.publisher.Calls)
	})

	t.Run("malformed body", func(t *testing.T) {
		h, m := newAdminHandler()

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(`{"title":`)), "tok")
		h.HandleCreatePR(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Zero(t, m.publisher.Calls)
	})

	t.Run("validation error from publisher", func(t *testing.T) {
		h, m := newAdminHandler()
		m.publisher.ReturnErr = apperror.ValidationFailed("title", "Missing required fields: title, files")

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(`{}`)), "tok")
		h.HandleCreatePR(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		got := decodeError(t, rr)
		assert.Equal(t, "validation_error", got.Error)
		assert.Equal(t, "Missing required fields: title, files", got.Message)
	})

	t.Run("upstream failure keeps the hosting message", func(t *testing.T) {
		h, m := newAdminHandler()
		m.publisher.ReturnErr = apperror.Upstream("Reference already exists", errors.New("422"))

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(body)), "tok")
		h.HandleCreatePR(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Reference already exists", decodeError(t, rr).Message)
	})

	t.Run("unknown errors are not leaked", func(t *testing.T) {
		h, m := newAdminHandler()
		m.publisher.ReturnErr = errors.New("sql: database is locked at /var/lib/x.db")

		rr := httptest.NewRecorder()
		req := withToken(httptest.NewRequest(http.MethodPost, "/api/admin/create-pr", strings.NewReader(body)), "tok")
		h.HandleCreatePR(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "/var/lib")
	})
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAdminHandler_HandleUpload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, m := newAdminHandler()
		body, ct := multipartBody(t,
			map[string]string{"itemId": "sunset-01", "imageFolder": "artworks"},
			map[string]string{"my photo.png": "png-bytes"},
		)

		req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
		req.Header.Set("Content-Type", ct)
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var res handler.UploadResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.Success)
		assert.Equal(t, "Successfully processed 1 file(s)", res.Message)
		assert.Equal(t, []string{"images/artworks/sunset-01/my_photo.png"}, res.Paths)

		assert.Equal(t, "sunset-01", m.stager.ItemID)
		assert.Equal(t, "artworks", m.stager.Folder)
		require.Len(t, m.stager.Files, 1)
		assert.Equal(t, "png-bytes", string(m.stager.Files[0].Content))
	})

	t.Run("not multipart", func(t *testing.T) {
		h, _ := newAdminHandler()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "No form data received", decodeError(t, rr).Message)
	})

	t.Run("stager validation error", func(t *testing.T) {
		h, m := newAdminHandler()
		m.stager.ReturnErr = apperror.ValidationFailed("itemId", "Invalid itemId format. Use only letters, numbers, hyphens, and underscores.")
		body, ct := multipartBody(t,
			map[string]string{"itemId": "../etc", "imageFolder": "artworks"},
			map[string]string{"a.png": "x"},
		)

		req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", body)
		req.Header.Set("Content-Type", ct)
		rr := httptest.NewRecorder()
		h.HandleUpload(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr).Message, "Invalid itemId format")
	})
}

func TestAdminHandler_HandleCleanup(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h, m := newAdminHandler()
		body := `{"imageFolder":"artworks","itemId":"sunset-01","paths":["images/artworks/sunset-01/a.png"]}`

		rr := httptest.NewRecorder()
		h.HandleCleanup(rr, httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true,"message":"Cleanup completed"}`, rr.Body.String())
		assert.Equal(t, "artworks", m.cleaner.Folder)
		assert.Equal(t, "sunset-01", m.cleaner.ItemID)
		assert.Equal(t, []string{"images/artworks/sunset-01/a.png"}, m.cleaner.Paths)
	})

	t.Run("production is forbidden", func(t *testing.T) {
		h, m := newAdminHandler()
		m.cleaner.ReturnErr = apperror.Forbidden("This endpoint is only available in development mode")

		rr := httptest.NewRecorder()
		h.HandleCleanup(rr, httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", strings.NewReader(`{"imageFolder":"a","itemId":"b"}`)))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "This endpoint is only available in development mode", decodeError(t, rr).Message)
	})
}

func TestAdminHandler_HandleListPublications(t *testing.T) {
	t.Run("passes paging through", func(t *testing.T) {
		h, m := newAdminHandler()
		m.lister.Pubs = []model.Publication{{ID: "p1", Number: 3, Title: "Add artwork"}}

		rr := httptest.NewRecorder()
		h.HandleListPublications(rr, httptest.NewRequest(http.MethodGet, "/api/admin/publications?limit=5&offset=10", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, m.lister.Limit)
		assert.Equal(t, 10, m.lister.Offset)

		var pubs []model.Publication
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&pubs))
		require.Len(t, pubs, 1)
		assert.Equal(t, 3, pubs[0].Number)
	})

	t.Run("bad limit", func(t *testing.T) {
		h, _ := newAdminHandler()
		rr := httptest.NewRecorder()
		h.HandleListPublications(rr, httptest.NewRequest(http.MethodGet, "/api/admin/publications?limit=ten", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
