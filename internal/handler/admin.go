package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/auth"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/service"
)

// Request size limits.
const (
	MaxUploadBytes  = 32 << 20
	MaxPublishBytes = 64 << 20
	maxCleanupBytes = 1 << 20
)

// The admin handler depends on these small interfaces rather than the
// concrete services, so handler tests can script them.
type (
	AccessVerifier interface {
		Verify(ctx context.Context, token string) model.AccessDecision
	}
	Publisher interface {
		Publish(ctx context.Context, req model.PublishRequest, token string) (*model.PullRequest, error)
	}
	Stager interface {
		Stage(ctx context.Context, itemID, folder string, files []service.UploadFile) (*service.StageResult, error)
	}
	Cleaner interface {
		Cleanup(ctx context.Context, folder, itemID string, paths []string) (*service.CleanupReport, error)
	}
	PublicationLister interface {
		List(ctx context.Context, limit, offset int) ([]model.Publication, error)
	}
)

// AdminServices groups the AdminHandler dependencies.
type AdminServices struct {
	Verifier     AccessVerifier
	Publisher    Publisher
	Stager       Stager
	Cleaner      Cleaner
	Publications PublicationLister
}

// AdminHandler serves the /api/admin endpoints.
type AdminHandler struct {
	svc    AdminServices
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc AdminServices, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// HandleVerifyAccess reports whether the caller may publish.
//
// HTTP: POST /api/admin/verify-access
//
// Always 200; denial is {"hasAccess":false,"error":"..."}.
func (h *AdminHandler) HandleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	decision := h.svc.Verifier.Verify(r.Context(), auth.AccessToken(r.Context()))
	writeJSON(w, http.StatusOK, decision)
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Paths   []string             `json:"paths"`
	Files   []model.UploadedFile `json:"files"`
}

// HandleUpload stages uploaded images.
//
// HTTP: POST /api/admin/upload (multipart: itemId, imageFolder, files...)
func (h *AdminHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, apperror.ValidationFailed("body", "No form data received"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readUploads(r.MultipartForm.File["files"])
	if err != nil {
		h.logger.Error("reading uploaded files", slog.String("error", err.Error()))
		writeError(w, apperror.Upstream(fmt.Sprintf("Failed to upload files: %v", err), err))
		return
	}

	result, err := h.svc.Stager.Stage(r.Context(), r.FormValue("itemId"), r.FormValue("imageFolder"), files)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully processed %d file(s)", len(files)),
		Paths:   result.Paths,
		Files:   result.Files,
	})
}

func readUploads(headers []*multipart.FileHeader) ([]service.UploadFile, error) {
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
		}
		files = append(files, service.UploadFile{Name: fh.Filename, Content: data})
	}
	return files, nil
}

// PublishResponse is the body of a successful publish.
type PublishResponse struct {
	Success     bool               `json:"success"`
	PullRequest *model.PullRequest `json:"pullRequest"`
}

// HandleCreatePR publishes file changes as a pull request.
//
// HTTP: POST /api/admin/create-pr
//
// 401 without a session token, 400 for a bad request, 500 with the hosting
// service's message when the pipeline fails.
func (h *AdminHandler) HandleCreatePR(w http.ResponseWriter, r *http.Request) {
	token := auth.AccessToken(r.Context())
	if token == "" {
		writeError(w, apperror.Unauthenticated("Not authenticated"))
		return
	}

	var req model.PublishRequest
	if err := decodeJSON(w, r, &req, MaxPublishBytes); err != nil {
		writeError(w, err)
		return
	}

	pr, err := h.svc.Publisher.Publish(r.Context(), req, token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PublishResponse{Success: true, PullRequest: pr})
}

// CleanupRequest is the body of a cleanup call.
type CleanupRequest struct {
	ImageFolder string   `json:"imageFolder"`
	ItemID      string   `json:"itemId"`
	Paths       []string `json:"paths,omitempty"`
}

// HandleCleanup removes development preview files.
//
// HTTP: POST /api/admin/cleanup (403 in production)
func (h *AdminHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := decodeJSON(w, r, &req, maxCleanupBytes); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.svc.Cleaner.Cleanup(r.Context(), req.ImageFolder, req.ItemID, req.Paths); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cleanup completed",
	})
}

// HandleListPublications returns the publication log, newest first.
//
// HTTP: GET /api/admin/publications?limit=20&offset=0
func (h *AdminHandler) HandleListPublications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	pubs, err := h.svc.Publications.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing publications", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pubs)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}
