package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/config"
	"github.com/sakif/portfolio-admin/internal/metrics"
	"github.com/sakif/portfolio-admin/internal/model"
)

var (
	identifierPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// ValidIdentifier reports whether s is a usable item id or image folder:
// letters, digits, hyphen and underscore only.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// SanitizeFilename replaces every character outside [a-zA-Z0-9._-] with "_".
// The result is never empty and never "." or "..", so it cannot climb out of
// the item directory.
func SanitizeFilename(name string) string {
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	if safe == "" {
		return "_"
	}
	if strings.Trim(safe, ".") == "" {
		return strings.Repeat("_", len(safe))
	}
	return safe
}

// ImagePath is the web path of an item image: images/{folder}/{itemID}/{name}.
func ImagePath(folder, itemID, name string) string {
	return "images/" + folder + "/" + itemID + "/" + name
}

// RepoImagePath is where ImagePath lives in the content repository.
func RepoImagePath(folder, itemID, name string) string {
	return "public/" + ImagePath(folder, itemID, name)
}

// UploadFile is one raw file received from the admin panel.
type UploadFile struct {
	Name    string
	Content []byte
}

// StageResult is what Stage hands back: the web paths for previewing and the
// base64 payloads the admin panel later submits for publishing.
type StageResult struct {
	Paths []string
	Files []model.UploadedFile
}

// UploadStager normalises uploaded images into publishable payloads and, in
// development, writes a preview copy under previewDir.
type UploadStager struct {
	mode       config.RuntimeMode
	previewDir string
	logger     *slog.Logger
}

// NewUploadStager creates an UploadStager. previewDir is only touched in
// development mode.
func NewUploadStager(mode config.RuntimeMode, previewDir string, logger *slog.Logger) *UploadStager {
	return &UploadStager{
		mode:       mode,
		previewDir: previewDir,
		logger:     logger,
	}
}

// Stage validates the identifiers, sanitises every filename and encodes the
// files. The payload is the path of record in both modes.
//
// In development the preview copies are written as a batch: each file goes
// to a temporary name first and is renamed into place only once every file
// has been written. On failure the temporaries and any files already renamed
// into place are removed and nothing is returned. A preview that one of
// those files replaced is not restored.
func (s *UploadStager) Stage(ctx context.Context, itemID, folder string, files []UploadFile) (*StageResult, error) {
	if itemID == "" || folder == "" {
		return nil, apperror.ValidationFailed("itemId", "Missing itemId or imageFolder")
	}
	if len(files) == 0 {
		return nil, apperror.ValidationFailed("files", "No files received")
	}
	if !ValidIdentifier(itemID) {
		return nil, apperror.ValidationFailed("itemId",
			"Invalid itemId format. Use only letters, numbers, hyphens, and underscores.")
	}
	if !ValidIdentifier(folder) {
		return nil, apperror.ValidationFailed("imageFolder",
			"Invalid imageFolder format. Use only letters, numbers, hyphens, and underscores.")
	}

	result := &StageResult{
		Paths: make([]string, 0, len(files)),
		Files: make([]model.UploadedFile, 0, len(files)),
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		safe := SanitizeFilename(f.Name)
		names = append(names, safe)
		result.Paths = append(result.Paths, ImagePath(folder, itemID, safe))
		result.Files = append(result.Files, model.UploadedFile{
			Path:     RepoImagePath(folder, itemID, safe),
			Content:  base64.StdEncoding.EncodeToString(f.Content),
			Encoding: model.EncodingBase64,
		})
	}

	if !s.mode.IsProduction() {
		dir := filepath.Join(s.previewDir, "images", folder, itemID)
		if err := s.writePreview(ctx, dir, names, files); err != nil {
			s.logger.Error("staging preview failed",
				slog.String("itemId", itemID),
				slog.String("folder", folder),
				slog.String("error", err.Error()),
			)
			return nil, apperror.Upstream(fmt.Sprintf("Failed to upload files: %v", err), err)
		}
	}

	metrics.ObserveStaged(s.mode.String(), len(files))
	s.logger.Info("files staged",
		slog.String("itemId", itemID),
		slog.String("folder", folder),
		slog.Int("count", len(files)),
		slog.String("mode", s.mode.String()),
	)
	return result, nil
}

// writePreview writes files into dir as a batch.
func (s *UploadStager) writePreview(ctx context.Context, dir string, names []string, files []UploadFile) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	temps := make([]string, 0, len(files))
	placed := make([]string, 0, len(files))
	defer func() {
		if err == nil {
			return
		}
		var cleanup *multierror.Error
		for _, group := range [][]string{temps, placed} {
			for _, p := range group {
				if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
					cleanup = multierror.Append(cleanup, rmErr)
				}
			}
		}
		if cleanup.ErrorOrNil() != nil {
			s.logger.Warn("removing partial preview files", slog.String("error", cleanup.Error()))
		}
	}()

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmp, err := writeTemp(dir, names[i], f.Content)
		if tmp != "" {
			temps = append(temps, tmp)
		}
		if err != nil {
			return err
		}
	}

	for len(temps) > 0 {
		i := len(placed)
		final := filepath.Join(dir, names[i])
		if err := os.Rename(temps[0], final); err != nil {
			return fmt.Errorf("saving %s: %w", names[i], err)
		}
		temps = temps[1:]
		placed = append(placed, final)
	}
	return nil
}

// writeTemp writes content to a new temporary file next to its final name.
// The returned path is set whenever the file was created.
func writeTemp(dir, name string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return f.Name(), fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return f.Name(), fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return f.Name(), fmt.Errorf("chmod %s: %w", name, err)
	}
	return f.Name(), nil
}
