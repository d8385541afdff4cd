package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/config"
)

// CleanupOutcome is what happened to one requested path.
type CleanupOutcome struct {
	Path    string
	Removed bool
	// Outside is set when the path resolved outside the item directory and
	// was left alone.
	Outside bool
	Err     error
}

// CleanupReport lists per-path outcomes of one Cleanup call.
type CleanupReport struct {
	TargetDir  string
	Outcomes   []CleanupOutcome
	DirRemoved bool
}

// Err joins every failed outcome, or returns nil.
func (r *CleanupReport) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", o.Path, o.Err))
		}
	}
	return result.ErrorOrNil()
}

// Cleaner removes development preview images. It refuses to run in
// production.
type Cleaner struct {
	mode       config.RuntimeMode
	previewDir string
	logger     *slog.Logger
}

// NewCleaner creates a Cleaner rooted at previewDir.
func NewCleaner(mode config.RuntimeMode, previewDir string, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		mode:       mode,
		previewDir: previewDir,
		logger:     logger,
	}
}

// Cleanup removes preview files of one item.
//
// With paths, only those resolving inside {previewDir}/images/{folder}/{itemID}
// are deleted, and the directory is removed if that leaves it empty. Paths may
// be web paths ("images/...", "/images/...") or repository paths
// ("public/images/..."). Without paths the whole item directory goes.
//
// Deletion is best-effort: failures land in the report and the log, never in
// the returned error, which is reserved for Forbidden and ValidationFailed.
func (c *Cleaner) Cleanup(ctx context.Context, folder, itemID string, paths []string) (*CleanupReport, error) {
	if c.mode.IsProduction() {
		return nil, apperror.Forbidden("This endpoint is only available in development mode")
	}
	if folder == "" || itemID == "" {
		return nil, apperror.ValidationFailed("itemId", "Missing imageFolder or itemId")
	}
	if !ValidIdentifier(itemID) {
		return nil, apperror.ValidationFailed("itemId", "Invalid itemId format")
	}
	if !ValidIdentifier(folder) {
		return nil, apperror.ValidationFailed("imageFolder", "Invalid imageFolder format")
	}

	report := &CleanupReport{
		TargetDir: filepath.Join(c.previewDir, "images", folder, itemID),
	}

	if len(paths) == 0 {
		if err := os.RemoveAll(report.TargetDir); err != nil {
			report.Outcomes = append(report.Outcomes, CleanupOutcome{Path: report.TargetDir, Err: err})
		} else {
			report.DirRemoved = true
		}
		c.logReport(folder, itemID, report)
		return report, nil
	}

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		report.Outcomes = append(report.Outcomes, c.removeOne(report.TargetDir, p))
	}
	report.DirRemoved = removeIfEmpty(report.TargetDir)

	c.logReport(folder, itemID, report)
	return report, nil
}

func (c *Cleaner) removeOne(targetDir, p string) CleanupOutcome {
	out := CleanupOutcome{Path: p}

	full := c.resolve(p)
	if !within(targetDir, full) {
		out.Outside = true
		return out
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		out.Err = err
		return out
	}
	out.Removed = true
	return out
}

// resolve maps a web or repository path to its location under previewDir.
func (c *Cleaner) resolve(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "public/")
	return filepath.Join(c.previewDir, filepath.FromSlash(p))
}

// within reports whether path is strictly inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// removeIfEmpty deletes dir when it has no entries left. A missing directory
// counts as removed.
func removeIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

func (c *Cleaner) logReport(folder, itemID string, report *CleanupReport) {
	removed, outside := 0, 0
	for _, o := range report.Outcomes {
		if o.Removed {
			removed++
		}
		if o.Outside {
			outside++
		}
	}

	attrs := []any{
		slog.String("folder", folder),
		slog.String("itemId", itemID),
		slog.Int("removed", removed),
		slog.Int("ignored", outside),
		slog.Bool("dirRemoved", report.DirRemoved),
	}
	if err := report.Err(); err != nil {
		c.logger.Warn("preview cleanup incomplete", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	c.logger.Info("preview cleanup done", attrs...)
}
