package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

var _ repository.PublicationRepository = (*DB)(nil)

// Record stores a publication, filling in ID and CreatedAt when unset.
// Branch names are unique, so recording the same publish twice fails with
// apperror.ErrConflict.
func (db *DB) Record(ctx context.Context, pub *model.Publication) error {
	if pub.ID == "" {
		pub.ID = xid.New().String()
	}
	if pub.CreatedAt.IsZero() {
		pub.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO publications
			(id, number, url, title, category, branch, base_branch, commit_sha, file_count, operator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pub.ID,
		pub.Number,
		pub.URL,
		pub.Title,
		string(pub.Category),
		pub.Branch,
		pub.BaseBranch,
		pub.CommitSHA,
		pub.FileCount,
		pub.Operator,
		pub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			conflict := apperror.Conflict("publication", pub.Branch)
			conflict.Cause = err
			return conflict
		}
		return fmt.Errorf("sqlite: recording publication %s: %w", pub.Branch, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// List returns publications newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Publication, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, number, url, title, category, branch, base_branch, commit_sha, file_count, operator, created_at
		 FROM publications
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing publications: %w", err)
	}
	defer rows.Close()

	pubs := []model.Publication{}
	for rows.Next() {
		var p model.Publication
		var category string
		if err := rows.Scan(
			&p.ID,
			&p.Number,
			&p.URL,
			&p.Title,
			&category,
			&p.Branch,
			&p.BaseBranch,
			&p.CommitSHA,
			&p.FileCount,
			&p.Operator,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning publication: %w", err)
		}
		p.Category = model.Category(category)
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating publications: %w", err)
	}

	return pubs, nil
}
