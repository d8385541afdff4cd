package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/portfolio-admin/internal/apperror"
	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

var _ repository.OperatorRepository = (*DB)(nil)

// Upsert inserts or refreshes an operator keyed by GitHub ID.
//
// An existing row keeps its internal ID and CreatedAt; Login and AvatarURL
// are overwritten since both can change on GitHub. On return op holds the
// canonical row.
func (db *DB) Upsert(ctx context.Context, op *model.Operator) error {
	now := time.Now().UTC()

	var existingID string
	var createdAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM operators WHERE github_id = ?`, op.GitHubID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up operator by github_id %d: %w", op.GitHubID, err)
	}

	if existingID != "" {
		op.ID = existingID
		op.CreatedAt = createdAt
		op.LastLoginAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE operators SET login = ?, avatar_url = ?, last_login_at = ?
			 WHERE id = ?`,
			op.Login,
			op.AvatarURL,
			op.LastLoginAt,
			op.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating operator %s: %w", op.ID, err)
		}
		return nil
	}

	op.ID = xid.New().String()
	op.CreatedAt = now
	op.LastLoginAt = now
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO operators (id, github_id, login, avatar_url, created_at, last_login_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		op.ID,
		op.GitHubID,
		op.Login,
		op.AvatarURL,
		op.CreatedAt,
		op.LastLoginAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting operator (githubID=%d): %w", op.GitHubID, err)
	}
	return nil
}

// GetByLogin looks an operator up by GitHub login, case-insensitively.
// Returns apperror.ErrNotFound if nobody with that login has signed in.
func (db *DB) GetByLogin(ctx context.Context, login string) (*model.Operator, error) {
	var op model.Operator

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, avatar_url, created_at, last_login_at
		 FROM operators WHERE login = ? COLLATE NOCASE
		 ORDER BY last_login_at DESC LIMIT 1`,
		login,
	).Scan(
		&op.ID,
		&op.GitHubID,
		&op.Login,
		&op.AvatarURL,
		&op.CreatedAt,
		&op.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("operator", login)
		}
		return nil, fmt.Errorf("sqlite: getting operator %s: %w", login, err)
	}

	return &op, nil
}
