// Package repository declares the persistence interfaces. Services depend on
// these interfaces; internal/repository/sqlite implements them.
package repository

import (
	"context"

	"github.com/sakif/portfolio-admin/internal/model"
)

// ListOptions pages through a result set.
type ListOptions struct {
	Limit  int
	Offset int
}

// PublicationRepository stores the history of opened pull requests.
type PublicationRepository interface {
	Record(ctx context.Context, pub *model.Publication) error
	List(ctx context.Context, opts ListOptions) ([]model.Publication, error)
}

// OperatorRepository remembers who has signed in.
type OperatorRepository interface {
	Upsert(ctx context.Context, op *model.Operator) error
	GetByLogin(ctx context.Context, login string) (*model.Operator, error)
}
