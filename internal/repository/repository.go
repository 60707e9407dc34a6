package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// Repository is the Postgres-backed store for all durable state. It is the
// only coordination point between concurrent scheduler invocations; see
// PublishDueItem for the conditional write that makes that safe.
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewRepository(db *sql.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
