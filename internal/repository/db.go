package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// storageError converts a driver error into the application taxonomy and
// logs anything that is not a plain miss.
func storageError(log logger.Logger, err error, op string, args ...any) error {
	if err == nil {
		return nil
	}
	if apperrors.IsCategorized(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("%s: not found", op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			log.Warn("Unique violation", append(args, "op", op, "constraint", pgErr.ConstraintName)...)
			return apperrors.Conflict("%s: already exists", op)
		case pgForeignKeyViolation:
			log.Warn("Foreign key violation", append(args, "op", op, "constraint", pgErr.ConstraintName)...)
			return apperrors.NotFound("%s: referenced entity not found", op)
		}
	}
	log.Error("Storage operation failed", append(args, "op", op, "error", err)...)
	return apperrors.Unavailable(err, "%s: storage unavailable", op)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
