package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// pgDiskFull is the SQLSTATE for disk_full.
const pgDiskFull = "53100"

type quotaGuard struct {
	limit int64
}

// check fails with ErrStorageQuotaExceeded if writing incoming bytes, after releasing
// the bytes held by the row being replaced, would push the store over its limit.
func (q *quotaGuard) check(ctx context.Context, tx *sqlx.Tx, released, incoming int64) error {
	if q.limit <= 0 {
		return nil
	}
	var used int64
	query := `SELECT
		(SELECT COALESCE(SUM(size_bytes), 0) FROM city_packages) +
		(SELECT COALESCE(SUM(size_bytes), 0) FROM audio_assets)`
	if err := tx.GetContext(ctx, &used, query); err != nil {
		return fmt.Errorf("failed to read storage usage: %w", err)
	}
	if used-released+incoming > q.limit {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use", model.ErrStorageQuotaExceeded, incoming, used-released, q.limit)
	}
	return nil
}

// translateStorageError maps driver disk-full errors to ErrStorageQuotaExceeded.
func translateStorageError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", model.ErrStorageQuotaExceeded, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDiskFull {
		return fmt.Errorf("%w: %v", model.ErrStorageQuotaExceeded, err)
	}
	return err
}
