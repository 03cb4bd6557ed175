package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexivanou/guide-offline/internal/metrics"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type audioRepository struct {
	db     *sqlx.DB
	quota  *quotaGuard
	logger *zap.Logger
}

// Save stores the clip, replacing whatever voice was stored for the same landmark and language.
// A missing checksum is computed; a supplied one that does not match the bytes is rejected.
func (r *audioRepository) Save(ctx context.Context, asset *model.AudioAsset) error {
	if asset == nil || asset.LandmarkID == "" || asset.Language == "" {
		return errors.New("audio asset requires landmark id and language")
	}
	if asset.Checksum == "" {
		asset.Checksum = model.Checksum(asset.Audio)
	} else if err := asset.Verify(); err != nil {
		return err
	}
	asset.SizeBytes = int64(len(asset.Audio))
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateStorageError(err)
	}
	defer tx.Rollback()

	var released int64
	q := tx.Rebind("SELECT COALESCE(SUM(size_bytes), 0) FROM audio_assets WHERE landmark_id = ? AND language = ?")
	if err := tx.GetContext(ctx, &released, q, asset.LandmarkID, asset.Language); err != nil {
		return err
	}
	if err := r.quota.check(ctx, tx, released, asset.SizeBytes); err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO audio_assets (landmark_id, language, voice_id, audio, duration_seconds, size_bytes, checksum, created_at)
		VALUES (:landmark_id, :language, :voice_id, :audio, :duration_seconds, :size_bytes, :checksum, :created_at)
		ON CONFLICT (landmark_id, language) DO UPDATE SET
			voice_id = excluded.voice_id,
			audio = excluded.audio,
			duration_seconds = excluded.duration_seconds,
			size_bytes = excluded.size_bytes,
			checksum = excluded.checksum,
			created_at = excluded.created_at`, asset)
	if err != nil {
		return translateStorageError(err)
	}
	return translateStorageError(tx.Commit())
}

// Get returns the clip or nil. A clip whose bytes fail verification is purged and reported absent.
func (r *audioRepository) Get(ctx context.Context, landmarkID, language string) (*model.AudioAsset, error) {
	var asset model.AudioAsset
	q := r.db.Rebind(`SELECT landmark_id, language, voice_id, audio, duration_seconds, size_bytes, checksum, created_at
		FROM audio_assets WHERE landmark_id = ? AND language = ?`)
	if err := r.db.GetContext(ctx, &asset, q, landmarkID, language); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := asset.Verify(); err != nil {
		metrics.AudioIntegrityFailures.Inc()
		r.logger.Warn("Discarding corrupted audio asset",
			zap.String("landmark_id", landmarkID),
			zap.String("language", language),
			zap.Error(err),
		)
		if delErr := r.Delete(ctx, landmarkID, language); delErr != nil {
			r.logger.Warn("Failed to purge corrupted audio asset", zap.Error(delErr))
		}
		return nil, nil
	}
	return &asset, nil
}

func (r *audioRepository) Has(ctx context.Context, landmarkID, language string) (bool, error) {
	asset, err := r.Get(ctx, landmarkID, language)
	if err != nil {
		return false, err
	}
	return asset != nil, nil
}

// ListForLandmarks returns clip metadata for the given landmarks without the audio bytes.
func (r *audioRepository) ListForLandmarks(ctx context.Context, landmarkIDs []string) ([]model.AudioAsset, error) {
	if len(landmarkIDs) == 0 {
		return []model.AudioAsset{}, nil
	}
	query, args, err := sqlx.In(`SELECT landmark_id, language, voice_id, duration_seconds, size_bytes, checksum, created_at
		FROM audio_assets WHERE landmark_id IN (?) ORDER BY landmark_id, language`, landmarkIDs)
	if err != nil {
		return nil, err
	}
	assets := []model.AudioAsset{}
	if err := r.db.SelectContext(ctx, &assets, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *audioRepository) Delete(ctx context.Context, landmarkID, language string) error {
	q := r.db.Rebind("DELETE FROM audio_assets WHERE landmark_id = ? AND language = ?")
	if _, err := r.db.ExecContext(ctx, q, landmarkID, language); err != nil {
		return fmt.Errorf("failed to delete audio %s/%s: %w", landmarkID, language, err)
	}
	return nil
}

func (r *audioRepository) ClearAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM audio_assets")
	return err
}

func (r *audioRepository) Stats(ctx context.Context) (*model.AudioStats, error) {
	var stats model.AudioStats
	q := "SELECT COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS total_bytes FROM audio_assets"
	if err := r.db.GetContext(ctx, &stats, q); err != nil {
		return nil, err
	}
	return &stats, nil
}
