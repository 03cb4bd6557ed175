package repository

import (
	"context"

	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PackageRepository stores one versioned offline package per city
type PackageRepository interface {
	GetMetadata(ctx context.Context, cityID string) (*model.PackageMetadata, error)
	ListMetadata(ctx context.Context) ([]model.PackageMetadata, error)
	Save(ctx context.Context, pkg *model.CityPackage, versionTag string) error
	GetCity(ctx context.Context, cityID string) (*model.CityInfo, error)
	GetAllCities(ctx context.Context) ([]model.CityInfo, error)
	GetPackage(ctx context.Context, cityID string) (*model.CityPackage, error)
	GetLandmarks(ctx context.Context, cityID string) ([]model.Landmark, error)
	GetLandmark(ctx context.Context, id string) (*model.Landmark, error)
	IsDownloaded(ctx context.Context, cityID string) (bool, error)
	Delete(ctx context.Context, cityID string) error
	SizeSummary(ctx context.Context) (*model.SizeSummary, error)
	ClearAll(ctx context.Context) error
}

// AudioRepository stores per-(landmark, language) narration clips
type AudioRepository interface {
	Has(ctx context.Context, landmarkID, language string) (bool, error)
	Save(ctx context.Context, asset *model.AudioAsset) error
	Get(ctx context.Context, landmarkID, language string) (*model.AudioAsset, error)
	ListForLandmarks(ctx context.Context, landmarkIDs []string) ([]model.AudioAsset, error)
	Delete(ctx context.Context, landmarkID, language string) error
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (*model.AudioStats, error)
}

// VisitRepository is the durable queue of visits awaiting server acknowledgement
type VisitRepository interface {
	Enqueue(ctx context.Context, landmarkID, sessionID string) (*model.QueuedVisit, error)
	ListPending(ctx context.Context) ([]model.QueuedVisit, error)
	ListAll(ctx context.Context) ([]model.QueuedVisit, error)
	MarkSynced(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, cause error) (model.VisitStatus, error)
	PurgeSynced(ctx context.Context) (int, error)
	Counts(ctx context.Context) (*model.VisitCounts, error)
	Import(ctx context.Context, visits []model.QueuedVisit) (int, error)
	Clear(ctx context.Context) error
}

// Options tunes repository behaviour
type Options struct {
	// QuotaBytes caps the combined package and audio footprint. 0 disables the check.
	QuotaBytes int64
	// MaxAttempts dead-letters a visit after that many failures. 0 retries forever.
	MaxAttempts int
	Logger      *zap.Logger
}

// Container holds all repositories
type Container struct {
	Packages PackageRepository
	Audio    AudioRepository
	Visits   VisitRepository
}

// NewRepositories creates repository implementations for the configured database.
// Queries are written with '?' placeholders and rebound for the driver in use.
func NewRepositories(db *sqlx.DB, dbType config.DBType, opts Options) *Container {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	quota := &quotaGuard{limit: opts.QuotaBytes}
	return &Container{
		Packages: &packageRepository{db: db, quota: quota, logger: logger},
		Audio:    &audioRepository{db: db, quota: quota, logger: logger},
		Visits:   newVisitRepository(db, opts.MaxAttempts, logger),
	}
}

// IsStoreEmpty reports whether no package has been stored yet (used by main to auto-seed)
func IsStoreEmpty(ctx context.Context, db *sqlx.DB) (bool, error) {
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM city_packages"); err != nil {
		return true, nil
	}
	return count == 0, nil
}
