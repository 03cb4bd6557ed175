package service

import (
	"context"

	"github.com/alexivanou/guide-offline/internal/model"
)

// ServiceInterface defines the service interface for testing
type ServiceInterface interface {
	Status(ctx context.Context) *model.OfflineStatus
	IsOnline() bool

	DownloadCity(ctx context.Context, cityID string) error
	Progress(cityID string) (model.DownloadProgress, bool)
	DeleteCity(ctx context.Context, cityID string) error
	IsCityDownloaded(ctx context.Context, cityID string) (bool, error)
	DownloadedCities(ctx context.Context) []model.PackageMetadata
	ListAvailablePackages(ctx context.Context) ([]model.PackageListing, error)

	GetCities(ctx context.Context) []model.CityInfo
	GetCity(ctx context.Context, id string) *model.CityInfo
	GetLandmarks(ctx context.Context, cityID string) []model.Landmark
	GetLandmark(ctx context.Context, id string) *model.Landmark

	RecordVisit(ctx context.Context, landmarkID, sessionID string) (*model.VisitReceipt, error)
	SyncQueuedVisits(ctx context.Context) (*model.SyncResult, error)

	DownloadAudio(ctx context.Context, req model.AudioRequest) (*model.AudioAsset, error)
	PrefetchAudio(ctx context.Context, reqs []model.AudioRequest) (*model.PrefetchResult, error)
	GetAudio(ctx context.Context, landmarkID, language string) (*model.AudioAsset, error)
	ListAudio(ctx context.Context, cityID string) ([]model.AudioAsset, error)
	ClearAudio(ctx context.Context) error

	StorageInfo(ctx context.Context) (*model.StorageInfo, error)
	ClearAllOfflineData(ctx context.Context) error
	ExportBundle(ctx context.Context, password string) (string, error)
	ImportBundle(ctx context.Context, payload, password string) (*model.ImportResult, error)
}

var _ ServiceInterface = (*Service)(nil)
