package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexivanou/guide-offline/internal/metrics"
	"github.com/alexivanou/guide-offline/internal/model"
	"go.uber.org/zap"
)

// DownloadCity fetches the offline package of a city and stores it. The locally
// known version tag is sent so an unchanged package transfers no data.
// Callers must not run overlapping downloads of the same city.
func (s *Service) DownloadCity(ctx context.Context, cityID string) error {
	if cityID == "" {
		return fmt.Errorf("%w: missing city id", model.ErrInvalidRequest)
	}
	s.progress.set(cityID, model.DownloadDownloading, "Downloading...")

	message, err := s.downloadCity(ctx, cityID)
	if err != nil {
		result := "failed"
		message = err.Error()
		if errors.Is(err, model.ErrStorageQuotaExceeded) {
			result = "quota_exceeded"
			message = model.ErrorCode(err)
		}
		metrics.PackageDownloads.WithLabelValues(result).Inc()
		s.progress.set(cityID, model.DownloadError, message)
		s.logger.Warn("City download failed", zap.String("city_id", cityID), zap.Error(err))
		return err
	}

	s.progress.set(cityID, model.DownloadComplete, message)
	return nil
}

func (s *Service) downloadCity(ctx context.Context, cityID string) (string, error) {
	if !s.observer.Online() {
		return "", offlineError()
	}

	meta, err := s.packages.GetMetadata(ctx, cityID)
	if err != nil {
		return "", fmt.Errorf("failed to read package metadata: %w", err)
	}
	versionTag := ""
	if meta != nil {
		versionTag = meta.VersionTag
	}

	res, err := s.remote.FetchPackage(ctx, cityID, versionTag)
	if err != nil {
		return "", err
	}
	if res.NotModified {
		metrics.PackageDownloads.WithLabelValues("not_modified").Inc()
		s.logger.Info("Package already up to date", zap.String("city_id", cityID), zap.String("version_tag", versionTag))
		return "Already up to date", nil
	}

	pkg := res.Package
	if err := s.validatePackage(pkg, cityID); err != nil {
		return "", err
	}
	if pkg.DownloadedAt.IsZero() {
		pkg.DownloadedAt = time.Now().UTC()
	}
	if err := s.packages.Save(ctx, pkg, res.VersionTag); err != nil {
		return "", err
	}

	metrics.PackageDownloads.WithLabelValues("saved").Inc()
	s.logger.Info("City downloaded",
		zap.String("city_id", cityID),
		zap.Int("landmarks", len(pkg.Landmarks)),
		zap.Int64("bytes", res.BytesTransferred),
	)
	return fmt.Sprintf("Downloaded %d items", len(pkg.Landmarks)), nil
}

// validatePackage normalises landmark ownership and checks the package belongs to cityID
func (s *Service) validatePackage(pkg *model.CityPackage, cityID string) error {
	if pkg == nil {
		return fmt.Errorf("%w: empty package", model.ErrInvalidPackage)
	}
	if pkg.City.ID != cityID {
		return fmt.Errorf("%w: package is for city %q, want %q", model.ErrInvalidPackage, pkg.City.ID, cityID)
	}
	for i := range pkg.Landmarks {
		if pkg.Landmarks[i].CityID == "" {
			pkg.Landmarks[i].CityID = cityID
		}
	}
	if err := s.validate.Struct(pkg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidPackage, err)
	}
	if id := pkg.DuplicateLandmark(); id != "" {
		return fmt.Errorf("%w: landmark %q appears more than once", model.ErrInvalidPackage, id)
	}
	return nil
}

// Progress returns the current download progress of a city, if any
func (s *Service) Progress(cityID string) (model.DownloadProgress, bool) {
	return s.progress.get(cityID)
}

// DeleteCity removes a downloaded package. Audio is kept.
func (s *Service) DeleteCity(ctx context.Context, cityID string) error {
	if err := s.packages.Delete(ctx, cityID); err != nil {
		return fmt.Errorf("failed to delete city %s: %w", cityID, err)
	}
	return nil
}

// IsCityDownloaded reports whether a package for cityID is stored
func (s *Service) IsCityDownloaded(ctx context.Context, cityID string) (bool, error) {
	return s.packages.IsDownloaded(ctx, cityID)
}

// DownloadedCities lists stored packages. Store errors yield an empty list.
func (s *Service) DownloadedCities(ctx context.Context) []model.PackageMetadata {
	cities, err := s.packages.ListMetadata(ctx)
	if err != nil {
		s.logger.Error("Failed to load downloaded cities", zap.Error(err))
		return []model.PackageMetadata{}
	}
	return cities
}

// ListAvailablePackages lists the cities the server offers for download
func (s *Service) ListAvailablePackages(ctx context.Context) ([]model.PackageListing, error) {
	if !s.observer.Online() {
		return nil, offlineError()
	}
	return s.remote.ListPackages(ctx)
}
