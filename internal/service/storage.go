package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexivanou/guide-offline/internal/codec"
	"github.com/alexivanou/guide-offline/internal/model"
	"go.uber.org/zap"
)

// BundleFormatVersion is the export format written by ExportBundle
const BundleFormatVersion = 1

// StorageInfo aggregates package, audio and visit queue accounting
func (s *Service) StorageInfo(ctx context.Context) (*model.StorageInfo, error) {
	packages, err := s.packages.SizeSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read package summary: %w", err)
	}
	audio, err := s.audio.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio stats: %w", err)
	}
	visits, err := s.visits.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read visit queue: %w", err)
	}
	return &model.StorageInfo{Packages: *packages, Audio: *audio, Visits: *visits}, nil
}

// ClearAllOfflineData removes every package and the visit queue. Audio is cleared separately.
func (s *Service) ClearAllOfflineData(ctx context.Context) error {
	if err := s.packages.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear packages: %w", err)
	}
	if err := s.visits.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear visit queue: %w", err)
	}
	s.logger.Info("Cleared all offline data")
	return nil
}

// ExportBundle encrypts every stored package and every undelivered visit with password
func (s *Service) ExportBundle(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", model.ErrInvalidRequest)
	}

	metas, err := s.packages.ListMetadata(ctx)
	if err != nil {
		return "", err
	}
	bundle := model.Bundle{
		FormatVersion: BundleFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Packages:      make([]model.CityPackage, 0, len(metas)),
		Visits:        []model.QueuedVisit{},
	}
	for _, meta := range metas {
		pkg, err := s.packages.GetPackage(ctx, meta.CityID)
		if err != nil {
			return "", fmt.Errorf("failed to read package %s: %w", meta.CityID, err)
		}
		if pkg != nil {
			bundle.Packages = append(bundle.Packages, *pkg)
		}
	}

	visits, err := s.visits.ListAll(ctx)
	if err != nil {
		return "", err
	}
	for _, v := range visits {
		if !v.Synced() {
			bundle.Visits = append(bundle.Visits, v)
		}
	}

	payload, err := codec.EncryptJSON(bundle, password)
	if err != nil {
		return "", err
	}
	s.logger.Info("Exported offline bundle",
		zap.Int("packages", len(bundle.Packages)),
		zap.Int("visits", len(bundle.Visits)),
	)
	return payload, nil
}

// ImportBundle decrypts an exported bundle and stores its contents. Packages
// whose version tag matches the stored one are skipped; known visits are ignored.
// Every package is validated before anything is written.
func (s *Service) ImportBundle(ctx context.Context, payload, password string) (*model.ImportResult, error) {
	var bundle model.Bundle
	if err := codec.DecryptJSON(payload, password, &bundle); err != nil {
		return nil, err
	}
	if bundle.FormatVersion < 1 || bundle.FormatVersion > BundleFormatVersion {
		return nil, fmt.Errorf("%w: unsupported bundle format %d", model.ErrInvalidPackage, bundle.FormatVersion)
	}
	for i := range bundle.Packages {
		pkg := &bundle.Packages[i]
		if err := s.validatePackage(pkg, pkg.City.ID); err != nil {
			return nil, err
		}
	}

	result := &model.ImportResult{}
	for i := range bundle.Packages {
		pkg := &bundle.Packages[i]
		meta, err := s.packages.GetMetadata(ctx, pkg.City.ID)
		if err != nil {
			return result, err
		}
		if meta != nil && pkg.VersionTag != "" && meta.VersionTag == pkg.VersionTag {
			result.PackagesSkipped++
			continue
		}
		if err := s.packages.Save(ctx, pkg, pkg.VersionTag); err != nil {
			return result, err
		}
		result.PackagesImported++
	}

	n, err := s.visits.Import(ctx, bundle.Visits)
	if err != nil {
		return result, err
	}
	result.VisitsImported = n

	s.logger.Info("Imported offline bundle",
		zap.Int("packages_imported", result.PackagesImported),
		zap.Int("packages_skipped", result.PackagesSkipped),
		zap.Int("visits_imported", result.VisitsImported),
	)
	return result, nil
}
