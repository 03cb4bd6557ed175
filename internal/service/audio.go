package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexivanou/guide-offline/internal/model"
	"go.uber.org/zap"
)

// DownloadAudio stores the clip described by req unless a valid clip for the
// same landmark, language and voice is already stored.
func (s *Service) DownloadAudio(ctx context.Context, req model.AudioRequest) (*model.AudioAsset, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}

	existing, err := s.audio.Get(ctx, req.LandmarkID, req.Language)
	if err != nil {
		return nil, err
	}
	if existing != nil && (req.VoiceID == "" || existing.VoiceID == req.VoiceID) {
		return existing, nil
	}
	return s.fetchAudio(ctx, req)
}

func (s *Service) fetchAudio(ctx context.Context, req model.AudioRequest) (*model.AudioAsset, error) {
	if !s.observer.Online() {
		return nil, offlineError()
	}
	data, err := s.remote.FetchAudio(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	asset := &model.AudioAsset{
		LandmarkID:      req.LandmarkID,
		Language:        req.Language,
		VoiceID:         req.VoiceID,
		Audio:           data,
		DurationSeconds: req.DurationSeconds,
		Checksum:        req.Checksum,
	}
	if err := s.audio.Save(ctx, asset); err != nil {
		return nil, err
	}
	s.logger.Info("Audio stored",
		zap.String("landmark_id", asset.LandmarkID),
		zap.String("language", asset.Language),
		zap.Int64("size_bytes", asset.SizeBytes),
	)
	return asset, nil
}

// PrefetchAudio downloads every missing clip, pacing network requests.
// It stops early when offline, out of space or cancelled.
func (s *Service) PrefetchAudio(ctx context.Context, reqs []model.AudioRequest) (*model.PrefetchResult, error) {
	result := &model.PrefetchResult{}
	for _, req := range reqs {
		if err := s.validate.Struct(req); err != nil {
			result.Failed++
			s.logger.Warn("Skipping invalid audio request", zap.String("landmark_id", req.LandmarkID), zap.Error(err))
			continue
		}
		has, err := s.audio.Has(ctx, req.LandmarkID, req.Language)
		if err != nil {
			return result, err
		}
		if has {
			result.Skipped++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}
		if _, err := s.fetchAudio(ctx, req); err != nil {
			result.Failed++
			if errors.Is(err, model.ErrOffline) || errors.Is(err, model.ErrStorageQuotaExceeded) {
				return result, err
			}
			s.logger.Warn("Audio prefetch failed", zap.String("landmark_id", req.LandmarkID), zap.Error(err))
			continue
		}
		result.Downloaded++
	}
	return result, nil
}

// GetAudio returns a stored clip. Corrupted clips read as model.ErrNotFound.
func (s *Service) GetAudio(ctx context.Context, landmarkID, language string) (*model.AudioAsset, error) {
	asset, err := s.audio.Get(ctx, landmarkID, language)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, model.ErrNotFound
	}
	return asset, nil
}

// ListAudio returns clip metadata for the landmarks of a downloaded city
func (s *Service) ListAudio(ctx context.Context, cityID string) ([]model.AudioAsset, error) {
	landmarks, err := s.packages.GetLandmarks(ctx, cityID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(landmarks))
	for _, l := range landmarks {
		ids = append(ids, l.ID)
	}
	return s.audio.ListForLandmarks(ctx, ids)
}

func (s *Service) ClearAudio(ctx context.Context) error {
	return s.audio.ClearAll(ctx)
}
