package service

import (
	"context"

	"github.com/alexivanou/guide-offline/internal/model"
	"go.uber.org/zap"
)

// Reads try the network while online and fall back to the package store.
// They never fail: a store error degrades to an empty result.

func (s *Service) GetCities(ctx context.Context) []model.CityInfo {
	if s.observer.Online() {
		cities, err := s.remote.GetCities(ctx)
		if err == nil {
			return cities
		}
		s.logger.Warn("Online fetch failed, falling back to offline", zap.String("resource", "cities"), zap.Error(err))
	}
	cities, err := s.packages.GetAllCities(ctx)
	if err != nil {
		s.logger.Error("Failed to read offline cities", zap.Error(err))
		return []model.CityInfo{}
	}
	return cities
}

// GetCity returns nil when the city is known neither online nor offline
func (s *Service) GetCity(ctx context.Context, id string) *model.CityInfo {
	if s.observer.Online() {
		city, err := s.remote.GetCity(ctx, id)
		if err == nil {
			return city
		}
		s.logger.Warn("Online fetch failed, falling back to offline", zap.String("city_id", id), zap.Error(err))
	}
	city, err := s.packages.GetCity(ctx, id)
	if err != nil {
		s.logger.Error("Failed to read offline city", zap.String("city_id", id), zap.Error(err))
		return nil
	}
	return city
}

// GetLandmarks lists landmarks of one city, or of every city when cityID is empty
func (s *Service) GetLandmarks(ctx context.Context, cityID string) []model.Landmark {
	if s.observer.Online() {
		landmarks, err := s.remote.GetLandmarks(ctx, cityID)
		if err == nil {
			return landmarks
		}
		s.logger.Warn("Online fetch failed, falling back to offline", zap.String("resource", "landmarks"), zap.String("city_id", cityID), zap.Error(err))
	}
	landmarks, err := s.packages.GetLandmarks(ctx, cityID)
	if err != nil {
		s.logger.Error("Failed to read offline landmarks", zap.String("city_id", cityID), zap.Error(err))
		return []model.Landmark{}
	}
	return landmarks
}

func (s *Service) GetLandmark(ctx context.Context, id string) *model.Landmark {
	if s.observer.Online() {
		landmark, err := s.remote.GetLandmark(ctx, id)
		if err == nil {
			return landmark
		}
		s.logger.Warn("Online fetch failed, falling back to offline", zap.String("landmark_id", id), zap.Error(err))
	}
	landmark, err := s.packages.GetLandmark(ctx, id)
	if err != nil {
		s.logger.Error("Failed to read offline landmark", zap.String("landmark_id", id), zap.Error(err))
		return nil
	}
	return landmark
}
