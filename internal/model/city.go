package model

import "time"

// CityInfo is the city metadata shipped inside an offline package
type CityInfo struct {
	ID         string      `json:"id" validate:"required"`
	Name       string      `json:"name" validate:"required"`
	Country    string      `json:"country"`
	Lat        float64     `json:"lat" validate:"gte=-90,lte=90"`
	Lng        float64     `json:"lng" validate:"gte=-180,lte=180"`
	Zoom       int         `json:"zoom"`
	CruisePort *CruisePort `json:"cruisePort,omitempty"`
}

// CruisePort describes how to reach a city from its cruise terminal
type CruisePort struct {
	PortName       string   `json:"portName"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	DistanceKm     float64  `json:"distanceKm,omitempty"`
	TransportHints []string `json:"transportHints,omitempty"`
	Tips           []string `json:"tips,omitempty"`
}

// LandmarkText is one localized variant of a landmark's texts
type LandmarkText struct {
	Name        string `json:"name"`
	Narration   string `json:"narration"`
	Description string `json:"description,omitempty"`
}

// Landmark is an immutable snapshot of a landmark as served at download time
type Landmark struct {
	ID             string                  `json:"id" validate:"required"`
	CityID         string                  `json:"cityId" validate:"required"`
	Name           string                  `json:"name" validate:"required"`
	Lat            float64                 `json:"lat" validate:"gte=-90,lte=90"`
	Lng            float64                 `json:"lng" validate:"gte=-180,lte=180"`
	Radius         float64                 `json:"radius" validate:"gte=0"`
	Narration      string                  `json:"narration"`
	Description    string                  `json:"description,omitempty"`
	Category       string                  `json:"category,omitempty"`
	Translations   map[string]LandmarkText `json:"translations,omitempty"`
	Photos         []string                `json:"photos,omitempty"`
	HistoricalInfo string                  `json:"historicalInfo,omitempty"`
	YearBuilt      string                  `json:"yearBuilt,omitempty"`
	Architect      string                  `json:"architect,omitempty"`
}

// Text returns the landmark texts for lang, falling back to the untranslated fields
func (l Landmark) Text(lang string) LandmarkText {
	if t, ok := l.Translations[lang]; ok && t.Narration != "" {
		return t
	}
	return LandmarkText{Name: l.Name, Narration: l.Narration, Description: l.Description}
}

// CityPackage is the full per-city bundle kept for offline use
type CityPackage struct {
	City         CityInfo   `json:"city" validate:"required"`
	Landmarks    []Landmark `json:"landmarks" validate:"dive"`
	Version      int        `json:"version"`
	VersionTag   string     `json:"etag,omitempty"`
	DownloadedAt time.Time  `json:"downloadedAt"`
}

// DuplicateLandmark returns the first landmark id that appears more than once, or ""
func (p *CityPackage) DuplicateLandmark() string {
	seen := make(map[string]struct{}, len(p.Landmarks))
	for _, l := range p.Landmarks {
		if _, ok := seen[l.ID]; ok {
			return l.ID
		}
		seen[l.ID] = struct{}{}
	}
	return ""
}

// PackageMetadata is the storage-accounting row kept per downloaded city
type PackageMetadata struct {
	CityID        string    `json:"id" db:"city_id"`
	Name          string    `json:"name" db:"name"`
	Country       string    `json:"country" db:"country"`
	LandmarkCount int       `json:"landmarkCount" db:"landmark_count"`
	Version       int       `json:"version" db:"package_version"`
	VersionTag    string    `json:"etag,omitempty" db:"version_tag"`
	SizeBytes     int64     `json:"sizeBytes" db:"size_bytes"`
	DownloadedAt  time.Time `json:"downloadedAt" db:"downloaded_at"`
}

// SizeSummary aggregates the package store footprint
type SizeSummary struct {
	Packages       int   `json:"packages" db:"packages"`
	Landmarks      int   `json:"landmarks" db:"landmarks"`
	EstimatedBytes int64 `json:"estimatedBytes" db:"estimated_bytes"`
}

// PackageListing is one entry of the remote list of downloadable cities
type PackageListing struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Country       string `json:"country"`
	LandmarkCount int    `json:"landmarkCount"`
}
