package model

import "time"

// DownloadStatus is the terminal or in-flight state of a city download
type DownloadStatus string

const (
	DownloadDownloading DownloadStatus = "downloading"
	DownloadComplete    DownloadStatus = "complete"
	DownloadError       DownloadStatus = "error"
)

// DownloadProgress is shown per city while and shortly after a download runs
type DownloadProgress struct {
	CityID    string         `json:"cityId"`
	Status    DownloadStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// OfflineStatus is the state exposed to the UI layer
type OfflineStatus struct {
	IsOnline         bool               `json:"isOnline"`
	IsInitialized    bool               `json:"isInitialized"`
	DownloadedCities []PackageMetadata  `json:"downloadedCities"`
	DownloadProgress []DownloadProgress `json:"downloadProgress"`
}

// StorageInfo aggregates every persistent store for storage displays
type StorageInfo struct {
	Packages SizeSummary `json:"packages"`
	Audio    AudioStats  `json:"audio"`
	Visits   VisitCounts `json:"visits"`
}

// Bundle is the plaintext of an encrypted export file
type Bundle struct {
	FormatVersion int           `json:"formatVersion"`
	ExportedAt    time.Time     `json:"exportedAt"`
	Packages      []CityPackage `json:"packages"`
	Visits        []QueuedVisit `json:"visits"`
}

// ImportResult reports what an import changed
type ImportResult struct {
	PackagesImported int `json:"packagesImported"`
	PackagesSkipped  int `json:"packagesSkipped"`
	VisitsImported   int `json:"visitsImported"`
}
