package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// AudioAsset is a stored narration clip for one landmark in one language
type AudioAsset struct {
	LandmarkID      string    `json:"landmarkId" db:"landmark_id"`
	Language        string    `json:"language" db:"language"`
	VoiceID         string    `json:"voiceId" db:"voice_id"`
	Audio           []byte    `json:"-" db:"audio"`
	DurationSeconds float64   `json:"durationSeconds" db:"duration_seconds"`
	SizeBytes       int64     `json:"sizeBytes" db:"size_bytes"`
	Checksum        string    `json:"checksum" db:"checksum"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// AudioStats aggregates the audio store footprint
type AudioStats struct {
	Count      int   `json:"count" db:"count"`
	TotalBytes int64 `json:"totalBytes" db:"total_bytes"`
}

// Checksum returns the hex SHA-256 digest used to detect corrupted audio
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of the audio bytes and compares it to the stored checksum
func (a *AudioAsset) Verify() error {
	if got := Checksum(a.Audio); got != a.Checksum {
		return fmt.Errorf("%w: audio %s/%s checksum %s, want %s", ErrIntegrityFailure, a.LandmarkID, a.Language, got, a.Checksum)
	}
	return nil
}

// AudioRequest describes one clip to fetch from the server
type AudioRequest struct {
	LandmarkID      string  `json:"landmarkId" validate:"required"`
	Language        string  `json:"language" validate:"required"`
	VoiceID         string  `json:"voiceId"`
	URL             string  `json:"audioUrl" validate:"required,uri"`
	DurationSeconds float64 `json:"duration"`
	Checksum        string  `json:"checksum"`
}

// PrefetchResult reports a bulk audio download
type PrefetchResult struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}
