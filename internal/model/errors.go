package model

import "errors"

var (
	// ErrNetworkFailure covers transport errors, open circuits and server faults.
	ErrNetworkFailure = errors.New("network failure")

	// ErrOffline is returned when a network call is skipped because the device is offline.
	ErrOffline = errors.New("offline")

	// ErrStorageQuotaExceeded means the persistent store rejected a write for space reasons.
	ErrStorageQuotaExceeded = errors.New("STORAGE_QUOTA_EXCEEDED")

	// ErrIntegrityFailure means stored bytes no longer match their checksum.
	ErrIntegrityFailure = errors.New("integrity check failed")

	// ErrDecryptionFailure means a wrong password or a corrupted payload.
	ErrDecryptionFailure = errors.New("decryption failed: wrong password or corrupted data")

	// ErrPartialSyncFailure means some queued visits stayed queued after a drain.
	ErrPartialSyncFailure = errors.New("some queued visits failed to sync")

	// ErrInvalidPackage means a package failed validation.
	ErrInvalidPackage = errors.New("invalid offline package")

	// ErrInvalidRequest means a caller supplied malformed input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned for unknown remote resources.
	ErrNotFound = errors.New("not found")
)

// ErrorCode maps an error to the stable code shown to the UI
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageQuotaExceeded):
		return "STORAGE_QUOTA_EXCEEDED"
	case errors.Is(err, ErrDecryptionFailure):
		return "DECRYPTION_FAILED"
	case errors.Is(err, ErrInvalidPackage):
		return "INVALID_PACKAGE"
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrOffline):
		return "OFFLINE"
	case errors.Is(err, ErrNetworkFailure):
		return "NETWORK_FAILURE"
	case errors.Is(err, ErrIntegrityFailure):
		return "INTEGRITY_FAILURE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	}
	return "INTERNAL_ERROR"
}
