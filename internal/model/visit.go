package model

import "time"

// VisitStatus is the lifecycle state of a queued visit
type VisitStatus string

const (
	VisitPending VisitStatus = "pending"
	VisitSynced  VisitStatus = "synced"
	// VisitDead marks entries that exhausted their sync attempts.
	VisitDead VisitStatus = "dead"
)

// QueuedVisit is a locally recorded visit awaiting server acknowledgement
type QueuedVisit struct {
	ID         string      `json:"id" db:"id"`
	LandmarkID string      `json:"landmarkId" db:"landmark_id"`
	SessionID  string      `json:"sessionId" db:"session_id"`
	QueuedAt   time.Time   `json:"queuedAt" db:"queued_at"`
	Status     VisitStatus `json:"status" db:"status"`
	Attempts   int         `json:"attempts" db:"attempts"`
	LastError  string      `json:"lastError,omitempty" db:"last_error"`
}

// Synced reports whether the server has acknowledged the visit
func (v QueuedVisit) Synced() bool {
	return v.Status == VisitSynced
}

// VisitCounts summarises the queue by status
type VisitCounts struct {
	Pending int `json:"pending" db:"pending"`
	Synced  int `json:"synced" db:"synced"`
	Dead    int `json:"dead" db:"dead"`
}

// VisitRequest is the body of POST /visited
type VisitRequest struct {
	LandmarkID string `json:"landmarkId" validate:"required"`
	SessionID  string `json:"sessionId,omitempty"`
}

// VisitReceipt tells the caller whether a visit was delivered or queued
type VisitReceipt struct {
	LandmarkID string `json:"landmarkId"`
	SessionID  string `json:"sessionId"`
	Queued     bool   `json:"queued"`
	QueueID    string `json:"queueId,omitempty"`
}

// SyncResult reports one drain pass over the visit queue
type SyncResult struct {
	Attempted    int `json:"attempted"`
	Synced       int `json:"synced"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"deadLettered"`
	Purged       int `json:"purged"`
}

// Err returns ErrPartialSyncFailure when some entries stayed queued
func (r SyncResult) Err() error {
	if r.Failed > 0 {
		return ErrPartialSyncFailure
	}
	return nil
}
