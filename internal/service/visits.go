package service

import (
	"context"
	"fmt"

	"github.com/alexivanou/guide-offline/internal/metrics"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordVisit delivers a visit while online and queues it otherwise, or when
// delivery fails. A visit is only lost if the queue itself cannot be written.
func (s *Service) RecordVisit(ctx context.Context, landmarkID, sessionID string) (*model.VisitReceipt, error) {
	req := model.VisitRequest{LandmarkID: landmarkID, SessionID: sessionID}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	receipt := &model.VisitReceipt{LandmarkID: req.LandmarkID, SessionID: req.SessionID}

	if s.observer.Online() {
		err := s.remote.PostVisit(ctx, req)
		if err == nil {
			return receipt, nil
		}
		s.logger.Warn("Online post failed, queueing for later", zap.String("landmark_id", landmarkID), zap.Error(err))
	}

	visit, err := s.visits.Enqueue(ctx, req.LandmarkID, req.SessionID)
	if err != nil {
		return nil, err
	}
	metrics.VisitsQueued.Inc()
	receipt.Queued = true
	receipt.QueueID = visit.ID
	return receipt, nil
}

type visitKey struct {
	landmarkID string
	sessionID  string
}

// SyncQueuedVisits drains the visit queue in enqueue order. A failed entry stays
// queued and does not stop the others. Entries repeating a (landmark, session)
// pair already delivered in this pass are marked synced without another call.
// Synced entries are purged at the end of the pass.
func (s *Service) SyncQueuedVisits(ctx context.Context) (*model.SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	result := &model.SyncResult{}
	if !s.observer.Online() {
		return result, offlineError()
	}

	pending, err := s.visits.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued visits: %w", err)
	}

	delivered := make(map[visitKey]struct{})
	for _, v := range pending {
		if ctx.Err() != nil {
			break
		}
		key := visitKey{v.LandmarkID, v.SessionID}
		if _, ok := delivered[key]; ok {
			if err := s.visits.MarkSynced(ctx, v.ID); err != nil {
				s.logger.Warn("Failed to mark duplicate visit synced", zap.String("visit_id", v.ID), zap.Error(err))
				continue
			}
			result.Deduplicated++
			continue
		}

		result.Attempted++
		err := s.remote.PostVisit(ctx, model.VisitRequest{LandmarkID: v.LandmarkID, SessionID: v.SessionID})
		if err != nil {
			result.Failed++
			metrics.VisitSyncFailures.Inc()
			s.logger.Warn("Failed to sync visit", zap.String("visit_id", v.ID), zap.Error(err))

			status, ferr := s.visits.RecordFailure(ctx, v.ID, err)
			if ferr != nil {
				s.logger.Warn("Failed to record visit sync failure", zap.String("visit_id", v.ID), zap.Error(ferr))
			} else if status == model.VisitDead {
				result.DeadLettered++
				metrics.VisitsDeadLettered.Inc()
			}
			continue
		}

		if err := s.visits.MarkSynced(ctx, v.ID); err != nil {
			// the server has it; the entry is resent on the next pass
			s.logger.Warn("Failed to mark visit synced", zap.String("visit_id", v.ID), zap.Error(err))
			continue
		}
		delivered[key] = struct{}{}
		result.Synced++
		metrics.VisitsSynced.Inc()
	}

	purged, err := s.visits.PurgeSynced(ctx)
	if err != nil {
		s.logger.Warn("Failed to purge synced visits", zap.Error(err))
	}
	result.Purged = purged

	if len(pending) > 0 {
		s.logger.Info("Synced queued visits",
			zap.Int("pending", len(pending)),
			zap.Int("synced", result.Synced),
			zap.Int("deduplicated", result.Deduplicated),
			zap.Int("failed", result.Failed),
			zap.Int("dead_lettered", result.DeadLettered),
		)
	}
	return result, result.Err()
}
