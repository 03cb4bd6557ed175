package service

import (
	"sort"
	"sync"
	"time"

	"github.com/alexivanou/guide-offline/internal/model"
)

type progressEntry struct {
	progress model.DownloadProgress
	timer    *time.Timer
}

// progressTracker keeps per-city download progress. Terminal states are
// dismissed after a delay.
type progressTracker struct {
	mu              sync.Mutex
	entries         map[string]*progressEntry
	completeDismiss time.Duration
	errorDismiss    time.Duration
}

func newProgressTracker(completeDismiss, errorDismiss time.Duration) *progressTracker {
	return &progressTracker{
		entries:         make(map[string]*progressEntry),
		completeDismiss: completeDismiss,
		errorDismiss:    errorDismiss,
	}
}

func (t *progressTracker) set(cityID string, status model.DownloadStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[cityID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	entry := &progressEntry{progress: model.DownloadProgress{
		CityID:    cityID,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}}
	t.entries[cityID] = entry

	var delay time.Duration
	switch status {
	case model.DownloadComplete:
		delay = t.completeDismiss
	case model.DownloadError:
		delay = t.errorDismiss
	default:
		return
	}
	entry.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// a newer download may have replaced this entry
		if t.entries[cityID] == entry {
			delete(t.entries, cityID)
		}
	})
}

func (t *progressTracker) get(cityID string) (model.DownloadProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[cityID]
	if !ok {
		return model.DownloadProgress{}, false
	}
	return e.progress, true
}

func (t *progressTracker) list() []model.DownloadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.DownloadProgress, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.progress)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CityID < out[j].CityID })
	return out
}

func (t *progressTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
