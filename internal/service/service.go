package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexivanou/guide-offline/internal/client"
	"github.com/alexivanou/guide-offline/internal/connectivity"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/alexivanou/guide-offline/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteAPI is the subset of the remote guide API the coordinator needs
type RemoteAPI interface {
	FetchPackage(ctx context.Context, cityID, versionTag string) (*client.PackageResult, error)
	ListPackages(ctx context.Context) ([]model.PackageListing, error)
	PostVisit(ctx context.Context, visit model.VisitRequest) error
	GetCities(ctx context.Context) ([]model.CityInfo, error)
	GetCity(ctx context.Context, id string) (*model.CityInfo, error)
	GetLandmarks(ctx context.Context, cityID string) ([]model.Landmark, error)
	GetLandmark(ctx context.Context, id string) (*model.Landmark, error)
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// Options tunes the coordinator
type Options struct {
	// AudioInterval paces bulk audio downloads. 0 disables pacing.
	AudioInterval time.Duration
	// CompleteDismiss and ErrorDismiss control how long terminal progress stays visible.
	CompleteDismiss time.Duration
	ErrorDismiss    time.Duration
	Logger          *zap.Logger
}

// Service is the sync coordinator. It fronts reads with an online-first,
// store-fallback policy, queues visits while offline and drains the queue
// when connectivity returns.
type Service struct {
	packages repository.PackageRepository
	audio    repository.AudioRepository
	visits   repository.VisitRepository
	remote   RemoteAPI
	observer connectivity.Observer
	validate *validator.Validate
	limiter  *rate.Limiter
	progress *progressTracker
	logger   *zap.Logger

	initialized atomic.Bool
	syncMu      sync.Mutex

	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	closed      bool
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewService creates the coordinator and subscribes it to connectivity changes.
// Close must be called to unsubscribe and wait for background drains.
func NewService(repos *repository.Container, remote RemoteAPI, observer connectivity.Observer, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CompleteDismiss <= 0 {
		opts.CompleteDismiss = 2 * time.Second
	}
	if opts.ErrorDismiss <= 0 {
		opts.ErrorDismiss = 3 * time.Second
	}
	limit := rate.Inf
	if opts.AudioInterval > 0 {
		limit = rate.Every(opts.AudioInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		packages: repos.Packages,
		audio:    repos.Audio,
		visits:   repos.Visits,
		remote:   remote,
		observer: observer,
		validate: validator.New(),
		limiter:  rate.NewLimiter(limit, 1),
		progress: newProgressTracker(opts.CompleteDismiss, opts.ErrorDismiss),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.unsubscribe = observer.Subscribe(s.onConnectivityChange)
	return s
}

// Initialize checks the store is readable and, when online, drains visits left
// over from a previous run.
func (s *Service) Initialize(ctx context.Context) error {
	if _, err := s.packages.ListMetadata(ctx); err != nil {
		return err
	}
	s.initialized.Store(true)
	if s.observer.Online() {
		s.drainInBackground()
	}
	return nil
}

func (s *Service) onConnectivityChange(online bool) {
	if !online {
		s.logger.Info("Network status: offline")
		return
	}
	s.logger.Info("Network status: online")
	s.drainInBackground()
}

func (s *Service) drainInBackground() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		result, err := s.SyncQueuedVisits(s.ctx)
		if err != nil && !errors.Is(err, model.ErrOffline) && !errors.Is(err, model.ErrPartialSyncFailure) {
			s.logger.Error("Background visit sync failed", zap.Error(err))
			return
		}
		if result != nil && result.Attempted+result.Deduplicated > 0 {
			s.logger.Info("Background visit sync finished",
				zap.Int("synced", result.Synced),
				zap.Int("failed", result.Failed),
			)
		}
	}()
}

// Close unsubscribes from connectivity changes and waits for background work
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
	s.progress.stop()
}

// Status returns the state exposed to the UI
func (s *Service) Status(ctx context.Context) *model.OfflineStatus {
	return &model.OfflineStatus{
		IsOnline:         s.observer.Online(),
		IsInitialized:    s.initialized.Load(),
		DownloadedCities: s.DownloadedCities(ctx),
		DownloadProgress: s.progress.list(),
	}
}

// IsOnline reports the last observed connectivity state
func (s *Service) IsOnline() bool {
	return s.observer.Online()
}

func offlineError() error {
	return fmt.Errorf("%w: %w", model.ErrNetworkFailure, model.ErrOffline)
}
