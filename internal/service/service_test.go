package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexivanou/guide-offline/internal/client"
	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/alexivanou/guide-offline/internal/connectivity"
	"github.com/alexivanou/guide-offline/internal/database"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/alexivanou/guide-offline/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRemoteAPI implements RemoteAPI
type MockRemoteAPI struct {
	mock.Mock
}

func (m *MockRemoteAPI) FetchPackage(ctx context.Context, cityID, versionTag string) (*client.PackageResult, error) {
	args := m.Called(ctx, cityID, versionTag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.PackageResult), args.Error(1)
}

func (m *MockRemoteAPI) ListPackages(ctx context.Context) ([]model.PackageListing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PackageListing), args.Error(1)
}

func (m *MockRemoteAPI) PostVisit(ctx context.Context, visit model.VisitRequest) error {
	args := m.Called(ctx, visit)
	return args.Error(0)
}

func (m *MockRemoteAPI) GetCities(ctx context.Context) ([]model.CityInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CityInfo), args.Error(1)
}

func (m *MockRemoteAPI) GetCity(ctx context.Context, id string) (*model.CityInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CityInfo), args.Error(1)
}

func (m *MockRemoteAPI) GetLandmarks(ctx context.Context, cityID string) ([]model.Landmark, error) {
	args := m.Called(ctx, cityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Landmark), args.Error(1)
}

func (m *MockRemoteAPI) GetLandmark(ctx context.Context, id string) (*model.Landmark, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Landmark), args.Error(1)
}

func (m *MockRemoteAPI) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var errNetwork = fmt.Errorf("%w: dial tcp: connection refused", model.ErrNetworkFailure)

type testEnv struct {
	svc     *Service
	remote  *MockRemoteAPI
	monitor *connectivity.Monitor
	repos   *repository.Container
}

func setupService(t *testing.T, online bool, opts repository.Options) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := config.DBConfig{Type: config.DBTypeMemory, Name: fmt.Sprintf("svc_%s_%d", name, time.Now().UnixNano())}
	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, cfg))

	repos := repository.NewRepositories(db, cfg.Type, opts)
	remote := &MockRemoteAPI{}
	monitor := connectivity.NewMonitor(online, nil)
	svc := NewService(repos, remote, monitor, Options{
		CompleteDismiss: 50 * time.Millisecond,
		ErrorDismiss:    80 * time.Millisecond,
	})
	t.Cleanup(func() {
		svc.Close()
		db.Close()
	})
	return &testEnv{svc: svc, remote: remote, monitor: monitor, repos: repos}
}

func romePackage(version int, ids ...string) *model.CityPackage {
	pkg := &model.CityPackage{
		City:    model.CityInfo{ID: "rome", Name: "Rome", Country: "Italy", Lat: 41.9028, Lng: 12.4964, Zoom: 14},
		Version: version,
	}
	for _, id := range ids {
		pkg.Landmarks = append(pkg.Landmarks, model.Landmark{ID: id, Name: id, Lat: 41.89, Lng: 12.49, Radius: 50})
	}
	return pkg
}

func TestService_DownloadCity(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	ctx := context.Background()

	env.remote.On("FetchPackage", mock.Anything, "rome", "").
		Return(&client.PackageResult{Package: romePackage(1, "colosseum", "pantheon"), VersionTag: "v1", BytesTransferred: 2048}, nil).Once()
	env.remote.On("FetchPackage", mock.Anything, "rome", "v1").
		Return(&client.PackageResult{NotModified: true, VersionTag: "v1"}, nil).Once()

	require.NoError(t, env.svc.DownloadCity(ctx, "rome"))

	progress, ok := env.svc.Progress("rome")
	require.True(t, ok)
	assert.Equal(t, model.DownloadComplete, progress.Status)
	assert.Equal(t, "Downloaded 2 items", progress.Message)

	before, err := env.repos.Packages.GetPackage(ctx, "rome")
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, "v1", before.VersionTag)

	require.NoError(t, env.svc.DownloadCity(ctx, "rome"))
	progress, _ = env.svc.Progress("rome")
	assert.Equal(t, "Already up to date", progress.Message)

	after, err := env.repos.Packages.GetPackage(ctx, "rome")
	require.NoError(t, err)
	assert.Equal(t, before, after, "a not-modified download must leave the package untouched")

	env.remote.AssertExpectations(t)

	assert.Eventually(t, func() bool {
		_, ok := env.svc.Progress("rome")
		return !ok
	}, time.Second, 10*time.Millisecond, "complete progress is dismissed")
}

func TestService_DownloadCityReplacesOnVersionChange(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	ctx := context.Background()

	env.remote.On("FetchPackage", mock.Anything, "rome", "").
		Return(&client.PackageResult{Package: romePackage(1, "colosseum", "pantheon"), VersionTag: "v1"}, nil).Once()
	env.remote.On("FetchPackage", mock.Anything, "rome", "v1").
		Return(&client.PackageResult{Package: romePackage(2, "trevi"), VersionTag: "v2"}, nil).Once()

	require.NoError(t, env.svc.DownloadCity(ctx, "rome"))
	require.NoError(t, env.svc.DownloadCity(ctx, "rome"))

	env.monitor.Set(false)
	landmarks := env.svc.GetLandmarks(ctx, "rome")
	require.Len(t, landmarks, 1)
	assert.Equal(t, "trevi", landmarks[0].ID)
	assert.Nil(t, env.svc.GetLandmark(ctx, "colosseum"))

	cities := env.svc.DownloadedCities(ctx)
	require.Len(t, cities, 1)
	assert.Equal(t, "v2", cities[0].VersionTag)
}

func TestService_DownloadCityQuotaExceeded(t *testing.T) {
	env := setupService(t, true, repository.Options{QuotaBytes: 1500})
	ctx := context.Background()

	var many []string
	for i := 0; i < 40; i++ {
		many = append(many, fmt.Sprintf("landmark-%02d", i))
	}
	env.remote.On("FetchPackage", mock.Anything, "rome", "").
		Return(&client.PackageResult{Package: romePackage(1, "colosseum"), VersionTag: "v1"}, nil).Once()
	env.remote.On("FetchPackage", mock.Anything, "rome", "v1").
		Return(&client.PackageResult{Package: romePackage(2, many...), VersionTag: "v2"}, nil).Once()

	require.NoError(t, env.svc.DownloadCity(ctx, "rome"))

	err := env.svc.DownloadCity(ctx, "rome")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorageQuotaExceeded))
	assert.Equal(t, "STORAGE_QUOTA_EXCEEDED", model.ErrorCode(err))

	progress, ok := env.svc.Progress("rome")
	require.True(t, ok)
	assert.Equal(t, model.DownloadError, progress.Status)
	assert.Equal(t, "STORAGE_QUOTA_EXCEEDED", progress.Message)

	landmarks, err := env.repos.Packages.GetLandmarks(ctx, "rome")
	require.NoError(t, err)
	require.Len(t, landmarks, 1, "previous package stays queryable")
	assert.Equal(t, "colosseum", landmarks[0].ID)

	assert.Eventually(t, func() bool {
		_, ok := env.svc.Progress("rome")
		return !ok
	}, time.Second, 10*time.Millisecond, "error progress is dismissed")
}

func TestService_DownloadCityFailures(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		env := setupService(t, false, repository.Options{})
		err := env.svc.DownloadCity(context.Background(), "rome")
		assert.True(t, errors.Is(err, model.ErrOffline))
		assert.True(t, errors.Is(err, model.ErrNetworkFailure))
		env.remote.AssertNotCalled(t, "FetchPackage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("network error", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		env.remote.On("FetchPackage", mock.Anything, "rome", "").Return(nil, errNetwork)
		err := env.svc.DownloadCity(context.Background(), "rome")
		assert.True(t, errors.Is(err, model.ErrNetworkFailure))
		progress, _ := env.svc.Progress("rome")
		assert.Equal(t, model.DownloadError, progress.Status)
	})

	t.Run("package for another city", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		pkg := romePackage(1, "colosseum")
		env.remote.On("FetchPackage", mock.Anything, "paris", "").Return(&client.PackageResult{Package: pkg, VersionTag: "v1"}, nil)
		err := env.svc.DownloadCity(context.Background(), "paris")
		assert.True(t, errors.Is(err, model.ErrInvalidPackage))
	})

	t.Run("invalid landmark", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		pkg := romePackage(1, "colosseum")
		pkg.Landmarks[0].Lat = 120
		env.remote.On("FetchPackage", mock.Anything, "rome", "").Return(&client.PackageResult{Package: pkg, VersionTag: "v1"}, nil)
		err := env.svc.DownloadCity(context.Background(), "rome")
		assert.True(t, errors.Is(err, model.ErrInvalidPackage))
	})

	t.Run("duplicate landmark ids", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		ctx := context.Background()
		require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum"), "v1"))

		pkg := romePackage(2, "colosseum", "pantheon", "colosseum")
		env.remote.On("FetchPackage", mock.Anything, "rome", "v1").Return(&client.PackageResult{Package: pkg, VersionTag: "v2"}, nil)
		err := env.svc.DownloadCity(ctx, "rome")
		assert.True(t, errors.Is(err, model.ErrInvalidPackage))
		assert.Equal(t, "INVALID_PACKAGE", model.ErrorCode(err))

		meta, err := env.repos.Packages.GetMetadata(ctx, "rome")
		require.NoError(t, err)
		assert.Equal(t, "v1", meta.VersionTag, "stored package is untouched")
	})

	t.Run("missing city id", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		err := env.svc.DownloadCity(context.Background(), "")
		assert.True(t, errors.Is(err, model.ErrInvalidRequest))
	})
}

func TestService_ReadsFallBackToStore(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	ctx := context.Background()
	require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum", "pantheon"), "v1"))

	t.Run("online success", func(t *testing.T) {
		env.remote.On("GetCities", mock.Anything).Return([]model.CityInfo{{ID: "rome"}, {ID: "paris"}}, nil).Once()
		assert.Len(t, env.svc.GetCities(ctx), 2)
	})

	t.Run("online failure falls back", func(t *testing.T) {
		env.remote.On("GetCities", mock.Anything).Return(nil, errNetwork).Once()
		env.remote.On("GetCity", mock.Anything, "rome").Return(nil, errNetwork).Once()
		env.remote.On("GetLandmarks", mock.Anything, "rome").Return(nil, errNetwork).Once()
		env.remote.On("GetLandmark", mock.Anything, "pantheon").Return(nil, model.ErrNotFound).Once()

		cities := env.svc.GetCities(ctx)
		require.Len(t, cities, 1)
		assert.Equal(t, "rome", cities[0].ID)
		assert.Equal(t, "Rome", env.svc.GetCity(ctx, "rome").Name)
		assert.Len(t, env.svc.GetLandmarks(ctx, "rome"), 2)
		assert.Equal(t, "pantheon", env.svc.GetLandmark(ctx, "pantheon").ID)
	})

	t.Run("offline never touches the network", func(t *testing.T) {
		env.monitor.Set(false)
		defer env.monitor.Set(true)

		calls := len(env.remote.Calls)
		assert.Len(t, env.svc.GetCities(ctx), 1)
		assert.Len(t, env.svc.GetLandmarks(ctx, ""), 2)
		assert.Nil(t, env.svc.GetCity(ctx, "paris"))
		assert.Nil(t, env.svc.GetLandmark(ctx, "eiffel-tower"))
		assert.Equal(t, calls, len(env.remote.Calls))
	})
}

func TestService_RecordVisit(t *testing.T) {
	t.Run("online delivery is not queued", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		env.remote.On("PostVisit", mock.Anything, model.VisitRequest{LandmarkID: "colosseum", SessionID: "sess-1"}).Return(nil).Once()

		receipt, err := env.svc.RecordVisit(context.Background(), "colosseum", "sess-1")
		require.NoError(t, err)
		assert.False(t, receipt.Queued)

		counts, err := env.repos.Visits.Counts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, counts.Pending)
	})

	t.Run("online failure is queued", func(t *testing.T) {
		env := setupService(t, true, repository.Options{})
		env.remote.On("PostVisit", mock.Anything, mock.Anything).Return(errNetwork).Once()

		receipt, err := env.svc.RecordVisit(context.Background(), "colosseum", "sess-1")
		require.NoError(t, err)
		assert.True(t, receipt.Queued)
		assert.NotEmpty(t, receipt.QueueID)
	})

	t.Run("generates a session id", func(t *testing.T) {
		env := setupService(t, false, repository.Options{})
		receipt, err := env.svc.RecordVisit(context.Background(), "colosseum", "")
		require.NoError(t, err)
		assert.Len(t, receipt.SessionID, 36)
	})

	t.Run("rejects empty landmark", func(t *testing.T) {
		env := setupService(t, false, repository.Options{})
		_, err := env.svc.RecordVisit(context.Background(), "", "sess-1")
		assert.True(t, errors.Is(err, model.ErrInvalidRequest))
	})
}

func TestService_OfflineVisitsDrainOnReconnect(t *testing.T) {
	env := setupService(t, false, repository.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		receipt, err := env.svc.RecordVisit(ctx, "colosseum", "sess-1")
		require.NoError(t, err)
		assert.True(t, receipt.Queued)
	}
	env.remote.AssertNotCalled(t, "PostVisit", mock.Anything, mock.Anything)

	var mu sync.Mutex
	var posted []model.VisitRequest
	env.remote.On("PostVisit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		posted = append(posted, args.Get(1).(model.VisitRequest))
		mu.Unlock()
	}).Return(nil)

	env.monitor.Set(true)

	assert.Eventually(t, func() bool {
		all, err := env.repos.Visits.ListAll(ctx)
		return err == nil && len(all) == 0
	}, 2*time.Second, 10*time.Millisecond, "queue is drained and purged")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posted, 1, "duplicates of one (landmark, session) pair are delivered once per pass")
	assert.Equal(t, model.VisitRequest{LandmarkID: "colosseum", SessionID: "sess-1"}, posted[0])
}

func TestService_SyncQueuedVisitsPartialFailure(t *testing.T) {
	env := setupService(t, false, repository.Options{})
	ctx := context.Background()

	for _, id := range []string{"colosseum", "pantheon", "trevi"} {
		_, err := env.svc.RecordVisit(ctx, id, "sess-1")
		require.NoError(t, err)
	}

	_, err := env.svc.SyncQueuedVisits(ctx)
	assert.True(t, errors.Is(err, model.ErrOffline), "drain is skipped while offline")

	env.remote.On("PostVisit", mock.Anything, model.VisitRequest{LandmarkID: "pantheon", SessionID: "sess-1"}).Return(errNetwork).Once()
	env.remote.On("PostVisit", mock.Anything, mock.Anything).Return(nil)

	// flip state without triggering the background drain
	env.svc.unsubscribe()
	env.monitor.Set(true)

	result, err := env.svc.SyncQueuedVisits(ctx)
	assert.True(t, errors.Is(err, model.ErrPartialSyncFailure))
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Purged)

	pending, err := env.repos.Visits.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pantheon", pending[0].LandmarkID)
	assert.Equal(t, 1, pending[0].Attempts)

	result, err = env.svc.SyncQueuedVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	counts, err := env.repos.Visits.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.VisitCounts{}, *counts)
}

func TestService_SyncDeadLetters(t *testing.T) {
	env := setupService(t, false, repository.Options{MaxAttempts: 2})
	ctx := context.Background()

	_, err := env.svc.RecordVisit(ctx, "deleted-landmark", "sess-1")
	require.NoError(t, err)

	env.svc.unsubscribe()
	env.monitor.Set(true)
	env.remote.On("PostVisit", mock.Anything, mock.Anything).Return(errors.New("unexpected status 404"))

	result, _ := env.svc.SyncQueuedVisits(ctx)
	assert.Equal(t, 0, result.DeadLettered)
	result, _ = env.svc.SyncQueuedVisits(ctx)
	assert.Equal(t, 1, result.DeadLettered)

	result, err = env.svc.SyncQueuedVisits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempted, "dead letters are not retried")
}

func TestService_Audio(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	ctx := context.Background()
	audio := []byte("fake-mp3")

	req := model.AudioRequest{LandmarkID: "colosseum", Language: "en", VoiceID: "nova", URL: "http://api.test/audio/colosseum-en.mp3", DurationSeconds: 30}
	env.remote.On("FetchAudio", mock.Anything, req.URL).Return(audio, nil).Once()

	asset, err := env.svc.DownloadAudio(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.Checksum(audio), asset.Checksum)

	again, err := env.svc.DownloadAudio(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, asset.Checksum, again.Checksum)
	env.remote.AssertNumberOfCalls(t, "FetchAudio", 1)

	got, err := env.svc.GetAudio(ctx, "colosseum", "en")
	require.NoError(t, err)
	assert.Equal(t, audio, got.Audio)

	_, err = env.svc.GetAudio(ctx, "colosseum", "it")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	t.Run("server checksum mismatch", func(t *testing.T) {
		bad := model.AudioRequest{LandmarkID: "trevi", Language: "en", URL: "http://api.test/audio/trevi.mp3", Checksum: "abc"}
		env.remote.On("FetchAudio", mock.Anything, bad.URL).Return(audio, nil).Once()
		_, err := env.svc.DownloadAudio(ctx, bad)
		assert.True(t, errors.Is(err, model.ErrIntegrityFailure))
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := env.svc.DownloadAudio(ctx, model.AudioRequest{LandmarkID: "trevi"})
		assert.True(t, errors.Is(err, model.ErrInvalidRequest))
	})

	require.NoError(t, env.svc.ClearAudio(ctx))
	_, err = env.svc.GetAudio(ctx, "colosseum", "en")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestService_PrefetchAudio(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	ctx := context.Background()

	require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum", "pantheon", "trevi"), "v1"))
	require.NoError(t, env.repos.Audio.Save(ctx, &model.AudioAsset{LandmarkID: "colosseum", Language: "en", Audio: []byte("cached")}))

	reqs := []model.AudioRequest{
		{LandmarkID: "colosseum", Language: "en", URL: "http://api.test/a/colosseum.mp3"},
		{LandmarkID: "pantheon", Language: "en", URL: "http://api.test/a/pantheon.mp3"},
		{LandmarkID: "trevi", Language: "en", URL: "http://api.test/a/trevi.mp3"},
		{LandmarkID: "", Language: "en", URL: "http://api.test/a/x.mp3"},
	}
	env.remote.On("FetchAudio", mock.Anything, "http://api.test/a/pantheon.mp3").Return([]byte("p"), nil)
	env.remote.On("FetchAudio", mock.Anything, "http://api.test/a/trevi.mp3").Return(nil, errNetwork)

	result, err := env.svc.PrefetchAudio(ctx, reqs)
	require.NoError(t, err)
	assert.Equal(t, model.PrefetchResult{Downloaded: 1, Skipped: 1, Failed: 2}, *result)
	env.remote.AssertNotCalled(t, "FetchAudio", mock.Anything, "http://api.test/a/colosseum.mp3")

	assets, err := env.svc.ListAudio(ctx, "rome")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	env.monitor.Set(false)
	_, err = env.svc.PrefetchAudio(ctx, reqs[2:3])
	assert.True(t, errors.Is(err, model.ErrOffline))
}

func TestService_StorageAndClear(t *testing.T) {
	env := setupService(t, false, repository.Options{})
	ctx := context.Background()

	require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum", "pantheon"), "v1"))
	require.NoError(t, env.repos.Audio.Save(ctx, &model.AudioAsset{LandmarkID: "colosseum", Language: "en", Audio: []byte("abc")}))
	_, err := env.svc.RecordVisit(ctx, "colosseum", "sess-1")
	require.NoError(t, err)

	info, err := env.svc.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Packages.Packages)
	assert.Equal(t, 2, info.Packages.Landmarks)
	assert.Equal(t, 1, info.Audio.Count)
	assert.Equal(t, int64(3), info.Audio.TotalBytes)
	assert.Equal(t, 1, info.Visits.Pending)

	downloaded, err := env.svc.IsCityDownloaded(ctx, "rome")
	require.NoError(t, err)
	assert.True(t, downloaded)

	require.NoError(t, env.svc.ClearAllOfflineData(ctx))
	info, err = env.svc.StorageInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Packages.Packages)
	assert.Equal(t, 0, info.Visits.Pending)
	assert.Equal(t, 1, info.Audio.Count, "audio has its own lifecycle")

	require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum"), "v1"))
	require.NoError(t, env.svc.DeleteCity(ctx, "rome"))
	downloaded, err = env.svc.IsCityDownloaded(ctx, "rome")
	require.NoError(t, err)
	assert.False(t, downloaded)
}

func TestService_ExportImport(t *testing.T) {
	src := setupService(t, false, repository.Options{})
	ctx := context.Background()

	require.NoError(t, src.repos.Packages.Save(ctx, romePackage(1, "colosseum", "pantheon"), "v1"))
	_, err := src.svc.RecordVisit(ctx, "colosseum", "sess-1")
	require.NoError(t, err)
	_, err = src.svc.RecordVisit(ctx, "pantheon", "sess-1")
	require.NoError(t, err)

	payload, err := src.svc.ExportBundle(ctx, "correct horse")
	require.NoError(t, err)

	dst := setupService(t, false, repository.Options{})

	_, err = dst.svc.ImportBundle(ctx, payload, "wrong")
	assert.True(t, errors.Is(err, model.ErrDecryptionFailure))

	result, err := dst.svc.ImportBundle(ctx, payload, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{PackagesImported: 1, VisitsImported: 2}, *result)

	landmarks := dst.svc.GetLandmarks(ctx, "rome")
	assert.Len(t, landmarks, 2)
	pending, err := dst.repos.Visits.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	result, err = dst.svc.ImportBundle(ctx, payload, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{PackagesSkipped: 1}, *result, "re-import is idempotent")

	_, err = src.svc.ExportBundle(ctx, "")
	assert.True(t, errors.Is(err, model.ErrInvalidRequest))
}

func TestService_StatusAndInitialize(t *testing.T) {
	env := setupService(t, false, repository.Options{})
	ctx := context.Background()

	status := env.svc.Status(ctx)
	assert.False(t, status.IsOnline)
	assert.False(t, status.IsInitialized)
	assert.Empty(t, status.DownloadedCities)

	require.NoError(t, env.svc.Initialize(ctx))
	require.NoError(t, env.repos.Packages.Save(ctx, romePackage(1, "colosseum"), "v1"))

	status = env.svc.Status(ctx)
	assert.True(t, status.IsInitialized)
	require.Len(t, status.DownloadedCities, 1)
	assert.Equal(t, "rome", status.DownloadedCities[0].CityID)
}

func TestService_ListAvailablePackages(t *testing.T) {
	env := setupService(t, true, repository.Options{})
	env.remote.On("ListPackages", mock.Anything).Return([]model.PackageListing{{ID: "rome", LandmarkCount: 12}}, nil)

	listing, err := env.svc.ListAvailablePackages(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing, 1)

	env.monitor.Set(false)
	_, err = env.svc.ListAvailablePackages(context.Background())
	assert.True(t, errors.Is(err, model.ErrOffline))
}

func TestService_CloseIsIdempotent(t *testing.T) {
	env := setupService(t, false, repository.Options{})
	env.svc.Close()
	env.svc.Close()

	// transitions after close must not start a drain
	env.monitor.Set(true)
	env.remote.AssertNotCalled(t, "PostVisit", mock.Anything, mock.Anything)
}
