package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexivanou/guide-offline/internal/cachetier"
	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrigin struct {
	down   atomic.Bool
	visits atomic.Int32
}

func (f *fakeOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.down.Load() {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	switch {
	case r.URL.Path == "/health":
		w.Write([]byte(`{"status":"ok"}`))
	case r.URL.Path == "/api/visited":
		f.visits.Add(1)
		w.Write([]byte(`{"success":true}`))
	case r.URL.Path == "/api/cities":
		w.Write([]byte(`[{"id":"rome","name":"Rome"}]`))
	case strings.HasPrefix(r.URL.Path, "/api/"):
		http.NotFound(w, r)
	default:
		w.Write([]byte("<html>" + r.URL.Path + "</html>"))
	}
}

func testConfig(t *testing.T, origin, dataDir string) *config.Config {
	return &config.Config{
		DB: config.DBConfig{Type: config.DBTypeMemory, Name: fmt.Sprintf("app_%d", time.Now().UnixNano())},
		Cache: config.CacheConfig{
			Prefix:       "test-guide-",
			Generation:   "test-guide-v1",
			AppOrigin:    origin,
			StaticAssets: []string{"/", "/index.html"},
		},
		Sync: config.SyncConfig{
			APIBaseURL:     origin,
			ProbeInterval:  20 * time.Millisecond,
			RequestTimeout: time.Second,
			StartOnline:    false,
		},
		Seeder: config.SeederConfig{DataDir: dataDir},
	}
}

func TestApp_Bootstrap(t *testing.T) {
	origin := &fakeOrigin{}
	srv := httptest.NewServer(origin)
	defer srv.Close()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "rome.json"), []byte(
		`{"city":{"id":"rome","name":"Rome","lat":41.9,"lng":12.5},"landmarks":[{"id":"colosseum","name":"Colosseum","lat":41.89,"lng":12.49}],"version":1}`,
	), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(t, srv.URL, dataDir), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, cachetier.StateActive, a.Cache.State())

	downloaded, err := a.Service.IsCityDownloaded(ctx, "rome")
	require.NoError(t, err)
	assert.True(t, downloaded, "bundled packages are seeded into an empty store")

	_, err = a.Service.RecordVisit(ctx, "colosseum", "s1")
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx))
	assert.Eventually(t, a.Monitor.Online, 2*time.Second, 10*time.Millisecond, "prober marks the app online")
	assert.Eventually(t, func() bool {
		return origin.visits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "queued visit is drained once online")

	origin.down.Store(true)
	assert.Eventually(t, func() bool { return !a.Monitor.Online() }, 2*time.Second, 10*time.Millisecond)

	cities := a.Service.GetCities(ctx)
	require.Len(t, cities, 1)
	assert.Equal(t, "rome", cities[0].ID)
}

func TestApp_MissingDataDirAndInstallFailure(t *testing.T) {
	origin := &fakeOrigin{}
	origin.down.Store(true)
	srv := httptest.NewServer(origin)
	defer srv.Close()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t, srv.URL, filepath.Join(t.TempDir(), "absent")), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, cachetier.StateActive, a.Cache.State(), "tiers activate even when precache fails")
	assert.Empty(t, a.Service.DownloadedCities(ctx))

	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestApp_ClearCacheThroughRouter(t *testing.T) {
	origin := &fakeOrigin{}
	srv := httptest.NewServer(origin)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(t, srv.URL, t.TempDir()), nil)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Start(ctx))

	resp, err := a.Cache.Client(time.Second).Get(srv.URL + "/index.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, cachetier.SourceCache, resp.Header.Get(cachetier.HeaderSource), "precached asset is served from cache")

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"active"`)

	resp, err = a.Cache.Client(time.Second).Get(srv.URL + "/index.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, cachetier.SourceNetwork, resp.Header.Get(cachetier.HeaderSource), "cleared cache falls back to the network")
}
