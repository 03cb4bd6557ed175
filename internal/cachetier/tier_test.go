package cachetier

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testStaticAssets = []string{"/", "/index.html", "/manifest.json", "/icon.svg", "/icon-192.jpg", "/icon-512.jpg"}

var testTileOrigins = []string{
	"https://tile.openstreetmap.org",
	"https://a.tile.openstreetmap.org",
	"https://b.tile.openstreetmap.org",
	"https://c.tile.openstreetmap.org",
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier("http://localhost:5000", testStaticAssets, testTileOrigins)

	tests := []struct {
		name   string
		method string
		url    string
		want   Route
	}{
		{"entry point", http.MethodGet, "http://localhost:5000/", Route{TierStatic, CacheFirst}},
		{"manifest", http.MethodGet, "http://localhost:5000/manifest.json", Route{TierStatic, CacheFirst}},
		{"tile", http.MethodGet, "https://tile.openstreetmap.org/14/8800/6100.png", Route{TierMapTile, CacheFirst}},
		{"subdomain tile", http.MethodGet, "https://b.tile.openstreetmap.org/14/8800/6100.png", Route{TierMapTile, CacheFirst}},
		{"api read", http.MethodGet, "http://localhost:5000/api/cities", Route{TierAPI, NetworkFirst}},
		{"api post", http.MethodPost, "http://localhost:5000/api/visited", Route{TierDynamic, Passthrough}},
		{"delete", http.MethodDelete, "http://localhost:5000/api/offline-package/rome", Route{TierDynamic, Passthrough}},
		{"page", http.MethodGet, "http://localhost:5000/city/rome", Route{TierDynamic, NetworkFirst}},
		{"hashed bundle", http.MethodGet, "http://localhost:5000/assets/index-4f2a.js", Route{TierDynamic, NetworkFirst}},
		{"vite client", http.MethodGet, "http://localhost:5000/@vite/client", Route{TierDynamic, NetworkOnly}},
		{"source module", http.MethodGet, "http://localhost:5000/src/main.tsx", Route{TierDynamic, NetworkOnly}},
		{"foreign api path", http.MethodGet, "https://other.example.com/api/cities", Route{TierDynamic, NetworkFirst}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, nil)
			assert.Equal(t, tt.want, c.Classify(req))
		})
	}
}

func TestIsLiveCode(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		upgrade string
		want    bool
	}{
		{"vite client", "/@vite/client", "", true},
		{"react refresh", "/@react-refresh", "", true},
		{"fs module", "/@fs/home/app/node_modules/react/index.js", "", true},
		{"node module", "/node_modules/.vite/deps/react.js", "", true},
		{"source file", "/src/App.tsx", "", true},
		{"vite ping", "/__vite_ping", "", true},
		{"webpack hmr", "/__webpack_hmr", "", true},
		{"sockjs", "/sockjs-node/info", "", true},
		{"hot update", "/main.abc123.hot-update.json", "", true},
		{"typescript", "/lib/util.ts", "", true},
		{"jsx", "/components/Map.jsx", "", true},
		{"cache busted bundle", "/assets/app.js?v=42", "", true},
		{"timestamped css", "/assets/app.css?t=1700000000", "", true},
		{"websocket", "/ws", "websocket", true},
		{"plain bundle", "/assets/app.js", "", false},
		{"html page", "/city/rome", "", false},
		{"icon", "/icon.svg", "", false},
		{"image with query", "/photo.jpg?v=2", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost:5000"+tt.url, nil)
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			assert.Equal(t, tt.want, IsLiveCode(req))
		})
	}
}

func TestTierAndStrategyNames(t *testing.T) {
	assert.Equal(t, "static", TierStatic.String())
	assert.Equal(t, "map-tiles", TierMapTile.String())
	assert.Equal(t, "api", TierAPI.String())
	assert.Equal(t, "dynamic", TierDynamic.String())
	assert.Equal(t, "unknown", Tier(9).String())
	assert.Equal(t, "network-only", NetworkOnly.String())
}
