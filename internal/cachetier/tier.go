// Package cachetier routes outgoing HTTP requests to named, generation-stamped
// caches and applies a per-tier retrieval strategy so the app keeps working offline.
package cachetier

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Tier is one of the four named caches
type Tier int

const (
	TierStatic Tier = iota
	TierMapTile
	TierAPI
	TierDynamic
)

var tierNames = [...]string{"static", "map-tiles", "api", "dynamic"}

// AllTiers lists every tier in a stable order
var AllTiers = []Tier{TierStatic, TierMapTile, TierAPI, TierDynamic}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "unknown"
	}
	return tierNames[t]
}

// Strategy is how a tier retrieves and stores responses
type Strategy int

const (
	// CacheFirst serves the stored copy, fetching and populating on a miss.
	CacheFirst Strategy = iota
	// NetworkFirst fetches and stores, falling back to the stored copy on failure.
	NetworkFirst
	// NetworkOnly never reads or writes the cache.
	NetworkOnly
	// Passthrough leaves the request alone; used for mutating requests.
	Passthrough
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case NetworkOnly:
		return "network-only"
	case Passthrough:
		return "passthrough"
	}
	return "unknown"
}

// Route is the outcome of classifying a request
type Route struct {
	Tier     Tier
	Strategy Strategy
}

// Classifier decides which tier and strategy serve a request. It holds no state
// besides its configuration, so Classify is a pure function of the request.
type Classifier struct {
	appHost      string
	staticAssets map[string]struct{}
	tileHosts    map[string]struct{}
}

// NewClassifier builds a classifier for the app served at appOrigin.
// Static assets are paths on the app origin; tile origins are matched by host.
func NewClassifier(appOrigin string, staticAssets, tileOrigins []string) *Classifier {
	c := &Classifier{
		staticAssets: make(map[string]struct{}, len(staticAssets)),
		tileHosts:    make(map[string]struct{}, len(tileOrigins)),
	}
	if u, err := url.Parse(appOrigin); err == nil {
		c.appHost = strings.ToLower(u.Host)
	}
	for _, a := range staticAssets {
		c.staticAssets[a] = struct{}{}
	}
	for _, o := range tileOrigins {
		host := o
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			host = u.Host
		}
		c.tileHosts[strings.ToLower(host)] = struct{}{}
	}
	return c
}

// Classify maps a request to its tier and strategy
func (c *Classifier) Classify(req *http.Request) Route {
	if req.Method != http.MethodGet {
		return Route{Tier: TierDynamic, Strategy: Passthrough}
	}

	host := strings.ToLower(req.URL.Host)
	if host == "" {
		host = strings.ToLower(req.Host)
	}
	if _, ok := c.tileHosts[host]; ok {
		return Route{Tier: TierMapTile, Strategy: CacheFirst}
	}

	sameOrigin := c.appHost == "" || host == "" || host == c.appHost
	if sameOrigin && strings.HasPrefix(req.URL.Path, "/api/") {
		return Route{Tier: TierAPI, Strategy: NetworkFirst}
	}
	if IsLiveCode(req) {
		return Route{Tier: TierDynamic, Strategy: NetworkOnly}
	}
	if _, ok := c.staticAssets[req.URL.Path]; ok && sameOrigin {
		return Route{Tier: TierStatic, Strategy: CacheFirst}
	}
	return Route{Tier: TierDynamic, Strategy: NetworkFirst}
}

var livePathPrefixes = []string{
	"/@vite/",
	"/@react-refresh",
	"/@fs/",
	"/@id/",
	"/node_modules/",
	"/src/",
	"/__vite_ping",
	"/__webpack_hmr",
	"/sockjs-node",
}

var liveSourceExts = map[string]struct{}{
	".ts":  {},
	".tsx": {},
	".jsx": {},
	".mts": {},
}

var bundleExts = map[string]struct{}{
	".js":  {},
	".mjs": {},
	".css": {},
}

// IsLiveCode reports whether the request fetches application code or dev tooling
// that must always come from the network.
func IsLiveCode(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return true
	}

	p := req.URL.Path
	for _, prefix := range livePathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	if strings.Contains(p, ".hot-update.") {
		return true
	}

	ext := strings.ToLower(path.Ext(p))
	if _, ok := liveSourceExts[ext]; ok {
		return true
	}
	if _, ok := bundleExts[ext]; ok {
		q := req.URL.Query()
		if q.Has("v") || q.Has("t") {
			return true
		}
	}
	return false
}
