package cachetier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alexivanou/guide-offline/internal/metrics"
	"go.uber.org/zap"
)

// Response headers describing how a request was served
const (
	HeaderTier   = "X-Cache-Tier"
	HeaderSource = "X-Cache-Source"
)

// Values of HeaderSource
const (
	SourceNetwork     = "network"
	SourceCache       = "cache"
	SourceFallback    = "fallback"
	SourceUnavailable = "unavailable"
)

// State is the lifecycle of a manager generation
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Message is a control message sent by the foreground app
type Message int

const (
	// MessageSkipWaiting activates a waiting generation immediately.
	MessageSkipWaiting Message = iota
	// MessageClearCache deletes every cache.
	MessageClearCache
)

// Options configures a Manager
type Options struct {
	// Generation stamps every cache name, e.g. "gps-audio-guide-v1".
	Generation string
	// Prefix selects the caches owned by this app when pruning old generations.
	Prefix       string
	AppOrigin    string
	StaticAssets []string
	TileOrigins  []string
	// Transport performs the real network round trip. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Manager intercepts requests as an http.RoundTripper and serves them from the
// tier selected by its Classifier.
type Manager struct {
	store        Store
	next         http.RoundTripper
	classifier   *Classifier
	generation   string
	prefix       string
	appOrigin    string
	staticAssets []string
	logger       *zap.Logger

	mu    sync.RWMutex
	state State
}

// NewManager creates a manager in the installing state
func NewManager(store Store, opts Options) *Manager {
	next := opts.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:        store,
		next:         next,
		classifier:   NewClassifier(opts.AppOrigin, opts.StaticAssets, opts.TileOrigins),
		generation:   opts.Generation,
		prefix:       opts.Prefix,
		appOrigin:    strings.TrimRight(opts.AppOrigin, "/"),
		staticAssets: opts.StaticAssets,
		logger:       logger,
		state:        StateInstalling,
	}
}

// CacheName returns the generation-stamped name of a tier's cache
func (m *Manager) CacheName(t Tier) string {
	return m.generation + "-" + t.String()
}

func (m *Manager) currentNames() map[string]struct{} {
	names := make(map[string]struct{}, len(AllTiers))
	for _, t := range AllTiers {
		names[m.CacheName(t)] = struct{}{}
	}
	return names
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Client returns an http.Client whose requests go through the manager
func (m *Manager) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: m, Timeout: timeout}
}

// Install precaches every static asset. Nothing is stored unless every asset
// was fetched successfully. On success the manager is waiting for activation.
func (m *Manager) Install(ctx context.Context) error {
	m.setState(StateInstalling)
	m.logger.Info("Installing cache tiers", zap.String("generation", m.generation))

	entries := make(map[string]*Entry, len(m.staticAssets))
	for _, asset := range m.staticAssets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.appOrigin+asset, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		resp, err := m.next.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		entry, err := readEntry(resp)
		if err != nil {
			return fmt.Errorf("precache %s: %w", asset, err)
		}
		if !isOK(entry.StatusCode) {
			return fmt.Errorf("precache %s: unexpected status %d", asset, entry.StatusCode)
		}
		entries[requestKey(req)] = entry
	}

	name := m.CacheName(TierStatic)
	for key, entry := range entries {
		if err := m.store.Put(ctx, name, key, entry); err != nil {
			return fmt.Errorf("precache %s: %w", key, err)
		}
	}

	m.setState(StateWaiting)
	m.logger.Info("Cache tiers installed", zap.Int("assets", len(entries)))
	return nil
}

// Activate deletes every cache owned by this app that does not belong to the
// current generation and starts intercepting requests.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.store.CacheNames(ctx)
	if err != nil {
		return err
	}
	current := m.currentNames()
	for _, name := range names {
		if !strings.HasPrefix(name, m.prefix) {
			continue
		}
		if _, ok := current[name]; ok {
			continue
		}
		if err := m.store.DeleteCache(ctx, name); err != nil {
			return err
		}
		metrics.CacheDeletions.Inc()
		m.logger.Info("Deleted old cache", zap.String("cache", name))
	}
	m.setState(StateActive)
	m.logger.Info("Cache tiers active", zap.String("generation", m.generation))
	return nil
}

// ClearAll deletes every cache, including those of other generations.
func (m *Manager) ClearAll(ctx context.Context) error {
	names, err := m.store.CacheNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.store.DeleteCache(ctx, name); err != nil {
			return err
		}
		metrics.CacheDeletions.Inc()
	}
	m.logger.Info("Cleared all caches", zap.Int("caches", len(names)))
	return nil
}

// HandleMessage applies one control message
func (m *Manager) HandleMessage(ctx context.Context, msg Message) error {
	switch msg {
	case MessageSkipWaiting:
		return m.Activate(ctx)
	case MessageClearCache:
		return m.ClearAll(ctx)
	}
	return fmt.Errorf("unknown cache message %d", msg)
}

// RoundTrip implements http.RoundTripper
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	route := m.classifier.Classify(req)
	if route.Strategy == Passthrough || m.State() != StateActive {
		return m.next.RoundTrip(req)
	}

	switch route.Strategy {
	case CacheFirst:
		return m.cacheFirst(req, route.Tier)
	case NetworkFirst:
		return m.networkFirst(req, route.Tier)
	}

	resp, err := m.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	return m.label(resp, route.Tier, SourceNetwork), nil
}

func (m *Manager) cacheFirst(req *http.Request, tier Tier) (*http.Response, error) {
	name := m.CacheName(tier)
	key := requestKey(req)

	if entry := m.match(req.Context(), name, key); entry != nil {
		return m.label(entry.response(req), tier, SourceCache), nil
	}

	resp, err := m.fetchAndStore(req, name, key)
	if err != nil {
		if tier == TierMapTile {
			m.logger.Debug("Map tile unavailable", zap.String("url", req.URL.String()), zap.Error(err))
			return m.label(textResponse(req, http.StatusServiceUnavailable, "Map tile unavailable"), tier, SourceUnavailable), nil
		}
		metrics.CacheRequests.WithLabelValues(tier.String(), SourceUnavailable).Inc()
		return nil, err
	}
	return m.label(resp, tier, SourceNetwork), nil
}

func (m *Manager) networkFirst(req *http.Request, tier Tier) (*http.Response, error) {
	name := m.CacheName(tier)
	key := requestKey(req)

	resp, err := m.fetchAndStore(req, name, key)
	if err == nil {
		return m.label(resp, tier, SourceNetwork), nil
	}
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return nil, err
	}

	m.logger.Debug("Network failed, trying cache", zap.String("url", req.URL.String()), zap.Error(err))
	if entry := m.match(req.Context(), name, key); entry != nil {
		return m.label(entry.response(req), tier, SourceCache), nil
	}
	if tier == TierAPI {
		if fb := fallbackResponse(req); fb != nil {
			return m.label(fb, tier, SourceFallback), nil
		}
		return m.label(jsonResponse(req, http.StatusServiceUnavailable, map[string]string{"error": "offline"}), tier, SourceUnavailable), nil
	}
	return m.label(textResponse(req, http.StatusServiceUnavailable, "Offline"), tier, SourceUnavailable), nil
}

// fetchAndStore performs the network round trip and stores 2xx responses.
func (m *Manager) fetchAndStore(req *http.Request, name, key string) (*http.Response, error) {
	resp, err := m.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !isOK(resp.StatusCode) {
		return resp, nil
	}

	entry, err := readEntry(resp)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(req.Context(), name, key, entry); err != nil {
		m.logger.Warn("Failed to store response", zap.String("cache", name), zap.String("key", key), zap.Error(err))
	}
	return entry.response(req), nil
}

func (m *Manager) match(ctx context.Context, name, key string) *Entry {
	entry, err := m.store.Match(ctx, name, key)
	if err != nil {
		m.logger.Warn("Cache lookup failed", zap.String("cache", name), zap.String("key", key), zap.Error(err))
		return nil
	}
	return entry
}

func (m *Manager) label(resp *http.Response, tier Tier, source string) *http.Response {
	resp.Header.Set(HeaderTier, tier.String())
	resp.Header.Set(HeaderSource, source)
	metrics.CacheRequests.WithLabelValues(tier.String(), source).Inc()
	return resp
}

func requestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	if u.Host == "" {
		u.Host = req.Host
	}
	return u.String()
}

func isOK(code int) bool {
	return code >= 200 && code < 300
}

// readEntry consumes and closes the response body
func readEntry(resp *http.Response) (*Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now().UTC(),
	}, nil
}

func (e *Entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func textResponse(req *http.Request, code int, text string) *http.Response {
	e := &Entry{StatusCode: code, Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}}, Body: []byte(text)}
	return e.response(req)
}
