// Package client talks to the remote guide API
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexivanou/guide-offline/internal/cachetier"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// maxBodyBytes caps any single response body, audio included.
const maxBodyBytes = 64 << 20

// ErrResponseTooLarge is returned when a response body exceeds the configured limit
var ErrResponseTooLarge = errors.New("response body too large")

// Options configures a Client
type Options struct {
	BaseURL string
	// HTTPClient performs requests. Its transport may be a cache tier manager.
	HTTPClient *http.Client
	Timeout    time.Duration
	// MaxBodyBytes rejects larger response bodies. Defaults to 64 MiB.
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Client is the remote API client. Every call goes through a circuit breaker;
// transport errors, open circuits and 5xx responses surface as model.ErrNetworkFailure.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[*response]
	maxBody int64
	logger  *zap.Logger
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// fromNetwork reports whether the response came from the server rather than a local cache tier
func (r *response) fromNetwork() bool {
	s := r.header.Get(cachetier.HeaderSource)
	return s == "" || s == cachetier.SourceNetwork
}

// PackageResult is the outcome of a conditional package fetch
type PackageResult struct {
	Package     *model.CityPackage
	VersionTag  string
	NotModified bool
	// BytesTransferred is the size of the response body.
	BytesTransferred int64
}

// New creates a client for the API at opts.BaseURL
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = maxBodyBytes
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		maxBody: maxBody,
		logger:  logger,
	}
	c.cb = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "guide-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// BreakerState returns the circuit breaker state for diagnostics
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, header http.Header) (*response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}

	res, err := c.cb.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > c.maxBody {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
		}
		r := &response{status: resp.StatusCode, header: resp.Header, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetworkFailure, method, path, err)
		}
		c.logger.Debug("Remote API call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetworkFailure, method, path, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %v", model.ErrNetworkFailure, method, path, err)
	}
	return res, nil
}

// getJSON decodes a 200 response into v. 404 maps to model.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	res, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if res.header.Get(cachetier.HeaderSource) == cachetier.SourceFallback ||
		res.header.Get(cachetier.HeaderSource) == cachetier.SourceUnavailable {
		return fmt.Errorf("%w: GET %s served %s", model.ErrNetworkFailure, path, res.header.Get(cachetier.HeaderSource))
	}
	if err := checkStatus(res); err != nil {
		return err
	}
	if err := json.Unmarshal(res.body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(res *response) error {
	switch {
	case res.status == http.StatusNotFound:
		return model.ErrNotFound
	case res.status < 200 || res.status >= 300:
		return fmt.Errorf("unexpected status %d", res.status)
	}
	return nil
}

// FetchPackage downloads the offline package of a city. A non-empty versionTag
// is sent as If-None-Match; an unchanged package yields NotModified.
func (c *Client) FetchPackage(ctx context.Context, cityID, versionTag string) (*PackageResult, error) {
	header := http.Header{}
	if versionTag != "" {
		header.Set("If-None-Match", versionTag)
	}
	path := "/api/offline-package/" + url.PathEscape(cityID)
	res, err := c.do(ctx, http.MethodGet, path, nil, header)
	if err != nil {
		return nil, err
	}
	if !res.fromNetwork() {
		return nil, fmt.Errorf("%w: package for %s not served by the network", model.ErrNetworkFailure, cityID)
	}

	if res.status == http.StatusNotModified {
		return &PackageResult{VersionTag: versionTag, NotModified: true, BytesTransferred: int64(len(res.body))}, nil
	}
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", cityID, err)
	}

	var pkg model.CityPackage
	if err := json.Unmarshal(res.body, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPackage, err)
	}
	tag := res.header.Get("ETag")
	pkg.VersionTag = tag
	return &PackageResult{Package: &pkg, VersionTag: tag, BytesTransferred: int64(len(res.body))}, nil
}

// ListPackages returns the cities that can be downloaded
func (c *Client) ListPackages(ctx context.Context) ([]model.PackageListing, error) {
	var listing []model.PackageListing
	if err := c.getJSON(ctx, "/api/offline-package", &listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// PostVisit reports a visit. The endpoint is idempotent.
func (c *Client) PostVisit(ctx context.Context, visit model.VisitRequest) error {
	res, err := c.do(ctx, http.MethodPost, "/api/visited", visit, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(res); err != nil {
		return fmt.Errorf("failed to post visit %s: %w", visit.LandmarkID, err)
	}
	return nil
}

func (c *Client) GetCities(ctx context.Context) ([]model.CityInfo, error) {
	var cities []model.CityInfo
	if err := c.getJSON(ctx, "/api/cities", &cities); err != nil {
		return nil, err
	}
	return cities, nil
}

func (c *Client) GetCity(ctx context.Context, id string) (*model.CityInfo, error) {
	var city model.CityInfo
	if err := c.getJSON(ctx, "/api/cities/"+url.PathEscape(id), &city); err != nil {
		return nil, err
	}
	return &city, nil
}

// GetLandmarks lists landmarks, optionally for one city
func (c *Client) GetLandmarks(ctx context.Context, cityID string) ([]model.Landmark, error) {
	path := "/api/landmarks"
	if cityID != "" {
		path += "?cityId=" + url.QueryEscape(cityID)
	}
	var landmarks []model.Landmark
	if err := c.getJSON(ctx, path, &landmarks); err != nil {
		return nil, err
	}
	return landmarks, nil
}

func (c *Client) GetLandmark(ctx context.Context, id string) (*model.Landmark, error) {
	var landmark model.Landmark
	if err := c.getJSON(ctx, "/api/landmarks/"+url.PathEscape(id), &landmark); err != nil {
		return nil, err
	}
	return &landmark, nil
}

// FetchAudio downloads an audio stream. rawURL may be absolute or relative to the API.
func (c *Client) FetchAudio(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := c.do(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.fromNetwork() {
		return nil, fmt.Errorf("%w: audio not served by the network", model.ErrNetworkFailure)
	}
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	return res.body, nil
}

// Health checks that the API is reachable
func (c *Client) Health(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if !res.fromNetwork() {
		return fmt.Errorf("%w: health served from cache", model.ErrNetworkFailure)
	}
	if err := checkStatus(res); err != nil {
		return fmt.Errorf("%w: health check: %v", model.ErrNetworkFailure, err)
	}
	return nil
}
