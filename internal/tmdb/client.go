package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 4 << 20
)

var (
	ErrQueryRequired = errors.New("tmdb: query is required")
	ErrMissingAPIKey = errors.New("tmdb: api key is not configured")
	ErrUpstream      = errors.New("tmdb: upstream request failed")
)

// ClientConfig configures the search client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Cache      Cache
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// Client searches TMDB and caches the raw responses.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewClient builds a Client. A missing API key is reported per request so the
// proxy can answer with a configuration error instead of failing at startup.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(nil)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   ttl,
		logger:     logger,
	}
}

// Search returns the first page of movie matches for query.
func (c *Client) Search(ctx context.Context, query string) (SearchResponse, error) {
	payload, err := c.SearchRaw(ctx, query)
	if err != nil {
		return SearchResponse{}, err
	}
	var response SearchResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return SearchResponse{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return response, nil
}

// SearchRaw returns the upstream JSON body for query, served from cache when fresh.
func (c *Client) SearchRaw(ctx context.Context, query string) ([]byte, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	key := cacheKey(query)
	if cached, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("tmdb cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	payload, err := c.fetch(ctx, query)
	if err != nil {
		c.logger.Error("tmdb search failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	if err := c.cache.Set(ctx, key, payload, c.cacheTTL); err != nil {
		c.logger.Warn("tmdb cache write failed", zap.String("key", key), zap.Error(err))
	}
	return payload, nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]byte, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("language", "en-US")
	params.Set("page", "1")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/movie?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, response.StatusCode)
	}
	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid json", ErrUpstream)
	}
	return payload, nil
}
