// Package fetcher retrieves recent items from external content sources.
// Each platform has one Fetcher; a Registry selects the fetcher for a
// platform and reports platforms that are missing credentials.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"creator_ingest/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options bounds a single fetch.
type Options struct {
	// MaxResults caps the number of returned items. Zero means the fetcher default.
	MaxResults int
	// Since, when set, asks for items published after this instant.
	Since *time.Time
}

// Fetcher retrieves a bounded batch of recent raw items for one source URL.
// An empty result with a nil error means the source has no new content.
type Fetcher interface {
	Platform() model.Platform
	Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error)
}

// ConfigError reports a platform whose fetcher cannot run because a
// credential is not configured.
type ConfigError struct {
	Platform   model.Platform
	Credential string
}

func (e *ConfigError) Error() string {
	if e.Credential == "" {
		return fmt.Sprintf("no fetcher registered for platform %q", e.Platform)
	}
	return fmt.Sprintf("%s fetcher not configured: missing %s", e.Platform, e.Credential)
}

// APIError is a non-2xx response from a remote API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func newAPIError(service string, statusCode int) *APIError {
	var msg string
	switch statusCode {
	case http.StatusUnauthorized:
		msg = "authentication failed, check the API credential"
	case http.StatusForbidden:
		msg = "access denied or quota exceeded"
	case http.StatusNotFound:
		msg = "resource not found"
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded"
	case http.StatusServiceUnavailable:
		msg = "service temporarily unavailable"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		msg = "server error"
	default:
		msg = "unexpected response"
	}
	return &APIError{Service: service, StatusCode: statusCode, Message: msg}
}

// Registry maps platforms to fetchers.
type Registry struct {
	fetchers map[model.Platform]Fetcher
	missing  map[model.Platform]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[model.Platform]Fetcher),
		missing:  make(map[model.Platform]string),
	}
}

// Register adds f, replacing any fetcher or disabled marker for its platform.
func (r *Registry) Register(f Fetcher) {
	r.fetchers[f.Platform()] = f
	delete(r.missing, f.Platform())
}

// Disable marks p as unavailable because credential is not configured.
func (r *Registry) Disable(p model.Platform, credential string) {
	delete(r.fetchers, p)
	r.missing[p] = credential
}

// Lookup returns the fetcher for p, or a *ConfigError when none is usable.
func (r *Registry) Lookup(p model.Platform) (Fetcher, error) {
	if f, ok := r.fetchers[p]; ok {
		return f, nil
	}
	return nil, &ConfigError{Platform: p, Credential: r.missing[p]}
}

// Disabled lists the disabled platforms with the credential each one needs,
// as "platform (CREDENTIAL)", sorted.
func (r *Registry) Disabled() []string {
	out := make([]string, 0, len(r.missing))
	for p, cred := range r.missing {
		out = append(out, fmt.Sprintf("%s (%s)", p, cred))
	}
	sort.Strings(out)
	return out
}

// Credentials holds the optional per-platform secrets.
type Credentials struct {
	YouTubeAPIKey       string
	YouTubeAccessToken  string
	ApifyToken          string
	ApifyTwitterActor   string
	ApifyThreadsActor   string
	BrightDataAPIKey    string
	BrightDataLinkedIn  string
	ScraperPollInterval time.Duration
}

// NewDefaultRegistry wires every platform whose credentials are present and
// disables the others.
func NewDefaultRegistry(creds Credentials, client HTTPClient) *Registry {
	r := NewRegistry()
	r.Register(NewRSS(client))

	if creds.YouTubeAPIKey != "" || creds.YouTubeAccessToken != "" {
		r.Register(NewYouTube(creds.YouTubeAPIKey, creds.YouTubeAccessToken, WithHTTPClient(client)))
	} else {
		r.Disable(model.PlatformYouTube, "YOUTUBE_API_KEY")
	}

	opts := []ClientOption{WithHTTPClient(client)}
	if creds.ScraperPollInterval > 0 {
		opts = append(opts, WithPollInterval(creds.ScraperPollInterval))
	}

	if creds.ApifyToken != "" {
		apify := NewApifyClient(creds.ApifyToken, opts...)
		r.Register(NewTwitter(apify, creds.ApifyTwitterActor))
		r.Register(NewThreads(apify, creds.ApifyThreadsActor))
	} else {
		r.Disable(model.PlatformTwitter, "APIFY_API_TOKEN")
		r.Disable(model.PlatformThreads, "APIFY_API_TOKEN")
	}

	if creds.BrightDataAPIKey != "" {
		bd := NewBrightDataClient(creds.BrightDataAPIKey, opts...)
		r.Register(NewLinkedIn(bd, creds.BrightDataLinkedIn))
	} else {
		r.Disable(model.PlatformLinkedIn, "BRIGHTDATA_API_KEY")
	}
	return r
}

type clientConfig struct {
	baseURL      string
	httpClient   HTTPClient
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// ClientOption configures an API client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPClient) ClientOption {
	return func(cfg *clientConfig) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.baseURL = u
	}
}

// WithPollInterval sets how often scrape jobs are polled.
func WithPollInterval(d time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.pollInterval = d
	}
}

// WithPollTimeout bounds how long a scrape job may run.
func WithPollTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.pollTimeout = d
	}
}

func newClientConfig(baseURL string, opts []ClientOption) clientConfig {
	cfg := clientConfig{
		baseURL:      baseURL,
		httpClient:   http.DefaultClient,
		pollInterval: 5 * time.Second,
		pollTimeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

const maxResponseBytes = 10 * 1024 * 1024

// doJSON sends req and decodes a 2xx JSON body into out (when out is non-nil).
func doJSON(client HTTPClient, service string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(service, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", service, err)
	}
	return nil
}

// poll calls check every interval until it reports done, returns an error,
// the timeout elapses or ctx is cancelled.
func poll(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for scrape job: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
