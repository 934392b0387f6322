package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"creator_ingest/internal/model"
	"creator_ingest/internal/platform"
)

const (
	apifyBaseURL        = "https://api.apify.com"
	defaultTwitterActor = "apidojo/tweet-scraper"
	defaultThreadsActor = "apify/threads-profile-api-scraper"
	defaultScraperMax   = 20
)

// ApifyClient runs Apify actors and collects their dataset output.
type ApifyClient struct {
	token string
	cfg   clientConfig
}

// NewApifyClient creates an Apify client authenticated with token.
func NewApifyClient(token string, opts ...ClientOption) *ApifyClient {
	return &ApifyClient{token: token, cfg: newClientConfig(apifyBaseURL, opts)}
}

type apifyRun struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

// Run starts actor with input, waits for it to finish and decodes the
// dataset items into out.
func (c *ApifyClient) Run(ctx context.Context, actor string, input any, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode actor input: %w", err)
	}

	// Actor IDs use "~" instead of "/" in API paths.
	actorPath := url.PathEscape(strings.ReplaceAll(actor, "/", "~"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v2/acts/"+actorPath+"/runs", nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var run apifyRun
	if err := doJSON(c.cfg.httpClient, "Apify", req, &run); err != nil {
		return fmt.Errorf("start actor %s: %w", actor, err)
	}

	datasetID := run.Data.DefaultDatasetID
	err = poll(ctx, c.cfg.pollInterval, c.cfg.pollTimeout, func(ctx context.Context) (bool, error) {
		switch run.Data.Status {
		case "SUCCEEDED":
			return true, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return false, fmt.Errorf("actor run %s finished with status %s", run.Data.ID, run.Data.Status)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v2/actor-runs/"+run.Data.ID, nil), nil)
		if err != nil {
			return false, fmt.Errorf("create request: %w", err)
		}
		if err := doJSON(c.cfg.httpClient, "Apify", req, &run); err != nil {
			return false, fmt.Errorf("poll actor run: %w", err)
		}
		if run.Data.DefaultDatasetID != "" {
			datasetID = run.Data.DefaultDatasetID
		}
		switch run.Data.Status {
		case "SUCCEEDED":
			return true, nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return false, fmt.Errorf("actor run %s finished with status %s", run.Data.ID, run.Data.Status)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("clean", "true")
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v2/datasets/"+datasetID+"/items", q), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if err := doJSON(c.cfg.httpClient, "Apify", req, out); err != nil {
		return fmt.Errorf("fetch dataset items: %w", err)
	}
	return nil
}

func (c *ApifyClient) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("token", c.token)
	return c.cfg.baseURL + path + "?" + q.Encode()
}

// TwitterSearchQuery builds the advanced search query for a handle's own
// tweets, optionally bounded by a day-granular since: operator.
func TwitterSearchQuery(handle string, since *time.Time) string {
	q := "from:" + strings.TrimPrefix(handle, "@")
	if since != nil {
		q += " since:" + since.UTC().Format("2006-01-02")
	}
	return q
}

// TwitterFetcher scrapes recent tweets of a profile through an Apify actor.
type TwitterFetcher struct {
	apify *ApifyClient
	actor string
}

// NewTwitter creates a Twitter fetcher. An empty actor selects the default.
func NewTwitter(apify *ApifyClient, actor string) *TwitterFetcher {
	if actor == "" {
		actor = defaultTwitterActor
	}
	return &TwitterFetcher{apify: apify, actor: actor}
}

// Platform implements Fetcher.
func (f *TwitterFetcher) Platform() model.Platform { return model.PlatformTwitter }

// Fetch implements Fetcher.
func (f *TwitterFetcher) Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error) {
	handle, err := profileHandle(sourceURL, model.PlatformTwitter)
	if err != nil {
		return nil, err
	}
	n := opts.MaxResults
	if n <= 0 {
		n = defaultScraperMax
	}

	input := map[string]any{
		"searchTerms": []string{TwitterSearchQuery(handle, opts.Since)},
		"maxItems":    n,
		"sort":        "Latest",
	}
	var tweets []Tweet
	if err := f.apify.Run(ctx, f.actor, input, &tweets); err != nil {
		return nil, err
	}

	items := make([]RawItem, 0, len(tweets))
	for _, t := range tweets {
		if t.NoResults {
			continue
		}
		items = append(items, t)
	}
	return limit(items, n), nil
}

// ThreadsFetcher scrapes recent posts of a Threads profile through an Apify
// actor. The actor has no date filter, so Since is applied here.
type ThreadsFetcher struct {
	apify *ApifyClient
	actor string
}

// NewThreads creates a Threads fetcher. An empty actor selects the default.
func NewThreads(apify *ApifyClient, actor string) *ThreadsFetcher {
	if actor == "" {
		actor = defaultThreadsActor
	}
	return &ThreadsFetcher{apify: apify, actor: actor}
}

// Platform implements Fetcher.
func (f *ThreadsFetcher) Platform() model.Platform { return model.PlatformThreads }

// Fetch implements Fetcher.
func (f *ThreadsFetcher) Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error) {
	handle, err := profileHandle(sourceURL, model.PlatformThreads)
	if err != nil {
		return nil, err
	}
	n := opts.MaxResults
	if n <= 0 {
		n = defaultScraperMax
	}

	input := map[string]any{
		"usernames": []string{handle},
		"maxPosts":  n,
	}
	var posts []ThreadsPost
	if err := f.apify.Run(ctx, f.actor, input, &posts); err != nil {
		return nil, err
	}

	items := make([]RawItem, 0, len(posts))
	for _, p := range posts {
		if opts.Since != nil {
			if at := p.PublishedAt(); at != nil && !at.After(*opts.Since) {
				continue
			}
		}
		items = append(items, p)
	}
	return limit(items, n), nil
}

func profileHandle(sourceURL string, want model.Platform) (string, error) {
	det, err := platform.Detect(sourceURL)
	if err != nil {
		return "", err
	}
	if det.Platform != want {
		return "", fmt.Errorf("not a %s profile url: %s", want, sourceURL)
	}
	return det.Metadata["handle"], nil
}
