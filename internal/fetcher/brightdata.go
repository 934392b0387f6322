package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"creator_ingest/internal/model"
)

const (
	brightDataBaseURL      = "https://api.brightdata.com"
	defaultLinkedInDataset = "gd_lyy3tktm25m4avu764"
	defaultLinkedInMax     = 10
)

// BrightDataClient triggers dataset collections and downloads snapshots.
type BrightDataClient struct {
	apiKey string
	cfg    clientConfig
}

// NewBrightDataClient creates a Bright Data client authenticated with apiKey.
func NewBrightDataClient(apiKey string, opts ...ClientOption) *BrightDataClient {
	return &BrightDataClient{apiKey: apiKey, cfg: newClientConfig(brightDataBaseURL, opts)}
}

// Scrape triggers a collection of dataset for inputs, waits until the
// snapshot is ready and decodes it into out.
func (c *BrightDataClient) Scrape(ctx context.Context, dataset string, inputs []map[string]string, out any) error {
	body, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	q := url.Values{}
	q.Set("dataset_id", dataset)
	q.Set("include_errors", "true")
	req, err := c.newRequest(ctx, http.MethodPost, "/datasets/v3/trigger?"+q.Encode(), body)
	if err != nil {
		return err
	}
	var trigger struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := doJSON(c.cfg.httpClient, "Bright Data", req, &trigger); err != nil {
		return fmt.Errorf("trigger collection: %w", err)
	}
	if trigger.SnapshotID == "" {
		return fmt.Errorf("trigger collection: empty snapshot id")
	}

	err = poll(ctx, c.cfg.pollInterval, c.cfg.pollTimeout, func(ctx context.Context) (bool, error) {
		req, err := c.newRequest(ctx, http.MethodGet, "/datasets/v3/progress/"+trigger.SnapshotID, nil)
		if err != nil {
			return false, err
		}
		var progress struct {
			Status string `json:"status"`
		}
		if err := doJSON(c.cfg.httpClient, "Bright Data", req, &progress); err != nil {
			return false, fmt.Errorf("poll snapshot: %w", err)
		}
		switch progress.Status {
		case "ready":
			return true, nil
		case "failed":
			return false, fmt.Errorf("snapshot %s failed", trigger.SnapshotID)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	req, err = c.newRequest(ctx, http.MethodGet, "/datasets/v3/snapshot/"+trigger.SnapshotID+"?format=json", nil)
	if err != nil {
		return err
	}
	if err := doJSON(c.cfg.httpClient, "Bright Data", req, out); err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	return nil
}

func (c *BrightDataClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// LinkedInFetcher collects recent posts of a LinkedIn profile or company page.
type LinkedInFetcher struct {
	client  *BrightDataClient
	dataset string
}

// NewLinkedIn creates a LinkedIn fetcher. An empty dataset selects the default.
func NewLinkedIn(client *BrightDataClient, dataset string) *LinkedInFetcher {
	if dataset == "" {
		dataset = defaultLinkedInDataset
	}
	return &LinkedInFetcher{client: client, dataset: dataset}
}

// Platform implements Fetcher.
func (f *LinkedInFetcher) Platform() model.Platform { return model.PlatformLinkedIn }

// Fetch implements Fetcher. Records the dataset reports as errors are dropped;
// when every record is an error the first message is returned.
func (f *LinkedInFetcher) Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error) {
	input := map[string]string{"url": sourceURL}
	if opts.Since != nil {
		input["start_date"] = opts.Since.UTC().Format(time.RFC3339)
	}

	var records []LinkedInPost
	if err := f.client.Scrape(ctx, f.dataset, []map[string]string{input}, &records); err != nil {
		return nil, err
	}

	n := opts.MaxResults
	if n <= 0 {
		n = defaultLinkedInMax
	}
	items := make([]RawItem, 0, len(records))
	var firstErr string
	for _, r := range records {
		if r.Error != "" {
			if firstErr == "" {
				firstErr = r.Error
			}
			continue
		}
		items = append(items, r)
	}
	if len(items) == 0 && firstErr != "" {
		return nil, fmt.Errorf("linkedin collection: %s", firstErr)
	}
	return limit(items, n), nil
}
