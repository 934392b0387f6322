package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"creator_ingest/internal/model"
)

const defaultRSSMax = 10

// RSSFetcher downloads and parses RSS and Atom feeds.
type RSSFetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// NewRSS creates an RSSFetcher with the given HTTP client.
func NewRSS(client HTTPClient) *RSSFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RSSFetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Platform implements Fetcher.
func (f *RSSFetcher) Platform() model.Platform { return model.PlatformRSS }

// Parse downloads and parses the feed at url.
func (f *RSSFetcher) Parse(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CreatorIngest/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Fetch returns the newest feed entries, newest first. Entries without a
// publish date sort last and are never dropped by the Since window.
func (f *RSSFetcher) Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error) {
	feed, err := f.Parse(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	entries := make([]*gofeed.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if opts.Since != nil && it.PublishedParsed != nil && !it.PublishedParsed.After(*opts.Since) {
			continue
		}
		entries = append(entries, it)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].PublishedParsed, entries[j].PublishedParsed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})

	n := opts.MaxResults
	if n <= 0 {
		n = defaultRSSMax
	}
	entries = limit(entries, n)

	items := make([]RawItem, 0, len(entries))
	for _, it := range entries {
		items = append(items, toRSSItem(it))
	}
	return items, nil
}

func toRSSItem(it *gofeed.Item) RSSItem {
	out := RSSItem{
		GUID:        it.GUID,
		Link:        it.Link,
		Title:       it.Title,
		Description: it.Description,
		Content:     it.Content,
		Published:   it.PublishedParsed,
		Updated:     it.UpdatedParsed,
	}
	if it.Author != nil {
		out.Author = it.Author.Name
	}
	if it.Image != nil {
		out.ImageURL = it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		out.Enclosures = append(out.Enclosures, Enclosure{URL: enc.URL, Type: enc.Type, Length: enc.Length})
	}
	return out
}
