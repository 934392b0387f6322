// Package pagemeta reads title, description and image hints from an HTML page.
package pagemeta

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 5 * time.Second

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Meta is the metadata found on a page. Empty fields were not present.
type Meta struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
	FeedURL     string
}

// Reader fetches pages and extracts their metadata.
type Reader struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Reader. A zero timeout selects DefaultTimeout.
func New(client HTTPClient, timeout time.Duration) *Reader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reader{client: client, timeout: timeout}
}

// Fetch downloads pageURL and parses its metadata.
func (r *Reader) Fetch(ctx context.Context, pageURL string) (Meta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CreatorIngest/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Meta{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return Meta{}, fmt.Errorf("parse html: %w", err)
	}
	return Extract(doc, pageURL), nil
}

// Extract reads Open Graph tags first and falls back to plain HTML tags.
// Relative image and feed links are resolved against pageURL.
func Extract(doc *goquery.Document, pageURL string) Meta {
	m := Meta{
		Title:       firstNonEmpty(metaContent(doc, "og:title"), metaContent(doc, "twitter:title"), doc.Find("title").First().Text()),
		Description: firstNonEmpty(metaContent(doc, "og:description"), metaContent(doc, "description")),
		ImageURL:    firstNonEmpty(metaContent(doc, "og:image"), metaContent(doc, "twitter:image")),
		SiteName:    metaContent(doc, "og:site_name"),
	}
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, _ := s.Attr("type")
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return true
		}
		m.FeedURL, _ = s.Attr("href")
		return false
	})

	m.ImageURL = resolve(pageURL, m.ImageURL)
	m.FeedURL = resolve(pageURL, m.FeedURL)
	return m
}

func metaContent(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q]`, name))
	if sel.Length() == 0 {
		sel = doc.Find(fmt.Sprintf(`meta[name=%q]`, name))
	}
	v, _ := sel.First().Attr("content")
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
