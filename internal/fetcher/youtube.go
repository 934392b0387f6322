package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"creator_ingest/internal/model"
	"creator_ingest/internal/platform"
)

const (
	youtubeBaseURL    = "https://www.googleapis.com"
	defaultYouTubeMax = 10
)

// YouTubeFetcher lists recent uploads of a channel through the YouTube Data API v3.
type YouTubeFetcher struct {
	apiKey      string
	accessToken string
	cfg         clientConfig
}

// NewYouTube creates a YouTube fetcher. apiKey takes precedence over accessToken.
func NewYouTube(apiKey, accessToken string, opts ...ClientOption) *YouTubeFetcher {
	return &YouTubeFetcher{
		apiKey:      apiKey,
		accessToken: accessToken,
		cfg:         newClientConfig(youtubeBaseURL, opts),
	}
}

// Platform implements Fetcher.
func (f *YouTubeFetcher) Platform() model.Platform { return model.PlatformYouTube }

// Fetch resolves the channel behind sourceURL and returns its newest videos
// merged with view, like and comment counts.
func (f *YouTubeFetcher) Fetch(ctx context.Context, sourceURL string, opts Options) ([]RawItem, error) {
	channelID, err := f.resolveChannel(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	n := opts.MaxResults
	if n <= 0 {
		n = defaultYouTubeMax
	}
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", channelID)
	q.Set("maxResults", strconv.Itoa(n))
	q.Set("order", "date")
	q.Set("type", "video")
	if opts.Since != nil {
		q.Set("publishedAfter", opts.Since.UTC().Format(time.RFC3339))
	}

	var search ytSearchResponse
	if err := f.get(ctx, "/youtube/v3/search", q, &search); err != nil {
		return nil, err
	}
	if len(search.Items) == 0 {
		return []RawItem{}, nil
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		ids = append(ids, item.ID.VideoID)
	}

	q = url.Values{}
	q.Set("part", "statistics,contentDetails")
	q.Set("id", strings.Join(ids, ","))
	var videos ytVideosResponse
	if err := f.get(ctx, "/youtube/v3/videos", q, &videos); err != nil {
		return nil, err
	}

	stats := make(map[string]ytVideoStats, len(videos.Items))
	for _, v := range videos.Items {
		stats[v.ID] = ytVideoStats{
			views:    parseCount(v.Statistics.ViewCount),
			likes:    parseCount(v.Statistics.LikeCount),
			comments: parseCount(v.Statistics.CommentCount),
			duration: v.ContentDetails.Duration,
		}
	}

	items := make([]RawItem, 0, len(search.Items))
	for _, item := range limit(search.Items, n) {
		s := stats[item.ID.VideoID]
		items = append(items, YouTubeVideo{
			VideoID:      item.ID.VideoID,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ThumbnailURL: item.Snippet.Thumbnails.best(),
			PublishedAt:  item.Snippet.PublishedAt,
			Duration:     s.duration,
			ViewCount:    s.views,
			LikeCount:    s.likes,
			CommentCount: s.comments,
		})
	}
	return items, nil
}

// resolveChannel maps a channel URL to a channel ID, looking up handles and
// legacy usernames through the channels endpoint.
func (f *YouTubeFetcher) resolveChannel(ctx context.Context, sourceURL string) (string, error) {
	det, err := platform.Detect(sourceURL)
	if err != nil {
		return "", err
	}
	if det.Platform != model.PlatformYouTube {
		return "", fmt.Errorf("not a youtube channel url: %s", sourceURL)
	}

	q := url.Values{}
	q.Set("part", "id")
	switch det.Metadata["identifier_type"] {
	case "channel_id":
		return det.PlatformUserID, nil
	case "handle":
		q.Set("forHandle", det.PlatformUserID)
	case "legacy_user":
		q.Set("forUsername", det.PlatformUserID)
	default:
		// Custom /c/ URLs have no lookup endpoint; the name is usually the handle.
		q.Set("forHandle", "@"+det.PlatformUserID)
	}

	var resp ytChannelsResponse
	if err := f.get(ctx, "/youtube/v3/channels", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("youtube channel not found for %s", sourceURL)
	}
	return resp.Items[0].ID, nil
}

func (f *YouTubeFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	if f.apiKey != "" {
		q.Set("key", f.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if f.apiKey == "" && f.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.accessToken)
	}
	return doJSON(f.cfg.httpClient, "YouTube", req, out)
}

func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

type ytVideoStats struct {
	views    *int64
	likes    *int64
	comments *int64
	duration string
}

type ytThumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
	Medium struct {
		URL string `json:"url"`
	} `json:"medium"`
	High struct {
		URL string `json:"url"`
	} `json:"high"`
}

func (t ytThumbnails) best() string {
	switch {
	case t.High.URL != "":
		return t.High.URL
	case t.Medium.URL != "":
		return t.Medium.URL
	}
	return t.Default.URL
}

type ytChannelsResponse struct {
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string       `json:"title"`
			Description  string       `json:"description"`
			ChannelID    string       `json:"channelId"`
			ChannelTitle string       `json:"channelTitle"`
			PublishedAt  string       `json:"publishedAt"`
			Thumbnails   ytThumbnails `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}
