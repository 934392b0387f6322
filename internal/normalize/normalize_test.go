package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"creator_ingest/internal/fetcher"
	"creator_ingest/internal/model"
)

func ptr[T any](v T) *T { return &v }

func utc(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		platform model.Platform
		raw      fetcher.RawItem
		want     model.CreateContentInput
	}{
		{
			name:     "rss with html content",
			platform: model.PlatformRSS,
			raw: fetcher.RSSItem{
				GUID:        "post-1",
				Link:        "https://blog.example.com/post-1",
				Title:       " Hello ",
				Description: "<p>Short <b>intro</b></p>",
				Content:     `<p>one two three</p><img src="https://blog.example.com/a.png">`,
				Published:   utc("2025-01-01T00:00:00Z"),
			},
			want: model.CreateContentInput{
				CreatorID:          "c1",
				Platform:           model.PlatformRSS,
				PlatformContentID:  "post-1",
				URL:                "https://blog.example.com/post-1",
				Title:              "Hello",
				Description:        "Short intro",
				ContentBody:        "one two three",
				ThumbnailURL:       "https://blog.example.com/a.png",
				PublishedAt:        utc("2025-01-01T00:00:00Z"),
				WordCount:          3,
				ReadingTimeMinutes: 1,
			},
		},
		{
			name:     "rss without guid keys by link",
			platform: model.PlatformRSS,
			raw: fetcher.RSSItem{
				Link:       "https://blog.example.com/ep-2",
				Title:      "Episode 2",
				Enclosures: []fetcher.Enclosure{{URL: "https://cdn.example.com/ep2.mp3", Type: "audio/mpeg"}},
			},
			want: model.CreateContentInput{
				CreatorID:         "c1",
				Platform:          model.PlatformRSS,
				PlatformContentID: "https://blog.example.com/ep-2",
				URL:               "https://blog.example.com/ep-2",
				Title:             "Episode 2",
				MediaURLs:         []model.MediaItem{{URL: "https://cdn.example.com/ep2.mp3", Type: "audio"}},
			},
		},
		{
			name:     "youtube video",
			platform: model.PlatformYouTube,
			raw: fetcher.YouTubeVideo{
				VideoID:      "abc123",
				Title:        "Launch",
				Description:  "We launched",
				ThumbnailURL: "https://i.ytimg.com/abc123/hq.jpg",
				PublishedAt:  "2025-01-02T10:00:00Z",
				Duration:     "PT4M13S",
				ViewCount:    ptr(int64(100)),
				LikeCount:    ptr(int64(5)),
			},
			want: model.CreateContentInput{
				CreatorID:          "c1",
				Platform:           model.PlatformYouTube,
				PlatformContentID:  "abc123",
				URL:                "https://www.youtube.com/watch?v=abc123",
				Title:              "Launch",
				Description:        "We launched",
				ContentBody:        "We launched",
				ThumbnailURL:       "https://i.ytimg.com/abc123/hq.jpg",
				PublishedAt:        utc("2025-01-02T10:00:00Z"),
				WordCount:          2,
				ReadingTimeMinutes: 1,
				MediaURLs:          []model.MediaItem{{URL: "https://www.youtube.com/watch?v=abc123", Type: "video", Duration: "PT4M13S"}},
				Engagement:         &model.Engagement{Views: ptr(int64(100)), Likes: ptr(int64(5))},
			},
		},
		{
			name:     "quote tweet",
			platform: model.PlatformTwitter,
			raw: fetcher.Tweet{
				ID:           "42",
				Text:         "look at this",
				CreatedAt:    "Wed Jan 01 10:00:00 +0000 2025",
				LikeCount:    ptr(int64(3)),
				RetweetCount: ptr(int64(1)),
				QuoteCount:   ptr(int64(2)),
				ReplyCount:   ptr(int64(4)),
				IsQuote:      true,
				Author:       fetcher.TweetAuthor{UserName: "golang"},
				Quote:        &fetcher.Tweet{ID: "41", URL: "https://x.com/rob/status/41", Text: "original", Author: fetcher.TweetAuthor{UserName: "rob"}},
			},
			want: model.CreateContentInput{
				CreatorID:          "c1",
				Platform:           model.PlatformTwitter,
				PlatformContentID:  "42",
				URL:                "https://x.com/golang/status/42",
				Title:              "look at this",
				Description:        "look at this",
				ContentBody:        "look at this",
				PublishedAt:        utc("2025-01-01T10:00:00Z"),
				WordCount:          3,
				ReadingTimeMinutes: 1,
				Engagement:         &model.Engagement{Likes: ptr(int64(3)), Comments: ptr(int64(4)), Shares: ptr(int64(3))},
				ReferenceType:      model.ReferenceQuote,
				ReferencedContent:  &model.ReferencedContent{PlatformContentID: "41", URL: "https://x.com/rob/status/41", Author: "rob", Text: "original"},
			},
		},
		{
			name:     "threads post keyed by code",
			platform: model.PlatformThreads,
			raw: fetcher.ThreadsPost{
				Code:      "C9x",
				Username:  "zuck",
				Text:      "hello threads",
				TakenAt:   1735725600,
				Images:    []string{"https://cdn.threads.net/1.jpg"},
				LikeCount: ptr(int64(9)),
			},
			want: model.CreateContentInput{
				CreatorID:          "c1",
				Platform:           model.PlatformThreads,
				PlatformContentID:  "C9x",
				URL:                "https://www.threads.net/@zuck/post/C9x",
				Title:              "hello threads",
				Description:        "hello threads",
				ContentBody:        "hello threads",
				ThumbnailURL:       "https://cdn.threads.net/1.jpg",
				PublishedAt:        utc("2025-01-01T10:00:00Z"),
				WordCount:          2,
				ReadingTimeMinutes: 1,
				MediaURLs:          []model.MediaItem{{URL: "https://cdn.threads.net/1.jpg", Type: "image"}},
				Engagement:         &model.Engagement{Likes: ptr(int64(9))},
			},
		},
		{
			name:     "linkedin post from html",
			platform: model.PlatformLinkedIn,
			raw: fetcher.LinkedInPost{
				ID:           "7001",
				URL:          "https://www.linkedin.com/posts/jane_7001",
				PostTextHTML: "<span>Hiring <b>now</b></span>",
				DatePosted:   "2025-01-02T00:00:00.000Z",
				NumComments:  ptr(int64(2)),
			},
			want: model.CreateContentInput{
				CreatorID:          "c1",
				Platform:           model.PlatformLinkedIn,
				PlatformContentID:  "7001",
				URL:                "https://www.linkedin.com/posts/jane_7001",
				Title:              "Hiring now",
				Description:        "Hiring now",
				ContentBody:        "Hiring now",
				PublishedAt:        utc("2025-01-02T00:00:00Z"),
				WordCount:          2,
				ReadingTimeMinutes: 1,
				Engagement:         &model.Engagement{Comments: ptr(int64(2))},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.platform, tt.raw, "c1", "https://source.example.com")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		platform model.Platform
		raw      fetcher.RawItem
	}{
		{name: "platform mismatch", platform: model.PlatformYouTube, raw: fetcher.RSSItem{GUID: "g", Link: "https://e.com"}},
		{name: "unknown platform", platform: "myspace", raw: fetcher.RSSItem{GUID: "g", Link: "https://e.com"}},
		{name: "nil item", platform: model.PlatformRSS, raw: nil},
		{name: "tweet without id", platform: model.PlatformTwitter, raw: fetcher.Tweet{Text: "no id", URL: "https://x.com/a/status/1"}},
		{name: "rss without link", platform: model.PlatformRSS, raw: fetcher.RSSItem{GUID: "urn:uuid:1", Title: "t"}},
		{name: "empty rss entry", platform: model.PlatformRSS, raw: fetcher.RSSItem{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.platform, tt.raw, "c1", "https://source.example.com")
			var ne *Error
			if !errors.As(err, &ne) {
				t.Fatalf("expected *Error, got %v", err)
			}
		})
	}
}

func TestContentIDUnknownItem(t *testing.T) {
	type other struct{ fetcher.RSSItem }
	if got := ContentID(other{fetcher.RSSItem{GUID: "x"}}); got != "" {
		t.Errorf("ContentID() = %q, want empty", got)
	}
}

func TestReadingStats(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantWords   int
		wantMinutes int
	}{
		{name: "empty", body: "  "},
		{name: "one word", body: "hi", wantWords: 1, wantMinutes: 1},
		{name: "exactly 200", body: strings.Repeat("w ", 200), wantWords: 200, wantMinutes: 1},
		{name: "201 rounds up", body: strings.Repeat("w ", 201), wantWords: 201, wantMinutes: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, minutes := ReadingStats(tt.body)
			if words != tt.wantWords || minutes != tt.wantMinutes {
				t.Errorf("ReadingStats() = (%d, %d), want (%d, %d)", words, minutes, tt.wantWords, tt.wantMinutes)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("Truncate() = %q", got)
	}
}
