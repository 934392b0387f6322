package fetcher

import (
	"time"

	"creator_ingest/internal/model"
)

// RawItem is a platform-shaped item as returned by a fetcher. The normalizer
// turns it into a model.CreateContentInput.
type RawItem interface {
	Platform() model.Platform
}

// RSSItem is one entry of an RSS or Atom feed.
type RSSItem struct {
	GUID        string
	Link        string
	Title       string
	Description string
	Content     string
	Author      string
	ImageURL    string
	Published   *time.Time
	Updated     *time.Time
	Enclosures  []Enclosure
}

// Enclosure is a media attachment of a feed entry.
type Enclosure struct {
	URL    string
	Type   string
	Length string
}

// Platform implements RawItem.
func (RSSItem) Platform() model.Platform { return model.PlatformRSS }

// YouTubeVideo merges a search result with its statistics.
type YouTubeVideo struct {
	VideoID      string
	ChannelID    string
	ChannelTitle string
	Title        string
	Description  string
	ThumbnailURL string
	PublishedAt  string
	Duration     string
	ViewCount    *int64
	LikeCount    *int64
	CommentCount *int64
}

// Platform implements RawItem.
func (YouTubeVideo) Platform() model.Platform { return model.PlatformYouTube }

// Tweet is one item of the tweet scraper dataset.
type Tweet struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	TwitterURL    string       `json:"twitterUrl"`
	Text          string       `json:"text"`
	FullText      string       `json:"fullText"`
	CreatedAt     string       `json:"createdAt"`
	LikeCount     *int64       `json:"likeCount"`
	RetweetCount  *int64       `json:"retweetCount"`
	ReplyCount    *int64       `json:"replyCount"`
	QuoteCount    *int64       `json:"quoteCount"`
	ViewCount     *int64       `json:"viewCount"`
	IsRetweet     bool         `json:"isRetweet"`
	IsQuote       bool         `json:"isQuote"`
	IsReply       bool         `json:"isReply"`
	InReplyToID   string       `json:"inReplyToId"`
	Author        TweetAuthor  `json:"author"`
	Quote         *Tweet       `json:"quote"`
	Retweet       *Tweet       `json:"retweet"`
	ExtendedMedia *TweetMedias `json:"extendedEntities"`
	NoResults     bool         `json:"noResults"`
}

// TweetAuthor identifies the author of a tweet.
type TweetAuthor struct {
	UserName string `json:"userName"`
	Name     string `json:"name"`
}

// TweetMedias wraps the media list of a tweet.
type TweetMedias struct {
	Media []TweetMedia `json:"media"`
}

// TweetMedia is one photo, video or gif attached to a tweet.
type TweetMedia struct {
	URL          string `json:"media_url_https"`
	Type         string `json:"type"`
	OriginalInfo struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"original_info"`
	VideoInfo *struct {
		DurationMillis int64 `json:"duration_millis"`
	} `json:"video_info"`
}

// Platform implements RawItem.
func (Tweet) Platform() model.Platform { return model.PlatformTwitter }

// ThreadsPost is one item of the threads scraper dataset.
type ThreadsPost struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	URL         string       `json:"url"`
	Text        string       `json:"text"`
	Username    string       `json:"username"`
	TakenAt     int64        `json:"taken_at"`
	LikeCount   *int64       `json:"like_count"`
	ReplyCount  *int64       `json:"reply_count"`
	RepostCount *int64       `json:"repost_count"`
	Images      []string     `json:"images"`
	Videos      []string     `json:"videos"`
	QuotedPost  *ThreadsPost `json:"quoted_post"`
}

// Platform implements RawItem.
func (ThreadsPost) Platform() model.Platform { return model.PlatformThreads }

// PublishedAt returns the post time, or nil when unknown.
func (p ThreadsPost) PublishedAt() *time.Time {
	if p.TakenAt <= 0 {
		return nil
	}
	t := time.Unix(p.TakenAt, 0).UTC()
	return &t
}

// LinkedInPost is one record of the LinkedIn posts dataset.
type LinkedInPost struct {
	ID           string          `json:"id"`
	URL          string          `json:"url"`
	Title        string          `json:"title"`
	Headline     string          `json:"headline"`
	PostText     string          `json:"post_text"`
	PostTextHTML string          `json:"post_text_html"`
	DatePosted   string          `json:"date_posted"`
	UserID       string          `json:"user_id"`
	PostType     string          `json:"post_type"`
	NumLikes     *int64          `json:"num_likes"`
	NumComments  *int64          `json:"num_comments"`
	NumShares    *int64          `json:"num_shares"`
	Images       []string        `json:"images"`
	Videos       []string        `json:"videos"`
	Repost       *LinkedInRepost `json:"repost"`
	Error        string          `json:"error"`
}

// LinkedInRepost describes the original post of a repost.
type LinkedInRepost struct {
	ID     string `json:"repost_id"`
	URL    string `json:"repost_url"`
	Author string `json:"repost_user_name"`
	Text   string `json:"repost_text"`
}

// Platform implements RawItem.
func (LinkedInPost) Platform() model.Platform { return model.PlatformLinkedIn }
