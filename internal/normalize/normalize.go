// Package normalize maps platform-shaped raw items onto the canonical
// model.CreateContentInput record.
package normalize

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"creator_ingest/internal/fetcher"
	"creator_ingest/internal/model"
)

// WordsPerMinute is the reading speed used for reading_time_minutes.
const WordsPerMinute = 200

const titleRunes = 100

// Error reports a raw item that could not be turned into a valid record.
type Error struct {
	Platform  model.Platform
	ContentID string
	Reason    string
}

func (e *Error) Error() string {
	if e.ContentID == "" {
		return fmt.Sprintf("normalize %s item: %s", e.Platform, e.Reason)
	}
	return fmt.Sprintf("normalize %s item %s: %s", e.Platform, e.ContentID, e.Reason)
}

// ContentID returns the platform-native identifier of raw. It is empty for
// unknown platforms and for items that carry no usable identifier.
func ContentID(raw fetcher.RawItem) string {
	switch it := raw.(type) {
	case fetcher.RSSItem:
		return rssID(it)
	case fetcher.YouTubeVideo:
		return it.VideoID
	case fetcher.Tweet:
		return it.ID
	case fetcher.ThreadsPost:
		if it.ID != "" {
			return it.ID
		}
		return it.Code
	case fetcher.LinkedInPost:
		return it.ID
	}
	return ""
}

// rssID prefers the guid, then the link. Entries with neither are keyed by
// a hash of their title.
func rssID(it fetcher.RSSItem) string {
	switch {
	case it.GUID != "":
		return it.GUID
	case it.Link != "":
		return it.Link
	case it.Title != "":
		h := sha256.Sum256([]byte(it.Title + "|" + it.Link))
		return fmt.Sprintf("sha256:%x", h[:16])
	}
	return ""
}

// Normalize converts one raw item fetched for creatorID from sourceURL.
// It returns a *Error when raw belongs to another platform or lacks a
// required field.
func Normalize(p model.Platform, raw fetcher.RawItem, creatorID, sourceURL string) (model.CreateContentInput, error) {
	if raw == nil || !p.Valid() || raw.Platform() != p {
		return model.CreateContentInput{}, &Error{Platform: p, Reason: "unsupported platform or item shape"}
	}

	in := model.CreateContentInput{
		CreatorID:         creatorID,
		Platform:          p,
		PlatformContentID: ContentID(raw),
	}
	switch it := raw.(type) {
	case fetcher.RSSItem:
		fromRSS(&in, it)
	case fetcher.YouTubeVideo:
		fromYouTube(&in, it)
	case fetcher.Tweet:
		fromTweet(&in, it)
	case fetcher.ThreadsPost:
		fromThreads(&in, it)
	case fetcher.LinkedInPost:
		fromLinkedIn(&in, it)
	}
	in.WordCount, in.ReadingTimeMinutes = ReadingStats(in.ContentBody)

	if err := in.Validate(); err != nil {
		return model.CreateContentInput{}, &Error{Platform: p, ContentID: in.PlatformContentID, Reason: err.Error()}
	}
	return in, nil
}

func fromRSS(in *model.CreateContentInput, it fetcher.RSSItem) {
	in.URL = it.Link
	if in.URL == "" && strings.HasPrefix(it.GUID, "http") {
		in.URL = it.GUID
	}
	in.Title = strings.TrimSpace(it.Title)
	in.Description = StripHTML(it.Description)
	in.ContentBody = StripHTML(firstNonEmpty(it.Content, it.Description))
	in.PublishedAt = it.Published
	if in.PublishedAt == nil {
		in.PublishedAt = it.Updated
	}

	in.ThumbnailURL = it.ImageURL
	for _, enc := range it.Enclosures {
		kind := mediaKind(enc.Type)
		if in.ThumbnailURL == "" && kind == "image" {
			in.ThumbnailURL = enc.URL
		}
		in.MediaURLs = append(in.MediaURLs, model.MediaItem{URL: enc.URL, Type: kind})
	}
	if in.ThumbnailURL == "" {
		in.ThumbnailURL = FirstImage(firstNonEmpty(it.Content, it.Description))
	}
}

func fromYouTube(in *model.CreateContentInput, it fetcher.YouTubeVideo) {
	in.URL = "https://www.youtube.com/watch?v=" + it.VideoID
	if it.VideoID == "" {
		in.URL = ""
	}
	in.Title = it.Title
	in.Description = it.Description
	in.ContentBody = it.Description
	in.ThumbnailURL = it.ThumbnailURL
	in.PublishedAt = ParseTime(it.PublishedAt)
	if in.URL != "" {
		in.MediaURLs = []model.MediaItem{{URL: in.URL, Type: "video", Duration: it.Duration}}
	}
	in.Engagement = engagement(it.ViewCount, it.LikeCount, it.CommentCount, nil)
}

func fromTweet(in *model.CreateContentInput, it fetcher.Tweet) {
	text := firstNonEmpty(it.FullText, it.Text)
	in.URL = firstNonEmpty(it.URL, it.TwitterURL)
	if in.URL == "" && it.ID != "" && it.Author.UserName != "" {
		in.URL = "https://x.com/" + it.Author.UserName + "/status/" + it.ID
	}
	in.Title = Truncate(text, titleRunes)
	in.Description = text
	in.ContentBody = text
	in.PublishedAt = ParseTime(it.CreatedAt)

	if it.ExtendedMedia != nil {
		for _, m := range it.ExtendedMedia.Media {
			item := model.MediaItem{
				URL:    m.URL,
				Type:   m.Type,
				Width:  m.OriginalInfo.Width,
				Height: m.OriginalInfo.Height,
			}
			if m.VideoInfo != nil && m.VideoInfo.DurationMillis > 0 {
				item.Duration = strconv.FormatInt(m.VideoInfo.DurationMillis/1000, 10) + "s"
			}
			in.MediaURLs = append(in.MediaURLs, item)
		}
	}
	for _, m := range in.MediaURLs {
		if m.Type == "photo" {
			in.ThumbnailURL = m.URL
			break
		}
	}

	var shares *int64
	if it.RetweetCount != nil || it.QuoteCount != nil {
		var n int64
		if it.RetweetCount != nil {
			n += *it.RetweetCount
		}
		if it.QuoteCount != nil {
			n += *it.QuoteCount
		}
		shares = &n
	}
	in.Engagement = engagement(it.ViewCount, it.LikeCount, it.ReplyCount, shares)

	switch {
	case it.IsRetweet && it.Retweet != nil:
		in.ReferenceType = model.ReferenceRetweet
		in.ReferencedContent = referencedTweet(it.Retweet)
	case it.IsQuote && it.Quote != nil:
		in.ReferenceType = model.ReferenceQuote
		in.ReferencedContent = referencedTweet(it.Quote)
	case it.IsReply && it.InReplyToID != "":
		in.ReferenceType = model.ReferenceReply
		in.ReferencedContent = &model.ReferencedContent{PlatformContentID: it.InReplyToID}
	}
}

func referencedTweet(t *fetcher.Tweet) *model.ReferencedContent {
	return &model.ReferencedContent{
		PlatformContentID: t.ID,
		URL:               firstNonEmpty(t.URL, t.TwitterURL),
		Author:            t.Author.UserName,
		Text:              firstNonEmpty(t.FullText, t.Text),
	}
}

func fromThreads(in *model.CreateContentInput, it fetcher.ThreadsPost) {
	in.URL = it.URL
	if in.URL == "" && it.Code != "" && it.Username != "" {
		in.URL = "https://www.threads.net/@" + it.Username + "/post/" + it.Code
	}
	in.Title = Truncate(it.Text, titleRunes)
	in.Description = it.Text
	in.ContentBody = it.Text
	in.PublishedAt = it.PublishedAt()

	for _, u := range it.Images {
		in.MediaURLs = append(in.MediaURLs, model.MediaItem{URL: u, Type: "image"})
	}
	for _, u := range it.Videos {
		in.MediaURLs = append(in.MediaURLs, model.MediaItem{URL: u, Type: "video"})
	}
	if len(it.Images) > 0 {
		in.ThumbnailURL = it.Images[0]
	}
	in.Engagement = engagement(nil, it.LikeCount, it.ReplyCount, it.RepostCount)

	if q := it.QuotedPost; q != nil {
		in.ReferenceType = model.ReferenceQuote
		in.ReferencedContent = &model.ReferencedContent{
			PlatformContentID: firstNonEmpty(q.ID, q.Code),
			URL:               q.URL,
			Author:            q.Username,
			Text:              q.Text,
		}
	}
}

func fromLinkedIn(in *model.CreateContentInput, it fetcher.LinkedInPost) {
	text := firstNonEmpty(it.PostText, StripHTML(it.PostTextHTML))
	in.URL = it.URL
	in.Title = firstNonEmpty(it.Title, Truncate(text, titleRunes))
	in.Description = text
	in.ContentBody = text
	in.PublishedAt = ParseTime(it.DatePosted)

	for _, u := range it.Images {
		in.MediaURLs = append(in.MediaURLs, model.MediaItem{URL: u, Type: "image"})
	}
	for _, u := range it.Videos {
		in.MediaURLs = append(in.MediaURLs, model.MediaItem{URL: u, Type: "video"})
	}
	if len(it.Images) > 0 {
		in.ThumbnailURL = it.Images[0]
	}
	in.Engagement = engagement(nil, it.NumLikes, it.NumComments, it.NumShares)

	if r := it.Repost; r != nil && (r.ID != "" || r.URL != "") {
		in.ReferenceType = model.ReferenceRetweet
		in.ReferencedContent = &model.ReferencedContent{
			PlatformContentID: r.ID,
			URL:               r.URL,
			Author:            r.Author,
			Text:              r.Text,
		}
	}
}

func engagement(views, likes, comments, shares *int64) *model.Engagement {
	if views == nil && likes == nil && comments == nil && shares == nil {
		return nil
	}
	return &model.Engagement{Views: views, Likes: likes, Comments: comments, Shares: shares}
}

// ReadingStats counts the words of body and estimates reading minutes,
// rounding up. An empty body yields zero for both.
func ReadingStats(body string) (words, minutes int) {
	words = len(strings.Fields(body))
	if words == 0 {
		return 0, 0
	}
	return words, int(math.Ceil(float64(words) / WordsPerMinute))
}

// StripHTML returns the visible text of an HTML fragment with runs of
// whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(s string) string {
	if !strings.Contains(s, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

// ParseTime parses the loosely formatted timestamps scraping services
// return. Unparseable or empty input yields nil.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	s = collapse(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func mediaKind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	}
	return "file"
}
