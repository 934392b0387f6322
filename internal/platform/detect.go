// Package platform classifies source URLs into a platform and a canonical
// profile identifier. Detection is purely string based and never touches the
// network.
package platform

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"creator_ingest/internal/model"
)

// Detection is the result of classifying a URL.
type Detection struct {
	Platform            model.Platform
	PlatformUserID      string
	CanonicalProfileURL string
	Metadata            map[string]string
}

// DetectionError reports a URL no platform could be inferred from.
type DetectionError struct {
	URL    string
	Reason string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect platform for %q: %s", e.URL, e.Reason)
}

var (
	handleRe      = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
	ytHandleRe    = regexp.MustCompile(`^@[A-Za-z0-9._-]{3,30}$`)
	ytChannelRe   = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)
	threadsUserRe = regexp.MustCompile(`^@[A-Za-z0-9._]{1,30}$`)
	slugRe        = regexp.MustCompile(`^[A-Za-z0-9%_.-]+$`)
)

// Paths on twitter.com / x.com that are not user profiles.
var twitterReserved = map[string]bool{
	"home": true, "explore": true, "search": true, "i": true, "intent": true,
	"settings": true, "messages": true, "notifications": true, "hashtag": true,
	"share": true, "login": true, "signup": true, "tos": true, "privacy": true,
}

var feedHints = []string{".xml", ".rss", ".atom", "/feed", "/rss", "/atom", "feeds.", "feed."}

// Detect classifies raw into a platform. It returns a *DetectionError when the
// input is not a usable URL or points at a known platform but not a profile.
func Detect(raw string) (Detection, error) {
	u, err := parse(raw)
	if err != nil {
		return Detection{}, &DetectionError{URL: raw, Reason: err.Error()}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "mobile.")
	segments := splitPath(u.Path)

	switch host {
	case "youtube.com":
		return detectYouTube(raw, segments)
	case "twitter.com", "x.com":
		return detectTwitter(raw, segments)
	case "linkedin.com":
		return detectLinkedIn(raw, segments)
	case "threads.net", "threads.com":
		return detectThreads(raw, segments)
	case "youtu.be":
		return Detection{}, &DetectionError{URL: raw, Reason: "video links are not channel URLs"}
	}
	return detectRSS(u), nil
}

func parse(raw string) (*url.URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " _") {
		return nil, fmt.Errorf("invalid host %q", host)
	}
	return u, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func detectYouTube(raw string, seg []string) (Detection, error) {
	if len(seg) == 0 {
		return Detection{}, &DetectionError{URL: raw, Reason: "missing youtube channel path"}
	}
	switch {
	case ytHandleRe.MatchString(seg[0]):
		return Detection{
			Platform:            model.PlatformYouTube,
			PlatformUserID:      seg[0],
			CanonicalProfileURL: "https://www.youtube.com/" + seg[0],
			Metadata:            map[string]string{"identifier_type": "handle"},
		}, nil
	case seg[0] == "channel" && len(seg) > 1 && ytChannelRe.MatchString(seg[1]):
		return Detection{
			Platform:            model.PlatformYouTube,
			PlatformUserID:      seg[1],
			CanonicalProfileURL: "https://www.youtube.com/channel/" + seg[1],
			Metadata:            map[string]string{"identifier_type": "channel_id"},
		}, nil
	case (seg[0] == "c" || seg[0] == "user") && len(seg) > 1 && slugRe.MatchString(seg[1]):
		return Detection{
			Platform:            model.PlatformYouTube,
			PlatformUserID:      seg[1],
			CanonicalProfileURL: "https://www.youtube.com/" + seg[0] + "/" + seg[1],
			Metadata:            map[string]string{"identifier_type": "legacy_" + seg[0]},
		}, nil
	}
	return Detection{}, &DetectionError{URL: raw, Reason: "not a youtube channel url"}
}

func detectTwitter(raw string, seg []string) (Detection, error) {
	if len(seg) == 0 || twitterReserved[strings.ToLower(seg[0])] || !handleRe.MatchString(seg[0]) {
		return Detection{}, &DetectionError{URL: raw, Reason: "not a twitter profile url"}
	}
	return Detection{
		Platform:            model.PlatformTwitter,
		PlatformUserID:      seg[0],
		CanonicalProfileURL: "https://x.com/" + seg[0],
		Metadata:            map[string]string{"handle": seg[0]},
	}, nil
}

func detectLinkedIn(raw string, seg []string) (Detection, error) {
	if len(seg) < 2 || !slugRe.MatchString(seg[1]) {
		return Detection{}, &DetectionError{URL: raw, Reason: "not a linkedin profile url"}
	}
	var kind string
	switch seg[0] {
	case "in":
		kind = "person"
	case "company":
		kind = "company"
	default:
		return Detection{}, &DetectionError{URL: raw, Reason: "not a linkedin profile url"}
	}
	return Detection{
		Platform:            model.PlatformLinkedIn,
		PlatformUserID:      seg[1],
		CanonicalProfileURL: "https://www.linkedin.com/" + seg[0] + "/" + seg[1] + "/",
		Metadata:            map[string]string{"profile_type": kind},
	}, nil
}

func detectThreads(raw string, seg []string) (Detection, error) {
	if len(seg) == 0 || !threadsUserRe.MatchString(seg[0]) {
		return Detection{}, &DetectionError{URL: raw, Reason: "not a threads profile url"}
	}
	return Detection{
		Platform:            model.PlatformThreads,
		PlatformUserID:      seg[0],
		CanonicalProfileURL: "https://www.threads.net/" + seg[0],
		Metadata:            map[string]string{"handle": strings.TrimPrefix(seg[0], "@")},
	}, nil
}

// detectRSS treats any other web URL as a feed candidate. Confidence is high
// when the URL itself looks like a feed.
func detectRSS(u *url.URL) Detection {
	canonical := *u
	canonical.Fragment = ""
	confidence := "low"
	lower := strings.ToLower(u.Host + u.Path)
	ext := path.Ext(strings.ToLower(u.Path))
	for _, hint := range feedHints {
		if strings.Contains(lower, hint) || ext == hint {
			confidence = "high"
			break
		}
	}
	return Detection{
		Platform:            model.PlatformRSS,
		PlatformUserID:      canonical.String(),
		CanonicalProfileURL: canonical.String(),
		Metadata:            map[string]string{"confidence": confidence},
	}
}

// Resolve builds a CreatorURL from raw. An empty declared platform is
// inferred by Detect. A declared platform is trusted for dispatch; when
// detection agrees, its canonical URL and metadata are used, otherwise raw is
// stored as given.
func Resolve(raw, declared string) (model.CreatorURL, error) {
	if strings.TrimSpace(declared) == "" {
		det, err := Detect(raw)
		if err != nil {
			return model.CreatorURL{}, err
		}
		return model.CreatorURL{Platform: det.Platform, URL: det.CanonicalProfileURL, Metadata: det.Metadata}, nil
	}

	p, err := model.ParsePlatform(declared)
	if err != nil {
		return model.CreatorURL{}, err
	}
	u, err := parse(raw)
	if err != nil {
		return model.CreatorURL{}, &DetectionError{URL: raw, Reason: err.Error()}
	}
	if det, err := Detect(raw); err == nil && det.Platform == p {
		return model.CreatorURL{Platform: p, URL: det.CanonicalProfileURL, Metadata: det.Metadata}, nil
	}
	return model.CreatorURL{Platform: p, URL: u.String()}, nil
}
