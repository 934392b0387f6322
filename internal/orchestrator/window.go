package orchestrator

import (
	"time"

	"creator_ingest/internal/fetcher"
	"creator_ingest/internal/model"
)

// Result caps and look-back per platform. YouTube uses a wider first window
// and a smaller incremental cap to save API quota.
const (
	rssMax                = 10
	youTubeFirstMax       = 10
	youTubeIncrementalMax = 5
	youTubeFirstLookback  = 7 * 24 * time.Hour
	scraperMax            = 20
	linkedInMax           = 10
)

// Window returns the fetch options for one platform given the creator's
// stored fetch state.
func Window(p model.Platform, state model.FetchState, now time.Time) fetcher.Options {
	since := state.Since(p)
	switch p {
	case model.PlatformYouTube:
		if since == nil {
			first := now.Add(-youTubeFirstLookback).UTC()
			return fetcher.Options{MaxResults: youTubeFirstMax, Since: &first}
		}
		return fetcher.Options{MaxResults: youTubeIncrementalMax, Since: copyTime(since)}
	case model.PlatformTwitter, model.PlatformThreads:
		return fetcher.Options{MaxResults: scraperMax, Since: copyTime(since)}
	case model.PlatformLinkedIn:
		return fetcher.Options{MaxResults: linkedInMax, Since: copyTime(since)}
	default:
		// RSS relies on the dedup key for overlap.
		return fetcher.Options{MaxResults: rssMax}
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
