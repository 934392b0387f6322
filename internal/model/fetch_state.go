package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FetchStateSchemaVersion is the current layout of FetchState.
const FetchStateSchemaVersion = 1

// maxClockSkew bounds how far in the future a stored timestamp may be.
const maxClockSkew = 5 * time.Minute

// FetchState records when a creator's sources were last fetched. It is
// persisted as JSON using the keys external dashboards already read.
type FetchState struct {
	SchemaVersion     int        `json:"schema_version"`
	LastFetchedAt     *time.Time `json:"last_fetched_at,omitempty"`
	LastYouTubeFetch  *time.Time `json:"last_youtube_fetch,omitempty"`
	LastLinkedInFetch *time.Time `json:"last_linkedin_fetch,omitempty"`
	LastTwitterFetch  *time.Time `json:"last_twitter_fetch,omitempty"`
	LastThreadsFetch  *time.Time `json:"last_threads_fetch,omitempty"`
}

// Since returns the incremental-window boundary for a platform.
// YouTube and LinkedIn keep their own timestamps. Twitter and Threads use
// theirs when set and fall back to last_fetched_at for states written before
// those fields existed; a run scoped to another platform moves
// last_fetched_at without fetching them.
func (s FetchState) Since(p Platform) *time.Time {
	switch p {
	case PlatformYouTube:
		return s.LastYouTubeFetch
	case PlatformLinkedIn:
		return s.LastLinkedInFetch
	case PlatformTwitter:
		return firstSet(s.LastTwitterFetch, s.LastFetchedAt)
	case PlatformThreads:
		return firstSet(s.LastThreadsFetch, s.LastFetchedAt)
	default:
		return s.LastFetchedAt
	}
}

func firstSet(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}

// Advance returns a copy with last_fetched_at set to at and the
// platform-specific timestamps of attempted platforms set to at.
func (s FetchState) Advance(at time.Time, attempted []Platform) FetchState {
	at = at.UTC()
	out := s
	out.SchemaVersion = FetchStateSchemaVersion
	out.LastFetchedAt = &at
	for _, p := range attempted {
		t := at
		switch p {
		case PlatformYouTube:
			out.LastYouTubeFetch = &t
		case PlatformLinkedIn:
			out.LastLinkedInFetch = &t
		case PlatformTwitter:
			out.LastTwitterFetch = &t
		case PlatformThreads:
			out.LastThreadsFetch = &t
		}
	}
	return out
}

// Merge combines two states keeping the latest value of every timestamp.
func (s FetchState) Merge(other FetchState) FetchState {
	return FetchState{
		SchemaVersion:     FetchStateSchemaVersion,
		LastFetchedAt:     latest(s.LastFetchedAt, other.LastFetchedAt),
		LastYouTubeFetch:  latest(s.LastYouTubeFetch, other.LastYouTubeFetch),
		LastLinkedInFetch: latest(s.LastLinkedInFetch, other.LastLinkedInFetch),
		LastTwitterFetch:  latest(s.LastTwitterFetch, other.LastTwitterFetch),
		LastThreadsFetch:  latest(s.LastThreadsFetch, other.LastThreadsFetch),
	}
}

// Validate checks the schema version and rejects timestamps from the future.
func (s FetchState) Validate(now time.Time) error {
	if s.SchemaVersion != 0 && s.SchemaVersion != FetchStateSchemaVersion {
		return fmt.Errorf("unsupported fetch state schema version %d", s.SchemaVersion)
	}
	limit := now.Add(maxClockSkew)
	fields := map[string]*time.Time{
		"last_fetched_at":     s.LastFetchedAt,
		"last_youtube_fetch":  s.LastYouTubeFetch,
		"last_linkedin_fetch": s.LastLinkedInFetch,
		"last_twitter_fetch":  s.LastTwitterFetch,
		"last_threads_fetch":  s.LastThreadsFetch,
	}
	for name, ts := range fields {
		if ts != nil && ts.After(limit) {
			return fmt.Errorf("%s %s is in the future", name, ts.Format(time.RFC3339))
		}
	}
	return nil
}

// MarshalFetchState encodes s for storage, stamping the schema version.
func MarshalFetchState(s FetchState) ([]byte, error) {
	s.SchemaVersion = FetchStateSchemaVersion
	return json.Marshal(s)
}

// UnmarshalFetchState decodes a stored state. Empty input yields a zero state.
func UnmarshalFetchState(data []byte) (FetchState, error) {
	var s FetchState
	if len(data) == 0 {
		s.SchemaVersion = FetchStateSchemaVersion
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return FetchState{}, fmt.Errorf("decode fetch state: %w", err)
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = FetchStateSchemaVersion
	}
	return s, nil
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
