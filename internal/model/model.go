// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the kind of source a CreatorURL points at.
type Platform string

// Supported platforms.
const (
	PlatformRSS      Platform = "rss"
	PlatformYouTube  Platform = "youtube"
	PlatformTwitter  Platform = "twitter"
	PlatformThreads  Platform = "threads"
	PlatformLinkedIn Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformRSS, PlatformYouTube, PlatformTwitter, PlatformThreads, PlatformLinkedIn}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform converts a user supplied string into a Platform.
// "x" is accepted as an alias for twitter.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "x" {
		p = PlatformTwitter
	}
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// Creator is a tracked owner of content across one or more platforms.
type Creator struct {
	ID   string
	Name string
	// UserID is empty for system-wide creators.
	UserID     string
	FetchState FetchState
	// StateVersion is the compare-and-swap token for FetchState.
	StateVersion int64
	URLs         []CreatorURL
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreatorURL binds a creator to one (platform, url) pair.
type CreatorURL struct {
	ID        int64
	CreatorID string
	Platform  Platform
	URL       string
	Metadata  map[string]string
	Filters   []Filter
	CreatedAt time.Time
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of a content item a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter is a single keyword rule attached to a creator URL.
type Filter struct {
	ID        int64
	URLID     int64
	Kind      FilterKind
	Scope     FilterScope
	Value     string
	CreatedAt time.Time
}
