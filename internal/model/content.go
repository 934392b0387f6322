package model

import (
	"errors"
	"time"
)

// ReferenceType describes how a post relates to another post.
type ReferenceType string

// Reference types for platforms with quote / repost semantics.
const (
	ReferenceNone    ReferenceType = ""
	ReferenceQuote   ReferenceType = "quote"
	ReferenceRetweet ReferenceType = "retweet"
	ReferenceReply   ReferenceType = "reply"
)

// SummaryStatus tracks AI summary generation for a content row.
type SummaryStatus string

// Summary states.
const (
	SummaryPending   SummaryStatus = "pending"
	SummaryCompleted SummaryStatus = "completed"
	SummaryFailed    SummaryStatus = "failed"
)

// ProcessingStatus tracks downstream processing of a content row.
type ProcessingStatus string

// Processing states.
const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingProcessed ProcessingStatus = "processed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// MediaItem is one attachment of a content item.
type MediaItem struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	// Duration is kept in the platform's own notation (e.g. ISO 8601 "PT4M13S").
	Duration string `json:"duration,omitempty"`
}

// Engagement holds platform-dependent counters. Nil means "not reported".
type Engagement struct {
	Views    *int64 `json:"views,omitempty"`
	Likes    *int64 `json:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty"`
	Shares   *int64 `json:"shares,omitempty"`
}

// ReferencedContent points at the post a quote, retweet or reply refers to.
type ReferencedContent struct {
	PlatformContentID string `json:"platform_content_id,omitempty"`
	URL               string `json:"url,omitempty"`
	Author            string `json:"author,omitempty"`
	Text              string `json:"text,omitempty"`
}

// CreateContentInput is the canonical normalized shape of one fetched item.
type CreateContentInput struct {
	CreatorID          string
	Platform           Platform
	PlatformContentID  string
	URL                string
	Title              string
	Description        string
	ThumbnailURL       string
	PublishedAt        *time.Time
	ContentBody        string
	WordCount          int
	ReadingTimeMinutes int
	MediaURLs          []MediaItem
	Engagement         *Engagement
	ReferenceType      ReferenceType
	ReferencedContent  *ReferencedContent
}

// Validation errors for CreateContentInput.
var (
	ErrMissingCreatorID         = errors.New("creator_id is required")
	ErrInvalidPlatform          = errors.New("platform is invalid")
	ErrMissingPlatformContentID = errors.New("platform_content_id is required")
	ErrMissingURL               = errors.New("url is required")
)

// Validate checks the fields that make up the dedup key and the item URL.
func (in CreateContentInput) Validate() error {
	switch {
	case in.CreatorID == "":
		return ErrMissingCreatorID
	case !in.Platform.Valid():
		return ErrInvalidPlatform
	case in.PlatformContentID == "":
		return ErrMissingPlatformContentID
	case in.URL == "":
		return ErrMissingURL
	}
	return nil
}

// Content is a stored content row.
type Content struct {
	ID string
	CreateContentInput

	AISummaryShort     string
	AISummaryLong      string
	SummaryStatus      SummaryStatus
	SummaryModel       string
	SummaryGeneratedAt *time.Time
	ProcessingStatus   ProcessingStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ItemError describes why one item of a batch was not stored.
type ItemError struct {
	PlatformContentID string `json:"platform_content_id"`
	URL               string `json:"url"`
	Message           string `json:"message"`
}

// BatchResult accounts for every item handed to the content store:
// Created + Updated + Skipped + len(Errors) equals the batch size.
type BatchResult struct {
	Created    int
	Updated    int
	Skipped    int
	Errors     []ItemError
	CreatedIDs []string
}

// Total returns the number of items the result accounts for.
func (r BatchResult) Total() int {
	return r.Created + r.Updated + r.Skipped + len(r.Errors)
}
