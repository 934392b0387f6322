// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"creator_ingest/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFetchStateConflict is returned by UpdateFetchState when the stored
	// version no longer matches the expected one.
	ErrFetchStateConflict = errors.New("fetch state was modified concurrently")
)

// CreatorQuery selects creators. Zero fields do not restrict the result.
type CreatorQuery struct {
	UserID string
	IDs    []string
	// Platforms keeps only creators with at least one URL on these
	// platforms, and only those URLs are loaded.
	Platforms []model.Platform
}

// SummaryUpdate is the outcome of summarizing one content row.
type SummaryUpdate struct {
	Short       string
	Long        string
	Status      model.SummaryStatus
	Model       string
	GeneratedAt time.Time
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateCreator(ctx context.Context, c *model.Creator) error
	GetCreator(ctx context.Context, id string) (*model.Creator, error)
	ListCreators(ctx context.Context, q CreatorQuery) ([]model.Creator, error)
	RenameCreator(ctx context.Context, id, name string) error
	DeleteCreator(ctx context.Context, id string) error
	UpdateFetchState(ctx context.Context, id string, expectedVersion int64, state model.FetchState) (int64, error)

	AddCreatorURL(ctx context.Context, u *model.CreatorURL) error
	GetCreatorURL(ctx context.Context, id int64) (*model.CreatorURL, error)
	DeleteCreatorURL(ctx context.Context, id int64) error

	CreateFilter(ctx context.Context, f *model.Filter) error
	ListFilters(ctx context.Context, urlID int64) ([]model.Filter, error)
	GetFilter(ctx context.Context, id int64) (*model.Filter, error)
	DeleteFilter(ctx context.Context, id int64) error

	StoreMultipleContent(ctx context.Context, items []model.CreateContentInput) model.BatchResult
	GetContent(ctx context.Context, id string) (*model.Content, error)
	CountContent(ctx context.Context, creatorID string) (int, error)
	ListPendingSummaries(ctx context.Context, limit int) ([]model.Content, error)
	SaveSummary(ctx context.Context, id string, u SummaryUpdate) error

	Close() error
}
