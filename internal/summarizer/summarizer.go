// Package summarizer generates AI summaries for stored content outside the
// ingestion path: ingestion publishes an event, a Worker drains the pending
// queue at its own pace.
package summarizer

import (
	"context"

	"creator_ingest/internal/model"
	"creator_ingest/internal/storage"
)

// Input is the text handed to a Summarizer.
type Input struct {
	Platform model.Platform
	Title    string
	Body     string
	URL      string
}

// Summary is a generated short and long summary.
type Summary struct {
	Short string
	Long  string
}

// Summarizer produces summaries for one content item.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (Summary, error)
	// Model names the model recorded in summary_model.
	Model() string
}

// Store is the part of storage.Storage the worker needs.
type Store interface {
	ListPendingSummaries(ctx context.Context, limit int) ([]model.Content, error)
	SaveSummary(ctx context.Context, id string, u storage.SummaryUpdate) error
}

func inputFor(c model.Content) Input {
	body := c.ContentBody
	if body == "" {
		body = c.Description
	}
	return Input{Platform: c.Platform, Title: c.Title, Body: body, URL: c.URL}
}
