package orchestrator

import (
	"fmt"
	"time"
)

// URLStatus is the terminal state of one creator URL in a run.
type URLStatus string

// URL outcomes. Empty means the source answered with nothing new.
const (
	StatusEmpty   URLStatus = "empty"
	StatusSuccess URLStatus = "success"
	StatusError   URLStatus = "error"
)

// URLResult is the outcome of one (creator, URL) pair. Counters are set only
// for successful fetches.
type URLResult struct {
	URL     string    `json:"url"`
	Status  URLStatus `json:"status"`
	Fetched *int      `json:"fetched,omitempty"`
	New     *int      `json:"new,omitempty"`
	Updated *int      `json:"updated,omitempty"`
	Errors  *int      `json:"errors,omitempty"`
	Error   string    `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`
}

// CreatorResult groups the URL outcomes of one creator.
type CreatorResult struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	URLs []URLResult `json:"urls"`
}

// Stats aggregates a whole run.
type Stats struct {
	Processed              int             `json:"processed"`
	New                    int             `json:"new"`
	Updated                int             `json:"updated"`
	Errors                 int             `json:"errors"`
	Creators               []CreatorResult `json:"creators"`
	SummaryGenerationError string          `json:"summaryGenerationError,omitempty"`
}

// RunResult is returned by every ingestion trigger.
type RunResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Stats     Stats     `json:"stats"`
	Timestamp time.Time `json:"timestamp"`
}

func intPtr(n int) *int { return &n }

func (s *Stats) add(cr CreatorResult) {
	for _, u := range cr.URLs {
		switch u.Status {
		case StatusError:
			s.Errors++
		case StatusSuccess:
			s.Processed += deref(u.Fetched)
			s.New += deref(u.New)
			s.Updated += deref(u.Updated)
			s.Errors += deref(u.Errors)
		}
	}
	s.Creators = append(s.Creators, cr)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func newRunResult(stats Stats, at time.Time) *RunResult {
	if stats.Creators == nil {
		stats.Creators = []CreatorResult{}
	}
	return &RunResult{
		Success: true,
		Message: fmt.Sprintf("Processed %d creators: %d new, %d updated, %d errors",
			len(stats.Creators), stats.New, stats.Updated, stats.Errors),
		Stats:     stats,
		Timestamp: at.UTC(),
	}
}
