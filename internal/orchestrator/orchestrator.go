// Package orchestrator drives ingestion passes: for every selected creator
// it fetches each URL, normalizes and filters the items, stores them and
// advances the creator's fetch state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"creator_ingest/internal/fetcher"
	"creator_ingest/internal/filter"
	"creator_ingest/internal/lock"
	"creator_ingest/internal/model"
	"creator_ingest/internal/normalize"
	"creator_ingest/internal/platform"
	"creator_ingest/internal/storage"
)

const (
	maxStateAttempts  = 3
	defaultBatchSize  = 10
	defaultBatchDelay = time.Second
)

// Publisher announces newly created content for summarization.
type Publisher interface {
	PublishCreated(ctx context.Context, contentIDs []string) error
}

// Scope selects the creators and platforms of a run. Zero fields select
// everything.
type Scope struct {
	UserID     string
	CreatorIDs []string
	Platforms  []model.Platform
}

// Orchestrator runs refresh passes over creators.
type Orchestrator struct {
	store      storage.Storage
	registry   *fetcher.Registry
	locker     lock.Locker
	publisher  Publisher
	log        *slog.Logger
	now        func() time.Time
	batchSize  int
	batchDelay time.Duration
}

// New creates an Orchestrator with an in-process creator lock and no
// summarization publisher.
func New(store storage.Storage, registry *fetcher.Registry, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		registry:   registry,
		locker:     lock.NewLocal(),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
	}
}

// SetLocker replaces the per-creator lock, e.g. with a Redis-backed one.
func (o *Orchestrator) SetLocker(l lock.Locker) {
	o.locker = l
}

// SetPublisher enables the post-ingestion summarization event.
func (o *Orchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// SetBatching overrides the creator batch size and inter-batch delay used
// by RefreshBatched.
func (o *Orchestrator) SetBatching(size int, delay time.Duration) {
	if size > 0 {
		o.batchSize = size
	}
	if delay >= 0 {
		o.batchDelay = delay
	}
}

// Refresh processes the creators selected by scope one after another.
// Only a failure to list creators is returned as an error; everything else
// is reported inside the result.
func (o *Orchestrator) Refresh(ctx context.Context, scope Scope) (*RunResult, error) {
	creators, err := o.listCreators(ctx, scope)
	if err != nil {
		return nil, err
	}

	var stats Stats
	var created []string
	for _, c := range creators {
		if ctx.Err() != nil {
			o.log.Warn("refresh interrupted", "error", ctx.Err(), "remaining", len(creators)-len(stats.Creators))
			break
		}
		cr, ids := o.processCreator(ctx, c)
		stats.add(cr)
		created = append(created, ids...)
	}

	o.publishCreated(ctx, created, &stats)
	return newRunResult(stats, o.now()), nil
}

// RefreshBatched processes creators in fixed-size batches. Creators of one
// batch run concurrently and batches are separated by a short delay, which
// keeps scraper APIs under their rate limits.
func (o *Orchestrator) RefreshBatched(ctx context.Context, scope Scope) (*RunResult, error) {
	creators, err := o.listCreators(ctx, scope)
	if err != nil {
		return nil, err
	}

	var stats Stats
	var created []string
	for start := 0; start < len(creators); start += o.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.batchDelay):
			}
		}
		if ctx.Err() != nil {
			o.log.Warn("batched refresh interrupted", "error", ctx.Err(), "remaining", len(creators)-start)
			break
		}

		batch := creators[start:min(start+o.batchSize, len(creators))]
		results := make([]CreatorResult, len(batch))
		ids := make([][]string, len(batch))

		var g errgroup.Group
		for i, c := range batch {
			g.Go(func() error {
				results[i], ids[i] = o.processCreator(ctx, c)
				return nil
			})
		}
		_ = g.Wait()

		for i := range batch {
			stats.add(results[i])
			created = append(created, ids[i]...)
		}
		o.log.Info("batch processed", "batch_start", start, "batch_size", len(batch))
	}

	o.publishCreated(ctx, created, &stats)
	return newRunResult(stats, o.now()), nil
}

func (o *Orchestrator) listCreators(ctx context.Context, scope Scope) ([]model.Creator, error) {
	creators, err := o.store.ListCreators(ctx, storage.CreatorQuery{
		UserID:    scope.UserID,
		IDs:       scope.CreatorIDs,
		Platforms: scope.Platforms,
	})
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	return creators, nil
}

func (o *Orchestrator) publishCreated(ctx context.Context, ids []string, stats *Stats) {
	if len(ids) == 0 || o.publisher == nil {
		return
	}
	if err := o.publisher.PublishCreated(ctx, ids); err != nil {
		o.log.Error("publish created content", "count", len(ids), "error", err)
		stats.SummaryGenerationError = err.Error()
	}
}

// processCreator fetches every URL of c and then advances its fetch state,
// whatever the per-URL outcomes were.
func (o *Orchestrator) processCreator(ctx context.Context, c model.Creator) (CreatorResult, []string) {
	cr := CreatorResult{ID: c.ID, Name: c.Name, URLs: make([]URLResult, 0, len(c.URLs))}

	unlock, err := o.locker.Lock(ctx, c.ID)
	if err != nil {
		o.log.Error("lock creator", "creator_id", c.ID, "error", err)
		for _, u := range c.URLs {
			cr.URLs = append(cr.URLs, URLResult{URL: u.URL, Status: StatusError, Error: fmt.Sprintf("lock creator: %v", err)})
		}
		return cr, nil
	}
	defer unlock()

	// The listing may predate another run's write; read the state under the lock.
	state, version := c.FetchState, c.StateVersion
	if fresh, err := o.store.GetCreator(ctx, c.ID); err == nil {
		state, version = fresh.FetchState, fresh.StateVersion
	} else {
		o.log.Warn("reload creator", "creator_id", c.ID, "error", err)
	}

	started := o.now()
	if err := state.Validate(started); err != nil {
		o.log.Warn("invalid fetch state, fetching from scratch", "creator_id", c.ID, "error", err)
		state = model.FetchState{}
	}

	var created []string
	var attempted []model.Platform
	for _, u := range c.URLs {
		res, ids, tried := o.processURL(ctx, c, u, state, started)
		cr.URLs = append(cr.URLs, res)
		created = append(created, ids...)
		if tried {
			attempted = append(attempted, u.Platform)
		}
	}

	o.advanceState(ctx, c.ID, version, state.Advance(started, attempted))
	return cr, created
}

// processURL returns the URL outcome, the IDs of newly created content and
// whether a fetch was attempted.
func (o *Orchestrator) processURL(ctx context.Context, c model.Creator, u model.CreatorURL, state model.FetchState, now time.Time) (URLResult, []string, bool) {
	res := URLResult{URL: u.URL}
	log := o.log.With("creator_id", c.ID, "platform", u.Platform, "url", u.URL)

	if det, err := platform.Detect(u.URL); err == nil && det.Platform != u.Platform {
		log.Warn("declared platform differs from detected", "detected", det.Platform)
	}

	f, err := o.registry.Lookup(u.Platform)
	if err != nil {
		log.Warn("fetcher unavailable", "error", err)
		res.Status = StatusError
		res.Error = err.Error()
		return res, nil, false
	}

	opts := Window(u.Platform, state, now)
	raw, err := f.Fetch(ctx, u.URL, opts)
	if err != nil {
		log.Error("fetch", "error", err)
		res.Status = StatusError
		res.Error = err.Error()
		return res, nil, true
	}
	if len(raw) == 0 {
		log.Debug("no new content")
		res.Status = StatusEmpty
		res.Message = "No new content"
		return res, nil, true
	}

	items := make([]model.CreateContentInput, 0, len(raw))
	itemErrors := 0
	for _, r := range raw {
		in, err := normalize.Normalize(u.Platform, r, c.ID, u.URL)
		if err != nil {
			log.Warn("normalize", "error", err)
			itemErrors++
			continue
		}
		items = append(items, in)
	}

	kept, dropped := filter.Apply(items, u.Filters)
	if dropped > 0 {
		log.Debug("filtered items", "dropped", dropped)
	}

	batch := o.store.StoreMultipleContent(ctx, kept)
	for _, e := range batch.Errors {
		log.Warn("store item", "content_id", e.PlatformContentID, "item_url", e.URL, "error", e.Message)
	}
	itemErrors += len(batch.Errors)

	res.Status = StatusSuccess
	res.Fetched = intPtr(len(raw))
	res.New = intPtr(batch.Created)
	res.Updated = intPtr(batch.Updated)
	res.Errors = intPtr(itemErrors)
	log.Info("url processed", "fetched", len(raw), "new", batch.Created, "updated", batch.Updated, "errors", itemErrors)
	return res, batch.CreatedIDs, true
}

// advanceState writes next with compare-and-swap. On conflict the stored
// state is re-read and merged so neither writer's timestamps go backwards.
func (o *Orchestrator) advanceState(ctx context.Context, creatorID string, version int64, next model.FetchState) {
	for attempt := 1; attempt <= maxStateAttempts; attempt++ {
		_, err := o.store.UpdateFetchState(ctx, creatorID, version, next)
		if err == nil {
			return
		}
		if !errors.Is(err, storage.ErrFetchStateConflict) {
			o.log.Error("update fetch state", "creator_id", creatorID, "error", err)
			return
		}

		fresh, gerr := o.store.GetCreator(ctx, creatorID)
		if gerr != nil {
			o.log.Error("reload fetch state", "creator_id", creatorID, "error", gerr)
			return
		}
		next = fresh.FetchState.Merge(next)
		version = fresh.StateVersion
		o.log.Debug("fetch state conflict, retrying", "creator_id", creatorID, "attempt", attempt)
	}
	o.log.Error("update fetch state", "creator_id", creatorID, "error", storage.ErrFetchStateConflict)
}
