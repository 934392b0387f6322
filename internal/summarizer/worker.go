package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"creator_ingest/internal/model"
	"creator_ingest/internal/storage"
)

const (
	defaultLimit     = 50
	defaultBatchSize = 5
)

// Report counts the outcome of one drain of the pending queue.
type Report struct {
	Completed int
	Failed    int
}

// Worker summarizes pending content whenever new content is announced.
type Worker struct {
	store      Store
	summarizer Summarizer
	log        *slog.Logger
	now        func() time.Time
	limit      int
	batchSize  int
}

// NewWorker creates a Worker. limit bounds the rows taken per drain and
// batchSize the number summarized concurrently; zero selects the defaults
// (50 and 5).
func NewWorker(store Store, s Summarizer, limit, batchSize int, log *slog.Logger) *Worker {
	if limit <= 0 {
		limit = defaultLimit
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Worker{
		store:      store,
		summarizer: s,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		limit:      limit,
		batchSize:  batchSize,
	}
}

// Run drains the pending queue once per event from q until ctx is done.
func (w *Worker) Run(ctx context.Context, q *Queue) error {
	messages, err := q.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicContentCreated, err)
	}

	for msg := range messages {
		var ev ContentCreated
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			w.log.Warn("decode event", "message_id", msg.UUID, "error", err)
		}
		w.log.Debug("content created", "count", len(ev.ContentIDs))

		rep, err := w.ProcessPending(ctx)
		if err != nil {
			w.log.Error("process pending summaries", "error", err)
		} else if rep.Completed+rep.Failed > 0 {
			w.log.Info("summaries generated", "completed", rep.Completed, "failed", rep.Failed)
		}
		msg.Ack()
	}
	return nil
}

// ProcessPending summarizes up to limit pending rows in sub-batches. One
// row's failure is recorded on that row and does not stop the others.
func (w *Worker) ProcessPending(ctx context.Context) (Report, error) {
	var rep Report
	pending, err := w.store.ListPendingSummaries(ctx, w.limit)
	if err != nil {
		return rep, fmt.Errorf("list pending summaries: %w", err)
	}

	for start := 0; start < len(pending); start += w.batchSize {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		batch := pending[start:min(start+w.batchSize, len(pending))]
		ok := make([]bool, len(batch))

		var g errgroup.Group
		for i, c := range batch {
			g.Go(func() error {
				ok[i] = w.summarizeOne(ctx, c)
				return nil
			})
		}
		_ = g.Wait()

		for _, done := range ok {
			if done {
				rep.Completed++
			} else {
				rep.Failed++
			}
		}
	}
	return rep, nil
}

func (w *Worker) summarizeOne(ctx context.Context, c model.Content) bool {
	update := storage.SummaryUpdate{Model: w.summarizer.Model()}
	sum, err := w.summarizer.Summarize(ctx, inputFor(c))
	if err != nil {
		w.log.Warn("summarize", "content_id", c.ID, "error", err)
		update.Status = model.SummaryFailed
	} else {
		update.Short = sum.Short
		update.Long = sum.Long
		update.Status = model.SummaryCompleted
		update.GeneratedAt = w.now()
	}

	if err := w.store.SaveSummary(ctx, c.ID, update); err != nil {
		w.log.Error("save summary", "content_id", c.ID, "error", err)
		return false
	}
	return update.Status == model.SummaryCompleted
}
