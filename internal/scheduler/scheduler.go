// Package scheduler runs ingestion jobs on fixed intervals and reports their
// outcome to a Telegram chat.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"creator_ingest/internal/bot"
	"creator_ingest/internal/orchestrator"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// RunFunc performs one ingestion pass.
type RunFunc func(ctx context.Context) (*orchestrator.RunResult, error)

// Job is a named periodic run.
type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the job once before the first tick.
	RunAtStart bool
	Run        RunFunc
}

// Scheduler owns a set of jobs, each on its own ticker.
type Scheduler struct {
	jobs   []Job
	sender Sender
	chatID int64
	log    *slog.Logger
}

// New creates a Scheduler. Reports go to chatID through sender; a nil sender
// or a zero chatID disables reporting.
func New(sender Sender, chatID int64, log *slog.Logger) *Scheduler {
	return &Scheduler{sender: sender, chatID: chatID, log: log}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 || job.Run == nil {
		s.log.Warn("job disabled", "job", job.Name, "interval", job.Interval)
		return
	}
	s.jobs = append(s.jobs, job)
}

// Run starts all jobs, blocking until ctx is cancelled and every job has
// returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.log.Info("job scheduled", "job", job.Name, "interval", job.Interval, "run_at_start", job.RunAtStart)
	if job.RunAtStart {
		s.runOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	res, err := job.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("job failed", "job", job.Name, "error", err)
	} else if res != nil {
		s.log.Info("job finished",
			"job", job.Name,
			"duration", time.Since(start).Round(time.Millisecond),
			"new", res.Stats.New,
			"updated", res.Stats.Updated,
			"errors", res.Stats.Errors,
		)
	}

	if s.sender == nil || s.chatID == 0 || !worthReporting(res, err) {
		return
	}
	s.sender.SendMessage(s.chatID, bot.FormatRunReport(job.Name, res, err))
}

// worthReporting skips runs that found nothing and hit no errors.
func worthReporting(res *orchestrator.RunResult, err error) bool {
	if err != nil || res == nil {
		return true
	}
	return res.Stats.New > 0 || res.Stats.Errors > 0 || res.Stats.SummaryGenerationError != ""
}
