// Package main provides the ingest CLI: the long-running service and one-shot
// maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"creator_ingest/internal/bot"
	"creator_ingest/internal/config"
	"creator_ingest/internal/httpapi"
	"creator_ingest/internal/importer"
	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/platform"
	"creator_ingest/internal/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ingest",
		Short:        "Collect and normalize content published by creators",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newLinkedInCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

// withApp loads configuration, builds the shared components and runs fn
// under a context cancelled by SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduler and the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.log

	var (
		tg     *bot.Bot
		sender scheduler.Sender
	)
	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, a.store, a.orch, a.meta, cfg, log)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		tg, sender = b, b
	} else {
		log.Info("TELEGRAM_BOT_TOKEN is not set; bot disabled")
	}
	if cfg.CronSecret == "" {
		log.Warn("CRON_SECRET is not set; cron routes will reject every request")
	}

	g, ctx := errgroup.WithContext(ctx)

	h := httpapi.NewHandler(a.orch, a.store, a.meta, cfg.CronSecret, log)
	srv := httpapi.NewServer(cfg.HTTPAddr, h.Router(), log)
	g.Go(func() error { return srv.Run(ctx) })

	if tg != nil {
		g.Go(func() error {
			tg.Run(ctx)
			return nil
		})
	}

	sched := scheduler.New(sender, cfg.TelegramReportChatID, log)
	for _, job := range scheduledJobs(cfg, a.orch) {
		sched.Add(job)
	}
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(ctx, a.queue) })
	} else {
		log.Info("ANTHROPIC_API_KEY is not set; summaries disabled")
	}

	log.Info("ingest started",
		"http_addr", cfg.HTTPAddr,
		"refresh_interval", cfg.RefreshInterval,
		"linkedin_interval", cfg.LinkedInInterval)

	err := g.Wait()
	log.Info("ingest stopped")
	return err
}

// scheduledJobs returns the periodic passes. When the LinkedIn pass runs on
// its own interval, the general pass leaves LinkedIn out.
func scheduledJobs(cfg *config.Config, orch *orchestrator.Orchestrator) []scheduler.Job {
	general := orchestrator.Scope{}
	if cfg.LinkedInInterval > 0 {
		general.Platforms = []model.Platform{
			model.PlatformRSS,
			model.PlatformYouTube,
			model.PlatformTwitter,
			model.PlatformThreads,
		}
	}
	linkedIn := orchestrator.Scope{Platforms: []model.Platform{model.PlatformLinkedIn}}

	return []scheduler.Job{
		{
			Name:       "Scheduled refresh",
			Interval:   cfg.RefreshInterval,
			RunAtStart: true,
			Run: func(ctx context.Context) (*orchestrator.RunResult, error) {
				return orch.Refresh(ctx, general)
			},
		},
		{
			Name:     "LinkedIn refresh",
			Interval: cfg.LinkedInInterval,
			Run: func(ctx context.Context) (*orchestrator.RunResult, error) {
				return orch.RefreshBatched(ctx, linkedIn)
			},
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		userID    string
		platforms []string
		creators  []string
		batched   bool
		summarize bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one refresh pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(userID, platforms, creators)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				fn := a.orch.Refresh
				if batched {
					fn = a.orch.RefreshBatched
				}
				return runPass(ctx, cmd.OutOrStdout(), a, fn, scope, summarize)
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only refresh creators owned by this user")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Only fetch these platforms (rss, youtube, twitter, threads, linkedin)")
	cmd.Flags().StringSliceVarP(&creators, "creator", "c", nil, "Only refresh these creator IDs")
	cmd.Flags().BoolVar(&batched, "batched", false, "Process creators in batches with a pause between batches")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Generate pending summaries after the pass")

	return cmd
}

func newLinkedInCmd() *cobra.Command {
	var summarize bool

	cmd := &cobra.Command{
		Use:   "linkedin",
		Short: "Run the batched LinkedIn pass over all creators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := orchestrator.Scope{Platforms: []model.Platform{model.PlatformLinkedIn}}
			return withApp(func(ctx context.Context, a *app) error {
				return runPass(ctx, cmd.OutOrStdout(), a, a.orch.RefreshBatched, scope, summarize)
			})
		},
	}

	cmd.Flags().BoolVar(&summarize, "summarize", false, "Generate pending summaries after the pass")

	return cmd
}

type passFunc func(ctx context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error)

func runPass(ctx context.Context, out io.Writer, a *app, fn passFunc, scope orchestrator.Scope, summarize bool) error {
	res, err := fn(ctx, scope)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := writeJSON(out, res); err != nil {
		return err
	}

	if !summarize {
		return nil
	}
	if a.worker == nil {
		return errors.New("summaries requested but ANTHROPIC_API_KEY is not set")
	}
	rep, err := a.worker.ProcessPending(ctx)
	if err != nil {
		return fmt.Errorf("generate summaries: %w", err)
	}
	a.log.Info("summaries generated", "completed", rep.Completed, "failed", rep.Failed)
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create creators from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := importer.ParseFile(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				rep, err := importer.New(a.store, a.log).Import(ctx, f)
				if err != nil {
					return err
				}
				printImportReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
}

func printImportReport(w io.Writer, rep importer.Report) {
	fmt.Fprintf(w, "Created: %d\nAlready present: %d\n", rep.Created, rep.Existing)
	if len(rep.Issues) == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped (%d):\n", len(rep.Issues))
	for _, is := range rep.Issues {
		fmt.Fprintf(w, "  %s\n", is)
	}
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <url>",
		Short: "Show the platform and profile a URL points to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			det, err := platform.Detect(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), bot.FormatDetection(det))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

// scopeFromFlags validates the run command's selectors.
func scopeFromFlags(userID string, platforms, creators []string) (orchestrator.Scope, error) {
	scope := orchestrator.Scope{UserID: strings.TrimSpace(userID)}
	for _, raw := range platforms {
		p, err := model.ParsePlatform(strings.TrimSpace(raw))
		if err != nil {
			return orchestrator.Scope{}, err
		}
		scope.Platforms = append(scope.Platforms, p)
	}
	for _, id := range creators {
		if id = strings.TrimSpace(id); id != "" {
			scope.CreatorIDs = append(scope.CreatorIDs, id)
		}
	}
	return scope, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
