package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"creator_ingest/internal/config"
	"creator_ingest/migrations"
)

type migrateFunc func(ctx context.Context, p *goose.Provider, out io.Writer) error

func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (default $DATABASE_PATH)")

	sub := func(use, short string, fn migrateFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProvider(cmd.Context(), dbPath, func(ctx context.Context, p *goose.Provider) error {
					return fn(ctx, p, cmd.OutOrStdout())
				})
			},
		}
	}

	cmd.AddCommand(
		sub("up", "Migrate to the latest version", migrateUp),
		sub("up-one", "Migrate one version up", migrateUpOne),
		sub("down", "Roll back one version", migrateDown),
		sub("status", "Show migration status", migrateStatus),
		sub("version", "Show the current version", migrateVersion),
		sub("reset", "Roll back all migrations", migrateReset),
	)
	return cmd
}

func withProvider(ctx context.Context, dbPath string, fn func(context.Context, *goose.Provider) error) error {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.DatabasePath
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	p, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

func migrateUp(ctx context.Context, p *goose.Provider, out io.Writer) error {
	results, err := p.Up(ctx)
	for _, r := range results {
		fmt.Fprintf(out, "applied %05d %s (%s)\n", r.Source.Version, r.Source.Path, r.Duration)
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no pending migrations")
	}
	return nil
}

func migrateUpOne(ctx context.Context, p *goose.Provider, out io.Writer) error {
	r, err := p.UpByOne(ctx)
	if err != nil {
		return fmt.Errorf("migrate up-one: %w", err)
	}
	fmt.Fprintf(out, "applied %05d %s\n", r.Source.Version, r.Source.Path)
	return nil
}

func migrateDown(ctx context.Context, p *goose.Provider, out io.Writer) error {
	r, err := p.Down(ctx)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	fmt.Fprintf(out, "rolled back %05d %s\n", r.Source.Version, r.Source.Path)
	return nil
}

func migrateStatus(ctx context.Context, p *goose.Provider, out io.Writer) error {
	statuses, err := p.Status(ctx)
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%05d  %-8s  %-19s  %s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return nil
}

func migrateVersion(ctx context.Context, p *goose.Provider, out io.Writer) error {
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	fmt.Fprintf(out, "version %d\n", v)
	return nil
}

func migrateReset(ctx context.Context, p *goose.Provider, out io.Writer) error {
	results, err := p.DownTo(ctx, 0)
	for _, r := range results {
		fmt.Fprintf(out, "rolled back %05d %s\n", r.Source.Version, r.Source.Path)
	}
	if err != nil {
		return fmt.Errorf("migrate reset: %w", err)
	}
	return nil
}
