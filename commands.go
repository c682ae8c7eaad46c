package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/export_service"
	"gtarp/main_backend/logger"
	"gtarp/main_backend/workflow"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				db, err := ds.Connect(cmd.Context(), cfg.Database.URL, cfg.Database.MaxConns)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer db.Close()
				version, err := db.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				logger.Get().Info("migrations applied", "version", version)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				db, err := ds.Connect(cmd.Context(), cfg.Database.URL, cfg.Database.MaxConns)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer db.Close()
				version, err := db.MigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
				return nil
			},
		},
	)
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		format   string
		category string
		kinds    []string
		status   string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export applications as CSV or PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export_service.ParseFormat(format)
			if err != nil {
				return err
			}
			q := export_service.Query{Category: category}
			for _, k := range kinds {
				kind := ds.Kind(strings.ToLower(k))
				if !kind.Valid() {
					return fmt.Errorf("unknown application type %q", k)
				}
				q.Filter.Kinds = append(q.Filter.Kinds, kind)
			}
			if status != "" {
				st := ds.Status(status)
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				q.Filter.StatusEquals = &st
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := ds.Connect(cmd.Context(), cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			records, err := export_service.Collect(cmd.Context(), db, q, logger.Get())
			if err != nil {
				return err
			}
			now := time.Now()
			if out == "" {
				out = f.Filename(category, now)
			}
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer file.Close()
			if err := export_service.Write(file, f, "Applications export", records, now); err != nil {
				return err
			}
			logger.Get().Info("export written", "path", out, "records", len(records), "format", f)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format (csv, pdf)")
	cmd.Flags().StringVar(&category, "category", "", "Only include one category, e.g. police or gang")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Application types to include (default: all)")
	cmd.Flags().StringVar(&status, "status", "", "Only include applications with this status")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default: generated file name)")
	return cmd
}

func newReplayCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay-notifications",
		Short: "Resend notifications that failed to deliver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.notifier == nil {
				return fmt.Errorf("discord is not configured")
			}

			replayer := workflow.NewReplayer(a.notifier, a.dedup, a.db, a.db, a.cfg.Workflow.NotificationTimeout, logger.WithComponent("replay"))
			report, err := replayer.ReplayFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted %d, delivered %d, failed %d, skipped %d\n",
				report.Attempted, report.Delivered, report.Failed, report.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of notifications to replay")
	return cmd
}
