package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"EvidenceLedger/internal/app"
	"EvidenceLedger/internal/config"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/logging"
	"EvidenceLedger/internal/usecase"
)

type flags struct {
	configPath string
	orgs       []string
	all        bool
	dryRun     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "evidenceledger",
		Short:         "Collect reputation evidence about organizations and score it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML); defaults to $EVIDENCE_LEDGER_CONFIG")
	cmd.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "Compute outcomes without writing")

	cmd.AddCommand(ingestCmd(f), scoreCmd(f), recategorizeCmd(f), orgCmd(f))
	return cmd
}

func selectFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().StringSliceVar(&f.orgs, "org", nil, "Organization id (repeatable)")
	cmd.Flags().BoolVar(&f.all, "all", false, "Process every tracked organization")
	cmd.MarkFlagsMutuallyExclusive("org", "all")
}

func ingestCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch articles and merge them into the event ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), f, func(ctx context.Context, a *app.Application) error {
				orgs, err := a.Organizations(ctx, f.orgs, f.all)
				if err != nil {
					return err
				}
				reports, err := a.Pipeline().IngestAll(ctx, orgs, usecase.Options{DryRun: f.dryRun})
				for _, r := range reports {
					if r.OrganizationID == "" {
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tfetched=%d unique=%d created=%d merged=%d skipped=%d\n",
						r.OrganizationID, r.Fetched, r.Unique, r.Created, r.Merged, r.Skipped)
				}
				return err
			})
		},
	}
	selectFlags(cmd, f)
	return cmd
}

func scoreCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Recompute brand scores from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), f, func(ctx context.Context, a *app.Application) error {
				opts := usecase.Options{DryRun: f.dryRun}

				var scores []domain.BrandScore
				if f.all {
					all, err := a.Pipeline().ScoreAll(ctx, opts)
					if err != nil {
						return err
					}
					scores = all
				} else {
					orgs, err := a.Organizations(ctx, f.orgs, false)
					if err != nil {
						return err
					}
					for _, org := range orgs {
						s, err := a.Pipeline().Score(ctx, org.ID, opts)
						if err != nil {
							return fmt.Errorf("score %s: %w", org.ID, err)
						}
						scores = append(scores, s)
					}
				}

				for _, s := range scores {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tlabor=%.2f environment=%.2f politics=%.2f social=%.2f\n",
						s.OrganizationID,
						s.Scores[domain.CategoryLabor],
						s.Scores[domain.CategoryEnvironment],
						s.Scores[domain.CategoryPolitics],
						s.Scores[domain.CategorySocial])
				}
				return nil
			})
		},
	}
	selectFlags(cmd, f)
	return cmd
}

func recategorizeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Re-run the classifier over stored events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), f, func(ctx context.Context, a *app.Application) error {
				orgs, err := a.Organizations(ctx, f.orgs, f.all)
				if err != nil {
					return err
				}
				for _, org := range orgs {
					r, err := a.Pipeline().Recategorize(ctx, org.ID, usecase.Options{DryRun: f.dryRun})
					if err != nil {
						return fmt.Errorf("recategorize %s: %w", org.ID, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\texamined=%d updated=%d unclassified=%d\n",
						r.OrganizationID, r.Examined, r.Updated, r.Unclassified)
				}
				return nil
			})
		},
	}
	selectFlags(cmd, f)
	return cmd
}

func orgCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage tracked organizations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <id> <name>",
		Short: "Track an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), f, func(ctx context.Context, a *app.Application) error {
				return a.AddOrganization(ctx, domain.Organization{ID: args[0], Name: args[1]})
			})
		},
	})
	return cmd
}

// withApp loads configuration, runs fn and pushes metrics afterwards.
func withApp(ctx context.Context, f *flags, fn func(context.Context, *app.Application) error) error {
	cfg := config.Load()
	if f.configPath != "" {
		loaded, err := config.LoadFile(f.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	runErr := fn(ctx, application)
	if err := application.PushMetrics(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
	return runErr
}
