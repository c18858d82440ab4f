// Command ingest is the EarGuard data tooling CLI.
//
// Usage:
//
//	earguard-ingest import --file samples.json
//	earguard-ingest sync full --days 14
//	earguard-ingest sync incremental
//	earguard-ingest recompute --days 30 --workers 4
//	earguard-ingest prune --retention-days 365
//	earguard-ingest dose --level 91 --minutes 60 --model niosh
//	earguard-ingest settings get
//	earguard-ingest settings set exchange_model osha
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/earguard/earguard/internal/config"
	"github.com/earguard/earguard/internal/dose"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/ingest"
	"github.com/earguard/earguard/internal/source"
	"github.com/earguard/earguard/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "earguard-ingest",
		Short: "EarGuard exposure data tooling",
	}

	root.AddCommand(importCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(recomputeCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(doseCmd())
	root.AddCommand(settingsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// import command
// --------------------------------------------------------------------------

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON file of loudness samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				var samples []exposure.Sample
				if err := json.Unmarshal(data, &samples); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
				for i := range samples {
					if samples[i].ExternalID == "" {
						samples[i].ExternalID = uuid.NewString()
					}
				}

				svc := newIngestService(ctx, cfg, st)
				start := time.Now()
				result, err := svc.Ingest(ctx, samples)
				logger.Info("Import finished",
					"file", file,
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("import error", "error", e)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a JSON array of samples")
	return cmd
}

// --------------------------------------------------------------------------
// sync command
// --------------------------------------------------------------------------

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull samples from the phone bridge",
	}
	cmd.AddCommand(syncFullCmd())
	cmd.AddCommand(syncIncrementalCmd())
	return cmd
}

func syncFullCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "full",
		Short: "Re-fetch the whole sync window (dedup makes this cheap)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				sy, err := newSyncer(ctx, cfg, st)
				if err != nil {
					return err
				}
				start := time.Now()
				result, err := sy.FullSync(ctx, days)
				if err != nil {
					return err
				}
				logger.Info("Full sync finished",
					"duration", time.Since(start).Round(time.Second),
					"summary", result.Summary())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days to fetch (0 = configured SYNC_WINDOW_DAYS)")
	return cmd
}

func syncIncrementalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incremental",
		Short: "Fetch only samples past the stored watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				sy, err := newSyncer(ctx, cfg, st)
				if err != nil {
					return err
				}
				start := time.Now()
				result, err := sy.IncrementalSync(ctx)
				if err != nil {
					return err
				}
				logger.Info("Incremental sync finished",
					"duration", time.Since(start).Round(time.Second),
					"summary", result.Summary())
				return nil
			})
		},
	}
	return cmd
}

// --------------------------------------------------------------------------
// recompute command
// --------------------------------------------------------------------------

func recomputeCmd() *cobra.Command {
	var days, workers int
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild day records from raw samples (run after a model change)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				svc := newIngestService(ctx, cfg, st)
				keys := ingest.LastNDays(time.Now(), days, cfg.Location)
				result := svc.RecomputeDays(ctx, keys, workers)
				for _, e := range result.Errors {
					logger.Error("recompute error", "error", e)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("recompute finished with %d errors", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Days back from today to rebuild")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent worker count")
	return cmd
}

// --------------------------------------------------------------------------
// prune command
// --------------------------------------------------------------------------

func pruneCmd() *cobra.Command {
	var retentionDays int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune raw samples past retention and stale cooldown entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				days := retentionDays
				if days <= 0 {
					days = cfg.RetentionDays
				}
				if days <= 0 {
					return fmt.Errorf("retention disabled (SAMPLE_RETENTION_DAYS and --retention-days both unset)")
				}
				cutoff := time.Now().AddDate(0, 0, -days)

				n, err := st.PruneSamplesBefore(ctx, cutoff)
				if err != nil {
					return fmt.Errorf("prune samples: %w", err)
				}
				logger.Info("Pruned raw samples", "count", n, "cutoff", cutoff.Format(time.DateOnly))

				// Anything older than a week cannot be suppressing a
				// notification under any sane cooldown.
				n, err = st.PruneCooldownsBefore(ctx, time.Now().AddDate(0, 0, -7))
				if err != nil {
					return fmt.Errorf("prune cooldowns: %w", err)
				}
				logger.Info("Pruned cooldown ledger", "count", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override SAMPLE_RETENTION_DAYS")
	return cmd
}

// --------------------------------------------------------------------------
// dose command
// --------------------------------------------------------------------------

// doseCmd is an offline calculator: no store, no config beyond the flags.
// Handy for sanity-checking what a listening session will cost.
func doseCmd() *cobra.Command {
	var (
		level   float64
		minutes int
		current float64
		model   string
	)
	cmd := &cobra.Command{
		Use:   "dose",
		Short: "Compute the dose cost of listening at a level for a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := dose.ParseModel(model)
			if err != nil {
				return err
			}
			d := time.Duration(minutes) * time.Minute
			now := time.Now()
			cost := dose.Percent([]exposure.Sample{{
				Start:   now,
				End:     now.Add(d),
				LevelDB: level,
			}}, m)
			total := current + cost
			remaining := dose.RemainingSafeTime(total, level, m)

			fmt.Printf("Listening %d min at %.1f dB (%s): +%.1f%% dose\n", minutes, level, m, cost)
			fmt.Printf("Total dose: %.1f%%\n", total)
			if total >= 100 {
				fmt.Println("Daily limit reached")
			} else {
				fmt.Printf("Remaining at %.1f dB: %s\n", level, remaining.Round(time.Minute))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&level, "level", 85, "Listening level in dB")
	cmd.Flags().IntVar(&minutes, "minutes", 60, "Listening duration in minutes")
	cmd.Flags().Float64Var(&current, "current", 0, "Dose percent already accumulated today")
	cmd.Flags().StringVar(&model, "model", "niosh", "Exchange-rate model (niosh, osha)")
	return cmd
}

// --------------------------------------------------------------------------
// settings command
// --------------------------------------------------------------------------

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change runtime engine settings",
	}
	cmd.AddCommand(settingsGetCmd())
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the effective settings (stored values over defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				sets := config.LoadSettings(ctx, st, logger)
				m := sets.Map()
				keys := make([]string, 0, len(m))
				for k := range m {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%s = %s\n", k, m[k])
				}
				return nil
			})
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Validate and store one setting (a running engine reloads via NOTIFY)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.ValidateSetting(key, value); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			return runStore(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				if err := st.PutSetting(ctx, key, value); err != nil {
					return fmt.Errorf("put setting: %w", err)
				}
				logger.Info("Setting stored", "key", key, "value", value)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runStore handles config loading, store connection, and context
// cancellation. The CLI always needs a real database; an in-memory store
// would forget everything the command just did.
func runStore(fn func(ctx context.Context, cfg *config.Config, st store.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer st.Close()

	return fn(ctx, cfg, st)
}

// newIngestService builds the ingest service with the stored exchange
// model. Writes go straight to the store; the running API re-evaluates
// notifications on its next refresh tick, so a CLI import never fires
// webhooks of its own.
func newIngestService(ctx context.Context, cfg *config.Config, st store.Store) *ingest.Service {
	sets := config.LoadSettings(ctx, st, logger)
	model := func() dose.Model { return sets.Model }
	return ingest.New(st, st, model, nil, cfg.Location, logger)
}

func newSyncer(ctx context.Context, cfg *config.Config, st store.Store) (*ingest.Syncer, error) {
	if cfg.SourceURL == "" {
		return nil, fmt.Errorf("SOURCE_BRIDGE_URL is required")
	}
	src := source.NewClient(cfg.SourceURL, cfg.SourceToken, cfg.SourceRequestsPerMinute, logger)
	return ingest.NewSyncer(src, newIngestService(ctx, cfg, st), st, cfg.SyncWindowDays, logger), nil
}
