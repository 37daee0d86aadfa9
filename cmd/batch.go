package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/access"
	"github.com/sells-group/food-access-cli/internal/batch"
	"github.com/sells-group/food-access-cli/internal/db"
	"github.com/sells-group/food-access-cli/internal/monitoring"
	"github.com/sells-group/food-access-cli/internal/store"
)

var (
	batchPlacesFile  string
	batchDelineation string
	batchLimit       int
	batchExport      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute accessibility graphs for a list of places",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		places, err := loadPlaces(batchPlacesFile, batchDelineation, batchLimit)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		if batchExport {
			if cfg.Store.DatabaseURL == "" {
				return eris.New("batch: --export requires store.database_url")
			}
			exp, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
				MaxConns: cfg.Store.MaxConns,
				MinConns: cfg.Store.MinConns,
			})
			if err != nil {
				return err
			}
			defer exp.Close()
			if err := exp.Migrate(ctx); err != nil {
				return err
			}
			env.Runner.WithSink(exportSink(exp))
		}

		sum, err := env.Runner.Run(ctx, places)
		if sum != nil {
			printSummary(cmd.OutOrStdout(), sum)
			alertOnSummary(ctx, sum)
		}
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchPlacesFile, "places", "", "file with one place name per line")
	batchCmd.Flags().StringVar(&batchDelineation, "delineation", "", "CBSA delineation spreadsheet (.xlsx)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of places to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchExport, "export", false, "write every successful place to PostGIS")
	batchCmd.MarkFlagsMutuallyExclusive("places", "delineation")
	batchCmd.MarkFlagsOneRequired("places", "delineation")
	rootCmd.AddCommand(batchCmd)
}

// loadPlaces reads place names from a plain list or a delineation file and
// applies limit when positive.
func loadPlaces(placesFile, delineation string, limit int) ([]string, error) {
	var (
		places []string
		err    error
	)
	switch {
	case placesFile != "":
		places, err = batch.PlacesFromFile(placesFile)
	case delineation != "":
		places, err = batch.PlacesFromDelineation(delineation)
	default:
		return nil, eris.New("batch: one of --places or --delineation is required")
	}
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, eris.New("batch: no places to process")
	}
	if limit > 0 && limit < len(places) {
		places = places[:limit]
	}
	return places, nil
}

type bundleExporter interface {
	Export(ctx context.Context, runID uuid.UUID, b *access.Bundle) (store.ExportStats, error)
}

// exportSink writes each successful bundle through exp.
func exportSink(exp bundleExporter) batch.Sink {
	return func(ctx context.Context, runID uuid.UUID, b *access.Bundle) error {
		stats, err := exp.Export(ctx, runID, b)
		if err != nil {
			return err
		}
		zap.L().Debug("exported place",
			zap.String("place", b.Place),
			zap.Int64("nodes", stats.Nodes),
			zap.Int64("edges", stats.Edges),
		)
		return nil
	}
}

func printSummary(w io.Writer, sum *batch.Summary) {
	fmt.Fprintf(w, "run %s: %d places in %s\n", sum.RunID, sum.Total(), sum.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "  successful: %d (%d without roads, %d from cache)\n", len(sum.Successful), len(sum.Empty), sum.CacheHits)
	fmt.Fprintf(w, "  failed:     %d\n", len(sum.Failed))
	for _, place := range sum.Failed {
		fmt.Fprintf(w, "    %s: %s\n", place, sum.Errors[place])
	}
}

// alertOnSummary evaluates the finished batch against the monitoring
// thresholds.
func alertOnSummary(ctx context.Context, sum *batch.Summary) {
	snap := monitoring.NewSnapshot(len(sum.Successful), len(sum.Empty), len(sum.Failed), 0, time.Now().Add(-sum.Elapsed))
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	if alerts := alerter.Evaluate(snap); len(alerts) > 0 {
		alerter.SendAlerts(ctx, alerts)
	}
}
