package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/brisket-go/internal/cache"
	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/observability"
)

func init() {
	addRangeFlags(syncCmd)
	syncCmd.Flags().StringSliceP("dataset", "d", nil, "Datasets to sync (default: all)")
	syncCmd.Flags().IntP("parallel", "p", 0, "Max datasets to fetch in parallel (default: fetch.parallel)")

	watchCmd.Flags().StringSliceP("dataset", "d", nil, "Datasets to sync (default: all)")
	watchCmd.Flags().String("schedule", "", "Cron schedule (default: watch.schedule)")
	watchCmd.Flags().Duration("lookback", 0, "Trailing window to keep warm (default: watch.lookback)")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (default: watch.metrics_addr)")
}

// syncCmd warms the cache for a range
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and cache every missing interval for a time range",
	Args:  cobra.NoArgs,
	RunE:  handleSync,
}

// watchCmd keeps the trailing window warm on a cron schedule
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically sync the most recent intervals",
	Args:  cobra.NoArgs,
	RunE:  handleWatch,
}

func handleSync(cmd *cobra.Command, _ []string) error {
	requested, err := rangeFromFlags(cmd)
	if err != nil {
		return err
	}
	datasets, err := datasetsFromFlags(cmd)
	if err != nil {
		return err
	}
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel <= 0 {
		parallel = appConfig.Fetch.Parallel
	}

	m, closeFn, err := openManager(appConfig, false)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := runSync(cmd.Context(), m, datasets, requested, parallel)
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\n", r.dataset, r.rows)
	}
	return err
}

func handleWatch(cmd *cobra.Command, _ []string) error {
	datasets, err := datasetsFromFlags(cmd)
	if err != nil {
		return err
	}

	schedule, _ := cmd.Flags().GetString("schedule")
	if schedule == "" {
		schedule = appConfig.Watch.Schedule
	}
	lookback, _ := cmd.Flags().GetDuration("lookback")
	if lookback <= 0 {
		lookback = appConfig.Watch.Lookback
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = appConfig.Watch.MetricsAddr
	}

	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	m, closeFn, err := openManager(appConfig, false)
	if err != nil {
		return err
	}
	defer closeFn()

	if metricsAddr != "" {
		observability.StartMetricsServer(metricsAddr, logger)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		window := trailingWindow(time.Now(), lookback)
		if _, err := runSync(ctx, m, datasets, window, appConfig.Fetch.Parallel); err != nil {
			logger.Error("sync failed", "range", window, "err", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger.Info("watching", "schedule", schedule, "lookback", lookback, "datasets", len(datasets))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// trailingWindow returns the grid-aligned range covering the last lookback
// before now, ending at the first boundary at or after now.
func trailingWindow(now time.Time, lookback time.Duration) core.TimeRange {
	return core.NewTimeRange(
		core.FloorInterval(now.Add(-lookback), core.SCEDInterval),
		core.CeilInterval(now, core.SCEDInterval),
	)
}

type syncResult struct {
	dataset core.Dataset
	rows    int
}

// runSync reconciles every dataset over r with at most parallel requests in
// flight. Results come back in dataset order; the first error cancels the rest.
func runSync(ctx context.Context, m *cache.Manager, datasets []core.Dataset, r core.TimeRange, parallel int) ([]syncResult, error) {
	logger := logging.FromContext(ctx)
	results := make([]syncResult, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))

	for i, dataset := range datasets {
		g.Go(func() error {
			rows, err := m.Get(gctx, dataset, r.Start, r.End)
			if err != nil {
				return err
			}
			results[i] = syncResult{dataset: dataset, rows: rows.Len()}
			logger.Info("synced", "dataset", dataset, "range", r, "rows", rows.Len())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		observability.SyncRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.SyncRunsTotal.WithLabelValues("success").Inc()
	return results, nil
}

func datasetsFromFlags(cmd *cobra.Command) ([]core.Dataset, error) {
	names, _ := cmd.Flags().GetStringSlice("dataset")
	if len(names) == 0 {
		return core.Datasets(), nil
	}
	datasets := make([]core.Dataset, 0, len(names))
	for _, name := range names {
		d, err := core.ParseDataset(name)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}
