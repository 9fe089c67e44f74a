package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/colthorp/brisket-go/internal/api"
	"github.com/colthorp/brisket-go/internal/cache"
	"github.com/colthorp/brisket-go/internal/config"
	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/output"
)

// datasetGetter is a per-dataset Manager method such as
// (*cache.Manager).SCEDSystemLambda.
type datasetGetter func(*cache.Manager, context.Context, time.Time, time.Time) (*frame.Table, error)

// shortcuts maps command names onto the per-dataset getters.
var shortcuts = []struct {
	use     string
	dataset core.Dataset
	get     datasetGetter
}{
	{"shadow-prices", core.ShadowPricesSCED, (*cache.Manager).ShadowPricesSCED},
	{"gen-resource", core.SCEDGenResource60Day, (*cache.Manager).SCEDGenResource60Day},
	{"system-lambda", core.SCEDSystemLambda, (*cache.Manager).SCEDSystemLambda},
	{"lmp-by-bus", core.LMPByBus, (*cache.Manager).LMPByBus},
	{"lmp-by-settlement-point", core.LMPBySettlementPoint, (*cache.Manager).LMPBySettlementPoint},
}

func init() {
	// Add all subcommands
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)

	for _, s := range shortcuts {
		rootCmd.AddCommand(createShortcutCmd(s.use, s.dataset, s.get))
	}

	addRangeFlags(getCmd)
	getCmd.Flags().Bool("cache-only", false, "Serve from the cache only; skip API requests")

	addRangeFlags(statusCmd)
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "Start of the range (YYYY-MM-DD [HH:MM], RFC3339, or d-N/h-N)")
	cmd.Flags().String("end", "now", "End of the range, exclusive")
	_ = cmd.MarkFlagRequired("start")
}

// getCmd handles arbitrary dataset queries
var getCmd = &cobra.Command{
	Use:       "get [dataset]",
	Short:     "Get rows of a dataset for a time range",
	Args:      cobra.ExactArgs(1),
	ValidArgs: datasetNames(),
	RunE:      handleGet,
}

// statusCmd reports cache coverage without calling the API
var statusCmd = &cobra.Command{
	Use:   "status [dataset]",
	Short: "Show cached interval coverage for a time range",
	Args:  cobra.ExactArgs(1),
	RunE:  handleStatus,
}

// datasetsCmd lists the supported dataset identifiers
var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List supported GridStatus dataset identifiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range datasetNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func createShortcutCmd(use string, dataset core.Dataset, get datasetGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Get %s rows for a time range", dataset),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requested, err := rangeFromFlags(cmd)
			if err != nil {
				return err
			}
			cacheOnly, _ := cmd.Flags().GetBool("cache-only")

			m, closeFn, err := openManager(appConfig, cacheOnly)
			if err != nil {
				return err
			}
			defer closeFn()

			rows, err := get(m, cmd.Context(), requested.Start, requested.End)
			if err != nil {
				return err
			}
			return output.WriteTable(cmd.OutOrStdout(), rows, format)
		},
	}
	addRangeFlags(cmd)
	cmd.Flags().Bool("cache-only", false, "Serve from the cache only; skip API requests")
	return cmd
}

func handleGet(cmd *cobra.Command, args []string) error {
	dataset, err := core.ParseDataset(args[0])
	if err != nil {
		return err
	}
	requested, err := rangeFromFlags(cmd)
	if err != nil {
		return err
	}
	cacheOnly, _ := cmd.Flags().GetBool("cache-only")

	m, closeFn, err := openManager(appConfig, cacheOnly)
	if err != nil {
		return err
	}
	defer closeFn()

	logging.FromContext(cmd.Context()).Info("querying", "dataset", dataset, "range", requested, "strategy", m.Strategy())

	rows, err := m.Get(cmd.Context(), dataset, requested.Start, requested.End)
	if err != nil {
		return err
	}
	return output.WriteTable(cmd.OutOrStdout(), rows, format)
}

func handleStatus(cmd *cobra.Command, args []string) error {
	dataset, err := core.ParseDataset(args[0])
	if err != nil {
		return err
	}
	requested, err := rangeFromFlags(cmd)
	if err != nil {
		return err
	}

	m, closeFn, err := openManager(appConfig, true)
	if err != nil {
		return err
	}
	defer closeFn()

	cov, err := m.Status(cmd.Context(), dataset, requested.Start, requested.End)
	if err != nil {
		return err
	}
	return output.WriteValue(cmd.OutOrStdout(), newStatusReport(cov), format)
}

// statusReport is the serialized form of cache.Coverage.
type statusReport struct {
	Dataset      string   `json:"dataset" yaml:"dataset"`
	Start        string   `json:"start" yaml:"start"`
	End          string   `json:"end" yaml:"end"`
	TotalSlots   int      `json:"total_slots" yaml:"total_slots"`
	CoveredSlots int      `json:"covered_slots" yaml:"covered_slots"`
	Rows         int      `json:"rows" yaml:"rows"`
	Complete     bool     `json:"complete" yaml:"complete"`
	Missing      string   `json:"missing,omitempty" yaml:"missing,omitempty"`
	Gaps         []string `json:"gaps" yaml:"gaps"`
}

func newStatusReport(cov cache.Coverage) statusReport {
	r := statusReport{
		Dataset:      cov.Dataset.String(),
		Start:        core.FormatSnapshotKey(cov.Requested.Start),
		End:          core.FormatSnapshotKey(cov.Requested.End),
		TotalSlots:   cov.TotalSlots,
		CoveredSlots: cov.CoveredSlots,
		Rows:         cov.Rows,
		Complete:     cov.Complete(),
		Gaps:         make([]string, 0, len(cov.Gaps)),
	}
	if !cov.Complete() {
		r.Missing = cov.Missing.String()
	}
	for _, g := range cov.Gaps {
		r.Gaps = append(r.Gaps, g.String())
	}
	return r
}

// rangeFromFlags parses --start/--end and widens the result to the SCED grid.
func rangeFromFlags(cmd *cobra.Command) (core.TimeRange, error) {
	startSpec, _ := cmd.Flags().GetString("start")
	endSpec, _ := cmd.Flags().GetString("end")
	return parseRange(startSpec, endSpec, appConfig.Location(), time.Now())
}

// parseRange resolves two time specs into a grid-aligned [start, end).
// start is floored and end is ceiled to the 5-minute grid.
func parseRange(startSpec, endSpec string, loc *time.Location, now time.Time) (core.TimeRange, error) {
	start, err := core.ParseTimeSpec(startSpec, loc, now)
	if err != nil {
		return core.TimeRange{}, err
	}
	if endSpec == "" {
		endSpec = "now"
	}
	end, err := core.ParseTimeSpec(endSpec, loc, now)
	if err != nil {
		return core.TimeRange{}, err
	}

	r := core.NewTimeRange(core.FloorInterval(start, core.SCEDInterval), core.CeilInterval(end, core.SCEDInterval))
	if r.Empty() {
		return core.TimeRange{}, fmt.Errorf("%w: %s must be before %s", cache.ErrInvalidRange, startSpec, endSpec)
	}
	return r, nil
}

// openManager builds the configured backend and provider. cacheOnly skips the
// provider so no API key is needed. The returned func releases the backend.
func openManager(cfg config.Config, cacheOnly bool) (*cache.Manager, func() error, error) {
	backend, closeFn, err := openBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	var provider cache.Provider
	if !cacheOnly {
		client, err := api.NewClient(api.ClientConfig{
			APIKey:     cfg.Provider.APIKey,
			BaseURL:    cfg.Provider.BaseURL,
			Timeout:    cfg.Provider.Timeout,
			MaxRetries: cfg.Provider.MaxRetries,
		})
		if err != nil {
			_ = closeFn()
			if errors.Is(err, api.ErrMissingAPIKey) {
				return nil, nil, fmt.Errorf("%w (set it in the environment, a .env file, or provider.api_key)", err)
			}
			return nil, nil, err
		}
		provider = api.NewGridStatusAPI(client, cfg.Provider.PageSize)
	}

	m, err := cache.NewManager(provider, backend, cache.Options{
		Strategy:  cfg.Fetch.Strategy,
		CacheOnly: cacheOnly,
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return m, closeFn, nil
}

func openBackend(cfg config.Config) (cache.Backend, func() error, error) {
	root := cfg.ResolvedDataDir()
	switch cfg.Cache.Backend {
	case core.BackendBolt:
		b, err := cache.OpenBoltBackend(root)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case core.BackendFilesystem, "":
		return cache.NewFilesystemBackend(root), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func datasetNames() []string {
	names := make([]string, 0, len(core.Datasets()))
	for _, d := range core.Datasets() {
		names = append(names, d.String())
	}
	return names
}
