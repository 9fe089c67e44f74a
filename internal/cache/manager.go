package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colthorp/brisket-go/internal/core"
	"github.com/colthorp/brisket-go/internal/frame"
	"github.com/colthorp/brisket-go/internal/logging"
	"github.com/colthorp/brisket-go/internal/observability"
)

// ErrNoProvider is returned when a gap needs fetching but the manager was
// built without a provider.
var ErrNoProvider = errors.New("no data provider configured")

// Options tunes how Manager reconciles the cache with the provider.
type Options struct {
	// Strategy selects the provider query range once a gap is found:
	// core.FetchStrategyFullRange (default), core.FetchStrategySpan or
	// core.FetchStrategyGaps.
	Strategy string
	// CacheOnly serves whatever the cache holds and never calls the provider.
	CacheOnly bool
}

// Manager orchestrates caching and fetching of SCED datasets.
//
// # Reconciliation
//
// For each request Manager reads the cached snapshots in range, derives the
// bounding missing range on the 5-minute grid, and returns straight from the
// cache when nothing is missing. Otherwise it queries the provider, persists
// the fetched rows one snapshot per timestamp, and merges them over the
// cached rows.
//
// # Fetch Strategies
//
// full_range (default): one provider query over the whole requested range,
// even when only a few slots are missing.
//
// span: one provider query over the bounding missing range.
//
// gaps: one provider query per run of consecutive missing slots.
//
// Manager owns no persistent state and performs no locking; concurrent
// requests for the same range may both fetch and both write identical
// snapshots.
type Manager struct {
	provider  Provider
	backend   Backend
	strategy  string
	cacheOnly bool
}

// NewManager creates a cache manager and ensures every dataset namespace
// exists. provider may be nil when opts.CacheOnly is set.
func NewManager(provider Provider, backend Backend, opts Options) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}

	strategy := opts.Strategy
	switch strategy {
	case "":
		strategy = core.FetchStrategyFullRange
	case core.FetchStrategyFullRange, core.FetchStrategySpan, core.FetchStrategyGaps:
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", strategy)
	}

	// ensure all dataset namespaces exist
	for _, dataset := range core.Datasets() {
		if err := backend.EnsureNamespace(dataset); err != nil {
			return nil, err
		}
	}

	return &Manager{
		provider:  provider,
		backend:   backend,
		strategy:  strategy,
		cacheOnly: opts.CacheOnly,
	}, nil
}

// Backend returns the cache backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Strategy returns the configured fetch strategy.
func (m *Manager) Strategy() string {
	return m.strategy
}

// validateRange checks the dataset and normalizes [start, end) to UTC.
func validateRange(dataset core.Dataset, start, end time.Time) (core.TimeRange, error) {
	if !dataset.Valid() {
		return core.TimeRange{}, fmt.Errorf("%w: %q", core.ErrUnknownDataset, dataset)
	}

	requested := core.NewTimeRange(start, end)
	if requested.Empty() {
		return core.TimeRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, requested)
	}
	if !core.IsAligned(requested.Start, core.SCEDInterval) || !core.IsAligned(requested.End, core.SCEDInterval) {
		return core.TimeRange{}, fmt.Errorf("%w: %s", ErrUnalignedRange, requested)
	}
	return requested, nil
}

// Get returns the rows of dataset in [start, end), serving from the cache
// where possible. Both boundaries must sit on the SCED grid.
//
// Returned rows are sorted by timestamp. Provider errors are returned
// wrapped; errors.Is and errors.As see the original error.
func (m *Manager) Get(ctx context.Context, dataset core.Dataset, start, end time.Time) (*frame.Table, error) {
	requested, err := validateRange(dataset, start, end)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).With("dataset", dataset)

	cached, covered, err := m.backend.ReadRange(ctx, dataset, requested.Start, requested.End)
	if err != nil {
		return nil, err
	}

	missing := MissingRange(covered, requested.Start, requested.End, core.SCEDInterval)
	logger.Debug("gap detection", "requested", requested, "covered", len(covered), "missing", missing)

	if missing.Empty() {
		observability.CacheLookupsTotal.WithLabelValues(dataset.String(), observability.LookupHit).Inc()
		return cached, nil
	}

	result := observability.LookupMiss
	if len(covered) > 0 {
		result = observability.LookupPartial
	}
	observability.CacheLookupsTotal.WithLabelValues(dataset.String(), result).Inc()

	if m.cacheOnly {
		logger.Info("cache-only mode; returning cached rows", "missing", missing, "rows", cached.Len())
		return cached, nil
	}
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	// ensure dataset namespace exists before writing
	if err := m.backend.EnsureNamespace(dataset); err != nil {
		return nil, err
	}

	fetched, err := m.fetch(ctx, dataset, m.fetchRanges(covered, requested, missing))
	if err != nil {
		return nil, err
	}

	if err := m.saveSnapshots(ctx, dataset, fetched); err != nil {
		return nil, err
	}

	merged := frame.Merge(cached, fetched)
	logger.Debug("merged cached and fetched rows", "cached", cached.Len(), "fetched", fetched.Len(), "rows", merged.Len())
	return merged, nil
}

// fetchRanges picks the provider query ranges for the configured strategy.
func (m *Manager) fetchRanges(covered []time.Time, requested, missing core.TimeRange) []core.TimeRange {
	switch m.strategy {
	case core.FetchStrategySpan:
		return []core.TimeRange{missing}
	case core.FetchStrategyGaps:
		return MissingGaps(covered, requested.Start, requested.End, core.SCEDInterval)
	default:
		return []core.TimeRange{requested}
	}
}

// fetch queries the provider once per range and concatenates the results.
func (m *Manager) fetch(ctx context.Context, dataset core.Dataset, ranges []core.TimeRange) (*frame.Table, error) {
	logger := logging.FromContext(ctx)
	tables := make([]*frame.Table, 0, len(ranges))

	for _, r := range ranges {
		logger.Info("fetching from provider", "dataset", dataset, "range", r)

		began := time.Now()
		rows, err := m.provider.FetchDataset(ctx, dataset, r.Start, r.End)
		observability.ProviderRequestDuration.WithLabelValues(dataset.String()).Observe(time.Since(began).Seconds())
		if err != nil {
			observability.ProviderRequestsTotal.WithLabelValues(dataset.String(), "error").Inc()
			return nil, fmt.Errorf("fetching %s %s: %w", dataset, r, err)
		}
		observability.ProviderRequestsTotal.WithLabelValues(dataset.String(), "success").Inc()

		tables = append(tables, rows)
	}

	return frame.Concat(core.SCEDTimestampColumn, tables...), nil
}

// saveSnapshots splits fetched rows by timestamp and persists each group.
func (m *Manager) saveSnapshots(ctx context.Context, dataset core.Dataset, fetched *frame.Table) error {
	for _, group := range fetched.GroupByTimestamp() {
		if err := m.backend.WriteSnapshot(ctx, dataset, group.Timestamp, group.Table); err != nil {
			return err
		}
		observability.SnapshotsWrittenTotal.WithLabelValues(dataset.String()).Inc()
	}
	return nil
}

// Coverage summarizes what the cache holds for a range.
type Coverage struct {
	Dataset      core.Dataset
	Requested    core.TimeRange
	TotalSlots   int
	CoveredSlots int
	Rows         int
	Missing      core.TimeRange
	Gaps         []core.TimeRange
}

// Complete reports whether every slot is cached.
func (c Coverage) Complete() bool {
	return c.Missing.Empty()
}

// Status reports cache coverage for [start, end) without calling the provider.
func (m *Manager) Status(ctx context.Context, dataset core.Dataset, start, end time.Time) (Coverage, error) {
	requested, err := validateRange(dataset, start, end)
	if err != nil {
		return Coverage{}, err
	}

	cached, covered, err := m.backend.ReadRange(ctx, dataset, requested.Start, requested.End)
	if err != nil {
		return Coverage{}, err
	}

	gaps := MissingGaps(covered, requested.Start, requested.End, core.SCEDInterval)
	missingSlots := 0
	for _, g := range gaps {
		missingSlots += g.Slots(core.SCEDInterval)
	}
	total := requested.Slots(core.SCEDInterval)

	return Coverage{
		Dataset:      dataset,
		Requested:    requested,
		TotalSlots:   total,
		CoveredSlots: total - missingSlots,
		Rows:         cached.Len(),
		Missing:      MissingRange(covered, requested.Start, requested.End, core.SCEDInterval),
		Gaps:         gaps,
	}, nil
}

// ShadowPricesSCED returns ercot_shadow_prices_sced rows for [start, end).
func (m *Manager) ShadowPricesSCED(ctx context.Context, start, end time.Time) (*frame.Table, error) {
	return m.Get(ctx, core.ShadowPricesSCED, start, end)
}

// SCEDGenResource60Day returns ercot_sced_gen_resource_60_day rows for [start, end).
func (m *Manager) SCEDGenResource60Day(ctx context.Context, start, end time.Time) (*frame.Table, error) {
	return m.Get(ctx, core.SCEDGenResource60Day, start, end)
}

// SCEDSystemLambda returns ercot_sced_system_lambda rows for [start, end).
func (m *Manager) SCEDSystemLambda(ctx context.Context, start, end time.Time) (*frame.Table, error) {
	return m.Get(ctx, core.SCEDSystemLambda, start, end)
}

// LMPByBus returns ercot_lmp_by_bus rows for [start, end).
func (m *Manager) LMPByBus(ctx context.Context, start, end time.Time) (*frame.Table, error) {
	return m.Get(ctx, core.LMPByBus, start, end)
}

// LMPBySettlementPoint returns ercot_lmp_by_settlement_point rows for [start, end).
func (m *Manager) LMPBySettlementPoint(ctx context.Context, start, end time.Time) (*frame.Table, error) {
	return m.Get(ctx, core.LMPBySettlementPoint, start, end)
}
