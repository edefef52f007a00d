package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/observability"
)

// Resolver turns an address record into coordinates, or an absent result.
type Resolver interface {
	Resolve(ctx context.Context, rec domain.AddressRecord) domain.Resolution
}

// Publisher announces coordinate updates after they are committed.
type Publisher interface {
	Publish(ctx context.Context, updates []domain.CoordinateUpdate) error
}

// Summary reports what one run did.
type Summary struct {
	Selected      int
	CacheHits     int
	NegativeSkips int
	Unkeyed       int
	Unusable      int
	Resolved      int
	Failed        int

	RowsUpdated         int
	CacheEntriesWritten int
}

// NothingToDo reports whether the selection came back empty.
func (s Summary) NothingToDo() bool {
	return s.Selected == 0
}

// Option configures a Backfill.
type Option func(*Backfill)

// WithPublisher sends committed updates to p. Publication failures are
// logged and never fail the run.
func WithPublisher(p Publisher) Option {
	return func(b *Backfill) { b.publisher = p }
}

// WithClock overrides the clock used for run timing.
func WithClock(c clockwork.Clock) Option {
	return func(b *Backfill) { b.clock = c }
}

// Backfill coordinates one batch run: select pending rows, partition them
// against the fingerprint cache, resolve the misses, and write everything
// back in a single transaction.
type Backfill struct {
	store     domain.Store
	resolver  Resolver
	publisher Publisher
	provider  string
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// New creates a Backfill. provider is recorded on every cache entry written.
func New(store domain.Store, resolver Resolver, provider string, batchSize int, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Backfill {
	b := &Backfill{
		store:     store,
		resolver:  resolver,
		provider:  provider,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// pendingRow is a selected row that needs a fingerprint lookup at resolve time.
type pendingRow struct {
	rec domain.AddressRecord
	key string
}

// Run executes one batch. On any store error the transaction is rolled back
// and the error returned; nothing from the run is applied. The connection is
// released on every path.
func (b *Backfill) Run(ctx context.Context) (summary Summary, err error) {
	start := b.clock.Now()
	defer func() {
		b.metrics.RunDuration.Observe(b.clock.Since(start).Seconds())
		if err != nil {
			b.metrics.RunFailures.Inc()
			return
		}
		b.metrics.LastSuccessfulRun.Set(float64(b.clock.Now().Unix()))
	}()

	tx, err := b.store.Begin(ctx)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := tx.Close(); cerr != nil {
			b.logger.Warn("release connection failed", "error", cerr)
		}
	}()

	finished := false
	defer func() {
		if finished {
			return
		}
		if rerr := tx.Rollback(); rerr != nil {
			b.logger.Error("rollback failed", "error", rerr)
			return
		}
		b.logger.Warn("run rolled back", "error", err)
	}()

	records, err := tx.SelectPending(ctx, b.batchSize)
	if err != nil {
		return summary, err
	}
	summary.Selected = len(records)
	b.metrics.RowsSelected.Set(float64(len(records)))

	if len(records) == 0 {
		finished = true
		if err := tx.Commit(); err != nil {
			return summary, fmt.Errorf("commit empty run: %w", err)
		}
		b.logger.Info("nothing to geocode")
		return summary, nil
	}

	cached, err := tx.LoadCache(ctx)
	if err != nil {
		return summary, err
	}
	snapshot := domain.NewCacheSnapshot(cached)
	b.logger.Info("run started", "selected", len(records), "cached_keys", snapshot.Len())

	updates, misses := b.partition(records, snapshot, &summary)
	updates = append(updates, b.resolveMisses(ctx, misses, snapshot, &summary)...)

	staged := snapshot.Staged()
	if err := tx.UpsertCache(ctx, staged); err != nil {
		return summary, err
	}
	if err := tx.UpdateCoordinates(ctx, updates); err != nil {
		return summary, err
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("commit run: %w", err)
	}

	summary.RowsUpdated = len(updates)
	summary.CacheEntriesWritten = len(staged)
	b.metrics.RowsUpdated.Add(float64(len(updates)))
	b.metrics.CacheEntriesWritten.Add(float64(len(staged)))

	b.logger.Info("run committed",
		"selected", summary.Selected,
		"rows_updated", summary.RowsUpdated,
		"cache_entries_written", summary.CacheEntriesWritten,
		"cache_hits", summary.CacheHits,
		"negative_skips", summary.NegativeSkips,
		"resolved", summary.Resolved,
		"failed", summary.Failed,
	)

	b.publish(ctx, updates)
	return summary, nil
}

// partition sorts rows into cache hits, which become updates immediately,
// and misses that need the resolver. Rows without a key and rows cached as
// negative are dropped. Keys are matched exactly as stored.
func (b *Backfill) partition(records []domain.AddressRecord, snapshot *domain.CacheSnapshot, summary *Summary) ([]domain.CoordinateUpdate, []pendingRow) {
	var (
		updates []domain.CoordinateUpdate
		misses  []pendingRow
	)
	for _, rec := range records {
		key := rec.AddressKey
		if strings.TrimSpace(key) == "" {
			summary.Unkeyed++
			b.logger.Debug("row has no address key, skipping", "id", rec.ID)
			continue
		}

		coords, ok := snapshot.Lookup(key)
		switch {
		case ok && coords != nil:
			summary.CacheHits++
			b.metrics.CacheLookups.WithLabelValues("hit").Inc()
			updates = append(updates, updateFor(rec.ID, coords))
		case ok:
			summary.NegativeSkips++
			b.metrics.CacheLookups.WithLabelValues("negative").Inc()
		default:
			b.metrics.CacheLookups.WithLabelValues("miss").Inc()
			misses = append(misses, pendingRow{rec: rec, key: key})
		}
	}
	return updates, misses
}

// resolveMisses resolves each miss in selection order. Outcomes go into the
// snapshot straight away so later rows with the same key reuse them.
func (b *Backfill) resolveMisses(ctx context.Context, misses []pendingRow, snapshot *domain.CacheSnapshot, summary *Summary) []domain.CoordinateUpdate {
	var updates []domain.CoordinateUpdate
	for _, m := range misses {
		if coords, ok := snapshot.Lookup(m.key); ok {
			if coords == nil {
				summary.NegativeSkips++
				continue
			}
			summary.CacheHits++
			updates = append(updates, updateFor(m.rec.ID, coords))
			continue
		}

		if !m.rec.HasUsableParts() {
			summary.Unusable++
			b.logger.Debug("row has no usable address parts, skipping", "id", m.rec.ID)
			continue
		}

		res := b.resolver.Resolve(ctx, m.rec)
		snapshot.Record(m.key, b.provider, res)
		if !res.Found() {
			summary.Failed++
			b.logger.Info("address not resolved", "id", m.rec.ID, "error", res.Err)
			continue
		}
		summary.Resolved++
		updates = append(updates, updateFor(m.rec.ID, res.Coords))
	}
	return updates
}

func (b *Backfill) publish(ctx context.Context, updates []domain.CoordinateUpdate) {
	if b.publisher == nil || len(updates) == 0 {
		return
	}
	if err := b.publisher.Publish(ctx, updates); err != nil {
		b.metrics.PublishErrors.Inc()
		b.logger.Error("publish coordinate updates failed", "error", err, "count", len(updates))
		return
	}
	b.metrics.UpdatesPublished.Add(float64(len(updates)))
}

func updateFor(id int64, c *domain.Coordinates) domain.CoordinateUpdate {
	return domain.CoordinateUpdate{ID: id, Lat: c.Lat, Lon: c.Lon}
}
