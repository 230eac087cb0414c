package sync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

const defaultSettleWindow = 30 * time.Second

// Syncer prepares and hands out one run's worth of replication work. A
// Syncer lives for a single run; all cross-run state is the remote
// checkpoint bounds.
type Syncer interface {
	Type() gateway.Type
	Mode() Mode

	// Prepare snapshots the shard checkpoint bounds and builds the per-shard
	// work map. It must be called before anything else.
	Prepare(ctx context.Context) error

	// GenerateWork yields the prepared work items, one per shard that has
	// an entry in the work map. The sequence is finite and meant to be
	// consumed once.
	GenerateWork() iter.Seq[*WorkItem]

	// WaitUntilReady blocks until the baseline captured by Prepare can be
	// trusted. Data syncs wait out a settle window to tolerate log
	// propagation lag; everything else returns immediately.
	WaitUntilReady(ctx context.Context) error

	// CompleteShard records a successful shard outcome by refreshing the
	// shard's checkpoint bound with the marker snapshotted during Prepare
	// and the retries that failed within this run. Shards without a
	// snapshotted bound are skipped, since the replica log only supports
	// updating an existing bound. Write failures are logged, never
	// retried; the worst case is repeating the shard next run.
	CompleteShard(ctx context.Context, shard int, retries []string)
}

// Options configures a Syncer for one run.
type Options struct {
	Type gateway.Type
	Mode Mode

	// Source serves the change logs and the ground-truth entity listings;
	// Dest holds the checkpoint bounds.
	Source SiteAPI
	Dest   SiteAPI

	// DaemonID is the single shared writer identity used for every bound
	// update.
	DaemonID string

	// MaxEntries caps a single log fetch and doubles as the lag-detection
	// threshold.
	MaxEntries int

	// SettleWindow overrides the default 30s wait applied to data syncs.
	SettleWindow time.Duration

	// BucketFilters restricts a full data sync to buckets matching any of
	// the glob patterns. Empty means all buckets.
	BucketFilters []string

	clock clock
}

func (o *Options) validate() error {
	if o.Source == nil || o.Dest == nil {
		return errors.New("sync: source and destination are required")
	}
	if o.DaemonID == "" {
		return errors.New("sync: daemon id is required")
	}
	if o.MaxEntries < 1 {
		return fmt.Errorf("sync: max entries must be >= 1, got %d", o.MaxEntries)
	}
	return nil
}

// New builds the Syncer variant for the given type and mode.
func New(opts *Options) (Syncer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	clk := opts.clock
	if clk == nil {
		clk = wallClock{}
	}
	settle := opts.SettleWindow
	if settle <= 0 {
		settle = defaultSettleWindow
	}

	base := syncerBase{
		src:        opts.Source,
		dest:       opts.Dest,
		typ:        opts.Type,
		daemonID:   opts.DaemonID,
		maxEntries: opts.MaxEntries,
		clk:        clk,
	}

	switch {
	case opts.Type == gateway.TypeMetadata && opts.Mode == ModeIncremental:
		return &incrementalSyncer{syncerBase: base}, nil
	case opts.Type == gateway.TypeData && opts.Mode == ModeIncremental:
		return &incrementalSyncer{syncerBase: base, settleWindow: settle}, nil
	case opts.Type == gateway.TypeData && opts.Mode == ModeFull:
		return &dataFullSyncer{syncerBase: base, settleWindow: settle, filters: opts.BucketFilters}, nil
	case opts.Type == gateway.TypeMetadata && opts.Mode == ModeFull:
		return &metaFullSyncer{syncerBase: base}, nil
	default:
		return nil, fmt.Errorf("sync: unknown sync type %q mode %q", opts.Type, opts.Mode)
	}
}

// syncerBase carries the state and behavior shared by all variants.
type syncerBase struct {
	src        SiteAPI
	dest       SiteAPI
	typ        gateway.Type
	daemonID   string
	maxEntries int
	clk        clock

	// populated by Prepare
	numShards  int
	markers    map[int]string // shard -> marker snapshot; empty marker = no bound
	work       map[int]*WorkItem
	preparedAt time.Time
}

func (s *syncerBase) Type() gateway.Type { return s.typ }

// initNumShards resolves the shard count once; all downstream shard math
// uses this fixed value.
func (s *syncerBase) initNumShards(ctx context.Context) error {
	if s.numShards > 0 {
		return nil
	}
	n, err := s.src.NumShards(ctx, s.typ)
	if err != nil {
		return fmt.Errorf("finding number of shards: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("sync: gateway reported %d %s log shards", n, s.typ)
	}
	s.numShards = n
	slog.Debug("shards to check", "type", s.typ, "count", n)
	return nil
}

// snapshotMarkers records each shard's current log head as the starting
// point for subsequent incremental runs. Shards with an empty marker are
// skipped: an empty marker cannot be written back as a bound.
func (s *syncerBase) snapshotMarkers(ctx context.Context) error {
	s.markers = make(map[int]string, s.numShards)
	for shard := 0; shard < s.numShards; shard++ {
		info, err := s.src.GetLogInfo(ctx, s.typ, shard)
		if err != nil {
			return fmt.Errorf("log info for shard %d: %w", shard, err)
		}
		if info.Marker != "" {
			s.markers[shard] = info.Marker
		}
	}
	return nil
}

func (s *syncerBase) GenerateWork() iter.Seq[*WorkItem] {
	return func(yield func(*WorkItem) bool) {
		for shard := 0; shard < s.numShards; shard++ {
			item, ok := s.work[shard]
			if !ok {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

func (s *syncerBase) WaitUntilReady(ctx context.Context) error { return nil }

func (s *syncerBase) CompleteShard(ctx context.Context, shard int, retries []string) {
	marker := s.markers[shard]
	if marker == "" {
		return
	}
	err := s.dest.SetBound(ctx, s.typ, shard, marker, s.clk.Now().UTC(), s.daemonID, retries)
	if err != nil {
		slog.Warn("could not set shard bound, may repeat some work", "type", s.typ, "shard", shard, "error", err)
	}
}

// settle blocks until preparedAt + window has elapsed, in 1s polls.
func (s *syncerBase) settle(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	deadline := s.preparedAt.Add(window)
	if s.clk.Now().Before(deadline) {
		slog.Info("waiting to make sure the log is consistent", "type", s.typ, "window", window)
	}
	for s.clk.Now().Before(deadline) {
		if err := s.clk.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}
