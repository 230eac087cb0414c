package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// incrementalSyncer tails each shard's log from its previously recorded
// bound. A non-zero settleWindow (data syncs) delays dispatch until the
// baseline can be trusted.
type incrementalSyncer struct {
	syncerBase
	settleWindow time.Duration

	// shards whose log produced a full page in one fetch, i.e. the feed is
	// outpacing a single pass
	lagging []int
}

func (s *incrementalSyncer) Mode() Mode { return ModeIncremental }

func (s *incrementalSyncer) Prepare(ctx context.Context) error {
	if err := s.initNumShards(ctx); err != nil {
		return err
	}

	s.markers = make(map[int]string, s.numShards)
	s.work = make(map[int]*WorkItem, s.numShards)
	for shard := 0; shard < s.numShards; shard++ {
		marker, retries, err := s.shardBound(ctx, shard)
		if err != nil {
			return err
		}
		entries, err := s.shardEntries(ctx, shard, marker)
		if err != nil {
			return err
		}
		s.markers[shard] = marker
		s.work[shard] = &WorkItem{Shard: shard, Entries: entries, Retries: retries}
	}

	s.preparedAt = s.clk.Now()
	return nil
}

func (s *incrementalSyncer) WaitUntilReady(ctx context.Context) error {
	return s.settle(ctx, s.settleWindow)
}

// LaggingShards reports the shards flagged as falling behind during Prepare.
func (s *incrementalSyncer) LaggingShards() []int {
	return s.lagging
}

// shardBound loads the shard's checkpoint. A missing bound means the shard
// has never been synced: start from the beginning with no retries.
func (s *incrementalSyncer) shardBound(ctx context.Context, shard int) (string, []string, error) {
	bound, err := s.dest.GetBound(ctx, s.typ, shard)
	if errors.Is(err, gateway.ErrNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("bound for shard %d: %w", shard, err)
	}
	slog.Debug("oldest marker and time", "type", s.typ, "shard", shard, "marker", bound.Marker, "time", bound.OldestTime, "retries", len(bound.ItemsInProgress))
	return bound.Marker, bound.Retries(), nil
}

// shardEntries fetches the log past marker. A missing log means no entries
// past the marker yet, which is fine; the shard may still have retries. A
// full page means the log is producing faster than one pass can drain.
func (s *incrementalSyncer) shardEntries(ctx context.Context, shard int, marker string) ([]gateway.LogEntry, error) {
	entries, err := s.src.GetLog(ctx, s.typ, shard, marker, s.maxEntries)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("log entries for shard %d: %w", shard, err)
	}
	if len(entries) == s.maxEntries {
		slog.Warn("shard log has fallen behind", "type", s.typ, "shard", shard, "maxEntries", s.maxEntries)
		s.lagging = append(s.lagging, shard)
	}
	return entries, nil
}
