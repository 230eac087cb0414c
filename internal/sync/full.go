package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// dataFullSyncer resynchronizes every bucket from the current ground truth.
// It snapshots the data log markers first so the run hands off cleanly to
// subsequent incremental runs.
type dataFullSyncer struct {
	syncerBase
	settleWindow time.Duration
	filters      []string
}

func (s *dataFullSyncer) Mode() Mode { return ModeFull }

func (s *dataFullSyncer) Prepare(ctx context.Context) error {
	if err := s.initNumShards(ctx); err != nil {
		return err
	}

	if err := s.snapshotMarkers(ctx); err != nil {
		return err
	}

	// Enumerate the buckets only after every marker is snapshotted, so
	// buckets created in between are picked up by the next incremental run
	// instead of being missed.
	buckets, err := s.src.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	buckets = filterBuckets(buckets, s.filters)

	s.preparedAt = s.clk.Now()

	s.work = make(map[int]*WorkItem)
	for _, bucket := range buckets {
		shard := ShardIndex(bucket, s.numShards)
		item, ok := s.work[shard]
		if !ok {
			item = &WorkItem{Shard: shard}
			s.work[shard] = item
		}
		item.Buckets = append(item.Buckets, bucket)
	}
	return nil
}

func (s *dataFullSyncer) WaitUntilReady(ctx context.Context) error {
	return s.settle(ctx, s.settleWindow)
}

func filterBuckets(buckets, patterns []string) []string {
	if len(patterns) == 0 {
		return buckets
	}
	kept := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		for _, pattern := range patterns {
			if doublestar.MatchUnvalidated(pattern, bucket) {
				kept = append(kept, bucket)
				break
			}
		}
	}
	return kept
}

// metaFullSyncer resynchronizes every metadata entry from the current
// ground truth, partitioned by section:key.
type metaFullSyncer struct {
	syncerBase
}

func (s *metaFullSyncer) Mode() Mode { return ModeFull }

func (s *metaFullSyncer) Prepare(ctx context.Context) error {
	if err := s.initNumShards(ctx); err != nil {
		return err
	}

	if err := s.snapshotMarkers(ctx); err != nil {
		return err
	}

	sections, err := s.src.ListMetadataSections(ctx)
	if err != nil {
		return fmt.Errorf("list metadata sections: %w", err)
	}

	s.preparedAt = s.clk.Now()

	s.work = make(map[int]*WorkItem)
	for _, section := range sections {
		keys, err := s.src.ListMetadataKeys(ctx, section)
		if errors.Is(err, gateway.ErrNotFound) {
			// no keys of this type exist
			continue
		}
		if err != nil {
			return fmt.Errorf("list metadata keys for section %s: %w", section, err)
		}
		for _, key := range keys {
			mk := gateway.MetaKey{Section: section, Key: key}
			shard := ShardIndex(mk.String(), s.numShards)
			item, ok := s.work[shard]
			if !ok {
				item = &WorkItem{Shard: shard}
				s.work[shard] = item
			}
			item.MetaKeys = append(item.MetaKeys, mk)
		}
	}
	return nil
}
