package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"

	"github.com/isabella232/radosgw-agent/internal/gateway"
	"github.com/isabella232/radosgw-agent/internal/sync"
)

// DataWorker copies bucket objects from the source site to the destination.
// The destination gateway performs the actual transfer; the worker drives it
// object by object through intra-region copy requests.
type DataWorker struct {
	cfg Config
	log *slog.Logger
}

func NewData(cfg *Config) *DataWorker {
	return &DataWorker{
		cfg: *cfg,
		log: slog.With("worker", "data", "lock_id", cfg.LockID),
	}
}

func (w *DataWorker) Sync(ctx context.Context, item *sync.WorkItem) *sync.Result {
	res := &sync.Result{Shard: item.Shard}

	if w.cfg.Lock {
		lease := &shardLease{
			dest:  w.cfg.Dest,
			typ:   gateway.TypeData,
			shard: item.Shard,
			id:    w.cfg.LockID,
			log:   w.log,
		}
		if err := lease.acquire(ctx, w.cfg.LockDuration); err != nil {
			w.log.Error("could not lease data shard", "shard", item.Shard, "error", err)
			return res
		}
		defer lease.release(ctx)
	}

	for _, bucket := range w.collectBuckets(item) {
		if err := w.syncBucket(ctx, bucket); err != nil {
			w.log.Warn("bucket sync failed", "shard", item.Shard, "bucket", bucket, "error", err)
			res.FailedRetries = append(res.FailedRetries, bucket)
		}
	}

	res.Success = true
	return res
}

// collectBuckets merges the carried retries, the full-sync bucket list and
// the log entries of a work item into one deduplicated, ordered bucket list.
// A data log names bucket instances ("bucket:instance-id"); only the bucket
// part matters for the copy.
func (w *DataWorker) collectBuckets(item *sync.WorkItem) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, name := range item.Retries {
		set.Add(bucketOf(name))
	}
	for _, bucket := range item.Buckets {
		set.Add(bucketOf(bucket))
	}
	for _, entry := range item.Entries {
		set.Add(bucketOf(entry.Name))
	}
	buckets := set.ToSlice()
	sort.Strings(buckets)
	return buckets
}

func bucketOf(name string) string {
	bucket, _, _ := strings.Cut(name, ":")
	return bucket
}

// syncBucket walks the source bucket index page by page and asks the
// destination to copy every object. One failed object fails the whole
// bucket; the bucket lands in the checkpoint retries and is walked again on
// the next pass.
func (w *DataWorker) syncBucket(ctx context.Context, bucket string) error {
	var synced, failed int64
	marker := ""
	for {
		page, err := w.cfg.Source.ListObjects(ctx, bucket, marker, w.cfg.MaxEntries)
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				break
			}
			return fmt.Errorf("list objects: %w", err)
		}
		for _, key := range page.Keys {
			if err := w.copyObject(ctx, bucket, key); err != nil {
				w.log.Warn("object copy failed", "bucket", bucket, "key", key, "error", err)
				failed++
				continue
			}
			synced++
		}
		if !page.IsTruncated {
			break
		}
		next := page.NextMarker
		if next == "" && len(page.Keys) > 0 {
			next = page.Keys[len(page.Keys)-1]
		}
		// a truncated page that does not advance the marker would refetch
		// the same page forever
		if next == "" || next == marker {
			return fmt.Errorf("bucket index pagination stalled at marker %q", marker)
		}
		marker = next
	}

	w.log.Info("bucket sync finished",
		"bucket", bucket,
		"synced", humanize.Comma(synced),
		"failed", humanize.Comma(failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d objects failed", failed, synced+failed)
	}
	return nil
}

func (w *DataWorker) copyObject(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ObjectSyncTimeout)
	defer cancel()
	return w.cfg.Dest.CopyObject(ctx, bucket, key, w.cfg.SourceZone)
}
