package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/isabella232/radosgw-agent/internal/gateway"
	"github.com/isabella232/radosgw-agent/internal/sync"
)

// MetadataWorker applies metadata entries (users, bucket records) from the
// source site to the destination, one shard work item at a time.
type MetadataWorker struct {
	cfg Config
	log *slog.Logger
}

func NewMetadata(cfg *Config) *MetadataWorker {
	return &MetadataWorker{
		cfg: *cfg,
		log: slog.With("worker", "metadata", "lock_id", cfg.LockID),
	}
}

func (w *MetadataWorker) Sync(ctx context.Context, item *sync.WorkItem) *sync.Result {
	res := &sync.Result{Shard: item.Shard}

	if w.cfg.Lock {
		lease := &shardLease{
			dest:  w.cfg.Dest,
			typ:   gateway.TypeMetadata,
			shard: item.Shard,
			id:    w.cfg.LockID,
			log:   w.log,
		}
		if err := lease.acquire(ctx, w.cfg.LockDuration); err != nil {
			w.log.Error("could not lease metadata shard", "shard", item.Shard, "error", err)
			return res
		}
		defer lease.release(ctx)
	}

	// carried retries go first so entries stuck from earlier runs are not
	// starved behind new changes
	for _, name := range item.Retries {
		section, key, ok := strings.Cut(name, ":")
		if !ok {
			w.log.Warn("dropping malformed retry entry", "shard", item.Shard, "entry", name)
			continue
		}
		if err := w.syncEntry(ctx, section, key); err != nil {
			res.FailedRetries = append(res.FailedRetries, name)
		}
	}
	for _, entry := range item.Entries {
		if err := w.syncEntry(ctx, entry.Section, entry.Name); err != nil {
			res.FailedRetries = append(res.FailedRetries, entry.Section+":"+entry.Name)
		}
	}
	for _, mk := range item.MetaKeys {
		if err := w.syncEntry(ctx, mk.Section, mk.Key); err != nil {
			res.FailedRetries = append(res.FailedRetries, mk.String())
		}
	}

	res.Success = true
	return res
}

// syncEntry copies one metadata document from source to destination. A
// missing source document means the entity was deleted after it was logged;
// there is nothing left to copy.
func (w *MetadataWorker) syncEntry(ctx context.Context, section, key string) error {
	doc, err := w.cfg.Source.GetMetadata(ctx, section, key)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			w.log.Debug("metadata entry gone from source, skipping", "section", section, "key", key)
			return nil
		}
		w.log.Warn("failed to read metadata entry", "section", section, "key", key, "error", err)
		return err
	}
	if err := w.cfg.Dest.PutMetadata(ctx, section, key, doc); err != nil {
		w.log.Warn("failed to write metadata entry", "section", section, "key", key, "error", err)
		return err
	}
	return nil
}
