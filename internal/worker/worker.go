// Package worker implements the per-shard synchronization performed by the
// dispatch pool: applying metadata entries and copying bucket objects from
// the source site to the destination.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// Source is the slice of the source gateway API workers read from.
type Source interface {
	GetMetadata(ctx context.Context, section, key string) (json.RawMessage, error)
	ListObjects(ctx context.Context, bucket, marker string, maxKeys int) (*gateway.ObjectList, error)
}

// Dest is the slice of the destination gateway API workers write to.
type Dest interface {
	LockShard(ctx context.Context, t gateway.Type, shard int, lockID string, duration time.Duration) error
	UnlockShard(ctx context.Context, t gateway.Type, shard int, lockID string) error
	PutMetadata(ctx context.Context, section, key string, data json.RawMessage) error
	CopyObject(ctx context.Context, bucket, key, sourceZone string) error
}

// Config carries the connections and tuning shared by both worker kinds.
type Config struct {
	Source Source
	Dest   Dest

	// LockID identifies this worker when leasing destination log shards.
	// Lock enables shard leasing; full-sync runs skip it because they do
	// not tail the destination logs.
	LockID string
	Lock   bool

	LockDuration      time.Duration
	ObjectSyncTimeout time.Duration
	MaxEntries        int

	// SourceZone names the zone the destination fetches objects from.
	SourceZone string
}

// shardLease leases one destination log shard for the duration of a work
// item. Release tolerates failure: an expired lease costs nothing beyond
// another agent briefly contending for the shard.
type shardLease struct {
	dest  Dest
	typ   gateway.Type
	shard int
	id    string
	log   *slog.Logger
}

func (l *shardLease) acquire(ctx context.Context, duration time.Duration) error {
	return l.dest.LockShard(ctx, l.typ, l.shard, l.id, duration)
}

func (l *shardLease) release(ctx context.Context) {
	if err := l.dest.UnlockShard(ctx, l.typ, l.shard, l.id); err != nil {
		l.log.Warn("failed to unlock shard, lease will expire on its own",
			"shard", l.shard, "error", err)
	}
}
