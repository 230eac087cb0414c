package sync

import (
	"context"
	"time"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// Mode selects between tailing the shard logs and a baseline resync.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// WorkItem is the unit of work for one shard. Exactly one payload field is
// populated depending on the sync type and mode. Retries carries the
// in-progress items loaded from the shard's checkpoint bound, verbatim; it is
// distinct from the failures a run produces (Result.FailedRetries).
type WorkItem struct {
	Shard    int
	Entries  []gateway.LogEntry // incremental: log entries past the bound
	Buckets  []string           // data full: bucket names for this shard
	MetaKeys []gateway.MetaKey  // metadata full: entries for this shard
	Retries  []string           // carried from the checkpoint bound
}

// Result is the outcome of synchronizing one shard's WorkItem.
// FailedRetries lists the items that failed within this run and should be
// written into the shard's next checkpoint bound.
type Result struct {
	Shard         int
	Success       bool
	FailedRetries []string
}

// Worker synchronizes the content of one WorkItem and reports the outcome.
// Each pool worker owns its own Worker instance and gateway connections.
type Worker interface {
	Sync(ctx context.Context, item *WorkItem) *Result
}

// SiteAPI is the slice of the gateway admin API the sync core depends on.
// Implemented by *gateway.Client.
type SiteAPI interface {
	NumShards(ctx context.Context, t gateway.Type) (int, error)
	GetBound(ctx context.Context, t gateway.Type, shard int) (*gateway.Bound, error)
	SetBound(ctx context.Context, t gateway.Type, shard int, marker string, at time.Time, daemonID string, retries []string) error
	GetLog(ctx context.Context, t gateway.Type, shard int, marker string, maxEntries int) ([]gateway.LogEntry, error)
	GetLogInfo(ctx context.Context, t gateway.Type, shard int) (*gateway.LogInfo, error)
	ListBuckets(ctx context.Context) ([]string, error)
	ListMetadataSections(ctx context.Context) ([]string, error)
	ListMetadataKeys(ctx context.Context, section string) ([]string, error)
}
