package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// fakeSite is an in-memory SiteAPI that records the order of its calls.
type fakeSite struct {
	mu    sync.Mutex
	calls []string

	shards   map[gateway.Type]int
	bounds   map[string]*gateway.Bound
	logs     map[string][]gateway.LogEntry
	logInfos map[string]*gateway.LogInfo
	buckets  []string
	sections []string
	keys     map[string][]string

	setBounds    []boundWrite
	setBoundErr  error
	sectionsErr  error
	keysErr      map[string]error
	logInfoErr   error
	numShardsErr error
}

type boundWrite struct {
	typ     gateway.Type
	shard   int
	marker  string
	daemon  string
	retries []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		shards:   map[gateway.Type]int{},
		bounds:   map[string]*gateway.Bound{},
		logs:     map[string][]gateway.LogEntry{},
		logInfos: map[string]*gateway.LogInfo{},
		keys:     map[string][]string{},
		keysErr:  map[string]error{},
	}
}

func shardKey(t gateway.Type, shard int) string {
	return fmt.Sprintf("%s/%d", t, shard)
}

func (f *fakeSite) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSite) NumShards(ctx context.Context, t gateway.Type) (int, error) {
	f.record("num-shards")
	if f.numShardsErr != nil {
		return 0, f.numShardsErr
	}
	return f.shards[t], nil
}

func (f *fakeSite) GetBound(ctx context.Context, t gateway.Type, shard int) (*gateway.Bound, error) {
	f.record(fmt.Sprintf("get-bound/%d", shard))
	bound, ok := f.bounds[shardKey(t, shard)]
	if !ok {
		return nil, fmt.Errorf("shard %d: %w", shard, gateway.ErrNotFound)
	}
	return bound, nil
}

func (f *fakeSite) SetBound(ctx context.Context, t gateway.Type, shard int, marker string, at time.Time, daemonID string, retries []string) error {
	f.record(fmt.Sprintf("set-bound/%d", shard))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBounds = append(f.setBounds, boundWrite{typ: t, shard: shard, marker: marker, daemon: daemonID, retries: retries})
	return f.setBoundErr
}

func (f *fakeSite) GetLog(ctx context.Context, t gateway.Type, shard int, marker string, maxEntries int) ([]gateway.LogEntry, error) {
	f.record(fmt.Sprintf("get-log/%d", shard))
	entries, ok := f.logs[shardKey(t, shard)]
	if !ok {
		return nil, fmt.Errorf("shard %d: %w", shard, gateway.ErrNotFound)
	}
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries, nil
}

func (f *fakeSite) GetLogInfo(ctx context.Context, t gateway.Type, shard int) (*gateway.LogInfo, error) {
	f.record(fmt.Sprintf("log-info/%d", shard))
	if f.logInfoErr != nil {
		return nil, f.logInfoErr
	}
	info, ok := f.logInfos[shardKey(t, shard)]
	if !ok {
		return &gateway.LogInfo{}, nil
	}
	return info, nil
}

func (f *fakeSite) ListBuckets(ctx context.Context) ([]string, error) {
	f.record("list-buckets")
	return f.buckets, nil
}

func (f *fakeSite) ListMetadataSections(ctx context.Context) ([]string, error) {
	f.record("list-sections")
	if f.sectionsErr != nil {
		return nil, f.sectionsErr
	}
	return f.sections, nil
}

func (f *fakeSite) ListMetadataKeys(ctx context.Context, section string) ([]string, error) {
	f.record("list-keys/" + section)
	if err := f.keysErr[section]; err != nil {
		return nil, err
	}
	keys, ok := f.keys[section]
	if !ok {
		return nil, fmt.Errorf("section %s: %w", section, gateway.ErrNotFound)
	}
	return keys, nil
}

// fakeClock is a manually advanced clock; Sleep advances it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
