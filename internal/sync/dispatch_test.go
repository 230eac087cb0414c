package sync

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// scriptedSyncer hands out canned work and records completions.
type scriptedSyncer struct {
	typ   gateway.Type
	items []*WorkItem

	readyErr error

	mu        sync.Mutex
	completed map[int][]string
}

func newScriptedSyncer(items ...*WorkItem) *scriptedSyncer {
	return &scriptedSyncer{
		typ:       gateway.TypeMetadata,
		items:     items,
		completed: map[int][]string{},
	}
}

func (s *scriptedSyncer) Type() gateway.Type                 { return s.typ }
func (s *scriptedSyncer) Mode() Mode                         { return ModeIncremental }
func (s *scriptedSyncer) Prepare(ctx context.Context) error  { return nil }
func (s *scriptedSyncer) WaitUntilReady(ctx context.Context) error { return s.readyErr }

func (s *scriptedSyncer) GenerateWork() iter.Seq[*WorkItem] {
	return func(yield func(*WorkItem) bool) {
		for _, item := range s.items {
			if !yield(item) {
				return
			}
		}
	}
}

func (s *scriptedSyncer) CompleteShard(ctx context.Context, shard int, retries []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[shard] = retries
}

// echoWorker reports success for every item, echoing the shard back.
type echoWorker struct {
	id        int
	processed *atomic.Int64
	fail      func(item *WorkItem) bool
}

func (w *echoWorker) Sync(ctx context.Context, item *WorkItem) *Result {
	w.processed.Add(1)
	if w.fail != nil && w.fail(item) {
		return &Result{Shard: item.Shard}
	}
	return &Result{Shard: item.Shard, Success: true, FailedRetries: item.Retries}
}

func items(shards ...int) []*WorkItem {
	out := make([]*WorkItem, 0, len(shards))
	for _, shard := range shards {
		out = append(out, &WorkItem{Shard: shard})
	}
	return out
}

func TestDispatcherProcessesEveryItemExactlyOnce(t *testing.T) {
	s := newScriptedSyncer(items(0, 1, 2, 3, 4, 5, 6)...)

	var processed atomic.Int64
	var created atomic.Int64
	d := NewDispatcher(3, func(id int) (Worker, error) {
		created.Add(1)
		return &echoWorker{id: id, processed: &processed}, nil
	})

	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)

	// one worker per pool slot, one result per item, one completion per
	// successful shard
	assert.Equal(t, int64(3), created.Load())
	assert.Equal(t, int64(7), processed.Load())
	assert.Equal(t, 7, report.Items)
	assert.Len(t, s.completed, 7)
	assert.True(t, report.Clean())
	assert.Empty(t, report.FailedShards)
	assert.NotEmpty(t, report.RunID)
}

func TestDispatcherMoreWorkersThanItems(t *testing.T) {
	s := newScriptedSyncer(items(0)...)

	var processed atomic.Int64
	d := NewDispatcher(8, func(id int) (Worker, error) {
		return &echoWorker{id: id, processed: &processed}, nil
	})

	// every idle worker still observes exactly one terminate sentinel,
	// so Run returns instead of leaking goroutines
	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed.Load())
	assert.Equal(t, 1, report.Items)
}

func TestDispatcherNoWork(t *testing.T) {
	s := newScriptedSyncer()

	d := NewDispatcher(2, func(id int) (Worker, error) {
		return &echoWorker{id: id, processed: &atomic.Int64{}}, nil
	})

	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Items)
	assert.True(t, report.Clean())
}

func TestDispatcherCollectsFailedShards(t *testing.T) {
	s := newScriptedSyncer(items(0, 1, 2, 3)...)

	var processed atomic.Int64
	d := NewDispatcher(2, func(id int) (Worker, error) {
		return &echoWorker{
			id:        id,
			processed: &processed,
			fail:      func(item *WorkItem) bool { return item.Shard%2 == 1 },
		}, nil
	})

	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, report.FailedShards)
	assert.False(t, report.Clean())

	// failed shards never advance their checkpoint
	assert.Contains(t, s.completed, 0)
	assert.Contains(t, s.completed, 2)
	assert.NotContains(t, s.completed, 1)
	assert.NotContains(t, s.completed, 3)
}

func TestDispatcherKeepsCarriedRetriesSeparateFromFailedShards(t *testing.T) {
	work := items(0, 1)
	work[0].Retries = []string{"user:a", "user:b"}
	s := newScriptedSyncer(work...)

	var processed atomic.Int64
	d := NewDispatcher(1, func(id int) (Worker, error) {
		return &echoWorker{
			id:        id,
			processed: &processed,
			fail:      func(item *WorkItem) bool { return item.Shard == 1 },
		}, nil
	})

	report, err := d.Run(context.Background(), s)
	require.NoError(t, err)

	// the carried retries flow into the checkpoint via CompleteShard;
	// the failed-shard list is a separate collection
	assert.Equal(t, []string{"user:a", "user:b"}, s.completed[0])
	assert.Equal(t, []int{1}, report.FailedShards)
}

func TestDispatcherWaitUntilReadyFailureStopsRun(t *testing.T) {
	s := newScriptedSyncer(items(0, 1)...)
	s.readyErr = errors.New("settle interrupted")

	var processed atomic.Int64
	d := NewDispatcher(2, func(id int) (Worker, error) {
		return &echoWorker{id: id, processed: &processed}, nil
	})

	_, err := d.Run(context.Background(), s)
	require.ErrorIs(t, err, s.readyErr)
	assert.Zero(t, processed.Load(), "no work may be dispatched before ready")
	assert.Empty(t, s.completed)
}

func TestDispatcherWorkerFactoryFailure(t *testing.T) {
	s := newScriptedSyncer(items(0)...)

	d := NewDispatcher(3, func(id int) (Worker, error) {
		if id == 2 {
			return nil, errors.New("connect refused")
		}
		return &echoWorker{id: id, processed: &atomic.Int64{}}, nil
	})

	_, err := d.Run(context.Background(), s)
	assert.Error(t, err)
}
