package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/isabella232/radosgw-agent/internal/gateway"
)

// WorkerFactory builds the Worker for one pool slot. Each worker owns its
// own gateway connections; workers share nothing but the channels.
type WorkerFactory func(id int) (Worker, error)

// Report summarizes one dispatched run.
type Report struct {
	RunID        string       `json:"run_id"`
	Type         gateway.Type `json:"type"`
	Mode         Mode         `json:"mode"`
	Items        int          `json:"items"`
	FailedShards []int        `json:"failed_shards"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// Clean reports whether every shard synced successfully.
func (r *Report) Clean() bool { return len(r.FailedShards) == 0 }

// Dispatcher fans a Syncer's work out over a pool of workers and fans the
// results back in, advancing each shard's checkpoint on success.
type Dispatcher struct {
	numWorkers int
	newWorker  WorkerFactory
}

func NewDispatcher(numWorkers int, factory WorkerFactory) *Dispatcher {
	return &Dispatcher{numWorkers: numWorkers, newWorker: factory}
}

// Run executes one sync run. It drains the Syncer's generated work up
// front, starts exactly numWorkers workers pulling from a shared queue,
// enqueues every item followed by one nil sentinel per worker, then reads
// exactly one result per item. Successes advance the shard checkpoint;
// failures are collected into the report's failed-shard list.
//
// Run blocks until every result has arrived. A worker that dies without
// reporting stalls the run; there is no worker-health monitoring, and
// context cancellation is the only escape.
func (d *Dispatcher) Run(ctx context.Context, s Syncer) (*Report, error) {
	items := slices.Collect(s.GenerateWork())

	// buffers sized so neither side can wedge the other
	work := make(chan *WorkItem, len(items)+d.numWorkers)
	results := make(chan *Result, len(items))

	var running int
	done := make(chan struct{})
	wait := func() {
		for i := 0; i < running; i++ {
			<-done
		}
	}
	// abort releases workers before any work was enqueued
	abort := func() {
		for i := 0; i < running; i++ {
			work <- nil
		}
		wait()
	}

	for id := 0; id < d.numWorkers; id++ {
		w, err := d.newWorker(id)
		if err != nil {
			abort()
			return nil, fmt.Errorf("sync: create worker %d: %w", id, err)
		}
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			runWorker(ctx, w, work, results)
		}()
	}

	if err := s.WaitUntilReady(ctx); err != nil {
		abort()
		return nil, err
	}

	slog.Info("starting sync", "type", s.Type(), "mode", s.Mode(), "items", len(items), "workers", d.numWorkers)
	report := &Report{
		RunID:     uuid.NewString(),
		Type:      s.Type(),
		Mode:      s.Mode(),
		Items:     len(items),
		StartedAt: time.Now(),
	}

	for _, item := range items {
		work <- item
	}
	// one terminate sentinel per worker, so every worker observes exactly
	// one regardless of how the work is distributed
	for i := 0; i < d.numWorkers; i++ {
		work <- nil
	}

	failed := mapset.NewThreadUnsafeSet[int]()
	for i := 0; i < len(items); i++ {
		var res *Result
		select {
		case <-ctx.Done():
			// sentinels are already queued; workers drain and exit
			wait()
			return nil, ctx.Err()
		case res = <-results:
		}

		if res.Success {
			slog.Debug("synced shard", "type", s.Type(), "shard", res.Shard, "failedRetries", len(res.FailedRetries))
			s.CompleteShard(ctx, res.Shard, res.FailedRetries)
		} else {
			slog.Error("error syncing shard", "type", s.Type(), "shard", res.Shard)
			failed.Add(res.Shard)
		}
		slog.Info("items processed", "type", s.Type(), "done", i+1, "total", len(items))
	}
	wait()

	report.FailedShards = failed.ToSlice()
	slices.Sort(report.FailedShards)
	report.FinishedAt = time.Now()

	if !report.Clean() {
		slog.Error("encountered errors syncing shards", "type", s.Type(), "count", len(report.FailedShards), "shards", report.FailedShards)
	}
	return report, nil
}

// runWorker pulls items off the shared queue until it sees the nil
// terminate-sentinel.
func runWorker(ctx context.Context, w Worker, work <-chan *WorkItem, results chan<- *Result) {
	for {
		item := <-work
		if item == nil {
			return
		}
		results <- w.Sync(ctx, item)
	}
}
