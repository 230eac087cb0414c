// Package agent runs the replication loop: full baseline passes, the
// incremental tail loop, the worker pool and the local status server.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/isabella232/radosgw-agent/internal/config"
	"github.com/isabella232/radosgw-agent/internal/gateway"
	"github.com/isabella232/radosgw-agent/internal/statussrv"
	"github.com/isabella232/radosgw-agent/internal/sync"
	"github.com/isabella232/radosgw-agent/internal/worker"
)

var (
	// ErrShardsFailed is returned by a single-pass run when one or more
	// shards did not sync. The daemon loop logs instead and tries again.
	ErrShardsFailed = errors.New("agent: some shards failed to sync")

	// ErrAlreadyRunning means another agent instance holds the lock file.
	ErrAlreadyRunning = errors.New("agent: another instance is already running")
)

// Agent owns one source/destination pair and replicates metadata and data
// between them until stopped.
type Agent struct {
	cfg    *config.Config
	source *gateway.Client
	dest   *gateway.Client
	status *statussrv.Server
}

func New(cfg *config.Config) (*Agent, error) {
	source, err := gateway.New(siteConfig(&cfg.Source, cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("agent: source client: %w", err)
	}
	dest, err := gateway.New(siteConfig(&cfg.Dest, cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("agent: destination client: %w", err)
	}
	return &Agent{
		cfg:    cfg,
		source: source,
		dest:   dest,
		status: statussrv.New(cfg.StatusAddr),
	}, nil
}

func siteConfig(site *config.Site, region string) *gateway.Config {
	return &gateway.Config{
		Endpoint:  site.Endpoint,
		AccessKey: site.AccessKey,
		SecretKey: site.SecretKey,
		Region:    region,
	}
}

// Run replicates until ctx is canceled, the sync loop finishes (once mode)
// or a fatal error occurs.
func (a *Agent) Run(ctx context.Context) error {
	if a.cfg.LockFile != "" {
		lock := flock.New(a.cfg.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("agent: lock file %s: %w", a.cfg.LockFile, err)
		}
		if !locked {
			return ErrAlreadyRunning
		}
		defer lock.Unlock()
	}

	slog.Info("agent starting",
		"source", a.source.Endpoint(),
		"destination", a.dest.Endpoint(),
		"scope", a.cfg.SyncScope,
		"metadata_only", a.cfg.MetadataOnly,
		"workers", a.cfg.NumWorkers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.StatusAddr != "" {
		g.Go(func() error {
			return a.status.Start(gctx)
		})
	}
	g.Go(func() error {
		// stopping the loop stops the status server too
		defer cancel()
		return a.runLoop(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) runLoop(ctx context.Context) error {
	var dirty bool

	if a.cfg.SyncScope == config.SyncScopeFull {
		if err := a.runPass(ctx, sync.ModeFull, &dirty); err != nil {
			return err
		}
		if a.cfg.Once {
			return a.onceResult(dirty)
		}
	}

	for {
		if err := a.runPass(ctx, sync.ModeIncremental, &dirty); err != nil {
			return err
		}
		if a.cfg.Once {
			return a.onceResult(dirty)
		}
		if err := sleep(ctx, a.cfg.IncrementalSyncDelay); err != nil {
			return err
		}
	}
}

// runPass runs one metadata sync and, unless metadata_only is set, one data
// sync of the given mode. Failed shards mark the pass dirty but do not stop
// it; transport-level errors do.
func (a *Agent) runPass(ctx context.Context, mode sync.Mode, dirty *bool) error {
	types := []gateway.Type{gateway.TypeMetadata}
	if !a.cfg.MetadataOnly {
		types = append(types, gateway.TypeData)
	}
	for _, typ := range types {
		report, err := a.runOnce(ctx, typ, mode)
		if err != nil {
			return err
		}
		if !report.Clean() {
			*dirty = true
		}
	}
	return nil
}

func (a *Agent) onceResult(dirty bool) error {
	if dirty {
		return ErrShardsFailed
	}
	return nil
}

// runOnce prepares and dispatches one sync run of a single type and mode.
func (a *Agent) runOnce(ctx context.Context, typ gateway.Type, mode sync.Mode) (*sync.Report, error) {
	s, err := sync.New(&sync.Options{
		Type:          typ,
		Mode:          mode,
		Source:        a.source,
		Dest:          a.dest,
		DaemonID:      a.cfg.DaemonID,
		MaxEntries:    a.cfg.MaxEntries,
		SettleWindow:  a.cfg.SettleWindow,
		BucketFilters: a.cfg.SyncFilters,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("agent: prepare %s %s sync: %w", typ, mode, err)
	}

	d := sync.NewDispatcher(a.cfg.NumWorkers, a.workerFactory(typ, mode))
	report, err := d.Run(ctx, s)
	if err != nil {
		return nil, err
	}
	a.status.SetReport(report)
	slog.Info("sync pass finished",
		"run_id", report.RunID,
		"type", report.Type,
		"mode", report.Mode,
		"items", report.Items,
		"failed_shards", len(report.FailedShards),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

// workerFactory builds pool workers. Each worker gets its own pair of
// gateway clients and a distinct lock identity; only incremental runs lease
// shards, full runs read a static snapshot instead of the logs.
func (a *Agent) workerFactory(typ gateway.Type, mode sync.Mode) sync.WorkerFactory {
	return func(id int) (sync.Worker, error) {
		src, err := gateway.New(siteConfig(&a.cfg.Source, a.cfg.Region))
		if err != nil {
			return nil, err
		}
		dst, err := gateway.New(siteConfig(&a.cfg.Dest, a.cfg.Region))
		if err != nil {
			return nil, err
		}
		wcfg := &worker.Config{
			Source:            src,
			Dest:              dst,
			LockID:            fmt.Sprintf("%s:%d", a.cfg.DaemonID, id),
			Lock:              mode == sync.ModeIncremental,
			LockDuration:      a.cfg.LockDuration,
			ObjectSyncTimeout: a.cfg.ObjectSyncTimeout,
			MaxEntries:        a.cfg.MaxEntries,
			SourceZone:        a.cfg.Source.Zone,
		}
		if typ == gateway.TypeMetadata {
			return worker.NewMetadata(wcfg), nil
		}
		return worker.NewData(wcfg), nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
