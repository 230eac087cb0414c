package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/radosgw-agent/internal/config"
	"github.com/isabella232/radosgw-agent/internal/gateway"
	"github.com/isabella232/radosgw-agent/internal/sync"
	"github.com/isabella232/radosgw-agent/internal/worker"
)

func testAgentConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source = config.Site{Endpoint: "http://rgw-east.test:8000", AccessKey: "ak", SecretKey: "sk", Zone: "east"}
	cfg.Dest = config.Site{Endpoint: "http://rgw-west.test:8000", AccessKey: "ak", SecretKey: "sk"}
	cfg.StatusAddr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewRejectsMissingEndpoint(t *testing.T) {
	cfg := testAgentConfig(t)
	cfg.Source.Endpoint = ""
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "agent.lock")
	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	cfg := testAgentConfig(t)
	cfg.LockFile = lockPath
	a, err := New(cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Run(context.Background()), ErrAlreadyRunning)
}

func TestWorkerFactoryBuildsMatchingKind(t *testing.T) {
	a, err := New(testAgentConfig(t))
	require.NoError(t, err)

	mw, err := a.workerFactory(gateway.TypeMetadata, sync.ModeIncremental)(0)
	require.NoError(t, err)
	assert.IsType(t, &worker.MetadataWorker{}, mw)

	dw, err := a.workerFactory(gateway.TypeData, sync.ModeFull)(1)
	require.NoError(t, err)
	assert.IsType(t, &worker.DataWorker{}, dw)
}

func TestOnceResult(t *testing.T) {
	a, err := New(testAgentConfig(t))
	require.NoError(t, err)
	assert.NoError(t, a.onceResult(false))
	assert.ErrorIs(t, a.onceResult(true), ErrShardsFailed)
}
