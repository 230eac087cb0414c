// Package statussrv serves the agent's local status endpoint: liveness,
// process stats and the outcome of recent replication passes.
package statussrv

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	stdsync "sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/isabella232/radosgw-agent/internal/sync"
	"github.com/isabella232/radosgw-agent/internal/version"
)

// Server is the local HTTP status server. It keeps the latest report per
// sync type and mode; a new pass overwrites the previous one.
type Server struct {
	addr    string
	started time.Time

	mu      stdsync.RWMutex
	reports map[string]*sync.Report
}

func New(addr string) *Server {
	return &Server{
		addr:    addr,
		started: time.Now(),
		reports: map[string]*sync.Report{},
	}
}

// SetReport records the outcome of a finished replication pass.
func (s *Server) SetReport(r *sync.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[string(r.Type)+"/"+string(r.Mode)] = r
}

// Reports returns the latest report of every type/mode pair seen so far.
func (s *Server) Reports() []*sync.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*sync.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	return out
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(sloggin.New(slog.Default()), gin.Recovery())
	router.GET("/health", s.handleHealth)
	router.GET("/v1/status", s.handleStatus)
	return router
}

// Start serves the status API until ctx is canceled, then shuts down
// gracefully. A nil error means a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("status server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":  "ok",
		"version": version.Detailed(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			health["memory"] = humanize.IBytes(mem.RSS)
		}
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": s.Reports()})
}
