package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/pingcap/tiflow/pkg/workerpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/config"
	"github.com/voidking/incubator-seatunnel/master"
	"github.com/voidking/incubator-seatunnel/master/jobhistory"
	"github.com/voidking/incubator-seatunnel/master/resourcemanager"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the coordinator API. It owns the job manager, the worker
// registry and the async pool shared by all job masters, and exposes them
// over HTTP.
type Server struct {
	cfg       *config.Config
	kv        statestore.KV
	resources *resourcemanager.SimpleResourceManager
	pool      workerpool.AsyncPool
	jobs      *master.JobManager
	handler   http.Handler
}

func NewServer(cfg *config.Config, kv statestore.KV, operator client.TaskOperator) *Server {
	s := &Server{
		cfg:       cfg,
		kv:        kv,
		resources: resourcemanager.NewSimpleResourceManager(),
		pool:      workerpool.NewDefaultAsyncPool(cfg.WorkerPoolSize),
	}
	s.jobs = master.NewJobManager(master.Deps{
		KV:        kv,
		Resources: s.resources,
		Operator:  operator,
		History:   jobhistory.NewStore(kv),
		Pool:      s.pool,
		ServerCfg: cfg,
	})
	s.handler = newRouter(s)
	return s
}

// Handler returns the root HTTP handler, wired for tests that serve it
// without a listener.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) JobManager() *master.JobManager { return s.jobs }

func (s *Server) Resources() *resourcemanager.SimpleResourceManager { return s.resources }

// Run serves the coordinator API until ctx is canceled. On shutdown it
// interrupts running jobs, which stay restorable, and drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{Addr: s.cfg.Addr, Handler: s.handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.pool.Run(gctx)
	})
	g.Go(func() error {
		log.L().Info("coordinator api listening", zap.String("addr", s.cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Trace(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.jobs.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Trace(httpSrv.Shutdown(shutdownCtx))
	})

	err := g.Wait()
	if err != nil && errors.Cause(err) == context.Canceled {
		return nil
	}
	return errors.Trace(err)
}
