package master

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promutil"
)

// JobManager owns every job master of the process. It builds one per
// submitted job, launches its run loop, and routes worker reports to the
// owning master. Finished masters stay registered so their final status
// remains queryable until the server goes away.
type JobManager struct {
	deps Deps

	mu      sync.Mutex
	masters map[model.JobID]*JobMaster
	// pending holds ids whose master is still initializing. They reserve the
	// id against concurrent submits without exposing the half built master.
	pending map[model.JobID]struct{}

	wg sync.WaitGroup
}

// NewJobManager creates a manager over the shared process dependencies.
func NewJobManager(deps Deps) *JobManager {
	deps.fillDefaults()
	return &JobManager{
		deps:    deps,
		masters: make(map[model.JobID]*JobMaster),
		pending: make(map[model.JobID]struct{}),
	}
}

// SubmitJob decodes, initializes and launches a job master for the raw job
// definition. The job id comes from the definition; resubmitting an id that
// is still running or initializing is rejected, resubmitting an ended one
// replaces it.
func (m *JobManager) SubmitJob(ctx context.Context, raw []byte) (*JobMaster, error) {
	info, err := model.DecodeJobImmutableInfo(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.mu.Lock()
	_, initializing := m.pending[info.JobID]
	existing, ok := m.masters[info.JobID]
	if initializing || (ok && existing.IsRunning()) {
		m.mu.Unlock()
		return nil, derror.ErrJobAlreadySubmitted.GenWithStackByArgs(info.JobID)
	}
	m.pending[info.JobID] = struct{}{}
	m.mu.Unlock()

	// an ended master being replaced leaves its collectors registered so the
	// final status stays scrapeable, drop them before stamping new ones
	promutil.UnregisterJob(info.JobID)
	deps := m.deps
	deps.Metrics = NewMetrics(promutil.With(info.JobID))
	jm := NewJobMaster(raw, deps)
	if err := jm.Init(ctx, deps.Clock.Now().UnixMilli()); err != nil {
		m.mu.Lock()
		delete(m.pending, info.JobID)
		m.mu.Unlock()
		promutil.UnregisterJob(info.JobID)
		return nil, errors.Trace(err)
	}

	m.mu.Lock()
	delete(m.pending, info.JobID)
	m.masters[info.JobID] = jm
	m.mu.Unlock()
	log.L().Info("job submitted",
		zap.Int64("job-id", int64(info.JobID)),
		zap.String("job-name", info.Name))

	m.wg.Add(1)
	m.launch(jm)
	return jm, nil
}

func (m *JobManager) launch(jm *JobMaster) {
	go func() {
		defer m.wg.Done()
		jobID := jm.JobID()
		result, err := jm.Run(context.Background())
		if err != nil {
			log.L().Warn("job run aborted",
				zap.Int64("job-id", int64(jobID)),
				log.ShortError(err))
			return
		}
		log.L().Info("job run finished",
			zap.Int64("job-id", int64(jobID)),
			zap.Stringer("status", result.Status),
			zap.String("error", result.Error))
	}()
}

// Master returns the job master of jobID.
func (m *JobManager) Master(jobID model.JobID) (*JobMaster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jm, ok := m.masters[jobID]
	if !ok {
		return nil, derror.ErrJobNotFound.GenWithStackByArgs(jobID)
	}
	return jm, nil
}

// Masters returns a snapshot of the registered job masters.
func (m *JobManager) Masters() []*JobMaster {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*JobMaster, 0, len(m.masters))
	for _, jm := range m.masters {
		ret = append(ret, jm)
	}
	return ret
}

// UpdateTaskExecutionState routes a worker's task state report to the
// owning job master. Reports of unknown jobs are dropped, the job may have
// finished and been cleaned since the worker sent them.
func (m *JobManager) UpdateTaskExecutionState(state model.TaskExecutionState) {
	jm, err := m.Master(state.Location.JobID)
	if err != nil {
		log.L().Warn("task state report for unknown job dropped",
			zap.String("location", state.Location.String()),
			zap.Stringer("state", state.State))
		return
	}
	jm.UpdateTaskExecutionState(state)
}

// ReportCheckpointError routes a worker's checkpoint failure report.
func (m *JobManager) ReportCheckpointError(jobID model.JobID, pipelineID model.PipelineID, cause error) error {
	jm, err := m.Master(jobID)
	if err != nil {
		return errors.Trace(err)
	}
	jm.ReportCheckpointError(pipelineID, cause)
	return nil
}

// CancelJob requests cancellation of a registered job.
func (m *JobManager) CancelJob(jobID model.JobID) error {
	jm, err := m.Master(jobID)
	if err != nil {
		return errors.Trace(err)
	}
	jm.CancelJob()
	return nil
}

// Close interrupts every running job and waits for their run loops to
// return. Interrupted jobs stay restorable.
func (m *JobManager) Close() {
	for _, jm := range m.Masters() {
		if jm.IsRunning() {
			jm.Interrupt()
		}
	}
	m.wg.Wait()
}
