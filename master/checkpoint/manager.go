package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/autoid"
	"github.com/voidking/incubator-seatunnel/pkg/clock"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

// CompletedCheckpoint is the record of one finished snapshot of a pipeline.
type CompletedCheckpoint struct {
	JobID         model.JobID      `json:"job_id"`
	PipelineID    model.PipelineID `json:"pipeline_id"`
	CheckpointID  string           `json:"checkpoint_id"`
	TriggerTime   time.Time        `json:"trigger_time"`
	CompletedTime time.Time        `json:"completed_time"`
	IsSavepoint   bool             `json:"is_savepoint"`
}

// CheckpointErrorReporter receives unrecoverable checkpoint failures. The job
// coordinator implements it by canceling the owning pipeline.
type CheckpointErrorReporter interface {
	HandleCheckpointError(pipelineID model.PipelineID, cause error)
}

type pendingSavepoint struct {
	checkpointID string
	triggerTime  time.Time
	p            *promise.Promise[CompletedCheckpoint]
}

// Manager keeps the coordinator side bookkeeping of the checkpoint protocol:
// the per pipeline barrier plans, the resolved config, and in flight
// savepoints. Barrier alignment and snapshot storage stay with the workers
// and the storage plugin.
type Manager struct {
	jobID              model.JobID
	startWithSavepoint bool
	reporter           CheckpointErrorReporter
	plans              map[model.PipelineID]*Plan
	cfg                Config
	ids                *autoid.UUIDAllocator
	clk                clock.Clock

	mu      sync.Mutex
	pending map[model.PipelineID]*pendingSavepoint
}

func NewManager(
	jobID model.JobID,
	startWithSavepoint bool,
	reporter CheckpointErrorReporter,
	plans map[model.PipelineID]*Plan,
	cfg Config,
	ids *autoid.UUIDAllocator,
) *Manager {
	log.L().Info("checkpoint manager created",
		zap.Int64("job-id", int64(jobID)),
		zap.Bool("start-with-savepoint", startWithSavepoint),
		zap.Int64("interval-ms", cfg.CheckpointInterval),
		zap.Int("pipelines", len(plans)))
	return &Manager{
		jobID:              jobID,
		startWithSavepoint: startWithSavepoint,
		reporter:           reporter,
		plans:              plans,
		cfg:                cfg,
		ids:                ids,
		clk:                clock.New(),
		pending:            make(map[model.PipelineID]*pendingSavepoint),
	}
}

// Config returns the job's resolved checkpoint config.
func (m *Manager) Config() Config {
	return m.cfg
}

// PlanOf returns the barrier plan of one pipeline.
func (m *Manager) PlanOf(pipelineID model.PipelineID) (*Plan, bool) {
	plan, ok := m.plans[pipelineID]
	return plan, ok
}

// StartWithSavepoint reports whether the job restores from a savepoint.
func (m *Manager) StartWithSavepoint() bool {
	return m.startWithSavepoint
}

// TriggerSavepoints starts one savepoint per pipeline and returns the
// completion futures ordered by pipeline id. A pipeline whose savepoint is
// already in flight keeps its existing future.
func (m *Manager) TriggerSavepoints() []*promise.Future[CompletedCheckpoint] {
	m.mu.Lock()
	defer m.mu.Unlock()

	pipelineIDs := make([]model.PipelineID, 0, len(m.plans))
	for pipelineID := range m.plans {
		pipelineIDs = append(pipelineIDs, pipelineID)
	}
	sort.Slice(pipelineIDs, func(i, j int) bool { return pipelineIDs[i] < pipelineIDs[j] })

	futures := make([]*promise.Future[CompletedCheckpoint], 0, len(pipelineIDs))
	for _, pipelineID := range pipelineIDs {
		if inflight, ok := m.pending[pipelineID]; ok {
			futures = append(futures, inflight.p.Future())
			continue
		}
		entry := &pendingSavepoint{
			checkpointID: m.ids.AllocID(),
			triggerTime:  m.clk.Now(),
			p:            promise.NewPromise[CompletedCheckpoint](),
		}
		m.pending[pipelineID] = entry
		log.L().Info("savepoint triggered",
			zap.Int64("job-id", int64(m.jobID)),
			zap.Int32("pipeline-id", int32(pipelineID)),
			zap.String("checkpoint-id", entry.checkpointID))
		futures = append(futures, entry.p.Future())
	}
	return futures
}

// AcknowledgeSavepoint resolves the pending savepoint of the pipeline. The
// manager stamps the identity fields, the caller supplies completion details.
// Unknown pipeline or no savepoint in flight is ErrPendingCheckpointNotFound.
func (m *Manager) AcknowledgeSavepoint(pipelineID model.PipelineID, completed CompletedCheckpoint) error {
	m.mu.Lock()
	inflight, ok := m.pending[pipelineID]
	if !ok {
		m.mu.Unlock()
		return derror.ErrPendingCheckpointNotFound.GenWithStackByArgs(pipelineID)
	}
	delete(m.pending, pipelineID)
	m.mu.Unlock()

	completed.JobID = m.jobID
	completed.PipelineID = pipelineID
	completed.IsSavepoint = true
	completed.CheckpointID = inflight.checkpointID
	completed.TriggerTime = inflight.triggerTime
	if completed.CompletedTime.IsZero() {
		completed.CompletedTime = m.clk.Now()
	}
	log.L().Info("savepoint completed",
		zap.Int64("job-id", int64(m.jobID)),
		zap.Int32("pipeline-id", int32(pipelineID)),
		zap.String("checkpoint-id", completed.CheckpointID))
	inflight.p.Complete(completed)
	return nil
}

// ReportCheckpointError forwards an unrecoverable checkpoint failure to the
// reporter and fails the pipeline's pending savepoint if one is in flight.
func (m *Manager) ReportCheckpointError(pipelineID model.PipelineID, cause error) {
	log.L().Warn("checkpoint error reported",
		zap.Int64("job-id", int64(m.jobID)),
		zap.Int32("pipeline-id", int32(pipelineID)),
		zap.Error(cause))

	m.mu.Lock()
	inflight, ok := m.pending[pipelineID]
	if ok {
		delete(m.pending, pipelineID)
	}
	m.mu.Unlock()
	if ok {
		inflight.p.Fail(cause)
	}

	m.reporter.HandleCheckpointError(pipelineID, cause)
}

// PendingSavepoints returns the number of savepoints in flight.
func (m *Manager) PendingSavepoints() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
