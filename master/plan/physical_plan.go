package plan

import (
	"context"
	"sync"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

// StateRecorder persists job state transitions into the shared running-state
// tables. It is called with the plan lock held, so implementations must log
// failures instead of calling back into the plan.
type StateRecorder interface {
	MarkJobState(status model.JobStatus)
	Touch()
}

type nopRecorder struct{}

func (nopRecorder) MarkJobState(model.JobStatus) {}
func (nopRecorder) Touch()                       {}

// NopRecorder discards all state records, for plans without shared tables.
var NopRecorder StateRecorder = nopRecorder{}

// Owner receives lifecycle callbacks from the plan. The job coordinator
// implements it: releasing pipeline slots, archiving metrics of finished
// pipelines, and canceling deployed task groups on their workers.
type Owner interface {
	ReleasePipelineResource(ctx context.Context, pipeline *Pipeline) error
	SavePipelineMetricsToHistory(ctx context.Context, loc model.PipelineLocation) error
	CancelTaskGroup(ctx context.Context, loc model.TaskGroupLocation) error
}

// PhysicalPlan is the runnable decomposition of one job into pipelines, and
// the single place the aggregate job status lives.
type PhysicalPlan struct {
	jobID         model.JobID
	jobFullName   string
	initTimestamp int64
	pipelines     []*Pipeline
	recorder      StateRecorder
	neverRestore  *atomic.Bool
	completion    *promise.Promise[model.JobResult]

	mu            sync.Mutex
	status        model.JobStatus
	ownerRef      Owner
	ended         int
	failedCount   int
	canceledCount int
	cause         string
}

// NewPhysicalPlan assembles a plan from built pipelines. The initial CREATED
// status is recorded right away.
func NewPhysicalPlan(
	jobID model.JobID,
	jobFullName string,
	initTimestamp int64,
	pipelines []*Pipeline,
	recorder StateRecorder,
) *PhysicalPlan {
	if recorder == nil {
		recorder = NopRecorder
	}
	p := &PhysicalPlan{
		jobID:         jobID,
		jobFullName:   jobFullName,
		initTimestamp: initTimestamp,
		pipelines:     pipelines,
		recorder:      recorder,
		neverRestore:  atomic.NewBool(false),
		completion:    promise.NewPromise[model.JobResult](),
		status:        model.JobStatusCreated,
	}
	for _, pipeline := range pipelines {
		pipeline.plan = p
	}
	recorder.MarkJobState(model.JobStatusCreated)
	return p
}

// JobID returns the job's id.
func (p *PhysicalPlan) JobID() model.JobID { return p.jobID }

// JobFullName returns the job's display name.
func (p *PhysicalPlan) JobFullName() string { return p.jobFullName }

// InitializationTimestamp returns the submission timestamp the plan was built
// with.
func (p *PhysicalPlan) InitializationTimestamp() int64 { return p.initTimestamp }

// Pipelines returns the plan's pipelines in pipeline id order.
func (p *PhysicalPlan) Pipelines() []*Pipeline {
	return append([]*Pipeline(nil), p.pipelines...)
}

// JobStatus returns the aggregate job status.
func (p *PhysicalPlan) JobStatus() model.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetOwner binds the coordinator callbacks. Must be called before scheduling
// starts.
func (p *PhysicalPlan) SetOwner(owner Owner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ownerRef = owner
}

func (p *PhysicalPlan) owner() Owner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ownerRef
}

// CompletionFuture returns the read-only handle resolving exactly once when
// the job reaches FAILING, CANCELED or FINISHED. The coordinator converts
// FAILING into FAILED after cleanup.
func (p *PhysicalPlan) CompletionFuture() *promise.Future[model.JobResult] {
	return p.completion.Future()
}

// NeverNeedRestore forbids restoring this job on a successor coordinator.
// Set on explicit cancellation.
func (p *PhysicalPlan) NeverNeedRestore() {
	p.neverRestore.Store(true)
}

// NeedRestore reports whether a successor may resume this job.
func (p *PhysicalPlan) NeedRestore() bool {
	return !p.neverRestore.Load()
}

// UpdateJobState moves the job from one status to another, failing when the
// job is not in the expected status or the transition is illegal.
func (p *PhysicalPlan) UpdateJobState(from, to model.JobStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != from || !from.CanTransitTo(to) {
		log.L().Warn("job state transition rejected",
			zap.String("job", p.jobFullName),
			zap.Stringer("current", p.status),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		return false
	}
	p.setJobStateLocked(to)
	return true
}

func (p *PhysicalPlan) setJobStateLocked(to model.JobStatus) {
	from := p.status
	p.status = to
	log.L().Info("job state transition",
		zap.String("job", p.jobFullName),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	p.recorder.MarkJobState(to)
}

// turnToFinalLocked drives the job into its final status, forcing the
// transition when a race left the job in an unexpected intermediate status.
func (p *PhysicalPlan) turnToFinalLocked(final model.JobStatus) {
	if p.status == final {
		return
	}
	if !p.status.CanTransitTo(final) {
		log.L().Warn("forcing job end state",
			zap.String("job", p.jobFullName),
			zap.Stringer("current", p.status),
			zap.Stringer("final", final))
	}
	p.setJobStateLocked(final)
}

// CancelJob marks the job never-to-be-restored and cascades cancellation to
// every pipeline. Safe to call repeatedly; pipelines already terminal are
// left alone, so slots are never released twice.
func (p *PhysicalPlan) CancelJob() {
	p.NeverNeedRestore()

	p.mu.Lock()
	if p.status.IsEndState() || p.status == model.JobStatusFailing {
		status := p.status
		p.mu.Unlock()
		log.L().Info("cancel skipped, job already ending",
			zap.String("job", p.jobFullName),
			zap.Stringer("status", status))
		return
	}
	if p.status != model.JobStatusCanceling {
		p.setJobStateLocked(model.JobStatusCanceling)
	}
	p.mu.Unlock()

	for _, pipeline := range p.pipelines {
		pipeline.Cancel()
	}
}

// onPipelineRunning flips the job to RUNNING once every pipeline runs.
func (p *PhysicalPlan) onPipelineRunning() {
	for _, pipeline := range p.pipelines {
		if pipeline.Status() != model.PipelineStatusRunning {
			return
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == model.JobStatusScheduled {
		p.setJobStateLocked(model.JobStatusRunning)
	}
}

// onPipelineEnd accounts one pipeline reaching a terminal status. A pipeline
// that failed, or was canceled because of a failure, counts as failed. The
// last ending pipeline decides the job's fate: any failure wins FAILING,
// then cancellation wins CANCELED, otherwise FINISHED.
func (p *PhysicalPlan) onPipelineEnd(end model.PipelineStatus, cause string) {
	p.mu.Lock()
	p.ended++
	countsFailed := end == model.PipelineStatusFailed ||
		(end == model.PipelineStatusCanceled && cause != "")
	switch {
	case countsFailed:
		p.failedCount++
		if p.cause == "" {
			p.cause = cause
		}
	case end == model.PipelineStatusCanceled:
		p.canceledCount++
	}

	if countsFailed && p.status != model.JobStatusFailing &&
		p.status != model.JobStatusCanceling && !p.status.IsEndState() {
		p.setJobStateLocked(model.JobStatusFailing)
	}

	var result *model.JobResult
	if p.ended == len(p.pipelines) {
		var final model.JobStatus
		switch {
		case p.failedCount > 0:
			final = model.JobStatusFailing
		case p.canceledCount > 0:
			final = model.JobStatusCanceled
		default:
			final = model.JobStatusFinished
		}
		p.turnToFinalLocked(final)
		result = &model.JobResult{Status: final, Error: p.cause}
	}
	p.mu.Unlock()

	if result != nil {
		p.completion.Complete(*result)
	}
}
