package plan

import (
	"context"
	"sync"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/model"
)

// Pipeline is one schedulable unit of the physical plan: a coordination seat
// plus the data tasks of one connected component of the logical graph. It is
// the checkpoint and cancellation granularity.
type Pipeline struct {
	location              model.PipelineLocation
	fullName              string
	plan                  *PhysicalPlan
	coordinatorVertexList []*PhysicalVertex
	physicalVertexList    []*PhysicalVertex

	mu       sync.Mutex
	status   model.PipelineStatus
	cause    string
	ended    int
	finished int
	failed   int
	canceled int
}

func newPipeline(location model.PipelineLocation, fullName string,
	coordinators, physicals []*PhysicalVertex) *Pipeline {
	p := &Pipeline{
		location:              location,
		fullName:              fullName,
		coordinatorVertexList: coordinators,
		physicalVertexList:    physicals,
		status:                model.PipelineStatusCreated,
	}
	for _, v := range coordinators {
		v.pipeline = p
	}
	for _, v := range physicals {
		v.pipeline = p
	}
	return p
}

// Location returns the pipeline's cluster wide identity.
func (p *Pipeline) Location() model.PipelineLocation { return p.location }

// FullName returns the pipeline's display name.
func (p *Pipeline) FullName() string { return p.fullName }

// CoordinatorVertexList returns the coordination seats of the pipeline.
func (p *Pipeline) CoordinatorVertexList() []*PhysicalVertex { return p.coordinatorVertexList }

// PhysicalVertexList returns the data tasks of the pipeline.
func (p *Pipeline) PhysicalVertexList() []*PhysicalVertex { return p.physicalVertexList }

// Vertices returns every vertex of the pipeline, coordination seats first.
func (p *Pipeline) Vertices() []*PhysicalVertex {
	all := make([]*PhysicalVertex, 0, len(p.coordinatorVertexList)+len(p.physicalVertexList))
	all = append(all, p.coordinatorVertexList...)
	all = append(all, p.physicalVertexList...)
	return all
}

// TaskGroupLocations returns the locations of every vertex, in vertex order.
func (p *Pipeline) TaskGroupLocations() []model.TaskGroupLocation {
	vertices := p.Vertices()
	locs := make([]model.TaskGroupLocation, 0, len(vertices))
	for _, v := range vertices {
		locs = append(locs, v.TaskGroupLocation())
	}
	return locs
}

// Status returns the pipeline's current status.
func (p *Pipeline) Status() model.PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Cause returns the first captured failure message, empty when none.
func (p *Pipeline) Cause() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cause
}

// UpdateState moves the pipeline from one status to another. It fails when
// the pipeline is not in the expected status or the transition is illegal.
// The scheduler drives CREATED through RUNNING with it.
func (p *Pipeline) UpdateState(from, to model.PipelineStatus) bool {
	p.mu.Lock()
	if p.status != from || !from.CanTransitTo(to) {
		current := p.status
		p.mu.Unlock()
		log.L().Warn("pipeline state transition rejected",
			zap.String("pipeline", p.fullName),
			zap.Stringer("current", current),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		return false
	}
	p.status = to
	p.mu.Unlock()

	log.L().Info("pipeline state transition",
		zap.String("pipeline", p.fullName),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	p.touch()
	if to == model.PipelineStatusRunning {
		p.plan.onPipelineRunning()
	}
	return true
}

// Cancel requests the pipeline to stop. Vertices not yet handed to a worker
// are canceled locally; deployed ones are canceled through the owner's remote
// cancel operation and stay CANCELING until the worker reports a terminal
// state. Repeated calls are no-ops.
func (p *Pipeline) Cancel() {
	p.cancelWithCause(nil)
}

// CancelWithFailure cancels the pipeline and records the failure that forced
// the cancellation, so the job as a whole counts this pipeline as failed.
// Used for unrecoverable checkpoint errors and scheduling failures.
func (p *Pipeline) CancelWithFailure(cause error) {
	p.cancelWithCause(cause)
}

func (p *Pipeline) cancelWithCause(cause error) {
	p.mu.Lock()
	if cause != nil && p.cause == "" {
		p.cause = cause.Error()
	}
	if p.status.IsEndState() ||
		p.status == model.PipelineStatusCanceling ||
		p.status == model.PipelineStatusFailing {
		p.mu.Unlock()
		return
	}
	from := p.status
	p.status = model.PipelineStatusCanceling
	p.mu.Unlock()

	log.L().Info("canceling pipeline",
		zap.String("pipeline", p.fullName),
		zap.Stringer("from", from),
		zap.Error(cause))
	p.touch()
	p.cancelVertices()
}

// cancelVertices drives every non-terminal vertex toward CANCELED. Must be
// called without holding p.mu.
func (p *Pipeline) cancelVertices() {
	for _, v := range p.Vertices() {
		switch v.State() {
		case model.ExecutionStateCreated, model.ExecutionStateScheduled:
			v.UpdateState(model.ExecutionStateCanceled, "")
		case model.ExecutionStateDeploying, model.ExecutionStateRunning:
			if !v.UpdateState(model.ExecutionStateCanceling, "") {
				continue
			}
			owner := p.plan.owner()
			if owner == nil {
				v.UpdateState(model.ExecutionStateCanceled, "")
				continue
			}
			if err := owner.CancelTaskGroup(context.Background(), v.TaskGroupLocation()); err != nil {
				log.L().Warn("remote task group cancel failed, marking the task canceled",
					zap.String("task", v.Name()),
					zap.Stringer("location", v.TaskGroupLocation()),
					zap.Error(err))
				// the worker is unreachable, nobody will report a terminal
				// state for this task anymore
				v.UpdateState(model.ExecutionStateCanceled, "")
			}
		}
	}
}

// touch refreshes the shared running-state timestamp after a transition.
func (p *Pipeline) touch() {
	p.plan.recorder.Touch()
}

// onVertexTerminal accounts one vertex reaching a terminal state. The first
// vertex failure flips the pipeline to FAILING and cancels its siblings; the
// last terminal vertex ends the pipeline.
func (p *Pipeline) onVertexTerminal(v *PhysicalVertex, state model.ExecutionState) {
	p.mu.Lock()
	p.ended++
	switch state {
	case model.ExecutionStateFinished:
		p.finished++
	case model.ExecutionStateFailed:
		p.failed++
		if p.cause == "" {
			p.cause = v.Error()
		}
	case model.ExecutionStateCanceled:
		p.canceled++
	}

	needFail := state == model.ExecutionStateFailed &&
		p.status != model.PipelineStatusCanceling &&
		p.status != model.PipelineStatusFailing &&
		!p.status.IsEndState()
	if needFail {
		from := p.status
		p.status = model.PipelineStatusFailing
		log.L().Warn("pipeline failing on task failure",
			zap.String("pipeline", p.fullName),
			zap.String("task", v.Name()),
			zap.Stringer("from", from),
			zap.String("cause", p.cause))
	}

	total := len(p.coordinatorVertexList) + len(p.physicalVertexList)
	allEnded := p.ended == total
	var end model.PipelineStatus
	if allEnded {
		switch p.status {
		case model.PipelineStatusFailing:
			end = model.PipelineStatusFailed
		case model.PipelineStatusCanceling:
			end = model.PipelineStatusCanceled
		default:
			end = model.PipelineStatusFinished
		}
		p.status = end
	}
	cause := p.cause
	p.mu.Unlock()

	if needFail {
		p.touch()
		p.cancelVertices()
	}
	if allEnded {
		p.finish(end, cause)
	}
}

// finish runs the end-of-pipeline duties: archive metrics for a finished
// pipeline, release its slots, then report the terminal status to the plan.
func (p *Pipeline) finish(end model.PipelineStatus, cause string) {
	log.L().Info("pipeline reached end state",
		zap.String("pipeline", p.fullName),
		zap.Stringer("status", end),
		zap.String("cause", cause))
	p.touch()

	if owner := p.plan.owner(); owner != nil {
		if end == model.PipelineStatusFinished {
			if err := owner.SavePipelineMetricsToHistory(context.Background(), p.location); err != nil {
				log.L().Warn("archiving pipeline metrics failed",
					zap.String("pipeline", p.fullName), zap.Error(err))
			}
		}
		if err := owner.ReleasePipelineResource(context.Background(), p); err != nil {
			log.L().Warn("releasing pipeline resources failed",
				zap.String("pipeline", p.fullName), zap.Error(err))
		}
	}
	p.plan.onPipelineEnd(end, cause)
}
