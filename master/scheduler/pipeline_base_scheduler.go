package scheduler

import (
	"context"

	"github.com/edwingeng/deque"
	"github.com/pingcap/errors"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/pingcap/tiflow/pkg/workerpool"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/master/plan"
	"github.com/voidking/incubator-seatunnel/master/resourcemanager"
	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

// PipelineBaseScheduler schedules a physical plan one pipeline at a time:
// grab slots for the whole pipeline, record who owns them, then deploy the
// task groups onto their granted workers.
type PipelineBaseScheduler struct {
	physicalPlan *plan.PhysicalPlan
	resources    resourcemanager.ResourceManager
	operator     client.TaskOperator
	slots        OwnedSlotsRecorder

	pool workerpool.AsyncPool
}

// NewPipelineBaseScheduler returns a scheduler for the given plan.
// NOTE: the pool is owned by the caller.
func NewPipelineBaseScheduler(
	physicalPlan *plan.PhysicalPlan,
	resources resourcemanager.ResourceManager,
	operator client.TaskOperator,
	slots OwnedSlotsRecorder,
	pool workerpool.AsyncPool,
) *PipelineBaseScheduler {
	return &PipelineBaseScheduler{
		physicalPlan: physicalPlan,
		resources:    resources,
		operator:     operator,
		slots:        slots,
		pool:         pool,
	}
}

// StartScheduling implements JobScheduler.
func (s *PipelineBaseScheduler) StartScheduling(ctx context.Context) error {
	if !s.physicalPlan.UpdateJobState(model.JobStatusCreated, model.JobStatusScheduled) {
		log.L().Info("job is not freshly created, scheduling on the current state",
			zap.Stringer("job-id", s.physicalPlan.JobID()),
			zap.Stringer("status", s.physicalPlan.JobStatus()))
	}

	pending := deque.NewDeque()
	for _, pipeline := range s.physicalPlan.Pipelines() {
		pending.PushBack(pipeline)
	}
	for !pending.Empty() {
		pipeline := pending.Dequeue().(*plan.Pipeline)
		if err := s.schedulePipeline(ctx, pipeline); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReschedulePipeline implements JobScheduler.
func (s *PipelineBaseScheduler) ReschedulePipeline(ctx context.Context, pipeline *plan.Pipeline) *promise.Future[struct{}] {
	pm := promise.NewPromise[struct{}]()
	err := s.pool.Go(ctx, func() {
		if err := s.schedulePipeline(ctx, pipeline); err != nil {
			pm.Fail(err)
			return
		}
		pm.Complete(struct{}{})
	})
	if err != nil {
		pm.Fail(errors.Trace(err))
	}
	return pm.Future()
}

func (s *PipelineBaseScheduler) schedulePipeline(ctx context.Context, pipeline *plan.Pipeline) error {
	if err := s.doSchedule(ctx, pipeline); err != nil {
		log.L().Warn("pipeline scheduling failed",
			zap.String("pipeline", pipeline.FullName()),
			zap.Error(err))
		pipeline.CancelWithFailure(err)
		return derror.WrapError(derror.ErrPipelineScheduleFailed, err, pipeline.FullName())
	}
	return nil
}

func (s *PipelineBaseScheduler) doSchedule(ctx context.Context, pipeline *plan.Pipeline) error {
	if !pipeline.UpdateState(model.PipelineStatusCreated, model.PipelineStatusScheduled) {
		// canceled before the scheduler got to it
		log.L().Info("pipeline is no longer schedulable, skipping",
			zap.String("pipeline", pipeline.FullName()),
			zap.Stringer("status", pipeline.Status()))
		return nil
	}

	profiles, err := s.resources.ApplyResources(ctx, s.physicalPlan.JobID(), pipeline.TaskGroupLocations())
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.slots.SetOwnedSlotProfiles(ctx, pipeline.Location(), profiles); err != nil {
		return errors.Trace(err)
	}
	for _, v := range pipeline.Vertices() {
		v.UpdateState(model.ExecutionStateScheduled, "")
	}

	if !pipeline.UpdateState(model.PipelineStatusScheduled, model.PipelineStatusDeploying) {
		log.L().Info("pipeline left the scheduled state, stopping deploy",
			zap.String("pipeline", pipeline.FullName()),
			zap.Stringer("status", pipeline.Status()))
		return nil
	}
	for _, v := range pipeline.Vertices() {
		profile, ok := profiles[v.TaskGroupLocation()]
		if !ok {
			return derror.ErrSlotProfilesNotFound.GenWithStackByArgs(v.TaskGroupLocation().String())
		}
		if !v.UpdateState(model.ExecutionStateDeploying, "") {
			log.L().Info("task left the scheduled state before deploy, stopping",
				zap.String("task", v.Name()))
			return nil
		}
		deployment := client.TaskGroupDeployment{
			Location:      v.TaskGroupLocation(),
			Name:          v.Name(),
			ConnectorType: string(v.ConnectorType()),
			PluginName:    v.PluginName(),
			Options:       v.Options(),
			SlotID:        profile.SlotID,
		}
		if err := s.operator.DeployTaskGroup(ctx, profile.Worker, deployment); err != nil {
			return errors.Trace(err)
		}
		v.UpdateState(model.ExecutionStateRunning, "")
	}

	if !pipeline.UpdateState(model.PipelineStatusDeploying, model.PipelineStatusRunning) {
		log.L().Info("pipeline left the deploying state during deploy",
			zap.String("pipeline", pipeline.FullName()),
			zap.Stringer("status", pipeline.Status()))
	}
	return nil
}
