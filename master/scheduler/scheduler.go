package scheduler

import (
	"context"

	"github.com/voidking/incubator-seatunnel/master/plan"
	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

// OwnedSlotsRecorder persists the slot profiles granted to a pipeline so that
// checkpoint coordinators on other nodes can locate its task groups. The
// implementation must not return until the written profiles are readable.
type OwnedSlotsRecorder interface {
	SetOwnedSlotProfiles(
		ctx context.Context,
		pipelineLocation model.PipelineLocation,
		profiles map[model.TaskGroupLocation]model.SlotProfile,
	) error
}

// JobScheduler turns the pipelines of a physical plan into deployed task
// groups.
type JobScheduler interface {
	// StartScheduling schedules every pipeline of the plan in pipeline id
	// order and returns the first error encountered. A pipeline that fails
	// to schedule is canceled with the scheduling error recorded as its
	// failure cause before the error is returned.
	StartScheduling(ctx context.Context) error

	// ReschedulePipeline schedules a single pipeline asynchronously and
	// returns a future that resolves once the pipeline is running, or fails
	// with the scheduling error.
	ReschedulePipeline(ctx context.Context, pipeline *plan.Pipeline) *promise.Future[struct{}]
}
