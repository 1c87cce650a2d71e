package checkpoint

import "github.com/voidking/incubator-seatunnel/model"

// Plan describes which task groups of one pipeline take part in the barrier
// protocol. Built once alongside the physical plan, immutable afterward.
type Plan struct {
	PipelineID model.PipelineID
	// BarrierInjectTaskGroups are the source side task groups a barrier is
	// injected into.
	BarrierInjectTaskGroups []model.TaskGroupLocation
	// BarrierCollectTaskGroups are the sink side task groups whose barrier
	// arrival completes a snapshot.
	BarrierCollectTaskGroups []model.TaskGroupLocation
}
