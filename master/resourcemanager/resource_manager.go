package resourcemanager

import (
	"context"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/promise"
)

// ResourceManager grants execution slots to task groups and reclaims them
// when the owning pipeline ends.
type ResourceManager interface {
	// ApplyResources grants one slot per requested task group. The grant is
	// all or nothing: when the cluster cannot seat every task group the pool
	// is left untouched and ErrResourceNotEnough is returned.
	ApplyResources(ctx context.Context, jobID model.JobID, locations []model.TaskGroupLocation) (map[model.TaskGroupLocation]model.SlotProfile, error)
	// ReleaseResources returns slots to the pool. The returned future
	// resolves once the release has been applied; remote implementations may
	// resolve it asynchronously.
	ReleaseResources(ctx context.Context, jobID model.JobID, profiles []model.SlotProfile) *promise.Future[struct{}]
	// WorkerCount returns the number of registered workers.
	WorkerCount() int
}
