package resourcemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

func locationsForJob(jobID model.JobID, count int) []model.TaskGroupLocation {
	locs := make([]model.TaskGroupLocation, 0, count)
	for i := 0; i < count; i++ {
		locs = append(locs, model.TaskGroupLocation{
			JobID:       jobID,
			PipelineID:  1,
			TaskGroupID: model.TaskGroupID(int64(jobID)<<32 + int64(i) + 1),
		})
	}
	return locs
}

func TestApplySpreadsOverWorkers(t *testing.T) {
	t.Parallel()

	mgr := NewSimpleResourceManager()
	mgr.RegisterWorker("worker-1:8080", 2)
	mgr.RegisterWorker("worker-2:8080", 2)
	require.Equal(t, 2, mgr.WorkerCount())

	grants, err := mgr.ApplyResources(context.Background(), 1, locationsForJob(1, 3))
	require.NoError(t, err)
	require.Len(t, grants, 3)

	perWorker := make(map[model.WorkerAddress]int)
	for _, profile := range grants {
		perWorker[profile.Worker]++
	}
	require.Equal(t, 2, perWorker["worker-1:8080"])
	require.Equal(t, 1, perWorker["worker-2:8080"])
	require.Equal(t, 1, mgr.FreeSlots())
}

func TestApplyAllOrNothing(t *testing.T) {
	t.Parallel()

	mgr := NewSimpleResourceManager()
	mgr.RegisterWorker("worker-1:8080", 2)
	mgr.RegisterWorker("worker-2:8080", 2)

	_, err := mgr.ApplyResources(context.Background(), 2, locationsForJob(2, 5))
	require.Error(t, err)
	require.True(t, derror.ErrResourceNotEnough.Equal(err))
	require.Equal(t, 4, mgr.FreeSlots())
}

func TestReleaseReturnsSlots(t *testing.T) {
	t.Parallel()

	mgr := NewSimpleResourceManager()
	mgr.RegisterWorker("worker-1:8080", 4)

	grants, err := mgr.ApplyResources(context.Background(), 3, locationsForJob(3, 4))
	require.NoError(t, err)
	require.Equal(t, 0, mgr.FreeSlots())

	profiles := make([]model.SlotProfile, 0, len(grants))
	for _, profile := range grants {
		profiles = append(profiles, profile)
	}
	_, err = mgr.ReleaseResources(context.Background(), 3, profiles).Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, mgr.FreeSlots())

	// releasing again must not free slots now owned by another job
	regrants, err := mgr.ApplyResources(context.Background(), 4, locationsForJob(4, 4))
	require.NoError(t, err)
	require.Len(t, regrants, 4)
	_, err = mgr.ReleaseResources(context.Background(), 3, profiles).Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, mgr.FreeSlots())
}

func TestUnregisterWorkerDropsCapacity(t *testing.T) {
	t.Parallel()

	mgr := NewSimpleResourceManager()
	mgr.RegisterWorker("worker-1:8080", 2)
	mgr.RegisterWorker("worker-2:8080", 2)
	mgr.UnregisterWorker("worker-1:8080")
	require.Equal(t, 1, mgr.WorkerCount())
	require.Equal(t, 2, mgr.FreeSlots())

	_, err := mgr.ApplyResources(context.Background(), 5, locationsForJob(5, 3))
	require.True(t, derror.ErrResourceNotEnough.Equal(err))
}
