package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/tiflow/pkg/workerpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/dag"
	"github.com/voidking/incubator-seatunnel/master/plan"
	"github.com/voidking/incubator-seatunnel/master/resourcemanager"
	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/autoid"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSlots struct {
	mu      sync.Mutex
	records map[model.PipelineLocation]map[model.TaskGroupLocation]model.SlotProfile
	nextErr error
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{records: make(map[model.PipelineLocation]map[model.TaskGroupLocation]model.SlotProfile)}
}

func (s *fakeSlots) SetOwnedSlotProfiles(
	_ context.Context,
	loc model.PipelineLocation,
	profiles map[model.TaskGroupLocation]model.SlotProfile,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		return err
	}
	s.records[loc] = profiles
	return nil
}

func (s *fakeSlots) profilesOf(loc model.PipelineLocation) map[model.TaskGroupLocation]model.SlotProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[loc]
}

// ackingOwner acks remote cancels immediately, like a worker that tears the
// task group down as soon as it is told to.
type ackingOwner struct {
	physicalPlan *plan.PhysicalPlan

	mu       sync.Mutex
	released []model.PipelineLocation
	canceled []model.TaskGroupLocation
}

func (o *ackingOwner) ReleasePipelineResource(_ context.Context, pipeline *plan.Pipeline) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released = append(o.released, pipeline.Location())
	return nil
}

func (o *ackingOwner) SavePipelineMetricsToHistory(context.Context, model.PipelineLocation) error {
	return nil
}

func (o *ackingOwner) CancelTaskGroup(_ context.Context, loc model.TaskGroupLocation) error {
	o.mu.Lock()
	o.canceled = append(o.canceled, loc)
	o.mu.Unlock()
	for _, pipeline := range o.physicalPlan.Pipelines() {
		for _, v := range pipeline.Vertices() {
			if v.TaskGroupLocation() == loc {
				v.UpdateState(model.ExecutionStateCanceled, "")
			}
		}
	}
	return nil
}

func (o *ackingOwner) cancelCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.canceled)
}

func (o *ackingOwner) releaseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.released)
}

func schedulerTestDAG(jobID model.JobID) *dag.LogicalDAG {
	return &dag.LogicalDAG{
		JobID: jobID,
		Vertexes: []*dag.LogicalVertex{
			{ID: 1, Name: "fake-source", ConnectorType: dag.ConnectorSource, PluginName: "connector-fake", Parallelism: 1},
			{ID: 2, Name: "console-sink", ConnectorType: dag.ConnectorSink, PluginName: "connector-console", Parallelism: 1},
		},
		Edges: []dag.LogicalEdge{{From: 1, To: 2}},
	}
}

func schedulerTwoComponentDAG(jobID model.JobID) *dag.LogicalDAG {
	d := schedulerTestDAG(jobID)
	d.Vertexes = append(d.Vertexes,
		&dag.LogicalVertex{ID: 10, Name: "src-b", ConnectorType: dag.ConnectorSource, PluginName: "connector-fake", Parallelism: 1},
		&dag.LogicalVertex{ID: 11, Name: "sink-b", ConnectorType: dag.ConnectorSink, PluginName: "connector-console", Parallelism: 1})
	d.Edges = append(d.Edges, dag.LogicalEdge{From: 10, To: 11})
	return d
}

func buildSchedulerPlan(t *testing.T, logical *dag.LogicalDAG) *plan.PhysicalPlan {
	t.Helper()
	info := &model.JobImmutableInfo{JobID: logical.JobID, Name: "sched-job"}
	p, _, err := plan.FromLogicalDAG(logical, info, time.Now().UnixMilli(),
		autoid.NewIDAllocator(int64(logical.JobID)), nil)
	require.NoError(t, err)
	return p
}

func runPool(t *testing.T, pool workerpool.AsyncPool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pool.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func awaitJobResult(t *testing.T, p *plan.PhysicalPlan) model.JobResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := p.CompletionFuture().Await(ctx)
	require.NoError(t, err)
	return result
}

func TestStartSchedulingDeploysAllPipelines(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTwoComponentDAG(21))

	resources := resourcemanager.NewSimpleResourceManager()
	resources.RegisterWorker("worker-1:5801", 4)
	resources.RegisterWorker("worker-2:5801", 4)
	operator := client.NewMockTaskOperator()
	slots := newFakeSlots()

	var deployMu sync.Mutex
	deployments := make([]client.TaskGroupDeployment, 0, 6)
	operator.DeployFn = func(_ model.WorkerAddress, deployment client.TaskGroupDeployment) error {
		deployMu.Lock()
		defer deployMu.Unlock()
		deployments = append(deployments, deployment)
		return nil
	}

	sched := NewPipelineBaseScheduler(p, resources, operator, slots, workerpool.NewDefaultAsyncPool(1))
	require.NoError(t, sched.StartScheduling(context.Background()))

	require.Equal(t, model.JobStatusRunning, p.JobStatus())
	for _, pipeline := range p.Pipelines() {
		require.Equal(t, model.PipelineStatusRunning, pipeline.Status())
		for _, v := range pipeline.Vertices() {
			require.Equal(t, model.ExecutionStateRunning, v.State())
		}
		got := slots.profilesOf(pipeline.Location())
		require.Len(t, got, 3)
	}

	require.Len(t, operator.CallsOf(client.OpDeploy), 6)
	require.Len(t, deployments, 6)
	for _, deployment := range deployments {
		require.NotEmpty(t, deployment.PluginName)
	}
	require.Equal(t, 2, resources.FreeSlots())
}

func TestStartSchedulingFailsWhenResourcesExhausted(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTestDAG(22))

	resources := resourcemanager.NewSimpleResourceManager()
	resources.RegisterWorker("worker-1:5801", 2) // pipeline needs 3 slots

	sched := NewPipelineBaseScheduler(p, resources, client.NewMockTaskOperator(),
		newFakeSlots(), workerpool.NewDefaultAsyncPool(1))
	err := sched.StartScheduling(context.Background())
	require.Error(t, err)
	require.True(t, derror.ErrPipelineScheduleFailed.Equal(err))

	result := awaitJobResult(t, p)
	require.Equal(t, model.JobStatusFailing, result.Status)
	require.Contains(t, result.Error, "resource not enough")
	require.Equal(t, model.PipelineStatusCanceled, p.Pipelines()[0].Status())
	require.Equal(t, 2, resources.FreeSlots())
}

func TestStartSchedulingDeployErrorCancelsPipeline(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTestDAG(23))
	owner := &ackingOwner{physicalPlan: p}
	p.SetOwner(owner)

	resources := resourcemanager.NewSimpleResourceManager()
	resources.RegisterWorker("worker-1:5801", 3)
	operator := client.NewMockTaskOperator()
	operator.DeployFn = func(_ model.WorkerAddress, deployment client.TaskGroupDeployment) error {
		if deployment.PluginName == "connector-console" {
			return derror.ErrTaskGroupOpFail.GenWithStackByArgs(client.OpDeploy, "worker-1:5801")
		}
		return nil
	}

	sched := NewPipelineBaseScheduler(p, resources, operator, newFakeSlots(),
		workerpool.NewDefaultAsyncPool(1))
	err := sched.StartScheduling(context.Background())
	require.Error(t, err)
	require.True(t, derror.ErrPipelineScheduleFailed.Equal(err))

	result := awaitJobResult(t, p)
	require.Equal(t, model.JobStatusFailing, result.Status)
	require.Contains(t, result.Error, "operation deploy")

	// the coordinator and source were already running, the sink was mid
	// deploy, all three get a remote cancel
	require.Equal(t, 3, owner.cancelCount())
	require.Equal(t, 1, owner.releaseCount())
}

func TestStartSchedulingFailsWhenSlotSyncFails(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTestDAG(24))
	owner := &ackingOwner{physicalPlan: p}
	p.SetOwner(owner)

	resources := resourcemanager.NewSimpleResourceManager()
	resources.RegisterWorker("worker-1:5801", 3)
	slots := newFakeSlots()
	slots.nextErr = derror.ErrSlotProfileSyncFail.GenWithStackByArgs("1/1")

	sched := NewPipelineBaseScheduler(p, resources, client.NewMockTaskOperator(), slots,
		workerpool.NewDefaultAsyncPool(1))
	err := sched.StartScheduling(context.Background())
	require.Error(t, err)
	require.True(t, derror.ErrPipelineScheduleFailed.Equal(err))

	result := awaitJobResult(t, p)
	require.Equal(t, model.JobStatusFailing, result.Status)
	require.Contains(t, result.Error, "slot profiles")
	require.Zero(t, owner.cancelCount()) // nothing was deployed yet
}

func TestReschedulePipelineRunsAsync(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTestDAG(25))
	require.True(t, p.UpdateJobState(model.JobStatusCreated, model.JobStatusScheduled))

	resources := resourcemanager.NewSimpleResourceManager()
	resources.RegisterWorker("worker-1:5801", 3)
	operator := client.NewMockTaskOperator()
	pool := workerpool.NewDefaultAsyncPool(2)
	runPool(t, pool)

	sched := NewPipelineBaseScheduler(p, resources, operator, newFakeSlots(), pool)
	fut := sched.ReschedulePipeline(context.Background(), p.Pipelines()[0])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusRunning, p.JobStatus())
	require.Len(t, operator.CallsOf(client.OpDeploy), 3)
}

func TestReschedulePipelineFailurePropagates(t *testing.T) {
	p := buildSchedulerPlan(t, schedulerTestDAG(26))
	require.True(t, p.UpdateJobState(model.JobStatusCreated, model.JobStatusScheduled))

	resources := resourcemanager.NewSimpleResourceManager() // no workers at all
	pool := workerpool.NewDefaultAsyncPool(2)
	runPool(t, pool)

	sched := NewPipelineBaseScheduler(p, resources, client.NewMockTaskOperator(),
		newFakeSlots(), pool)
	fut := sched.ReschedulePipeline(context.Background(), p.Pipelines()[0])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	require.Error(t, err)
	require.True(t, derror.ErrPipelineScheduleFailed.Equal(err))
}
