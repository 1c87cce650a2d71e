package master

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/tiflow/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voidking/incubator-seatunnel/client"
	"github.com/voidking/incubator-seatunnel/config"
	"github.com/voidking/incubator-seatunnel/dag"
	"github.com/voidking/incubator-seatunnel/master/checkpoint"
	"github.com/voidking/incubator-seatunnel/master/jobhistory"
	"github.com/voidking/incubator-seatunnel/master/metadata"
	"github.com/voidking/incubator-seatunnel/master/plan"
	"github.com/voidking/incubator-seatunnel/master/resourcemanager"
	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/clock"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/promutil"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type masterHarness struct {
	kv        *statestore.Mock
	resources *resourcemanager.SimpleResourceManager
	operator  *client.MockTaskOperator
	history   *jobhistory.Store
	cfg       *config.Config
	metrics   *Metrics
}

func newMasterHarness() *masterHarness {
	kv := statestore.NewMock()
	cfg := config.NewConfig()
	cfg.SlotSyncRetryIntervalMs = 10
	return &masterHarness{
		kv:        kv,
		resources: resourcemanager.NewSimpleResourceManager(),
		operator:  client.NewMockTaskOperator(),
		history:   jobhistory.NewStore(kv),
		cfg:       cfg,
	}
}

func (h *masterHarness) registerWorkers() {
	h.resources.RegisterWorker("worker-1:5801", 4)
	h.resources.RegisterWorker("worker-2:5801", 4)
}

func (h *masterHarness) deps(t *testing.T, jobID model.JobID) Deps {
	t.Helper()
	pool := workerpool.NewDefaultAsyncPool(2)
	runPool(t, pool)
	h.metrics = NewMetrics(promutil.WithRegistry(promutil.NewRegistry(), jobID))
	return Deps{
		KV:        h.kv,
		Resources: h.resources,
		Operator:  h.operator,
		History:   h.history,
		Pool:      pool,
		ServerCfg: h.cfg,
		Metrics:   h.metrics,
	}
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

func encodeGraph(t *testing.T, graph *dag.LogicalDAG) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(graph)
	require.NoError(t, err)
	return data
}

func linearJobInfo(t *testing.T, jobID model.JobID, envOptions map[string]string) *model.JobImmutableInfo {
	t.Helper()
	graph := encodeGraph(t, &dag.LogicalDAG{
		Vertexes: []*dag.LogicalVertex{
			{ID: 1, Name: "src-a", ConnectorType: dag.ConnectorSource, PluginName: "connector-fake", Parallelism: 1},
			{ID: 2, Name: "sink-a", ConnectorType: dag.ConnectorSink, PluginName: "connector-console", Parallelism: 1},
		},
		Edges: []dag.LogicalEdge{{From: 1, To: 2}},
	})
	return &model.JobImmutableInfo{
		JobID:        jobID,
		Name:         "wordcount",
		LogicalGraph: graph,
		EnvOptions:   envOptions,
		PluginJarURLs: []string{
			"file:///opt/connectors/connector-fake.jar",
			"file:///opt/connectors/connector-console.jar",
		},
		CreateTime: 1700000000000,
	}
}

func twoPipelineJobInfo(t *testing.T, jobID model.JobID) *model.JobImmutableInfo {
	t.Helper()
	info := linearJobInfo(t, jobID, nil)
	info.LogicalGraph = encodeGraph(t, &dag.LogicalDAG{
		Vertexes: []*dag.LogicalVertex{
			{ID: 1, Name: "src-a", ConnectorType: dag.ConnectorSource, PluginName: "connector-fake", Parallelism: 1},
			{ID: 2, Name: "sink-a", ConnectorType: dag.ConnectorSink, PluginName: "connector-console", Parallelism: 1},
			{ID: 10, Name: "src-b", ConnectorType: dag.ConnectorSource, PluginName: "connector-fake", Parallelism: 1},
			{ID: 11, Name: "sink-b", ConnectorType: dag.ConnectorSink, PluginName: "connector-console", Parallelism: 1},
		},
		Edges: []dag.LogicalEdge{{From: 1, To: 2}, {From: 10, To: 11}},
	})
	return info
}

func initMaster(t *testing.T, h *masterHarness, info *model.JobImmutableInfo) *JobMaster {
	t.Helper()
	raw, err := info.Encode()
	require.NoError(t, err)
	jm := NewJobMaster(raw, h.deps(t, info.JobID))
	require.NoError(t, jm.Init(context.Background(), 1700000000001))
	return jm
}

type runResult struct {
	result model.JobResult
	err    error
}

func runMaster(jm *JobMaster) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		result, err := jm.Run(context.Background())
		ch <- runResult{result: result, err: err}
	}()
	return ch
}

func awaitRun(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("job did not settle in time")
		return runResult{}
	}
}

func waitJobRunning(t *testing.T, jm *JobMaster) {
	t.Helper()
	require.Eventually(t, func() bool {
		return jm.JobStatus() == model.JobStatusRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func finishPipeline(jm *JobMaster, pipeline *plan.Pipeline) {
	for _, v := range pipeline.Vertices() {
		jm.UpdateTaskExecutionState(model.TaskExecutionState{
			Location: v.TaskGroupLocation(),
			State:    model.ExecutionStateFinished,
		})
	}
}

func finishAllPipelines(jm *JobMaster) {
	for _, pipeline := range jm.PhysicalPlan().Pipelines() {
		finishPipeline(jm, pipeline)
	}
}

// ackCancels makes the mock worker confirm every cancel immediately, the way
// a live worker reports CANCELED back to the master.
func ackCancels(h *masterHarness, jm **JobMaster) {
	h.operator.CancelFn = func(_ model.WorkerAddress, loc model.TaskGroupLocation) error {
		(*jm).UpdateTaskExecutionState(model.TaskExecutionState{
			Location: loc,
			State:    model.ExecutionStateCanceled,
		})
		return nil
	}
}

func jobRunningState(t *testing.T, h *masterHarness, jobID model.JobID) *metadata.RunningJobState {
	t.Helper()
	states := metadata.NewRunningStateClient(h.kv, clock.New())
	state, err := states.JobState(context.Background(), jobID)
	require.NoError(t, err)
	return state
}

func TestRunBeforeInitFails(t *testing.T) {
	h := newMasterHarness()
	info := linearJobInfo(t, 11, nil)
	raw, err := info.Encode()
	require.NoError(t, err)

	jm := NewJobMaster(raw, h.deps(t, 11))
	_, err = jm.Run(context.Background())
	require.True(t, derror.ErrJobMasterNotInitialized.Equal(err))
}

func TestInitRejectsBadJobDefinition(t *testing.T) {
	h := newMasterHarness()

	jm := NewJobMaster([]byte("{not json"), h.deps(t, 12))
	require.Error(t, jm.Init(context.Background(), 1))

	info := linearJobInfo(t, 12, nil)
	info.PluginJarURLs = []string{"file:///opt/connectors/connector-fake.jar"}
	raw, err := info.Encode()
	require.NoError(t, err)
	jm = NewJobMaster(raw, h.deps(t, 12))
	err = jm.Init(context.Background(), 1)
	require.True(t, derror.ErrPluginNotFound.Equal(err))

	info = linearJobInfo(t, 12, map[string]string{"checkpoint.interval": "every-minute"})
	raw, err = info.Encode()
	require.NoError(t, err)
	jm = NewJobMaster(raw, h.deps(t, 12))
	err = jm.Init(context.Background(), 1)
	require.True(t, derror.ErrInvalidEngineConfig.Equal(err))
}

func TestJobFinishesAndArchivesHistory(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	h.operator.MetricsFn = func(_ model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error) {
		return model.RawTaskGroupMetrics{
			Location: loc,
			Metrics:  map[string]int64{"SourceReceivedCount": 7},
		}, nil
	}

	jm := initMaster(t, h, linearJobInfo(t, 21, nil))
	require.Equal(t, model.JobID(21), jm.JobID())
	require.True(t, jm.IsRunning())
	require.Equal(t, LifecycleFresh, jm.Lifecycle())

	ch := runMaster(jm)
	waitJobRunning(t, jm)
	require.Len(t, h.operator.CallsOf(client.OpDeploy), 3)

	finishAllPipelines(jm)
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFinished, r.result.Status)
	require.Empty(t, r.result.Error)
	require.False(t, jm.IsRunning())
	require.Equal(t, LifecycleFinished, jm.Lifecycle())
	_, err := jm.ScheduleFuture().Value()
	require.NoError(t, err)

	// one coordinator and two tasks, seven records each
	archived, err := h.history.FinishedMetrics(context.Background(), 21)
	require.NoError(t, err)
	require.Equal(t, int64(21), archived.Metrics["SourceReceivedCount"])
	require.Len(t, h.operator.CallsOf(client.OpCleanContext), 3)

	// the slots are back and the assignment entry is gone
	require.Equal(t, 8, h.resources.FreeSlots())
	pipeline := jm.PhysicalPlan().Pipelines()[0]
	_, err = jm.GetOwnedSlotProfiles(context.Background(), pipeline.Location())
	require.True(t, derror.ErrSlotProfilesNotFound.Equal(err))

	state := jobRunningState(t, h, 21)
	require.NotNil(t, state)
	require.Equal(t, model.JobStatusFinished.String(), state.Status)
}

func TestSchedulingFailureEndsJobFailed(t *testing.T) {
	h := newMasterHarness()
	// no workers registered, resource application must fail

	jm := initMaster(t, h, linearJobInfo(t, 22, nil))
	r := awaitRun(t, runMaster(jm))
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFailed, r.result.Status)
	require.Contains(t, r.result.Error, "resource not enough")
	require.False(t, jm.PhysicalPlan().NeedRestore())
	require.Equal(t, LifecycleFailed, jm.Lifecycle())
	_, err := jm.ScheduleFuture().Value()
	require.True(t, derror.ErrPipelineScheduleFailed.Equal(err))

	// the running state entry was cleaned before the FAILING to FAILED
	// conversion, so the final FAILED marker survives in the store
	state := jobRunningState(t, h, 22)
	require.NotNil(t, state)
	require.Equal(t, model.JobStatusFailed.String(), state.Status)
}

func TestSlotSyncWaitsForVisibility(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	h.kv.SetVisibilityLag(2)

	jm := initMaster(t, h, linearJobInfo(t, 23, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)
	h.kv.SetVisibilityLag(0)

	finishAllPipelines(jm)
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFinished, r.result.Status)
	require.GreaterOrEqual(t, testutil.ToFloat64(h.metrics.slotSyncRetries), 1.0)
}

func TestSlotSyncExhaustionFailsJob(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	h.cfg.SlotSyncMaxRetries = 3
	h.cfg.SlotSyncRetryIntervalMs = 5
	h.kv.SetVisibilityLag(1000)

	jm := initMaster(t, h, linearJobInfo(t, 24, nil))
	r := awaitRun(t, runMaster(jm))
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFailed, r.result.Status)
	require.Contains(t, r.result.Error, "sync owned slot profiles")
	require.Empty(t, h.operator.CallsOf(client.OpDeploy))
	require.False(t, jm.PhysicalPlan().NeedRestore())
}

func TestCancelJobIsIdempotentAndFinal(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	var jmRef *JobMaster
	ackCancels(h, &jmRef)

	jm := initMaster(t, h, linearJobInfo(t, 25, nil))
	jmRef = jm
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	jm.CancelJob()
	jm.CancelJob()
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusCanceled, r.result.Status)
	require.Empty(t, r.result.Error)
	require.False(t, jm.PhysicalPlan().NeedRestore())
	require.Equal(t, LifecycleCanceled, jm.Lifecycle())

	// canceled pipelines release their slots but archive nothing
	require.Equal(t, 8, h.resources.FreeSlots())
	archived, err := h.history.FinishedMetrics(context.Background(), 25)
	require.NoError(t, err)
	require.Empty(t, archived.Metrics)

	// the settled result does not move anymore
	jm.CancelJob()
	jm.Interrupt()
	settled, err := jm.CompletionFuture().Value()
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCanceled, settled.Status)
}

func TestInterruptAbandonsJobRestorable(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 26, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	jm.Interrupt()
	r := awaitRun(t, ch)
	require.True(t, derror.ErrFutureCanceled.Equal(r.err))
	require.False(t, jm.IsRunning())
	// interrupted, not ended: the lifecycle stays where it was
	require.False(t, jm.Lifecycle().Terminal())
	require.True(t, jm.PhysicalPlan().NeedRestore())
	require.False(t, jm.JobStatus().IsEndState())
}

func TestLifecycleAdvancesOneWay(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 29, nil))
	require.Equal(t, LifecycleFresh, jm.Lifecycle())

	ch := runMaster(jm)
	waitJobRunning(t, jm)
	require.Eventually(t, func() bool {
		return jm.Lifecycle() == LifecycleRunning
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, jm.IsRunning())

	// a stale restore mark cannot pull a live job back
	jm.MarkRestore()
	require.Equal(t, LifecycleRunning, jm.Lifecycle())

	finishAllPipelines(jm)
	awaitRun(t, ch)
	require.Equal(t, LifecycleFinished, jm.Lifecycle())
	require.False(t, jm.IsRunning())
}

func TestMarkRestoreSkipsFreshScheduling(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 27, nil))
	jm.MarkRestore()
	require.Equal(t, LifecycleRestoring, jm.Lifecycle())
	ch := runMaster(jm)

	jm.CancelJob()
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusCanceled, r.result.Status)
	require.Equal(t, LifecycleCanceled, jm.Lifecycle())
	require.Empty(t, h.operator.CallsOf(client.OpDeploy))
}

func TestReschedulePipelineRedeploysOnRestore(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 28, nil))
	jm.MarkRestore()
	ch := runMaster(jm)

	pipeline := jm.PhysicalPlan().Pipelines()[0]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := jm.ReschedulePipeline(ctx, pipeline).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PipelineStatusRunning, pipeline.Status())
	require.Len(t, h.operator.CallsOf(client.OpDeploy), 3)

	finishAllPipelines(jm)
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFinished, r.result.Status)
}

func TestCheckpointErrorCancelsPipelineAndFailsJob(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	h.operator.MetricsFn = func(_ model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error) {
		return model.RawTaskGroupMetrics{
			Location: loc,
			Metrics:  map[string]int64{"SinkWriteCount": 5},
		}, nil
	}
	var jmRef *JobMaster
	ackCancels(h, &jmRef)

	jm := initMaster(t, h, twoPipelineJobInfo(t, 31))
	jmRef = jm
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	pipelines := jm.PhysicalPlan().Pipelines()
	require.Len(t, pipelines, 2)
	finishPipeline(jm, pipelines[0])

	jm.ReportCheckpointError(pipelines[1].Location().PipelineID, stderrors.New("checkpoint barrier timeout"))
	r := awaitRun(t, ch)
	require.NoError(t, r.err)
	require.Equal(t, model.JobStatusFailed, r.result.Status)
	require.Contains(t, r.result.Error, "checkpoint barrier timeout")

	// only the finished pipeline archived its metrics
	archived, err := h.history.FinishedMetrics(context.Background(), 31)
	require.NoError(t, err)
	require.Equal(t, int64(15), archived.Metrics["SinkWriteCount"])
	require.Len(t, h.operator.CallsOf(client.OpCleanContext), 3)

	state := jobRunningState(t, h, 31)
	require.NotNil(t, state)
	require.Equal(t, model.JobStatusFailed.String(), state.Status)
}

func TestCheckpointErrorForUnknownPipelineIgnored(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	var jmRef *JobMaster
	ackCancels(h, &jmRef)

	jm := initMaster(t, h, linearJobInfo(t, 32, nil))
	jmRef = jm
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	jm.HandleCheckpointError(999, stderrors.New("stray report"))
	require.Equal(t, model.JobStatusRunning, jm.JobStatus())
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.checkpointErrors))

	jm.CancelJob()
	r := awaitRun(t, ch)
	require.Equal(t, model.JobStatusCanceled, r.result.Status)
}

func TestUpdateTaskExecutionStateIgnoresUnknownLocation(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 33, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	pipeline := jm.PhysicalPlan().Pipelines()[0]
	jm.UpdateTaskExecutionState(model.TaskExecutionState{
		Location: model.TaskGroupLocation{JobID: 999, PipelineID: 1, TaskGroupID: 1},
		State:    model.ExecutionStateFailed,
		Error:    "report of another job",
	})
	jm.UpdateTaskExecutionState(model.TaskExecutionState{
		Location: model.TaskGroupLocation{JobID: 33, PipelineID: 1, TaskGroupID: 424242},
		State:    model.ExecutionStateFailed,
		Error:    "report of a removed task group",
	})
	require.Equal(t, model.JobStatusRunning, jm.JobStatus())
	for _, v := range pipeline.Vertices() {
		require.Equal(t, model.ExecutionStateRunning, v.State())
	}

	finishAllPipelines(jm)
	r := awaitRun(t, ch)
	require.Equal(t, model.JobStatusFinished, r.result.Status)
}

func TestQueryTaskGroupAddress(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 34, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	workers := map[model.WorkerAddress]bool{"worker-1:5801": true, "worker-2:5801": true}
	for _, v := range jm.PhysicalPlan().Pipelines()[0].Vertices() {
		addr, err := jm.QueryTaskGroupAddress(context.Background(), v.TaskGroupLocation().TaskGroupID)
		require.NoError(t, err)
		require.True(t, workers[addr])
	}
	_, err := jm.QueryTaskGroupAddress(context.Background(), 424242)
	require.True(t, derror.ErrTaskGroupNotFound.Equal(err))

	finishAllPipelines(jm)
	awaitRun(t, ch)
}

func TestGetOwnedSlotProfilesByTaskGroup(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, linearJobInfo(t, 38, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	workers := map[model.WorkerAddress]bool{"worker-1:5801": true, "worker-2:5801": true}
	pipeline := jm.PhysicalPlan().Pipelines()[0]
	for _, v := range pipeline.Vertices() {
		profile, err := jm.GetOwnedSlotProfilesByTaskGroup(context.Background(), v.TaskGroupLocation())
		require.NoError(t, err)
		require.True(t, workers[profile.Worker])
	}

	// a task group the pipeline never owned
	_, err := jm.GetOwnedSlotProfilesByTaskGroup(context.Background(), model.TaskGroupLocation{
		JobID: 38, PipelineID: pipeline.Location().PipelineID, TaskGroupID: 424242,
	})
	require.True(t, derror.ErrTaskGroupNotFound.Equal(err))

	// a pipeline with no registered assignment
	_, err = jm.GetOwnedSlotProfilesByTaskGroup(context.Background(), model.TaskGroupLocation{
		JobID: 38, PipelineID: 99, TaskGroupID: 1,
	})
	require.True(t, derror.ErrSlotProfilesNotFound.Equal(err))

	finishAllPipelines(jm)
	awaitRun(t, ch)
}

func TestGetCurrJobMetricsIsAllOrNothing(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	h.operator.MetricsFn = func(_ model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error) {
		return model.RawTaskGroupMetrics{
			Location: loc,
			Metrics:  map[string]int64{"SourceReceivedCount": 7},
		}, nil
	}

	jm := initMaster(t, h, linearJobInfo(t, 35, nil))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	raws, err := jm.GetCurrJobMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 3)
	for i := 1; i < len(raws); i++ {
		require.Less(t, raws[i-1].Location.TaskGroupID, raws[i].Location.TaskGroupID)
	}

	// one unreachable worker fails the whole query
	unreachable := raws[0].Location
	h.operator.MetricsFn = func(_ model.WorkerAddress, loc model.TaskGroupLocation) (model.RawTaskGroupMetrics, error) {
		if loc == unreachable {
			return model.RawTaskGroupMetrics{}, derror.ErrTaskGroupOpFail.GenWithStackByArgs(client.OpQueryMetrics, "worker-1:5801")
		}
		return model.RawTaskGroupMetrics{Location: loc, Metrics: map[string]int64{"SourceReceivedCount": 7}}, nil
	}
	_, err = jm.GetCurrJobMetrics(context.Background())
	require.True(t, derror.ErrTaskGroupOpFail.Equal(err))

	h.operator.MetricsFn = nil
	finishAllPipelines(jm)
	awaitRun(t, ch)
}

func TestSavePointResolvesAfterAllAcks(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()

	jm := initMaster(t, h, twoPipelineJobInfo(t, 36))
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	fut := jm.SavePoint()
	select {
	case <-fut.Done():
		t.Fatal("savepoint settled without any ack")
	default:
	}

	pipelines := jm.PhysicalPlan().Pipelines()
	require.NoError(t, jm.AcknowledgeSavepoint(pipelines[0].Location().PipelineID, checkpoint.CompletedCheckpoint{}))
	select {
	case <-fut.Done():
		t.Fatal("savepoint settled with one pipeline pending")
	default:
	}
	require.NoError(t, jm.AcknowledgeSavepoint(pipelines[1].Location().PipelineID, checkpoint.CompletedCheckpoint{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	require.NoError(t, err)

	// nothing pending anymore, a duplicate ack is rejected
	err = jm.AcknowledgeSavepoint(pipelines[0].Location().PipelineID, checkpoint.CompletedCheckpoint{})
	require.True(t, derror.ErrPendingCheckpointNotFound.Equal(err))

	finishAllPipelines(jm)
	awaitRun(t, ch)
}

func TestSavePointFailsOnCheckpointError(t *testing.T) {
	h := newMasterHarness()
	h.registerWorkers()
	var jmRef *JobMaster
	ackCancels(h, &jmRef)

	jm := initMaster(t, h, linearJobInfo(t, 37, nil))
	jmRef = jm
	ch := runMaster(jm)
	waitJobRunning(t, jm)

	fut := jm.SavePoint()
	pipelineID := jm.PhysicalPlan().Pipelines()[0].Location().PipelineID
	jm.ReportCheckpointError(pipelineID, stderrors.New("snapshot write failed"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "snapshot write failed")

	r := awaitRun(t, ch)
	require.Equal(t, model.JobStatusFailed, r.result.Status)
	require.Contains(t, r.result.Error, "snapshot write failed")
}

func TestCheckpointConfigMergesEnvOverride(t *testing.T) {
	h := newMasterHarness()
	h.cfg.Checkpoint.CheckpointInterval = 3000
	h.cfg.Checkpoint.CheckpointTimeout = 20000

	jm := initMaster(t, h, linearJobInfo(t, 41, map[string]string{"checkpoint.interval": "5000"}))
	got := jm.CheckpointConfig()
	require.Equal(t, int64(5000), got.CheckpointInterval)
	require.Equal(t, int64(20000), got.CheckpointTimeout)

	jm = initMaster(t, h, linearJobInfo(t, 42, nil))
	require.Equal(t, int64(3000), jm.CheckpointConfig().CheckpointInterval)
}

func TestJobDAGInfoGroupsEdgesByPipeline(t *testing.T) {
	h := newMasterHarness()

	jm := initMaster(t, h, twoPipelineJobInfo(t, 51))
	info := jm.JobDAGInfo()
	require.Equal(t, model.JobID(51), info.JobID)
	require.Len(t, info.Vertexes, 4)
	require.Equal(t, "src-a", info.Vertexes[1].Name)
	require.Equal(t, "sink-b", info.Vertexes[11].Name)
	require.Equal(t, string(dag.ConnectorSource), info.Vertexes[1].ConnectorType)
	require.Equal(t, []model.VertexEdge{{From: 1, To: 2}}, info.PipelineEdges[1])
	require.Equal(t, []model.VertexEdge{{From: 10, To: 11}}, info.PipelineEdges[2])
	require.Same(t, info, jm.JobDAGInfo())
}
