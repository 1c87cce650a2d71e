package plan

import (
	"fmt"
	"sort"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/dag"
	"github.com/voidking/incubator-seatunnel/master/checkpoint"
	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/autoid"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// FromLogicalDAG compiles a logical graph into a physical plan plus the per
// pipeline checkpoint plans. Each connected component of the graph becomes
// one pipeline: a coordination seat hosting the source split enumerator and
// one physical vertex per parallel replica of every logical vertex. Given
// the same graph and a fresh id allocator the result is deterministic, so a
// successor coordinator rebuilding the plan derives the same task group
// locations.
func FromLogicalDAG(
	logical *dag.LogicalDAG,
	info *model.JobImmutableInfo,
	initTimestamp int64,
	ids *autoid.IDAllocator,
	recorder StateRecorder,
) (*PhysicalPlan, map[model.PipelineID]*checkpoint.Plan, error) {
	jobFullName := fmt.Sprintf("Job %s (%d)", info.Name, info.JobID)
	components := connectedComponents(logical)

	pipelines := make([]*Pipeline, 0, len(components))
	checkpointPlans := make(map[model.PipelineID]*checkpoint.Plan, len(components))
	for i, component := range components {
		pipelineID := model.PipelineID(i + 1)
		location := model.PipelineLocation{JobID: info.JobID, PipelineID: pipelineID}
		fullName := fmt.Sprintf("%s, Pipeline: [(%d/%d)]", jobFullName, pipelineID, len(components))

		pipeline, chkPlan, err := buildPipeline(logical, location, fullName, component, ids)
		if err != nil {
			return nil, nil, err
		}
		pipelines = append(pipelines, pipeline)
		checkpointPlans[pipelineID] = chkPlan
	}

	log.L().Info("physical plan built",
		zap.String("job", jobFullName),
		zap.Int("pipelines", len(pipelines)),
		zap.Int64("init-timestamp", initTimestamp))
	plan := NewPhysicalPlan(info.JobID, jobFullName, initTimestamp, pipelines, recorder)
	return plan, checkpointPlans, nil
}

func buildPipeline(
	logical *dag.LogicalDAG,
	location model.PipelineLocation,
	fullName string,
	component []*dag.LogicalVertex,
	ids *autoid.IDAllocator,
) (*Pipeline, *checkpoint.Plan, error) {
	var firstSource *dag.LogicalVertex
	for _, v := range component {
		if v.ConnectorType == dag.ConnectorSource {
			firstSource = v
			break
		}
	}
	if firstSource == nil {
		return nil, nil, derror.ErrPlanBuildFailed.GenWithStackByArgs(location.JobID)
	}

	coordinatorLoc := model.TaskGroupLocation{
		JobID:       location.JobID,
		PipelineID:  location.PipelineID,
		TaskGroupID: model.TaskGroupID(ids.AllocID()),
	}
	coordinator := newPhysicalVertex(
		coordinatorLoc,
		fmt.Sprintf("%s, coordinator: [%s-SplitEnumerator]", fullName, firstSource.Name),
		KindCoordinator,
		firstSource.PluginName,
		firstSource.ConnectorType,
		firstSource.Options,
	)

	chkPlan := &checkpoint.Plan{
		PipelineID:              location.PipelineID,
		BarrierInjectTaskGroups: []model.TaskGroupLocation{coordinatorLoc},
	}
	var physicals []*PhysicalVertex
	for _, v := range component {
		for replica := 1; replica <= v.Parallelism; replica++ {
			loc := model.TaskGroupLocation{
				JobID:       location.JobID,
				PipelineID:  location.PipelineID,
				TaskGroupID: model.TaskGroupID(ids.AllocID()),
			}
			physicals = append(physicals, newPhysicalVertex(
				loc,
				fmt.Sprintf("%s, task: [%s (%d/%d)]", fullName, v.Name, replica, v.Parallelism),
				KindPhysical,
				v.PluginName,
				v.ConnectorType,
				v.Options,
			))
			switch v.ConnectorType {
			case dag.ConnectorSource:
				chkPlan.BarrierInjectTaskGroups = append(chkPlan.BarrierInjectTaskGroups, loc)
			case dag.ConnectorSink:
				chkPlan.BarrierCollectTaskGroups = append(chkPlan.BarrierCollectTaskGroups, loc)
			}
		}
	}

	return newPipeline(location, fullName, []*PhysicalVertex{coordinator}, physicals), chkPlan, nil
}

// PipelineEdges groups the logical edges by the pipeline their endpoints were
// planned into, matching the pipeline split of FromLogicalDAG.
func PipelineEdges(logical *dag.LogicalDAG) map[model.PipelineID][]model.VertexEdge {
	components := connectedComponents(logical)
	owner := make(map[int64]model.PipelineID, len(logical.Vertexes))
	for i, component := range components {
		for _, v := range component {
			owner[v.ID] = model.PipelineID(i + 1)
		}
	}
	ret := make(map[model.PipelineID][]model.VertexEdge, len(components))
	for _, e := range logical.Edges {
		pid := owner[e.From]
		ret[pid] = append(ret[pid], model.VertexEdge{From: e.From, To: e.To})
	}
	return ret
}

// connectedComponents splits the graph into its connected components,
// ignoring edge direction. Components are ordered by their smallest vertex
// id and each component lists its vertices in ascending id order, which
// makes pipeline numbering stable across rebuilds.
func connectedComponents(logical *dag.LogicalDAG) [][]*dag.LogicalVertex {
	parent := make(map[int64]int64, len(logical.Vertexes))
	for _, v := range logical.Vertexes {
		parent[v.ID] = v.ID
	}
	var find func(int64) int64
	find = func(id int64) int64 {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	for _, e := range logical.Edges {
		parent[find(e.From)] = find(e.To)
	}

	groups := make(map[int64][]*dag.LogicalVertex)
	for _, v := range logical.Vertexes {
		root := find(v.ID)
		groups[root] = append(groups[root], v)
	}

	components := make([][]*dag.LogicalVertex, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		components = append(components, group)
	}
	sort.Slice(components, func(i, j int) bool { return components[i][0].ID < components[j][0].ID })
	return components
}
