package plan

import (
	"sync"

	"github.com/pingcap/tiflow/dm/pkg/log"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/dag"
	"github.com/voidking/incubator-seatunnel/model"
)

// VertexKind separates the pipeline's coordination seat from data-moving
// tasks.
type VertexKind int8

// vertex kinds
const (
	KindCoordinator VertexKind = iota + 1
	KindPhysical
)

func (k VertexKind) String() string {
	switch k {
	case KindCoordinator:
		return "coordinator"
	case KindPhysical:
		return "physical"
	}
	return "unknown"
}

// PhysicalVertex is one deployable task group of a pipeline, tracking the
// execution state reported by its worker.
type PhysicalVertex struct {
	location      model.TaskGroupLocation
	name          string
	kind          VertexKind
	pluginName    string
	connectorType dag.ConnectorType
	options       map[string]string

	pipeline *Pipeline

	mu     sync.Mutex
	state  model.ExecutionState
	errMsg string
}

func newPhysicalVertex(
	location model.TaskGroupLocation,
	name string,
	kind VertexKind,
	pluginName string,
	connectorType dag.ConnectorType,
	options map[string]string,
) *PhysicalVertex {
	return &PhysicalVertex{
		location:      location,
		name:          name,
		kind:          kind,
		pluginName:    pluginName,
		connectorType: connectorType,
		options:       options,
		state:         model.ExecutionStateCreated,
	}
}

// TaskGroupLocation returns the vertex's cluster wide identity.
func (v *PhysicalVertex) TaskGroupLocation() model.TaskGroupLocation {
	return v.location
}

// Name returns the vertex's full display name.
func (v *PhysicalVertex) Name() string { return v.name }

// Kind returns whether this is the coordination seat or a data task.
func (v *PhysicalVertex) Kind() VertexKind { return v.kind }

// PluginName returns the connector plugin backing the vertex.
func (v *PhysicalVertex) PluginName() string { return v.pluginName }

// ConnectorType returns the vertex's role in the data flow.
func (v *PhysicalVertex) ConnectorType() dag.ConnectorType { return v.connectorType }

// Options returns the connector options. Callers must not mutate the map.
func (v *PhysicalVertex) Options() map[string]string { return v.options }

// State returns the vertex's recorded execution state.
func (v *PhysicalVertex) State() model.ExecutionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Error returns the captured failure message, empty unless the vertex failed.
func (v *PhysicalVertex) Error() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// UpdateState applies a state transition. Illegal transitions, such as a late
// cancellation report for a task that already finished, are logged and
// dropped. Reaching a terminal state is reported to the owning pipeline.
func (v *PhysicalVertex) UpdateState(to model.ExecutionState, errMsg string) bool {
	v.mu.Lock()
	from := v.state
	if !from.CanTransitTo(to) {
		v.mu.Unlock()
		log.L().Warn("dropping illegal task state transition",
			zap.String("task", v.name),
			zap.Stringer("location", v.location),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		return false
	}
	v.state = to
	if errMsg != "" {
		v.errMsg = errMsg
	}
	v.mu.Unlock()

	log.L().Info("task state transition",
		zap.String("task", v.name),
		zap.Stringer("location", v.location),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	v.pipeline.touch()
	if to.IsEndState() {
		v.pipeline.onVertexTerminal(v, to)
	}
	return true
}
