package dag

import (
	"encoding/json"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/plugin"
)

// ConnectorType classifies a logical vertex.
type ConnectorType string

// connector types
const (
	ConnectorSource    ConnectorType = "source"
	ConnectorTransform ConnectorType = "transform"
	ConnectorSink      ConnectorType = "sink"
)

func (t ConnectorType) valid() bool {
	switch t {
	case ConnectorSource, ConnectorTransform, ConnectorSink:
		return true
	}
	return false
}

// LogicalVertex is one node of the user-declared graph.
type LogicalVertex struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	ConnectorType ConnectorType     `json:"connector_type"`
	PluginName    string            `json:"plugin_name"`
	Parallelism   int               `json:"parallelism"`
	Options       map[string]string `json:"options,omitempty"`
}

// LogicalEdge is a directed edge between two logical vertices.
type LogicalEdge struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// LogicalDAG is the deserialized logical graph of one job.
type LogicalDAG struct {
	JobID    model.JobID      `json:"job_id"`
	Vertexes []*LogicalVertex `json:"vertexes"`
	Edges    []LogicalEdge    `json:"edges"`
}

// VertexByID returns the vertex with the given id, or nil.
func (d *LogicalDAG) VertexByID(id int64) *LogicalVertex {
	for _, v := range d.Vertexes {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// Sources returns the vertices with no inbound edge, in declaration order.
func (d *LogicalDAG) Sources() []*LogicalVertex {
	hasInbound := make(map[int64]bool, len(d.Vertexes))
	for _, e := range d.Edges {
		hasInbound[e.To] = true
	}
	var sources []*LogicalVertex
	for _, v := range d.Vertexes {
		if !hasInbound[v.ID] {
			sources = append(sources, v)
		}
	}
	return sources
}

// DecodeLogicalDAG deserializes a logical graph and resolves every vertex's
// plugin through the job's loader. The descriptor's job id is authoritative
// and overrides whatever the payload carries.
func DecodeLogicalDAG(jobID model.JobID, data []byte, loader *plugin.Loader) (*LogicalDAG, error) {
	d := &LogicalDAG{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, derror.WrapError(derror.ErrLogicalDAGCorrupted, err)
	}
	d.JobID = jobID
	if err := d.validate(); err != nil {
		return nil, err
	}
	for _, v := range d.Vertexes {
		if _, err := loader.Resolve(v.PluginName); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *LogicalDAG) validate() error {
	if len(d.Vertexes) == 0 {
		return derror.ErrLogicalDAGCorrupted.GenWithStack("logical dag of job %d has no vertex", d.JobID)
	}
	ids := make(map[int64]struct{}, len(d.Vertexes))
	for _, v := range d.Vertexes {
		if _, dup := ids[v.ID]; dup {
			return derror.ErrLogicalDAGCorrupted.GenWithStack("duplicate vertex id %d", v.ID)
		}
		ids[v.ID] = struct{}{}
		if !v.ConnectorType.valid() {
			return derror.ErrLogicalDAGCorrupted.GenWithStack("vertex %d has unknown connector type %q", v.ID, v.ConnectorType)
		}
		if v.Parallelism <= 0 {
			v.Parallelism = 1
		}
	}
	for _, e := range d.Edges {
		if _, ok := ids[e.From]; !ok {
			return derror.ErrLogicalDAGCorrupted.GenWithStack("edge references unknown vertex %d", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return derror.ErrLogicalDAGCorrupted.GenWithStack("edge references unknown vertex %d", e.To)
		}
	}

	sources := d.Sources()
	if len(sources) == 0 {
		return derror.ErrLogicalDAGCorrupted.GenWithStack("logical dag of job %d has no source vertex", d.JobID)
	}
	// every vertex must be reachable from some source, which also rules out
	// detached cycles
	visited := make(map[int64]struct{}, len(d.Vertexes))
	walker := NewWalker(d, func(v *LogicalVertex) error {
		visited[v.ID] = struct{}{}
		return nil
	})
	for _, src := range sources {
		if err := walker.WalkFrom(src.ID); err != nil {
			return err
		}
	}
	if len(visited) != len(d.Vertexes) {
		return derror.ErrLogicalDAGCorrupted.GenWithStack("logical dag of job %d has vertices unreachable from any source", d.JobID)
	}
	return nil
}
