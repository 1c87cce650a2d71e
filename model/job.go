package model

import (
	"encoding/json"
	"strconv"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// JobID identifies a submitted job across the cluster.
type JobID int64

func (id JobID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// WorkerAddress is the dialable address of a worker process.
type WorkerAddress string

// JobImmutableInfo is the read-only description of a submitted job. It is
// produced once by the submission path and never mutated afterwards.
type JobImmutableInfo struct {
	JobID              JobID             `json:"job_id"`
	Name               string            `json:"name"`
	LogicalGraph       json.RawMessage   `json:"logical_graph"`
	EnvOptions         map[string]string `json:"env_options,omitempty"`
	PluginJarURLs      []string          `json:"plugin_jar_urls,omitempty"`
	StartWithSavepoint bool              `json:"start_with_savepoint,omitempty"`
	CreateTime         int64             `json:"create_time"`
}

// DecodeJobImmutableInfo deserializes the descriptor produced by Encode.
func DecodeJobImmutableInfo(data []byte) (*JobImmutableInfo, error) {
	info := &JobImmutableInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, derror.WrapError(derror.ErrJobInfoCorrupted, err)
	}
	return info, nil
}

func (i *JobImmutableInfo) Encode() ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, derror.WrapError(derror.ErrJobInfoCorrupted, err)
	}
	return data, nil
}

// JobResult is the terminal outcome of a job, delivered through the
// coordinator's completion future.
type JobResult struct {
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// VertexInfo describes one logical vertex for DAG introspection.
type VertexInfo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ConnectorType string `json:"connector_type"`
	Parallelism   int    `json:"parallelism"`
}

// VertexEdge is a directed edge between two logical vertices.
type VertexEdge struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// JobDAGInfo is the introspection view of a job's graph, grouped by the
// pipeline each edge was planned into.
type JobDAGInfo struct {
	JobID         JobID                       `json:"job_id"`
	Vertexes      map[int64]VertexInfo        `json:"vertexes"`
	PipelineEdges map[PipelineID][]VertexEdge `json:"pipeline_edges"`
}
