package jobhistory

import (
	"context"
	"encoding/json"

	"github.com/pingcap/errors"

	"github.com/voidking/incubator-seatunnel/master/metadata"
	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

// Store archives job level metrics of finished pipelines. Concurrent archive
// calls for the same job are not serialized here; the coordinator holds its
// history lock around StoreFinishedPipelineMetrics.
type Store struct {
	kv statestore.KV
}

// NewStore creates a history store over the shared state store.
func NewStore(kv statestore.KV) *Store {
	return &Store{kv: kv}
}

// StoreFinishedPipelineMetrics merges one pipeline's summary into the job's
// archived metrics.
func (s *Store) StoreFinishedPipelineMetrics(ctx context.Context, jobID model.JobID, metrics model.JobMetrics) error {
	archived, err := s.FinishedMetrics(ctx, jobID)
	if err != nil {
		return errors.Trace(err)
	}
	archived.JobID = jobID
	archived.Merge(metrics)

	data, err := json.Marshal(archived)
	if err != nil {
		return errors.Trace(err)
	}
	return s.kv.Put(ctx, metadata.JobHistoryKey(jobID), string(data))
}

// FinishedMetrics returns the job's archived metrics. A job with no archive
// yet yields an empty summary.
func (s *Store) FinishedMetrics(ctx context.Context, jobID model.JobID) (model.JobMetrics, error) {
	empty := model.JobMetrics{JobID: jobID, Metrics: map[string]int64{}}
	value, err := s.kv.Get(ctx, metadata.JobHistoryKey(jobID))
	if err != nil {
		if derror.ErrStoreEntryNotFound.Equal(err) {
			return empty, nil
		}
		return empty, errors.Trace(err)
	}
	var archived model.JobMetrics
	if err := json.Unmarshal([]byte(value), &archived); err != nil {
		return empty, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	return archived, nil
}
