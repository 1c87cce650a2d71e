package metadata

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pingcap/errors"

	"github.com/voidking/incubator-seatunnel/model"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

type slotEntry struct {
	Location model.TaskGroupLocation `json:"location"`
	Profile  model.SlotProfile       `json:"profile"`
}

// SlotProfileClient is the typed view of the cluster wide slot assignment
// table. One entry maps a pipeline to the slot granted to each of its task
// groups. The entry exists for as long as any task of the pipeline executes;
// it is removed exactly when the pipeline's resources are released.
type SlotProfileClient struct {
	kv statestore.KV
}

// NewSlotProfileClient creates a client over the shared store.
func NewSlotProfileClient(kv statestore.KV) *SlotProfileClient {
	return &SlotProfileClient{kv: kv}
}

// Put writes the pipeline's assignment. Visibility of the write follows the
// store's contract, so callers needing confirmation must read back.
func (c *SlotProfileClient) Put(
	ctx context.Context,
	loc model.PipelineLocation,
	profiles map[model.TaskGroupLocation]model.SlotProfile,
) error {
	entries := make([]slotEntry, 0, len(profiles))
	for tgLoc, profile := range profiles {
		entries = append(entries, slotEntry{Location: tgLoc, Profile: profile})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Location.TaskGroupID < entries[j].Location.TaskGroupID
	})
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Trace(err)
	}
	return c.kv.Put(ctx, SlotProfilesKey(loc), string(data))
}

// Get returns the pipeline's assignment, or ErrSlotProfilesNotFound when the
// table has no entry for it.
func (c *SlotProfileClient) Get(
	ctx context.Context,
	loc model.PipelineLocation,
) (map[model.TaskGroupLocation]model.SlotProfile, error) {
	value, err := c.kv.Get(ctx, SlotProfilesKey(loc))
	if err != nil {
		if derror.ErrStoreEntryNotFound.Equal(err) {
			return nil, derror.ErrSlotProfilesNotFound.GenWithStackByArgs(loc.String())
		}
		return nil, errors.Trace(err)
	}
	return decodeSlotEntries(value)
}

// Delete removes the pipeline's entry. Deleting an absent entry is a no-op.
func (c *SlotProfileClient) Delete(ctx context.Context, loc model.PipelineLocation) error {
	return c.kv.Delete(ctx, SlotProfilesKey(loc))
}

// All returns every pipeline assignment of one job.
func (c *SlotProfileClient) All(
	ctx context.Context,
	jobID model.JobID,
) (map[model.PipelineLocation]map[model.TaskGroupLocation]model.SlotProfile, error) {
	kvs, err := c.kv.GetPrefix(ctx, SlotProfilesJobPrefix(jobID))
	if err != nil {
		return nil, errors.Trace(err)
	}
	ret := make(map[model.PipelineLocation]map[model.TaskGroupLocation]model.SlotProfile, len(kvs))
	for _, value := range kvs {
		profiles, err := decodeSlotEntries(value)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for tgLoc, profile := range profiles {
			pLoc := tgLoc.PipelineLocation()
			if ret[pLoc] == nil {
				ret[pLoc] = make(map[model.TaskGroupLocation]model.SlotProfile)
			}
			ret[pLoc][tgLoc] = profile
		}
	}
	return ret, nil
}

func decodeSlotEntries(value string) (map[model.TaskGroupLocation]model.SlotProfile, error) {
	var entries []slotEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	profiles := make(map[model.TaskGroupLocation]model.SlotProfile, len(entries))
	for _, e := range entries {
		profiles[e.Location] = e.Profile
	}
	return profiles, nil
}
