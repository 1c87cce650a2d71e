package errors

import (
	"github.com/pingcap/errors"
)

// all engine errors
var (
	// job descriptor and logical dag related errors
	ErrJobInfoCorrupted    = errors.Normalize("job immutable info corrupted", errors.RFCCodeText("STENGINE:ErrJobInfoCorrupted"))
	ErrLogicalDAGCorrupted = errors.Normalize("logical dag corrupted", errors.RFCCodeText("STENGINE:ErrLogicalDAGCorrupted"))
	ErrPluginNotFound      = errors.Normalize("plugin %s not found for job %d", errors.RFCCodeText("STENGINE:ErrPluginNotFound"))
	ErrPlanBuildFailed     = errors.Normalize("build physical plan for job %d failed", errors.RFCCodeText("STENGINE:ErrPlanBuildFailed"))

	// shared state store errors
	ErrStoreOpFail       = errors.Normalize("state store operation failed", errors.RFCCodeText("STENGINE:ErrStoreOpFail"))
	ErrStoreEntryNotFound = errors.Normalize("state store entry %s not found", errors.RFCCodeText("STENGINE:ErrStoreEntryNotFound"))

	// slot assignment table errors
	ErrSlotProfileSyncFail    = errors.Normalize("sync owned slot profiles for pipeline %s failed", errors.RFCCodeText("STENGINE:ErrSlotProfileSyncFail"))
	ErrSlotProfilesNotFound   = errors.Normalize("no owned slot profiles for pipeline %s", errors.RFCCodeText("STENGINE:ErrSlotProfilesNotFound"))
	ErrSlotProfilesNotVisible = errors.Normalize("owned slot profiles for pipeline %s not visible yet", errors.RFCCodeText("STENGINE:ErrSlotProfilesNotVisible"))
	ErrTaskGroupNotFound      = errors.Normalize("task group %d not found in job %d", errors.RFCCodeText("STENGINE:ErrTaskGroupNotFound"))

	// resource manager errors
	ErrResourceNotEnough = errors.Normalize("cluster resource not enough for job %d", errors.RFCCodeText("STENGINE:ErrResourceNotEnough"))

	// remote task group operation errors
	ErrTaskGroupOpFail = errors.Normalize("task group operation %s on worker %s failed", errors.RFCCodeText("STENGINE:ErrTaskGroupOpFail"))

	// completion future errors
	ErrFutureCanceled    = errors.Normalize("future canceled", errors.RFCCodeText("STENGINE:ErrFutureCanceled"))
	ErrFutureNotResolved = errors.Normalize("future not resolved yet", errors.RFCCodeText("STENGINE:ErrFutureNotResolved"))

	// checkpoint errors
	ErrPendingCheckpointNotFound = errors.Normalize("no pending checkpoint for pipeline %d", errors.RFCCodeText("STENGINE:ErrPendingCheckpointNotFound"))

	// scheduler errors
	ErrPipelineScheduleFailed = errors.Normalize("schedule pipeline %s failed", errors.RFCCodeText("STENGINE:ErrPipelineScheduleFailed"))

	// config errors
	ErrInvalidEngineConfig      = errors.Normalize("invalid engine config: %s", errors.RFCCodeText("STENGINE:ErrInvalidEngineConfig"))
	ErrEngineConfigParseFlagSet = errors.Normalize("parse config flag set failed", errors.RFCCodeText("STENGINE:ErrEngineConfigParseFlagSet"))
	ErrEngineDecodeConfigFile   = errors.Normalize("decode config file failed", errors.RFCCodeText("STENGINE:ErrEngineDecodeConfigFile"))
	ErrEngineConfigUnknownItem  = errors.Normalize("unknown config item: %s", errors.RFCCodeText("STENGINE:ErrEngineConfigUnknownItem"))

	// coordinator errors
	ErrJobMasterNotInitialized = errors.Normalize("job master not initialized", errors.RFCCodeText("STENGINE:ErrJobMasterNotInitialized"))
	ErrJobAlreadySubmitted     = errors.Normalize("job %d already submitted", errors.RFCCodeText("STENGINE:ErrJobAlreadySubmitted"))
	ErrJobNotFound             = errors.Normalize("job %d not found", errors.RFCCodeText("STENGINE:ErrJobNotFound"))

	// server api errors
	ErrInvalidServerRequest = errors.Normalize("invalid request: %s", errors.RFCCodeText("STENGINE:ErrInvalidServerRequest"))
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error. If given `err` is nil, returns a nil error, which is a
// different behavior from the `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}
