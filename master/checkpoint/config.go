package checkpoint

import (
	"strconv"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

// EnvOptionCheckpointInterval is the job env option that overrides the engine
// level checkpoint interval for one job.
const EnvOptionCheckpointInterval = "checkpoint.interval"

// engine level defaults, applied by the server config layer
const (
	DefaultCheckpointInterval          int64 = 300000
	DefaultCheckpointTimeout           int64 = 30000
	DefaultTolerableFailureCheckpoints       = 0
	DefaultMaxConcurrentCheckpoints          = 1
	DefaultMaxRetainedCheckpoints            = 1
	DefaultStorage                           = "localfile"
)

// StorageConfig selects the checkpoint storage backend. The backend's binary
// format is owned by the storage plugin, not by the coordinator.
type StorageConfig struct {
	MaxRetainedCheckpoints int               `toml:"max-retained-checkpoints" json:"max-retained-checkpoints"`
	Storage                string            `toml:"storage" json:"storage"`
	StoragePluginOptions   map[string]string `toml:"storage-plugin-options" json:"storage-plugin-options"`
}

// Config is the resolved checkpoint configuration of one job. Durations are
// milliseconds.
type Config struct {
	CheckpointInterval          int64         `toml:"checkpoint-interval" json:"checkpoint-interval"`
	CheckpointTimeout           int64         `toml:"checkpoint-timeout" json:"checkpoint-timeout"`
	TolerableFailureCheckpoints int           `toml:"tolerable-failure-checkpoints" json:"tolerable-failure-checkpoints"`
	MaxConcurrentCheckpoints    int           `toml:"max-concurrent-checkpoints" json:"max-concurrent-checkpoints"`
	Storage                     StorageConfig `toml:"storage" json:"storage"`
}

// DefaultConfig returns the engine level defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointInterval:          DefaultCheckpointInterval,
		CheckpointTimeout:           DefaultCheckpointTimeout,
		TolerableFailureCheckpoints: DefaultTolerableFailureCheckpoints,
		MaxConcurrentCheckpoints:    DefaultMaxConcurrentCheckpoints,
		Storage: StorageConfig{
			MaxRetainedCheckpoints: DefaultMaxRetainedCheckpoints,
			Storage:                DefaultStorage,
		},
	}
}

// MergeEnvAndEngineConfig resolves the effective checkpoint config of one job:
// the descriptor's env options may override the checkpoint interval, every
// other field comes from the engine config. The merge happens exactly once,
// at job initialization.
func MergeEnvAndEngineConfig(engine Config, envOptions map[string]string) (Config, error) {
	merged := engine
	raw, ok := envOptions[EnvOptionCheckpointInterval]
	if !ok {
		return merged, nil
	}
	interval, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || interval <= 0 {
		return Config{}, derror.ErrInvalidEngineConfig.GenWithStackByArgs(
			"checkpoint.interval override " + strconv.Quote(raw))
	}
	merged.CheckpointInterval = interval
	return merged, nil
}
