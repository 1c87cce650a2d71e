package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/tiflow/dm/pkg/log"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/voidking/incubator-seatunnel/master/checkpoint"
	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
	"github.com/voidking/incubator-seatunnel/pkg/statestore"
)

const (
	defaultAddr                = "127.0.0.1:5801"
	defaultStateStoreEndpoints = "127.0.0.1:2379"
	defaultStateStoreTimeoutMs = 5000

	defaultSlotSyncMaxRetries      = 20
	defaultSlotSyncRetryIntervalMs = 1000

	defaultWorkerOpTimeoutMs = 10000
	defaultWorkerPoolSize    = 8
)

// NewConfig creates a config for the engine coordinator server.
func NewConfig() *Config {
	cfg := &Config{
		Checkpoint: checkpoint.DefaultConfig(),
	}
	cfg.flagSet = pflag.NewFlagSet("seatunnel-server", pflag.ContinueOnError)
	fs := cfg.flagSet

	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")
	fs.StringVar(&cfg.Addr, "addr", defaultAddr, "server API address")
	fs.StringVar(&cfg.AdvertiseAddr, "advertise-addr", "", `advertise address for client traffic (default "${addr}")`)
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", `the format of the log, "text" or "json"`)

	fs.StringVar(&cfg.StateStoreEndpoints, "state-store-endpoints", defaultStateStoreEndpoints,
		"comma separated endpoints of the shared cluster state store")
	fs.Int64Var(&cfg.StateStoreTimeoutMs, "state-store-timeout", defaultStateStoreTimeoutMs,
		"dial timeout of the state store, in milliseconds")

	fs.IntVar(&cfg.SlotSyncMaxRetries, "slot-sync-max-retries", defaultSlotSyncMaxRetries,
		"read-back attempts when confirming a slot assignment write")
	fs.Int64Var(&cfg.SlotSyncRetryIntervalMs, "slot-sync-retry-interval", defaultSlotSyncRetryIntervalMs,
		"pause between slot assignment read-back attempts, in milliseconds")

	fs.Int64Var(&cfg.WorkerOpTimeoutMs, "worker-op-timeout", defaultWorkerOpTimeoutMs,
		"timeout of one task group operation against a worker, in milliseconds")
	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool-size", defaultWorkerPoolSize,
		"size of the async pool shared by background job operations")

	return cfg
}

// Config is the configuration of the engine coordinator server.
type Config struct {
	flagSet *pflag.FlagSet

	LogLevel  string `toml:"log-level" json:"log-level"`
	LogFile   string `toml:"log-file" json:"log-file"`
	LogFormat string `toml:"log-format" json:"log-format"`

	Addr          string `toml:"addr" json:"addr"`
	AdvertiseAddr string `toml:"advertise-addr" json:"advertise-addr"`

	ConfigFile string `toml:"config-file" json:"config-file"`

	StateStoreEndpoints string `toml:"state-store-endpoints" json:"state-store-endpoints"`
	StateStoreTimeoutMs int64  `toml:"state-store-timeout" json:"state-store-timeout"`

	SlotSyncMaxRetries      int   `toml:"slot-sync-max-retries" json:"slot-sync-max-retries"`
	SlotSyncRetryIntervalMs int64 `toml:"slot-sync-retry-interval" json:"slot-sync-retry-interval"`

	WorkerOpTimeoutMs int64 `toml:"worker-op-timeout" json:"worker-op-timeout"`
	WorkerPoolSize    int   `toml:"worker-pool-size" json:"worker-pool-size"`

	// Checkpoint holds the engine level checkpoint defaults. A job descriptor
	// may override the interval through its env options.
	Checkpoint checkpoint.Config `toml:"checkpoint" json:"checkpoint"`
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.L().Error("marshal config to json", zap.Reflect("server config", c), log.ShortError(err))
	}
	return string(cfg)
}

// Toml returns TOML format representation of config.
func (c *Config) Toml() (string, error) {
	var b bytes.Buffer
	err := toml.NewEncoder(&b).Encode(c)
	if err != nil {
		log.L().Error("fail to marshal config to toml", log.ShortError(err))
	}
	return b.String(), err
}

// Parse parses flag definitions from the argument list.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.flagSet.Parse(arguments)
	if err != nil {
		return derror.WrapError(derror.ErrEngineConfigParseFlagSet, err)
	}

	// Load config file if specified.
	if c.ConfigFile != "" {
		err = c.configFromFile(c.ConfigFile)
		if err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.flagSet.Parse(arguments)
	if err != nil {
		return derror.WrapError(derror.ErrEngineConfigParseFlagSet, err)
	}

	if len(c.flagSet.Args()) != 0 {
		return derror.ErrInvalidEngineConfig.GenWithStackByArgs(
			"unexpected argument " + c.flagSet.Arg(0))
	}
	return c.Adjust()
}

// Adjust fills derived fields and validates the result.
func (c *Config) Adjust() error {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = c.Addr
	}
	if c.StateStoreEndpoints == "" {
		c.StateStoreEndpoints = defaultStateStoreEndpoints
	}
	if c.StateStoreTimeoutMs <= 0 {
		c.StateStoreTimeoutMs = defaultStateStoreTimeoutMs
	}
	if c.SlotSyncMaxRetries <= 0 {
		c.SlotSyncMaxRetries = defaultSlotSyncMaxRetries
	}
	if c.SlotSyncRetryIntervalMs <= 0 {
		c.SlotSyncRetryIntervalMs = defaultSlotSyncRetryIntervalMs
	}
	if c.WorkerOpTimeoutMs <= 0 {
		c.WorkerOpTimeoutMs = defaultWorkerOpTimeoutMs
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = defaultWorkerPoolSize
	}

	if c.Checkpoint.CheckpointInterval <= 0 {
		return derror.ErrInvalidEngineConfig.GenWithStackByArgs("checkpoint-interval must be positive")
	}
	if c.Checkpoint.CheckpointTimeout <= 0 {
		return derror.ErrInvalidEngineConfig.GenWithStackByArgs("checkpoint-timeout must be positive")
	}
	if c.Checkpoint.MaxConcurrentCheckpoints <= 0 {
		return derror.ErrInvalidEngineConfig.GenWithStackByArgs("max-concurrent-checkpoints must be positive")
	}
	if c.Checkpoint.Storage.MaxRetainedCheckpoints <= 0 {
		return derror.ErrInvalidEngineConfig.GenWithStackByArgs("max-retained-checkpoints must be positive")
	}
	return nil
}

// StateStoreConfig returns the dial parameters of the shared store.
func (c *Config) StateStoreConfig() statestore.Config {
	return statestore.Config{
		Endpoints:   strings.Split(c.StateStoreEndpoints, ","),
		DialTimeout: time.Duration(c.StateStoreTimeoutMs) * time.Millisecond,
	}
}

// SlotSyncRetryInterval returns the pause between slot assignment read-backs.
func (c *Config) SlotSyncRetryInterval() time.Duration {
	return time.Duration(c.SlotSyncRetryIntervalMs) * time.Millisecond
}

// WorkerOpTimeout returns the per operation timeout for worker calls.
func (c *Config) WorkerOpTimeout() time.Duration {
	return time.Duration(c.WorkerOpTimeoutMs) * time.Millisecond
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	metaData, err := toml.DecodeFile(path, c)
	if err != nil {
		return derror.WrapError(derror.ErrEngineDecodeConfigFile, err)
	}
	undecoded := metaData.Undecoded()
	if len(undecoded) > 0 {
		var undecodedItems []string
		for _, item := range undecoded {
			undecodedItems = append(undecodedItems, item.String())
		}
		return derror.ErrEngineConfigUnknownItem.GenWithStackByArgs(strings.Join(undecodedItems, ","))
	}
	return nil
}
