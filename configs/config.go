package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Prettify bool   `mapstructure:"prettify"`
}

type ChainConfig struct {
	Name      string `mapstructure:"name"`
	TipBuffer uint64 `mapstructure:"tipBuffer"`
	// Unknown chain ids default to the Ethereum family unless strict is set.
	Strict bool `mapstructure:"strict"`
}

type RPCConfig struct {
	URL string `mapstructure:"url"`
	// Per-call timeout in seconds.
	Timeout int `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int     `mapstructure:"maxAttempts"`
	BaseDelayMs int     `mapstructure:"baseDelayMs"`
	MaxDelayMs  int     `mapstructure:"maxDelayMs"`
	Multiplier  float64 `mapstructure:"multiplier"`
}

type PipelineConfig struct {
	StartBlock   uint64 `mapstructure:"startBlock"`
	EndBlock     uint64 `mapstructure:"endBlock"`
	Concurrency  int    `mapstructure:"concurrency"`
	BlockRetries int    `mapstructure:"blockRetries"`
	GapCheck     bool   `mapstructure:"gapCheck"`
}

type SinkConfig struct {
	BatchSize       int `mapstructure:"batchSize"`
	BatchTimeout    int `mapstructure:"batchTimeout"`
	ChannelCapacity int `mapstructure:"channelCapacity"`
	// Warehouse append timeout in seconds.
	AppendTimeout int `mapstructure:"appendTimeout"`
}

type ClickhouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Secure   bool   `mapstructure:"secure"`
}

type MemoryConfig struct {
	MaxItems int `mapstructure:"maxItems"`
}

type StorageConfig struct {
	Clickhouse *ClickhouseConfig `mapstructure:"clickhouse"`
	Memory     *MemoryConfig     `mapstructure:"memory"`
	// Regional location recorded on dataset creation.
	DatasetLocation string `mapstructure:"datasetLocation"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	// Health turns stale after this many seconds without driver progress.
	StalenessSeconds int `mapstructure:"stalenessSeconds"`
}

type PublisherConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
}

type Config struct {
	Chain     ChainConfig     `mapstructure:"chain"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Datasets  []string        `mapstructure:"datasets"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Log       LogConfig       `mapstructure:"log"`
}

var Cfg Config

func LoadConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file, %s", err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./configs")

		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file, %s", err)
		}
	}

	// sets e.g. RPC_URL to rpc.url
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	err := viper.Unmarshal(&Cfg)
	if err != nil {
		return fmt.Errorf("error unmarshalling config: %v", err)
	}

	return Validate(&Cfg)
}

// Validate enforces the configuration invariants the pipeline relies on.
func Validate(cfg *Config) error {
	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = []string{"blocks", "transactions", "logs", "traces"}
	}
	for _, d := range cfg.Datasets {
		switch d {
		case "blocks", "transactions", "logs", "traces":
		default:
			return fmt.Errorf("unknown dataset %q", d)
		}
	}
	if cfg.Pipeline.EndBlock != 0 && cfg.Pipeline.StartBlock > cfg.Pipeline.EndBlock {
		return fmt.Errorf("pipeline.startBlock %d is greater than pipeline.endBlock %d", cfg.Pipeline.StartBlock, cfg.Pipeline.EndBlock)
	}
	return nil
}
