package config

// Package config provides a reusable loader for bchain configuration
// files and environment variables.

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bchain-network/pkg/utils"
)

// Config is the unified configuration of a bchain node. It mirrors the
// structure of the YAML files under config/.
type Config struct {
	Node struct {
		Port    int    `mapstructure:"port" json:"port"`
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"node" json:"node"`

	Consensus struct {
		BlockSize int     `mapstructure:"block_size" json:"block_size"`
		MaxNodes  int     `mapstructure:"max_nodes" json:"max_nodes"`
		PowZeros  int     `mapstructure:"pow_zeros" json:"pow_zeros"`
		Reward    float64 `mapstructure:"reward" json:"reward"`
	} `mapstructure:"consensus" json:"consensus"`

	Peers struct {
		TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
		GossipWorkers  int `mapstructure:"gossip_workers" json:"gossip_workers"`
	} `mapstructure:"peers" json:"peers"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the default configuration file, merges environment specific
// overrides, and applies environment variables (BCHAIN_* keys, with a
// .env file honoured). Missing config files fall back to the built-in
// defaults.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // picks up a local .env if present

	viper.SetDefault("node.port", 5000)
	viper.SetDefault("node.data_dir", ".")
	viper.SetDefault("consensus.block_size", 10)
	viper.SetDefault("consensus.max_nodes", 8)
	viper.SetDefault("consensus.pow_zeros", 7)
	viper.SetDefault("consensus.reward", 1.0)
	viper.SetDefault("peers.timeout_seconds", 10)
	viper.SetDefault("peers.gossip_workers", 4)
	viper.SetDefault("logging.level", "info")

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	} else if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, "merge "+env+" config")
			}
		}
	}

	viper.SetEnvPrefix("BCHAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the BCHAIN_ENV environment
// variable to select the override file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("BCHAIN_ENV", ""))
}
