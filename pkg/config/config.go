package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Decoder    DecoderConfig    `mapstructure:"decoder"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Web        WebConfig        `mapstructure:"web"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// DecoderConfig holds the transmission parameters of the decoded stream
type DecoderConfig struct {
	Constellation string `mapstructure:"constellation"` // qpsk, 16qam, 64qam
	Hierarchy     string `mapstructure:"hierarchy"`     // nh, alpha1, alpha2, alpha4
	Priority      string `mapstructure:"priority"`      // hp or lp
	CodeRate      string `mapstructure:"code_rate"`     // 1/2, 2/3, 3/4, 5/6, 7/8
	BlockBits     int    `mapstructure:"block_bits"`    // decoded bits per block
	StartState    int    `mapstructure:"start_state"`
	EndState      int    `mapstructure:"end_state"`
	Streams       int    `mapstructure:"streams"`
	LaneWidth     int    `mapstructure:"lane_width"` // butterflies per vector operation
	Scalar        bool   `mapstructure:"scalar"`     // use the reference kernel
}

// ChannelConfig holds the channel design point of the branch metrics
type ChannelConfig struct {
	Amplitude    int     `mapstructure:"amplitude"`      // soft value of a noiseless "1"
	DesignEbN0dB float64 `mapstructure:"design_ebn0_db"` // Eb/N0 the metrics are built for
}

// SimulationConfig holds bit error rate simulation settings
type SimulationConfig struct {
	EbN0dB []float64 `mapstructure:"ebn0_db"`
	Bits   int       `mapstructure:"bits"` // information bits per point
	Seed   uint64    `mapstructure:"seed"`
	Mode   string    `mapstructure:"mode"` // soft or hard
}

// DatabaseConfig holds the run history database configuration
type DatabaseConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"` // e.g. 720h, 0 keeps all runs
}

// WebConfig holds web dashboard configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// DVBT_DECODER_CODE_RATE overrides decoder.code_rate
var envKeyReplacer = strings.NewReplacer(".", "_")

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dvbt-viterbi")
	}

	// Environment variables
	viper.SetEnvPrefix("DVBT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Decoder defaults: one transport stream packet per block
	viper.SetDefault("decoder.constellation", "qpsk")
	viper.SetDefault("decoder.hierarchy", "nh")
	viper.SetDefault("decoder.priority", "hp")
	viper.SetDefault("decoder.code_rate", "1/2")
	viper.SetDefault("decoder.block_bits", 1504)
	viper.SetDefault("decoder.start_state", 0)
	viper.SetDefault("decoder.end_state", 0)
	viper.SetDefault("decoder.streams", 1)
	viper.SetDefault("decoder.lane_width", 4)
	viper.SetDefault("decoder.scalar", false)

	// Channel defaults
	viper.SetDefault("channel.amplitude", 100)
	viper.SetDefault("channel.design_ebn0_db", 12.0)

	// Simulation defaults
	viper.SetDefault("simulation.ebn0_db", []float64{2, 3, 4, 5})
	viper.SetDefault("simulation.bits", 100000)
	viper.SetDefault("simulation.seed", 1)
	viper.SetDefault("simulation.mode", "soft")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.path", "data/dvbt-viterbi.db")
	viper.SetDefault("database.retention", "0s")

	// Web defaults
	viper.SetDefault("web.enabled", false)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.prometheus.enabled", true)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")
}
