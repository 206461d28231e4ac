package config

import (
	"fmt"
	"strings"

	"github.com/dbehnke/dvbt-viterbi/pkg/dvbt"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate decoder config
	p, err := cfg.Decoder.Params()
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if !viterbi.ValidLaneWidth(cfg.Decoder.LaneWidth) {
		return fmt.Errorf("decoder.lane_width must be one of 1, 2, 4, 8, 16, 32")
	}

	// Validate channel config
	if cfg.Channel.Amplitude < 1 || cfg.Channel.Amplitude > 127 {
		return fmt.Errorf("channel.amplitude must be between 1 and 127")
	}

	// Validate simulation config
	if cfg.Simulation.Bits <= 0 {
		return fmt.Errorf("simulation.bits must be positive")
	}
	mode := strings.ToLower(cfg.Simulation.Mode)
	if mode != "soft" && mode != "hard" {
		return fmt.Errorf("simulation.mode must be soft or hard, got %q", cfg.Simulation.Mode)
	}

	// Validate database config
	if cfg.Database.Enabled && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required when database is enabled")
	}
	if cfg.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative")
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	// Validate metrics config
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	return nil
}

// Params converts the decoder section into decoder parameters.
func (d DecoderConfig) Params() (viterbi.Params, error) {
	c, err := dvbt.ParseConstellation(d.Constellation)
	if err != nil {
		return viterbi.Params{}, err
	}
	h, err := dvbt.ParseHierarchy(d.Hierarchy)
	if err != nil {
		return viterbi.Params{}, err
	}
	pr, err := dvbt.ParsePriority(d.Priority)
	if err != nil {
		return viterbi.Params{}, err
	}
	r, err := dvbt.ParseCodeRate(d.CodeRate)
	if err != nil {
		return viterbi.Params{}, err
	}

	return viterbi.Params{
		Constellation: c,
		Hierarchy:     h,
		Priority:      pr,
		CodeRate:      r,
		BlockBits:     d.BlockBits,
		StartState:    d.StartState,
		EndState:      d.EndState,
		Streams:       d.Streams,
	}, nil
}

// Options returns the decoder construction options of the config.
func (c *Config) Options() []viterbi.Option {
	opts := []viterbi.Option{
		viterbi.WithLaneWidth(c.Decoder.LaneWidth),
		viterbi.WithChannelDesign(c.Channel.Amplitude, c.Channel.DesignEbN0dB),
	}
	if c.Decoder.Scalar {
		opts = append(opts, viterbi.WithScalarKernel())
	}
	return opts
}
