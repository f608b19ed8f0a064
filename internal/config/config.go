package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks an invalid hyperparameter detected at construction time.
// Callers check with errors.Is; invalid configs never reach call time.
var ErrConfig = errors.New("invalid engine configuration")

// #region config

// Config holds all engine hyperparameters. Constructed once, immutable after
// Validate passes.
type Config struct {
	InputSize  int `yaml:"input_size"`
	HiddenSize int `yaml:"hidden_size"`

	// DecayFactor is the multiplicative shrinkage applied to the cell state,
	// both inside every step and on the no-update decay path. Must be in (0, 1].
	DecayFactor float64 `yaml:"decay_factor"`

	// Dropout is accepted for parity with stacked-cell configurations but a
	// single-layer cell applies none. Must be in [0, 1).
	Dropout float64 `yaml:"dropout"`

	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	GradClipNorm float64 `yaml:"grad_clip_norm"`

	InitialThreshold float64 `yaml:"initial_threshold"`
	// ThresholdAlpha is the EMA smoothing factor. Must be in (0, 1].
	ThresholdAlpha float64 `yaml:"threshold_alpha"`
	// UncertaintyLambda weights hidden-state variance in the significance
	// score. Must be >= 0.
	UncertaintyLambda float64 `yaml:"uncertainty_lambda"`

	// PredictorHidden is the width of the scorer's feed-forward layer.
	PredictorHidden int `yaml:"predictor_hidden"`
	// HistoryCapacity bounds the scorer's rolling event history.
	HistoryCapacity int `yaml:"history_capacity"`

	// Device selects the compute target. Only "cpu" is implemented.
	Device string `yaml:"device"`

	// Seed drives deterministic parameter initialization.
	Seed int64 `yaml:"seed"`
}

// Default returns the standard engine configuration.
func Default() Config {
	return Config{
		InputSize:         128,
		HiddenSize:        256,
		DecayFactor:       0.99,
		Dropout:           0.1,
		LearningRate:      0.001,
		WeightDecay:       0.01,
		GradClipNorm:      1.0,
		InitialThreshold:  0.5,
		ThresholdAlpha:    0.1,
		UncertaintyLambda: 0.5,
		PredictorHidden:   128,
		HistoryCapacity:   100,
		Device:            "cpu",
		Seed:              1,
	}
}

// #endregion config

// #region validate

// Validate rejects invalid hyperparameters. All violations wrap ErrConfig.
func (c Config) Validate() error {
	if c.InputSize < 1 {
		return fmt.Errorf("%w: input_size %d must be >= 1", ErrConfig, c.InputSize)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("%w: hidden_size %d must be >= 1", ErrConfig, c.HiddenSize)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("%w: decay_factor %g must be in (0, 1]", ErrConfig, c.DecayFactor)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %g must be in [0, 1)", ErrConfig, c.Dropout)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate %g must be > 0", ErrConfig, c.LearningRate)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("%w: weight_decay %g must be >= 0", ErrConfig, c.WeightDecay)
	}
	if c.GradClipNorm <= 0 {
		return fmt.Errorf("%w: grad_clip_norm %g must be > 0", ErrConfig, c.GradClipNorm)
	}
	if c.ThresholdAlpha <= 0 || c.ThresholdAlpha > 1 {
		return fmt.Errorf("%w: threshold_alpha %g must be in (0, 1]", ErrConfig, c.ThresholdAlpha)
	}
	if c.UncertaintyLambda < 0 {
		return fmt.Errorf("%w: uncertainty_lambda %g must be >= 0", ErrConfig, c.UncertaintyLambda)
	}
	if c.PredictorHidden < 1 {
		return fmt.Errorf("%w: predictor_hidden %d must be >= 1", ErrConfig, c.PredictorHidden)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("%w: history_capacity %d must be >= 1", ErrConfig, c.HistoryCapacity)
	}
	if c.Device != "cpu" {
		return fmt.Errorf("%w: device %q is not supported (only cpu)", ErrConfig, c.Device)
	}
	return nil
}

// #endregion validate

// #region load

// Load reads a YAML config file over Default and validates the result.
// Missing fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// #endregion load
