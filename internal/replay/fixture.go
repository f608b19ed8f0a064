package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/config"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: an engine
// configuration, a recorded event stream, and the trigger decisions the
// stream is expected to reproduce.
type Fixture struct {
	Description string            `json:"description"`
	Config      FixtureConfig     `json:"config"`
	Events      []FixtureEvent    `json:"events"`
	Expected    []FixtureExpected `json:"expected"`
}

// FixtureConfig mirrors config.Config with JSON tags. Zero-valued fields
// fall back to the engine defaults.
type FixtureConfig struct {
	InputSize         int     `json:"input_size"`
	HiddenSize        int     `json:"hidden_size"`
	DecayFactor       float64 `json:"decay_factor"`
	LearningRate      float64 `json:"learning_rate"`
	WeightDecay       float64 `json:"weight_decay"`
	GradClipNorm      float64 `json:"grad_clip_norm"`
	InitialThreshold  float64 `json:"initial_threshold"`
	ThresholdAlpha    float64 `json:"threshold_alpha"`
	UncertaintyLambda float64 `json:"uncertainty_lambda"`
	PredictorHidden   int     `json:"predictor_hidden"`
	Seed              int64   `json:"seed"`
}

// FixtureEvent is one recorded event. Target is optional; when present the
// event trains supervised.
type FixtureEvent struct {
	SessionID string    `json:"session_id"`
	Input     []float64 `json:"input"`
	Target    []float64 `json:"target,omitempty"`
	Force     bool      `json:"force,omitempty"`
}

// FixtureExpected captures the expected trigger decision per event, in
// stream order.
type FixtureExpected struct {
	Triggered bool `json:"triggered"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Expected) != 0 && len(f.Expected) != len(f.Events) {
		return nil, fmt.Errorf("fixture %s: %d expected results for %d events", path, len(f.Expected), len(f.Events))
	}
	return &f, nil
}

// ToConfig merges the fixture config over the engine defaults.
func (fc *FixtureConfig) ToConfig() config.Config {
	cfg := config.Default()
	if fc.InputSize > 0 {
		cfg.InputSize = fc.InputSize
	}
	if fc.HiddenSize > 0 {
		cfg.HiddenSize = fc.HiddenSize
	}
	if fc.DecayFactor > 0 {
		cfg.DecayFactor = fc.DecayFactor
	}
	if fc.LearningRate > 0 {
		cfg.LearningRate = fc.LearningRate
	}
	if fc.WeightDecay > 0 {
		cfg.WeightDecay = fc.WeightDecay
	}
	if fc.GradClipNorm > 0 {
		cfg.GradClipNorm = fc.GradClipNorm
	}
	if fc.InitialThreshold > 0 {
		cfg.InitialThreshold = fc.InitialThreshold
	}
	if fc.ThresholdAlpha > 0 {
		cfg.ThresholdAlpha = fc.ThresholdAlpha
	}
	if fc.UncertaintyLambda > 0 {
		cfg.UncertaintyLambda = fc.UncertaintyLambda
	}
	if fc.PredictorHidden > 0 {
		cfg.PredictorHidden = fc.PredictorHidden
	}
	if fc.Seed != 0 {
		cfg.Seed = fc.Seed
	}
	return cfg
}

// #endregion fixture-loader
