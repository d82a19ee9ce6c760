package simulation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mtf-simulator/internal/confluence"
	"mtf-simulator/internal/indicator"
	"mtf-simulator/internal/market"
	"mtf-simulator/internal/position"
)

// Config enumerates everything a run depends on. A Config that fails
// Validate never reaches the simulation loop.
type Config struct {
	Symbol         string  `yaml:"symbol"`
	BaseTimeframe  string  `yaml:"base_timeframe"`
	InitialCapital float64 `yaml:"initial_capital"`

	Indicators       indicator.Params      `yaml:"indicators"`
	TimeframeWeights map[string]float64    `yaml:"timeframe_weights"`
	EntryThresholds  confluence.Thresholds `yaml:"entry_thresholds"`
	Position         position.Config       `yaml:"position"`
}

// DefaultConfig is the historical three-timeframe setup: daily carries half
// the weight, the base timeframe the least.
func DefaultConfig() Config {
	return Config{
		Symbol:         "ADAUSDT",
		BaseTimeframe:  string(market.TF1h),
		InitialCapital: 10000,
		Indicators:     indicator.DefaultParams(),
		TimeframeWeights: map[string]float64{
			string(market.TF1h): 0.2,
			string(market.TF4h): 0.3,
			string(market.TF1d): 0.5,
		},
		EntryThresholds: confluence.Thresholds{
			Entry:             0.35,
			ExtremeScore:      0.75,
			MomentumComposite: 0.55,
			ReversalExit:      0.35,
		},
		Position: position.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file over the defaults and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading config %s: %v", confluence.ErrInvalidConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %v", confluence.ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", confluence.ErrInvalidConfig)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial_capital must be positive", confluence.ErrInvalidConfig)
	}

	baseTF, err := market.ParseTimeframe(c.BaseTimeframe)
	if err != nil {
		return fmt.Errorf("%w: base_timeframe: %v", confluence.ErrInvalidConfig, err)
	}

	weights, err := c.Weights()
	if err != nil {
		return err
	}
	if _, ok := weights[baseTF]; !ok {
		return fmt.Errorf("%w: base_timeframe %s has no weight entry", confluence.ErrInvalidConfig, baseTF)
	}
	for tf := range weights {
		if tf.Duration() < baseTF.Duration() {
			return fmt.Errorf("%w: timeframe %s is shorter than base %s", confluence.ErrInvalidConfig, tf, baseTF)
		}
	}

	// Evaluator and manager construction repeat their own checks; running
	// them here keeps all ConfigurationErrors ahead of any simulation work.
	if _, err := confluence.NewEvaluator(weights, c.EntryThresholds); err != nil {
		return err
	}
	if err := c.Position.Validate(); err != nil {
		return err
	}
	return nil
}

// Weights parses the timeframe weight table into typed keys.
func (c Config) Weights() (map[market.Timeframe]float64, error) {
	weights := make(map[market.Timeframe]float64, len(c.TimeframeWeights))
	for raw, w := range c.TimeframeWeights {
		tf, err := market.ParseTimeframe(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: timeframe_weights: %v", confluence.ErrInvalidConfig, err)
		}
		weights[tf] = w
	}
	return weights, nil
}

// Base returns the parsed base timeframe. Only valid after Validate.
func (c Config) Base() market.Timeframe {
	tf, _ := market.ParseTimeframe(c.BaseTimeframe)
	return tf
}
