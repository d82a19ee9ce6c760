package position

import (
	"fmt"

	"mtf-simulator/internal/confluence"
)

// StyleConfig carries the per-entry-style risk profile. The trailing and
// holding thresholds were tuned empirically on historical runs; they are
// configuration, not derived values, and overriding them changes results.
type StyleConfig struct {
	// RiskMultiplier scales the base risk amount for this style.
	RiskMultiplier float64 `yaml:"risk_multiplier"`
	// RiskReward sets take-profit distance as a multiple of stop distance.
	RiskReward float64 `yaml:"risk_reward"`
	// MaxHoldingHours closes the position on age regardless of price.
	MaxHoldingHours float64 `yaml:"max_holding_hours"`
	// TrailingActivationPercent is the leveraged profit percent that arms the
	// trailing lock.
	TrailingActivationPercent float64 `yaml:"trailing_activation_percent"`
	// TrailingLockFraction is the share of peak profit given back before the
	// trailing exit fires.
	TrailingLockFraction float64 `yaml:"trailing_lock_fraction"`
	// TrailingMinHoldMinutes delays the trailing rule after entry.
	TrailingMinHoldMinutes float64 `yaml:"trailing_min_hold_minutes"`
}

// RSIExitConfig gates the extreme-RSI exit: it only fires on a position that
// is already profitable and has been held past the minimum duration.
type RSIExitConfig struct {
	LongLevel        float64 `yaml:"long_level"`
	ShortLevel       float64 `yaml:"short_level"`
	MinProfitPercent float64 `yaml:"min_profit_percent"`
	MinHoldHours     float64 `yaml:"min_hold_hours"`
}

type Config struct {
	Leverage            float64 `yaml:"leverage"`
	RiskPerTradePercent float64 `yaml:"risk_per_trade_percent"`
	StopATRMultiple     float64 `yaml:"stop_atr_multiple"`
	// MaxNotionalFraction caps position notional as a fraction of
	// capital x leverage.
	MaxNotionalFraction float64 `yaml:"max_notional_fraction"`
	MinNotional         float64 `yaml:"min_notional"`

	Styles  map[confluence.EntryStyle]StyleConfig `yaml:"styles"`
	RSIExit RSIExitConfig                         `yaml:"rsi_exit"`
}

// DefaultConfig mirrors the historical tuning: trend trades run longest with
// the widest targets, scalps lock profit fastest.
func DefaultConfig() Config {
	return Config{
		Leverage:            10,
		RiskPerTradePercent: 2,
		StopATRMultiple:     2.0,
		MaxNotionalFraction: 0.5,
		MinNotional:         10,
		Styles: map[confluence.EntryStyle]StyleConfig{
			confluence.StyleTrend: {
				RiskMultiplier:            1.0,
				RiskReward:                3.0,
				MaxHoldingHours:           12,
				TrailingActivationPercent: 60,
				TrailingLockFraction:      0.5,
				TrailingMinHoldMinutes:    60,
			},
			confluence.StyleScalp: {
				RiskMultiplier:            0.8,
				RiskReward:                1.5,
				MaxHoldingHours:           2,
				TrailingActivationPercent: 40,
				TrailingLockFraction:      0.6,
				TrailingMinHoldMinutes:    15,
			},
			confluence.StyleMomentum: {
				RiskMultiplier:            1.2,
				RiskReward:                2.5,
				MaxHoldingHours:           8,
				TrailingActivationPercent: 50,
				TrailingLockFraction:      0.5,
				TrailingMinHoldMinutes:    30,
			},
			confluence.StyleReversal: {
				RiskMultiplier:            0.7,
				RiskReward:                2.0,
				MaxHoldingHours:           5,
				TrailingActivationPercent: 45,
				TrailingLockFraction:      0.6,
				TrailingMinHoldMinutes:    30,
			},
		},
		RSIExit: RSIExitConfig{
			LongLevel:        80,
			ShortLevel:       20,
			MinProfitPercent: 10,
			MinHoldHours:     1,
		},
	}
}

func (c Config) Validate() error {
	if c.Leverage < 1 {
		return fmt.Errorf("%w: leverage %.2f below 1", confluence.ErrInvalidConfig, c.Leverage)
	}
	if c.RiskPerTradePercent <= 0 || c.RiskPerTradePercent > 100 {
		return fmt.Errorf("%w: risk_per_trade_percent %.2f outside (0, 100]", confluence.ErrInvalidConfig, c.RiskPerTradePercent)
	}
	if c.StopATRMultiple <= 0 {
		return fmt.Errorf("%w: stop_atr_multiple must be positive", confluence.ErrInvalidConfig)
	}
	if c.MaxNotionalFraction <= 0 || c.MaxNotionalFraction > 1 {
		return fmt.Errorf("%w: max_notional_fraction %.2f outside (0, 1]", confluence.ErrInvalidConfig, c.MaxNotionalFraction)
	}
	if len(c.Styles) == 0 {
		return fmt.Errorf("%w: no entry styles configured", confluence.ErrInvalidConfig)
	}
	for style, sc := range c.Styles {
		if !confluence.KnownStyle(style) {
			return fmt.Errorf("%w: unknown entry style %q", confluence.ErrInvalidConfig, style)
		}
		if sc.RiskMultiplier <= 0 {
			return fmt.Errorf("%w: style %s risk_multiplier must be positive", confluence.ErrInvalidConfig, style)
		}
		if sc.RiskReward <= 0 {
			return fmt.Errorf("%w: style %s risk_reward must be positive", confluence.ErrInvalidConfig, style)
		}
		if sc.MaxHoldingHours <= 0 {
			return fmt.Errorf("%w: style %s max_holding_hours must be positive", confluence.ErrInvalidConfig, style)
		}
		if sc.TrailingLockFraction < 0 || sc.TrailingLockFraction > 1 {
			return fmt.Errorf("%w: style %s trailing_lock_fraction outside [0, 1]", confluence.ErrInvalidConfig, style)
		}
	}
	for _, style := range confluence.StylePrecedence {
		if _, ok := c.Styles[style]; !ok {
			return fmt.Errorf("%w: missing config for entry style %q", confluence.ErrInvalidConfig, style)
		}
	}
	return nil
}
