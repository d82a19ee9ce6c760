package simulation

import (
	"fmt"
	"log/slog"

	"mtf-simulator/internal/confluence"
	"mtf-simulator/internal/indicator"
	"mtf-simulator/internal/market"
	"mtf-simulator/internal/performance"
	"mtf-simulator/internal/position"
	"mtf-simulator/internal/scorer"
)

// Result is the complete output of one simulation run.
type Result struct {
	Trades      []position.Trade
	EquityCurve []float64
	Summary     performance.Summary
}

// Driver orchestrates one simulation over pre-fetched candle series. All run
// state lives on the driver instance; concurrent simulations must each use
// their own Driver.
type Driver struct {
	cfg       Config
	evaluator *confluence.Evaluator
}

// NewDriver validates the configuration and builds the evaluator. All
// configuration errors surface here, before any simulation step.
func NewDriver(cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	weights, err := cfg.Weights()
	if err != nil {
		return nil, err
	}
	evaluator, err := confluence.NewEvaluator(weights, cfg.EntryThresholds)
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, evaluator: evaluator}, nil
}

// Run simulates over the base timeframe series, consulting the higher
// timeframes through the alignment join at each step. Pure with respect to
// its inputs: the same series and config always produce identical output.
func (d *Driver) Run(seriesByTF map[market.Timeframe]*market.Series) (*Result, error) {
	sets, err := d.prepare(seriesByTF)
	if err != nil {
		return nil, err
	}

	baseTF := d.cfg.Base()
	baseSeries := seriesByTF[baseTF]
	baseSet := sets[baseTF]

	manager, err := position.NewManager(d.cfg.Position, d.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}

	trades := make([]position.Trade, 0)
	equityCurve := make([]float64, 0, baseSeries.Len())

	slog.Info("Starting simulation",
		"symbol", d.cfg.Symbol, "base_timeframe", baseTF,
		"bars", baseSeries.Len(), "initial_capital", d.cfg.InitialCapital)

	var prevComposite float64
	for i := 0; i < baseSeries.Len(); i++ {
		candle := baseSeries.Candles[i]

		analyses := d.analyzeStep(seriesByTF, sets, i)
		decision, err := d.evaluator.Evaluate(analyses, prevComposite)
		if err != nil {
			return nil, err
		}
		prevComposite = decision.CompositeScore

		if manager.HasOpen() {
			reversal := d.evaluator.ShouldExitOnReversal(decision.CompositeScore, manager.Open().Side)
			if trade := manager.EvaluateExit(candle, position.ExitContext{
				Reversal: reversal,
				RSI:      baseSet.RSI[i],
			}); trade != nil {
				trades = append(trades, *trade)
			}
		} else if decision.Enter {
			atr := baseSet.ATR[i]
			if atr > 0 {
				if _, err := manager.OpenPosition(decision, candle, atr); err != nil {
					return nil, err
				}
			} else {
				slog.Debug("Skipping entry with zero ATR", "index", i, "timestamp", candle.Timestamp)
			}
		}

		equityCurve = append(equityCurve, manager.Capital())
	}

	// Anything still open converts to a trade at the final close.
	if trade := manager.CloseAtEnd(baseSeries.Candles[baseSeries.Len()-1]); trade != nil {
		trades = append(trades, *trade)
		equityCurve[len(equityCurve)-1] = manager.Capital()
	}

	summary := performance.Analyze(trades, equityCurve, d.cfg.InitialCapital)

	slog.Info("Simulation finished",
		"trades", summary.TotalTrades, "final_capital", summary.FinalCapital,
		"hit_rate", summary.HitRate, "max_drawdown", summary.MaxDrawdown)

	return &Result{
		Trades:      trades,
		EquityCurve: equityCurve,
		Summary:     summary,
	}, nil
}

// prepare validates every required series and computes its indicator set.
// Missing or malformed series are hard input failures, never retried or
// substituted.
func (d *Driver) prepare(seriesByTF map[market.Timeframe]*market.Series) (map[market.Timeframe]*indicator.Set, error) {
	sets := make(map[market.Timeframe]*indicator.Set, len(seriesByTF))
	for _, tf := range d.evaluator.Timeframes() {
		series, ok := seriesByTF[tf]
		if !ok || series == nil {
			return nil, fmt.Errorf("%w: no candle series for configured timeframe %s", market.ErrInvalidInput, tf)
		}
		if series.Timeframe != tf {
			return nil, fmt.Errorf("%w: series labeled %s supplied for timeframe %s", market.ErrInvalidInput, series.Timeframe, tf)
		}
		if err := series.Validate(); err != nil {
			return nil, err
		}
		set, err := indicator.Compute(series, d.cfg.Indicators)
		if err != nil {
			return nil, err
		}
		sets[tf] = set
	}
	return sets, nil
}

// analyzeStep scores every configured timeframe at the base step i. Higher
// timeframes are joined through NearestIndex; a missing or stale join yields
// the insufficient-data analysis, same as warm-up.
func (d *Driver) analyzeStep(seriesByTF map[market.Timeframe]*market.Series, sets map[market.Timeframe]*indicator.Set, i int) map[market.Timeframe]scorer.Analysis {
	baseTF := d.cfg.Base()
	baseTime := seriesByTF[baseTF].Candles[i].Timestamp

	analyses := make(map[market.Timeframe]scorer.Analysis, len(sets))
	for _, tf := range d.evaluator.Timeframes() {
		if tf == baseTF {
			analyses[tf] = scorer.ScoreAt(seriesByTF[tf], sets[tf], i)
			continue
		}
		idx := seriesByTF[tf].NearestIndex(baseTime, tf.AlignmentTolerance())
		if idx < 0 {
			analyses[tf] = scorer.ScoreAt(seriesByTF[tf], sets[tf], -1)
			continue
		}
		analyses[tf] = scorer.ScoreAt(seriesByTF[tf], sets[tf], idx)
	}
	return analyses
}
