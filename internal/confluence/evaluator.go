package confluence

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"mtf-simulator/internal/logging"
	"mtf-simulator/internal/market"
	"mtf-simulator/internal/scorer"
)

var confluenceLog = logging.New("confluence")

// ErrInvalidConfig tags evaluator configuration problems. Fatal at
// construction time, before any simulation step runs.
var ErrInvalidConfig = errors.New("invalid confluence configuration")

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// EntryStyle tags which qualifying condition opened a position. When several
// qualify at once, precedence is trend > scalp > momentum > reversal.
type EntryStyle string

const (
	StyleTrend    EntryStyle = "trend"
	StyleScalp    EntryStyle = "scalp"
	StyleMomentum EntryStyle = "momentum"
	StyleReversal EntryStyle = "reversal"
)

// StylePrecedence is the fixed evaluation order for entry styles.
var StylePrecedence = []EntryStyle{StyleTrend, StyleScalp, StyleMomentum, StyleReversal}

func KnownStyle(s EntryStyle) bool {
	for _, known := range StylePrecedence {
		if s == known {
			return true
		}
	}
	return false
}

// Thresholds gates entries and the signal-reversal exit.
type Thresholds struct {
	// Entry is the minimum absolute composite score to consider entering.
	Entry float64 `yaml:"entry"`
	// ExtremeScore qualifies a scalp when the shortest timeframe alone
	// reaches it.
	ExtremeScore float64 `yaml:"extreme_score"`
	// MomentumComposite qualifies a momentum entry on broad strength.
	MomentumComposite float64 `yaml:"momentum_composite"`
	// ReversalExit is the opposite-sign composite magnitude that closes an
	// open position.
	ReversalExit float64 `yaml:"reversal_exit"`
}

// Evaluator combines per-timeframe analyses into entry decisions. One
// parameterized evaluator replaces the per-variant strategy copies: the
// timeframe weight table and thresholds select the behavior.
type Evaluator struct {
	weights    map[market.Timeframe]float64
	timeframes []market.Timeframe // ascending by duration
	thresholds Thresholds
}

func NewEvaluator(weights map[market.Timeframe]float64, thresholds Thresholds) (*Evaluator, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no timeframe weights", ErrInvalidConfig)
	}

	var sum float64
	timeframes := make([]market.Timeframe, 0, len(weights))
	for tf, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight for %s", ErrInvalidConfig, tf)
		}
		sum += w
		timeframes = append(timeframes, tf)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("%w: timeframe weights sum to %.6f, want 1", ErrInvalidConfig, sum)
	}

	if thresholds.Entry <= 0 || thresholds.Entry > 1 {
		return nil, fmt.Errorf("%w: entry threshold %.3f outside (0, 1]", ErrInvalidConfig, thresholds.Entry)
	}
	if thresholds.ReversalExit <= 0 {
		return nil, fmt.Errorf("%w: reversal exit threshold must be positive", ErrInvalidConfig)
	}

	sort.Slice(timeframes, func(i, j int) bool {
		return timeframes[i].Duration() < timeframes[j].Duration()
	})

	return &Evaluator{
		weights:    weights,
		timeframes: timeframes,
		thresholds: thresholds,
	}, nil
}

// Timeframes returns the configured timeframes ascending by duration.
func (e *Evaluator) Timeframes() []market.Timeframe {
	return e.timeframes
}

// Decision is the evaluator output for one step while flat.
type Decision struct {
	CompositeScore      float64
	CompositeConfidence float64
	Alignment           float64
	Enter               bool
	Side                Side
	Style               EntryStyle
	Reasons             []string
}

// Evaluate computes the weighted composite and, if the entry threshold is
// crossed with at least one supporting condition, an entry decision.
// prevComposite is the composite of the previous step (0 before the first):
// an entry needs an actual threshold crossing, not just a level above it, so
// a score that stays elevated cannot re-trigger. The caller must only act on
// Enter while flat; entries never fire in-position.
func (e *Evaluator) Evaluate(analyses map[market.Timeframe]scorer.Analysis, prevComposite float64) (Decision, error) {
	for _, tf := range e.timeframes {
		if _, ok := analyses[tf]; !ok {
			return Decision{}, fmt.Errorf("%w: missing analysis for timeframe %s", market.ErrInvalidInput, tf)
		}
	}

	d := Decision{
		CompositeScore:      e.weighted(analyses, func(a scorer.Analysis) float64 { return a.Score }),
		CompositeConfidence: e.weighted(analyses, func(a scorer.Analysis) float64 { return a.Confidence }),
		Alignment:           e.alignment(analyses),
	}

	crossedLong := d.CompositeScore >= e.thresholds.Entry && prevComposite < e.thresholds.Entry
	crossedShort := d.CompositeScore <= -e.thresholds.Entry && prevComposite > -e.thresholds.Entry
	if !crossedLong && !crossedShort {
		return d, nil
	}

	side := SideLong
	if crossedShort {
		side = SideShort
	}

	style, reasons, ok := e.qualifyStyle(analyses, d.CompositeScore, side)
	if !ok {
		return d, nil
	}

	d.Enter = true
	d.Side = side
	d.Style = style
	d.Reasons = reasons

	confluenceLog.Info("Entry signal",
		"side", side, "style", style,
		"composite", d.CompositeScore, "confidence", d.CompositeConfidence, "alignment", d.Alignment)

	return d, nil
}

// qualifyStyle checks the supporting conditions in fixed precedence order and
// returns exactly one style for the first that holds.
func (e *Evaluator) qualifyStyle(analyses map[market.Timeframe]scorer.Analysis, composite float64, side Side) (EntryStyle, []string, bool) {
	wantTrend := scorer.TrendBullish
	if side == SideShort {
		wantTrend = scorer.TrendBearish
	}

	for _, style := range StylePrecedence {
		switch style {
		case StyleTrend:
			// Alignment across the two longest timeframes; with a single
			// timeframe its own trend label decides.
			longest := analyses[e.timeframes[len(e.timeframes)-1]]
			second := longest
			if len(e.timeframes) >= 2 {
				second = analyses[e.timeframes[len(e.timeframes)-2]]
			}
			if longest.Trend == wantTrend && second.Trend == wantTrend {
				return StyleTrend, []string{
					fmt.Sprintf("%s and %s aligned %s", second.Timeframe, longest.Timeframe, wantTrend),
				}, true
			}
		case StyleScalp:
			shortest := analyses[e.timeframes[0]]
			if math.Abs(shortest.Score) >= e.thresholds.ExtremeScore && sameSign(shortest.Score, composite) {
				return StyleScalp, []string{
					fmt.Sprintf("extreme %s score %.2f", shortest.Timeframe, shortest.Score),
				}, true
			}
		case StyleMomentum:
			if math.Abs(composite) >= e.thresholds.MomentumComposite {
				return StyleMomentum, []string{
					fmt.Sprintf("broad composite strength %.2f", composite),
				}, true
			}
		case StyleReversal:
			longest := analyses[e.timeframes[len(e.timeframes)-1]]
			shortest := analyses[e.timeframes[0]]
			if longest.Trend != scorer.TrendNeutral && longest.Trend != wantTrend &&
				math.Abs(shortest.Score) >= e.thresholds.Entry {
				return StyleReversal, []string{
					fmt.Sprintf("%s counter to %s %s", shortest.Timeframe, longest.Timeframe, longest.Trend),
				}, true
			}
		}
	}
	return "", nil, false
}

// ShouldExitOnReversal reports whether the composite score has flipped far
// enough against the open side to force an exit.
func (e *Evaluator) ShouldExitOnReversal(composite float64, side Side) bool {
	if side == SideLong {
		return composite <= -e.thresholds.ReversalExit
	}
	return composite >= e.thresholds.ReversalExit
}

// weighted sums in fixed timeframe order so repeated runs accumulate floats
// identically.
func (e *Evaluator) weighted(analyses map[market.Timeframe]scorer.Analysis, value func(scorer.Analysis) float64) float64 {
	var out float64
	for _, tf := range e.timeframes {
		out += value(analyses[tf]) * e.weights[tf]
	}
	return out
}

// alignment measures how closely the timeframes agree: 1 when all scores are
// identical, approaching 0 as they diverge. Pairwise distances are halved
// (scores live in [-1, 1]) and each pair is weighted by its combined timeframe
// weight, so disagreement involving the heavier timeframes costs more.
func (e *Evaluator) alignment(analyses map[market.Timeframe]scorer.Analysis) float64 {
	if len(e.timeframes) < 2 {
		return 1
	}
	var total, weightSum float64
	for i := 0; i < len(e.timeframes); i++ {
		for j := i + 1; j < len(e.timeframes); j++ {
			w := e.weights[e.timeframes[i]] + e.weights[e.timeframes[j]]
			total += w * math.Abs(analyses[e.timeframes[i]].Score-analyses[e.timeframes[j]].Score)
			weightSum += w
		}
	}
	a := 1 - (total/weightSum)/2
	if a < 0 {
		return 0
	}
	return a
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
