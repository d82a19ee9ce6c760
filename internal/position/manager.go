package position

import (
	"fmt"
	"time"

	"mtf-simulator/internal/confluence"
	"mtf-simulator/internal/logging"
	"mtf-simulator/internal/market"
)

var posLog = logging.New("position")

// Exit reasons, in the order they are evaluated each step.
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitReversal   = "SIGNAL_REVERSAL"
	ExitTrailing   = "TRAILING_STOP"
	ExitMaxHold    = "MAX_HOLD_TIME"
	ExitRSIExtreme = "RSI_EXTREME"
	ExitEndOfData  = "END_OF_DATA"
)

// Position is the single open position. Owned exclusively by the Manager:
// created on entry, converted into a Trade on exit.
type Position struct {
	ID                int
	Side              confluence.Side
	EntryPrice        float64
	EntryTime         time.Time
	Quantity          float64
	MarginUsed        float64
	Leverage          float64
	StopLoss          float64
	TakeProfit        float64
	Style             confluence.EntryStyle
	ConfidenceAtEntry float64

	// peakProfitPercent tracks the best leveraged profit seen, for the
	// trailing lock.
	peakProfitPercent float64
}

// Trade is a closed position, the authoritative record for performance math.
type Trade struct {
	ID                 int
	Side               confluence.Side
	Style              confluence.EntryStyle
	EntryPrice         float64
	EntryTime          time.Time
	ExitPrice          float64
	ExitTime           time.Time
	ExitReason         string
	Quantity           float64
	MarginUsed         float64
	Leverage           float64
	ConfidenceAtEntry  float64
	PnL                float64
	PnLPercent         float64
	HoldingPeriodHours float64
}

// ExitContext is the per-step market state the exit ladder needs beyond the
// candle itself.
type ExitContext struct {
	// Reversal is true when the composite score has flipped beyond the
	// configured threshold against the open side.
	Reversal bool
	// RSI is the base timeframe RSI at this step.
	RSI float64
}

// Manager owns account capital and the single open position for one run.
// Never shared between concurrent simulations.
type Manager struct {
	cfg     Config
	capital float64
	open    *Position
	nextID  int
}

func NewManager(cfg Config, initialCapital float64) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", confluence.ErrInvalidConfig)
	}
	return &Manager{cfg: cfg, capital: initialCapital, nextID: 1}, nil
}

func (m *Manager) Capital() float64 {
	return m.capital
}

func (m *Manager) Open() *Position {
	return m.open
}

func (m *Manager) HasOpen() bool {
	return m.open != nil
}

// OpenPosition sizes and opens a position from an entry decision. It is an
// error to call while a position is already open - no pyramiding.
func (m *Manager) OpenPosition(d confluence.Decision, candle market.Candle, atr float64) (*Position, error) {
	if m.open != nil {
		return nil, fmt.Errorf("position already open, cannot enter again")
	}
	if atr <= 0 {
		return nil, fmt.Errorf("%w: non-positive ATR %.8f at entry", market.ErrInvalidInput, atr)
	}

	styleCfg := m.cfg.Styles[d.Style]
	entryPrice := candle.Close
	stopDistance := atr * m.cfg.StopATRMultiple

	// Base risk, scaled by style and confidence. Confidence in [0,1] maps to
	// a bounded adjustment in [0.7, 2.0].
	riskAmount := m.capital * (m.cfg.RiskPerTradePercent / 100)
	riskAmount *= styleCfg.RiskMultiplier
	confidenceFactor := 0.7 + 1.3*clamp01(d.CompositeConfidence)
	riskAmount *= confidenceFactor

	quantity := riskAmount / stopDistance * m.cfg.Leverage
	notional := quantity * entryPrice

	maxNotional := m.capital * m.cfg.Leverage * m.cfg.MaxNotionalFraction
	if notional > maxNotional {
		notional = maxNotional
	}
	if notional < m.cfg.MinNotional {
		notional = m.cfg.MinNotional
	}
	quantity = notional / entryPrice

	var stopLoss, takeProfit float64
	if d.Side == confluence.SideLong {
		stopLoss = entryPrice - stopDistance
		takeProfit = entryPrice + stopDistance*styleCfg.RiskReward
	} else {
		stopLoss = entryPrice + stopDistance
		takeProfit = entryPrice - stopDistance*styleCfg.RiskReward
	}

	m.open = &Position{
		ID:                m.nextID,
		Side:              d.Side,
		EntryPrice:        entryPrice,
		EntryTime:         candle.Timestamp,
		Quantity:          quantity,
		MarginUsed:        notional / m.cfg.Leverage,
		Leverage:          m.cfg.Leverage,
		StopLoss:          stopLoss,
		TakeProfit:        takeProfit,
		Style:             d.Style,
		ConfidenceAtEntry: d.CompositeConfidence,
	}
	m.nextID++

	posLog.Info("Opened position",
		"id", m.open.ID, "side", d.Side, "style", d.Style,
		"entry", entryPrice, "quantity", quantity, "notional", notional,
		"stop_loss", stopLoss, "take_profit", takeProfit,
		"confidence", d.CompositeConfidence, "timestamp", candle.Timestamp)

	return m.open, nil
}

// EvaluateExit runs the fixed-priority exit ladder for this step. First match
// wins; returns the closed trade or nil when the position stays open.
//
// Priority: stop-loss, take-profit, signal reversal, trailing lock, max hold,
// extreme RSI.
func (m *Manager) EvaluateExit(candle market.Candle, ctx ExitContext) *Trade {
	if m.open == nil {
		return nil
	}
	pos := m.open

	// Stops are absolute prices fixed at entry. They are never tightened
	// outside the explicit trailing rule below.
	if pos.Side == confluence.SideLong {
		if candle.Low <= pos.StopLoss {
			return m.close(pos.StopLoss, candle.Timestamp, ExitStopLoss)
		}
		if candle.High >= pos.TakeProfit {
			return m.close(pos.TakeProfit, candle.Timestamp, ExitTakeProfit)
		}
	} else {
		if candle.High >= pos.StopLoss {
			return m.close(pos.StopLoss, candle.Timestamp, ExitStopLoss)
		}
		if candle.Low <= pos.TakeProfit {
			return m.close(pos.TakeProfit, candle.Timestamp, ExitTakeProfit)
		}
	}

	if ctx.Reversal {
		return m.close(candle.Close, candle.Timestamp, ExitReversal)
	}

	styleCfg := m.cfg.Styles[pos.Style]
	held := candle.Timestamp.Sub(pos.EntryTime)
	profitPercent := m.profitPercent(pos, candle.Close)
	if profitPercent > pos.peakProfitPercent {
		pos.peakProfitPercent = profitPercent
	}

	// Trailing lock: once the peak leveraged profit passed activation, give
	// back at most the configured fraction of it.
	if pos.peakProfitPercent >= styleCfg.TrailingActivationPercent &&
		held >= time.Duration(styleCfg.TrailingMinHoldMinutes*float64(time.Minute)) {
		floor := pos.peakProfitPercent * (1 - styleCfg.TrailingLockFraction)
		if profitPercent <= floor {
			return m.close(candle.Close, candle.Timestamp, ExitTrailing)
		}
	}

	if held >= time.Duration(styleCfg.MaxHoldingHours*float64(time.Hour)) {
		return m.close(candle.Close, candle.Timestamp, ExitMaxHold)
	}

	rsiExtreme := (pos.Side == confluence.SideLong && ctx.RSI >= m.cfg.RSIExit.LongLevel) ||
		(pos.Side == confluence.SideShort && ctx.RSI <= m.cfg.RSIExit.ShortLevel)
	if rsiExtreme &&
		profitPercent >= m.cfg.RSIExit.MinProfitPercent &&
		held >= time.Duration(m.cfg.RSIExit.MinHoldHours*float64(time.Hour)) {
		return m.close(candle.Close, candle.Timestamp, ExitRSIExtreme)
	}

	return nil
}

// CloseAtEnd force-closes any open position at the final candle's close.
func (m *Manager) CloseAtEnd(lastCandle market.Candle) *Trade {
	if m.open == nil {
		return nil
	}
	return m.close(lastCandle.Close, lastCandle.Timestamp, ExitEndOfData)
}

func (m *Manager) close(exitPrice float64, exitTime time.Time, reason string) *Trade {
	pos := m.open

	change := exitPrice - pos.EntryPrice
	if pos.Side == confluence.SideShort {
		change = -change
	}
	pnlPercent := change / pos.EntryPrice * pos.Leverage * 100
	pnl := change / pos.EntryPrice * pos.Leverage * pos.MarginUsed

	m.capital += pnl
	m.open = nil

	trade := &Trade{
		ID:                 pos.ID,
		Side:               pos.Side,
		Style:              pos.Style,
		EntryPrice:         pos.EntryPrice,
		EntryTime:          pos.EntryTime,
		ExitPrice:          exitPrice,
		ExitTime:           exitTime,
		ExitReason:         reason,
		Quantity:           pos.Quantity,
		MarginUsed:         pos.MarginUsed,
		Leverage:           pos.Leverage,
		ConfidenceAtEntry:  pos.ConfidenceAtEntry,
		PnL:                pnl,
		PnLPercent:         pnlPercent,
		HoldingPeriodHours: exitTime.Sub(pos.EntryTime).Hours(),
	}

	posLog.Info("Closed position",
		"id", trade.ID, "exit", exitPrice, "reason", reason,
		"pnl", pnl, "pnl_percent", pnlPercent, "held_hours", trade.HoldingPeriodHours,
		"capital", m.capital, "timestamp", exitTime)

	return trade
}

func (m *Manager) profitPercent(pos *Position, price float64) float64 {
	change := price - pos.EntryPrice
	if pos.Side == confluence.SideShort {
		change = -change
	}
	return change / pos.EntryPrice * pos.Leverage * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
